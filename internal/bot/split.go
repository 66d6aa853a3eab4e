package bot

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// maxMessageLength is Discord's per-message content ceiling.
const maxMessageLength = 2000

// splitMessage splits text into chunks of at most maxLen runes. It prefers
// to break at a newline, then at a space, as long as the break point is past
// 70% of the window; otherwise it cuts hard at the ceiling.
func splitMessage(text string, maxLen int) []string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return []string{text}
	}

	var parts []string
	for len(runes) > 0 {
		if len(runes) <= maxLen {
			parts = append(parts, string(runes))
			break
		}

		window := runes[:maxLen]
		splitPos := maxLen
		threshold := maxLen * 7 / 10

		if pos := lastIndexRune(window, '\n'); pos > threshold {
			splitPos = pos
		} else if pos := lastIndexRune(window, ' '); pos > threshold {
			splitPos = pos
		}

		parts = append(parts, strings.TrimSpace(string(runes[:splitPos])))
		runes = []rune(strings.TrimSpace(string(runes[splitPos:])))
	}

	return parts
}

func lastIndexRune(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

// sendLongMessage delivers text to channelID, splitting it into ordered
// chunks when it exceeds the message ceiling. Multi-part deliveries get a
// part prefix and a short pacing delay between chunks. Delivery failures for
// individual chunks are logged, not retried.
func (b *Bot) sendLongMessage(ctx context.Context, channelID, text string) {
	parts := splitMessage(text, maxMessageLength-32) // leave room for the part prefix

	for idx, part := range parts {
		content := part
		if len(parts) > 1 {
			content = fmt.Sprintf("📝 Part %d/%d\n\n%s", idx+1, len(parts), part)
		}

		if _, err := b.session.ChannelMessageSend(channelID, content); err != nil {
			b.log.ErrorContext(ctx, "sending message part", "error", err, "part", idx+1, "parts", len(parts), "channel_id", channelID)
		}

		if idx < len(parts)-1 {
			sleepWithContext(ctx, b.config.ChunkDelay)
		}
	}
}

func sleepWithContext(ctx context.Context, dur time.Duration) {
	timer := time.NewTimer(dur)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
