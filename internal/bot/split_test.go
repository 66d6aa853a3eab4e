package bot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMessageShortTextUntouched(t *testing.T) {
	parts := splitMessage("hello world", 100)
	assert.Equal(t, []string{"hello world"}, parts)
}

func TestSplitMessageRespectsCeiling(t *testing.T) {
	text := strings.Repeat("a", 450)
	parts := splitMessage(text, 100)

	require.Greater(t, len(parts), 1)
	total := 0
	for _, part := range parts {
		assert.LessOrEqual(t, len([]rune(part)), 100)
		total += len(part)
	}
	assert.Equal(t, 450, total, "hard cuts must not lose characters")
}

func TestSplitMessagePrefersNewlineBoundary(t *testing.T) {
	// Newline at position 80 is past 70% of a 100-rune window.
	text := strings.Repeat("a", 80) + "\n" + strings.Repeat("b", 60)
	parts := splitMessage(text, 100)

	require.Len(t, parts, 2)
	assert.Equal(t, strings.Repeat("a", 80), parts[0])
	assert.Equal(t, strings.Repeat("b", 60), parts[1])
}

func TestSplitMessagePrefersSpaceBoundary(t *testing.T) {
	text := strings.Repeat("a", 85) + " " + strings.Repeat("b", 60)
	parts := splitMessage(text, 100)

	require.Len(t, parts, 2)
	assert.Equal(t, strings.Repeat("a", 85), parts[0])
	assert.Equal(t, strings.Repeat("b", 60), parts[1])
}

func TestSplitMessageIgnoresEarlyBoundary(t *testing.T) {
	// A newline before 70% of the window should not be used as break point.
	text := strings.Repeat("a", 30) + "\n" + strings.Repeat("b", 200)
	parts := splitMessage(text, 100)

	require.Greater(t, len(parts), 1)
	assert.Equal(t, 100, len([]rune(parts[0])))
}

func TestSplitMessageCountsRunesNotBytes(t *testing.T) {
	text := strings.Repeat("ж", 150)
	parts := splitMessage(text, 100)

	require.Len(t, parts, 2)
	assert.Equal(t, 100, len([]rune(parts[0])))
	assert.Equal(t, 50, len([]rune(parts[1])))
}
