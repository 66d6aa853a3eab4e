package bot

import (
	"github.com/bwmarrin/discordgo"
)

// Session is the slice of discordgo.Session the bot uses. Narrowed so tests
// can substitute a mock.
type Session interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
	ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseDelete(interaction *discordgo.Interaction, options ...discordgo.RequestOption) error
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	// GetUserID returns the bot's own user ID.
	GetUserID() string
}

// sessionAdapter wraps *discordgo.Session to implement Session.
type sessionAdapter struct {
	*discordgo.Session
}

func (s *sessionAdapter) GetUserID() string {
	return s.State.User.ID
}

// NewSession wraps a *discordgo.Session to implement the Session interface.
func NewSession(session *discordgo.Session) Session {
	return &sessionAdapter{Session: session}
}
