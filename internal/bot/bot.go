package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avolkov/quotabot/internal/llm"
	"github.com/avolkov/quotabot/internal/metrics"
	"github.com/avolkov/quotabot/internal/quota"
	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const systemPrompt = `You are a helpful assistant replying inside Discord.

Formatting rules:
1. Use Discord-flavored markdown only when you actually want formatting:
   **bold** for emphasis, *italics* for accents, ` + "`monospace`" + ` for code
   or commands, and fenced code blocks for longer snippets.
2. Avoid stray markdown characters (* _ ~ | > #) in ordinary prose.
3. For lists use plain bullets (- or •) and 1. 2. 3. numbering.
4. Write naturally; your answers must render cleanly in Discord without
   formatting artifacts.`

type Config struct {
	// AdminIDs are the user IDs allowed to run privileged commands.
	AdminIDs []int64
	// GuildID scopes command registration to one guild when set.
	GuildID string
	// ChunkDelay paces multi-part reply delivery.
	ChunkDelay time.Duration
	// PromptTimeout bounds a single AI completion call.
	PromptTimeout time.Duration
}

type Bot struct {
	log      *slog.Logger
	session  Session
	llm      llm.Client
	quota    *quota.Service
	inflight *InFlight
	config   Config

	// wg tracks prompt goroutines still awaiting an AI response so shutdown
	// can drain them.
	wg sync.WaitGroup
}

func New(log *slog.Logger, session Session, llmClient llm.Client, quotaSvc *quota.Service, config Config) *Bot {
	if config.ChunkDelay <= 0 {
		config.ChunkDelay = 500 * time.Millisecond
	}
	if config.PromptTimeout <= 0 {
		config.PromptTimeout = 2 * time.Minute
	}
	return &Bot{
		log:      log,
		session:  session,
		llm:      llmClient,
		quota:    quotaSvc,
		inflight: NewInFlight(),
		config:   config,
	}
}

func (b *Bot) Run(ctx context.Context) error {
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.log.InfoContext(ctx, "connected to Discord", "username", r.User.Username, "discriminator", r.User.Discriminator)
	})

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("opening Discord connection: %w", err)
	}

	if err := b.registerCommands(ctx); err != nil {
		return fmt.Errorf("registering commands: %w", err)
	}

	var g errgroup.Group
	g.Go(func() error {
		b.quota.RunDailyReset(ctx)
		return nil
	})

	b.log.InfoContext(ctx, "bot is running, press Ctrl+C to stop",
		"daily_limit", b.quota.Limit(),
		"vip_count", len(b.quota.VIPs()),
		"admin_count", len(b.config.AdminIDs),
	)

	<-ctx.Done()
	b.log.Info("shutdown signal received")
	g.Wait()
	b.wg.Wait()
	b.session.Close()
	b.log.Info("shut down complete")

	return nil
}

func (b *Bot) registerCommands(ctx context.Context) error {
	guildID := b.config.GuildID
	if guildID != "" {
		b.log.InfoContext(ctx, "registering commands to guild", "guild_id", guildID)
	} else {
		b.log.InfoContext(ctx, "registering commands globally (may take up to 1 hour to propagate)")
	}

	_, err := b.session.ApplicationCommandBulkOverwrite(b.session.GetUserID(), guildID, commands)
	if err != nil {
		return fmt.Errorf("bulk overwrite commands: %w", err)
	}
	b.log.InfoContext(ctx, "registered commands", "count", len(commands))
	return nil
}

var commands = []*discordgo.ApplicationCommand{
	{
		Name:        "prompt",
		Description: "Ask the AI assistant",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "text",
				Description: "What to ask",
				Required:    true,
			},
		},
	},
	{
		Name:        "status",
		Description: "Show your remaining requests for today",
	},
	{
		Name:        "help",
		Description: "How to use the bot",
	},
	{
		Name:        "setlimit",
		Description: "Set the daily request limit (admin only)",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionInteger,
				Name:        "value",
				Description: "Requests per user per day (1-1000)",
				Required:    true,
			},
		},
	},
	{
		Name:        "addvip",
		Description: "Grant a user unlimited requests (admin only)",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        "user",
				Description: "User to add to the VIP list",
				Required:    true,
			},
		},
	},
	{
		Name:        "removevip",
		Description: "Revoke a user's unlimited requests (admin only)",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionUser,
				Name:        "user",
				Description: "User to remove from the VIP list",
				Required:    true,
			},
		},
	},
	{
		Name:        "listvip",
		Description: "List VIP users (admin only)",
	},
}

type handlerResult struct {
	Response string
	Err      error
}

// userError marks failures caused by the caller (bad input, exhausted quota)
// so they log at Warn instead of Error.
type userError struct {
	Err error
}

func (e *userError) Error() string {
	return e.Err.Error()
}

func (e *userError) Unwrap() error {
	return e.Err
}

func newUserError(err error) *userError {
	return &userError{Err: err}
}

func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
	defer cancel()
	cmd := i.ApplicationCommandData().Name

	var result handlerResult
	switch cmd {
	case "prompt":
		result = b.handlePrompt(i)
	case "status":
		result = b.handleStatus(i)
	case "help":
		result = b.handleHelp(i)
	case "setlimit":
		result = b.handleSetLimit(i)
	case "addvip":
		result = b.handleAddVIP(i)
	case "removevip":
		result = b.handleRemoveVIP(i)
	case "listvip":
		result = b.handleListVIP(i)
	}

	if result.Response != "" {
		b.respond(i, result.Response)
	}

	if result.Err == nil {
		return
	}

	var ue *userError
	if errors.As(result.Err, &ue) {
		b.log.WarnContext(ctx, "command rejected", "command", cmd, "error", result.Err, "channel_id", i.ChannelID)
	} else {
		b.log.ErrorContext(ctx, "command failed", "command", cmd, "error", result.Err, "channel_id", i.ChannelID)
	}
}

// handlePrompt is the admission path: validate the text, check the quota,
// claim the in-flight slot, acknowledge with a processing placeholder, and
// hand the blocking AI call to a goroutine so other users keep being served.
func (b *Bot) handlePrompt(i *discordgo.InteractionCreate) handlerResult {
	userID, userName, err := interactionUser(i)
	if err != nil {
		return handlerResult{
			Response: "❌ Something went wrong. Please try again.",
			Err:      fmt.Errorf("resolving prompt user: %w", err),
		}
	}

	text := strings.TrimSpace(optString(i, "text"))
	if text == "" {
		return handlerResult{
			Response: "Please write your question after the command, e.g. `/prompt text: Tell me about space`",
			Err:      newUserError(errors.New("empty prompt text")),
		}
	}

	allowed, remaining := b.quota.CheckLimit(userID)
	if !allowed {
		metrics.PromptRejections.WithLabelValues("quota").Inc()
		return handlerResult{
			Response: fmt.Sprintf(
				"❌ %s, you have used all %d requests for today.\n🔄 The limit resets at midnight.\n\n💎 Ask an administrator for unlimited access.",
				userName, b.quota.Limit(),
			),
			Err: newUserError(fmt.Errorf("daily limit exhausted for user %d", userID)),
		}
	}

	if !b.inflight.TryEnter(userID) {
		metrics.PromptRejections.WithLabelValues("in_flight").Inc()
		return handlerResult{
			Response: "⏳ Please wait for the answer to your previous request before sending a new one.",
			Err:      newUserError(fmt.Errorf("request already in flight for user %d", userID)),
		}
	}

	b.respond(i, processingText(remaining, b.quota.Limit()))

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.inflight.Leave(userID)
		ctx, cancel := context.WithTimeout(context.Background(), b.config.PromptTimeout)
		defer cancel()
		b.processPrompt(ctx, i, userID, text)
	}()

	return handlerResult{}
}

// processPrompt runs the AI call and delivers the outcome. Quota is charged
// only on success. The processing placeholder is deleted on both paths;
// failure to delete it is swallowed.
func (b *Bot) processPrompt(ctx context.Context, i *discordgo.InteractionCreate, userID int64, text string) {
	start := time.Now()
	answer, err := b.llm.Complete(ctx, systemPrompt, text)
	metrics.CompletionDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.PromptsTotal.WithLabelValues("error").Inc()
		b.deletePlaceholder(ctx, i)
		b.sendText(ctx, i.ChannelID, fmt.Sprintf("❌ The AI request failed: %s", err))
		b.log.ErrorContext(ctx, "completion failed", "error", err, "user_id", userID)
		return
	}

	b.quota.Increment(userID)
	metrics.PromptsTotal.WithLabelValues("ok").Inc()
	b.deletePlaceholder(ctx, i)
	b.sendLongMessage(ctx, i.ChannelID, answer)
	b.log.InfoContext(ctx, "prompt answered", "user_id", userID, "answer_len", len(answer), "duration", time.Since(start))
}

func processingText(remaining, limit int) string {
	if remaining == quota.Unlimited {
		return "🤖 Working on your request...\n👑 VIP status: unlimited requests"
	}
	// Show what is left after the pending request, not the checked value.
	left := remaining - 1
	if left < 0 {
		left = 0
	}
	return fmt.Sprintf("🤖 Working on your request...\n📊 Requests left today after this one: %d/%d", left, limit)
}

func (b *Bot) handleStatus(i *discordgo.InteractionCreate) handlerResult {
	userID, userName, err := interactionUser(i)
	if err != nil {
		return handlerResult{
			Response: "❌ Something went wrong. Please try again.",
			Err:      fmt.Errorf("resolving status user: %w", err),
		}
	}

	processing := "✅ Ready"
	if b.inflight.Contains(userID) {
		processing = "🔄 Request in progress"
	}

	allowed, remaining := b.quota.CheckLimit(userID)
	if remaining == quota.Unlimited {
		return handlerResult{Response: fmt.Sprintf(
			"👤 User: %s\n👑 Status: VIP\n♾ Requests: unlimited\n🚀 State: %s",
			userName, processing,
		)}
	}

	used, limit := b.quota.Usage(userID)
	access := "✅ Allowed"
	if !allowed {
		access = "❌ Exhausted for today"
	}

	return handlerResult{Response: fmt.Sprintf(
		"👤 User: %s\n📈 Used today: %d/%d\n💫 Remaining: %d\n🔄 Access: %s\n🚀 State: %s\n⏰ Limit resets at midnight",
		userName, used, limit, remaining, access, processing,
	)}
}

func (b *Bot) handleHelp(i *discordgo.InteractionCreate) handlerResult {
	userID, _, err := interactionUser(i)
	if err != nil {
		return handlerResult{
			Response: "❌ Something went wrong. Please try again.",
			Err:      fmt.Errorf("resolving help user: %w", err),
		}
	}

	var sb strings.Builder
	sb.WriteString("📖 **Bot commands**\n\n")
	sb.WriteString("• `/prompt text` - ask the AI a question\n")
	sb.WriteString("• `/status` - check your remaining requests\n")
	sb.WriteString("• `/help` - show this help\n\n")
	sb.WriteString(fmt.Sprintf("**Limits**\n• Regular users: %d requests per day\n• VIP users: unlimited\n• The limit resets every day at midnight\n\n", b.quota.Limit()))
	sb.WriteString("⚠️ You cannot send a new request while a previous one is still processing.")

	if b.isAdmin(userID) {
		sb.WriteString("\n\n🔧 **Admin commands**\n")
		sb.WriteString("• `/setlimit value` - change the daily request limit\n")
		sb.WriteString("• `/addvip user` / `/removevip user` - manage VIP access\n")
		sb.WriteString("• `/listvip` - show all VIP users\n")
		sb.WriteString(fmt.Sprintf("\n📊 Daily limit: %d · VIP users: %d · Active requests: %d",
			b.quota.Limit(), len(b.quota.VIPs()), b.inflight.Len()))
	}

	return handlerResult{Response: sb.String()}
}

func (b *Bot) handleSetLimit(i *discordgo.InteractionCreate) handlerResult {
	userID, _, err := interactionUser(i)
	if err != nil {
		return handlerResult{
			Response: "❌ Something went wrong. Please try again.",
			Err:      fmt.Errorf("resolving setlimit user: %w", err),
		}
	}
	if !b.isAdmin(userID) {
		return handlerResult{
			Response: "❌ You are not allowed to run this command.",
			Err:      newUserError(fmt.Errorf("setlimit by non-admin %d", userID)),
		}
	}

	oldLimit := b.quota.Limit()
	newLimit := int(optInt(i, "value"))
	if err := b.quota.SetLimit(newLimit); err != nil {
		return handlerResult{
			Response: fmt.Sprintf("❌ %s.\nExample: `/setlimit value: 20`", err),
			Err:      newUserError(err),
		}
	}

	metrics.LimitChanges.Inc()
	b.log.Info("daily limit changed", "old_limit", oldLimit, "new_limit", newLimit, "admin_id", userID)
	return handlerResult{Response: fmt.Sprintf(
		"✅ **Daily limit updated!**\n\n📊 Old limit: %d requests\n📈 New limit: %d requests\n\nℹ️ Applies to all regular users. VIP users keep unlimited access.",
		oldLimit, newLimit,
	)}
}

func (b *Bot) handleAddVIP(i *discordgo.InteractionCreate) handlerResult {
	userID, _, err := interactionUser(i)
	if err != nil {
		return handlerResult{
			Response: "❌ Something went wrong. Please try again.",
			Err:      fmt.Errorf("resolving addvip user: %w", err),
		}
	}
	if !b.isAdmin(userID) {
		return handlerResult{
			Response: "❌ You are not allowed to run this command.",
			Err:      newUserError(fmt.Errorf("addvip by non-admin %d", userID)),
		}
	}

	vipID, err := optUserID(i, "user")
	if err != nil {
		return handlerResult{
			Response: "❌ Invalid user. Pick a user from the mention list.",
			Err:      newUserError(err),
		}
	}

	if !b.quota.AddVIP(vipID) {
		return handlerResult{Response: fmt.Sprintf("ℹ️ User %d is already on the VIP list.", vipID)}
	}

	b.log.Info("vip added", "vip_id", vipID, "admin_id", userID)
	return handlerResult{Response: fmt.Sprintf("✅ User %d added to the VIP list!\n👑 Total VIP users: %d", vipID, len(b.quota.VIPs()))}
}

func (b *Bot) handleRemoveVIP(i *discordgo.InteractionCreate) handlerResult {
	userID, _, err := interactionUser(i)
	if err != nil {
		return handlerResult{
			Response: "❌ Something went wrong. Please try again.",
			Err:      fmt.Errorf("resolving removevip user: %w", err),
		}
	}
	if !b.isAdmin(userID) {
		return handlerResult{
			Response: "❌ You are not allowed to run this command.",
			Err:      newUserError(fmt.Errorf("removevip by non-admin %d", userID)),
		}
	}

	vipID, err := optUserID(i, "user")
	if err != nil {
		return handlerResult{
			Response: "❌ Invalid user. Pick a user from the mention list.",
			Err:      newUserError(err),
		}
	}

	if !b.quota.RemoveVIP(vipID) {
		return handlerResult{Response: fmt.Sprintf("ℹ️ User %d is not on the VIP list.", vipID)}
	}

	b.log.Info("vip removed", "vip_id", vipID, "admin_id", userID)
	return handlerResult{Response: fmt.Sprintf("✅ User %d removed from the VIP list!\n👑 Remaining VIP users: %d", vipID, len(b.quota.VIPs()))}
}

func (b *Bot) handleListVIP(i *discordgo.InteractionCreate) handlerResult {
	userID, _, err := interactionUser(i)
	if err != nil {
		return handlerResult{
			Response: "❌ Something went wrong. Please try again.",
			Err:      fmt.Errorf("resolving listvip user: %w", err),
		}
	}
	if !b.isAdmin(userID) {
		return handlerResult{
			Response: "❌ You are not allowed to run this command.",
			Err:      newUserError(fmt.Errorf("listvip by non-admin %d", userID)),
		}
	}

	vips := b.quota.VIPs()
	if len(vips) == 0 {
		return handlerResult{Response: "📋 The VIP list is empty."}
	}

	lines := lo.Map(vips, func(id int64, idx int) string {
		return fmt.Sprintf("%d. ID: `%d`", idx+1, id)
	})
	return handlerResult{Response: fmt.Sprintf(
		"👑 **VIP users:**\n\n%s\n\n📊 Total: %d users",
		strings.Join(lines, "\n"), len(vips),
	)}
}

func (b *Bot) isAdmin(userID int64) bool {
	return lo.Contains(b.config.AdminIDs, userID)
}

func (b *Bot) respond(i *discordgo.InteractionCreate, content string) {
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
		},
	})
	if err != nil {
		b.log.Error("failed to respond to interaction", "error", err)
	}
}

func (b *Bot) deletePlaceholder(ctx context.Context, i *discordgo.InteractionCreate) {
	if err := b.session.InteractionResponseDelete(i.Interaction); err != nil {
		b.log.WarnContext(ctx, "deleting processing placeholder", "error", err)
	}
}

func (b *Bot) sendText(ctx context.Context, channelID, content string) {
	if _, err := b.session.ChannelMessageSend(channelID, content); err != nil {
		b.log.ErrorContext(ctx, "sending message", "error", err, "channel_id", channelID)
	}
}

func optString(i *discordgo.InteractionCreate, name string) string {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name {
			return opt.StringValue()
		}
	}
	return ""
}

func optInt(i *discordgo.InteractionCreate, name string) int64 {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name {
			return opt.IntValue()
		}
	}
	return 0
}

func optUserID(i *discordgo.InteractionCreate, name string) (int64, error) {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == name {
			user := opt.UserValue(nil)
			if user == nil {
				break
			}
			return strconv.ParseInt(user.ID, 10, 64)
		}
	}
	return 0, fmt.Errorf("missing user option %q", name)
}

// interactionUser resolves the invoking user's ID and display name. Guild
// interactions carry the user under Member, DMs directly under User.
func interactionUser(i *discordgo.InteractionCreate) (int64, string, error) {
	var user *discordgo.User
	if i.Member != nil {
		user = i.Member.User
	} else {
		user = i.User
	}
	if user == nil {
		return 0, "", errors.New("interaction has no user")
	}

	id, err := strconv.ParseInt(user.ID, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("parsing user id %q: %w", user.ID, err)
	}

	name := user.GlobalName
	if name == "" {
		name = user.Username
	}
	return id, name, nil
}
