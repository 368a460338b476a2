package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/vip-ladder/tierbot/internal/app/dispatch"
	"github.com/vip-ladder/tierbot/internal/app/ladder"
	"github.com/vip-ladder/tierbot/internal/app/promotion"
	"github.com/vip-ladder/tierbot/internal/domain"
	"github.com/vip-ladder/tierbot/internal/infra/observability"
)

// Intents the bot needs: guild messages with content, and members for roles.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent |
	discordgo.IntentsGuildMembers

// DefaultStatusCommand is the message that asks for a status report.
const DefaultStatusCommand = "!vip"

// Engine is the tier engine as the chat adapter sees it.
type Engine interface {
	HandleActivity(ctx context.Context, ev domain.ActivityEvent) (ladder.ActivityOutcome, error)
	Status(ctx context.Context, guildID, userID string) (ladder.StatusReport, error)
	Confirm(ctx context.Context, rawToken, requesterID string) (promotion.Confirmation, error)
	PromptLost(o promotion.Offer)
}

// replier is the slice of *discordgo.Session the handlers answer through.
type replier interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

// BotConfig controls which messages the bot reacts to.
type BotConfig struct {
	GuildID       string // only this guild when set
	StatusCommand string // (default: DefaultStatusCommand)
}

// Bot turns gateway events into engine calls.
type Bot struct {
	cfg      BotConfig
	engine   Engine
	dispatch *dispatch.Dispatcher
	logger   *slog.Logger
	now      func() time.Time
}

// NewBot creates the event handlers.
func NewBot(cfg BotConfig, engine Engine, d *dispatch.Dispatcher, logger *slog.Logger) *Bot {
	if cfg.StatusCommand == "" {
		cfg.StatusCommand = DefaultStatusCommand
	}
	return &Bot{
		cfg:      cfg,
		engine:   engine,
		dispatch: d,
		logger:   observability.Component(logger, "discord"),
		now:      time.Now,
	}
}

// Run registers the handlers, opens the gateway and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context, s *discordgo.Session) error {
	s.Identify.Intents = Intents
	s.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.logger.Info("gateway ready", "user", r.User.Username, "guilds", len(r.Guilds))
	})
	s.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		b.onMessage(ctx, s, m.Message)
	})
	s.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.onInteraction(ctx, s, i.Interaction)
	})

	if err := s.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	<-ctx.Done()
	// No handler can Submit once the gateway is closed.
	err := s.Close()
	b.dispatch.Drain()
	return err
}

// ─── Messages ───────────────────────────────────────────────────────────────

func (b *Bot) onMessage(ctx context.Context, r replier, m *discordgo.Message) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	if b.cfg.GuildID != "" && m.GuildID != b.cfg.GuildID {
		return
	}

	ev := domain.ActivityEvent{UserID: m.Author.ID, GuildID: m.GuildID}
	if err := b.dispatch.Submit(ctx, "activity", func(ctx context.Context) error {
		return b.handleActivity(ctx, r, m.ChannelID, ev)
	}); err != nil {
		b.logger.Debug("activity dropped", "user", ev.UserID, "error", err)
	}

	if strings.TrimSpace(m.Content) != b.cfg.StatusCommand {
		return
	}
	if err := b.dispatch.Submit(ctx, "status", func(ctx context.Context) error {
		return b.handleStatus(ctx, r, m)
	}); err != nil {
		b.logger.Warn("status dropped", "user", ev.UserID, "error", err)
	}
}

func (b *Bot) handleActivity(ctx context.Context, r replier, channelID string, ev domain.ActivityEvent) error {
	out, err := b.engine.HandleActivity(ctx, ev)
	if err != nil {
		return err
	}
	if out.Offer == nil {
		return nil
	}

	_, err = r.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:    fmt.Sprintf("<@%s> you reached **%s**!", ev.UserID, out.Offer.TargetName),
		Components: PromoteComponents(*out.Offer),
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Users: []string{ev.UserID},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		b.engine.PromptLost(*out.Offer)
		return fmt.Errorf("send prompt: %w", err)
	}
	return nil
}

func (b *Bot) handleStatus(ctx context.Context, r replier, m *discordgo.Message) error {
	send := &discordgo.MessageSend{
		Reference:       m.Reference(),
		AllowedMentions: &discordgo.MessageAllowedMentions{RepliedUser: false},
	}

	rep, err := b.engine.Status(ctx, m.GuildID, m.Author.ID)
	if err != nil {
		send.Content = msgLookupFailed
		if _, sendErr := r.ChannelMessageSendComplex(m.ChannelID, send, discordgo.WithContext(ctx)); sendErr != nil {
			return errors.Join(err, sendErr)
		}
		return err
	}

	send.Embeds = []*discordgo.MessageEmbed{StatusEmbed(m.Author, rep, b.now())}
	if rep.Offer != nil {
		send.Components = PromoteComponents(*rep.Offer)
	}
	if _, err := r.ChannelMessageSendComplex(m.ChannelID, send, discordgo.WithContext(ctx)); err != nil {
		if rep.Offer != nil {
			b.engine.PromptLost(*rep.Offer)
		}
		return fmt.Errorf("send status: %w", err)
	}
	return nil
}

// ─── Interactions ───────────────────────────────────────────────────────────

func (b *Bot) onInteraction(ctx context.Context, r replier, i *discordgo.Interaction) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	raw := i.MessageComponentData().CustomID
	if !domain.IsTierToken(raw) {
		return
	}

	reply := msgInternal
	defer func() {
		if p := recover(); p != nil {
			b.logger.Error("interaction panicked", "panic", p)
			reply = msgInternal
		}
		b.respond(r, i, reply)
	}()

	conf, err := b.engine.Confirm(ctx, raw, interactionUser(i))
	if err != nil {
		b.logger.Info("confirmation failed", "requester", interactionUser(i), "error", err)
	}
	reply = ConfirmReply(conf, err, b.cfg.StatusCommand)
}

func (b *Bot) respond(r replier, i *discordgo.Interaction, content string) {
	err := r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.logger.Warn("interaction reply failed", "error", err)
	}
}

func interactionUser(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
