// Package replybot listens for mention notifications and answers them:
// generated replies for conversation, pin/unpin commands for the bot's
// operators.
package replybot

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/astrikos/fedibooks/internal/fedi"
	"github.com/astrikos/fedibooks/internal/htmltext"
	"github.com/astrikos/fedibooks/internal/metrics"
)

// Platform is the slice of the instance API the bot needs.
type Platform interface {
	MeID(ctx context.Context) (string, error)
	Following(ctx context.Context, accountID string) ([]fedi.Account, error)
	StatusContext(ctx context.Context, statusID string) (fedi.Context, error)
	Reply(ctx context.Context, to fedi.Status, text, cw string) (fedi.Status, error)
	React(ctx context.Context, statusID, emoji string) error
	Pin(ctx context.Context, statusID string) error
	Unpin(ctx context.Context, statusID string) error
	StreamMentions(ctx context.Context) (<-chan fedi.Notification, error)
}

// GenerateFunc produces one reply body.
type GenerateFunc func(ctx context.Context) (string, error)

// Config tunes the bot.
type Config struct {
	// CW is the content warning applied to generated replies.
	CW string
	// MaxThreadLength is the maximum number of own posts in a thread's
	// ancestry before the bot stops replying to it.
	MaxThreadLength int
}

// Bot is the mention-listener service.
type Bot struct {
	platform Platform
	generate GenerateFunc
	cfg      Config
	logger   *zap.Logger

	meID    string
	follows map[string]struct{}
}

// New builds a Bot.
func New(platform Platform, generate GenerateFunc, cfg Config, logger *zap.Logger) *Bot {
	if cfg.MaxThreadLength <= 0 {
		cfg.MaxThreadLength = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{platform: platform, generate: generate, cfg: cfg, logger: logger}
}

// Run streams mentions until the context ends.
func (b *Bot) Run(ctx context.Context) error {
	meID, err := b.platform.MeID(ctx)
	if err != nil {
		return err
	}
	b.meID = meID

	following, err := b.platform.Following(ctx, "")
	if err != nil {
		return err
	}
	b.follows = make(map[string]struct{}, len(following))
	for _, acc := range following {
		b.follows[acc.ID] = struct{}{}
	}

	mentions, err := b.platform.StreamMentions(ctx)
	if err != nil {
		return err
	}
	for n := range mentions {
		b.handleMention(ctx, n)
	}
	return ctx.Err()
}

func (b *Bot) handleMention(ctx context.Context, n fedi.Notification) {
	status := *n.Status
	log := b.logger.With(zap.String("status", status.ID), zap.String("from", n.Account.Acct))

	thread, err := b.platform.StatusContext(ctx, status.ID)
	if err != nil {
		log.Warn("status context fetch failed", zap.Error(err))
		return
	}
	if b.threadTooLong(thread) {
		log.Debug("thread too long, not replying")
		metrics.IncMentionHandled("ignored")
		return
	}

	body, err := htmltext.Extract(status.Content)
	if err != nil {
		log.Warn("mention body extraction failed", zap.Error(err))
		return
	}
	command := strings.ToLower(strings.TrimSpace(htmltext.StripLeadingMention(body)))

	switch command {
	case "pin", "unpin":
		b.handleCommand(ctx, thread, status, n.Account, command, log)
	default:
		b.reply(ctx, status, log)
	}
}

// threadTooLong reports whether the bot has already posted its share of
// the thread.
func (b *Bot) threadTooLong(thread fedi.Context) bool {
	own := 0
	for _, post := range thread.Ancestors {
		if post.Account.ID == b.meID {
			own++
		}
		if own >= b.cfg.MaxThreadLength {
			return true
		}
	}
	return false
}

func (b *Bot) handleCommand(ctx context.Context, thread fedi.Context, status fedi.Status, from fedi.Account, command string, log *zap.Logger) {
	if _, ok := b.follows[from.ID]; !ok {
		b.react(ctx, status.ID, "❌", log)
		metrics.IncMentionHandled("unauthorized")
		return
	}

	// The command applies to the post being replied to.
	var targetID string
	for _, post := range thread.Ancestors {
		if post.ID == status.InReplyToID {
			targetID = post.ID
		}
	}
	if targetID == "" {
		b.react(ctx, status.ID, "❌", log)
		return
	}

	var err error
	if command == "pin" {
		err = b.platform.Pin(ctx, targetID)
	} else {
		err = b.platform.Unpin(ctx, targetID)
	}
	if err != nil {
		log.Warn("pin command failed", zap.String("command", command), zap.Error(err))
		b.react(ctx, status.ID, "❌", log)
		if _, rerr := b.platform.Reply(ctx, status, "Error: "+err.Error(), "Error!"); rerr != nil {
			log.Warn("error reply failed", zap.Error(rerr))
		}
		return
	}
	b.react(ctx, status.ID, "✅", log)
	metrics.IncMentionHandled(command)
}

func (b *Bot) reply(ctx context.Context, status fedi.Status, log *zap.Logger) {
	text, err := b.generate(ctx)
	if err != nil {
		log.Warn("reply generation failed", zap.Error(err))
		return
	}
	if _, err := b.platform.Reply(ctx, status, htmltext.SanitizeMentions(text), b.cfg.CW); err != nil {
		log.Warn("reply post failed", zap.Error(err))
		return
	}
	metrics.IncMentionHandled("replied")
}

func (b *Bot) react(ctx context.Context, statusID, emoji string, log *zap.Logger) {
	if err := b.platform.React(ctx, statusID, emoji); err != nil {
		log.Warn("reaction failed", zap.Error(err))
	}
}
