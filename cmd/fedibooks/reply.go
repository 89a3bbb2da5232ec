package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/astrikos/fedibooks/internal/metrics"
	"github.com/astrikos/fedibooks/internal/ops"
	"github.com/astrikos/fedibooks/internal/replybot"
)

func newReplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reply",
		Short: "Run the mention-listener service; leave it in the background",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReply(cmd.Context())
		},
	}
}

func runReply(ctx context.Context) error {
	a, err := newApp(cfgFile)
	if err != nil {
		return err
	}
	defer a.close()

	metrics.Init()
	if a.cfg.Ops.ListenAddr != "" {
		ops.New(a.cfg.Ops.ListenAddr, a.logger).Start(ctx)
	}

	bot := replybot.New(a.fedi, a.generate, replybot.Config{
		CW:              a.cfg.Post.CW,
		MaxThreadLength: a.cfg.Reply.MaxThreadLength,
	}, a.logger)

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
