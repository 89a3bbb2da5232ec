package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/astrikos/fedibooks/internal/crawler"
	"github.com/astrikos/fedibooks/internal/htmltext"
	"github.com/astrikos/fedibooks/internal/metrics"
	"github.com/astrikos/fedibooks/internal/ops"
)

func newFetchCmd() *cobra.Command {
	var useCursor bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Crawl followed accounts' outboxes into the local store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFetch(cmd.Context(), useCursor)
		},
	}
	cmd.Flags().BoolVar(&useCursor, "resume", false, "resume an interrupted history walk from saved cursors")
	return cmd
}

func runFetch(ctx context.Context, useCursor bool) error {
	a, err := newApp(cfgFile)
	if err != nil {
		return err
	}
	defer a.close()

	metrics.Init()
	if a.cfg.Ops.ListenAddr != "" {
		ops.New(a.cfg.Ops.ListenAddr, a.logger).Start(ctx)
	}

	me, err := a.fedi.VerifyCredentials(ctx)
	if err != nil {
		return fmt.Errorf("verify credentials: %w", err)
	}
	a.logger.Info("logged in", zap.String("acct", me.Acct))

	following, err := a.fedi.Following(ctx, "")
	if err != nil {
		return fmt.Errorf("list follows: %w", err)
	}
	accounts := make([]string, 0, len(following))
	for _, acc := range following {
		accounts = append(accounts, qualifiedHandle(acc.Acct, a.cfg.Site.BaseURL))
	}
	a.logger.Info("crawling followed accounts", zap.Int("count", len(accounts)))

	coordinator := crawler.NewCoordinator(
		a.ap,
		a.ap,
		crawler.SQLStore{Store: a.store},
		htmltext.Extract,
		crawler.Config{
			Lang:      a.cfg.Fetch.Lang,
			UseCursor: useCursor,
		},
		a.logger,
	)
	fleet := crawler.NewFleet(coordinator, a.cfg.Fetch.Concurrency, a.cfg.BlacklistedInstance, a.logger)

	failed := fleet.Run(ctx, accounts)

	// Compact outside any crawl; skipped when interrupted.
	if ctx.Err() == nil {
		if err := a.store.Vacuum(ctx); err != nil {
			a.logger.Warn("vacuum failed", zap.Error(err))
		}
	}

	if len(failed) > 0 {
		names := make([]string, len(failed))
		for i, f := range failed {
			names[i] = f.Account
		}
		return fmt.Errorf("%d account(s) failed: %s", len(failed), strings.Join(names, ", "))
	}
	return ctx.Err()
}
