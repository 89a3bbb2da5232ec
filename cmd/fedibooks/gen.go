package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/astrikos/fedibooks/internal/fedi"
	"github.com/astrikos/fedibooks/internal/htmltext"
	"github.com/astrikos/fedibooks/internal/metrics"
)

func newGenCmd() *cobra.Command {
	var simulate bool
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate one post and publish it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGen(cmd.Context(), simulate)
		},
	}
	cmd.Flags().BoolVarP(&simulate, "simulate", "s", false, "print the post instead of publishing it")
	return cmd
}

func runGen(ctx context.Context, simulate bool) error {
	a, err := newApp(cfgFile)
	if err != nil {
		return err
	}
	defer a.close()

	text, err := a.generate(ctx)
	if err != nil {
		return err
	}
	text = htmltext.SanitizeMentions(text)

	if simulate {
		fmt.Println(text)
		return nil
	}

	status, err := a.fedi.CreateStatus(ctx, text, fedi.StatusOpts{
		Visibility:  "unlisted",
		SpoilerText: a.cfg.Post.CW,
	})
	if err != nil {
		// Leave a trace on the timeline so the operator notices.
		notice := "An error occurred while submitting the generated post: " + err.Error()
		if _, nerr := a.fedi.CreateStatus(ctx, notice, fedi.StatusOpts{
			Visibility:  "unlisted",
			SpoilerText: "Error!",
		}); nerr != nil {
			a.logger.Warn("error notice post failed", zap.Error(nerr))
		}
		return fmt.Errorf("post status: %w", err)
	}

	metrics.IncGeneratedStatus()
	a.logger.Info("posted", zap.String("status", status.ID))
	fmt.Println(text)
	return nil
}
