// Command fedibooks is an ebooks bot for the fediverse: it ingests the
// outboxes of every account the bot follows, trains a word-chain model
// on them, and posts (and replies) in their collective voice.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fedibooks",
		Short:         "An ebooks bot for Mastodon-compatible instances",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")

	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newGenCmd())
	cmd.AddCommand(newReplyCmd())
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
