package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/flashpad/pkg/adapters/lifecycle"
	"github.com/aretw0/flashpad/pkg/core"
)

var watchCmd = &cobra.Command{
	Use:   "watch [pattern]",
	Short: "Print changes to the vault as they happen",
	Long: `Watch prints one line per change (CREATE, MODIFY or DELETE) until
interrupted. The optional glob pattern is matched against vault-relative
paths, e.g. "notes/**" or "categories.yaml".`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern := ""
		if len(args) == 1 {
			pattern = args[0]
		}

		svc, err := openService()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return watchVault(ctx, cmd, svc, pattern)
	},
}

type watcher interface {
	Watch(ctx context.Context, pattern string) (<-chan core.Event, error)
}

func watchVault(ctx context.Context, cmd *cobra.Command, w watcher, pattern string) error {
	events, err := w.Watch(ctx, pattern)
	if err != nil {
		return fmt.Errorf("failed to watch vault: %w", err)
	}

	source := lifecycle.NewSource(events)
	if err := source.Start(ctx); err != nil {
		return err
	}

	fmt.Fprintln(cmd.ErrOrStderr(), "Watching for changes, press Ctrl+C to stop")
	for e := range source.Events() {
		fmt.Fprintln(cmd.OutOrStdout(), e)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
