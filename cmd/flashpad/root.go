package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/flashpad"
	"github.com/aretw0/flashpad/pkg/core"
)

var (
	verbose    bool
	vaultFlag  string
	memoryMode bool
	readOnly   bool
	message    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "flashpad",
	Short: "Quick notes with categories, stored as Markdown in a local vault",
	Long: `Flashpad keeps short notes and their categories in a local vault:
one Markdown file per note, a categories list, and an optional git history.
Notes can be exported to and imported from a plain-text backup.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&vaultFlag, "vault", "", "Vault directory (default: $FLASHPAD_VAULT, the enclosing vault, or the current directory)")
	rootCmd.PersistentFlags().BoolVar(&memoryMode, "memory", false, "Use a throwaway in-memory vault")
	rootCmd.PersistentFlags().BoolVar(&readOnly, "read-only", false, "Open the vault without allowing writes")
	rootCmd.PersistentFlags().StringVarP(&message, "message", "m", "", "Change reason recorded in the vault history")
}

// vaultOptions builds the options shared by every command.
func vaultOptions(extra ...flashpad.Option) (string, []flashpad.Option, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	path := flashpad.VaultPath(vaultFlag, cwd)
	opts := []flashpad.Option{
		flashpad.WithLogger(slog.Default()),
		flashpad.WithReadOnly(readOnly),
	}
	if memoryMode {
		opts = append(opts, flashpad.WithAdapter("memory"))
	} else {
		opts = append(opts, flashpad.WithMustExist(true))
	}
	return path, append(opts, extra...), nil
}

func openService() (*core.Service, error) {
	path, opts, err := vaultOptions()
	if err != nil {
		return nil, err
	}

	svc, err := flashpad.New(path, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open vault: %w", err)
	}
	return svc, nil
}

// withReason attaches the change reason used for versioned commits: the
// --message flag when given, a conventional message otherwise.
func withReason(ctx context.Context, ctype, scope, subject string) context.Context {
	reason := message
	if reason == "" {
		reason = flashpad.FormatChangeReason(ctype, scope, subject, "")
	}
	return context.WithValue(ctx, core.ChangeReasonKey, reason)
}

// lookupNote resolves a note id, or the active note when id is empty.
func lookupNote(svc *core.Service, id string) (core.Note, error) {
	if id == "" {
		n, ok := svc.ActiveNote()
		if !ok {
			return core.Note{}, fmt.Errorf("%w: vault has no notes", core.ErrNotFound)
		}
		return n, nil
	}
	n, ok := svc.GetNote(id)
	if !ok {
		return core.Note{}, fmt.Errorf("%w: note %q", core.ErrNotFound, id)
	}
	return n, nil
}

// lookupCategory accepts a category id or a (case-insensitive) name.
func lookupCategory(svc *core.Service, ref string) (core.Category, error) {
	if c, ok := svc.CategoryByID(ref); ok {
		return c, nil
	}
	if c, ok := svc.CategoryByName(ref); ok {
		return c, nil
	}
	return core.Category{}, fmt.Errorf("%w: category %q", core.ErrNotFound, ref)
}
