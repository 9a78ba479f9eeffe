package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/flashpad"
	"github.com/aretw0/flashpad/pkg/backup"
)

var (
	exportOutput string
	importMerge  bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every note to a plain-text backup",
	Long: `Export writes every note to a Flash Notepad backup file, named
flash-notepad-<date>.txt by default. Use -o - to write to stdout.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, opts, err := vaultOptions()
		if err != nil {
			return err
		}
		cfg, err := flashpad.Resolve(path, opts...)
		if err != nil {
			return err
		}
		svc, err := flashpad.New(path, opts...)
		if err != nil {
			return fmt.Errorf("failed to open vault: %w", err)
		}

		target := exportOutput
		if target == "" {
			target = backup.FileName(time.Now())
		}

		var buf bytes.Buffer
		n, err := backup.Export(context.Background(), &buf, svc, backup.WithBatchSize(cfg.ExportBatchSize))
		if err != nil {
			return fmt.Errorf("failed to export notes: %w", err)
		}

		if target == "-" {
			_, err := io.Copy(cmd.OutOrStdout(), &buf)
			return err
		}
		if err := os.WriteFile(target, buf.Bytes(), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", target, err)
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d notes to %s\n", n, target)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load notes from a plain-text backup",
	Long: `Import reads a Flash Notepad backup (- for stdin). Categories the backup
mentions but the vault lacks are created. By default the imported notes
replace every existing note; --merge appends them instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}

		svc, err := openService()
		if err != nil {
			return err
		}

		subject := "replace notes from backup"
		if importMerge {
			subject = "merge notes from backup"
		}
		ctx := withReason(context.Background(), flashpad.CommitTypeFeat, "import", subject)

		summary, err := backup.Import(ctx, svc, string(data), backup.ImportOptions{Merge: importMerge})
		if err != nil {
			return fmt.Errorf("failed to import backup: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d notes (%d new categories, %d blocks skipped)\n",
			summary.Notes, summary.CreatedCategories, summary.Skipped)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (- for stdout)")
	importCmd.Flags().BoolVar(&importMerge, "merge", false, "Append to the existing notes instead of replacing them")
}
