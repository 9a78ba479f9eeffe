package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/flashpad"
)

var initVersioning bool

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a flashpad vault",
	Long: `Create the vault layout (notes/, categories.yaml, .flashpad/) in the vault
directory. With --versioning the vault also becomes a git repository and the
choice is recorded in flashpad.yaml.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if memoryMode || readOnly {
			return fmt.Errorf("init needs a writable filesystem vault")
		}

		path, opts, err := vaultOptions(flashpad.WithAutoInit(true), flashpad.WithMustExist(false))
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("versioning") {
			opts = append(opts, flashpad.WithVersioning(initVersioning))
		}

		svc, err := flashpad.New(path, opts...)
		if err != nil {
			return fmt.Errorf("failed to initialize vault: %w", err)
		}

		cfg, err := flashpad.Resolve(path, opts...)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("versioning") {
			settings, err := flashpad.LoadSettings(cfg.Path)
			if err != nil {
				return err
			}
			settings.Versioning = &initVersioning
			if err := flashpad.SaveSettings(cfg.Path, settings); err != nil {
				return err
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Initialized flashpad vault in %s (%d notes, versioned: %v)\n",
			cfg.Path, len(svc.AllNotes()), cfg.Versioned)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initVersioning, "versioning", false, "Track every change in git")
}
