package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/flashpad"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of flashpad",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "flashpad version %s\n", strings.TrimSpace(flashpad.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
