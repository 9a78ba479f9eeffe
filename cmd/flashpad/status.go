package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/introspection"
	"github.com/spf13/cobra"

	"github.com/aretw0/flashpad"
	"github.com/aretw0/flashpad/pkg/adapters/fs"
	"github.com/aretw0/flashpad/pkg/core"
)

var statusDiagram bool

type statusReport struct {
	Version    string          `json:"version"`
	Config     flashpad.Config `json:"config"`
	Service    any             `json:"service"`
	Repository any             `json:"repository,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the resolved vault configuration and component state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, opts, err := vaultOptions()
		if err != nil {
			return err
		}
		cfg, err := flashpad.Resolve(path, opts...)
		if err != nil {
			return err
		}
		repo, err := flashpad.Init(path, opts...)
		if err != nil {
			return fmt.Errorf("failed to open vault: %w", err)
		}
		svc := core.NewService(repo, core.WithLogger(slog.Default()))
		if err := svc.Init(context.Background()); err != nil {
			return err
		}

		report := statusReport{
			Version: strings.TrimSpace(flashpad.Version),
			Config:  cfg,
			Service: svc.State(),
		}
		if intro, ok := repo.(introspection.Introspectable); ok {
			report.Repository = intro.State()
		}

		out := cmd.OutOrStdout()
		if statusDiagram {
			config := introspection.DefaultDiagramConfig()
			config.SecondaryID = "vault"
			config.SecondaryLabel = "Vault Topology"
			fmt.Fprintln(out, introspection.TreeDiagram(buildStatusTree(report), config))
			return nil
		}

		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusDiagram, "diagram", false, "Print a Mermaid diagram instead of JSON")
}

type statusNode struct {
	Name     string
	Status   string
	Metadata map[string]string
	Children []statusNode
}

// buildStatusTree maps the report onto diagram nodes. Status values must
// match the classes of introspection.DefaultStyles().
func buildStatusTree(r statusReport) statusNode {
	svcState, _ := r.Service.(core.ServiceState)

	repoNode := statusNode{
		Name:   "Repository",
		Status: "running",
		Metadata: map[string]string{
			"type":      svcState.RepositoryType,
			"read_only": fmt.Sprintf("%v", r.Config.ReadOnly),
		},
	}
	if st, ok := r.Repository.(fs.RepositoryState); ok {
		watcher := "suspended"
		if st.WatcherActive {
			watcher = "running"
		}
		repoNode.Metadata["path"] = st.Path
		repoNode.Metadata["versioned"] = fmt.Sprintf("%v", st.Versioned)
		repoNode.Children = []statusNode{
			{Name: "Index", Status: "running", Metadata: map[string]string{"entries": fmt.Sprintf("%d", st.IndexSize)}},
			{Name: "Watcher", Status: watcher, Metadata: map[string]string{"type": "goroutine"}},
		}
	}

	return statusNode{
		Name:   "Service",
		Status: "running",
		Metadata: map[string]string{
			"notes":      fmt.Sprintf("%d", svcState.Notes),
			"categories": fmt.Sprintf("%d", svcState.Categories),
			"active":     svcState.ActiveNoteID,
		},
		Children: []statusNode{repoNode},
	}
}
