package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/flashpad"
	"github.com/aretw0/flashpad/pkg/core"
)

var (
	categoryJSON bool
	createColor  string
	updateName   string
	updateColor  string
)

var categoryCmd = &cobra.Command{
	Use:     "category",
	Aliases: []string{"categories"},
	Short:   "Manage categories",
}

var categoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories with their note counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService()
		if err != nil {
			return err
		}
		cats, err := svc.AllCategories(context.Background())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if categoryJSON {
			encoder := json.NewEncoder(out)
			encoder.SetIndent("", "  ")
			return encoder.Encode(cats)
		}
		for _, c := range cats {
			fmt.Fprintf(out, "%s  %s  %s  (%d notes)\n", c.ID, c.Name, c.Color, svc.NotesCountForCategory(c.ID))
		}
		return nil
	},
}

var categoryCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService()
		if err != nil {
			return err
		}

		ctx := withReason(context.Background(), flashpad.CommitTypeFeat, "categories", "create "+args[0])
		cat, err := svc.CreateCategory(ctx, args[0], createColor)
		if err != nil {
			return fmt.Errorf("failed to create category: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), cat.ID)
		return nil
	},
}

var categoryUpdateCmd = &cobra.Command{
	Use:   "update <category>",
	Short: "Rename and/or recolor a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch core.CategoryPatch
		if cmd.Flags().Changed("name") {
			patch.Name = &updateName
		}
		if cmd.Flags().Changed("color") {
			patch.Color = &updateColor
		}

		svc, err := openService()
		if err != nil {
			return err
		}
		cat, err := lookupCategory(svc, args[0])
		if err != nil {
			return err
		}

		ctx := withReason(context.Background(), flashpad.CommitTypeFeat, "categories", "update "+cat.ID)
		updated, err := svc.UpdateCategory(ctx, cat.ID, patch)
		if err != nil {
			return fmt.Errorf("failed to update category: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Category updated: %s  %s  %s\n", updated.ID, updated.Name, updated.Color)
		return nil
	},
}

var categoryDeleteCmd = &cobra.Command{
	Use:   "delete <category>",
	Short: "Delete a category and remove it from every note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService()
		if err != nil {
			return err
		}
		cat, err := lookupCategory(svc, args[0])
		if err != nil {
			return err
		}

		ctx := withReason(context.Background(), flashpad.CommitTypeFeat, "categories", "delete "+cat.ID)
		summary, err := svc.DeleteCategory(ctx, cat.ID)
		if err != nil {
			return fmt.Errorf("failed to delete category: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Category deleted: %s (%d notes updated)\n", summary.Category.Name, summary.AffectedNotes)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(categoryCmd)
	categoryCmd.AddCommand(categoryListCmd, categoryCreateCmd, categoryUpdateCmd, categoryDeleteCmd)

	categoryListCmd.Flags().BoolVar(&categoryJSON, "json", false, "Output in JSON format")
	categoryCreateCmd.Flags().StringVar(&createColor, "color", core.DefaultCategoryColor, "Category color")
	categoryUpdateCmd.Flags().StringVar(&updateName, "name", "", "New name")
	categoryUpdateCmd.Flags().StringVar(&updateColor, "color", "", "New color")
}
