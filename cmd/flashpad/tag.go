package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/flashpad"
)

var tagCmd = &cobra.Command{
	Use:   "tag <note> <category>",
	Short: "Add a category to a note",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService()
		if err != nil {
			return err
		}
		note, err := lookupNote(svc, args[0])
		if err != nil {
			return err
		}
		cat, err := lookupCategory(svc, args[1])
		if err != nil {
			return err
		}

		ctx := withReason(context.Background(), flashpad.CommitTypeFeat, "notes", fmt.Sprintf("tag %s with %s", note.ID, cat.ID))
		if err := svc.AddCategoryToNote(ctx, note.ID, cat.ID); err != nil {
			return fmt.Errorf("failed to tag note: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Note %s tagged with %s\n", note.ID, cat.Name)
		return nil
	},
}

var untagCmd = &cobra.Command{
	Use:   "untag <note> <category>",
	Short: "Remove a category from a note",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService()
		if err != nil {
			return err
		}
		note, err := lookupNote(svc, args[0])
		if err != nil {
			return err
		}

		// Untagging a category that no longer exists is still allowed.
		catID := args[1]
		if cat, err := lookupCategory(svc, args[1]); err == nil {
			catID = cat.ID
		}

		ctx := withReason(context.Background(), flashpad.CommitTypeFeat, "notes", fmt.Sprintf("untag %s from %s", catID, note.ID))
		if err := svc.RemoveCategoryFromNote(ctx, note.ID, catID); err != nil {
			return fmt.Errorf("failed to untag note: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Category %s removed from note %s\n", catID, note.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tagCmd, untagCmd)
}
