package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/flashpad"
	"github.com/aretw0/flashpad/pkg/core"
)

var (
	listJSON       bool
	listCategory   string
	showJSON       bool
	editTitle      string
	editContent    string
	editContentSrc string
)

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Create an empty note and print its id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService()
		if err != nil {
			return err
		}

		ctx := withReason(context.Background(), flashpad.CommitTypeFeat, "notes", "create note")
		note, err := svc.CreateNote(ctx)
		if err != nil {
			return fmt.Errorf("failed to create note: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), note.ID)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService()
		if err != nil {
			return err
		}

		notes := svc.AllNotes()
		if listCategory != "" {
			cat, err := lookupCategory(svc, listCategory)
			if err != nil {
				return err
			}
			notes = svc.NotesByCategory(cat.ID)
		}

		return printNotes(cmd.OutOrStdout(), svc, notes, listJSON)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find notes whose title or content contains the query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService()
		if err != nil {
			return err
		}
		return printNotes(cmd.OutOrStdout(), svc, svc.SearchNotes(args[0]), listJSON)
	},
}

var showCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Print a note (the active note when no id is given)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService()
		if err != nil {
			return err
		}

		id := ""
		if len(args) == 1 {
			id = args[0]
		}
		note, err := lookupNote(svc, id)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if showJSON {
			encoder := json.NewEncoder(out)
			encoder.SetIndent("", "  ")
			return encoder.Encode(note)
		}

		fmt.Fprintf(out, "# %s\n", note.DisplayTitle())
		fmt.Fprintf(out, "id: %s\ncreated: %s\ncategories: %s\n\n", note.ID, note.CreatedAt, categoryNames(svc, note))
		fmt.Fprintln(out, note.Content)
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change the title and/or content of a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var patch core.NotePatch
		if cmd.Flags().Changed("title") {
			patch.Title = &editTitle
		}
		switch {
		case cmd.Flags().Changed("content") && cmd.Flags().Changed("content-file"):
			return fmt.Errorf("--content and --content-file are mutually exclusive")
		case cmd.Flags().Changed("content"):
			patch.Content = &editContent
		case cmd.Flags().Changed("content-file"):
			data, err := readInput(cmd, editContentSrc)
			if err != nil {
				return err
			}
			content := string(data)
			patch.Content = &content
		}
		if patch.IsEmpty() {
			return fmt.Errorf("%w: nothing to change, use --title, --content or --content-file", core.ErrValidation)
		}

		svc, err := openService()
		if err != nil {
			return err
		}
		note, err := lookupNote(svc, args[0])
		if err != nil {
			return err
		}

		ctx := withReason(context.Background(), flashpad.CommitTypeFeat, "notes", "edit "+note.ID)
		if err := svc.UpdateNote(ctx, note.ID, patch); err != nil {
			return fmt.Errorf("failed to update note: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Note updated: %s\n", note.ID)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a note from the vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService()
		if err != nil {
			return err
		}
		note, err := lookupNote(svc, args[0])
		if err != nil {
			return err
		}

		ctx := withReason(context.Background(), flashpad.CommitTypeFeat, "notes", "delete "+note.ID)
		if err := svc.DeleteNote(ctx, note.ID); err != nil {
			return fmt.Errorf("failed to delete note: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Note deleted: %s\n", note.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(newCmd, listCmd, searchCmd, showCmd, editCmd, deleteCmd)

	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	listCmd.Flags().StringVar(&listCategory, "category", "", "Only notes in this category (id or name)")
	searchCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output in JSON format")

	editCmd.Flags().StringVar(&editTitle, "title", "", "New title")
	editCmd.Flags().StringVar(&editContent, "content", "", "New content")
	editCmd.Flags().StringVar(&editContentSrc, "content-file", "", "Read the new content from a file (- for stdin)")
}

func printNotes(w io.Writer, svc *core.Service, notes []core.Note, asJSON bool) error {
	if asJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(notes)
	}

	for _, n := range notes {
		line := fmt.Sprintf("%s  %s", n.ID, n.DisplayTitle())
		if names := categoryNames(svc, n); names != "" {
			line += "  [" + names + "]"
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func categoryNames(svc *core.Service, n core.Note) string {
	names := make([]string, 0, len(n.Categories))
	for _, id := range n.Categories {
		if c, ok := svc.CategoryByID(id); ok {
			names = append(names, c.Name)
		} else {
			names = append(names, id)
		}
	}
	return strings.Join(names, ", ")
}

// readInput reads a file, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
