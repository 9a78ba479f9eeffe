package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/flashpad/pkg/core"
)

// resetFlags restores every flag to its default; cobra keeps values
// between Execute calls in the same process.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, "flashpad %s", strings.Join(args, " "))
	return out
}

func TestCLI_NotesAndCategories(t *testing.T) {
	t.Setenv("FLASHPAD_VAULT", "")
	vault := filepath.Join(t.TempDir(), "vault")

	out := mustRun(t, "init", "--vault", vault)
	assert.Contains(t, out, "Initialized flashpad vault")
	assert.DirExists(t, filepath.Join(vault, "notes"))

	_, err := run(t, "list", "--vault", filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err, "commands other than init need an existing vault")

	id := strings.TrimSpace(mustRun(t, "new", "--vault", vault))
	require.NotEmpty(t, id)

	mustRun(t, "edit", id, "--vault", vault, "--title", "Shopping", "--content", "milk\neggs")
	out = mustRun(t, "show", id, "--vault", vault)
	assert.Contains(t, out, "# Shopping")
	assert.Contains(t, out, "milk\neggs")

	_, err = run(t, "edit", id, "--vault", vault)
	assert.ErrorIs(t, err, core.ErrValidation)

	mustRun(t, "tag", id, "Work", "--vault", vault)
	out = mustRun(t, "list", "--vault", vault, "--category", "work")
	assert.Contains(t, out, id+"  Shopping  [Work]")

	out = mustRun(t, "search", "EGGS", "--vault", vault)
	assert.Contains(t, out, id)

	catID := strings.TrimSpace(mustRun(t, "category", "create", "Garden", "--vault", vault, "--color", "#00FF00"))
	require.True(t, strings.HasPrefix(catID, "garden-"), catID)

	_, err = run(t, "category", "create", "garden", "--vault", vault)
	assert.ErrorIs(t, err, core.ErrDuplicateName)

	mustRun(t, "tag", id, catID, "--vault", vault)
	out = mustRun(t, "category", "update", catID, "--vault", vault, "--name", "Yard")
	assert.Contains(t, out, "Yard  #00FF00")

	out = mustRun(t, "category", "list", "--vault", vault)
	assert.Contains(t, out, catID+"  Yard  #00FF00  (1 notes)")

	out = mustRun(t, "category", "delete", "yard", "--vault", vault)
	assert.Contains(t, out, "(1 notes updated)")

	mustRun(t, "untag", id, "work", "--vault", vault)
	out = mustRun(t, "show", id, "--vault", vault, "--json")
	assert.Contains(t, out, `"categories": []`)

	mustRun(t, "delete", id, "--vault", vault)
	_, err = run(t, "show", id, "--vault", vault)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCLI_ExportImport(t *testing.T) {
	t.Setenv("FLASHPAD_VAULT", "")
	dir := t.TempDir()
	source := filepath.Join(dir, "source")
	target := filepath.Join(dir, "target")
	file := filepath.Join(dir, "backup.txt")

	mustRun(t, "init", "--vault", source)
	id := strings.TrimSpace(mustRun(t, "new", "--vault", source))
	mustRun(t, "edit", id, "--vault", source, "--title", "Plants", "--content", "water daily")
	mustRun(t, "category", "create", "Garden", "--vault", source, "--color", "#00FF00")
	mustRun(t, "tag", id, "garden", "--vault", source)

	mustRun(t, "export", "--vault", source, "-o", file)
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "NOTES: 2")
	assert.Contains(t, string(data), "CATEGORIES: Garden:#00FF00")

	mustRun(t, "init", "--vault", target)
	out := mustRun(t, "import", file, "--vault", target, "--merge")
	assert.Contains(t, out, "Imported 2 notes (1 new categories, 0 blocks skipped)")

	out = mustRun(t, "list", "--vault", target)
	assert.Equal(t, 3, strings.Count(out, "\n"), "default note kept by --merge")

	out = mustRun(t, "import", file, "--vault", target)
	assert.Contains(t, out, "Imported 2 notes (0 new categories")
	out = mustRun(t, "list", "--vault", target, "--category", "Garden")
	assert.Contains(t, out, "Plants")
	out = mustRun(t, "list", "--vault", target)
	assert.Equal(t, 2, strings.Count(out, "\n"), "replaced")

	out = mustRun(t, "export", "--vault", target, "-o", "-")
	assert.True(t, strings.HasPrefix(out, "FLASH NOTEPAD BACKUP - "))
}

func TestCLI_MemoryAndReadOnly(t *testing.T) {
	t.Setenv("FLASHPAD_VAULT", "")

	out := mustRun(t, "list", "--memory", "--json")
	assert.Contains(t, out, `"title": "Untitled Note"`)

	vault := filepath.Join(t.TempDir(), "vault")
	mustRun(t, "init", "--vault", vault)
	_, err := run(t, "category", "create", "Blocked", "--vault", vault, "--read-only")
	assert.ErrorIs(t, err, core.ErrReadOnly)

	_, err = run(t, "init", "--memory")
	assert.Error(t, err)
}

func TestCLI_StatusAndVersion(t *testing.T) {
	t.Setenv("FLASHPAD_VAULT", "")
	vault := filepath.Join(t.TempDir(), "vault")
	mustRun(t, "init", "--vault", vault)

	out := mustRun(t, "status", "--vault", vault)
	assert.Contains(t, out, `"repository_type": "fs"`)
	assert.Contains(t, out, `"SystemDir": ".flashpad"`)

	out = mustRun(t, "version")
	assert.True(t, strings.HasPrefix(out, "flashpad version "))
}

type fakeWatcher struct {
	events []core.Event
}

func (f fakeWatcher) Watch(ctx context.Context, pattern string) (<-chan core.Event, error) {
	ch := make(chan core.Event, len(f.events))
	for _, e := range f.events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

func TestWatchVault_PrintsEvents(t *testing.T) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})

	w := fakeWatcher{events: []core.Event{
		{Type: core.EventCreate, Collection: core.CollectionNotes, ID: "n1"},
		{Type: core.EventModify, Collection: core.CollectionCategories},
	}}
	require.NoError(t, watchVault(context.Background(), cmd, w, ""))
	assert.Equal(t, "CREATE notes/n1\nMODIFY categories\n", out.String())
}
