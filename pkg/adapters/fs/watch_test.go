package fs_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/flashpad/pkg/adapters/fs"
	"github.com/aretw0/flashpad/pkg/core"
)

func nextEvent(t *testing.T, events <-chan core.Event) core.Event {
	t.Helper()
	select {
	case e, ok := <-events:
		require.True(t, ok, "events channel closed early")
		return e
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
		return core.Event{}
	}
}

func TestWatch_NoteLifecycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, _ := setupRepo(t)
	events, err := repo.Watch(ctx, "notes/**")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return repo.State().(fs.RepositoryState).WatcherActive
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, repo.InsertNote(ctx, core.Note{ID: "n1", Title: "hello"}))
	e := nextEvent(t, events)
	assert.Equal(t, core.EventCreate, e.Type)
	assert.Equal(t, core.CollectionNotes, e.Collection)
	assert.Equal(t, "n1", e.ID)

	require.NoError(t, repo.UpdateNote(ctx, "n1", core.NotePatch{Content: core.StringPtr("body")}))
	e = nextEvent(t, events)
	assert.Equal(t, core.EventModify, e.Type)
	assert.Equal(t, "n1", e.ID)

	// Filtered out by the pattern.
	require.NoError(t, repo.InsertCategory(ctx, core.Category{ID: "c1", Name: "C", Color: "#000"}))

	require.NoError(t, repo.DeleteNote(ctx, "n1"))
	e = nextEvent(t, events)
	assert.Equal(t, core.EventDelete, e.Type)
	assert.Equal(t, "n1", e.ID)
	assert.Equal(t, "DELETE notes/n1", e.String())

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond, "channel closes after cancel")
}

func TestWatch_Categories(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, _ := setupRepo(t)
	events, err := repo.Watch(ctx, "categories.yaml")
	require.NoError(t, err)

	require.NoError(t, repo.InsertNote(ctx, core.Note{ID: "ignored"}))
	require.NoError(t, repo.InsertCategory(ctx, core.Category{ID: "c1", Name: "C", Color: "#000"}))

	e := nextEvent(t, events)
	assert.Equal(t, core.CollectionCategories, e.Collection)
	assert.Equal(t, core.EventModify, e.Type)
	assert.Empty(t, e.ID)
}

func TestWatch_InvalidPattern(t *testing.T) {
	repo, _ := setupRepo(t)
	_, err := repo.Watch(context.Background(), "notes/[")
	assert.ErrorIs(t, err, core.ErrValidation)
}
