package core_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/flashpad/pkg/adapters/memory"
	"github.com/aretw0/flashpad/pkg/core"
)

var errDisk = errors.New("disk on fire")

// flakyRepo embeds the repository interface only, so it deliberately does
// NOT implement core.TransactionalRepository and exercises the sequential
// fallback paths.
type flakyRepo struct {
	core.Repository
	failList       bool
	failInsert     bool
	failUpdateAt   int // fail the n-th UpdateNote call (1-based), 0 = never
	failDeleteCat  bool
	failDeleteNote bool
	updates        int
}

func newFlakyRepo() *flakyRepo {
	return &flakyRepo{Repository: memory.NewRepository()}
}

func (f *flakyRepo) ListNotes(ctx context.Context) ([]core.Note, error) {
	if f.failList {
		return nil, errDisk
	}
	return f.Repository.ListNotes(ctx)
}

func (f *flakyRepo) InsertNote(ctx context.Context, n core.Note) error {
	if f.failInsert {
		return errDisk
	}
	return f.Repository.InsertNote(ctx, n)
}

func (f *flakyRepo) UpdateNote(ctx context.Context, id string, patch core.NotePatch) error {
	f.updates++
	if f.failUpdateAt > 0 && f.updates == f.failUpdateAt {
		return errDisk
	}
	return f.Repository.UpdateNote(ctx, id, patch)
}

func (f *flakyRepo) DeleteNote(ctx context.Context, id string) error {
	if f.failDeleteNote {
		return errDisk
	}
	return f.Repository.DeleteNote(ctx, id)
}

func (f *flakyRepo) DeleteCategory(ctx context.Context, id string) error {
	if f.failDeleteCat {
		return errDisk
	}
	return f.Repository.DeleteCategory(ctx, id)
}

// failingCommitRepo is transactional but every commit fails.
type failingCommitRepo struct {
	*memory.Repository
}

func (r failingCommitRepo) Begin(ctx context.Context) (core.Transaction, error) {
	tx, err := r.Repository.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return failingCommitTx{tx}, nil
}

type failingCommitTx struct {
	core.Transaction
}

func (t failingCommitTx) Commit(ctx context.Context, reason string) error {
	_ = t.Transaction.Rollback(ctx)
	return errDisk
}

func fixedClock() func() time.Time {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("note-%d", n)
	}
}

func newService(t *testing.T, repo core.Repository) *core.Service {
	t.Helper()
	svc := core.NewService(repo, core.WithClock(fixedClock()), core.WithIDGenerator(sequentialIDs()))
	require.NoError(t, svc.Init(context.Background()))
	return svc
}

func seedNotes(t *testing.T, repo core.Repository, notes ...core.Note) {
	t.Helper()
	require.NoError(t, repo.BulkInsertNotes(context.Background(), notes))
}

func TestService_Init(t *testing.T) {
	t.Run("Empty Vault Gets Defaults", func(t *testing.T) {
		repo := memory.NewRepository()
		svc := newService(t, repo)

		notes := svc.AllNotes()
		require.Len(t, notes, 1)
		assert.Equal(t, core.DefaultNoteTitle, notes[0].Title)
		assert.Equal(t, "2024-01-01T00:00:00.000Z", notes[0].CreatedAt)
		assert.NotNil(t, notes[0].Categories)

		active, ok := svc.ActiveNote()
		require.True(t, ok)
		assert.Equal(t, notes[0].ID, active.ID)

		cats, err := repo.ListCategories(context.Background())
		require.NoError(t, err)
		assert.Equal(t, core.DefaultCategories(), cats)
	})

	t.Run("Orders Newest First And Normalizes Categories", func(t *testing.T) {
		repo := memory.NewRepository()
		seedNotes(t, repo,
			core.Note{ID: "old", Title: "old", CreatedAt: "2023-01-01T00:00:00.000Z"},
			core.Note{ID: "new", Title: "new", CreatedAt: "2024-06-01T00:00:00.000Z"},
			core.Note{ID: "mid", Title: "mid", CreatedAt: "2023-06-01T00:00:00Z"},
		)
		svc := newService(t, repo)

		var ids []string
		for _, n := range svc.AllNotes() {
			ids = append(ids, n.ID)
			assert.NotNil(t, n.Categories)
		}
		assert.Equal(t, []string{"new", "mid", "old"}, ids)
		assert.Equal(t, "new", svc.ActiveNoteID())
	})

	t.Run("Unreadable Storage Degrades To Empty", func(t *testing.T) {
		repo := newFlakyRepo()
		repo.failList = true
		repo.failInsert = true

		svc := core.NewService(repo)
		require.NoError(t, svc.Init(context.Background()))

		assert.Empty(t, svc.AllNotes())
		_, ok := svc.ActiveNote()
		assert.False(t, ok)
	})
}

func TestService_CreateNote(t *testing.T) {
	repo := memory.NewRepository()
	svc := newService(t, repo)
	ctx := context.Background()

	n, err := svc.CreateNote(ctx)
	require.NoError(t, err)

	assert.Equal(t, "note-2", n.ID)
	assert.Equal(t, core.DefaultNoteTitle, n.Title)
	assert.Empty(t, n.Content)
	assert.Equal(t, n.ID, svc.AllNotes()[0].ID, "new note goes first")
	assert.Equal(t, n.ID, svc.ActiveNoteID())

	stored, err := repo.GetNote(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, n, stored)
}

func TestService_CreateNote_StorageFailure(t *testing.T) {
	repo := newFlakyRepo()
	svc := newService(t, repo)
	before := svc.AllNotes()

	repo.failInsert = true
	_, err := svc.CreateNote(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStorage)
	assert.ErrorIs(t, err, errDisk)

	assert.Equal(t, before, svc.AllNotes())
	assert.Equal(t, before[0].ID, svc.ActiveNoteID())
}

func TestService_UpdateNote(t *testing.T) {
	repo := memory.NewRepository()
	svc := newService(t, repo)
	ctx := context.Background()
	id := svc.ActiveNoteID()
	created := svc.AllNotes()[0].CreatedAt

	err := svc.UpdateNote(ctx, id, core.NotePatch{Title: core.StringPtr("Shopping")})
	require.NoError(t, err)
	err = svc.UpdateNote(ctx, id, core.NotePatch{Content: core.StringPtr("milk\neggs")})
	require.NoError(t, err)

	got, ok := svc.GetNote(id)
	require.True(t, ok)
	assert.Equal(t, "Shopping", got.Title, "title survives a content-only patch")
	assert.Equal(t, "milk\neggs", got.Content)
	assert.Equal(t, created, got.CreatedAt)

	stored, err := repo.GetNote(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, got, stored)

	t.Run("Unknown Id Is Ignored", func(t *testing.T) {
		assert.NoError(t, svc.UpdateNote(ctx, "nope", core.NotePatch{Title: core.StringPtr("x")}))
	})

	t.Run("Empty Patch Is Rejected", func(t *testing.T) {
		assert.ErrorIs(t, svc.UpdateNote(ctx, id, core.NotePatch{}), core.ErrValidation)
	})

	t.Run("Categories Are Deduplicated", func(t *testing.T) {
		err := svc.UpdateNote(ctx, id, core.NotePatch{Categories: core.SlicePtr([]string{"work", "work", "ideas"})})
		require.NoError(t, err)
		got, _ := svc.GetNote(id)
		assert.Equal(t, []string{"work", "ideas"}, got.Categories)
	})

	t.Run("Unknown Category Is Rejected", func(t *testing.T) {
		err := svc.UpdateNote(ctx, id, core.NotePatch{Categories: core.SlicePtr([]string{"ghost"})})
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
}

func TestService_UpdateNote_StorageFailure(t *testing.T) {
	repo := newFlakyRepo()
	svc := newService(t, repo)
	id := svc.ActiveNoteID()

	repo.failUpdateAt = repo.updates + 1
	err := svc.UpdateNote(context.Background(), id, core.NotePatch{Title: core.StringPtr("changed")})
	require.ErrorIs(t, err, core.ErrStorage)

	got, _ := svc.GetNote(id)
	assert.Equal(t, core.DefaultNoteTitle, got.Title)
}

func TestService_DeleteNote(t *testing.T) {
	ctx := context.Background()

	t.Run("Active Moves To First Remaining", func(t *testing.T) {
		repo := memory.NewRepository()
		seedNotes(t, repo,
			core.Note{ID: "A", CreatedAt: "2024-03-01T00:00:00.000Z"},
			core.Note{ID: "B", CreatedAt: "2024-02-01T00:00:00.000Z"},
			core.Note{ID: "C", CreatedAt: "2024-01-01T00:00:00.000Z"},
		)
		svc := newService(t, repo)
		require.Equal(t, "A", svc.ActiveNoteID())

		require.NoError(t, svc.DeleteNote(ctx, "A"))
		assert.Equal(t, "B", svc.ActiveNoteID())

		_, err := repo.GetNote(ctx, "A")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("Non Active Delete Keeps Pointer", func(t *testing.T) {
		repo := memory.NewRepository()
		seedNotes(t, repo,
			core.Note{ID: "A", CreatedAt: "2024-03-01T00:00:00.000Z"},
			core.Note{ID: "B", CreatedAt: "2024-02-01T00:00:00.000Z"},
		)
		svc := newService(t, repo)

		require.NoError(t, svc.DeleteNote(ctx, "B"))
		assert.Equal(t, "A", svc.ActiveNoteID())
	})

	t.Run("Last Note Leaves Pointer Empty", func(t *testing.T) {
		svc := newService(t, memory.NewRepository())
		require.NoError(t, svc.DeleteNote(ctx, svc.ActiveNoteID()))

		assert.Empty(t, svc.AllNotes())
		assert.Empty(t, svc.ActiveNoteID())
		_, ok := svc.ActiveNote()
		assert.False(t, ok)
	})

	t.Run("Storage Failure Keeps Note", func(t *testing.T) {
		repo := newFlakyRepo()
		svc := newService(t, repo)
		id := svc.ActiveNoteID()

		repo.failDeleteNote = true
		require.ErrorIs(t, svc.DeleteNote(ctx, id), core.ErrStorage)
		assert.Len(t, svc.AllNotes(), 1)
		assert.Equal(t, id, svc.ActiveNoteID())
	})
}

func TestService_NoteCategories(t *testing.T) {
	repo := memory.NewRepository()
	svc := newService(t, repo)
	ctx := context.Background()
	id := svc.ActiveNoteID()

	for i := 0; i < 5; i++ {
		require.NoError(t, svc.AddCategoryToNote(ctx, id, "work"))
	}
	got, _ := svc.GetNote(id)
	assert.Equal(t, []string{"work"}, got.Categories)

	stored, err := repo.GetNote(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"work"}, stored.Categories)

	assert.ErrorIs(t, svc.AddCategoryToNote(ctx, id, "ghost"), core.ErrNotFound)
	assert.NoError(t, svc.AddCategoryToNote(ctx, "missing-note", "work"))

	require.NoError(t, svc.AddCategoryToNote(ctx, id, "ideas"))
	assert.Len(t, svc.NotesByCategory("ideas"), 1)
	assert.Equal(t, 1, svc.NotesCountForCategory("work"))

	require.NoError(t, svc.RemoveCategoryFromNote(ctx, id, "work"))
	require.NoError(t, svc.RemoveCategoryFromNote(ctx, id, "work"))
	got, _ = svc.GetNote(id)
	assert.Equal(t, []string{"ideas"}, got.Categories)
	assert.Empty(t, svc.NotesByCategory("work"))
}

func TestService_SearchNotes(t *testing.T) {
	repo := memory.NewRepository()
	seedNotes(t, repo,
		core.Note{ID: "1", Title: "Shopping List", Content: "milk", CreatedAt: "2024-03-01T00:00:00.000Z"},
		core.Note{ID: "2", Title: "Ideas", Content: "Build a MILK carton robot", CreatedAt: "2024-02-01T00:00:00.000Z"},
		core.Note{ID: "3", Title: "Todo", Content: "call mom", CreatedAt: "2024-01-01T00:00:00.000Z"},
	)
	svc := newService(t, repo)

	ids := func(notes []core.Note) []string {
		var out []string
		for _, n := range notes {
			out = append(out, n.ID)
		}
		return out
	}

	assert.Equal(t, []string{"1", "2"}, ids(svc.SearchNotes("Milk")))
	assert.Equal(t, []string{"1"}, ids(svc.SearchNotes("shopping")))
	assert.Equal(t, []string{"1", "2", "3"}, ids(svc.SearchNotes("")))
	assert.Equal(t, []string{"1", "2", "3"}, ids(svc.SearchNotes("   ")))
	assert.Empty(t, svc.SearchNotes("zebra"))
}

func TestService_CreateCategory(t *testing.T) {
	svc := newService(t, memory.NewRepository())
	ctx := context.Background()

	cat, err := svc.CreateCategory(ctx, "  Reading List ", "#123456")
	require.NoError(t, err)
	assert.Equal(t, "Reading List", cat.Name)
	assert.Equal(t, fmt.Sprintf("reading-list-%d", fixedClock()().UnixMilli()), cat.ID)

	_, err = svc.CreateCategory(ctx, "READING LIST", "#000000")
	assert.ErrorIs(t, err, core.ErrDuplicateName)

	_, err = svc.CreateCategory(ctx, "", "#000000")
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = svc.CreateCategory(ctx, "Music", "")
	assert.ErrorIs(t, err, core.ErrValidation)

	// Same slug and timestamp still yields a unique id.
	other, err := svc.CreateCategory(ctx, "Reading-List", "#111111")
	require.NoError(t, err)
	assert.NotEqual(t, cat.ID, other.ID)

	found, ok := svc.CategoryByName("reading list")
	require.True(t, ok)
	assert.Equal(t, cat, found)

	_, ok = svc.CategoryByID("nope")
	assert.False(t, ok)
}

func TestService_UpdateCategory(t *testing.T) {
	repo := memory.NewRepository()
	svc := newService(t, repo)
	ctx := context.Background()

	_, err := svc.UpdateCategory(ctx, "ghost", core.CategoryPatch{Name: core.StringPtr("x")})
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = svc.UpdateCategory(ctx, "work", core.CategoryPatch{})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = svc.UpdateCategory(ctx, "work", core.CategoryPatch{Name: core.StringPtr("personal")})
	assert.ErrorIs(t, err, core.ErrDuplicateName)

	updated, err := svc.UpdateCategory(ctx, "work", core.CategoryPatch{Name: core.StringPtr("WORK")})
	require.NoError(t, err, "renaming to a case variant of itself is allowed")
	assert.Equal(t, "WORK", updated.Name)
	assert.Equal(t, "#4285F4", updated.Color)

	updated, err = svc.UpdateCategory(ctx, "work", core.CategoryPatch{Color: core.StringPtr("#000000")})
	require.NoError(t, err)
	assert.Equal(t, core.Category{ID: "work", Name: "WORK", Color: "#000000"}, updated)

	stored, err := repo.GetCategory(ctx, "work")
	require.NoError(t, err)
	assert.Equal(t, updated, stored)
}

func TestService_DeleteCategory(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T, repo core.Repository) *core.Service {
		seedNotes(t, repo,
			core.Note{ID: "a", Categories: []string{"work", "ideas"}, CreatedAt: "2024-03-01T00:00:00.000Z"},
			core.Note{ID: "b", Categories: []string{"work"}, CreatedAt: "2024-02-01T00:00:00.000Z"},
			core.Note{ID: "c", Categories: []string{"ideas"}, CreatedAt: "2024-01-01T00:00:00.000Z"},
		)
		return newService(t, repo)
	}

	t.Run("Transactional", func(t *testing.T) {
		repo := memory.NewRepository()
		svc := setup(t, repo)

		summary, err := svc.DeleteCategory(ctx, "work")
		require.NoError(t, err)
		assert.Equal(t, 2, summary.AffectedNotes)
		assert.Equal(t, "Work", summary.Category.Name)

		assert.Empty(t, svc.NotesByCategory("work"))
		_, ok := svc.CategoryByID("work")
		assert.False(t, ok)

		stored, err := repo.NotesWithCategory(ctx, "work")
		require.NoError(t, err)
		assert.Empty(t, stored)

		a, err := repo.GetNote(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []string{"ideas"}, a.Categories)

		_, err = svc.DeleteCategory(ctx, "work")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("Failed Commit Leaves Everything", func(t *testing.T) {
		repo := failingCommitRepo{memory.NewRepository()}
		svc := setup(t, repo)

		_, err := svc.DeleteCategory(ctx, "work")
		require.ErrorIs(t, err, core.ErrStorage)

		assert.Len(t, svc.NotesByCategory("work"), 2)
		_, ok := svc.CategoryByID("work")
		assert.True(t, ok)

		stored, err := repo.NotesWithCategory(ctx, "work")
		require.NoError(t, err)
		assert.Len(t, stored, 2)
	})

	t.Run("Sequential Fallback", func(t *testing.T) {
		repo := newFlakyRepo()
		svc := setup(t, repo)

		summary, err := svc.DeleteCategory(ctx, "ideas")
		require.NoError(t, err)
		assert.Equal(t, 2, summary.AffectedNotes)

		stored, err := repo.NotesWithCategory(ctx, "ideas")
		require.NoError(t, err)
		assert.Empty(t, stored)
		_, err = repo.GetCategory(ctx, "ideas")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("Sequential Rollback On Category Delete Failure", func(t *testing.T) {
		repo := newFlakyRepo()
		svc := setup(t, repo)
		repo.failDeleteCat = true

		_, err := svc.DeleteCategory(ctx, "work")
		require.ErrorIs(t, err, core.ErrStorage)

		stored, err := repo.NotesWithCategory(ctx, "work")
		require.NoError(t, err)
		assert.Len(t, stored, 2, "stripped notes are restored")
		assert.Len(t, svc.NotesByCategory("work"), 2)
	})

	t.Run("Sequential Rollback On Second Note Failure", func(t *testing.T) {
		repo := newFlakyRepo()
		svc := setup(t, repo)
		repo.failUpdateAt = repo.updates + 2

		_, err := svc.DeleteCategory(ctx, "work")
		require.ErrorIs(t, err, core.ErrStorage)

		a, err := repo.GetNote(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, []string{"work", "ideas"}, a.Categories)
		_, err = repo.GetCategory(ctx, "work")
		assert.NoError(t, err)
	})
}

func TestService_AllCategories_ReseedsWhenEmpty(t *testing.T) {
	svc := newService(t, memory.NewRepository())
	ctx := context.Background()

	for _, c := range core.DefaultCategories() {
		_, err := svc.DeleteCategory(ctx, c.ID)
		require.NoError(t, err)
	}

	cats, err := svc.AllCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, 4)
}

func TestService_ReplaceNotes(t *testing.T) {
	ctx := context.Background()
	incoming := []core.Note{
		{ID: "x", Title: "older", Categories: []string{"work", "ghost"}, CreatedAt: "2020-01-01T00:00:00.000Z"},
		{ID: "y", Title: "newer", CreatedAt: "2021-01-01T00:00:00.000Z"},
	}

	for _, tc := range []struct {
		name string
		repo core.Repository
	}{
		{"Transactional", memory.NewRepository()},
		{"Sequential", newFlakyRepo()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			svc := newService(t, tc.repo)

			require.NoError(t, svc.ReplaceNotes(ctx, incoming))

			notes := svc.AllNotes()
			require.Len(t, notes, 2)
			assert.Equal(t, "y", notes[0].ID)
			assert.Equal(t, "y", svc.ActiveNoteID())
			assert.Equal(t, []string{"work"}, notes[1].Categories, "unknown categories dropped")

			stored, err := tc.repo.ListNotes(ctx)
			require.NoError(t, err)
			assert.Len(t, stored, 2)
		})
	}

	t.Run("Rejects Duplicate Ids", func(t *testing.T) {
		svc := newService(t, memory.NewRepository())
		err := svc.ReplaceNotes(ctx, []core.Note{{ID: "x"}, {ID: "x"}})
		assert.ErrorIs(t, err, core.ErrValidation)
		assert.Len(t, svc.AllNotes(), 1)
	})

	t.Run("Sequential Rollback", func(t *testing.T) {
		repo := newFlakyRepo()
		svc := newService(t, repo)
		original := svc.AllNotes()

		repo.failDeleteNote = true
		err := svc.ReplaceNotes(ctx, incoming)
		require.ErrorIs(t, err, core.ErrStorage)
		assert.Equal(t, original, svc.AllNotes())
	})
}

func TestService_AppendNotes(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, memory.NewRepository())
	existing := svc.ActiveNoteID()

	err := svc.AppendNotes(ctx, []core.Note{
		{ID: "imported", Title: "old one", CreatedAt: "2000-01-01T00:00:00.000Z"},
	})
	require.NoError(t, err)

	notes := svc.AllNotes()
	require.Len(t, notes, 2)
	assert.Equal(t, "imported", notes[1].ID)
	assert.Equal(t, existing, svc.ActiveNoteID())

	err = svc.AppendNotes(ctx, []core.Note{{ID: "imported"}})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestService_SetActiveNote(t *testing.T) {
	repo := memory.NewRepository()
	seedNotes(t, repo,
		core.Note{ID: "A", CreatedAt: "2024-03-01T00:00:00.000Z"},
		core.Note{ID: "B", CreatedAt: "2024-02-01T00:00:00.000Z"},
	)
	svc := newService(t, repo)

	require.NoError(t, svc.SetActiveNote("B"))
	active, ok := svc.ActiveNote()
	require.True(t, ok)
	assert.Equal(t, "B", active.ID)

	assert.ErrorIs(t, svc.SetActiveNote("Z"), core.ErrNotFound)
}

func TestService_State(t *testing.T) {
	svc := newService(t, memory.NewRepository())

	state, ok := svc.State().(core.ServiceState)
	require.True(t, ok)
	assert.Equal(t, 1, state.Notes)
	assert.Equal(t, 4, state.Categories)
	assert.Equal(t, "memory", state.RepositoryType)
	assert.True(t, state.Transactional)
}

func TestService_Watch_Unsupported(t *testing.T) {
	svc := newService(t, memory.NewRepository())
	_, err := svc.Watch(context.Background(), "**")
	assert.Error(t, err)
}
