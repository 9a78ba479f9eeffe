package core

import "context"

// NoteStore is the "notes" record collection keyed by Note.ID.
type NoteStore interface {
	// ListNotes returns every stored note. Order is adapter defined.
	ListNotes(ctx context.Context) ([]Note, error)

	// GetNote returns the note or an error wrapping ErrNotFound.
	GetNote(ctx context.Context, id string) (Note, error)

	// InsertNote stores a new note. Inserting an existing id is an error.
	InsertNote(ctx context.Context, n Note) error

	// BulkInsertNotes stores several new notes.
	BulkInsertNotes(ctx context.Context, notes []Note) error

	// UpdateNote merges the patch into the stored note.
	UpdateNote(ctx context.Context, id string, patch NotePatch) error

	// DeleteNote removes a note by id.
	DeleteNote(ctx context.Context, id string) error

	// NotesWithCategory returns all notes whose categories contain categoryID.
	NotesWithCategory(ctx context.Context, categoryID string) ([]Note, error)
}

// CategoryStore is the "categories" record collection keyed by Category.ID.
type CategoryStore interface {
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, id string) (Category, error)
	InsertCategory(ctx context.Context, c Category) error
	BulkInsertCategories(ctx context.Context, categories []Category) error
	UpdateCategory(ctx context.Context, id string, patch CategoryPatch) error
	DeleteCategory(ctx context.Context, id string) error
}

// Repository defines the contract for storing and retrieving notes and
// categories. Adhering to this interface keeps the core independent of the
// underlying storage mechanism.
type Repository interface {
	NoteStore
	CategoryStore

	// Initialize ensures the underlying storage is ready (directories, git init).
	Initialize(ctx context.Context) error
}

type contextKey string

// ChangeReasonKey is the context key for passing specific change reasons (commit messages) during writes.
const ChangeReasonKey contextKey = "change_reason"

// Transaction defines the contract for a unit of work spanning both
// collections. Staged changes become visible only on Commit.
type Transaction interface {
	// PutNote stages a full note write (insert or replace).
	PutNote(ctx context.Context, n Note) error

	// DeleteNote stages a note removal.
	DeleteNote(ctx context.Context, id string) error

	// PutCategory stages a full category write.
	PutCategory(ctx context.Context, c Category) error

	// DeleteCategory stages a category removal.
	DeleteCategory(ctx context.Context, id string) error

	// Commit applies all staged changes atomically.
	Commit(ctx context.Context, changeReason string) error

	// Rollback discards all staged changes.
	Rollback(ctx context.Context) error
}

// TransactionalRepository extends Repository to support transactions.
type TransactionalRepository interface {
	Repository

	// Begin starts a new transaction.
	Begin(ctx context.Context) (Transaction, error)
}

// Watchable is implemented by repositories that can report external changes.
type Watchable interface {
	// Watch emits events for records whose vault path matches pattern.
	Watch(ctx context.Context, pattern string) (<-chan Event, error)
}
