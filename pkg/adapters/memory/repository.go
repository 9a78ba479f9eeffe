// Package memory provides an in-process core.Repository. It backs tests and
// throwaway sessions where nothing should touch the disk.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/introspection"

	"github.com/aretw0/flashpad/pkg/core"
)

type state struct {
	notes      map[string]core.Note
	noteOrder  []string
	categories map[string]core.Category
	catOrder   []string
}

func newState() *state {
	return &state{
		notes:      make(map[string]core.Note),
		categories: make(map[string]core.Category),
	}
}

func (s *state) clone() *state {
	c := &state{
		notes:      make(map[string]core.Note, len(s.notes)),
		noteOrder:  append([]string(nil), s.noteOrder...),
		categories: make(map[string]core.Category, len(s.categories)),
		catOrder:   append([]string(nil), s.catOrder...),
	}
	for k, v := range s.notes {
		c.notes[k] = v.Clone()
	}
	for k, v := range s.categories {
		c.categories[k] = v
	}
	return c
}

func (s *state) putNote(n core.Note) {
	if _, ok := s.notes[n.ID]; !ok {
		s.noteOrder = append(s.noteOrder, n.ID)
	}
	n = n.Clone()
	s.notes[n.ID] = n
}

func (s *state) deleteNote(id string) {
	delete(s.notes, id)
	s.noteOrder = remove(s.noteOrder, id)
}

func (s *state) putCategory(c core.Category) {
	if _, ok := s.categories[c.ID]; !ok {
		s.catOrder = append(s.catOrder, c.ID)
	}
	s.categories[c.ID] = c
}

func (s *state) deleteCategory(id string) {
	delete(s.categories, id)
	s.catOrder = remove(s.catOrder, id)
}

// Repository is a map-backed core.TransactionalRepository. Records keep
// their insertion order.
type Repository struct {
	mu    sync.RWMutex
	state *state
}

// NewRepository creates an empty in-memory repository.
func NewRepository() *Repository {
	return &Repository{state: newState()}
}

// Initialize is a no-op.
func (r *Repository) Initialize(ctx context.Context) error { return nil }

// --- Notes ---

func (r *Repository) ListNotes(ctx context.Context) ([]core.Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.Note, 0, len(r.state.noteOrder))
	for _, id := range r.state.noteOrder {
		out = append(out, r.state.notes[id].Clone())
	}
	return out, nil
}

func (r *Repository) GetNote(ctx context.Context, id string) (core.Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.state.notes[id]
	if !ok {
		return core.Note{}, fmt.Errorf("%w: note %q", core.ErrNotFound, id)
	}
	return n.Clone(), nil
}

func (r *Repository) InsertNote(ctx context.Context, n core.Note) error {
	return r.BulkInsertNotes(ctx, []core.Note{n})
}

func (r *Repository) BulkInsertNotes(ctx context.Context, notes []core.Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(notes))
	for _, n := range notes {
		if !core.ValidID(n.ID) {
			return fmt.Errorf("%w: invalid note id %q", core.ErrValidation, n.ID)
		}
		if _, ok := r.state.notes[n.ID]; ok || seen[n.ID] {
			return fmt.Errorf("note %q already exists", n.ID)
		}
		seen[n.ID] = true
	}
	for _, n := range notes {
		r.state.putNote(normalize(n))
	}
	return nil
}

func (r *Repository) UpdateNote(ctx context.Context, id string, patch core.NotePatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.state.notes[id]
	if !ok {
		return fmt.Errorf("%w: note %q", core.ErrNotFound, id)
	}
	r.state.notes[id] = patch.Apply(n)
	return nil
}

func (r *Repository) DeleteNote(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.state.notes[id]; !ok {
		return fmt.Errorf("%w: note %q", core.ErrNotFound, id)
	}
	r.state.deleteNote(id)
	return nil
}

func (r *Repository) NotesWithCategory(ctx context.Context, categoryID string) ([]core.Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []core.Note
	for _, id := range r.state.noteOrder {
		if n := r.state.notes[id]; n.HasCategory(categoryID) {
			out = append(out, n.Clone())
		}
	}
	return out, nil
}

// --- Categories ---

func (r *Repository) ListCategories(ctx context.Context) ([]core.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.Category, 0, len(r.state.catOrder))
	for _, id := range r.state.catOrder {
		out = append(out, r.state.categories[id])
	}
	return out, nil
}

func (r *Repository) GetCategory(ctx context.Context, id string) (core.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.state.categories[id]
	if !ok {
		return core.Category{}, fmt.Errorf("%w: category %q", core.ErrNotFound, id)
	}
	return c, nil
}

func (r *Repository) InsertCategory(ctx context.Context, c core.Category) error {
	return r.BulkInsertCategories(ctx, []core.Category{c})
}

func (r *Repository) BulkInsertCategories(ctx context.Context, categories []core.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(categories))
	for _, c := range categories {
		if !core.ValidID(c.ID) {
			return fmt.Errorf("%w: invalid category id %q", core.ErrValidation, c.ID)
		}
		if _, ok := r.state.categories[c.ID]; ok || seen[c.ID] {
			return fmt.Errorf("category %q already exists", c.ID)
		}
		seen[c.ID] = true
	}
	for _, c := range categories {
		r.state.putCategory(c)
	}
	return nil
}

func (r *Repository) UpdateCategory(ctx context.Context, id string, patch core.CategoryPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.state.categories[id]
	if !ok {
		return fmt.Errorf("%w: category %q", core.ErrNotFound, id)
	}
	r.state.categories[id] = patch.Apply(c)
	return nil
}

func (r *Repository) DeleteCategory(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.state.categories[id]; !ok {
		return fmt.Errorf("%w: category %q", core.ErrNotFound, id)
	}
	r.state.deleteCategory(id)
	return nil
}

// Begin starts a new transaction.
func (r *Repository) Begin(ctx context.Context) (core.Transaction, error) {
	return &Transaction{repo: r}, nil
}

// ComponentType implements introspection.Component.
func (r *Repository) ComponentType() string {
	return "memory"
}

var _ core.TransactionalRepository = (*Repository)(nil)
var _ introspection.Component = (*Repository)(nil)

func normalize(n core.Note) core.Note {
	if n.Categories == nil {
		n.Categories = []string{}
	}
	return n
}

func remove(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
