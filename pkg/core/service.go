package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Service is the single source of truth for notes and categories. It owns
// the in-memory ordering of notes, the categories cache and the active note
// pointer, and writes every mutation through to the repository before
// touching memory.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	mu           sync.RWMutex
	notes        []Note
	categories   []Category
	catsLoaded   bool
	activeNoteID string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger for the service.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for timestamps and category ids.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the note id generator.
func WithIDGenerator(fn func() string) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewService creates a new Service. Call Init before use.
func NewService(repo Repository, opts ...ServiceOption) *Service {
	s := &Service{
		repo:   repo,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DeleteSummary describes the outcome of DeleteCategory.
type DeleteSummary struct {
	Category      Category
	AffectedNotes int
}

// Init loads notes (newest first) and categories, seeding defaults on an
// empty vault. Storage failures are logged and degrade to an empty state so
// callers can still render something; only context cancellation is returned.
func (s *Service) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loadNotes(ctx)

	s.catsLoaded = false
	if err := s.ensureCategories(ctx); err != nil {
		s.logger.Warn("failed to load categories", "error", err)
	}

	if len(s.notes) == 0 {
		if _, err := s.createNote(ctx); err != nil {
			s.logger.Warn("failed to create default note", "error", err)
		}
	} else {
		s.activeNoteID = s.notes[0].ID
	}

	return ctx.Err()
}

func (s *Service) loadNotes(ctx context.Context) {
	notes, err := s.repo.ListNotes(ctx)
	if err != nil {
		s.logger.Warn("failed to load notes", "error", err)
		s.notes = nil
		s.activeNoteID = ""
		return
	}

	for i := range notes {
		if notes[i].Categories == nil {
			notes[i].Categories = []string{}
		}
	}
	sortNewestFirst(notes)

	s.notes = notes
	s.logger.Debug("notes loaded", "count", len(notes))
}

// --- Notes ---

// CreateNote persists a fresh note, puts it first in the ordering and makes
// it active.
func (s *Service) CreateNote(ctx context.Context) (Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createNote(ctx)
}

func (s *Service) createNote(ctx context.Context) (Note, error) {
	n := Note{
		ID:         s.newID(),
		Title:      DefaultNoteTitle,
		Categories: []string{},
		CreatedAt:  FormatTimestamp(s.now()),
	}

	if err := s.repo.InsertNote(ctx, n); err != nil {
		return Note{}, storageErr("insert note", err)
	}

	s.notes = append([]Note{n}, s.notes...)
	s.activeNoteID = n.ID
	s.logger.Debug("note created", "id", n.ID)
	return n.Clone(), nil
}

// ActiveNote returns the currently selected note.
func (s *Service) ActiveNote() (Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx := s.noteIndex(s.activeNoteID); idx >= 0 {
		return s.notes[idx].Clone(), true
	}
	return Note{}, false
}

// ActiveNoteID returns the id of the active note, or "".
func (s *Service) ActiveNoteID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeNoteID
}

// SetActiveNote selects an existing note.
func (s *Service) SetActiveNote(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.noteIndex(id) < 0 {
		return fmt.Errorf("%w: note %q", ErrNotFound, id)
	}
	s.activeNoteID = id
	return nil
}

// GetNote returns a note from memory.
func (s *Service) GetNote(id string) (Note, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx := s.noteIndex(id); idx >= 0 {
		return s.notes[idx].Clone(), true
	}
	return Note{}, false
}

// UpdateNote merges patch into the note. Unknown ids are ignored.
func (s *Service) UpdateNote(ctx context.Context, id string, patch NotePatch) error {
	if patch.IsEmpty() {
		return fmt.Errorf("%w: update requires at least one field", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.noteIndex(id)
	if idx < 0 {
		s.logger.Debug("update ignored, note not found", "id", id)
		return nil
	}

	if patch.Categories != nil {
		cats := dedupe(*patch.Categories)
		if err := s.ensureCategories(ctx); err != nil {
			return err
		}
		for _, c := range cats {
			if s.categoryIndex(c) < 0 {
				return fmt.Errorf("%w: category %q", ErrNotFound, c)
			}
		}
		patch.Categories = &cats
	}

	if err := s.repo.UpdateNote(ctx, id, patch); err != nil {
		return storageErr("update note", err)
	}

	s.notes[idx] = patch.Apply(s.notes[idx])
	return nil
}

// DeleteNote removes a note. When the active note is deleted the pointer
// moves to the first remaining note. Unknown ids are ignored.
func (s *Service) DeleteNote(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.noteIndex(id)
	if idx < 0 {
		s.logger.Debug("delete ignored, note not found", "id", id)
		return nil
	}

	if err := s.repo.DeleteNote(ctx, id); err != nil {
		return storageErr("delete note", err)
	}

	s.notes = append(s.notes[:idx], s.notes[idx+1:]...)
	if s.activeNoteID == id {
		s.activeNoteID = ""
		if len(s.notes) > 0 {
			s.activeNoteID = s.notes[0].ID
		}
	}
	return nil
}

// AddCategoryToNote tags a note. Adding a present category is a no-op.
func (s *Service) AddCategoryToNote(ctx context.Context, noteID, categoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.noteIndex(noteID)
	if idx < 0 {
		return nil
	}
	if err := s.ensureCategories(ctx); err != nil {
		return err
	}
	if s.categoryIndex(categoryID) < 0 {
		return fmt.Errorf("%w: category %q", ErrNotFound, categoryID)
	}
	if s.notes[idx].HasCategory(categoryID) {
		return nil
	}

	cats := append(s.notes[idx].Clone().Categories, categoryID)
	if err := s.repo.UpdateNote(ctx, noteID, NotePatch{Categories: &cats}); err != nil {
		return storageErr("add category to note", err)
	}
	s.notes[idx].Categories = cats
	return nil
}

// RemoveCategoryFromNote untags a note. Absent categories are a no-op.
func (s *Service) RemoveCategoryFromNote(ctx context.Context, noteID, categoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.noteIndex(noteID)
	if idx < 0 || !s.notes[idx].HasCategory(categoryID) {
		return nil
	}

	cats := without(s.notes[idx].Categories, categoryID)
	if err := s.repo.UpdateNote(ctx, noteID, NotePatch{Categories: &cats}); err != nil {
		return storageErr("remove category from note", err)
	}
	s.notes[idx].Categories = cats
	return nil
}

// AllNotes returns the notes in their current ordering.
func (s *Service) AllNotes() []Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneNotes(s.notes, nil)
}

// SearchNotes matches query case-insensitively against title or content.
// An empty query returns every note.
func (s *Service) SearchNotes(query string) []Note {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return cloneNotes(s.notes, nil)
	}
	return cloneNotes(s.notes, func(n Note) bool {
		return strings.Contains(strings.ToLower(n.Title), q) ||
			strings.Contains(strings.ToLower(n.Content), q)
	})
}

// NotesByCategory returns the notes tagged with categoryID.
func (s *Service) NotesByCategory(categoryID string) []Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneNotes(s.notes, func(n Note) bool { return n.HasCategory(categoryID) })
}

// ReplaceNotes swaps the whole note collection for notes in one unit of
// work. Category ids that do not exist are dropped.
func (s *Service) ReplaceNotes(ctx context.Context, notes []Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	incoming, err := s.prepareIncoming(ctx, notes, nil)
	if err != nil {
		return err
	}

	existing, err := s.repo.ListNotes(ctx)
	if err != nil {
		return storageErr("list notes", err)
	}

	if tr, ok := s.repo.(TransactionalRepository); ok {
		err = s.withTransaction(ctx, tr, "replace notes", func(tx Transaction) error {
			for _, n := range existing {
				if err := tx.DeleteNote(ctx, n.ID); err != nil {
					return err
				}
			}
			for _, n := range incoming {
				if err := tx.PutNote(ctx, n); err != nil {
					return err
				}
			}
			return nil
		})
	} else {
		err = s.replaceNotesSequential(ctx, existing, incoming)
	}
	if err != nil {
		return storageErr("replace notes", err)
	}

	sortNewestFirst(incoming)
	s.notes = incoming
	s.activeNoteID = ""
	if len(s.notes) > 0 {
		s.activeNoteID = s.notes[0].ID
	}
	s.logger.Info("notes replaced", "removed", len(existing), "added", len(incoming))
	return nil
}

func (s *Service) replaceNotesSequential(ctx context.Context, existing, incoming []Note) error {
	var removed []Note
	restore := func(cause error) error {
		var errs []error
		for _, n := range incoming {
			if err := s.repo.DeleteNote(ctx, n.ID); err != nil && !errors.Is(err, ErrNotFound) {
				errs = append(errs, err)
			}
		}
		if len(removed) > 0 {
			if err := s.repo.BulkInsertNotes(ctx, removed); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			s.logger.Error("rollback of note replacement incomplete", "error", errors.Join(errs...))
			return errors.Join(append([]error{cause}, errs...)...)
		}
		return cause
	}

	for _, n := range existing {
		if err := s.repo.DeleteNote(ctx, n.ID); err != nil {
			return restore(err)
		}
		removed = append(removed, n)
	}
	if len(incoming) > 0 {
		if err := s.repo.BulkInsertNotes(ctx, incoming); err != nil {
			return restore(err)
		}
	}
	return nil
}

// AppendNotes adds notes to the collection (merge import). Notes whose id
// already exists are rejected with ErrValidation.
func (s *Service) AppendNotes(ctx context.Context, notes []Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	taken := make(map[string]bool, len(s.notes))
	for _, n := range s.notes {
		taken[n.ID] = true
	}

	incoming, err := s.prepareIncoming(ctx, notes, taken)
	if err != nil {
		return err
	}
	if len(incoming) == 0 {
		return nil
	}

	if err := s.repo.BulkInsertNotes(ctx, incoming); err != nil {
		return storageErr("append notes", err)
	}

	merged := append(cloneNotes(s.notes, nil), incoming...)
	sortNewestFirst(merged)
	s.notes = merged
	if s.noteIndex(s.activeNoteID) < 0 {
		s.activeNoteID = s.notes[0].ID
	}
	return nil
}

// prepareIncoming validates ids and normalizes fields of notes about to be
// stored in bulk.
func (s *Service) prepareIncoming(ctx context.Context, notes []Note, taken map[string]bool) ([]Note, error) {
	if err := s.ensureCategories(ctx); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(notes))
	out := make([]Note, 0, len(notes))
	for _, n := range notes {
		if !ValidID(n.ID) {
			return nil, fmt.Errorf("%w: invalid note id %q", ErrValidation, n.ID)
		}
		if seen[n.ID] || taken[n.ID] {
			return nil, fmt.Errorf("%w: duplicate note id %q", ErrValidation, n.ID)
		}
		seen[n.ID] = true

		c := n.Clone()
		cats := make([]string, 0, len(c.Categories))
		for _, id := range dedupe(c.Categories) {
			if s.categoryIndex(id) < 0 {
				s.logger.Debug("dropping unknown category", "note", c.ID, "category", id)
				continue
			}
			cats = append(cats, id)
		}
		c.Categories = cats
		if c.CreatedAt == "" {
			c.CreatedAt = FormatTimestamp(s.now())
		}
		out = append(out, c)
	}
	return out, nil
}

// --- Categories ---

// AllCategories returns every category, seeding the defaults when none exist.
func (s *Service) AllCategories(ctx context.Context) ([]Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureCategories(ctx); err != nil {
		return nil, err
	}
	return append([]Category(nil), s.categories...), nil
}

func (s *Service) ensureCategories(ctx context.Context) error {
	if !s.catsLoaded {
		cats, err := s.repo.ListCategories(ctx)
		if err != nil {
			return storageErr("list categories", err)
		}
		s.categories = cats
		s.catsLoaded = true
	}

	if len(s.categories) > 0 {
		return nil
	}

	defaults := DefaultCategories()
	if err := s.repo.BulkInsertCategories(ctx, defaults); err != nil {
		return storageErr("seed default categories", err)
	}
	s.categories = defaults
	s.logger.Debug("default categories seeded", "count", len(defaults))
	return nil
}

// CreateCategory adds a category with a freshly derived id.
func (s *Service) CreateCategory(ctx context.Context, name, color string) (Category, error) {
	name = strings.TrimSpace(name)
	color = strings.TrimSpace(color)
	if name == "" || color == "" {
		return Category{}, fmt.Errorf("%w: category name and color are required", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureCategories(ctx); err != nil {
		return Category{}, err
	}
	if s.categoryIndexByName(name, "") >= 0 {
		return Category{}, fmt.Errorf("%w: a category named %q already exists", ErrDuplicateName, name)
	}

	cat := Category{ID: s.categoryID(name), Name: name, Color: color}
	if err := s.repo.InsertCategory(ctx, cat); err != nil {
		return Category{}, storageErr("insert category", err)
	}

	s.categories = append(s.categories, cat)
	s.logger.Debug("category created", "id", cat.ID, "name", cat.Name)
	return cat, nil
}

// categoryID derives "slug-<unix millis>", adding a counter if still taken.
func (s *Service) categoryID(name string) string {
	base := Slugify(name)
	if base == "" {
		base = "category"
	}
	stamp := s.now().UnixMilli()
	id := fmt.Sprintf("%s-%d", base, stamp)
	for i := 2; s.categoryIndex(id) >= 0; i++ {
		id = fmt.Sprintf("%s-%d-%d", base, stamp, i)
	}
	return id
}

// UpdateCategory renames and/or recolors a category.
func (s *Service) UpdateCategory(ctx context.Context, id string, patch CategoryPatch) (Category, error) {
	if patch.IsEmpty() {
		return Category{}, fmt.Errorf("%w: at least one update field (name or color) is required", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureCategories(ctx); err != nil {
		return Category{}, err
	}
	idx := s.categoryIndex(id)
	if idx < 0 {
		return Category{}, fmt.Errorf("%w: category %q", ErrNotFound, id)
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return Category{}, fmt.Errorf("%w: category name cannot be empty", ErrValidation)
		}
		if s.categoryIndexByName(name, id) >= 0 {
			return Category{}, fmt.Errorf("%w: a category named %q already exists", ErrDuplicateName, name)
		}
		patch.Name = &name
	}
	if patch.Color != nil {
		color := strings.TrimSpace(*patch.Color)
		if color == "" {
			return Category{}, fmt.Errorf("%w: category color cannot be empty", ErrValidation)
		}
		patch.Color = &color
	}

	if err := s.repo.UpdateCategory(ctx, id, patch); err != nil {
		return Category{}, storageErr("update category", err)
	}

	s.categories[idx] = patch.Apply(s.categories[idx])
	return s.categories[idx], nil
}

// DeleteCategory removes the category and strips it from every note as one
// unit: either both happen or neither does.
func (s *Service) DeleteCategory(ctx context.Context, id string) (DeleteSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureCategories(ctx); err != nil {
		return DeleteSummary{}, err
	}
	idx := s.categoryIndex(id)
	if idx < 0 {
		return DeleteSummary{}, fmt.Errorf("%w: category %q", ErrNotFound, id)
	}
	cat := s.categories[idx]

	tagged, err := s.repo.NotesWithCategory(ctx, id)
	if err != nil {
		return DeleteSummary{}, storageErr("query notes by category", err)
	}

	if tr, ok := s.repo.(TransactionalRepository); ok {
		err = s.withTransaction(ctx, tr, "delete category "+id, func(tx Transaction) error {
			if err := tx.DeleteCategory(ctx, id); err != nil {
				return err
			}
			for _, n := range tagged {
				stripped := n.Clone()
				stripped.Categories = without(n.Categories, id)
				if err := tx.PutNote(ctx, stripped); err != nil {
					return err
				}
			}
			return nil
		})
	} else {
		err = s.deleteCategorySequential(ctx, id, tagged)
	}
	if err != nil {
		return DeleteSummary{}, storageErr("delete category", err)
	}

	s.categories = append(s.categories[:idx], s.categories[idx+1:]...)
	for i := range s.notes {
		if s.notes[i].HasCategory(id) {
			s.notes[i].Categories = without(s.notes[i].Categories, id)
		}
	}

	s.logger.Info("category deleted", "id", id, "affected_notes", len(tagged))
	return DeleteSummary{Category: cat, AffectedNotes: len(tagged)}, nil
}

// deleteCategorySequential is used when the repository has no transactions.
// Notes are stripped first and restored if any later step fails.
func (s *Service) deleteCategorySequential(ctx context.Context, id string, tagged []Note) error {
	var done []Note
	restore := func(cause error) error {
		var errs []error
		for _, n := range done {
			cats := n.Clone().Categories
			if err := s.repo.UpdateNote(ctx, n.ID, NotePatch{Categories: &cats}); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			s.logger.Error("rollback of category delete incomplete", "category", id, "error", errors.Join(errs...))
			return errors.Join(append([]error{cause}, errs...)...)
		}
		return cause
	}

	for _, n := range tagged {
		cats := without(n.Categories, id)
		if err := s.repo.UpdateNote(ctx, n.ID, NotePatch{Categories: &cats}); err != nil {
			return restore(err)
		}
		done = append(done, n)
	}
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return restore(err)
	}
	return nil
}

// withTransaction executes fn within a transaction, rolling back on error.
func (s *Service) withTransaction(ctx context.Context, tr TransactionalRepository, defaultReason string, fn func(tx Transaction) error) error {
	tx, err := tr.Begin(ctx)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}

	msg := defaultReason
	if val, ok := ctx.Value(ChangeReasonKey).(string); ok && val != "" {
		msg = val
	}
	return tx.Commit(ctx, msg)
}

// CategoryByID looks a category up in the cache loaded by Init.
func (s *Service) CategoryByID(id string) (Category, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx := s.categoryIndex(id); idx >= 0 {
		return s.categories[idx], true
	}
	return Category{}, false
}

// CategoryByName looks a category up by case-insensitive name.
func (s *Service) CategoryByName(name string) (Category, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if idx := s.categoryIndexByName(strings.TrimSpace(name), ""); idx >= 0 {
		return s.categories[idx], true
	}
	return Category{}, false
}

// CategoriesByID returns the category cache keyed by id.
func (s *Service) CategoriesByID() map[string]Category {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := make(map[string]Category, len(s.categories))
	for _, c := range s.categories {
		m[c.ID] = c
	}
	return m
}

// NotesCountForCategory counts the notes tagged with id.
func (s *Service) NotesCountForCategory(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notes {
		if n.HasCategory(id) {
			count++
		}
	}
	return count
}

// Watch observes changes in the repository if supported.
func (s *Service) Watch(ctx context.Context, pattern string) (<-chan Event, error) {
	w, ok := s.repo.(Watchable)
	if !ok {
		return nil, errors.New("repository does not support watching")
	}
	return w.Watch(ctx, pattern)
}

// --- helpers (callers hold the lock) ---

func (s *Service) noteIndex(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.notes {
		if s.notes[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Service) categoryIndex(id string) int {
	for i := range s.categories {
		if s.categories[i].ID == id {
			return i
		}
	}
	return -1
}

// categoryIndexByName ignores the category whose id equals exclude.
func (s *Service) categoryIndexByName(name, exclude string) int {
	for i := range s.categories {
		if s.categories[i].ID != exclude && strings.EqualFold(s.categories[i].Name, name) {
			return i
		}
	}
	return -1
}

func sortNewestFirst(notes []Note) {
	sort.SliceStable(notes, func(i, j int) bool {
		return newerFirst(notes[i].CreatedAt, notes[j].CreatedAt)
	})
}

func cloneNotes(notes []Note, keep func(Note) bool) []Note {
	out := make([]Note, 0, len(notes))
	for _, n := range notes {
		if keep == nil || keep(n) {
			out = append(out, n.Clone())
		}
	}
	return out
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
