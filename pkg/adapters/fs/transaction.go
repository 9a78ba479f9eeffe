package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aretw0/flashpad/pkg/core"
)

type opKind int

const (
	opPutNote opKind = iota
	opDeleteNote
	opPutCategory
	opDeleteCategory
)

// op is one staged change. Single-record writes and transactions share the
// same commit path.
type op struct {
	kind     opKind
	note     core.Note
	category core.Category
	id       string
}

// snapshot is the pre-commit content of a file touched by a commit.
type snapshot struct {
	path    string
	rel     string
	data    []byte
	existed bool
}

// Transaction implements core.Transaction for the filesystem.
type Transaction struct {
	repo   *Repository
	ops    []op
	mu     sync.Mutex
	closed bool
}

func newTransaction(repo *Repository) *Transaction {
	return &Transaction{repo: repo}
}

func (t *Transaction) stage(o op) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transaction closed")
	}
	t.ops = append(t.ops, o)
	return nil
}

// PutNote stages a full note write.
func (t *Transaction) PutNote(ctx context.Context, n core.Note) error {
	if !core.ValidID(n.ID) {
		return fmt.Errorf("%w: invalid note id %q", core.ErrValidation, n.ID)
	}
	return t.stage(op{kind: opPutNote, note: n.Clone()})
}

// DeleteNote stages a note removal.
func (t *Transaction) DeleteNote(ctx context.Context, id string) error {
	return t.stage(op{kind: opDeleteNote, id: id})
}

// PutCategory stages a category write.
func (t *Transaction) PutCategory(ctx context.Context, c core.Category) error {
	if !core.ValidID(c.ID) {
		return fmt.Errorf("%w: invalid category id %q", core.ErrValidation, c.ID)
	}
	return t.stage(op{kind: opPutCategory, category: c})
}

// DeleteCategory stages a category removal.
func (t *Transaction) DeleteCategory(ctx context.Context, id string) error {
	return t.stage(op{kind: opDeleteCategory, id: id})
}

// Commit applies all staged changes. Either every file ends up in its new
// state or all of them are restored.
func (t *Transaction) Commit(ctx context.Context, changeReason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transaction already closed")
	}
	t.closed = true

	if changeReason == "" {
		changeReason = "batch transaction update"
	}

	t.repo.writeMu.Lock()
	defer t.repo.writeMu.Unlock()
	return t.repo.commit(ctx, changeReason, t.ops)
}

// Rollback discards all staged changes.
func (t *Transaction) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ops = nil
	t.closed = true
	return nil
}

// plan is the resolved end state of a list of ops.
type plan struct {
	noteOrder   []string
	puts        map[string]core.Note
	deletes     map[string]bool
	categories  []core.Category
	catsTouched bool
}

func (r *Repository) resolve(ops []op) (*plan, error) {
	p := &plan{
		puts:    make(map[string]core.Note),
		deletes: make(map[string]bool),
	}
	touched := make(map[string]bool)
	track := func(id string) {
		if !touched[id] {
			touched[id] = true
			p.noteOrder = append(p.noteOrder, id)
		}
	}
	loadCats := func() error {
		if p.catsTouched {
			return nil
		}
		cats, err := r.readCategories()
		if err != nil {
			return err
		}
		p.categories = cats
		p.catsTouched = true
		return nil
	}

	for _, o := range ops {
		switch o.kind {
		case opPutNote:
			if !core.ValidID(o.note.ID) {
				return nil, fmt.Errorf("%w: invalid note id %q", core.ErrValidation, o.note.ID)
			}
			track(o.note.ID)
			p.puts[o.note.ID] = o.note
			delete(p.deletes, o.note.ID)

		case opDeleteNote:
			_, staged := p.puts[o.id]
			exists := staged || (!p.deletes[o.id] && core.ValidID(o.id) && r.noteExists(o.id))
			if !exists {
				return nil, fmt.Errorf("%w: note %q", core.ErrNotFound, o.id)
			}
			track(o.id)
			delete(p.puts, o.id)
			p.deletes[o.id] = true

		case opPutCategory:
			if err := loadCats(); err != nil {
				return nil, err
			}
			replaced := false
			for i := range p.categories {
				if p.categories[i].ID == o.category.ID {
					p.categories[i] = o.category
					replaced = true
					break
				}
			}
			if !replaced {
				p.categories = append(p.categories, o.category)
			}

		case opDeleteCategory:
			if err := loadCats(); err != nil {
				return nil, err
			}
			idx := -1
			for i := range p.categories {
				if p.categories[i].ID == o.id {
					idx = i
					break
				}
			}
			if idx < 0 {
				return nil, fmt.Errorf("%w: category %q", core.ErrNotFound, o.id)
			}
			p.categories = append(p.categories[:idx:idx], p.categories[idx+1:]...)
		}
	}
	return p, nil
}

// commit applies ops to disk. Callers hold writeMu.
//
// Workflow:
//  1. Resolve ops into an end state, failing early on missing records.
//  2. Snapshot every file that will change.
//  3. Write atomically; on any failure restore the snapshots.
//  4. (If versioned) git add/rm and commit; on failure restore too.
//  5. Refresh the index for the touched notes.
func (r *Repository) commit(ctx context.Context, reason string, ops []op) error {
	if r.config.ReadOnly {
		return core.ErrReadOnly
	}
	if len(ops) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := r.resolve(ops)
	if err != nil {
		return err
	}

	if r.config.Versioned {
		unlock, err := r.git.Lock()
		if err != nil {
			return fmt.Errorf("failed to acquire git lock: %w", err)
		}
		defer unlock()
	}

	var rels []string
	for _, id := range p.noteOrder {
		rels = append(rels, noteRel(id))
	}
	if p.catsTouched {
		rels = append(rels, categoriesFile)
	}

	snaps, err := r.takeSnapshots(rels)
	if err != nil {
		return err
	}

	if len(p.puts) > 0 {
		if err := os.MkdirAll(filepath.Join(r.Path, notesDir), 0755); err != nil {
			return fmt.Errorf("failed to create notes directory: %w", err)
		}
	}

	var added, removed []string
	for _, id := range p.noteOrder {
		if n, ok := p.puts[id]; ok {
			data, err := encodeNote(n)
			if err != nil {
				return r.restore(snaps, fmt.Errorf("failed to serialize note %s: %w", id, err))
			}
			if err := r.writeFile(r.notePath(id), data, 0644); err != nil {
				return r.restore(snaps, fmt.Errorf("failed to write note %s: %w", id, err))
			}
			added = append(added, noteRel(id))
			continue
		}
		if err := os.Remove(r.notePath(id)); err != nil && !os.IsNotExist(err) {
			return r.restore(snaps, fmt.Errorf("failed to remove note %s: %w", id, err))
		}
		removed = append(removed, noteRel(id))
	}

	if p.catsTouched {
		data, err := encodeCategories(p.categories)
		if err != nil {
			return r.restore(snaps, fmt.Errorf("failed to serialize categories: %w", err))
		}
		if err := r.writeFile(r.categoriesPath(), data, 0644); err != nil {
			return r.restore(snaps, fmt.Errorf("failed to write %s: %w", categoriesFile, err))
		}
		added = append(added, categoriesFile)
	}

	if r.config.Versioned {
		if err := r.recordInGit(reason, added, removed); err != nil {
			if resetErr := r.git.Reset(rels...); resetErr != nil {
				r.logger.Warn("failed to unstage after git error", "error", resetErr)
			}
			return r.restore(snaps, err)
		}
	}

	for _, id := range p.noteOrder {
		rel := noteRel(id)
		n, ok := p.puts[id]
		if !ok {
			r.cache.Delete(rel)
			continue
		}
		if info, err := os.Stat(r.notePath(id)); err == nil {
			r.cache.Set(rel, newIndexEntry(n, info.ModTime()))
		}
	}
	r.saveCache()

	r.logger.Debug("commit applied", "reason", reason, "notes", len(p.noteOrder), "categories", p.catsTouched)
	return nil
}

func (r *Repository) takeSnapshots(rels []string) ([]snapshot, error) {
	snaps := make([]snapshot, 0, len(rels))
	for _, rel := range rels {
		path := filepath.Join(r.Path, filepath.FromSlash(rel))
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			snaps = append(snaps, snapshot{path: path, rel: rel, data: data, existed: true})
		case os.IsNotExist(err):
			snaps = append(snaps, snapshot{path: path, rel: rel})
		default:
			return nil, fmt.Errorf("failed to snapshot %s: %w", rel, err)
		}
	}
	return snaps, nil
}

// restore puts every snapshotted file back and returns cause, joined with
// any error hit while restoring.
func (r *Repository) restore(snaps []snapshot, cause error) error {
	var errs []error
	for _, s := range snaps {
		if s.existed {
			if err := r.writeFile(s.path, s.data, 0644); err != nil {
				errs = append(errs, fmt.Errorf("restore %s: %w", s.rel, err))
			}
			continue
		}
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("restore %s: %w", s.rel, err))
		}
	}

	if len(errs) > 0 {
		r.logger.Error("vault restore incomplete", "error", errors.Join(errs...))
		return errors.Join(append([]error{cause}, errs...)...)
	}
	r.logger.Warn("commit failed, vault restored", "error", cause)
	return cause
}

func (r *Repository) recordInGit(reason string, added, removed []string) error {
	if err := r.git.Add(added...); err != nil {
		return fmt.Errorf("failed to git add: %w", err)
	}
	if err := r.git.Rm(removed...); err != nil {
		return fmt.Errorf("failed to git rm: %w", err)
	}
	staged, err := r.git.HasStagedChanges()
	if err != nil {
		return err
	}
	if !staged {
		return nil
	}
	if err := r.git.Commit(reason); err != nil {
		return fmt.Errorf("failed to git commit: %w", err)
	}
	return nil
}
