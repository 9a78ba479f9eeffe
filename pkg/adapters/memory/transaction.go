package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aretw0/flashpad/pkg/core"
)

var errClosed = errors.New("transaction closed")

// Transaction records operations and replays them against a copy of the
// repository state on Commit, swapping the copy in only if every step
// succeeded.
type Transaction struct {
	repo   *Repository
	ops    []func(*state) error
	mu     sync.Mutex
	closed bool
}

func (t *Transaction) stage(op func(*state) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errClosed
	}
	t.ops = append(t.ops, op)
	return nil
}

// PutNote stages a note write.
func (t *Transaction) PutNote(ctx context.Context, n core.Note) error {
	if !core.ValidID(n.ID) {
		return fmt.Errorf("%w: invalid note id %q", core.ErrValidation, n.ID)
	}
	n = normalize(n.Clone())
	return t.stage(func(s *state) error {
		s.putNote(n)
		return nil
	})
}

// DeleteNote stages a note removal.
func (t *Transaction) DeleteNote(ctx context.Context, id string) error {
	return t.stage(func(s *state) error {
		if _, ok := s.notes[id]; !ok {
			return fmt.Errorf("%w: note %q", core.ErrNotFound, id)
		}
		s.deleteNote(id)
		return nil
	})
}

// PutCategory stages a category write.
func (t *Transaction) PutCategory(ctx context.Context, c core.Category) error {
	if !core.ValidID(c.ID) {
		return fmt.Errorf("%w: invalid category id %q", core.ErrValidation, c.ID)
	}
	return t.stage(func(s *state) error {
		s.putCategory(c)
		return nil
	})
}

// DeleteCategory stages a category removal.
func (t *Transaction) DeleteCategory(ctx context.Context, id string) error {
	return t.stage(func(s *state) error {
		if _, ok := s.categories[id]; !ok {
			return fmt.Errorf("%w: category %q", core.ErrNotFound, id)
		}
		s.deleteCategory(id)
		return nil
	})
}

// Commit applies all staged operations atomically.
func (t *Transaction) Commit(ctx context.Context, changeReason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errClosed
	}
	t.closed = true

	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	next := t.repo.state.clone()
	for _, op := range t.ops {
		if err := op(next); err != nil {
			return fmt.Errorf("commit %q: %w", changeReason, err)
		}
	}
	t.repo.state = next
	return nil
}

// Rollback discards all staged operations.
func (t *Transaction) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ops = nil
	t.closed = true
	return nil
}
