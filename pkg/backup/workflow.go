package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aretw0/flashpad/pkg/core"
)

// ErrNothingToExport is returned by Export when the store holds no notes.
var ErrNothingToExport = errors.New("no notes to export")

// maxIDAttempts bounds how many fresh ids Import draws for one note.
const maxIDAttempts = 100

// Source is what Export reads from. *core.Service satisfies it.
type Source interface {
	AllNotes() []core.Note
	CategoriesByID() map[string]core.Category
}

// Target is what Import writes to. *core.Service satisfies it.
type Target interface {
	AllNotes() []core.Note
	AllCategories(ctx context.Context) ([]core.Category, error)
	CreateCategory(ctx context.Context, name, color string) (core.Category, error)
	CategoryByName(name string) (core.Category, bool)
	DeleteCategory(ctx context.Context, id string) (core.DeleteSummary, error)
	ReplaceNotes(ctx context.Context, notes []core.Note) error
	AppendNotes(ctx context.Context, notes []core.Note) error
}

// ImportOptions controls Import.
type ImportOptions struct {
	// Merge appends the imported notes instead of replacing every note.
	Merge bool
}

// ImportSummary reports what Import did.
type ImportSummary struct {
	Notes             int
	CreatedCategories int
	Skipped           int
}

// FileName returns the conventional backup file name for t.
func FileName(t time.Time) string {
	return "flash-notepad-" + t.UTC().Format("2006-01-02") + ".txt"
}

// Export writes every note of src to w and returns how many were written.
func Export(ctx context.Context, w io.Writer, src Source, opts ...Option) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	notes := src.AllNotes()
	if len(notes) == 0 {
		return 0, ErrNothingToExport
	}
	if err := Write(w, notes, src.CategoriesByID(), opts...); err != nil {
		return 0, err
	}
	return len(notes), nil
}

// Import parses text and stores the notes in dst. Categories the backup
// references but dst lacks are created first and removed again when storing
// the notes fails. Notes replace the whole collection unless
// importOpts.Merge is set.
func Import(ctx context.Context, dst Target, text string, importOpts ImportOptions, opts ...Option) (*ImportSummary, error) {
	o := buildOptions(opts)

	existing, err := dst.AllCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}

	res, err := Parse(text, existing, opts...)
	if err != nil {
		return nil, err
	}
	if len(res.Notes) == 0 {
		return nil, fmt.Errorf("%w: all %d blocks were malformed", ErrNoNotes, res.Skipped)
	}

	taken := make(map[string]bool)
	if importOpts.Merge {
		for _, n := range dst.AllNotes() {
			taken[n.ID] = true
		}
	}

	notes := make([]core.Note, 0, len(res.Notes))
	for _, n := range res.Notes {
		for attempt := 0; !core.ValidID(n.ID) || taken[n.ID]; attempt++ {
			if attempt == maxIDAttempts {
				return nil, fmt.Errorf("%w: no free id for note %q after %d attempts", core.ErrValidation, n.Title, attempt)
			}
			n.ID = o.newID()
		}
		taken[n.ID] = true
		notes = append(notes, n)
	}

	summary := &ImportSummary{Skipped: res.Skipped}

	// Categories created here are removed again if the import fails later.
	var created []string
	rollback := func(cause error) error {
		errs := []error{cause}
		for _, id := range created {
			if _, err := dst.DeleteCategory(ctx, id); err != nil {
				errs = append(errs, fmt.Errorf("failed to remove category %q: %w", id, err))
			}
		}
		return errors.Join(errs...)
	}

	remap := make(map[string]string, len(res.NewCategories))
	for _, p := range res.NewCategories {
		c, err := dst.CreateCategory(ctx, p.Name, p.Color)
		if errors.Is(err, core.ErrDuplicateName) {
			found, ok := dst.CategoryByName(p.Name)
			if !ok {
				return nil, rollback(fmt.Errorf("failed to resolve category %q: %w", p.Name, err))
			}
			remap[p.TempID] = found.ID
			continue
		}
		if err != nil {
			return nil, rollback(fmt.Errorf("failed to create category %q: %w", p.Name, err))
		}
		created = append(created, c.ID)
		remap[p.TempID] = c.ID
		summary.CreatedCategories++
	}

	for _, n := range notes {
		for i, id := range n.Categories {
			if resolved, ok := remap[id]; ok {
				n.Categories[i] = resolved
			}
		}
	}

	if importOpts.Merge {
		err = dst.AppendNotes(ctx, notes)
	} else {
		err = dst.ReplaceNotes(ctx, notes)
	}
	if err != nil {
		return nil, rollback(fmt.Errorf("failed to store imported notes: %w", err))
	}

	summary.Notes = len(notes)
	return summary, nil
}
