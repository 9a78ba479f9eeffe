// Package fs stores a Flashpad vault on the local filesystem.
//
// Layout of a vault:
//
//	notes/<id>.md      one Markdown file per note, YAML frontmatter header
//	categories.yaml    the ordered category list
//	.flashpad/         system dir: index.json (category index of notes)
//
// Every write goes through the same commit path: touched files are
// snapshotted, written atomically and restored if any step fails. With
// versioning enabled each commit also becomes a git commit.
package fs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/flashpad/pkg/core"
	"github.com/aretw0/flashpad/pkg/git"
)

const (
	// DefaultSystemDir holds the index and other derived data.
	DefaultSystemDir = ".flashpad"

	notesDir       = "notes"
	categoriesFile = "categories.yaml"
	noteExt        = ".md"
)

// Repository implements core.TransactionalRepository on top of a directory.
type Repository struct {
	Path   string
	config Config
	logger *slog.Logger
	git    *git.Client
	cache  *cache

	// writeMu serializes commits so read-modify-write of categories.yaml
	// and existence checks stay consistent within the process.
	writeMu sync.Mutex

	mu            sync.RWMutex
	watcherActive bool

	writeFile func(filename string, data []byte, perm os.FileMode) error
}

// Config holds the configuration for the filesystem repository.
type Config struct {
	Path      string
	AutoInit  bool // create the directory (and git repo when versioned) if missing
	MustExist bool // fail instead of creating the vault directory
	Versioned bool // record every commit in git
	ReadOnly  bool
	SystemDir string // e.g. ".flashpad"
	Logger    *slog.Logger
}

// NewRepository creates a new filesystem-backed repository.
func NewRepository(config Config) *Repository {
	if config.SystemDir == "" {
		config.SystemDir = DefaultSystemDir
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Repository{
		Path:      config.Path,
		config:    config,
		logger:    logger,
		git:       git.NewClient(config.Path, config.SystemDir+".lock", logger),
		cache:     newCache(config.Path, config.SystemDir),
		writeFile: writeFileAtomic,
	}
}

// IsGitInstalled checks if git is available in the system path.
func IsGitInstalled() bool {
	return git.IsInstalled()
}

// Initialize prepares the vault directory and, when versioned, the git repo.
func (r *Repository) Initialize(ctx context.Context) error {
	info, err := os.Stat(r.Path)
	switch {
	case err == nil && !info.IsDir():
		return fmt.Errorf("vault path is not a directory: %s", r.Path)
	case os.IsNotExist(err) && (r.config.MustExist || r.config.ReadOnly):
		return fmt.Errorf("vault path does not exist: %s", r.Path)
	case os.IsNotExist(err):
		if err := os.MkdirAll(r.Path, 0755); err != nil {
			return fmt.Errorf("failed to create vault directory: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to stat vault: %w", err)
	}

	if r.config.ReadOnly {
		return nil
	}

	for _, dir := range []string{notesDir, r.config.SystemDir} {
		if err := os.MkdirAll(filepath.Join(r.Path, dir), 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	if !r.config.Versioned {
		return nil
	}

	if !git.IsInstalled() {
		return fmt.Errorf("git is not installed")
	}

	wasNewRepo := false
	if !r.git.IsRepo() {
		if !r.config.AutoInit {
			return fmt.Errorf("path is not a git repository: %s", r.Path)
		}
		if err := r.git.Init(); err != nil {
			return fmt.Errorf("failed to git init: %w", err)
		}
		wasNewRepo = true
	}

	mod, err := r.ensureIgnore()
	if err != nil {
		return fmt.Errorf("failed to ensure .gitignore: %w", err)
	}

	if mod && wasNewRepo {
		if err := r.git.Add(".gitignore"); err != nil {
			return fmt.Errorf("failed to add .gitignore: %w", err)
		}
		if err := r.git.Commit(fmt.Sprintf("chore: configure %s ignore", r.config.SystemDir)); err != nil {
			return fmt.Errorf("failed to commit .gitignore: %w", err)
		}
	}
	return nil
}

// ensureIgnore keeps the system dir and the lock file out of git.
func (r *Repository) ensureIgnore() (bool, error) {
	ignorePath := filepath.Join(r.Path, ".gitignore")
	wanted := []string{r.config.SystemDir + "/", r.git.LockName()}

	content, err := os.ReadFile(ignorePath)
	if err != nil && !os.IsNotExist(err) {
		return false, err
	}

	present := make(map[string]bool)
	for _, line := range strings.Split(string(content), "\n") {
		present[strings.TrimSpace(line)] = true
	}

	var missing []string
	for _, entry := range wanted {
		if !present[entry] {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return false, nil
	}

	f, err := os.OpenFile(ignorePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return false, err
	}
	defer f.Close()

	if len(content) > 0 && !strings.HasSuffix(string(content), "\n") {
		if _, err := f.WriteString("\n"); err != nil {
			return false, err
		}
	}
	if _, err := f.WriteString(strings.Join(missing, "\n") + "\n"); err != nil {
		return false, err
	}
	return true, nil
}

// Begin starts a new transaction.
func (r *Repository) Begin(ctx context.Context) (core.Transaction, error) {
	if r.config.ReadOnly {
		return nil, core.ErrReadOnly
	}
	return newTransaction(r), nil
}

// --- paths ---

func (r *Repository) notePath(id string) string {
	return filepath.Join(r.Path, notesDir, id+noteExt)
}

func noteRel(id string) string {
	return notesDir + "/" + id + noteExt
}

func (r *Repository) categoriesPath() string {
	return filepath.Join(r.Path, categoriesFile)
}

// --- Notes ---

// ListNotes parses every note in the vault, ordered by file name.
func (r *Repository) ListNotes(ctx context.Context) ([]core.Note, error) {
	return r.scanNotes(ctx, nil)
}

// NotesWithCategory uses the index to skip files that are known not to
// carry categoryID; only candidates are parsed.
func (r *Repository) NotesWithCategory(ctx context.Context, categoryID string) ([]core.Note, error) {
	candidates, err := r.scanNotes(ctx, func(e *indexEntry) bool {
		return !e.hasCategory(categoryID)
	})
	if err != nil {
		return nil, err
	}

	var out []core.Note
	for _, n := range candidates {
		if n.HasCategory(categoryID) {
			out = append(out, n)
		}
	}
	return out, nil
}

// scanNotes walks notes/. Files whose index entry is fresh and satisfies
// skip are not read. Unparseable files are logged and left out.
func (r *Repository) scanNotes(ctx context.Context, skip func(*indexEntry) bool) ([]core.Note, error) {
	if err := r.cache.Load(); err != nil {
		r.logger.Warn("index unreadable, rebuilding", "error", err)
	}

	entries, err := os.ReadDir(filepath.Join(r.Path, notesDir))
	if os.IsNotExist(err) {
		return []core.Note{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read notes directory: %w", err)
	}

	notes := make([]core.Note, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		id, ok := noteIDFromName(e.Name())
		if e.IsDir() || !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		rel := noteRel(id)
		seen[rel] = true

		entry, hit := r.cache.Get(rel, info.ModTime())
		if hit && skip != nil && skip(entry) {
			continue
		}

		data, err := os.ReadFile(r.notePath(id))
		if err != nil {
			r.logger.Warn("skipping unreadable note", "file", rel, "error", err)
			continue
		}
		n, err := decodeNote(id, data, info.ModTime())
		if err != nil {
			r.logger.Warn("skipping malformed note", "file", rel, "error", err)
			continue
		}

		if !hit {
			r.cache.Set(rel, newIndexEntry(n, info.ModTime()))
		}
		notes = append(notes, n)
	}

	r.cache.Prune(seen)
	r.saveCache()
	return notes, nil
}

func noteIDFromName(name string) (string, bool) {
	if filepath.Ext(name) != noteExt || strings.HasPrefix(name, TempFilePrefix) {
		return "", false
	}
	id := strings.TrimSuffix(name, noteExt)
	return id, core.ValidID(id)
}

func newIndexEntry(n core.Note, mtime time.Time) *indexEntry {
	return &indexEntry{
		ID:           n.ID,
		Title:        n.Title,
		Categories:   append([]string(nil), n.Categories...),
		LastModified: mtime,
	}
}

func (r *Repository) saveCache() {
	if r.config.ReadOnly {
		return
	}
	if err := r.cache.Save(); err != nil {
		r.logger.Warn("failed to save index", "error", err)
	}
}

// GetNote reads one note file.
func (r *Repository) GetNote(ctx context.Context, id string) (core.Note, error) {
	if !core.ValidID(id) {
		return core.Note{}, fmt.Errorf("%w: note %q", core.ErrNotFound, id)
	}

	path := r.notePath(id)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return core.Note{}, fmt.Errorf("%w: note %q", core.ErrNotFound, id)
	}
	if err != nil {
		return core.Note{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return core.Note{}, err
	}
	n, err := decodeNote(id, data, info.ModTime())
	if err != nil {
		return core.Note{}, fmt.Errorf("failed to parse note %s: %w", id, err)
	}
	return n, nil
}

// InsertNote writes a new note file.
func (r *Repository) InsertNote(ctx context.Context, n core.Note) error {
	return r.BulkInsertNotes(ctx, []core.Note{n})
}

// BulkInsertNotes writes several new notes in a single commit.
func (r *Repository) BulkInsertNotes(ctx context.Context, notes []core.Note) error {
	if len(notes) == 0 {
		return nil
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	ops := make([]op, 0, len(notes))
	seen := make(map[string]bool, len(notes))
	for _, n := range notes {
		if !core.ValidID(n.ID) {
			return fmt.Errorf("%w: invalid note id %q", core.ErrValidation, n.ID)
		}
		if seen[n.ID] || r.noteExists(n.ID) {
			return fmt.Errorf("note %q already exists", n.ID)
		}
		seen[n.ID] = true
		ops = append(ops, op{kind: opPutNote, note: n.Clone()})
	}

	reason := "create note " + notes[0].ID
	if len(notes) > 1 {
		reason = fmt.Sprintf("create %d notes", len(notes))
	}
	return r.commit(ctx, reasonFrom(ctx, reason), ops)
}

// UpdateNote merges patch into the stored note.
func (r *Repository) UpdateNote(ctx context.Context, id string, patch core.NotePatch) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	n, err := r.GetNote(ctx, id)
	if err != nil {
		return err
	}
	return r.commit(ctx, reasonFrom(ctx, "update note "+id), []op{{kind: opPutNote, note: patch.Apply(n)}})
}

// DeleteNote removes a note file.
func (r *Repository) DeleteNote(ctx context.Context, id string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	return r.commit(ctx, reasonFrom(ctx, "delete note "+id), []op{{kind: opDeleteNote, id: id}})
}

func (r *Repository) noteExists(id string) bool {
	_, err := os.Stat(r.notePath(id))
	return err == nil
}

// --- Categories ---

func (r *Repository) readCategories() ([]core.Category, error) {
	data, err := os.ReadFile(r.categoriesPath())
	if os.IsNotExist(err) {
		return []core.Category{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", categoriesFile, err)
	}
	return decodeCategories(data)
}

// ListCategories returns the categories in file order.
func (r *Repository) ListCategories(ctx context.Context) ([]core.Category, error) {
	return r.readCategories()
}

// GetCategory returns one category.
func (r *Repository) GetCategory(ctx context.Context, id string) (core.Category, error) {
	cats, err := r.readCategories()
	if err != nil {
		return core.Category{}, err
	}
	for _, c := range cats {
		if c.ID == id {
			return c, nil
		}
	}
	return core.Category{}, fmt.Errorf("%w: category %q", core.ErrNotFound, id)
}

// InsertCategory appends a category.
func (r *Repository) InsertCategory(ctx context.Context, c core.Category) error {
	return r.BulkInsertCategories(ctx, []core.Category{c})
}

// BulkInsertCategories appends several categories in one commit.
func (r *Repository) BulkInsertCategories(ctx context.Context, categories []core.Category) error {
	if len(categories) == 0 {
		return nil
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	existing, err := r.readCategories()
	if err != nil {
		return err
	}
	taken := make(map[string]bool, len(existing)+len(categories))
	for _, c := range existing {
		taken[c.ID] = true
	}

	ops := make([]op, 0, len(categories))
	for _, c := range categories {
		if !core.ValidID(c.ID) {
			return fmt.Errorf("%w: invalid category id %q", core.ErrValidation, c.ID)
		}
		if taken[c.ID] {
			return fmt.Errorf("category %q already exists", c.ID)
		}
		taken[c.ID] = true
		ops = append(ops, op{kind: opPutCategory, category: c})
	}

	reason := "create category " + categories[0].ID
	if len(categories) > 1 {
		reason = fmt.Sprintf("create %d categories", len(categories))
	}
	return r.commit(ctx, reasonFrom(ctx, reason), ops)
}

// UpdateCategory merges patch into the stored category.
func (r *Repository) UpdateCategory(ctx context.Context, id string, patch core.CategoryPatch) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	c, err := r.GetCategory(ctx, id)
	if err != nil {
		return err
	}
	return r.commit(ctx, reasonFrom(ctx, "update category "+id), []op{{kind: opPutCategory, category: patch.Apply(c)}})
}

// DeleteCategory removes a category. Notes are not touched.
func (r *Repository) DeleteCategory(ctx context.Context, id string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	return r.commit(ctx, reasonFrom(ctx, "delete category "+id), []op{{kind: opDeleteCategory, id: id}})
}

func reasonFrom(ctx context.Context, fallback string) string {
	if val, ok := ctx.Value(core.ChangeReasonKey).(string); ok && val != "" {
		return val
	}
	return fallback
}

var _ core.TransactionalRepository = (*Repository)(nil)
var _ core.Watchable = (*Repository)(nil)
