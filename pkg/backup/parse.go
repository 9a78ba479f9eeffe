package backup

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/flashpad/pkg/core"
)

// ImportedNoteTitle is given to parsed notes that carry no title.
const ImportedNoteTitle = "Imported Note"

// ErrNoNotes is returned when a backup contains no note blocks at all.
var ErrNoNotes = &ParseError{Reason: "no valid notes found in backup"}

// ParseError reports a backup that cannot be read.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "backup: " + e.Reason
}

// IsParseError reports whether err is a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// PendingCategory is a category referenced by a backup that does not exist
// yet. Notes refer to it by TempID until it is created.
type PendingCategory struct {
	TempID string
	Name   string
	Color  string
}

// Result is the outcome of Parse.
type Result struct {
	Notes         []core.Note
	NewCategories []PendingCategory
	Version       string
	// Skipped counts blocks that had neither a title nor content.
	Skipped int
}

// Parse reads a backup. Category references are resolved against existing
// by case-insensitive name; unknown names become pending categories with
// temporary ids shared by every note that mentions them.
func Parse(text string, existing []core.Category, opts ...Option) (*Result, error) {
	o := buildOptions(opts)

	segments := strings.Split(text, noteStart)
	if len(segments) <= 1 {
		return nil, ErrNoNotes
	}

	res := &Result{
		Notes:   []core.Note{},
		Version: headerVersion(segments[0]),
	}
	resolver := newCategoryResolver(existing, o)

	for _, block := range segments[1:] {
		if end := strings.Index(block, noteEnd); end >= 0 {
			block = block[:end]
		}

		n, ok := parseBlock(block, resolver, o)
		if !ok {
			res.Skipped++
			continue
		}
		res.Notes = append(res.Notes, n)
	}

	res.NewCategories = resolver.pending
	return res, nil
}

func headerVersion(header string) string {
	for _, line := range strings.Split(header, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), fieldVersion); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return FormatVersion
}

func parseBlock(block string, resolver *categoryResolver, o options) (core.Note, bool) {
	head, content, hasContent := splitContent(block)

	var id, title, created, categories string
	for _, line := range strings.Split(head, "\n") {
		line = strings.TrimSpace(line) // tolerates CRLF line endings
		switch {
		case strings.HasPrefix(line, fieldID):
			id = fieldValue(line, fieldID)
		case strings.HasPrefix(line, fieldTitle):
			title = fieldValue(line, fieldTitle)
		case strings.HasPrefix(line, fieldCreated):
			created = fieldValue(line, fieldCreated)
		case strings.HasPrefix(line, fieldCategories):
			categories = fieldValue(line, fieldCategories)
		}
	}

	if title == "" && !hasContent {
		return core.Note{}, false
	}

	if id == "" {
		id = o.newID()
	}
	if title == "" {
		title = ImportedNoteTitle
	}
	if created == "" {
		created = core.FormatTimestamp(o.now())
	}

	return core.Note{
		ID:         id,
		Title:      title,
		Content:    content,
		Categories: resolver.resolveList(categories),
		CreatedAt:  created,
	}, true
}

// splitContent separates the field lines from the content. The content
// marker must start a line. Only the line breaks written around the content
// are removed; the content bytes are kept as they are.
func splitContent(block string) (head, content string, ok bool) {
	idx := -1
	for offset := 0; offset < len(block); {
		i := strings.Index(block[offset:], fieldContent)
		if i < 0 {
			break
		}
		i += offset
		if i == 0 || block[i-1] == '\n' {
			idx = i
			break
		}
		offset = i + len(fieldContent)
	}
	if idx < 0 {
		return block, "", false
	}

	head = block[:idx]
	content = block[idx+len(fieldContent):]

	// The break after the marker tells which line ending the file uses; the
	// break before the end marker is expected to match it.
	eol := "\n"
	if strings.HasPrefix(content, "\r\n") {
		eol = "\r\n"
	}
	content = strings.TrimPrefix(content, eol)
	if rest, ok := strings.CutSuffix(content, eol); ok {
		content = rest
	} else {
		content = strings.TrimSuffix(content, "\n")
	}
	return head, content, true
}

func fieldValue(line, field string) string {
	return strings.TrimSpace(strings.TrimPrefix(line, field))
}

type categoryResolver struct {
	existing []core.Category
	cache    map[string]string
	pending  []PendingCategory
	newID    func() string
}

func newCategoryResolver(existing []core.Category, o options) *categoryResolver {
	return &categoryResolver{
		existing: existing,
		cache:    make(map[string]string),
		pending:  []PendingCategory{},
		newID:    o.newID,
	}
}

// resolveList turns a "name:color, name" list into category ids.
func (r *categoryResolver) resolveList(list string) []string {
	ids := []string{}
	if list == "" {
		return ids
	}

	seen := make(map[string]bool)
	for _, entry := range strings.Split(list, ",") {
		name, color, _ := strings.Cut(strings.TrimSpace(entry), ":")
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id := r.resolve(name, strings.TrimSpace(color))
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *categoryResolver) resolve(name, color string) string {
	if id, ok := r.cache[name]; ok {
		return id
	}

	for _, c := range r.existing {
		if strings.EqualFold(c.Name, name) {
			r.cache[name] = c.ID
			return c.ID
		}
	}

	if color == "" {
		color = core.DefaultCategoryColor
	}
	p := PendingCategory{
		TempID: fmt.Sprintf("temp-%s", r.newID()),
		Name:   name,
		Color:  color,
	}
	r.pending = append(r.pending, p)
	r.cache[name] = p.TempID
	return p.TempID
}
