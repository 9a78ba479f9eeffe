// Package core holds the domain model of Flashpad and the Service that keeps
// notes and categories consistent across every mutation path.
package core

import (
	"strings"
	"time"
	"unicode"
)

const (
	// DefaultNoteTitle is given to freshly created notes.
	DefaultNoteTitle = "Untitled Note"

	// DefaultCategoryColor is used when a category arrives without a color.
	DefaultCategoryColor = "#4285F4"

	// TimestampLayout is the ISO-8601 layout used for CreatedAt.
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Note is a user-authored text document.
type Note struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Categories []string `json:"categories"`
	CreatedAt  string   `json:"createdAt"`
}

// Clone returns a copy that does not share the categories slice.
func (n Note) Clone() Note {
	c := n
	c.Categories = append(make([]string, 0, len(n.Categories)), n.Categories...)
	return c
}

// HasCategory reports whether the note is tagged with the category id.
func (n Note) HasCategory(categoryID string) bool {
	for _, id := range n.Categories {
		if id == categoryID {
			return true
		}
	}
	return false
}

// DisplayTitle returns the title, falling back to DefaultNoteTitle.
func (n Note) DisplayTitle() string {
	if strings.TrimSpace(n.Title) == "" {
		return DefaultNoteTitle
	}
	return n.Title
}

// Category is a named, colored tag assignable to many notes.
type Category struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Color string `json:"color" yaml:"color"`
}

// DefaultCategories returns the categories seeded into an empty vault.
func DefaultCategories() []Category {
	return []Category{
		{ID: "work", Name: "Work", Color: "#4285F4"},
		{ID: "personal", Name: "Personal", Color: "#EA4335"},
		{ID: "ideas", Name: "Ideas", Color: "#FBBC05"},
		{ID: "tasks", Name: "Tasks", Color: "#34A853"},
	}
}

// NotePatch describes a partial update. Nil fields are left untouched.
type NotePatch struct {
	Title      *string
	Content    *string
	Categories *[]string
}

// IsEmpty reports whether the patch carries no field at all.
func (p NotePatch) IsEmpty() bool {
	return p.Title == nil && p.Content == nil && p.Categories == nil
}

// Apply merges the patch into n. CreatedAt and ID are never touched.
func (p NotePatch) Apply(n Note) Note {
	out := n.Clone()
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Content != nil {
		out.Content = *p.Content
	}
	if p.Categories != nil {
		out.Categories = dedupe(*p.Categories)
	}
	return out
}

// CategoryPatch describes a partial category update.
type CategoryPatch struct {
	Name  *string
	Color *string
}

// IsEmpty reports whether the patch carries no field at all.
func (p CategoryPatch) IsEmpty() bool {
	return p.Name == nil && p.Color == nil
}

// Apply merges the patch into c.
func (p CategoryPatch) Apply(c Category) Category {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Color != nil {
		c.Color = *p.Color
	}
	return c
}

// StringPtr is a small helper for building patches.
func StringPtr(s string) *string { return &s }

// SlicePtr is a small helper for building patches.
func SlicePtr(s []string) *[]string { return &s }

// ValidID reports whether id can be used as a record key. IDs end up as file
// names in the filesystem adapter, so separators and control characters are
// refused.
func ValidID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	for _, r := range id {
		if r == '/' || r == '\\' || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// Slugify lowercases name and replaces whitespace runs with dashes.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsSpace(r):
			if !dash {
				b.WriteRune('-')
				dash = true
			}
		case r == '/' || r == '\\' || unicode.IsControl(r):
			// dropped: would make an invalid id
		default:
			b.WriteRune(r)
			dash = false
		}
	}
	return b.String()
}

// FormatTimestamp renders t the way CreatedAt is stored.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// newerFirst orders two CreatedAt values, newest first. Values that do not
// parse as RFC 3339 fall back to string comparison.
func newerFirst(a, b string) bool {
	ta, errA := time.Parse(time.RFC3339Nano, a)
	tb, errB := time.Parse(time.RFC3339Nano, b)
	if errA == nil && errB == nil {
		return ta.After(tb)
	}
	return a > b
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
