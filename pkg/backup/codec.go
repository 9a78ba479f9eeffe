// Package backup converts notes to and from the Flash Notepad plain-text
// backup format and runs the export/import workflows against a store.
//
// A backup looks like:
//
//	FLASH NOTEPAD BACKUP - 2024-01-01T00:00:00.000Z
//	VERSION: 1.0
//	NOTES: 1
//
//	--- NOTE START ---
//	ID: 1
//	TITLE: Shopping
//	CREATED: 2024-01-01T00:00:00Z
//	CATEGORIES: Work:#4285F4
//	CONTENT:
//	milk
//	eggs
//	--- NOTE END ---
package backup

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/flashpad/pkg/core"
)

const (
	// FormatVersion is written into every backup header.
	FormatVersion = "1.0"

	// DefaultBatchSize is the number of notes written between flushes.
	DefaultBatchSize = 50

	headerMarker = "FLASH NOTEPAD BACKUP - "
	noteStart    = "--- NOTE START ---"
	noteEnd      = "--- NOTE END ---"

	fieldID         = "ID:"
	fieldTitle      = "TITLE:"
	fieldCreated    = "CREATED:"
	fieldCategories = "CATEGORIES:"
	fieldContent    = "CONTENT:"
	fieldVersion    = "VERSION:"
)

type options struct {
	batchSize int
	now       func() time.Time
	newID     func() string
}

// Option configures serialization and parsing.
type Option func(*options)

// WithBatchSize sets how many notes are written before the output is
// flushed. Values below 1 are ignored.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithClock fixes the time used for the header and for missing timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator sets the generator for missing note ids and temporary
// category ids.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) {
		if fn != nil {
			o.newID = fn
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		batchSize: DefaultBatchSize,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Write serializes notes in the given order. categories resolves the ids
// stored on notes to names and colors; unresolved ids are written as-is.
// Output is flushed every batch and is identical for any batch size.
func Write(w io.Writer, notes []core.Note, categories map[string]core.Category, opts ...Option) error {
	o := buildOptions(opts)
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "%s%s\n", headerMarker, core.FormatTimestamp(o.now()))
	fmt.Fprintf(bw, "%s %s\n", fieldVersion, FormatVersion)
	fmt.Fprintf(bw, "NOTES: %d\n\n", len(notes))

	for start := 0; start < len(notes); start += o.batchSize {
		end := min(start+o.batchSize, len(notes))
		for _, n := range notes[start:end] {
			writeNote(bw, n, categories, o)
		}
		if err := bw.Flush(); err != nil {
			return fmt.Errorf("failed to write backup: %w", err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	return nil
}

// Serialize is Write into a string.
func Serialize(notes []core.Note, categories map[string]core.Category, opts ...Option) string {
	var sb strings.Builder
	// strings.Builder never fails.
	_ = Write(&sb, notes, categories, opts...)
	return sb.String()
}

func writeNote(w *bufio.Writer, n core.Note, categories map[string]core.Category, o options) {
	id := n.ID
	if id == "" {
		id = "unknown"
	}
	title := n.Title
	if title == "" {
		title = core.DefaultNoteTitle
	}
	title = strings.ReplaceAll(title, "\n", " ")
	created := n.CreatedAt
	if created == "" {
		created = core.FormatTimestamp(o.now())
	}

	w.WriteString(noteStart + "\n")
	fmt.Fprintf(w, "%s %s\n", fieldID, id)
	fmt.Fprintf(w, "%s %s\n", fieldTitle, title)
	fmt.Fprintf(w, "%s %s\n", fieldCreated, created)
	fmt.Fprintf(w, "%s %s\n", fieldCategories, categoryList(n.Categories, categories))
	w.WriteString(fieldContent + "\n")
	w.WriteString(n.Content + "\n")
	w.WriteString(noteEnd + "\n\n")
}

var nameSanitizer = strings.NewReplacer(":", "", ",", "")

func categoryList(ids []string, categories map[string]core.Category) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		c, ok := categories[id]
		if !ok {
			parts = append(parts, id)
			continue
		}
		parts = append(parts, nameSanitizer.Replace(c.Name)+":"+c.Color)
	}
	return strings.Join(parts, ", ")
}
