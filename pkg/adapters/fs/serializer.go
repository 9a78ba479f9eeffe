package fs

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/flashpad/pkg/core"
)

var frontmatterOpen = []byte("---\n")

// frontmatter is the YAML header of a note file. The id is the file name
// and is not repeated here.
type frontmatter struct {
	Title      string   `yaml:"title"`
	CreatedAt  string   `yaml:"created_at"`
	Categories []string `yaml:"categories,flow"`
}

// encodeNote renders a note as Markdown with a YAML frontmatter block. The
// body is written verbatim after the closing delimiter.
func encodeNote(n core.Note) ([]byte, error) {
	fm := frontmatter{
		Title:      n.Title,
		CreatedAt:  n.CreatedAt,
		Categories: n.Categories,
	}
	if fm.Categories == nil {
		fm.Categories = []string{}
	}

	var buf bytes.Buffer
	buf.Write(frontmatterOpen)
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(fm); err != nil {
		return nil, err
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	buf.WriteString("---\n")
	buf.WriteString(n.Content)
	return buf.Bytes(), nil
}

// delimiterLine returns the length of the "---" line data starts with,
// accepting LF and CRLF endings, or 0.
func delimiterLine(data []byte) int {
	switch {
	case bytes.HasPrefix(data, []byte("---\n")):
		return 4
	case bytes.HasPrefix(data, []byte("---\r\n")):
		return 5
	}
	return 0
}

// closingDelimiter finds the first "\n---" line. It returns the index of
// the preceding newline and the length of the delimiter line, or -1.
func closingDelimiter(data []byte) (int, int) {
	for offset := 0; ; {
		i := bytes.IndexByte(data[offset:], '\n')
		if i < 0 {
			return -1, 0
		}
		i += offset
		if size := delimiterLine(data[i+1:]); size > 0 {
			return i, size
		}
		offset = i + 1
	}
}

// decodeNote parses a note file. Files without frontmatter are accepted as
// plain content; their creation time falls back to modTime.
func decodeNote(id string, data []byte, modTime time.Time) (core.Note, error) {
	n := core.Note{ID: id, Categories: []string{}}

	open := delimiterLine(data)
	if open == 0 {
		n.Content = string(data)
		n.CreatedAt = core.FormatTimestamp(modTime)
		return n, nil
	}

	rest := data[open:]
	var header, body []byte
	if size := delimiterLine(rest); size > 0 {
		// empty frontmatter
		body = rest[size:]
	} else {
		end, size := closingDelimiter(rest)
		if end < 0 {
			return core.Note{}, errors.New("frontmatter started but no closing delimiter found")
		}
		header = rest[:end+1]
		body = rest[end+1+size:]
	}

	var fm frontmatter
	if err := yaml.Unmarshal(header, &fm); err != nil {
		return core.Note{}, fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	n.Title = fm.Title
	n.Content = string(body)
	n.CreatedAt = fm.CreatedAt
	if n.CreatedAt == "" {
		n.CreatedAt = core.FormatTimestamp(modTime)
	}
	if fm.Categories != nil {
		n.Categories = fm.Categories
	}
	return n, nil
}

// categoryFile is the layout of categories.yaml.
type categoryFile struct {
	Categories []core.Category `yaml:"categories"`
}

func encodeCategories(cats []core.Category) ([]byte, error) {
	if cats == nil {
		cats = []core.Category{}
	}
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(categoryFile{Categories: cats}); err != nil {
		return nil, err
	}
	if err := encoder.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeCategories(data []byte) ([]core.Category, error) {
	var f categoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid categories file: %w", err)
	}
	if f.Categories == nil {
		return []core.Category{}, nil
	}
	return f.Categories, nil
}
