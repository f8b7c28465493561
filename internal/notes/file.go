package notes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// FileStore writes notes as markdown files into a directory. Filenames are
// timestamped so notes sort chronologically.
type FileStore struct {
	dir string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the notes directory if needed and returns a store
// writing into it.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("notes: directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("notes: create directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save renders the note to markdown and writes it. The note's ID is set to
// the written file path.
func (s *FileStore) Save(ctx context.Context, n *Note) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	name := n.CreatedAt.Format("20060102-150405")
	if slug := slugify(n.Title); slug != "" {
		name += "-" + slug
	}
	path := filepath.Join(s.dir, name+".md")

	if err := os.WriteFile(path, []byte(RenderMarkdown(n)), 0o644); err != nil {
		return fmt.Errorf("notes: write %s: %w", path, err)
	}
	n.ID = path
	return nil
}

// slugify lowercases the title and keeps letters and digits, joining runs of
// anything else with single dashes. Limited to 40 characters.
func slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			if b.Len() >= 40 {
				break
			}
			continue
		}
		dash = true
	}
	return b.String()
}
