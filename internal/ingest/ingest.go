// Package ingest provides the Prober collaborator described in spec.md §6:
// an external component that turns a file on disk into a BookVariant, kept
// deliberately narrow since file metadata extraction (EPUB/PDF parsing) is
// a Non-goal. Unlike the teacher's internal/epub, which opens the zip
// archive and walks OPF XML for title/author/cover, this Prober only
// derives the BookType from the file extension and a content hash — the
// narrowest implementation that can still feed internal/store.InsertVariants
// and internal/store.Update a real BookVariant.
package ingest

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shelfmgr/libshelf/internal/record"
)

// ErrUnsupportedExtension is returned when a file's extension does not map
// to a known BookType.
var ErrUnsupportedExtension = fmt.Errorf("ingest: unsupported file extension")

// Prober turns a file path into a BookVariant. Implementations may stat and
// hash the file; they must not assume the file stays unchanged afterward.
type Prober interface {
	Probe(path string) (record.BookVariant, error)
}

// ExtensionProber is the trivial Prober: BookType comes from the file
// extension, LocalTitle from the filename (extension stripped), and the
// content hash from a full SHA-256 pass over the file.
type ExtensionProber struct{}

var extToType = map[string]record.BookType{
	".epub": record.EPUB,
	".mobi": record.MOBI,
	".pdf":  record.PDF,
}

// Probe reads path fully to compute its content hash and size, and derives
// BookType and LocalTitle from the path itself.
func (ExtensionProber) Probe(path string) (record.BookVariant, error) {
	bookType, ok := extToType[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return record.BookVariant{}, fmt.Errorf("probe %q: %w", path, ErrUnsupportedExtension)
	}

	f, err := os.Open(path)
	if err != nil {
		return record.BookVariant{}, fmt.Errorf("probe %q: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return record.BookVariant{}, fmt.Errorf("probe %q: hash file: %w", path, err)
	}

	var hash [32]byte
	copy(hash[:], h.Sum(nil))

	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return record.BookVariant{
		BookType:   bookType,
		Path:       path,
		LocalTitle: title,
		Hash:       hash,
		FileSize:   size,
	}, nil
}
