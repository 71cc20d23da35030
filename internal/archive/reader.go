package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
)

var (
	// ErrNotFound is returned by GetStream for a name the archive does not hold.
	ErrNotFound = fmt.Errorf("archive entry not found: %w", fs.ErrNotExist)
	// ErrClosed is returned when a reader is used after Close.
	ErrClosed = errors.New("archive reader closed")
)

// Reader lists and opens the entries of a beatmap set archive.
type Reader interface {
	// Name identifies the archive, usually its file name.
	Name() string
	// Filenames returns the entry names, excluding ignored system files. The
	// slice is a copy the caller may modify.
	Filenames() []string
	// GetStream returns the full contents of the named entry positioned at
	// offset zero.
	GetStream(name string) (io.ReadSeeker, error)
	Close() error
}

var ignoredNames = []string{"__MACOSX", ".DS_Store", "Thumbs.db"}

// isIgnored reports whether name contains any ignored marker, comparing with
// Unicode case folding.
func isIgnored(name string) bool {
	folder := cases.Fold()
	folded := folder.String(name)
	for _, marker := range ignoredNames {
		if strings.Contains(folded, folder.String(marker)) {
			return true
		}
	}
	return false
}

func filterNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !isIgnored(name) {
			out = append(out, name)
		}
	}
	return out
}

// Open returns a DirectoryReader for a directory and a zip reader for
// anything else.
func Open(path string) (Reader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	if info.IsDir() {
		return NewDirectoryReader(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	reader, err := NewZipReader(f, filepath.Base(path))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return reader, nil
}

func notFound(archiveName, entry string) error {
	return fmt.Errorf("%s: %q: %w", archiveName, entry, ErrNotFound)
}
