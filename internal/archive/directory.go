package archive

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// DirectoryReader serves an extracted set from a directory tree.
type DirectoryReader struct {
	root  string
	names []string
	known map[string]struct{}

	mu     sync.Mutex
	closed bool
}

// NewDirectoryReader snapshots the files below root.
func NewDirectoryReader(root string) (*DirectoryReader, error) {
	var all []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		all = append(all, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	sort.Strings(all)

	known := make(map[string]struct{}, len(all))
	for _, name := range all {
		known[name] = struct{}{}
	}
	return &DirectoryReader{root: root, names: filterNames(all), known: known}, nil
}

func (r *DirectoryReader) Name() string { return filepath.Base(r.root) }

func (r *DirectoryReader) Filenames() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

func (r *DirectoryReader) GetStream(name string) (io.ReadSeeker, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if _, ok := r.known[name]; !ok {
		return nil, notFound(r.Name(), name)
	}
	data, err := os.ReadFile(filepath.Join(r.root, filepath.FromSlash(name)))
	if err != nil {
		return nil, fmt.Errorf("%s: read %q: %w", r.Name(), name, err)
	}
	return bytes.NewReader(data), nil
}

func (r *DirectoryReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
