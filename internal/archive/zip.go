package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zip"
)

const (
	// maxEntrySize bounds the decompressed size of a single entry.
	maxEntrySize = 1 << 30
	// preallocLimit caps the buffer sized from an entry's declared size.
	preallocLimit = 1 << 20
)

// ErrEntryTooLarge is returned for entries that decompress beyond maxEntrySize.
var ErrEntryTooLarge = errors.New("archive entry too large")

// ZipReader reads entries from a zip archive such as an .osz file.
type ZipReader struct {
	name    string
	stream  io.ReadSeekCloser
	archive *zip.Reader
	entries map[string]*zip.File
	names   []string

	mu     sync.Mutex
	closed bool
}

// NewZipReader opens the zip archive in stream. The reader owns stream and
// closes it on Close.
func NewZipReader(stream io.ReadSeekCloser, name string) (*ZipReader, error) {
	size, err := stream.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("%s: size archive: %w", name, err)
	}
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%s: rewind archive: %w", name, err)
	}

	readerAt, ok := stream.(io.ReaderAt)
	if !ok {
		data, err := io.ReadAll(stream)
		if err != nil {
			return nil, fmt.Errorf("%s: read archive: %w", name, err)
		}
		readerAt = bytes.NewReader(data)
	}

	zr, err := zip.NewReader(readerAt, size)
	if err != nil {
		return nil, fmt.Errorf("%s: open zip: %w", name, err)
	}

	r := &ZipReader{
		name:    name,
		stream:  stream,
		archive: zr,
		entries: make(map[string]*zip.File, len(zr.File)),
	}
	all := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		if _, dup := r.entries[f.Name]; dup {
			continue
		}
		r.entries[f.Name] = f
		all = append(all, f.Name)
	}
	r.names = filterNames(all)
	return r, nil
}

func (r *ZipReader) Name() string { return r.name }

func (r *ZipReader) Filenames() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

func (r *ZipReader) GetStream(name string) (io.ReadSeeker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}

	entry, ok := r.entries[name]
	if !ok {
		return nil, notFound(r.name, name)
	}
	rc, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("%s: open %q: %w", r.name, name, err)
	}
	defer rc.Close()

	buf := bytes.NewBuffer(make([]byte, 0, min(entry.UncompressedSize64, preallocLimit)))
	n, err := io.Copy(buf, io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("%s: read %q: %w", r.name, name, err)
	}
	if n > maxEntrySize {
		return nil, fmt.Errorf("%s: %q: %w", r.name, name, ErrEntryTooLarge)
	}
	return bytes.NewReader(buf.Bytes()), nil
}

func (r *ZipReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.entries = nil
	return r.stream.Close()
}
