package filestore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// ErrInvalidHash is returned for a hash that is not 64 lowercase hex characters.
var ErrInvalidHash = errors.New("invalid content hash")

// Store is a content-addressed file store.
type Store struct {
	root string
}

// New creates the root directory when needed and returns a store over it.
func New(root string) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("file store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create file store root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the directory the store writes to.
func (s *Store) Root() string {
	return s.root
}

// Put copies r into the store and returns its hash and size.
func (s *Store) Put(r io.Reader) (string, int64, error) {
	tmpFile, err := os.CreateTemp(s.root, "put-*.tmp")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	hasher := blake3.New()
	size, err := io.Copy(io.MultiWriter(tmpFile, hasher), r)
	if err != nil {
		_ = tmpFile.Close()
		return "", 0, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", 0, fmt.Errorf("close temp file: %w", err)
	}

	hash := hex.EncodeToString(hasher.Sum(nil))
	finalPath := s.path(hash)
	if _, err := os.Stat(finalPath); err == nil {
		return hash, size, nil
	}
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return "", 0, fmt.Errorf("create shard directory: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", 0, fmt.Errorf("store %s: %w", hash, err)
	}
	success = true
	return hash, size, nil
}

// Open returns the stored file for hash. A missing file yields an error
// matching fs.ErrNotExist.
func (s *Store) Open(hash string) (*os.File, error) {
	if err := validateHash(hash); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(hash))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", hash, err)
	}
	return f, nil
}

// Exists reports whether content with hash is stored.
func (s *Store) Exists(hash string) bool {
	if validateHash(hash) != nil {
		return false
	}
	_, err := os.Stat(s.path(hash))
	return err == nil
}

// Remove deletes stored content. Removing absent content is not an error.
func (s *Store) Remove(hash string) error {
	if err := validateHash(hash); err != nil {
		return err
	}
	if err := os.Remove(s.path(hash)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", hash, err)
	}
	return nil
}

func (s *Store) path(hash string) string {
	return filepath.Join(s.root, hash[:2], hash)
}

func validateHash(hash string) error {
	if len(hash) != 64 {
		return fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	if _, err := hex.DecodeString(hash); err != nil || strings.ToLower(hash) != hash {
		return fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}
	return nil
}

// HashBytes returns the hex BLAKE3 digest of data.
func HashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CombineHashes derives one hash from a set of content hashes. Order does not
// matter.
func CombineHashes(hashes []string) string {
	sorted := append([]string(nil), hashes...)
	sort.Strings(sorted)
	hasher := blake3.New()
	for _, h := range sorted {
		_, _ = hasher.Write([]byte(h))
		_, _ = hasher.Write([]byte{0})
	}
	return hex.EncodeToString(hasher.Sum(nil))
}
