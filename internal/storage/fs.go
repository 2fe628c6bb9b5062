package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidName is returned for upload names that cannot be stored.
var ErrInvalidName = errors.New("invalid file name")

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the upload directory
}

// NewFS creates a new FS provider rooted at the given directory, creating
// it when missing.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute upload directory.
func (f *FS) Root() string {
	return f.root
}

// Abs resolves a relative path against the upload root and rejects any
// result that escapes it (directory traversal).
func (f *FS) Abs(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("storage: empty path")
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path escapes upload root: %s", rel)
	}
	return abs, nil
}

// SafeName reduces a user supplied file name to its base name and rejects
// names that are empty or hidden.
func SafeName(name string) (string, error) {
	base := filepath.Base(filepath.Clean(strings.ReplaceAll(name, `\`, "/")))
	if base == "." || base == "/" || base == "" || strings.HasPrefix(base, ".") {
		return "", fmt.Errorf("storage: %w %q", ErrInvalidName, name)
	}
	return base, nil
}

// Save atomically writes r: tmp file → fsync → rename. The stored name is
// prefixed with a random id so repeated uploads of one file never collide.
func (f *FS) Save(name string, r io.Reader) (StoredFile, error) {
	base, err := SafeName(name)
	if err != nil {
		return StoredFile{}, err
	}
	rel := uuid.NewString() + "-" + base
	abs, err := f.Abs(rel)
	if err != nil {
		return StoredFile{}, err
	}

	tmp, err := os.CreateTemp(f.root, ".tabkeep-tmp-*")
	if err != nil {
		return StoredFile{}, fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		return StoredFile{}, fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return StoredFile{}, fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return StoredFile{}, fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return StoredFile{}, fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return StoredFile{
		Name:     base,
		Path:     rel,
		Size:     n,
		Checksum: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// Delete removes a stored upload.
func (f *FS) Delete(path string) error {
	abs, err := f.Abs(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("storage: delete %s: %w", path, err)
	}
	return nil
}

// OriginalName recovers the user supplied name from a stored upload path.
func OriginalName(path string) string {
	base := filepath.Base(path)
	if len(base) > 37 && base[36] == '-' {
		if _, err := uuid.Parse(base[:36]); err == nil {
			return base[37:]
		}
	}
	return base
}
