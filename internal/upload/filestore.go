package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// FileStore persists staged file content.
type FileStore interface {
	// Save streams r to storage under a generated name, enforcing limit
	// bytes. Returns the stored path and the byte count.
	Save(originalFilename string, r io.Reader, limit int64) (path string, size int64, err error)

	// Remove deletes a stored file. Missing files are not an error.
	Remove(path string) error
}

// sizeLimitError wraps ErrTooLarge so callers can branch on the sentinel
// while the message carries the actual limit.
type sizeLimitError struct {
	limit int64
}

func (e *sizeLimitError) Error() string {
	return fmt.Sprintf("file exceeds the %d MB limit", e.limit/(1<<20))
}

// DiskStore keeps staged files in one directory with generated names, so
// hostile filenames never touch the filesystem.
type DiskStore struct {
	Dir string
}

// NewDiskStore ensures the staging directory exists.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir %s: %w", dir, err)
	}
	return &DiskStore{Dir: dir}, nil
}

func (s *DiskStore) Save(originalFilename string, r io.Reader, limit int64) (string, int64, error) {
	name := uuid.NewString() + filepath.Ext(originalFilename)
	path := filepath.Join(s.Dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create staged file: %w", err)
	}

	// Read one byte past the limit so an exactly-at-limit file passes.
	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("write staged file: %w", err)
	}
	if n > limit {
		_ = os.Remove(path)
		return "", 0, &sizeLimitError{limit: limit}
	}
	return path, n, nil
}

func (s *DiskStore) Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove staged file %s: %w", path, err)
	}
	return nil
}
