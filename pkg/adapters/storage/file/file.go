package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aescanero/hrrelay/pkg/ports"
	"go.uber.org/zap"
)

const filePerm = 0o644

// Store implements ports.Store on top of a single plain-text file
type Store struct {
	path   string
	atomic bool
	logger *zap.Logger
}

// NewStore creates a file store for path.
// When atomic is set, writes go to a temporary file in the same directory
// which is then renamed over path.
func NewStore(path string, atomic bool, logger *zap.Logger) *Store {
	return &Store{
		path:   path,
		atomic: atomic,
		logger: logger,
	}
}

// Path returns the backing file location
func (s *Store) Path() string {
	return s.path
}

// Read returns the entire contents of the backing file
func (s *Store) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ports.ErrNotFound, s.path)
		}
		return "", fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	return string(data), nil
}

// Write replaces the contents of the backing file with value
func (s *Store) Write(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if s.atomic {
		return s.writeAtomic(value)
	}

	if err := os.WriteFile(s.path, []byte(value), filePerm); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}

	return nil
}

// writeAtomic writes to a sibling temp file and renames it into place
func (s *Store) writeAtomic(value string) error {
	dir := filepath.Dir(s.path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		if rmErr := os.Remove(tmpName); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			s.logger.Warn("failed to remove temp file",
				zap.String("path", tmpName),
				zap.Error(rmErr))
		}
	}

	if _, err := tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		cleanup()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("failed to rename into %s: %w", s.path, err)
	}

	return nil
}
