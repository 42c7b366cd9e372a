package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/book-expert/music-service/internal/core"
	"github.com/book-expert/music-service/internal/fsutil"
)

const filePermissions = 0o644

// ErrInvalidKey is returned for keys that do not name a plain file in the store.
// Such a key can never hold an object, so it also matches core.ErrNotFound.
var ErrInvalidKey = fmt.Errorf("%w: invalid object key", core.ErrNotFound)

// FileStore implements core.ObjectStore on a local directory.
type FileStore struct {
	dir string
}

// NewFile returns a store rooted at dir. With createDir the directory is created;
// otherwise it must already exist.
func NewFile(dir string, createDir bool) (*FileStore, error) {
	if createDir {
		dirErr := fsutil.EnsureDir(dir)
		if dirErr != nil {
			return nil, fmt.Errorf("failed to create output directory '%s': %w", dir, dirErr)
		}
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("output directory '%s' is not available: %w", dir, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("output path '%s' is not a directory", dir)
	}

	return &FileStore{dir: dir}, nil
}

// Path returns the file path that holds key.
func (f *FileStore) Path(key string) (string, error) {
	if !fsutil.ValidKey(key) {
		return "", fmt.Errorf("%w: '%s'", ErrInvalidKey, key)
	}

	return filepath.Join(f.dir, key), nil
}

// Download reads the object stored under key.
func (f *FileStore) Download(_ context.Context, key string) ([]byte, error) {
	path, err := f.Path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: '%s'", core.ErrNotFound, key)
		}

		return nil, fmt.Errorf("failed to read object '%s': %w", key, err)
	}

	return data, nil
}

// Upload writes data under key. The content is written to a temp file in the same
// directory and renamed over the target, so readers see either the old or the new file.
func (f *FileStore) Upload(_ context.Context, key string, data []byte) error {
	path, err := f.Path(key)
	if err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(f.dir, "."+key+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for '%s': %w", key, err)
	}

	tempName := tempFile.Name()

	_, writeErr := tempFile.Write(data)
	closeErr := tempFile.Close()

	if writeErr != nil || closeErr != nil {
		_ = os.Remove(tempName)

		return fmt.Errorf("failed to write object '%s': %w", key, errors.Join(writeErr, closeErr))
	}

	chmodErr := os.Chmod(tempName, filePermissions)
	if chmodErr != nil {
		_ = os.Remove(tempName)

		return fmt.Errorf("failed to set permissions on '%s': %w", key, chmodErr)
	}

	renameErr := os.Rename(tempName, path)
	if renameErr != nil {
		_ = os.Remove(tempName)

		return fmt.Errorf("failed to replace object '%s': %w", key, renameErr)
	}

	return nil
}

// Delete removes the object stored under key.
func (f *FileStore) Delete(_ context.Context, key string) error {
	path, err := f.Path(key)
	if err != nil {
		return err
	}

	removeErr := os.Remove(path)
	if removeErr != nil {
		if errors.Is(removeErr, fs.ErrNotExist) {
			return fmt.Errorf("%w: '%s'", core.ErrNotFound, key)
		}

		return fmt.Errorf("failed to delete object '%s': %w", key, removeErr)
	}

	return nil
}
