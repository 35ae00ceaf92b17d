// Package storage keeps uploaded documents on local disk.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/regcheck/backend/internal/logger"
)

const tempSuffix = ".part"

var ErrOutsideRoot = errors.New("path is outside the storage directory")

// FileStore saves and removes uploaded document files
type FileStore interface {
	// Save copies r into a new file named after a fresh uuid and the given
	// extension and returns the stored path.
	Save(r io.Reader, ext string) (string, error)
	Open(path string) (io.ReadCloser, error)
	Delete(path string) error
	// CleanupTemp removes unfinished writes older than maxAge
	CleanupTemp(maxAge time.Duration) (int, error)
}

type LocalFileStore struct {
	root string
	now  func() time.Time
}

func NewLocalFileStore(dir string) (*LocalFileStore, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload directory: %w", err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &LocalFileStore{root: root, now: time.Now}, nil
}

func (s *LocalFileStore) Root() string { return s.root }

func (s *LocalFileStore) Save(r io.Reader, ext string) (string, error) {
	name := uuid.NewString() + strings.ToLower(ext)
	final := filepath.Join(s.root, name)
	tmp := final + tempSuffix

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("finalize file: %w", err)
	}
	return final, nil
}

func (s *LocalFileStore) Open(path string) (io.ReadCloser, error) {
	if err := s.contains(path); err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Delete removes a stored file; a missing file is not an error
func (s *LocalFileStore) Delete(path string) error {
	if err := s.contains(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

func (s *LocalFileStore) CleanupTemp(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("read upload directory: %w", err)
	}

	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), tempSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.root, entry.Name())); err != nil {
			logger.WithError(err, "storage").WithField("file", entry.Name()).Warn("Failed to remove stale temp file")
			continue
		}
		removed++
	}
	return removed, nil
}

func (s *LocalFileStore) contains(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ErrOutsideRoot
	}
	return nil
}
