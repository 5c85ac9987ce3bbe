package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

type LocalObjectStore struct {
	baseDir string
}

var _ ObjectStore = (*LocalObjectStore)(nil)

func NewLocalObjectStore(dir string) (*LocalObjectStore, error) {
	baseDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for %s: %w", dir, err)
	}

	return &LocalObjectStore{baseDir: baseDir}, nil
}

func (s *LocalObjectStore) PutObject(ctx context.Context, key string, data io.Reader) error {
	path := localStorageFullpath(s.baseDir, key)
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory for %s/%s: %w", s.baseDir, key, err)
	}

	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file %s/%s: %w", s.baseDir, key, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, data); err != nil {
		return fmt.Errorf("failed to write file %s/%s: %w", s.baseDir, key, err)
	}

	return nil
}

func (s *LocalObjectStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(localStorageFullpath(s.baseDir, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("failed to read file %s/%s: %w", s.baseDir, key, err)
	}
	return data, nil
}

func (s *LocalObjectStore) DeleteObjects(ctx context.Context, prefix string) error {
	fullPath := localStorageFullpath(s.baseDir, prefix)
	if err := os.RemoveAll(fullPath); err != nil {
		return fmt.Errorf("failed to delete objects in %s/%s: %w", s.baseDir, prefix, err)
	}
	return nil
}

func (s *LocalObjectStore) PresignUpload(ctx context.Context, key, contentType string, expiry time.Duration) (PresignedUpload, error) {
	return PresignedUpload{}, ErrPresignUnsupported
}
