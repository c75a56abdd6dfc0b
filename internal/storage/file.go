package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"coloring-pages/internal/apperr"
)

type FileStore struct {
	dir        string
	publicPath string
}

func NewFileStore(dir, publicPath string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("image output directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve output directory: %w", err)
	}
	if publicPath == "" {
		publicPath = "/api/image"
	}
	return &FileStore{dir: abs, publicPath: strings.TrimRight(publicPath, "/")}, nil
}

func (s *FileStore) Dir() string {
	return s.dir
}

// Prepare makes sure the output directory exists, creating it on first use.
func (s *FileStore) Prepare(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return apperr.DirectoryUnavailable(fmt.Errorf("%s is not a directory", s.dir))
		}
		return nil
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return apperr.DirectoryUnavailable(fmt.Errorf("create %s: %w", s.dir, err))
		}
		return nil
	default:
		return apperr.DirectoryUnavailable(fmt.Errorf("access %s: %w", s.dir, err))
	}
}

func (s *FileStore) Save(ctx context.Context, obj Object) (string, error) {
	if err := ValidateFilename(obj.Filename); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target := filepath.Join(s.dir, obj.Filename)
	if err := os.WriteFile(target, obj.Data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", obj.Filename, err)
	}
	return path.Join(s.publicPath, obj.Filename), nil
}

// Locate returns the on-disk path of a previously saved image.
func (s *FileStore) Locate(filename string) (string, error) {
	if err := ValidateFilename(filename); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filename), nil
}

// ValidateFilename rejects anything that could escape the output directory.
func ValidateFilename(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return apperr.Validation(apperr.CodeInvalidParameter, "invalid filename")
	}
	return nil
}
