package local

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/smallbiznis/genstudio/internal/storage"
)

// Store writes artifacts under baseDir and serves them from baseURL.
type Store struct {
	baseDir string
	baseURL string
}

func New(baseDir, baseURL string) *Store {
	return &Store{
		baseDir: baseDir,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}
}

func (s *Store) Put(ctx context.Context, key string, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	if s.baseURL == "" {
		return "file://" + filepath.ToSlash(fullPath), nil
	}
	return s.baseURL + "/" + clean, nil
}

func cleanKey(key string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(key))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." {
		return "", storage.ErrInvalidKey
	}
	return clean, nil
}

var _ storage.Store = (*Store)(nil)
