package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/satark-cli/internal/utils"
)

// FileBackend stores each artifact as a JSON file under a directory.
type FileBackend struct {
	dir string
}

// NewFileBackend creates dir when needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		return nil, errors.New("file backend requires a data directory")
	}
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) path(key string) string {
	return filepath.Join(b.dir, strings.ReplaceAll(key, "/", "_")+".json")
}

func (b *FileBackend) Load(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (b *FileBackend) Save(_ context.Context, key string, data []byte) error {
	return utils.SafeWriteFile(b.path(key), data)
}

func (b *FileBackend) Close() error { return nil }
