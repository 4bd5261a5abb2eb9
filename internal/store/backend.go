package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrNotFound is returned by a Backend when a key has never been saved.
var ErrNotFound = errors.New("artifact not found")

// Backend persists opaque artifacts by key. Implementations must make each
// Save atomic: a reader sees either the old payload or the new one.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Close() error
}

// Backend names accepted by OpenBackend.
const (
	BackendFile     = "file"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

// BackendOptions selects and configures a backend.
type BackendOptions struct {
	Kind        string
	DataDir     string
	PostgresURL string
	Logger      *slog.Logger
}

// OpenBackend constructs the backend named by opt.Kind.
func OpenBackend(ctx context.Context, opt BackendOptions) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(opt.Kind)) {
	case "", BackendFile:
		return NewFileBackend(opt.DataDir)
	case BackendBadger:
		cfg := DefaultBadgerConfig()
		cfg.Path = opt.DataDir
		cfg.Logger = opt.Logger
		return OpenBadger(cfg)
	case BackendPostgres:
		if opt.PostgresURL == "" {
			return nil, errors.New("postgres backend requires postgres_url")
		}
		return OpenPostgres(ctx, opt.PostgresURL)
	}
	return nil, fmt.Errorf("unknown store backend: %s (use %s|%s|%s)", opt.Kind, BackendFile, BackendBadger, BackendPostgres)
}
