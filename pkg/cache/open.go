package cache

import (
	"context"
	"errors"
	"fmt"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendDisk     = "disk"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

// Backend configuration errors.
var (
	ErrUnknownBackend = errors.New("unknown cache backend")
	ErrMissingPath    = errors.New("cache backend requires a path")
	ErrMissingDSN     = errors.New("cache backend requires a dsn")
)

// Config selects and configures a store.
type Config struct {
	Backend   string   `mapstructure:"backend"`
	Path      string   `mapstructure:"path"`
	DSN       string   `mapstructure:"dsn"`
	FrontSize int      `mapstructure:"front_size"`
	S3        S3Config `mapstructure:"s3"`
}

// Open creates the store named by cfg.Backend. An empty backend is memory.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendDisk:
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingPath, cfg.Backend)
		}

		store, err := NewDiskStore(cfg.Path)
		if err != nil {
			return nil, err
		}

		return store, nil
	case BackendSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingPath, cfg.Backend)
		}

		store, err := OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}

		return store, nil
	case BackendPostgres:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingDSN, cfg.Backend)
		}

		store, err := OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}

		return store, nil
	case BackendS3:
		store, err := NewS3Store(cfg.S3)
		if err != nil {
			return nil, err
		}

		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
