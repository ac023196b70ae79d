package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Disk layout constants.
const (
	diskDirPerm     = 0o755
	diskFilePerm    = 0o644
	diskShardLen    = 2
	diskEntrySuffix = ".entry"
)

// DiskStore keeps one file per key under a root directory, sharded by the
// first two characters of the key. Entries are written to a temporary file
// and hard-linked into place, so a reader never observes a partial entry and
// the first writer wins even across processes.
type DiskStore struct {
	root string
}

// NewDiskStore creates a DiskStore rooted at dir, creating it if needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	err := os.MkdirAll(dir, diskDirPerm)
	if err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	return &DiskStore{root: dir}, nil
}

// Get implements Store.
func (store *DiskStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := store.path(key)
	if err != nil {
		return nil, err
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("read cache entry: %w", err)
	}

	return data, nil
}

// Create implements Store.
func (store *DiskStore) Create(ctx context.Context, key string, data []byte) error {
	path, err := store.path(key)
	if err != nil {
		return err
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	dir := filepath.Dir(path)

	err = os.MkdirAll(dir, diskDirPerm)
	if err != nil {
		return fmt.Errorf("create shard dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp entry: %w", err)
	}

	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	_, err = tmp.Write(data)
	if err != nil {
		tmp.Close()

		return fmt.Errorf("write temp entry: %w", err)
	}

	err = tmp.Chmod(diskFilePerm)
	if err != nil {
		tmp.Close()

		return fmt.Errorf("chmod temp entry: %w", err)
	}

	err = tmp.Close()
	if err != nil {
		return fmt.Errorf("close temp entry: %w", err)
	}

	err = os.Link(tmpName, path)
	if errors.Is(err, os.ErrExist) {
		return ErrExists
	}

	if err != nil {
		return fmt.Errorf("publish cache entry: %w", err)
	}

	return nil
}

// Close implements Store.
func (store *DiskStore) Close() error {
	return nil
}

func (store *DiskStore) path(key string) (string, error) {
	if !validKey(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	shard := key
	if len(shard) > diskShardLen {
		shard = shard[:diskShardLen]
	}

	return filepath.Join(store.root, shard, key+diskEntrySuffix), nil
}

// validKey accepts the characters fingerprints and test keys use, and
// nothing that could escape a directory.
func validKey(key string) bool {
	if key == "" {
		return false
	}

	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}

	return true
}
