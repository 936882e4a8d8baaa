package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultMaxValueSize is the largest file DirSource serves by default.
const DefaultMaxValueSize = 1 << 20

// DirSource is a Source reading one file per key from a directory.
// Keys that are not local paths (absolute, containing "..") are not found.
type DirSource struct {
	Dir          string
	Flags        uint32
	MaxValueSize int64
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{Dir: dir, MaxValueSize: DefaultMaxValueSize}
}

func (d *DirSource) Fetch(ctx context.Context, key string) (Item, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, err
	}
	if !filepath.IsLocal(key) {
		return Item{}, ErrNotFound
	}

	path := filepath.Join(d.Dir, key)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Item{}, ErrNotFound
		}
		return Item{}, err
	}
	if info.IsDir() {
		return Item{}, ErrNotFound
	}

	limit := d.MaxValueSize
	if limit <= 0 {
		limit = DefaultMaxValueSize
	}
	if info.Size() > limit {
		return Item{}, fmt.Errorf("store: %s: value of %d bytes exceeds %d", key, info.Size(), limit)
	}

	value, err := os.ReadFile(path)
	if err != nil {
		return Item{}, err
	}
	return Item{Key: key, Flags: d.Flags, Value: value}, nil
}
