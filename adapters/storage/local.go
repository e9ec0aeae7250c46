// Package storage provides StorageAdapter implementations.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/Skryldev/raw-converter/core"
	apperrors "github.com/Skryldev/raw-converter/errors"
)

// LockFileName is created inside an output directory while a batch owns it.
const LockFileName = ".rawconv.lock"

// Local stores images on the local filesystem. A key's Bucket is a directory
// below rootDir (or a path of its own when rootDir is empty); Path is the
// file name.
type Local struct {
	rootDir     string
	permissions os.FileMode
}

// NewLocal creates a Local storage adapter rooted at dir.
func NewLocal(dir string, perm os.FileMode) (*Local, error) {
	if perm == 0 {
		perm = 0o644
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("local storage: mkdir %s: %w", dir, err)
		}
	}
	return &Local{rootDir: dir, permissions: perm}, nil
}

func (l *Local) dir(bucket string) string {
	return filepath.Join(l.rootDir, filepath.Clean(bucket))
}

func (l *Local) absPath(key core.StorageKey) string {
	return filepath.Join(l.dir(key.Bucket), filepath.Clean(key.Path))
}

// Prepare creates the output directory for bucket.
func (l *Local) Prepare(ctx context.Context, bucket string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.prepare", err)
	}
	dir := l.dir(bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.prepare", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.prepare.stat", err)
	}
	if !info.IsDir() {
		return apperrors.New(apperrors.CategoryStorage, "local.prepare", fmt.Errorf("%s is not a directory", dir))
	}
	return nil
}

// Lock takes an exclusive advisory lock on bucket. A second holder, in this
// process or another, gets ErrOutputLocked until unlock is called. The lock
// file is never removed, since another process may hold it open.
func (l *Local) Lock(ctx context.Context, bucket string) (func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.lock", err)
	}
	lock := flock.New(filepath.Join(l.dir(bucket), LockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.lock", err)
	}
	if !ok {
		return nil, apperrors.New(apperrors.CategoryStorage, "local.lock",
			fmt.Errorf("%w: %s", apperrors.ErrOutputLocked, l.dir(bucket)))
	}
	return func() error {
		if err := lock.Unlock(); err != nil {
			return apperrors.Wrap(apperrors.CategoryStorage, "local.unlock", err)
		}
		return nil
	}, nil
}

func (l *Local) Put(ctx context.Context, key core.StorageKey, r io.Reader, meta map[string]string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.put", err)
	}

	path := l.absPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.put.mkdir", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, l.permissions)
	if err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.put.open", err)
	}
	if _, err = io.Copy(f, r); err != nil {
		f.Close()
		return apperrors.Wrap(apperrors.CategoryStorage, "local.put.copy", err)
	}
	if err := f.Close(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.put.close", err)
	}

	// Persist metadata as a side-car JSON file.
	if len(meta) > 0 {
		metaPath := path + ".meta.json"
		mf, err := os.OpenFile(metaPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, l.permissions)
		if err == nil {
			_ = json.NewEncoder(mf).Encode(meta)
			mf.Close()
		}
	}
	return nil
}

// Path returns the filesystem location a key is written to.
func (l *Local) Path(key core.StorageKey) string { return l.absPath(key) }

func (l *Local) Get(ctx context.Context, key core.StorageKey) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.get", err)
	}
	f, err := os.Open(l.absPath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.New(apperrors.CategoryStorage, "local.get", fmt.Errorf("key not found: %v", key))
		}
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "local.get.open", err)
	}
	return f, nil
}

func (l *Local) Delete(ctx context.Context, key core.StorageKey) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.delete", err)
	}
	path := l.absPath(key)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperrors.Wrap(apperrors.CategoryStorage, "local.delete", err)
	}
	_ = os.Remove(path + ".meta.json")
	return nil
}

func (l *Local) Exists(ctx context.Context, key core.StorageKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, apperrors.Wrap(apperrors.CategoryStorage, "local.exists", err)
	}
	_, err := os.Stat(l.absPath(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, apperrors.Wrap(apperrors.CategoryStorage, "local.exists.stat", err)
}

var (
	_ core.StorageAdapter = (*Local)(nil)
	_ core.Preparer       = (*Local)(nil)
	_ core.Locker         = (*Local)(nil)
)
