package kv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// File stores each key as <dir>/<key>.json. Values are written to a temp
// file and renamed into place, so a reader sees either the old or the new
// value. A per-key lock file serializes writers across processes.
type File struct {
	dir string
}

// NewFile creates dir if needed and returns a File gateway rooted there.
func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, fmt.Errorf("file gateway: data dir is empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &File{dir: dir}, nil
}

// Path returns the file backing key.
func (f *File) Path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

func (f *File) lockPath(key string) string {
	return filepath.Join(f.dir, "."+key+".lock")
}

// lock takes a flock of the given kind on key's lock file. The returned
// func releases it.
func (f *File) lock(key string, how int) (func(), error) {
	lf, err := os.OpenFile(f.lockPath(key), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock %s: %w", key, err)
	}
	if err := syscall.Flock(int(lf.Fd()), how); err != nil {
		lf.Close()
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	return func() {
		syscall.Flock(int(lf.Fd()), syscall.LOCK_UN)
		lf.Close()
	}, nil
}

// Get reads the file backing key. A missing file means the key is absent.
func (f *File) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := ValidateKey(key); err != nil {
		return nil, false, err
	}

	unlock, err := f.lock(key, syscall.LOCK_SH)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	data, err := os.ReadFile(f.Path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return data, true, nil
}

// Set replaces the file backing key.
// Lock → write temp → Sync → Rename → Sync dir → Unlock
func (f *File) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}

	unlock, err := f.lock(key, syscall.LOCK_EX)
	if err != nil {
		return err
	}
	defer unlock()

	tmp, err := os.CreateTemp(f.dir, "."+key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", key, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("chmod %s: %w", key, err)
	}
	if err := os.Rename(tmpPath, f.Path(key)); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}
	committed = true
	return syncDir(f.dir)
}

// syncDir makes a completed rename in dir durable.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open data dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync data dir: %w", err)
	}
	return nil
}

// Close is a no-op; files are opened per call.
func (f *File) Close() error {
	return nil
}
