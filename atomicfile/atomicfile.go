// Package atomicfile writes files that only appear at their final path once
// they are complete. Readers never observe a partially written file.
package atomicfile

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
)

// createAttempts bounds the search for an unused temp file name.
const createAttempts = 100

// File is a temporary file that replaces its target path on Commit.
type File struct {
	*os.File
	path string
	done bool
}

// Create opens a temporary file next to path. The temp file lives in the
// same directory so the final rename stays on one filesystem. It is created
// with mode 0666 minus the umask, the same as os.Create, so a committed file
// gets ordinary permissions.
func Create(path string) (*File, error) {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	for range createAttempts {
		name := filepath.Join(dir, "."+base+".tmp-"+strconv.FormatUint(rand.Uint64(), 36))
		tmp, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create temp file for %s: %w", path, err)
		}
		return &File{File: tmp, path: path}, nil
	}
	return nil, fmt.Errorf("create temp file for %s: no unused name after %d attempts", path, createAttempts)
}

// Path returns the final destination of the file.
func (f *File) Path() string {
	return f.path
}

// Commit syncs and closes the temp file, then renames it over the target.
// On failure the temp file is removed and the target is left untouched.
func (f *File) Commit() error {
	if f.done {
		return errors.New("atomic file already finished")
	}
	f.done = true

	if err := f.Sync(); err != nil {
		return f.cleanup(fmt.Errorf("sync %s: %w", f.path, err))
	}
	// Replacing a file keeps its permissions.
	if info, err := os.Stat(f.path); err == nil {
		if err := f.Chmod(info.Mode().Perm()); err != nil {
			return f.cleanup(fmt.Errorf("chmod %s: %w", f.path, err))
		}
	}
	if err := f.Close(); err != nil {
		return f.cleanup(fmt.Errorf("close %s: %w", f.path, err))
	}
	if err := os.Rename(f.Name(), f.path); err != nil {
		return f.cleanup(fmt.Errorf("rename into %s: %w", f.path, err))
	}
	return nil
}

// Abort discards the temp file. Calling Abort after Commit is a no-op,
// which makes it safe to defer.
func (f *File) Abort() error {
	if f.done {
		return nil
	}
	f.done = true
	_ = f.Close()
	if err := os.Remove(f.Name()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove temp file: %w", err)
	}
	return nil
}

func (f *File) cleanup(cause error) error {
	_ = f.Close()
	if err := os.Remove(f.Name()); err != nil && !os.IsNotExist(err) {
		return errors.Join(cause, fmt.Errorf("remove temp file: %w", err))
	}
	return cause
}
