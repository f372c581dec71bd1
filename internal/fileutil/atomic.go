// Package fileutil writes wallet and config files without leaving partial
// state behind.
package fileutil

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// PrivateDirPerm is the mode for directories holding key material.
const PrivateDirPerm os.FileMode = 0o700

// ErrEmptyPath indicates an empty file path was provided.
var ErrEmptyPath = errors.New("path is empty")

// WriteAtomic replaces path with data. Readers see the old or the new
// contents, never a mix.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	return WriteAtomicFunc(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// WriteAtomicFunc streams the output of write into a temp file beside path,
// syncs it and renames it into place. The temp file is removed on any error.
func WriteAtomicFunc(path string, perm os.FileMode, write func(io.Writer) error) error {
	if path == "" {
		return ErrEmptyPath
	}
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("setting temp file permissions: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil { //nolint:gosec // G703: path is validated by caller
		_ = os.Remove(tmpPath)
		committed = true
		return fmt.Errorf("renaming temp file: %w", err)
	}
	committed = true

	syncDir(dir)
	return nil
}

// EnsurePrivateDir creates dir with PrivateDirPerm if missing and tightens
// the mode of an existing directory that is group or world accessible.
func EnsurePrivateDir(dir string) error {
	if dir == "" {
		return ErrEmptyPath
	}
	if err := os.MkdirAll(dir, PrivateDirPerm); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s: not a directory", dir)
	}
	if info.Mode().Perm()&0o077 != 0 {
		if err := os.Chmod(dir, PrivateDirPerm); err != nil { //nolint:gosec // G302: tightening, not loosening
			return fmt.Errorf("restricting %s: %w", dir, err)
		}
	}
	return nil
}

func syncDir(dir string) {
	d, err := os.Open(dir) //nolint:gosec // G304: dir derived from validated path
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
