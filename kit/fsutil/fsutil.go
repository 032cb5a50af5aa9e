// Package fsutil provides utility functions for working with the filesystem.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates a directory if it does not exist.
func EnsureDir(path string) error {
	err := os.MkdirAll(path, 0o755)
	if err != nil {
		return fmt.Errorf("fsutil.EnsureDir: failed to create directory %s: %w", path, err)
	}
	return nil
}

// WriteFileAtomic writes data to a temp file in the destination directory
// and renames it into place, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := EnsureDir(dir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("fsutil.WriteFileAtomic: create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("fsutil.WriteFileAtomic: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("fsutil.WriteFileAtomic: close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("fsutil.WriteFileAtomic: chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("fsutil.WriteFileAtomic: rename into %s: %w", path, err)
	}
	return nil
}

// CleanDir removes everything inside dir, creating dir if needed.
func CleanDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return EnsureDir(dir)
	}
	if err != nil {
		return fmt.Errorf("fsutil.CleanDir: read %s: %w", dir, err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("fsutil.CleanDir: remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

// IsWithin reports whether path is root or lies below it.
func IsWithin(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// SafeJoin joins a slash-separated relative name onto root and rejects
// names that would escape it.
func SafeJoin(root, name string) (string, error) {
	p := filepath.Join(root, filepath.FromSlash(name))
	if !IsWithin(root, p) {
		return "", fmt.Errorf("fsutil.SafeJoin: %q escapes %s", name, root)
	}
	return p, nil
}
