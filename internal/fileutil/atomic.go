// Package fileutil holds the atomic file write shared by the config file and
// the schedule store.
package fileutil

import (
	"os"
	"path/filepath"
)

// WriteAtomic replaces path with data.
//
//   - Ensures the parent directory exists (0700).
//   - Writes to a temp file in the same directory, syncs it and renames it
//     over path, so readers never observe a partial file.
//   - The final file has perm.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	// No-op once the rename has succeeded.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
