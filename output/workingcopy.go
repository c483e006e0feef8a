package output

import (
	"crypto/sha256"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// WorkingCopy is the materialization target for Output: a checked-out
// directory, but abstracted so tests (and eventually remote transports)
// can substitute something other than a real filesystem.
type WorkingCopy interface {
	// WriteFile writes data at path, creating any missing parent
	// directories. Implementations should skip the write entirely when
	// the existing file's content already matches (digest-compare before
	// write), the same "don't touch files that didn't change" discipline
	// the teacher's CreateArchiveFile gets from its duplicate-archive
	// check.
	WriteFile(path string, data []byte, executable bool) error
	// Remove deletes path, tolerating an already-absent file.
	Remove(path string) error
	// Mkdir ensures path exists as a directory.
	Mkdir(path string) error
}

// OSWorkingCopy materializes files under a real directory on disk.
type OSWorkingCopy struct {
	Root string
}

func NewOSWorkingCopy(root string) *OSWorkingCopy {
	return &OSWorkingCopy{Root: root}
}

func (w *OSWorkingCopy) resolve(path string) string {
	return filepath.Join(w.Root, filepath.FromSlash(path))
}

// WriteFile compares content digests before touching disk: an unchanged
// file is left with its existing mtime/permissions rather than being
// rewritten on every Output pass.
func (w *OSWorkingCopy) WriteFile(path string, data []byte, executable bool) error {
	full := w.resolve(path)
	if existing, err := os.ReadFile(full); err == nil {
		if sha256.Sum256(existing) == sha256.Sum256(data) {
			return nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return errors.Wrapf(err, "output: mkdir for %s", path)
	}
	mode := os.FileMode(0644)
	if executable {
		mode = 0755
	}
	if err := os.WriteFile(full, data, mode); err != nil {
		return errors.Wrapf(err, "output: write %s", path)
	}
	return nil
}

func (w *OSWorkingCopy) Remove(path string) error {
	if err := os.Remove(w.resolve(path)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "output: remove %s", path)
	}
	return nil
}

func (w *OSWorkingCopy) Mkdir(path string) error {
	if err := os.MkdirAll(w.resolve(path), 0755); err != nil {
		return errors.Wrapf(err, "output: mkdir %s", path)
	}
	return nil
}
