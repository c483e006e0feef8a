package diffrecord

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// FileInfo describes one entry a SourceTree walk visits. Path is always
// slash-separated and relative to the tree's root, matching the
// convention channel tree entries already use.
type FileInfo struct {
	Path       string
	IsDir      bool
	Size       int64
	ModTime    time.Time
	Executable bool
}

// SourceTree is the read side of a working directory: Record needs to
// walk it and read file bytes, the mirror image of output.WorkingCopy's
// write-only Mkdir/WriteFile/Remove. Kept separate from output.WorkingCopy
// (rather than widening that interface) since materialization never
// needs to read back what it just wrote.
type SourceTree interface {
	Walk(fn func(FileInfo) error) error
	ReadFile(path string) ([]byte, error)
}

// OSSourceTree is a SourceTree backed by a real directory on disk.
type OSSourceTree struct {
	Root string
}

// NewOSSourceTree returns a SourceTree rooted at root.
func NewOSSourceTree(root string) *OSSourceTree {
	return &OSSourceTree{Root: root}
}

// Walk visits every regular file and directory under t.Root other than a
// top-level ".pijul" control directory, in lexical order (filepath.Walk's
// own guarantee), reporting each as a FileInfo with a slash-separated,
// root-relative Path.
func (t *OSSourceTree) Walk(fn func(FileInfo) error) error {
	return filepath.Walk(t.Root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(t.Root, p)
		if err != nil {
			return errors.Wrapf(err, "diffrecord: relativize %s", p)
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == ".pijul" || hasPijulPrefix(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}
		return fn(FileInfo{
			Path:       rel,
			IsDir:      info.IsDir(),
			Size:       info.Size(),
			ModTime:    info.ModTime(),
			Executable: !info.IsDir() && info.Mode()&0111 != 0,
		})
	})
}

func hasPijulPrefix(rel string) bool {
	return len(rel) > len(".pijul/") && rel[:len(".pijul/")] == ".pijul/"
}

// ReadFile returns path's current bytes.
func (t *OSSourceTree) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(t.Root, filepath.FromSlash(path)))
	if err != nil {
		return nil, errors.Wrapf(err, "diffrecord: read %s", path)
	}
	return data, nil
}
