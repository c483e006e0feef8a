// Package blobstore persists change/tag blobs on disk content-addressed
// by their Hash, fanning them out across directories the way the
// teacher's archive writer fans blob IDs out by numeric prefix, so the
// root holds at most 1024 (32x32) subdirectories.
package blobstore

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/alitto/pond"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/rcowham/pijulgo/change"
)

// compressThreshold is the size above which a blob is stored gzip'd, the
// same boundary the teacher's SaveBlob draws around "large" text blobs.
const compressThreshold = 4096

// Store writes and reads change blobs under root, one file per Hash.
type Store struct {
	root   string
	logger *logrus.Logger
	pool   *pond.WorkerPool
}

// Open returns a Store rooted at root, creating it if absent. poolSize
// bounds how many Save writes run on the worker pool concurrently;
// poolSize <= 0 disables pooling and every write runs inline. Load and
// the tag methods always run inline.
func Open(root string, poolSize int, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, errors.Wrapf(err, "blobstore: create root %s", root)
	}
	s := &Store{root: root, logger: logger}
	if poolSize > 0 {
		s.pool = pond.New(poolSize, 0, pond.MinWorkers(1))
	}
	return s, nil
}

// Close stops the worker pool, if any, waiting for queued writes to drain.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.StopAndWait()
	}
}

// pathFor fans h out by its canonical base32 form, the same two-level
// split the teacher's SaveBlob/newGitBlob use on a numeric blob ID
// (filename[:1], filename[1:4]) generalized to a hash: the first two
// characters become the subdirectory, so the root holds at most 32x32 =
// 1024 subdirectories, each holding the blobs that share that prefix.
// <root>/<hash[:2]>/<hash[2:]>
func (s *Store) pathFor(h change.Hash) (dir, file string) {
	n := h.String()
	dir = filepath.Join(s.root, n[0:2])
	file = filepath.Join(dir, n[2:])
	return dir, file
}

// Save writes data under its content hash h, compressing it with gzip
// when it is large enough that compression is worth the CPU. With a
// pool, the write runs on a pool worker and Save waits for it; either
// way Save returns only after the write has finished, with its error.
func (s *Store) Save(h change.Hash, data []byte) error {
	dir, file := s.pathFor(h)
	compress := len(data) > compressThreshold

	write := func() error {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "blobstore: mkdir %s", dir)
		}
		name := file
		if compress {
			name += ".gz"
		}
		f, err := os.Create(name)
		if err != nil {
			return errors.Wrapf(err, "blobstore: create %s", name)
		}
		defer f.Close()
		if compress {
			zw := gzip.NewWriter(f)
			defer zw.Close()
			_, err = zw.Write(data)
		} else {
			_, err = f.Write(data)
		}
		if err != nil {
			return errors.Wrapf(err, "blobstore: write %s", name)
		}
		return nil
	}

	if s.pool == nil {
		return write()
	}

	var wg sync.WaitGroup
	var saveErr error
	wg.Add(1)
	s.pool.Submit(func() {
		defer wg.Done()
		if err := write(); err != nil {
			s.logger.WithField("hash", h).WithError(err).Error("blobstore: save failed")
			saveErr = err
		}
	})
	wg.Wait()
	return saveErr
}

// Load reads back the blob stored for h, transparently decompressing it
// if it was saved with gzip.
func (s *Store) Load(h change.Hash) ([]byte, error) {
	_, file := s.pathFor(h)
	if f, err := os.Open(file); err == nil {
		defer f.Close()
		return io.ReadAll(f)
	}
	f, err := os.Open(file + ".gz")
	if err != nil {
		return nil, errors.Wrapf(err, "blobstore: open %s", h)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "blobstore: gzip reader for %s", h)
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// Exists reports whether a blob for h has been saved, in either form.
func (s *Store) Exists(h change.Hash) bool {
	_, file := s.pathFor(h)
	if _, err := os.Stat(file); err == nil {
		return true
	}
	_, err := os.Stat(file + ".gz")
	return err == nil
}

// SaveTag writes data (already compressed by the caller, per spec §4.7's
// tag format) under h with the ".tag" filename suffix, sharing changes'
// directory fan-out rather than a separate tree, per spec §6 "tag blobs
// share the same tree, distinguished by a filename suffix". Tags are
// infrequent, whole-channel-sized writes, so unlike Save this never goes
// through the worker pool.
func (s *Store) SaveTag(h change.Hash, data []byte) error {
	dir, file := s.pathFor(h)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "blobstore: mkdir %s", dir)
	}
	if err := os.WriteFile(file+".tag", data, 0644); err != nil {
		return errors.Wrapf(err, "blobstore: write tag %s", h)
	}
	return nil
}

// LoadTag reads back the tag blob stored for h.
func (s *Store) LoadTag(h change.Hash) ([]byte, error) {
	_, file := s.pathFor(h)
	data, err := os.ReadFile(file + ".tag")
	if err != nil {
		return nil, errors.Wrapf(err, "blobstore: open tag %s", h)
	}
	return data, nil
}

// ExistsTag reports whether a tag blob for h has been saved.
func (s *Store) ExistsTag(h change.Hash) bool {
	_, file := s.pathFor(h)
	_, err := os.Stat(file + ".tag")
	return err == nil
}

// Remove deletes both possible on-disk forms of h's blob. Safe to call on
// a hash that was never saved, or already removed, so callers driven by
// BlobRefcount reaching zero don't need to check existence first.
func (s *Store) Remove(h change.Hash) error {
	_, file := s.pathFor(h)
	if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "blobstore: remove %s", file)
	}
	if err := os.Remove(file + ".gz"); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "blobstore: remove %s.gz", file)
	}
	return nil
}
