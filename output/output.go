package output

import (
	"sync"

	"github.com/alitto/pond"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/rcowham/pijulgo/blobstore"
	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/pristine"
	"github.com/rcowham/pijulgo/pristine/schema"
)

// RootInode mirrors apply.RootInode; duplicated here (rather than
// imported) to avoid output depending on apply, which is otherwise
// unrelated to materialization.
const RootInode change.Inode = 0

// Options configures one Output pass.
type Options struct {
	Workers int // pool size; <= 0 runs every file inline, no pool
}

// Write materializes every alive file under channelName's root into wc,
// submitting one render+write job per file to a bounded worker pool —
// the same fan-out-to-pool-jobs shape as the teacher's
// SaveBlob/CreateArchiveFile, generalized from "one job per git blob" to
// "one job per alive file vertex".
func Write(txn pristine.ReadTxn, channelName string, blobs *blobstore.Store, wc WorkingCopy, opts Options, log *logrus.Logger) error {
	if log == nil {
		log = logrus.StandardLogger()
	}

	var pool *pond.WorkerPool
	if opts.Workers > 0 {
		pool = pond.New(opts.Workers, 0, pond.MinWorkers(1))
		defer pool.StopAndWait()
	}

	var (
		mu       sync.Mutex
		firstErr error
	)
	recordErr := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	var walk func(parent change.Inode, parentPath string) error
	walk = func(parent change.Inode, parentPath string) error {
		for basename, child := range schema.ChildrenOf(txn, channelName, parent) {
			fullPath := basename
			if parentPath != "" {
				fullPath = parentPath + "/" + basename
			}
			pos, ok := schema.GetInodePosition(txn, channelName, child)
			if !ok {
				continue
			}
			if isDirectory(txn, channelName, child) {
				if err := wc.Mkdir(fullPath); err != nil {
					return err
				}
				if err := walk(child, fullPath); err != nil {
					return err
				}
				continue
			}

			path, pos := fullPath, pos
			job := func() {
				resolver := NewContentResolver(txn, blobs)
				data, err := RenderFile(txn, channelName, resolver, pos)
				if err != nil {
					recordErr(errors.Wrapf(err, "output: render %s", path))
					return
				}
				if err := wc.WriteFile(path, data, false); err != nil {
					recordErr(errors.Wrapf(err, "output: write %s", path))
				}
			}
			if pool != nil {
				pool.Submit(job)
			} else {
				job()
			}
		}
		return nil
	}

	if err := walk(RootInode, ""); err != nil {
		return err
	}
	if pool != nil {
		pool.StopAndWait()
	}
	mu.Lock()
	defer mu.Unlock()
	return firstErr
}

// isDirectory reports whether inode's tree entry has any recorded
// children, used since spec's graph does not otherwise distinguish an
// empty folder vertex from a zero-length file vertex by flags alone once
// read back through ChildrenOf.
func isDirectory(txn pristine.ReadTxn, channelName string, inode change.Inode) bool {
	return len(schema.ChildrenOf(txn, channelName, inode)) > 0 || hasFolderFlag(txn, channelName, inode)
}

func hasFolderFlag(txn pristine.ReadTxn, channelName string, inode change.Inode) bool {
	pos, ok := schema.GetInodePosition(txn, channelName, inode)
	if !ok {
		return false
	}
	parent, _, ok := schema.GetParent(txn, channelName, inode)
	if !ok {
		return false
	}
	parentPos, ok := schema.GetInodePosition(txn, channelName, parent)
	if !ok {
		return false
	}
	row, ok := schema.GetGraphRow(txn, channelName, parentPos)
	if !ok {
		return false
	}
	for _, e := range row.Edges {
		if e.Target == pos && e.Flags.Has(change.FlagFolder) {
			return true
		}
	}
	return false
}
