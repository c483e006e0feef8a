package diffrecord

import (
	"path"
	"strings"

	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/pristine"
	"github.com/rcowham/pijulgo/pristine/schema"
)

// rootInode mirrors apply.RootInode; duplicated here rather than
// imported, the same call output made for its own RootInode, to keep
// diffrecord from depending on apply for a single constant.
const rootInode change.Inode = 0

func splitPath(p string) (dir, base string) {
	p = strings.Trim(p, "/")
	dir, base = path.Split(p)
	return strings.TrimSuffix(dir, "/"), base
}

// resolveDir walks dir's components from the root through channelName's
// currently-alive tree (schema.ChildrenOf, not the raw Tree table: a
// deleted directory's Tree row survives for history but must not resolve
// as a live path here), returning the inode at the end of the path.
func resolveDir(txn pristine.ReadTxn, channelName, dir string) (change.Inode, bool) {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return rootInode, true
	}
	current := rootInode
	for _, part := range strings.Split(dir, "/") {
		child, ok := schema.ChildrenOf(txn, channelName, current)[part]
		if !ok {
			return 0, false
		}
		current = child
	}
	return current, true
}

// resolvePath walks the full path (directories and a trailing basename)
// through channelName's currently-alive tree, returning the inode
// recorded for it. A path a FileDel has since removed resolves false
// here even though its Tree-table row still exists.
func resolvePath(txn pristine.ReadTxn, channelName, p string) (change.Inode, bool) {
	p = strings.Trim(p, "/")
	if p == "" {
		return rootInode, true
	}
	dir, base := splitPath(p)
	parent, ok := resolveDir(txn, channelName, dir)
	if !ok {
		return 0, false
	}
	child, ok := schema.ChildrenOf(txn, channelName, parent)[base]
	return child, ok
}
