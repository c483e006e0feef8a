package apply

import (
	"path"
	"strings"

	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/pristine"
	"github.com/rcowham/pijulgo/pristine/schema"
)

// RootInode is the repository root's reserved Inode. ChangeId 0 is never
// allocated by schema.AssignChangeId (it starts counting at 1), so
// RootPosition is guaranteed never to collide with a vertex introduced by
// a real change.
const RootInode change.Inode = 0

// RootPosition is the zero-length vertex standing for the repository
// root, present in every channel without needing an explicit FileAdd.
var RootPosition = change.Position{Change: 0, Offset: 0}

// splitPath divides a slash-separated repository path into its parent
// directory and basename, both repository-relative and without a leading
// slash.
func splitPath(p string) (dir, base string) {
	p = strings.Trim(p, "/")
	dir, base = path.Split(p)
	return strings.TrimSuffix(dir, "/"), base
}

// resolveInode walks dir's path components from the root through
// channel's Tree table, returning the inode at the end of the path.
func resolveInode(txn pristine.ReadTxn, channelName, dir string) (change.Inode, bool) {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return RootInode, true
	}
	current := RootInode
	for _, part := range strings.Split(dir, "/") {
		child, ok := schema.GetTreeEntry(txn, channelName, current, part)
		if !ok {
			return 0, false
		}
		current = child
	}
	return current, true
}

// inodePosition resolves inode to its folder vertex Position, RootPosition
// for the reserved root inode.
func inodePosition(txn pristine.ReadTxn, channelName string, inode change.Inode) (change.Position, bool) {
	if inode == RootInode {
		return RootPosition, true
	}
	return schema.GetInodePosition(txn, channelName, inode)
}
