package worktree

import (
	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/pristine"
	"github.com/rcowham/pijulgo/pristine/schema"
)

// RootInode is the tree root every channel's tree table is rooted at,
// matching apply.RootInode (change.Inode(0), never allocated by
// schema.NextInode, which starts at 1).
const RootInode change.Inode = 0

// Snapshot walks channelName's recorded tree table into a Node, so it can
// be diffed against a freshly scanned working directory. Directory-ness
// is inferred from whether a child inode itself has any recorded
// children; a leaf with no children is treated as a file.
func Snapshot(txn pristine.ReadTxn, channelName string) *Node {
	root := NewTree(false)
	walk(txn, channelName, RootInode, "", root)
	return root
}

func walk(txn pristine.ReadTxn, channelName string, parent change.Inode, parentPath string, into *Node) {
	for basename, child := range schema.ChildrenOf(txn, channelName, parent) {
		fullPath := basename
		if parentPath != "" {
			fullPath = parentPath + "/" + basename
		}
		grandchildren := schema.ChildrenOf(txn, channelName, child)
		if len(grandchildren) == 0 {
			into.AddFile(fullPath)
			continue
		}
		dirNode := &Node{Name: basename, IsDir: true, CaseInsensitive: into.CaseInsensitive}
		into.Children = append(into.Children, dirNode)
		walk(txn, channelName, child, fullPath, dirNode)
	}
}
