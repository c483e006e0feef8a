package schema

import (
	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/pristine"
)

// PutInode records channel's folder vertex for inode.
func PutInode(txn pristine.WriteTxn, channelName string, inode change.Inode, pos change.Position) error {
	inodes, err := txn.Bucket(TableInodes)
	if err != nil {
		return err
	}
	rev, err := txn.Bucket(TableRevInodes)
	if err != nil {
		return err
	}
	if err := inodes.Put(EncodeChannelKey(channelName, EncodeInode(inode)), EncodePosition(pos)); err != nil {
		return err
	}
	return rev.Put(EncodeChannelKey(channelName, EncodePosition(pos)), EncodeInode(inode))
}

// GetInodePosition reads channel's folder vertex for inode, if any.
func GetInodePosition(txn pristine.ReadTxn, channelName string, inode change.Inode) (change.Position, bool) {
	b := txn.Bucket(TableInodes)
	v := b.Get(EncodeChannelKey(channelName, EncodeInode(inode)))
	if v == nil {
		return change.Position{}, false
	}
	return DecodePosition(v), true
}

// GetPositionInode reads channel's inode for folder vertex pos, if any.
func GetPositionInode(txn pristine.ReadTxn, channelName string, pos change.Position) (change.Inode, bool) {
	b := txn.Bucket(TableRevInodes)
	v := b.Get(EncodeChannelKey(channelName, EncodePosition(pos)))
	if v == nil {
		return 0, false
	}
	return DecodeInode(v), true
}

// DeleteInode removes channel's Inodes/RevInodes entries for inode/pos.
func DeleteInode(txn pristine.WriteTxn, channelName string, inode change.Inode, pos change.Position) error {
	inodes, err := txn.Bucket(TableInodes)
	if err != nil {
		return err
	}
	rev, err := txn.Bucket(TableRevInodes)
	if err != nil {
		return err
	}
	if err := inodes.Delete(EncodeChannelKey(channelName, EncodeInode(inode))); err != nil {
		return err
	}
	return rev.Delete(EncodeChannelKey(channelName, EncodePosition(pos)))
}

func treeKey(parent change.Inode, basename string) []byte {
	return append(EncodeInode(parent), []byte(basename)...)
}

// PutTreeEntry records channel's (parent, basename) -> child mapping, and
// the inverse in RevTree.
func PutTreeEntry(txn pristine.WriteTxn, channelName string, parent change.Inode, basename string, child change.Inode) error {
	tree, err := txn.Bucket(TableTree)
	if err != nil {
		return err
	}
	rev, err := txn.Bucket(TableRevTree)
	if err != nil {
		return err
	}
	if err := tree.Put(EncodeChannelKey(channelName, treeKey(parent, basename)), EncodeInode(child)); err != nil {
		return err
	}
	revVal := append(EncodeInode(parent), []byte(basename)...)
	return rev.Put(EncodeChannelKey(channelName, EncodeInode(child)), revVal)
}

// GetTreeEntry resolves channel's (parent, basename) to a child inode.
func GetTreeEntry(txn pristine.ReadTxn, channelName string, parent change.Inode, basename string) (change.Inode, bool) {
	b := txn.Bucket(TableTree)
	v := b.Get(EncodeChannelKey(channelName, treeKey(parent, basename)))
	if v == nil {
		return 0, false
	}
	return DecodeInode(v), true
}

// GetParent resolves channel's child inode to its (parent, basename).
func GetParent(txn pristine.ReadTxn, channelName string, child change.Inode) (parent change.Inode, basename string, ok bool) {
	b := txn.Bucket(TableRevTree)
	v := b.Get(EncodeChannelKey(channelName, EncodeInode(child)))
	if v == nil {
		return 0, "", false
	}
	return DecodeInode(v[0:8]), string(v[8:]), true
}

// DeleteTreeEntry removes channel's (parent, basename) -> child mapping and
// the RevTree inverse for child.
func DeleteTreeEntry(txn pristine.WriteTxn, channelName string, parent change.Inode, basename string, child change.Inode) error {
	tree, err := txn.Bucket(TableTree)
	if err != nil {
		return err
	}
	rev, err := txn.Bucket(TableRevTree)
	if err != nil {
		return err
	}
	if err := tree.Delete(EncodeChannelKey(channelName, treeKey(parent, basename))); err != nil {
		return err
	}
	return rev.Delete(EncodeChannelKey(channelName, EncodeInode(child)))
}

// treePosition resolves inode's folder vertex, treating inode 0 (the
// repository root, never assigned a PutInode row since no real change
// ever introduces it) as the zero-value Position.
func treePosition(txn pristine.ReadTxn, channelName string, inode change.Inode) (change.Position, bool) {
	if inode == 0 {
		return change.Position{}, true
	}
	return GetInodePosition(txn, channelName, inode)
}

// ChildrenOf lists every (basename, child) currently alive under channel's
// parent inode. The Tree table itself is a permanent basename index (a
// FileDel never removes its row, only retires the parent->child graph
// edge, so Unapply can restore both at once) — ChildrenOf cross-checks
// each candidate against AliveOutEdges so a deleted child stops being
// "present" without losing its Tree entry's history.
func ChildrenOf(txn pristine.ReadTxn, channelName string, parent change.Inode) map[string]change.Inode {
	out := map[string]change.Inode{}
	parentPos, ok := treePosition(txn, channelName, parent)
	if !ok {
		return out
	}
	alive := map[change.Position]bool{}
	for _, e := range AliveOutEdges(txn, channelName, parentPos) {
		alive[e.Target] = true
	}
	if len(alive) == 0 {
		return out
	}
	b := txn.Bucket(TableTree)
	prefix := EncodeChannelKey(channelName, EncodeInode(parent))
	_ = b.Range(prefix, func(k, v []byte) error {
		basename := string(k[len(prefix):])
		child := DecodeInode(v)
		if childPos, ok := treePosition(txn, channelName, child); ok && alive[childPos] {
			out[basename] = child
		}
		return nil
	})
	return out
}
