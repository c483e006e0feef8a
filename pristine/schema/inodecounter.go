package schema

import (
	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/pristine"
)

// nextInodeKey is the sentinel key holding the next Inode to allocate,
// mirroring nextChangeIDKey's pattern in identity.go.
var nextInodeKey = []byte("next-inode-counter")

// NextInode allocates and records a fresh Inode, starting at 1 (Inode 0 is
// the reserved repository root, never allocated here).
func NextInode(txn pristine.WriteTxn) (change.Inode, error) {
	b, err := txn.Bucket(TableInodeCounter)
	if err != nil {
		return 0, err
	}
	var next uint64 = 1
	if raw := b.Get(nextInodeKey); raw != nil {
		next = decodeUint64(raw)
	}
	if err := b.Put(nextInodeKey, encodeUint64(next+1)); err != nil {
		return 0, err
	}
	return change.Inode(next), nil
}
