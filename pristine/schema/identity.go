package schema

import (
	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/pristine"
)

// nextChangeIDKey is a sentinel key inside the Changes bucket holding the
// next ChangeId to allocate. It is longer than any real 8-byte ChangeId
// key, so it can never collide with one.
var nextChangeIDKey = []byte("next-change-id-counter")

// LookupChangeId returns the ChangeId already assigned to h, if any.
func LookupChangeId(txn pristine.ReadTxn, h change.Hash) (change.ChangeId, bool) {
	b := txn.Bucket(TableRevChanges)
	v := b.Get(EncodeHash(h))
	if v == nil {
		return 0, false
	}
	return DecodeChangeId(v), true
}

// LookupHash returns the Hash assigned to id, if any.
func LookupHash(txn pristine.ReadTxn, id change.ChangeId) (change.Hash, bool) {
	b := txn.Bucket(TableChanges)
	v := b.Get(EncodeChangeId(id))
	if v == nil || len(v) != 32 {
		return change.Hash{}, false
	}
	return DecodeHash(v), true
}

// PeekNextChangeId returns the ChangeId AssignChangeId would allocate for
// a hash it has never seen, without consuming it. Valid only for a
// caller certain no other AssignChangeId call runs before it applies the
// change it is predicting for (diffrecord.Record uses it to pre-stamp a
// new change's own positions before that change's real Hash is known).
func PeekNextChangeId(txn pristine.ReadTxn) change.ChangeId {
	b := txn.Bucket(TableChanges)
	var next uint64 = 1
	if raw := b.Get(nextChangeIDKey); raw != nil {
		next = decodeUint64(raw)
	}
	return change.ChangeId(next)
}

// AssignChangeId returns h's existing ChangeId if known, otherwise
// allocates and records a fresh one (spec §4.4 apply step 1: "assign
// ChangeId id_C, or reuse existing if already known").
func AssignChangeId(txn pristine.WriteTxn, h change.Hash) (change.ChangeId, error) {
	if id, ok := LookupChangeId(txn.ReadTxn, h); ok {
		return id, nil
	}
	changes, err := txn.Bucket(TableChanges)
	if err != nil {
		return 0, err
	}
	rev, err := txn.Bucket(TableRevChanges)
	if err != nil {
		return 0, err
	}
	var next uint64 = 1
	if raw := changes.Get(nextChangeIDKey); raw != nil {
		next = decodeUint64(raw)
	}
	id := change.ChangeId(next)
	if err := changes.Put(EncodeChangeId(id), EncodeHash(h)); err != nil {
		return 0, err
	}
	if err := rev.Put(EncodeHash(h), EncodeChangeId(id)); err != nil {
		return 0, err
	}
	if err := changes.Put(nextChangeIDKey, encodeUint64(next+1)); err != nil {
		return 0, err
	}
	return id, nil
}

// ForgetChangeId removes the ChangeId<->Hash bijection entry for id/h. Only
// safe to call once BlobRefcount for h has dropped to zero and no channel
// references id anywhere.
func ForgetChangeId(txn pristine.WriteTxn, id change.ChangeId, h change.Hash) error {
	changes, err := txn.Bucket(TableChanges)
	if err != nil {
		return err
	}
	rev, err := txn.Bucket(TableRevChanges)
	if err != nil {
		return err
	}
	if err := changes.Delete(EncodeChangeId(id)); err != nil {
		return err
	}
	return rev.Delete(EncodeHash(h))
}
