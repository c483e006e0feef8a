package schema

import (
	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/pristine"
)

func touchedKey(id change.ChangeId, inode change.Position) []byte {
	return append(EncodeChangeId(id), EncodePosition(inode)...)
}

// AddTouched records that id touched inode, in both Touched and
// RevTouched.
func AddTouched(txn pristine.WriteTxn, id change.ChangeId, inode change.Position) error {
	touched, err := txn.Bucket(TableTouched)
	if err != nil {
		return err
	}
	rev, err := txn.Bucket(TableRevTouched)
	if err != nil {
		return err
	}
	if err := touched.Put(touchedKey(id, inode), nil); err != nil {
		return err
	}
	return rev.Put(append(EncodePosition(inode), EncodeChangeId(id)...), nil)
}

// RemoveTouched undoes AddTouched.
func RemoveTouched(txn pristine.WriteTxn, id change.ChangeId, inode change.Position) error {
	touched, err := txn.Bucket(TableTouched)
	if err != nil {
		return err
	}
	rev, err := txn.Bucket(TableRevTouched)
	if err != nil {
		return err
	}
	if err := touched.Delete(touchedKey(id, inode)); err != nil {
		return err
	}
	return rev.Delete(append(EncodePosition(inode), EncodeChangeId(id)...))
}

// TouchedInodes returns every inode id touched.
func TouchedInodes(txn pristine.ReadTxn, id change.ChangeId) []change.Position {
	b := txn.Bucket(TableTouched)
	var out []change.Position
	_ = b.Range(EncodeChangeId(id), func(k, v []byte) error {
		out = append(out, DecodePosition(k[8:24]))
		return nil
	})
	return out
}

// ChangesTouching returns every ChangeId that touched inode, scoping
// Output/Diff to the relevant changes.
func ChangesTouching(txn pristine.ReadTxn, inode change.Position) []change.ChangeId {
	b := txn.Bucket(TableRevTouched)
	var out []change.ChangeId
	_ = b.Range(EncodePosition(inode), func(k, v []byte) error {
		out = append(out, DecodeChangeId(k[16:24]))
		return nil
	})
	return out
}
