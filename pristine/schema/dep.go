package schema

import (
	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/pristine"
)

func depKey(a, b change.ChangeId) []byte {
	return append(EncodeChangeId(a), EncodeChangeId(b)...)
}

// AddDep records "child depends on parent" in both Dep and RevDep.
func AddDep(txn pristine.WriteTxn, child, parent change.ChangeId) error {
	dep, err := txn.Bucket(TableDep)
	if err != nil {
		return err
	}
	revdep, err := txn.Bucket(TableRevDep)
	if err != nil {
		return err
	}
	if err := dep.Put(depKey(child, parent), nil); err != nil {
		return err
	}
	return revdep.Put(depKey(parent, child), nil)
}

// RemoveDep deletes the "child depends on parent" record from both tables
// (used by Unapply to drop dep entries for the change being removed).
func RemoveDep(txn pristine.WriteTxn, child, parent change.ChangeId) error {
	dep, err := txn.Bucket(TableDep)
	if err != nil {
		return err
	}
	revdep, err := txn.Bucket(TableRevDep)
	if err != nil {
		return err
	}
	if err := dep.Delete(depKey(child, parent)); err != nil {
		return err
	}
	return revdep.Delete(depKey(parent, child))
}

// Dependencies returns every parent child depends on.
func Dependencies(txn pristine.ReadTxn, child change.ChangeId) []change.ChangeId {
	b := txn.Bucket(TableDep)
	var out []change.ChangeId
	_ = b.Range(EncodeChangeId(child), func(k, v []byte) error {
		out = append(out, DecodeChangeId(k[8:16]))
		return nil
	})
	return out
}

// Dependents returns every child that depends on parent.
func Dependents(txn pristine.ReadTxn, parent change.ChangeId) []change.ChangeId {
	b := txn.Bucket(TableRevDep)
	var out []change.ChangeId
	_ = b.Range(EncodeChangeId(parent), func(k, v []byte) error {
		out = append(out, DecodeChangeId(k[8:16]))
		return nil
	})
	return out
}
