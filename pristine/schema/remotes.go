package schema

import (
	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/pristine"
)

// RemoteId is the local handle for a cached remote (spec §3 "a stable
// RemoteId (local)").
type RemoteId uint64

// RemoteAdvert is one entry of a remote's cached advertised state.
type RemoteAdvert struct {
	Hash   change.Hash
	Merkle change.Hash
	IsTag  bool
}

// PutRemote records handle (opaque name/URL bytes) for id.
func PutRemote(txn pristine.WriteTxn, id RemoteId, handle []byte) error {
	b, err := txn.Bucket(TableRemotes)
	if err != nil {
		return err
	}
	return b.Put(encodeUint64(uint64(id)), handle)
}

// GetRemote reads the handle recorded for id, if any.
func GetRemote(txn pristine.ReadTxn, id RemoteId) ([]byte, bool) {
	b := txn.Bucket(TableRemotes)
	v := b.Get(encodeUint64(uint64(id)))
	if v == nil {
		return nil, false
	}
	return v, true
}

func encodeAdvert(a RemoteAdvert) []byte {
	out := make([]byte, 0, 65)
	out = append(out, EncodeHash(a.Hash)...)
	out = append(out, EncodeHash(a.Merkle)...)
	if a.IsTag {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	return out
}

func decodeAdvert(b []byte) RemoteAdvert {
	return RemoteAdvert{
		Hash:   DecodeHash(b[0:32]),
		Merkle: DecodeHash(b[32:64]),
		IsTag:  b[64] == 1,
	}
}

// PutRemoteChange caches that remote id advertised entry at ordinal.
func PutRemoteChange(txn pristine.WriteTxn, id RemoteId, ordinal uint64, entry RemoteAdvert) error {
	b, err := txn.Bucket(TableRemoteChanges)
	if err != nil {
		return err
	}
	key := append(encodeUint64(uint64(id)), encodeUint64(ordinal)...)
	return b.Put(key, encodeAdvert(entry))
}

// RemoteChanges lists every cached advertisement for remote id, in ordinal
// order.
func RemoteChanges(txn pristine.ReadTxn, id RemoteId) []RemoteAdvert {
	b := txn.Bucket(TableRemoteChanges)
	var out []RemoteAdvert
	_ = b.Range(encodeUint64(uint64(id)), func(k, v []byte) error {
		out = append(out, decodeAdvert(v))
		return nil
	})
	return out
}

// IncRefcount bumps h's blob reference count by delta (positive when
// installed into a channel, negative when removed); returns the resulting
// count. A count of zero means the change blob is eligible for garbage
// collection (spec §3 lifecycle).
func IncRefcount(txn pristine.WriteTxn, h change.Hash, delta int64) (uint64, error) {
	b, err := txn.Bucket(TableBlobRefcount)
	if err != nil {
		return 0, err
	}
	var count uint64
	if raw := b.Get(EncodeHash(h)); raw != nil {
		count = decodeUint64(raw)
	}
	if delta < 0 && uint64(-delta) > count {
		count = 0
	} else if delta < 0 {
		count -= uint64(-delta)
	} else {
		count += uint64(delta)
	}
	if count == 0 {
		return 0, b.Delete(EncodeHash(h))
	}
	return count, b.Put(EncodeHash(h), encodeUint64(count))
}

// Refcount returns h's current blob reference count.
func Refcount(txn pristine.ReadTxn, h change.Hash) uint64 {
	b := txn.Bucket(TableBlobRefcount)
	v := b.Get(EncodeHash(h))
	if v == nil {
		return 0
	}
	return decodeUint64(v)
}
