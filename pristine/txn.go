package pristine

import "go.etcd.io/bbolt"

// Bucket is a typed B-tree table within one transaction. It wraps a bbolt
// bucket; a nil underlying bucket (table not yet created) behaves as an
// empty table rather than erroring, so fresh pristines need no bootstrap
// pass over the full schema.
type Bucket struct {
	b *bbolt.Bucket
}

// Get returns the raw value for key, or nil if absent.
func (t Bucket) Get(key []byte) []byte {
	if t.b == nil {
		return nil
	}
	return t.b.Get(key)
}

// Put writes key -> value. Only valid on a Bucket obtained from a
// WriteTxn.
func (t Bucket) Put(key, value []byte) error {
	if t.b == nil {
		return errNotWritable
	}
	return t.b.Put(key, value)
}

// Delete removes key. Only valid on a Bucket obtained from a WriteTxn; a
// no-op bucket (nil) silently does nothing, matching "delete of an absent
// key is not an error".
func (t Bucket) Delete(key []byte) error {
	if t.b == nil {
		return nil
	}
	return t.b.Delete(key)
}

// ForEach walks key/value pairs in ascending key order.
func (t Bucket) ForEach(fn func(k, v []byte) error) error {
	if t.b == nil {
		return nil
	}
	return t.b.ForEach(fn)
}

// ForEachReverse walks key/value pairs in descending key order, the
// "reverse iteration" primitive spec §4.1 requires.
func (t Bucket) ForEachReverse(fn func(k, v []byte) error) error {
	if t.b == nil {
		return nil
	}
	c := t.b.Cursor()
	for k, v := c.Last(); k != nil; k, v = c.Prev() {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

// Range walks key/value pairs whose key has the given prefix, ascending.
func (t Bucket) Range(prefix []byte, fn func(k, v []byte) error) error {
	if t.b == nil {
		return nil
	}
	c := t.b.Cursor()
	for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

var errNotWritable = bboltErrNotWritable{}

type bboltErrNotWritable struct{}

func (bboltErrNotWritable) Error() string { return "pristine: bucket is read-only" }

// ReadTxn is a read-only view of the pristine, stable for its whole
// lifetime (invariant I7: "readers observe a consistent snapshot for the
// entire life of their transaction").
type ReadTxn struct {
	tx *bbolt.Tx
}

// Bucket returns the named table, or an empty Bucket if it has never been
// written.
func (t ReadTxn) Bucket(name string) Bucket {
	return Bucket{b: t.tx.Bucket([]byte(name))}
}

// WriteTxn is the single, exclusive mutator of the pristine for its
// lifetime (invariant I7).
type WriteTxn struct {
	ReadTxn
}

// Bucket returns the named table, creating it on first use.
func (t WriteTxn) Bucket(name string) (Bucket, error) {
	b, err := t.tx.CreateBucketIfNotExists([]byte(name))
	if err != nil {
		return Bucket{}, WrapIO(err, "create bucket "+name)
	}
	return Bucket{b: b}, nil
}
