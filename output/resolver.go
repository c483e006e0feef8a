package output

import (
	"github.com/pkg/errors"

	"github.com/rcowham/pijulgo/blobstore"
	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/pristine"
	"github.com/rcowham/pijulgo/pristine/schema"
)

// ContentResolver turns a Position into the bytes its vertex spans,
// loading and parsing whichever change introduced it from blobstore and
// caching the parsed Contents blob per ChangeId for the lifetime of one
// Output pass (a single change is very likely to be asked for more than
// one of its vertices during one walk).
type ContentResolver struct {
	txn    pristine.ReadTxn
	blobs  *blobstore.Store
	cache  map[change.ChangeId][]byte
}

// NewContentResolver returns a resolver reading change blobs through
// blobs against the table state visible in txn.
func NewContentResolver(txn pristine.ReadTxn, blobs *blobstore.Store) *ContentResolver {
	return &ContentResolver{txn: txn, blobs: blobs, cache: map[change.ChangeId][]byte{}}
}

func (r *ContentResolver) contentsOf(id change.ChangeId) ([]byte, error) {
	if b, ok := r.cache[id]; ok {
		return b, nil
	}
	h, ok := schema.LookupHash(r.txn, id)
	if !ok {
		return nil, errors.Errorf("output: change %d has no recorded hash", id)
	}
	raw, err := r.blobs.Load(h)
	if err != nil {
		return nil, errors.Wrapf(err, "output: load blob for change %d", id)
	}
	c, err := change.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "output: parse change %d", id)
	}
	r.cache[id] = c.Contents
	return c.Contents, nil
}

// Bytes returns the content span [start, end) as recorded by the change
// that introduced it. A structural (non-content, e.g. folder) vertex has
// zero length and Bytes returns nil.
func (r *ContentResolver) Bytes(start, end change.Position) ([]byte, error) {
	if end.Offset <= start.Offset {
		return nil, nil
	}
	contents, err := r.contentsOf(start.Change)
	if err != nil {
		return nil, err
	}
	if int(end.Offset) > len(contents) {
		return nil, errors.Errorf("output: vertex %v..%v out of range of change %d's contents (%d bytes)", start, end, start.Change, len(contents))
	}
	return contents[start.Offset:end.Offset], nil
}
