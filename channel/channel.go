// Package channel implements named, mutable views over a pristine's graph
// (spec §4.7, component G): Open/Fork/Rename/Drop/Switch operate purely
// on the channel registry and the channel-scoped table rows; Tag/
// TagCheckout/TagReset (tag.go) freeze and restore whole channel states
// as compressed, content-addressed blobs.
package channel

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/rcowham/pijulgo/apply"
	"github.com/rcowham/pijulgo/blobstore"
	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/pristine"
	"github.com/rcowham/pijulgo/pristine/schema"
)

// scopedTables lists every table keyed with schema.EncodeChannelKey, so
// Fork/Rename/Drop can walk them generically instead of hand-copying each
// one. Kept here rather than in package schema since this is an
// orchestration concern specific to whole-channel operations, not a typed
// accessor for one table.
var scopedTables = []string{
	schema.TableGraph,
	schema.TableRevGraph,
	schema.TableInodes,
	schema.TableRevInodes,
	schema.TableTree,
	schema.TableRevTree,
	schema.TableStates,
	schema.TableTags,
	schema.TableChangeLog,
	schema.TableChangeOrdinal,
	schema.TableOrdinalMerkle,
}

// directTables lists tables keyed directly by the raw channel name
// (ApplyCounter, CurrentMerkle), rather than through EncodeChannelKey.
var directTables = []string{
	schema.TableApplyCounter,
	schema.TableCurrentMerkle,
}

// Open registers name in the channel registry if it is not already
// present (spec §4.7 "opened by name from a registry table"); opening an
// existing channel is a no-op.
func Open(txn pristine.WriteTxn, name string) error {
	if name == "" {
		return errors.New("channel: name must not be empty")
	}
	return schema.CreateChannelEntry(txn, name)
}

// Exists reports whether name is registered.
func Exists(txn pristine.ReadTxn, name string) bool {
	return schema.ChannelEntryExists(txn, name)
}

// Fork clones from's changelog and graph into a new channel to, sharing
// no storage with from from this point forward (bbolt has no
// cross-bucket page sharing, so "clones... sharing underlying pages" per
// spec.md §4.7 is realized here as a row-for-row copy under to's key
// prefix instead — the two channels are independent after Fork returns,
// exactly as if pages had been shared copy-on-write and then both sides
// started diverging immediately).
func Fork(txn pristine.WriteTxn, from, to string) error {
	if !schema.ChannelEntryExists(txn.ReadTxn, from) {
		return NotFound{Name: from}
	}
	if schema.ChannelEntryExists(txn.ReadTxn, to) {
		return AlreadyExists{Name: to}
	}
	if err := copyChannelTables(txn, from, to); err != nil {
		return err
	}
	return schema.CreateChannelEntry(txn, to)
}

// Rename moves from's registry entry and every channel-scoped row to to.
func Rename(txn pristine.WriteTxn, from, to string) error {
	if !schema.ChannelEntryExists(txn.ReadTxn, from) {
		return NotFound{Name: from}
	}
	if schema.ChannelEntryExists(txn.ReadTxn, to) {
		return AlreadyExists{Name: to}
	}
	if err := copyChannelTables(txn, from, to); err != nil {
		return err
	}
	if err := purgeChannelTables(txn, from); err != nil {
		return err
	}
	if err := schema.CreateChannelEntry(txn, to); err != nil {
		return err
	}
	return schema.DeleteChannelEntry(txn, from)
}

// Drop unapplies every change on name's channel from the top down (each
// step satisfies apply.Unapply's top-of-channel restriction, since
// removing the current top always makes the previous ordinal the new
// top), then erases the channel's remaining table rows and registry
// entry. blobs is needed to load each change's contents back for Unapply
// to replay in reverse.
func Drop(txn pristine.WriteTxn, blobs *blobstore.Store, log *logrus.Logger, name string) error {
	if !schema.ChannelEntryExists(txn.ReadTxn, name) {
		return NotFound{Name: name}
	}
	for {
		ordinal := schema.CurrentOrdinal(txn.ReadTxn, name)
		if ordinal == 0 {
			break
		}
		id, ok := schema.ChangeAtOrdinal(txn.ReadTxn, name, ordinal)
		if !ok {
			return errors.Errorf("channel: drop %q: ordinal %d has no recorded change", name, ordinal)
		}
		c, err := loadChange(txn.ReadTxn, blobs, id)
		if err != nil {
			return errors.Wrapf(err, "channel: drop %q: load change at ordinal %d", name, ordinal)
		}
		if err := apply.Unapply(txn, log, name, id, c); err != nil {
			return errors.Wrapf(err, "channel: drop %q: unapply ordinal %d", name, ordinal)
		}
	}
	if err := purgeChannelTables(txn, name); err != nil {
		return err
	}
	return schema.DeleteChannelEntry(txn, name)
}

// Switch verifies that no pending actions exist against the working copy
// before letting a caller change which channel it is checked out against
// (spec §4.7 "refuse if actions are non-empty"). pendingActions is the
// caller's list of unrecorded working-copy actions against the channel
// being left; channel itself has no notion of a working copy, so the
// caller is responsible for computing it immediately before calling
// Switch.
func Switch(txn pristine.ReadTxn, to string, pendingActions []string) error {
	if len(pendingActions) > 0 {
		return PendingChanges{Actions: pendingActions}
	}
	if !schema.ChannelEntryExists(txn, to) {
		return NotFound{Name: to}
	}
	return nil
}

func loadChange(txn pristine.ReadTxn, blobs *blobstore.Store, id change.ChangeId) (*change.Change, error) {
	h, ok := schema.LookupHash(txn, id)
	if !ok {
		return nil, errors.Errorf("channel: change %d has no recorded hash", id)
	}
	raw, err := blobs.Load(h)
	if err != nil {
		return nil, err
	}
	return change.Parse(raw)
}

// copyChannelTables copies every channel-scoped row under from to the
// same relative key under to, across both EncodeChannelKey-framed tables
// and the two tables keyed directly by raw channel name.
func copyChannelTables(txn pristine.WriteTxn, from, to string) error {
	for _, table := range scopedTables {
		src, err := txn.Bucket(table)
		if err != nil {
			return err
		}
		var entries [][2][]byte
		prefix := schema.ChannelKeyPrefix(from)
		if err := src.Range(prefix, func(k, v []byte) error {
			_, rest := schema.SplitChannelKey(k)
			key := append([]byte{}, rest...)
			val := append([]byte{}, v...)
			entries = append(entries, [2][]byte{key, val})
			return nil
		}); err != nil {
			return err
		}
		for _, e := range entries {
			if err := src.Put(schema.EncodeChannelKey(to, e[0]), e[1]); err != nil {
				return err
			}
		}
	}
	for _, table := range directTables {
		b, err := txn.Bucket(table)
		if err != nil {
			return err
		}
		v := b.Get([]byte(from))
		if v == nil {
			continue
		}
		if err := b.Put([]byte(to), append([]byte{}, v...)); err != nil {
			return err
		}
	}
	return nil
}

// purgeChannelTables deletes every channel-scoped row for name, across
// both table families. Pristine-wide tables (Changes, Dep, Touched,
// BlobRefcount, ...) are untouched: a change installed into name's
// channel may also be installed elsewhere, so only Drop's preceding
// Unapply loop (which decrements refcounts one change at a time) is
// allowed to retire those.
func purgeChannelTables(txn pristine.WriteTxn, name string) error {
	for _, table := range scopedTables {
		b, err := txn.Bucket(table)
		if err != nil {
			return err
		}
		prefix := schema.ChannelKeyPrefix(name)
		var keys [][]byte
		if err := b.Range(prefix, func(k, v []byte) error {
			keys = append(keys, append([]byte{}, k...))
			return nil
		}); err != nil {
			return err
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
	}
	for _, table := range directTables {
		b, err := txn.Bucket(table)
		if err != nil {
			return err
		}
		if err := b.Delete([]byte(name)); err != nil {
			return err
		}
	}
	return nil
}
