package channel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcowham/pijulgo/apply"
	"github.com/rcowham/pijulgo/blobstore"
	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/output"
	"github.com/rcowham/pijulgo/pristine"
)

func setup(t *testing.T) (*pristine.Pristine, *blobstore.Store) {
	t.Helper()
	p, err := pristine.Open(filepath.Join(t.TempDir(), "pristine"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	blobs, err := blobstore.Open(filepath.Join(t.TempDir(), "blobs"), 0, nil)
	require.NoError(t, err)
	t.Cleanup(blobs.Close)
	return p, blobs
}

func addFile(t *testing.T, p *pristine.Pristine, blobs *blobstore.Store, channelName, path string, inode change.Inode, contents string) change.ChangeId {
	t.Helper()
	c := &change.Change{
		Contents: []byte(contents),
		Hunks: []change.Hunk{
			change.FileAdd{Path: path, Inode: inode, ContentOffset: 0, ContentLen: uint64(len(contents))},
		},
	}
	raw, err := change.Serialize(c)
	require.NoError(t, err)
	h := change.HashBytes(raw)
	require.NoError(t, blobs.Save(h, raw))
	var id change.ChangeId
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		var err error
		id, err = apply.Apply(txn, nil, channelName, h, c)
		return err
	}))
	return id
}

func TestOpenIsIdempotent(t *testing.T) {
	p, _ := setup(t)
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		require.NoError(t, Open(txn, "main"))
		return Open(txn, "main")
	}))
	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		assert.True(t, Exists(txn, "main"))
		return nil
	}))
}

func TestForkCopiesChangelogAndGraph(t *testing.T) {
	p, blobs := setup(t)
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error { return Open(txn, "main") }))
	addFile(t, p, blobs, "main", "a.txt", 1, "hello")

	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		return Fork(txn, "main", "feature")
	}))

	dest := t.TempDir()
	wc := output.NewOSWorkingCopy(dest)
	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		return output.Write(txn, "feature", blobs, wc, output.Options{}, nil)
	}))
	got, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		assert.True(t, Exists(txn, "main"))
		assert.True(t, Exists(txn, "feature"))
		return nil
	}))
}

func TestForkRefusesUnknownSourceOrExistingDest(t *testing.T) {
	p, _ := setup(t)
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error { return Open(txn, "main") }))

	err := p.Update(func(txn pristine.WriteTxn) error { return Fork(txn, "nope", "feature") })
	assert.IsType(t, NotFound{}, err)

	err = p.Update(func(txn pristine.WriteTxn) error { return Fork(txn, "main", "main") })
	assert.IsType(t, AlreadyExists{}, err)
}

func TestRenameMovesChannel(t *testing.T) {
	p, blobs := setup(t)
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error { return Open(txn, "main") }))
	addFile(t, p, blobs, "main", "a.txt", 1, "hello")

	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		return Rename(txn, "main", "trunk")
	}))

	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		assert.False(t, Exists(txn, "main"))
		assert.True(t, Exists(txn, "trunk"))
		return nil
	}))

	dest := t.TempDir()
	wc := output.NewOSWorkingCopy(dest)
	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		return output.Write(txn, "trunk", blobs, wc, output.Options{}, nil)
	}))
	got, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestDropUnwindsChangesAndErasesChannel(t *testing.T) {
	p, blobs := setup(t)
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error { return Open(txn, "main") }))
	addFile(t, p, blobs, "main", "a.txt", 1, "hello")
	addFile(t, p, blobs, "main", "b.txt", 2, "world")

	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		return Drop(txn, blobs, nil, "main")
	}))

	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		assert.False(t, Exists(txn, "main"))
		return nil
	}))
}

func TestSwitchRefusesWithPendingActions(t *testing.T) {
	p, _ := setup(t)
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error { return Open(txn, "main") }))

	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		err := Switch(txn, "main", []string{"+ new.txt"})
		assert.IsType(t, PendingChanges{}, err)
		return nil
	}))
	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		return Switch(txn, "main", nil)
	}))
}

func TestTagCheckoutReplaysIntoNewChannel(t *testing.T) {
	p, blobs := setup(t)
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error { return Open(txn, "main") }))
	addFile(t, p, blobs, "main", "a.txt", 1, "hello")

	var merkle change.Hash
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		var err error
		merkle, err = Tag(txn, blobs, "main")
		return err
	}))

	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		return TagCheckout(txn, blobs, nil, merkle, "restored")
	}))

	dest := t.TempDir()
	wc := output.NewOSWorkingCopy(dest)
	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		return output.Write(txn, "restored", blobs, wc, output.Options{}, nil)
	}))
	got, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestTagResetLeavesNoChannelBehind(t *testing.T) {
	p, blobs := setup(t)
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error { return Open(txn, "main") }))
	addFile(t, p, blobs, "main", "a.txt", 1, "hello")

	var merkle change.Hash
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		var err error
		merkle, err = Tag(txn, blobs, "main")
		return err
	}))

	dest := t.TempDir()
	wc := output.NewOSWorkingCopy(dest)
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		return TagReset(txn, blobs, wc, output.Options{}, nil, merkle)
	}))

	got, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		assert.True(t, Exists(txn, "main"))
		assert.False(t, Exists(txn, scratchChannelName(merkle)))
		return nil
	}))
}
