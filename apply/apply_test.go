package apply

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/pristine"
	"github.com/rcowham/pijulgo/pristine/schema"
)

func openTemp(t *testing.T) *pristine.Pristine {
	t.Helper()
	p, err := pristine.Open(filepath.Join(t.TempDir(), "pristine"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func fileAddChange(path string, inode change.Inode, contents string) *change.Change {
	return &change.Change{
		Header:   change.Header{Message: "add " + path},
		Contents: []byte(contents),
		Hunks: []change.Hunk{
			change.FileAdd{
				Path:          path,
				Inode:         inode,
				ContentOffset: 0,
				ContentLen:    uint64(len(contents)),
			},
		},
	}
}

func TestApplyFileAddRegistersTreeAndGraph(t *testing.T) {
	p := openTemp(t)
	c := fileAddChange("hello.txt", 1, "hi there")
	h := change.HashBytes([]byte("c1"))

	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		_, err := Apply(txn, nil, "main", h, c)
		return err
	}))

	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		child, ok := schema.GetTreeEntry(txn, "main", RootInode, "hello.txt")
		require.True(t, ok)
		assert.Equal(t, change.Inode(1), child)

		pos, ok := schema.GetInodePosition(txn, "main", 1)
		require.True(t, ok)
		assert.Equal(t, uint64(1), uint64(pos.Change))

		row, ok := schema.GetGraphRow(txn, "main", RootPosition)
		require.True(t, ok)
		require.Len(t, row.Edges, 1)
		assert.True(t, row.Edges[0].Flags.Has(change.FlagAlive))
		assert.Equal(t, pos, row.Edges[0].Target)
		return nil
	}))
}

func TestApplyThenUnapplyRestoresEmptyTree(t *testing.T) {
	p := openTemp(t)
	c := fileAddChange("hello.txt", 1, "hi there")
	h := change.HashBytes([]byte("c1"))

	var id change.ChangeId
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		var err error
		id, err = Apply(txn, nil, "main", h, c)
		return err
	}))

	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		return Unapply(txn, nil, "main", id, c)
	}))

	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		_, ok := schema.GetTreeEntry(txn, "main", RootInode, "hello.txt")
		assert.False(t, ok, "tree entry must not survive apply/unapply round trip")
		_, ok = schema.GetInodePosition(txn, "main", 1)
		assert.False(t, ok)
		assert.Equal(t, uint64(0), schema.CurrentOrdinal(txn, "main"))
		merkle, _ := schema.GetCurrentMerkle(txn, "main")
		assert.Equal(t, change.Hash{}, merkle)
		return nil
	}))
}

func TestApplyMissingDependencyRejected(t *testing.T) {
	p := openTemp(t)
	c := fileAddChange("hello.txt", 1, "hi")
	c.Dependencies = []change.Hash{change.HashBytes([]byte("never-applied"))}
	h := change.HashBytes([]byte("c1"))

	err := p.Update(func(txn pristine.WriteTxn) error {
		_, err := Apply(txn, nil, "main", h, c)
		return err
	})
	require.Error(t, err)
	assert.IsType(t, MissingDependency{}, errCause(err))
}

func errCause(err error) error {
	type causer interface{ Cause() error }
	for {
		c, ok := err.(causer)
		if !ok {
			return err
		}
		err = c.Cause()
	}
}

func TestMerkleSequenceAcrossApplyUnapplyApply(t *testing.T) {
	p := openTemp(t)
	c1 := fileAddChange("a.txt", 1, "aaa")
	h1 := change.HashBytes([]byte("c1"))
	c2 := fileAddChange("b.txt", 2, "bbb")
	h2 := change.HashBytes([]byte("c2"))

	var id1, id2 change.ChangeId
	var m0, m1 change.Hash

	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		var err error
		id1, err = Apply(txn, nil, "main", h1, c1)
		return err
	}))
	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		m0, _ = schema.GetCurrentMerkle(txn, "main")
		return nil
	}))

	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		var err error
		id2, err = Apply(txn, nil, "main", h2, c2)
		return err
	}))
	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		m1, _ = schema.GetCurrentMerkle(txn, "main")
		return nil
	}))
	assert.NotEqual(t, m0, m1)
	assert.Equal(t, Combine(m0, h2), m1)

	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		return Unapply(txn, nil, "main", id2, c2)
	}))
	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		got, _ := schema.GetCurrentMerkle(txn, "main")
		assert.Equal(t, m0, got, "unapply must restore the exact prior merkle")
		return nil
	}))

	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		var err error
		id2, err = Apply(txn, nil, "main", h2, c2)
		return err
	}))
	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		got, _ := schema.GetCurrentMerkle(txn, "main")
		assert.Equal(t, m1, got, "re-applying the same change must reproduce the same merkle")
		return nil
	}))
	_ = id1
}

func TestUnapplyRejectsNonTopOfChannel(t *testing.T) {
	p := openTemp(t)
	c1 := fileAddChange("a.txt", 1, "aaa")
	h1 := change.HashBytes([]byte("c1"))
	c2 := fileAddChange("b.txt", 2, "bbb")
	h2 := change.HashBytes([]byte("c2"))

	var id1 change.ChangeId
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		var err error
		id1, err = Apply(txn, nil, "main", h1, c1)
		return err
	}))
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		_, err := Apply(txn, nil, "main", h2, c2)
		return err
	}))

	err := p.Update(func(txn pristine.WriteTxn) error {
		return Unapply(txn, nil, "main", id1, c1)
	})
	require.Error(t, err)
	assert.IsType(t, NotTopOfChannel{}, err)
}
