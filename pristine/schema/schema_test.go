package schema

import (
	"path/filepath"
	"testing"

	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/pristine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *pristine.Pristine {
	t.Helper()
	p, err := pristine.Open(filepath.Join(t.TempDir(), "pristine"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestGraphRowRoundTrip(t *testing.T) {
	p := openTemp(t)
	start := change.Position{Change: 1, Offset: 0}
	row := GraphRow{
		Other: change.Position{Change: 1, Offset: 5},
		Edges: []StoredEdge{
			{Flags: change.FlagAlive, Target: change.Position{Change: 2, Offset: 0}, Introducer: 2},
		},
	}
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		return PutGraphRow(txn, "main", start, row)
	}))
	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		got, ok := GetGraphRow(txn, "main", start)
		require.True(t, ok)
		assert.Equal(t, row, got)
		return nil
	}))
}

func TestChannelScopingKeepsChannelsIsolated(t *testing.T) {
	p := openTemp(t)
	pos := change.Position{Change: 1, Offset: 0}
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		require.NoError(t, PutGraphRow(txn, "main", pos, GraphRow{Other: pos}))
		return nil
	}))
	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		_, ok := GetGraphRow(txn, "feature", pos)
		assert.False(t, ok, "feature channel must not see main's graph row")
		return nil
	}))
}

func TestAssignChangeIdIsBijectiveAndStable(t *testing.T) {
	p := openTemp(t)
	h := change.HashBytes([]byte("x"))
	var first change.ChangeId
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		id, err := AssignChangeId(txn, h)
		require.NoError(t, err)
		first = id
		return nil
	}))
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		id, err := AssignChangeId(txn, h)
		require.NoError(t, err)
		assert.Equal(t, first, id, "re-assigning a known hash must reuse its ChangeId")
		return nil
	}))
	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		got, ok := LookupHash(txn, first)
		require.True(t, ok)
		assert.Equal(t, h, got)
		return nil
	}))
}

func TestDepAndRevDepSymmetric(t *testing.T) {
	p := openTemp(t)
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		return AddDep(txn, 2, 1)
	}))
	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		assert.Equal(t, []change.ChangeId{1}, Dependencies(txn, 2))
		assert.Equal(t, []change.ChangeId{2}, Dependents(txn, 1))
		return nil
	}))
}

func TestRefcountGCThreshold(t *testing.T) {
	p := openTemp(t)
	h := change.HashBytes([]byte("blob"))
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		_, err := IncRefcount(txn, h, 1)
		require.NoError(t, err)
		_, err = IncRefcount(txn, h, 1)
		return err
	}))
	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		assert.Equal(t, uint64(2), Refcount(txn, h))
		return nil
	}))
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		_, err := IncRefcount(txn, h, -1)
		require.NoError(t, err)
		_, err = IncRefcount(txn, h, -1)
		return err
	}))
	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		assert.Equal(t, uint64(0), Refcount(txn, h), "refcount must not go negative, and zero means GC-eligible")
		return nil
	}))
}

func TestTreeAndRevTreeInverse(t *testing.T) {
	p := openTemp(t)
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		return PutTreeEntry(txn, "main", 1, "a.txt", 2)
	}))
	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		child, ok := GetTreeEntry(txn, "main", 1, "a.txt")
		require.True(t, ok)
		assert.Equal(t, change.Inode(2), child)

		parent, basename, ok := GetParent(txn, "main", 2)
		require.True(t, ok)
		assert.Equal(t, change.Inode(1), parent)
		assert.Equal(t, "a.txt", basename)
		return nil
	}))
}

func TestChildrenOfHidesDeletedEntries(t *testing.T) {
	p := openTemp(t)
	parentPos := change.Position{}
	childPos := change.Position{Change: 1, Offset: 0}

	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		if err := PutTreeEntry(txn, "main", 0, "a.txt", 7); err != nil {
			return err
		}
		if err := PutInode(txn, "main", 7, childPos); err != nil {
			return err
		}
		return AddEdge(txn, "main", parentPos, childPos, change.FlagAlive, 1)
	}))

	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		children := ChildrenOf(txn, "main", 0)
		assert.Equal(t, map[string]change.Inode{"a.txt": 7}, children)
		return nil
	}))

	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		_, err := MarkEdgesToTargetDeleted(txn, "main", parentPos, childPos, 2)
		return err
	}))

	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		children := ChildrenOf(txn, "main", 0)
		assert.Empty(t, children, "a deleted child must not appear as present")

		// The Tree table's own row survives the delete, unlike ChildrenOf's
		// filtered view.
		child, ok := GetTreeEntry(txn, "main", 0, "a.txt")
		require.True(t, ok)
		assert.Equal(t, change.Inode(7), child)
		return nil
	}))
}

func TestOrdinalSequencing(t *testing.T) {
	p := openTemp(t)
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		o1, err := NextOrdinal(txn, "main")
		require.NoError(t, err)
		assert.Equal(t, uint64(1), o1)
		o2, err := NextOrdinal(txn, "main")
		require.NoError(t, err)
		assert.Equal(t, uint64(2), o2)
		return nil
	}))
	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		assert.Equal(t, uint64(2), CurrentOrdinal(txn, "main"))
		return nil
	}))
}
