package pristine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Pristine {
	t.Helper()
	p, err := Open(filepath.Join(t.TempDir(), "pristine"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestUpdateThenViewSeesCommittedData(t *testing.T) {
	p := openTemp(t)

	err := p.Update(func(txn WriteTxn) error {
		b, err := txn.Bucket("graph")
		require.NoError(t, err)
		return b.Put([]byte("k"), []byte("v"))
	})
	require.NoError(t, err)

	err = p.View(func(txn ReadTxn) error {
		b := txn.Bucket("graph")
		assert.Equal(t, []byte("v"), b.Get([]byte("k")))
		return nil
	})
	require.NoError(t, err)
}

func TestFailedUpdateLeavesPreviousRootIntact(t *testing.T) {
	p := openTemp(t)

	require.NoError(t, p.Update(func(txn WriteTxn) error {
		b, err := txn.Bucket("graph")
		require.NoError(t, err)
		return b.Put([]byte("k"), []byte("v1"))
	}))

	sentinel := assertErr{}
	err := p.Update(func(txn WriteTxn) error {
		b, err := txn.Bucket("graph")
		require.NoError(t, err)
		require.NoError(t, b.Put([]byte("k"), []byte("v2")))
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	require.NoError(t, p.View(func(txn ReadTxn) error {
		b := txn.Bucket("graph")
		assert.Equal(t, []byte("v1"), b.Get([]byte("k")), "rolled-back write must not be visible")
		return nil
	}))
}

type assertErr struct{}

func (assertErr) Error() string { return "forced rollback" }

func TestReadOnMissingTableIsEmptyNotError(t *testing.T) {
	p := openTemp(t)
	err := p.View(func(txn ReadTxn) error {
		b := txn.Bucket("never-written")
		assert.Nil(t, b.Get([]byte("anything")))
		return b.ForEach(func(k, v []byte) error {
			t.Fatalf("unexpected entry in never-written table")
			return nil
		})
	})
	require.NoError(t, err)
}

func TestRangeRespectsPrefix(t *testing.T) {
	p := openTemp(t)
	require.NoError(t, p.Update(func(txn WriteTxn) error {
		b, err := txn.Bucket("t")
		require.NoError(t, err)
		for _, k := range []string{"a/1", "a/2", "b/1"} {
			require.NoError(t, b.Put([]byte(k), []byte("x")))
		}
		return nil
	}))
	var got []string
	require.NoError(t, p.View(func(txn ReadTxn) error {
		b := txn.Bucket("t")
		return b.Range([]byte("a/"), func(k, v []byte) error {
			got = append(got, string(k))
			return nil
		})
	}))
	assert.Equal(t, []string{"a/1", "a/2"}, got)
}
