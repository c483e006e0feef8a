package graphviz

import (
	"path/filepath"
	"strings"
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

func TestRenderTreeIncludesAliveChildrenOnly(t *testing.T) {
	p := openTemp(t)
	keepPos := change.Position{Change: 1, Offset: 0}
	gonePos := change.Position{Change: 1, Offset: 1}
	root := change.Position{}

	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		require.NoError(t, schema.PutTreeEntry(txn, "main", 0, "keep.txt", 1))
		require.NoError(t, schema.PutInode(txn, "main", 1, keepPos))
		require.NoError(t, schema.AddEdge(txn, "main", root, keepPos, change.FlagAlive, 1))

		require.NoError(t, schema.PutTreeEntry(txn, "main", 0, "gone.txt", 2))
		require.NoError(t, schema.PutInode(txn, "main", 2, gonePos))
		require.NoError(t, schema.AddEdge(txn, "main", root, gonePos, change.FlagAlive, 1))
		_, err := schema.MarkEdgesToTargetDeleted(txn, "main", root, gonePos, 2)
		return err
	}))

	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		g := RenderTree(txn, "main")
		dot := g.String()
		assert.Contains(t, dot, "keep.txt")
		assert.NotContains(t, dot, "gone.txt")
		return nil
	}))
}

func TestRenderFileChainMarksConflictDiamond(t *testing.T) {
	p := openTemp(t)
	start := change.Position{Change: 1, Offset: 0}
	branch := change.Position{Change: 1, Offset: 10}
	left := change.Position{Change: 2, Offset: 0}
	right := change.Position{Change: 3, Offset: 0}

	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		require.NoError(t, schema.PutGraphRow(txn, "main", start, schema.GraphRow{Other: branch}))
		require.NoError(t, schema.AddEdge(txn, "main", branch, left, change.FlagAlive, 2))
		return schema.AddEdge(txn, "main", branch, right, change.FlagAlive, 3)
	}))

	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		g := RenderFileChain(txn, "main", start)
		dot := g.String()
		assert.True(t, strings.Contains(dot, "diamond"), "expected a diamond-shaped conflict node, got:\n%s", dot)
		return nil
	}))
}

func TestRenderFileChainLinearNoDiamond(t *testing.T) {
	p := openTemp(t)
	start := change.Position{Change: 1, Offset: 0}
	end := change.Position{Change: 1, Offset: 10}

	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		return schema.PutGraphRow(txn, "main", start, schema.GraphRow{Other: end})
	}))

	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		g := RenderFileChain(txn, "main", start)
		assert.NotContains(t, g.String(), "diamond")
		return nil
	}))
}
