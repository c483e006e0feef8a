package diffrecord

import (
	"fmt"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcowham/pijulgo/apply"
	"github.com/rcowham/pijulgo/blobstore"
	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/output"
	"github.com/rcowham/pijulgo/pristine"
	"github.com/rcowham/pijulgo/pristine/schema"
)

// fakeSourceTree is an in-memory SourceTree for tests that never touch a
// real filesystem; files map a slash-separated path to its bytes.
type fakeSourceTree struct {
	files map[string][]byte
}

func newFakeSourceTree(files map[string]string) *fakeSourceTree {
	t := &fakeSourceTree{files: map[string][]byte{}}
	for p, data := range files {
		t.files[p] = []byte(data)
	}
	return t
}

func (t *fakeSourceTree) Walk(fn func(FileInfo) error) error {
	var paths []string
	for p := range t.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := fn(FileInfo{Path: p, Size: int64(len(t.files[p]))}); err != nil {
			return err
		}
	}
	return nil
}

func (t *fakeSourceTree) ReadFile(path string) ([]byte, error) {
	data, ok := t.files[path]
	if !ok {
		return nil, assert.AnError
	}
	return data, nil
}

func setupRecord(t *testing.T) (*pristine.Pristine, *blobstore.Store) {
	t.Helper()
	p, err := pristine.Open(filepath.Join(t.TempDir(), "pristine"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	blobs, err := blobstore.Open(filepath.Join(t.TempDir(), "blobs"), 0, nil)
	require.NoError(t, err)
	t.Cleanup(blobs.Close)
	return p, blobs
}

func renderedContent(t *testing.T, p *pristine.Pristine, blobs *blobstore.Store, path string) string {
	t.Helper()
	var got string
	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		inode, ok := resolvePath(txn, "main", path)
		require.True(t, ok, "no inode recorded for %s", path)
		pos, ok := schema.GetInodePosition(txn, "main", inode)
		require.True(t, ok, "no content vertex recorded for %s", path)
		resolver := output.NewContentResolver(txn, blobs)
		data, err := output.RenderFile(txn, "main", resolver, pos)
		if err != nil {
			return err
		}
		got = string(data)
		return nil
	}))
	return got
}

func TestRecordAddsNewFiles(t *testing.T) {
	p, blobs := setupRecord(t)
	tree := newFakeSourceTree(map[string]string{
		"README.md":  "hello\n",
		"src/main.go": "package main\n",
	})

	var hash change.Hash
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		c, h, err := Record(txn, nil, "main", blobs, tree, Options{Message: "initial"})
		require.NoError(t, err)
		require.NotNil(t, c)
		hash = h
		return nil
	}))
	assert.NotEqual(t, change.Hash{}, hash)

	assert.Equal(t, "hello\n", renderedContent(t, p, blobs, "README.md"))
	assert.Equal(t, "package main\n", renderedContent(t, p, blobs, "src/main.go"))
}

func TestRecordNoopWhenNothingChanged(t *testing.T) {
	p, blobs := setupRecord(t)
	tree := newFakeSourceTree(map[string]string{"a.txt": "unchanged\n"})

	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		_, _, err := Record(txn, nil, "main", blobs, tree, Options{Message: "first"})
		return err
	}))

	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		c, h, err := Record(txn, nil, "main", blobs, tree, Options{Message: "second"})
		assert.NoError(t, err)
		assert.Nil(t, c)
		assert.Equal(t, change.Hash{}, h)
		return nil
	}))
}

func TestRecordEditsExistingFileContent(t *testing.T) {
	p, blobs := setupRecord(t)
	tree := newFakeSourceTree(map[string]string{
		"notes.txt": "line one\nline two\nline three\n",
	})

	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		_, _, err := Record(txn, nil, "main", blobs, tree, Options{Message: "first"})
		return err
	}))

	tree.files["notes.txt"] = []byte("line one\nline TWO edited\nline three\n")
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		c, _, err := Record(txn, nil, "main", blobs, tree, Options{Message: "edit"})
		require.NoError(t, err)
		require.NotNil(t, c)
		return nil
	}))

	assert.Equal(t, "line one\nline TWO edited\nline three\n", renderedContent(t, p, blobs, "notes.txt"))
}

func TestRecordEditsBinaryFileAsWholeSpanReplacement(t *testing.T) {
	p, blobs := setupRecord(t)
	png := func(fill byte) string {
		sig := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
		body := make([]byte, 16)
		for i := range body {
			body[i] = fill
		}
		return string(append(sig, body...))
	}
	tree := newFakeSourceTree(map[string]string{"logo.png": png(0x01)})

	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		_, _, err := Record(txn, nil, "main", blobs, tree, Options{Message: "first"})
		return err
	}))

	tree.files["logo.png"] = []byte(png(0x02))
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		c, _, err := Record(txn, nil, "main", blobs, tree, Options{Message: "edit binary"})
		require.NoError(t, err)
		require.NotNil(t, c)
		return nil
	}))

	assert.Equal(t, png(0x02), renderedContent(t, p, blobs, "logo.png"))
}

func TestRecordDeletesFile(t *testing.T) {
	p, blobs := setupRecord(t)
	tree := newFakeSourceTree(map[string]string{
		"keep.txt":   "stays\n",
		"remove.txt": "goes away\n",
	})

	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		_, _, err := Record(txn, nil, "main", blobs, tree, Options{Message: "first"})
		return err
	}))

	delete(tree.files, "remove.txt")
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		_, _, err := Record(txn, nil, "main", blobs, tree, Options{Message: "delete"})
		return err
	}))

	require.NoError(t, p.View(func(txn pristine.ReadTxn) error {
		_, ok := resolvePath(txn, "main", "remove.txt")
		assert.False(t, ok)
		return nil
	}))
	assert.Equal(t, "stays\n", renderedContent(t, p, blobs, "keep.txt"))
}

func TestRecordParallelEditsAcrossManyFiles(t *testing.T) {
	p, blobs := setupRecord(t)
	files := map[string]string{}
	for i := 0; i < 8; i++ {
		files[fmt.Sprintf("pkg/file%d.go", i)] = "package pkg\n\nfunc F() {}\n"
	}
	tree := newFakeSourceTree(files)

	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		_, _, err := Record(txn, nil, "main", blobs, tree, Options{Message: "first", Workers: 4})
		return err
	}))

	for path := range files {
		tree.files[path] = []byte("package pkg\n\nfunc F() { /* changed */ }\n")
	}
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		c, _, err := Record(txn, nil, "main", blobs, tree, Options{Message: "edit all", Workers: 4})
		require.NoError(t, err)
		require.NotNil(t, c)
		return nil
	}))

	for path := range files {
		assert.Equal(t, "package pkg\n\nfunc F() { /* changed */ }\n", renderedContent(t, p, blobs, path))
	}
}

func TestRecordDependsOnIntroducingChange(t *testing.T) {
	p, blobs := setupRecord(t)
	tree := newFakeSourceTree(map[string]string{"a.txt": "alpha\nbeta\ngamma\n"})

	var firstHash change.Hash
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		_, h, err := Record(txn, nil, "main", blobs, tree, Options{Message: "first"})
		firstHash = h
		return err
	}))

	tree.files["a.txt"] = []byte("alpha\nBETA\ngamma\n")
	var second *change.Change
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		c, _, err := Record(txn, nil, "main", blobs, tree, Options{Message: "second"})
		second = c
		return err
	}))

	require.NotNil(t, second)
	assert.Contains(t, second.Dependencies, firstHash)
}

// sanity: apply.Apply is reachable directly for a file Record never
// touches, confirming Record composes with manually-applied changes
// rather than assuming it owns the whole channel history.
func TestRecordAfterManualApply(t *testing.T) {
	p, blobs := setupRecord(t)
	c := &change.Change{
		Contents: []byte("manual\n"),
		Hunks: []change.Hunk{
			change.FileAdd{Path: "manual.txt", Inode: 1, ContentOffset: 0, ContentLen: uint64(len("manual\n"))},
		},
	}
	raw, err := change.Serialize(c)
	require.NoError(t, err)
	h := change.HashBytes(raw)
	require.NoError(t, blobs.Save(h, raw))
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		_, err := apply.Apply(txn, nil, "main", h, c)
		return err
	}))

	tree := newFakeSourceTree(map[string]string{
		"manual.txt": "manual\n",
		"added.txt":  "new\n",
	})
	require.NoError(t, p.Update(func(txn pristine.WriteTxn) error {
		rc, _, err := Record(txn, nil, "main", blobs, tree, Options{Message: "add one more"})
		require.NoError(t, err)
		require.NotNil(t, rc)
		return nil
	}))

	assert.Equal(t, "manual\n", renderedContent(t, p, blobs, "manual.txt"))
	assert.Equal(t, "new\n", renderedContent(t, p, blobs, "added.txt"))
}
