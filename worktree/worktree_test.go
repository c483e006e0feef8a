package worktree

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddFindDeleteFile(t *testing.T) {
	n := NewTree(false)
	n.AddFile("src/main.go")
	n.AddFile("README.md")

	assert.True(t, n.FindFile("src/main.go"))
	assert.True(t, n.FindFile("README.md"))
	assert.False(t, n.FindFile("src/missing.go"))

	n.DeleteFile("src/main.go")
	assert.False(t, n.FindFile("src/main.go"))
	// Deleting an absent path is a no-op, not an error.
	n.DeleteFile("src/main.go")
}

func TestDiffDetectsAddDeleteAndMove(t *testing.T) {
	before := NewTree(false)
	before.AddFile("a.txt")
	before.AddFile("old/b.txt")
	before.AddFile("gone.txt")

	after := NewTree(false)
	after.AddFile("a.txt")
	after.AddFile("new/b.txt")
	after.AddFile("added.txt")

	added, deleted, moved := before.Diff(after)

	assert.Equal(t, []string{"added.txt"}, added)
	assert.Equal(t, []string{"gone.txt"}, deleted)
	assert.Equal(t, map[string]string{"old/b.txt": "new/b.txt"}, moved)
}

func TestCaseInsensitiveMatching(t *testing.T) {
	n := NewTree(true)
	n.AddFile("README.md")
	assert.True(t, n.FindFile("readme.md"))
}
