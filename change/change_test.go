package change

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleChange() *Change {
	return &Change{
		Header: Header{
			Authors: []Author{{"name": "svn-user", "key": "abc123"}},
			Message: "add a.txt",
			Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		Dependencies: []Hash{HashBytes([]byte("dep-1"))},
		Hunks: []Hunk{
			FileAdd{Path: "a.txt", Inode: 1, ContentOffset: 0, ContentLen: 6, IsExecutable: false},
			Edit{
				Inode:        1,
				VertexSplits: []Position{{Change: 1, Offset: 3}},
				EdgesAdded: []EdgeAddition{
					{From: Position{Change: 1, Offset: 0}, To: Position{Change: 2, Offset: 0}, Flags: FlagAlive},
				},
				EdgesDeleted:      []EdgeDeletion{{From: Position{Change: 1, Offset: 3}, To: Position{Change: 1, Offset: 6}}},
				ReplacementOffset: 6,
				ReplacementLen:    12,
			},
		},
		Contents: []byte("hello\nhello\nworld\n"),
	}
}

func TestSerializeParseRoundTrip(t *testing.T) {
	c := sampleChange()
	b, err := Serialize(c)
	require.NoError(t, err)

	parsed, err := Parse(b)
	require.NoError(t, err)

	assert.Equal(t, c.Header.Message, parsed.Header.Message)
	assert.Equal(t, c.Header.Timestamp.UnixNano(), parsed.Header.Timestamp.UnixNano())
	assert.Equal(t, c.Dependencies, parsed.Dependencies)
	assert.Equal(t, c.Contents, parsed.Contents)
	require.Len(t, parsed.Hunks, 2)
	assert.Equal(t, c.Hunks[0], parsed.Hunks[0])
	assert.Equal(t, c.Hunks[1], parsed.Hunks[1])

	b2, err := Serialize(parsed)
	require.NoError(t, err)
	assert.Equal(t, b, b2, "parse(serialize(c)) must reserialize byte-identically")
}

func TestHashStable(t *testing.T) {
	c := sampleChange()
	h1, err := c.Hash()
	require.NoError(t, err)
	h2, err := c.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	other := sampleChange()
	other.Header.Message = "different message"
	h3, err := other.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestHashStringRoundTrip(t *testing.T) {
	h := HashBytes([]byte("some change bytes"))
	s := h.String()
	parsed, err := ParseHash(s)
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
}

func TestResolvePrefixAmbiguous(t *testing.T) {
	a := HashBytes([]byte("a"))
	b := HashBytes([]byte("b"))
	candidates := []Hash{a, b}

	// Common prefix of both encodings, if any, should report ambiguity;
	// a full-length prefix of one always resolves uniquely.
	full, err := ResolvePrefix(a.String(), candidates)
	require.NoError(t, err)
	assert.Equal(t, a, full)

	_, err = ResolvePrefix("", candidates)
	var ambiguous *AmbiguousPrefixError
	require.ErrorAs(t, err, &ambiguous)
	assert.Len(t, ambiguous.Matches, 2)
}

func TestMinimalCoverDropsImpliedDependency(t *testing.T) {
	a := HashBytes([]byte("A"))
	b := HashBytes([]byte("B"))
	c := HashBytes([]byte("C"))
	// A depends on B, B depends on C.
	recorded := func(h Hash) []Hash {
		switch h {
		case a:
			return []Hash{b}
		case b:
			return []Hash{c}
		default:
			return nil
		}
	}
	cover := MinimalCover([]Hash{a, b, c}, recorded)
	assert.ElementsMatch(t, []Hash{a}, cover)
}
