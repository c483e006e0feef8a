package change

import (
	"encoding/base32"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Hash is the content address of a Change or Tag: a BLAKE2b-256 digest of
// the change's canonical serialized form. Equal hashes imply byte-identical
// change bytes.
type Hash [32]byte

var encoding = base32.HexEncoding.WithPadding(base32.NoPadding)

// String returns the canonical base32 encoding of h.
func (h Hash) String() string {
	return encoding.EncodeToString(h[:])
}

// IsZero reports whether h is the zero hash (never a real change's hash,
// used as a sentinel for "no dependency"/"root").
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// ParseHash parses the canonical base32 form produced by Hash.String.
func ParseHash(s string) (Hash, error) {
	b, err := encoding.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("change: invalid hash %q: %w", s, err)
	}
	if len(b) != 32 {
		return Hash{}, fmt.Errorf("change: invalid hash %q: want 32 bytes, got %d", s, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// HashBytes digests b with the same construction used to hash a change's
// canonical serialization, exported so tags (which hash a different
// canonical blob) and tests can reuse it.
func HashBytes(b []byte) Hash {
	return blake2b.Sum256(b)
}

// AmbiguousPrefixError is returned by a prefix-resolution lookup (e.g.
// resolving a short hash the user typed) when more than one known hash
// shares the prefix. hash_from_prefix-style lookups must be total
// functions per spec §9: either a single hash, a no-match error, or this.
type AmbiguousPrefixError struct {
	Prefix  string
	Matches []Hash
}

func (e *AmbiguousPrefixError) Error() string {
	return fmt.Sprintf("change: prefix %q is ambiguous (%d matches)", e.Prefix, len(e.Matches))
}

// ResolvePrefix is a total function picking the one hash among candidates
// whose string form starts with prefix. It never panics and never returns
// a partial match silently; ambiguity is reported via AmbiguousPrefixError.
func ResolvePrefix(prefix string, candidates []Hash) (Hash, error) {
	var matches []Hash
	for _, h := range candidates {
		s := h.String()
		if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
			matches = append(matches, h)
		}
	}
	switch len(matches) {
	case 0:
		return Hash{}, fmt.Errorf("change: no hash matches prefix %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return Hash{}, &AmbiguousPrefixError{Prefix: prefix, Matches: matches}
	}
}
