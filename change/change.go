package change

import (
	"sort"
	"time"
)

// Author is opaque identity metadata: the core stores it and hashes it but
// never interprets it (spec §6, "Identity / author... not interpreted by
// the core").
type Author map[string]string

// Header carries the human-facing metadata of a change.
type Header struct {
	Authors     []Author
	Message     string
	Description *string
	Timestamp   time.Time
}

// Change is the persistent, immutable, content-addressed unit of history.
type Change struct {
	Header Header

	// Dependencies is the set of hashes this change requires already
	// applied before it can be applied itself (invariant I4: every
	// external position a hunk references must have its introducing
	// change present here).
	Dependencies []Hash

	// ExtraKnown lists changes implicitly known via transitive closure
	// (so a receiving pristine need not re-derive it).
	ExtraKnown []Hash

	Hunks []Hunk

	// Contents concatenates every newly-introduced byte region across
	// Hunks; FileAdd.ContentOffset/Len and Edit.ReplacementOffset/Len
	// index into it.
	Contents []byte
}

// Hash computes the change's content address over its canonical
// serialization. Two changes with byte-identical canonical bytes have
// identical hashes; Change values are never mutated in place once hashed.
func (c *Change) Hash() (Hash, error) {
	b, err := Serialize(c)
	if err != nil {
		return Hash{}, err
	}
	return HashBytes(b), nil
}

// MinimalCover computes the minimal dependency declaration for a change:
// given the set of ChangeIds (as hashes) that introduced every position the
// new change's hunks reference, drop any hash already implied transitively
// (via recorded, the pristine's dep table) by another hash in the set —
// spec §4.5 step 6, "closing under the (recorded) dep relation minus what
// is already in the set".
func MinimalCover(referenced []Hash, recorded func(Hash) []Hash) []Hash {
	set := make(map[Hash]bool, len(referenced))
	for _, h := range referenced {
		set[h] = true
	}

	impliedBy := func(from, target Hash) bool {
		seen := map[Hash]bool{}
		stack := append([]Hash(nil), recorded(from)...)
		for len(stack) > 0 {
			h := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if seen[h] {
				continue
			}
			seen[h] = true
			if h == target {
				return true
			}
			stack = append(stack, recorded(h)...)
		}
		return false
	}

	var out []Hash
	for h := range set {
		implied := false
		for other := range set {
			if other == h {
				continue
			}
			if impliedBy(other, h) {
				implied = true
				break
			}
		}
		if !implied {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
