package apply

import "github.com/rcowham/pijulgo/change"

// Merkle is a channel's rolling state hash (spec §3 "Channel.merkle").
// It reuses change.Hash's representation and codec rather than inventing
// a parallel 32-byte type, since a Merkle is exactly a BLAKE2b-256 digest
// like a change Hash.
type Merkle = change.Hash

// Combine folds changeHash into prev to produce the channel's next
// Merkle. This is deliberately order-sensitive: apply and unapply must
// exactly mirror each other for spec §8's literal state-sequence
// scenario ([m0, m1, m0, m1] across apply/unapply/apply) to hold, which
// only follows from a strict ordinal fold, not a commutative combiner
// (see SPEC_FULL.md §9 decided open question (a)).
func Combine(prev Merkle, changeHash change.Hash) Merkle {
	buf := make([]byte, 0, 64)
	buf = append(buf, prev[:]...)
	buf = append(buf, changeHash[:]...)
	return change.HashBytes(buf)
}
