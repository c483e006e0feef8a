package schema

import (
	"encoding/binary"

	"github.com/rcowham/pijulgo/change"
)

// All keys use fixed-width big-endian integers so range scans over a table
// sort numerically (spec §4.1 "range iteration, reverse iteration").

func encodeUint64(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

func decodeUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// EncodePosition renders a Position as a fixed 16-byte key: ChangeId then
// Offset, both big-endian, so positions from the same change sort by
// offset.
func EncodePosition(p change.Position) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], uint64(p.Change))
	binary.BigEndian.PutUint64(b[8:16], p.Offset)
	return b
}

// DecodePosition is the inverse of EncodePosition.
func DecodePosition(b []byte) change.Position {
	return change.Position{
		Change: change.ChangeId(binary.BigEndian.Uint64(b[0:8])),
		Offset: binary.BigEndian.Uint64(b[8:16]),
	}
}

// EncodeChangeId renders a ChangeId as a fixed 8-byte big-endian key.
func EncodeChangeId(id change.ChangeId) []byte {
	return encodeUint64(uint64(id))
}

// DecodeChangeId is the inverse of EncodeChangeId.
func DecodeChangeId(b []byte) change.ChangeId {
	return change.ChangeId(decodeUint64(b))
}

// EncodeHash renders a Hash as its raw 32 bytes.
func EncodeHash(h change.Hash) []byte {
	out := make([]byte, 32)
	copy(out, h[:])
	return out
}

// DecodeHash is the inverse of EncodeHash.
func DecodeHash(b []byte) change.Hash {
	var h change.Hash
	copy(h[:], b)
	return h
}

// EncodeInode renders an Inode as a fixed 8-byte big-endian key.
func EncodeInode(i change.Inode) []byte {
	return encodeUint64(uint64(i))
}

// DecodeInode is the inverse of EncodeInode.
func DecodeInode(b []byte) change.Inode {
	return change.Inode(decodeUint64(b))
}

// EncodeChannelKey prefixes rest with channel's length-delimited name, so
// channel-scoped tables share one bucket while still sorting each
// channel's rows together (all of "feature"'s rows are contiguous).
func EncodeChannelKey(channelName string, rest []byte) []byte {
	nameBytes := []byte(channelName)
	out := make([]byte, 2+len(nameBytes)+len(rest))
	binary.BigEndian.PutUint16(out[0:2], uint16(len(nameBytes)))
	copy(out[2:], nameBytes)
	copy(out[2+len(nameBytes):], rest)
	return out
}

// ChannelKeyPrefix returns the byte prefix all of channelName's keys share,
// for Bucket.Range scans scoped to one channel.
func ChannelKeyPrefix(channelName string) []byte {
	return EncodeChannelKey(channelName, nil)
}

// SplitChannelKey reverses EncodeChannelKey, returning the channel name and
// the remaining key suffix.
func SplitChannelKey(key []byte) (channelName string, rest []byte) {
	n := binary.BigEndian.Uint16(key[0:2])
	channelName = string(key[2 : 2+n])
	rest = key[2+n:]
	return
}
