package channel

import "github.com/rcowham/pijulgo/change"

// RemoteTransport is the push/pull surface a remote collaborator exposes
// to this module, per spec §6: identify the set difference between
// local and remote Changes tables for a channel, transfer the missing
// blobs, apply them in dependency-topological order. Only the local
// filesystem side of pijul is in scope here (per the Non-goals); a real
// implementation of this interface (SSH/HTTP wire protocol) is an
// external collaborator this module talks to but does not provide.
type RemoteTransport interface {
	// MissingDeps returns which of have the remote does not yet have,
	// so the caller knows what to transfer before Apply.
	MissingDeps(have []change.Hash) (missing []change.Hash, err error)
	// Apply installs the given opaque change blobs (as returned by
	// ExportChange) on the remote, in the order given.
	Apply(blobs [][]byte) error
	// ExportChange returns h's change blob in the same canonical binary
	// form blobstore stores locally, ready to hand to a peer's Apply.
	ExportChange(h change.Hash) ([]byte, error)
}
