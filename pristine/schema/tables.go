// Package schema declares the typed B-tree tables that make up a pristine
// (spec §4.2, component B), following the documented-constant convention
// used throughout the Erigon family's kv/tables.go ("key - ...", "value -
// ..." comments above each table name) rather than inventing a new
// convention of our own.
//
// Tables split into two scopes:
//
//   - Pristine-wide tables (Changes/RevChanges/Dep/RevDep/Touched/
//     RevTouched/Remotes/RemoteChanges/BlobRefcount): a change's identity,
//     dependency edges and touched-inode set do not depend on which
//     channel it happens to be applied in, so these tables are keyed
//     without any channel qualifier.
//   - Channel-scoped tables (Graph/RevGraph/Inodes/RevInodes/Tree/
//     RevTree/States/Tags): each channel is its own mutable projection of
//     the graph, so these tables' keys are prefixed with the owning
//     channel's name (see EncodeChannelKey).
package schema

const (
	// Graph: (channel, vertex start Position) -> GraphRow{end Position,
	// outgoing edges}.
	TableGraph = "graph"

	// RevGraph: (channel, vertex end Position) -> GraphRow{start
	// Position, incoming edges (PARENT set)}. Symmetric to Graph per
	// invariant I1, maintained in lock-step so traversal is O(log n) in
	// either direction.
	TableRevGraph = "revgraph"

	// Changes: ChangeId -> Hash. Pristine-wide bijection; see
	// RevChanges for the inverse.
	TableChanges = "changes"

	// RevChanges: Hash -> ChangeId.
	TableRevChanges = "revchanges"

	// Dep: (child ChangeId, parent ChangeId) -> (). "A depends on B."
	TableDep = "dep"

	// RevDep: (parent ChangeId, child ChangeId) -> (). Inverse of Dep.
	TableRevDep = "revdep"

	// Touched: (ChangeId, inode Position) -> (). Every inode a change
	// touched, scoping Output/Diff to the relevant paths.
	TableTouched = "touched"

	// RevTouched: (inode Position, ChangeId) -> (). Inverse of Touched.
	TableRevTouched = "revtouched"

	// Inodes: (channel, Inode) -> Position (the inode's folder vertex).
	TableInodes = "inodes"

	// RevInodes: (channel, Position) -> Inode. Inverse of Inodes.
	TableRevInodes = "revinodes"

	// Tree: (channel, parent Inode, basename) -> child Inode.
	TableTree = "tree"

	// RevTree: (channel, child Inode) -> (parent Inode, basename).
	// Inverse of Tree (invariant I6).
	TableRevTree = "revtree"

	// States: (channel, Merkle) -> ordinal. Records the channel hash
	// after each applied ordinal (invariant I5).
	TableStates = "states"

	// Tags: (channel, ordinal) -> Merkle. Identifies tagged states.
	TableTags = "tags"

	// Remotes: RemoteId -> handle (opaque remote name/URL bytes).
	TableRemotes = "remotes"

	// RemoteChanges: (RemoteId, ordinal) -> (Hash, Merkle, is_tag). The
	// cached sequence the remote last advertised.
	TableRemoteChanges = "remotechanges"

	// BlobRefcount: Hash -> refcount uint64. Incremented when a change
	// is installed into any channel, decremented on removal; a change
	// blob is eligible for garbage collection once this reaches zero
	// (spec §3 lifecycle).
	TableBlobRefcount = "blobrefcount"

	// InodeCounter: sentinel key -> next Inode uint64 BE. Pristine-wide,
	// not channel-scoped: an inode names the same tracked path across
	// every channel it is forked into (spec §3 "stable identity of a
	// filesystem path across renames"), so the counter that allocates
	// fresh ones must not reset per channel.
	TableInodeCounter = "inodecounter"

	// ChangeLog: (channel, ordinal uint64 BE) -> ChangeId. The channel's
	// per-ordinal apply sequence (spec §3 Channel.changes).
	TableChangeLog = "changelog"

	// ChangeOrdinal: (channel, ChangeId) -> ordinal. Inverse of
	// ChangeLog, letting unapply find a change's ordinal without a scan
	// (spec §3 Channel.revchanges).
	TableChangeOrdinal = "changeordinal"

	// ApplyCounter: channel name -> next ordinal uint64 BE. Channel's
	// monotonic apply_counter.
	TableApplyCounter = "applycounter"

	// CurrentMerkle: channel name -> Merkle. The channel's rolling
	// Merkle after its most recently applied ordinal, so apply/unapply
	// can fold the next change in without rescanning States.
	TableCurrentMerkle = "currentmerkle"

	// OrdinalMerkle: (channel, ordinal) -> Merkle. Inverse of States'
	// (channel, Merkle) -> ordinal, so Unapply can recover the Merkle
	// that was current immediately before the ordinal it is removing.
	TableOrdinalMerkle = "ordinalmerkle"

	// Channels: channel name -> (). The registry of channel names that
	// currently exist, so `channel.Open`/`Fork`/`Rename`/`Drop` have
	// somewhere to check existence without scanning every channel-scoped
	// table for a stray key (spec §4.7 "opened by name from a registry
	// table").
	TableChannels = "channels"
)
