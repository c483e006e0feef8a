package schema

import (
	"encoding/binary"
	"errors"

	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/pristine"
)

// errStopRange aborts a Bucket.Range scan once findVertexContaining has
// found its answer; it never escapes past the Range call that produced it.
var errStopRange = errors.New("schema: stop range scan")

// StoredEdge is one edge as recorded in the Graph/RevGraph tables.
type StoredEdge struct {
	Flags      change.EdgeFlags
	Target     change.Position
	Introducer change.ChangeId
	// DeletedBy is the ChangeId that flipped this edge from ALIVE to
	// DELETED, or zero if it has never been retired. Recording the
	// retiring change (rather than only the flag) lets Unapply restore
	// exactly the edge that change's deletion hunk retired, without
	// disturbing a deletion stamped by any other change.
	DeletedBy change.ChangeId
}

// GraphRow is the value stored for one vertex's start position in Graph
// (or end position in RevGraph): the vertex's other endpoint plus its
// edges in that direction.
type GraphRow struct {
	Other change.Position
	Edges []StoredEdge
}

func encodeGraphRow(row GraphRow) []byte {
	buf := make([]byte, 0, 16+4+len(row.Edges)*42)
	buf = append(buf, EncodePosition(row.Other)...)
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(row.Edges)))
	buf = append(buf, countBuf[:]...)
	for _, e := range row.Edges {
		var flagBuf [2]byte
		binary.BigEndian.PutUint16(flagBuf[:], uint16(e.Flags))
		buf = append(buf, flagBuf[:]...)
		buf = append(buf, EncodePosition(e.Target)...)
		buf = append(buf, EncodeChangeId(e.Introducer)...)
		buf = append(buf, EncodeChangeId(e.DeletedBy)...)
	}
	return buf
}

func decodeGraphRow(b []byte) GraphRow {
	row := GraphRow{Other: DecodePosition(b[0:16])}
	count := binary.BigEndian.Uint32(b[16:20])
	off := 20
	row.Edges = make([]StoredEdge, 0, count)
	for i := uint32(0); i < count; i++ {
		flags := change.EdgeFlags(binary.BigEndian.Uint16(b[off : off+2]))
		off += 2
		target := DecodePosition(b[off : off+16])
		off += 16
		introducer := DecodeChangeId(b[off : off+8])
		off += 8
		deletedBy := DecodeChangeId(b[off : off+8])
		off += 8
		row.Edges = append(row.Edges, StoredEdge{Flags: flags, Target: target, Introducer: introducer, DeletedBy: deletedBy})
	}
	return row
}

// PutGraphRow writes channel's Graph row for vertex start.
func PutGraphRow(txn pristine.WriteTxn, channelName string, start change.Position, row GraphRow) error {
	b, err := txn.Bucket(TableGraph)
	if err != nil {
		return err
	}
	return b.Put(EncodeChannelKey(channelName, EncodePosition(start)), encodeGraphRow(row))
}

// GetGraphRow reads channel's Graph row for vertex start, if any.
func GetGraphRow(txn pristine.ReadTxn, channelName string, start change.Position) (GraphRow, bool) {
	b := txn.Bucket(TableGraph)
	v := b.Get(EncodeChannelKey(channelName, EncodePosition(start)))
	if v == nil {
		return GraphRow{}, false
	}
	return decodeGraphRow(v), true
}

// DeleteGraphRow removes channel's Graph row for vertex start.
func DeleteGraphRow(txn pristine.WriteTxn, channelName string, start change.Position) error {
	b, err := txn.Bucket(TableGraph)
	if err != nil {
		return err
	}
	return b.Delete(EncodeChannelKey(channelName, EncodePosition(start)))
}

// ForEachGraphRow walks channel's Graph table in vertex-start order.
func ForEachGraphRow(txn pristine.ReadTxn, channelName string, fn func(start change.Position, row GraphRow) error) error {
	b := txn.Bucket(TableGraph)
	return b.Range(ChannelKeyPrefix(channelName), func(k, v []byte) error {
		_, rest := SplitChannelKey(k)
		return fn(DecodePosition(rest), decodeGraphRow(v))
	})
}

// PutRevGraphRow writes channel's RevGraph row for vertex end.
func PutRevGraphRow(txn pristine.WriteTxn, channelName string, end change.Position, row GraphRow) error {
	b, err := txn.Bucket(TableRevGraph)
	if err != nil {
		return err
	}
	return b.Put(EncodeChannelKey(channelName, EncodePosition(end)), encodeGraphRow(row))
}

// GetRevGraphRow reads channel's RevGraph row for vertex end, if any.
func GetRevGraphRow(txn pristine.ReadTxn, channelName string, end change.Position) (GraphRow, bool) {
	b := txn.Bucket(TableRevGraph)
	v := b.Get(EncodeChannelKey(channelName, EncodePosition(end)))
	if v == nil {
		return GraphRow{}, false
	}
	return decodeGraphRow(v), true
}

// MarkEdgeDeleted flips the ALIVE edge start->target (stamped by
// introducer) to DELETED, stamping deletedBy. It mutates both Graph (keyed
// by start) and RevGraph (keyed by target) so the two stay symmetric
// (invariant I1). Returns false if no such alive edge exists.
func MarkEdgeDeleted(txn pristine.WriteTxn, channelName string, start, target change.Position, introducer, deletedBy change.ChangeId) (bool, error) {
	row, ok := GetGraphRow(txn.ReadTxn, channelName, start)
	if !ok {
		return false, nil
	}
	found := false
	for i := range row.Edges {
		e := &row.Edges[i]
		if e.Target == target && e.Introducer == introducer && e.Flags.Has(change.FlagAlive) && e.DeletedBy == 0 {
			e.DeletedBy = deletedBy
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}
	if err := PutGraphRow(txn, channelName, start, row); err != nil {
		return false, err
	}

	rev, ok := GetRevGraphRow(txn.ReadTxn, channelName, target)
	if ok {
		for i := range rev.Edges {
			e := &rev.Edges[i]
			if e.Target == start && e.Introducer == introducer && e.Flags.Has(change.FlagAlive) && e.DeletedBy == 0 {
				e.DeletedBy = deletedBy
				break
			}
		}
		if err := PutRevGraphRow(txn, channelName, target, rev); err != nil {
			return false, err
		}
	}
	return true, nil
}

// UnmarkEdgeDeleted reverses MarkEdgeDeleted: it clears DeletedBy on the
// edge start->target that deletedBy had retired, restoring it to live
// ALIVE status. Used by Unapply.
func UnmarkEdgeDeleted(txn pristine.WriteTxn, channelName string, start, target change.Position, introducer, deletedBy change.ChangeId) (bool, error) {
	row, ok := GetGraphRow(txn.ReadTxn, channelName, start)
	if !ok {
		return false, nil
	}
	found := false
	for i := range row.Edges {
		e := &row.Edges[i]
		if e.Target == target && e.Introducer == introducer && e.DeletedBy == deletedBy {
			e.DeletedBy = 0
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}
	if err := PutGraphRow(txn, channelName, start, row); err != nil {
		return false, err
	}
	rev, ok := GetRevGraphRow(txn.ReadTxn, channelName, target)
	if ok {
		for i := range rev.Edges {
			e := &rev.Edges[i]
			if e.Target == start && e.Introducer == introducer && e.DeletedBy == deletedBy {
				e.DeletedBy = 0
				break
			}
		}
		if err := PutRevGraphRow(txn, channelName, target, rev); err != nil {
			return false, err
		}
	}
	return true, nil
}

// CreateVertex registers a new vertex [start, end) in channel's Graph and
// RevGraph tables with no edges yet, unless one is already present (Apply
// re-running AssignChangeId's reused ChangeId path must stay idempotent).
func CreateVertex(txn pristine.WriteTxn, channelName string, start, end change.Position) error {
	if _, ok := GetGraphRow(txn.ReadTxn, channelName, start); !ok {
		if err := PutGraphRow(txn, channelName, start, GraphRow{Other: end}); err != nil {
			return err
		}
	}
	if _, ok := GetRevGraphRow(txn.ReadTxn, channelName, end); !ok {
		if err := PutRevGraphRow(txn, channelName, end, GraphRow{Other: start}); err != nil {
			return err
		}
	}
	return nil
}

// DeleteVertex removes channel's Graph/RevGraph rows for vertex [start,
// end), used by Unapply once every edge touching it has been removed.
func DeleteVertex(txn pristine.WriteTxn, channelName string, start, end change.Position) error {
	if err := DeleteGraphRow(txn, channelName, start); err != nil {
		return err
	}
	return DeleteRevGraphRow(txn, channelName, end)
}

// AddEdge records a directed edge start->target in both Graph (forward)
// and RevGraph (the FlagParent-tagged reverse), stamped with introducer
// (invariant I1: every edge appears in both directions).
func AddEdge(txn pristine.WriteTxn, channelName string, start, target change.Position, flags change.EdgeFlags, introducer change.ChangeId) error {
	row, _ := GetGraphRow(txn.ReadTxn, channelName, start)
	row.Edges = append(row.Edges, StoredEdge{Flags: flags, Target: target, Introducer: introducer})
	if err := PutGraphRow(txn, channelName, start, row); err != nil {
		return err
	}
	rev, _ := GetRevGraphRow(txn.ReadTxn, channelName, target)
	rev.Edges = append(rev.Edges, StoredEdge{Flags: flags | change.FlagParent, Target: start, Introducer: introducer})
	return PutRevGraphRow(txn, channelName, target, rev)
}

// RemoveEdge deletes the start->target edge stamped by introducer from
// both Graph and RevGraph entirely (as opposed to MarkEdgeDeleted, which
// only flips it retired). Used by Unapply to undo an edge this change
// itself introduced.
func RemoveEdge(txn pristine.WriteTxn, channelName string, start, target change.Position, introducer change.ChangeId) error {
	row, ok := GetGraphRow(txn.ReadTxn, channelName, start)
	if ok {
		out := row.Edges[:0]
		for _, e := range row.Edges {
			if e.Target == target && e.Introducer == introducer {
				continue
			}
			out = append(out, e)
		}
		row.Edges = out
		if err := PutGraphRow(txn, channelName, start, row); err != nil {
			return err
		}
	}
	rev, ok := GetRevGraphRow(txn.ReadTxn, channelName, target)
	if ok {
		out := rev.Edges[:0]
		for _, e := range rev.Edges {
			if e.Target == start && e.Introducer == introducer {
				continue
			}
			out = append(out, e)
		}
		rev.Edges = out
		return PutRevGraphRow(txn, channelName, target, rev)
	}
	return nil
}

// AliveOutEdges returns start's outgoing edges that are currently ALIVE
// and not retired, the set Output/pseudo-edge insertion walks.
func AliveOutEdges(txn pristine.ReadTxn, channelName string, start change.Position) []StoredEdge {
	row, ok := GetGraphRow(txn, channelName, start)
	if !ok {
		return nil
	}
	var out []StoredEdge
	for _, e := range row.Edges {
		if e.Flags.Has(change.FlagAlive) && e.DeletedBy == 0 {
			out = append(out, e)
		}
	}
	return out
}

// AliveInEdges returns target's incoming edges (from RevGraph) that are
// currently ALIVE and not retired.
func AliveInEdges(txn pristine.ReadTxn, channelName string, target change.Position) []StoredEdge {
	row, ok := GetRevGraphRow(txn, channelName, target)
	if !ok {
		return nil
	}
	var out []StoredEdge
	for _, e := range row.Edges {
		if e.Flags.Has(change.FlagAlive) && e.DeletedBy == 0 {
			out = append(out, e)
		}
	}
	return out
}

// MarkEdgesToTargetDeleted flips every currently-alive start->target edge
// (regardless of which change introduced it) to DELETED, stamped
// deletedBy. Used by FileDel/Edit hunks, which name only the endpoints
// being retired, not the original introducer.
func MarkEdgesToTargetDeleted(txn pristine.WriteTxn, channelName string, start, target change.Position, deletedBy change.ChangeId) (int, error) {
	row, ok := GetGraphRow(txn.ReadTxn, channelName, start)
	if !ok {
		return 0, nil
	}
	n := 0
	for i := range row.Edges {
		e := &row.Edges[i]
		if e.Target == target && e.Flags.Has(change.FlagAlive) && e.DeletedBy == 0 {
			e.DeletedBy = deletedBy
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	if err := PutGraphRow(txn, channelName, start, row); err != nil {
		return 0, err
	}
	rev, ok := GetRevGraphRow(txn.ReadTxn, channelName, target)
	if ok {
		for i := range rev.Edges {
			e := &rev.Edges[i]
			if e.Target == start && e.Flags.Has(change.FlagAlive) && e.DeletedBy == 0 {
				e.DeletedBy = deletedBy
			}
		}
		if err := PutRevGraphRow(txn, channelName, target, rev); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// UnmarkEdgesByDeleter reverses MarkEdgesToTargetDeleted: every
// start->target edge stamped deletedBy is restored to live. Used by
// Unapply.
func UnmarkEdgesByDeleter(txn pristine.WriteTxn, channelName string, start, target change.Position, deletedBy change.ChangeId) (int, error) {
	row, ok := GetGraphRow(txn.ReadTxn, channelName, start)
	if !ok {
		return 0, nil
	}
	n := 0
	for i := range row.Edges {
		e := &row.Edges[i]
		if e.Target == target && e.DeletedBy == deletedBy {
			e.DeletedBy = 0
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	if err := PutGraphRow(txn, channelName, start, row); err != nil {
		return 0, err
	}
	rev, ok := GetRevGraphRow(txn.ReadTxn, channelName, target)
	if ok {
		for i := range rev.Edges {
			e := &rev.Edges[i]
			if e.Target == start && e.DeletedBy == deletedBy {
				e.DeletedBy = 0
			}
		}
		if err := PutRevGraphRow(txn, channelName, target, rev); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// DeleteRevGraphRow removes channel's RevGraph row for vertex end.
func DeleteRevGraphRow(txn pristine.WriteTxn, channelName string, end change.Position) error {
	b, err := txn.Bucket(TableRevGraph)
	if err != nil {
		return err
	}
	return b.Delete(EncodeChannelKey(channelName, EncodePosition(end)))
}

// findVertexContaining scans channel's Graph rows belonging to at.Change
// for the one currently registered vertex whose [start, other) span
// contains at. Vertices from the same change never overlap, so at most
// one match exists.
func findVertexContaining(txn pristine.ReadTxn, channelName string, at change.Position) (start, end change.Position, ok bool) {
	b := txn.Bucket(TableGraph)
	prefix := EncodeChannelKey(channelName, EncodeChangeId(at.Change))
	_ = b.Range(prefix, func(k, v []byte) error {
		_, rest := SplitChannelKey(k)
		s := DecodePosition(rest)
		if s.Offset > at.Offset {
			return errStopRange
		}
		row := decodeGraphRow(v)
		if s.Offset <= at.Offset && at.Offset < row.Other.Offset {
			start, end, ok = s, row.Other, true
			return errStopRange
		}
		return nil
	})
	return
}

// SplitVertex truncates the vertex currently containing at into two
// adjacent vertices meeting exactly at at: [start, at) keeps the
// original's edges (whichever of them were sourced exactly at start),
// and a new [at, end) is registered with no edges of its own yet. This
// is what change.Edit.VertexSplits asks for: a later AddEdge/EdgesDeleted
// referencing at as an endpoint needs at to already be a registered
// vertex boundary, the same way any other edge endpoint is. A no-op if
// at is already a boundary (or no vertex contains it).
func SplitVertex(txn pristine.WriteTxn, channelName string, at change.Position) error {
	start, end, ok := findVertexContaining(txn.ReadTxn, channelName, at)
	if !ok || at == start || at == end {
		return nil
	}

	firstRow, _ := GetGraphRow(txn.ReadTxn, channelName, start)
	firstRow.Other = at
	if err := PutGraphRow(txn, channelName, start, firstRow); err != nil {
		return err
	}
	if err := PutGraphRow(txn, channelName, at, GraphRow{Other: end}); err != nil {
		return err
	}

	endRev, _ := GetRevGraphRow(txn.ReadTxn, channelName, end)
	endRev.Other = at
	if err := PutRevGraphRow(txn, channelName, end, endRev); err != nil {
		return err
	}
	return PutRevGraphRow(txn, channelName, at, GraphRow{Other: start})
}

// MergeVertex reverses SplitVertex: given the same split point at, it
// rejoins [start, at) and [at, end) back into one [start, end) vertex.
// Used by Unapply once it has already undone every edge this change
// added or deleted at at; it is an error to merge while at still carries
// edges of its own, since those would otherwise be silently dropped.
// A no-op if at was never split (or has already been merged).
func MergeVertex(txn pristine.WriteTxn, channelName string, at change.Position) error {
	atRev, ok := GetRevGraphRow(txn.ReadTxn, channelName, at)
	if !ok {
		return nil
	}
	start := atRev.Other

	atRow, ok := GetGraphRow(txn.ReadTxn, channelName, at)
	if !ok {
		return nil
	}
	end := atRow.Other
	if len(atRow.Edges) != 0 {
		return errors.New("schema: cannot merge vertex with edges still attached at split point")
	}

	firstRow, _ := GetGraphRow(txn.ReadTxn, channelName, start)
	firstRow.Other = end
	if err := PutGraphRow(txn, channelName, start, firstRow); err != nil {
		return err
	}
	if err := DeleteGraphRow(txn, channelName, at); err != nil {
		return err
	}
	if err := DeleteRevGraphRow(txn, channelName, at); err != nil {
		return err
	}

	endRev, ok := GetRevGraphRow(txn.ReadTxn, channelName, end)
	if !ok {
		return nil
	}
	endRev.Other = start
	return PutRevGraphRow(txn, channelName, end, endRev)
}
