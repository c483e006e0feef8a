package diffrecord

import (
	"github.com/rcowham/pijulgo/blobstore"
	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/output"
	"github.com/rcowham/pijulgo/pristine"
	"github.com/rcowham/pijulgo/pristine/schema"
)

// chainResolver reads the existing graph/blob state Record diffs against,
// wrapping output.ContentResolver (the same machinery Output
// uses to materialize files) rather than re-deriving content rendering.
type chainResolver struct {
	txn     pristine.ReadTxn
	content *output.ContentResolver
}

func newChainResolver(txn pristine.WriteTxn, blobs *blobstore.Store) *chainResolver {
	return &chainResolver{txn: txn.ReadTxn, content: output.NewContentResolver(txn.ReadTxn, blobs)}
}

// vertexSpan is one content vertex in a file's alive chain: Start/End are
// its graph positions, and [offset, offset+length) is where its bytes
// land in the chain's concatenated rendering.
type vertexSpan struct {
	Start, End change.Position
	offset     int
	length     int
}

// walkChain follows channel's alive subgraph from start the same way
// output.RenderFile does, but records each vertex's span instead of only
// its bytes. ok is false if the chain branches (more than one alive edge
// leaves some vertex): diffrecord only edits unconflicted files,
// mirroring output/render.go's own documented N-way-conflict scope limit;
// a branching file is left for a later, independent edit once its
// conflict is resolved.
func (r *chainResolver) walkChain(channelName string, start change.Position) (spans []vertexSpan, data []byte, ok bool) {
	pos := start
	offset := 0
	for {
		row, found := schema.GetGraphRow(r.txn, channelName, pos)
		if !found {
			return spans, data, true
		}
		chunk, err := r.content.Bytes(pos, row.Other)
		if err != nil {
			return nil, nil, false
		}
		spans = append(spans, vertexSpan{Start: pos, End: row.Other, offset: offset, length: len(chunk)})
		data = append(data, chunk...)
		offset += len(chunk)

		edges := schema.AliveOutEdges(r.txn, channelName, row.Other)
		if len(edges) == 0 {
			return spans, data, true
		}
		if len(edges) > 1 {
			return spans, data, false
		}
		pos = edges[0].Target
	}
}

// positionAt maps an absolute byte offset within a chain's concatenated
// content to a graph Position: either an existing vertex boundary (split
// == false) or an interior offset that must be split first (split ==
// true). offset == the chain's total length resolves to the last span's
// End.
func positionAt(spans []vertexSpan, offset int) (pos change.Position, split bool, ok bool) {
	if len(spans) == 0 {
		return change.Position{}, false, false
	}
	if offset == 0 {
		return spans[0].Start, false, true
	}
	for _, s := range spans {
		if offset < s.offset || offset > s.offset+s.length {
			continue
		}
		local := offset - s.offset
		if local == 0 {
			return s.Start, false, true
		}
		if local == s.length {
			return s.End, false, true
		}
		return change.Position{Change: s.Start.Change, Offset: s.Start.Offset + uint64(local)}, true, true
	}
	last := spans[len(spans)-1]
	if offset == last.offset+last.length {
		return last.End, false, true
	}
	return change.Position{}, false, false
}
