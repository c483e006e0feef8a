// Package graphviz renders a channel's pristine graph to DOT, the way
// cmd/gitgraph renders a git commit/branch graph: one emicklei/dot node per
// vertex, one edge per live graph edge, with branch points (more than one
// alive outgoing edge from a vertex, i.e. an unresolved conflict) drawn as
// a distinct shape so a diamond is visible in the rendered output.
package graphviz

import (
	"fmt"
	"sort"

	"github.com/emicklei/dot"

	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/pristine"
	"github.com/rcowham/pijulgo/pristine/schema"
)

const rootInode change.Inode = 0

func posLabel(pos change.Position) string {
	return fmt.Sprintf("%d:%d", pos.Change, pos.Offset)
}

// RenderTree builds a DOT graph of channelName's currently alive file tree:
// one node per inode, one edge per parent/child tree relationship. This is
// the structural counterpart of gitgraph's commit-parent graph, walking
// schema.ChildrenOf instead of git commit parents.
func RenderTree(txn pristine.ReadTxn, channelName string) *dot.Graph {
	g := dot.NewGraph(dot.Directed)
	g.Attr("rankdir", "LR")

	nodes := map[change.Inode]dot.Node{}
	root := g.Node("/")
	nodes[rootInode] = root

	var walk func(parent change.Inode, parentNode dot.Node)
	walk = func(parent change.Inode, parentNode dot.Node) {
		children := schema.ChildrenOf(txn, channelName, parent)
		basenames := make([]string, 0, len(children))
		for basename := range children {
			basenames = append(basenames, basename)
		}
		sort.Strings(basenames)
		for _, basename := range basenames {
			child := children[basename]
			childNode, ok := nodes[child]
			if !ok {
				childNode = g.Node(basename)
				nodes[child] = childNode
			}
			g.Edge(parentNode, childNode)
			walk(child, childNode)
		}
	}
	walk(rootInode, root)
	return g
}

// RenderFileChain builds a DOT graph of one file's content vertex chain
// starting at start, following alive edges the same way output.RenderFile
// does. A vertex with more than one alive outgoing edge is an unresolved
// conflict; its node is drawn as a filled diamond so both (or all) sides of
// the split are visually distinguishable from a normal linear edit chain.
func RenderFileChain(txn pristine.ReadTxn, channelName string, start change.Position) *dot.Graph {
	g := dot.NewGraph(dot.Directed)
	g.Attr("rankdir", "LR")

	nodes := map[change.Position]dot.Node{}
	nodeFor := func(pos change.Position) dot.Node {
		if n, ok := nodes[pos]; ok {
			return n
		}
		n := g.Node(posLabel(pos))
		nodes[pos] = n
		return n
	}

	walked := map[change.Position]bool{}
	var walk func(pos change.Position)
	walk = func(pos change.Position) {
		if walked[pos] {
			return
		}
		walked[pos] = true

		row, ok := schema.GetGraphRow(txn, channelName, pos)
		if !ok {
			return
		}
		startNode := nodeFor(pos)
		endNode := nodeFor(row.Other)
		g.Edge(startNode, endNode, "content")

		edges := schema.AliveOutEdges(txn, channelName, row.Other)
		if len(edges) > 1 {
			endNode.Attr("shape", "diamond").Attr("style", "filled").Attr("fillcolor", "lightyellow")
		}
		for _, e := range edges {
			targetNode := nodeFor(e.Target)
			g.Edge(endNode, targetNode, fmt.Sprintf("c%d", e.Introducer))
			walk(e.Target)
		}
	}
	walk(start)
	return g
}
