// Package apply implements the apply/unapply engine (spec §4.4,
// component D): turning a parsed change into graph mutations against one
// channel of a pristine, and the exact inverse.
package apply

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/pristine"
	"github.com/rcowham/pijulgo/pristine/schema"
)

// Apply installs c into channelName, assigning it a ChangeId (reusing one
// already known for blobHash), replaying its hunks against the channel's
// graph/tree tables, and advancing the channel's ordinal and Merkle.
// Every mutation happens inside txn; a returned error leaves txn to be
// rolled back by the caller's pristine.Update, so no channel state is
// ever left partially applied (spec §4.4 "Apply... is all-or-nothing").
func Apply(txn pristine.WriteTxn, log *logrus.Logger, channelName string, blobHash change.Hash, c *change.Change) (change.ChangeId, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	for _, dep := range c.Dependencies {
		depID, ok := schema.LookupChangeId(txn.ReadTxn, dep)
		if !ok {
			return 0, MissingDependency{Hash: dep}
		}
		if _, ok := schema.OrdinalOfChange(txn.ReadTxn, channelName, depID); !ok {
			return 0, MissingDependency{Hash: dep}
		}
	}

	id, err := schema.AssignChangeId(txn, blobHash)
	if err != nil {
		return 0, errors.Wrap(err, "apply: assign change id")
	}

	touched := map[change.Position]bool{}
	markTouched := func(pos change.Position) { touched[pos] = true }

	for _, h := range c.Hunks {
		switch hunk := h.(type) {
		case change.FileAdd:
			if err := applyFileAdd(txn, channelName, id, hunk, markTouched); err != nil {
				return 0, err
			}
		case change.FileDel:
			if err := applyFileDel(txn, channelName, id, hunk, markTouched); err != nil {
				return 0, err
			}
		case change.FileMove:
			if err := applyFileMove(txn, channelName, id, hunk, markTouched); err != nil {
				return 0, err
			}
		case change.Edit:
			if err := applyEdit(txn, channelName, id, hunk, markTouched); err != nil {
				return 0, err
			}
		case change.SolveOrderConflict:
			if err := applySolveOrderConflict(txn, channelName, id, hunk); err != nil {
				return 0, err
			}
		case change.SolveNameConflict:
			if err := applySolveNameConflict(txn, channelName, id, hunk); err != nil {
				return 0, err
			}
		default:
			return 0, errors.Errorf("apply: unknown hunk type %T", h)
		}
	}

	for _, dep := range c.Dependencies {
		depID, _ := schema.LookupChangeId(txn.ReadTxn, dep)
		if err := schema.AddDep(txn, id, depID); err != nil {
			return 0, errors.Wrap(err, "apply: record dependency")
		}
	}
	for pos := range touched {
		if err := schema.AddTouched(txn, id, pos); err != nil {
			return 0, errors.Wrap(err, "apply: record touched inode")
		}
	}

	ordinal, err := schema.NextOrdinal(txn, channelName)
	if err != nil {
		return 0, errors.Wrap(err, "apply: reserve ordinal")
	}
	if err := schema.PutChangeLogEntry(txn, channelName, ordinal, id); err != nil {
		return 0, errors.Wrap(err, "apply: record changelog entry")
	}

	prevMerkle, _ := schema.GetCurrentMerkle(txn.ReadTxn, channelName)
	nextMerkle := Combine(prevMerkle, blobHash)
	if err := schema.PutCurrentMerkle(txn, channelName, nextMerkle); err != nil {
		return 0, errors.Wrap(err, "apply: record current merkle")
	}
	if err := schema.PutState(txn, channelName, nextMerkle, ordinal); err != nil {
		return 0, errors.Wrap(err, "apply: record state")
	}
	if err := schema.PutOrdinalMerkle(txn, channelName, ordinal, nextMerkle); err != nil {
		return 0, errors.Wrap(err, "apply: record ordinal merkle")
	}

	if _, err := schema.IncRefcount(txn, blobHash, 1); err != nil {
		return 0, errors.Wrap(err, "apply: increment blob refcount")
	}

	log.WithFields(logrus.Fields{"change": id, "channel": channelName, "ordinal": ordinal}).Debug("applied change")
	return id, nil
}

func contentVertex(id change.ChangeId, offset, length uint64) (start, end change.Position) {
	start = change.Position{Change: id, Offset: offset}
	end = change.Position{Change: id, Offset: offset + length}
	return
}

func applyFileAdd(txn pristine.WriteTxn, channelName string, id change.ChangeId, h change.FileAdd, markTouched func(change.Position)) error {
	start, end := contentVertex(id, h.ContentOffset, h.ContentLen)
	if err := schema.CreateVertex(txn, channelName, start, end); err != nil {
		return errors.Wrap(err, "apply: create vertex for file add")
	}
	if err := schema.PutInode(txn, channelName, h.Inode, start); err != nil {
		return errors.Wrap(err, "apply: record inode")
	}

	dir, base := splitPath(h.Path)
	parentInode, ok := resolveInode(txn.ReadTxn, channelName, dir)
	if !ok {
		return InvalidReference{Reason: "parent directory of " + h.Path + " not found"}
	}
	if err := schema.PutTreeEntry(txn, channelName, parentInode, base, h.Inode); err != nil {
		return errors.Wrap(err, "apply: record tree entry")
	}

	parentPos, ok := inodePosition(txn.ReadTxn, channelName, parentInode)
	if !ok {
		return InvalidReference{Reason: "parent inode has no vertex"}
	}

	flags := change.FlagAlive
	if h.IsDir {
		flags |= change.FlagFolder
	}
	if err := schema.AddEdge(txn, channelName, parentPos, start, flags, id); err != nil {
		return errors.Wrap(err, "apply: add tree edge")
	}
	markTouched(parentPos)
	markTouched(start)
	return nil
}

func applyFileDel(txn pristine.WriteTxn, channelName string, id change.ChangeId, h change.FileDel, markTouched func(change.Position)) error {
	pos, ok := inodePosition(txn.ReadTxn, channelName, h.Inode)
	if !ok {
		return InvalidReference{Reason: "deleted inode has no vertex"}
	}
	dir, _ := splitPath(h.Path)
	parentInode, ok := resolveInode(txn.ReadTxn, channelName, dir)
	if !ok {
		return InvalidReference{Reason: "parent directory of deleted path not found"}
	}
	parentPos, ok := inodePosition(txn.ReadTxn, channelName, parentInode)
	if !ok {
		return InvalidReference{Reason: "parent inode has no vertex"}
	}
	// Unlike Edit's mid-file deletions, a whole-file FileDel must not
	// reconnect pos: the deleted inode should actually drop out of the
	// alive subgraph, not stay reachable through a pseudo edge.
	if _, err := schema.MarkEdgesToTargetDeleted(txn, channelName, parentPos, pos, id); err != nil {
		return errors.Wrap(err, "apply: mark tree edge deleted")
	}
	markTouched(parentPos)
	markTouched(pos)
	return nil
}

func applyFileMove(txn pristine.WriteTxn, channelName string, id change.ChangeId, h change.FileMove, markTouched func(change.Position)) error {
	fromDir, fromBase := splitPath(h.PathFrom)
	fromParent, ok := resolveInode(txn.ReadTxn, channelName, fromDir)
	if !ok {
		return InvalidReference{Reason: "move source parent not found"}
	}
	if err := schema.DeleteTreeEntry(txn, channelName, fromParent, fromBase, h.Inode); err != nil {
		return errors.Wrap(err, "apply: remove old tree entry")
	}

	toDir, toBase := splitPath(h.PathTo)
	toParent, ok := resolveInode(txn.ReadTxn, channelName, toDir)
	if !ok {
		return InvalidReference{Reason: "move destination parent not found"}
	}
	if err := schema.PutTreeEntry(txn, channelName, toParent, toBase, h.Inode); err != nil {
		return errors.Wrap(err, "apply: record new tree entry")
	}

	fromParentPos, _ := inodePosition(txn.ReadTxn, channelName, fromParent)
	toParentPos, _ := inodePosition(txn.ReadTxn, channelName, toParent)
	markTouched(fromParentPos)
	markTouched(toParentPos)
	return nil
}

func applyEdit(txn pristine.WriteTxn, channelName string, id change.ChangeId, h change.Edit, markTouched func(change.Position)) error {
	splits := append([]change.Position(nil), h.VertexSplits...)
	sort.Slice(splits, func(i, j int) bool { return splits[i].Less(splits[j]) })
	for _, at := range splits {
		if err := schema.SplitVertex(txn, channelName, at); err != nil {
			return errors.Wrap(err, "apply: split vertex for edit")
		}
		markTouched(at)
	}

	for _, d := range h.EdgesDeleted {
		if _, err := schema.MarkEdgesToTargetDeleted(txn, channelName, d.From, d.To, id); err != nil {
			return errors.Wrap(err, "apply: mark edit edge deleted")
		}
		if err := reconnectIfOrphaned(txn, channelName, id, d.From, d.To); err != nil {
			return err
		}
		markTouched(d.From)
		markTouched(d.To)
	}

	if h.ReplacementLen > 0 {
		start, end := contentVertex(id, h.ReplacementOffset, h.ReplacementLen)
		if err := schema.CreateVertex(txn, channelName, start, end); err != nil {
			return errors.Wrap(err, "apply: create replacement vertex")
		}
	}

	for _, a := range h.EdgesAdded {
		if err := schema.AddEdge(txn, channelName, a.From, a.To, a.Flags, id); err != nil {
			return errors.Wrap(err, "apply: add edit edge")
		}
		markTouched(a.From)
		markTouched(a.To)
	}
	return nil
}

func applySolveOrderConflict(txn pristine.WriteTxn, channelName string, id change.ChangeId, h change.SolveOrderConflict) error {
	if h.Resolved != h.Between.Start {
		if _, err := schema.MarkEdgesToTargetDeleted(txn, channelName, h.Between.Start, h.Between.End, id); err != nil {
			return errors.Wrap(err, "apply: resolve order conflict")
		}
	}
	return nil
}

func applySolveNameConflict(txn pristine.WriteTxn, channelName string, id change.ChangeId, h change.SolveNameConflict) error {
	parentPos, ok := inodePosition(txn.ReadTxn, channelName, h.Parent)
	if !ok {
		return InvalidReference{Reason: "name conflict parent has no vertex"}
	}
	children := schema.ChildrenOf(txn.ReadTxn, channelName, h.Parent)
	child, ok := children[h.Basename]
	if !ok || child == h.Keep {
		return nil
	}
	childPos, ok := inodePosition(txn.ReadTxn, channelName, child)
	if !ok {
		return nil
	}
	_, err := schema.MarkEdgesToTargetDeleted(txn, channelName, parentPos, childPos, id)
	return errors.Wrap(err, "apply: resolve name conflict")
}

// reconnectIfOrphaned adds a PSEUDO ALIVE edge from the surviving side to
// target if target lost its last alive inbound edge, preserving
// connectivity for traversal/Output (spec §4.4 step 3, "pseudo edge
// insertion"). Ties among candidate anchors are broken by lower ChangeId
// (SPEC_FULL.md §9 decided open question (b)); here the anchor is simply
// the edge's surviving source, which is always already alive.
func reconnectIfOrphaned(txn pristine.WriteTxn, channelName string, id change.ChangeId, from, target change.Position) error {
	if len(schema.AliveInEdges(txn.ReadTxn, channelName, target)) > 0 {
		return nil
	}
	return schema.AddEdge(txn, channelName, from, target, change.FlagAlive|change.FlagPseudo, id)
}
