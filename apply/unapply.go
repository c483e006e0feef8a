package apply

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/pristine"
	"github.com/rcowham/pijulgo/pristine/schema"
)

// Unapply removes id from channelName, the exact inverse of the Apply
// call that installed it: hunks are undone in reverse order, and the
// channel's ordinal/Merkle/dep/touched bookkeeping is rolled back to
// exactly what it was beforehand (spec §4.4 "Unapply... byte-identical
// round trip"). Only the channel's most recently applied change can be
// unapplied; this mirrors a changelog that is a simple stack rather than
// a general partial order, the same restriction spec.md's literal test
// scenarios exercise.
func Unapply(txn pristine.WriteTxn, log *logrus.Logger, channelName string, id change.ChangeId, c *change.Change) error {
	if log == nil {
		log = logrus.StandardLogger()
	}

	ordinal, ok := schema.OrdinalOfChange(txn.ReadTxn, channelName, id)
	if !ok {
		return errors.Errorf("unapply: change %d is not applied to channel %q", id, channelName)
	}
	if ordinal != schema.CurrentOrdinal(txn.ReadTxn, channelName) {
		return NotTopOfChannel{ChangeId: id}
	}

	for i := len(c.Hunks) - 1; i >= 0; i-- {
		switch hunk := c.Hunks[i].(type) {
		case change.FileAdd:
			if err := unapplyFileAdd(txn, channelName, id, hunk); err != nil {
				return err
			}
		case change.FileDel:
			if err := unapplyFileDel(txn, channelName, id, hunk); err != nil {
				return err
			}
		case change.FileMove:
			if err := unapplyFileMove(txn, channelName, id, hunk); err != nil {
				return err
			}
		case change.Edit:
			if err := unapplyEdit(txn, channelName, id, hunk); err != nil {
				return err
			}
		case change.SolveOrderConflict:
			if err := unapplySolveOrderConflict(txn, channelName, id, hunk); err != nil {
				return err
			}
		case change.SolveNameConflict:
			if err := unapplySolveNameConflict(txn, channelName, id, hunk); err != nil {
				return err
			}
		default:
			return errors.Errorf("unapply: unknown hunk type %T", hunk)
		}
	}

	for _, dep := range c.Dependencies {
		depID, ok := schema.LookupChangeId(txn.ReadTxn, dep)
		if ok {
			if err := schema.RemoveDep(txn, id, depID); err != nil {
				return errors.Wrap(err, "unapply: remove dependency")
			}
		}
	}
	for _, pos := range schema.TouchedInodes(txn.ReadTxn, id) {
		if err := schema.RemoveTouched(txn, id, pos); err != nil {
			return errors.Wrap(err, "unapply: remove touched inode")
		}
	}

	curMerkle, _ := schema.GetCurrentMerkle(txn.ReadTxn, channelName)
	if err := schema.DeleteState(txn, channelName, curMerkle); err != nil {
		return errors.Wrap(err, "unapply: remove state")
	}
	if err := schema.DeleteOrdinalMerkle(txn, channelName, ordinal); err != nil {
		return errors.Wrap(err, "unapply: remove ordinal merkle")
	}
	prevMerkle, ok := schema.GetOrdinalMerkle(txn.ReadTxn, channelName, ordinal-1)
	if !ok {
		return errors.Errorf("unapply: missing prior merkle at ordinal %d", ordinal-1)
	}
	if err := schema.PutCurrentMerkle(txn, channelName, prevMerkle); err != nil {
		return errors.Wrap(err, "unapply: restore current merkle")
	}

	if err := schema.DeleteChangeLogEntry(txn, channelName, ordinal, id); err != nil {
		return errors.Wrap(err, "unapply: remove changelog entry")
	}
	if err := schema.SetApplyCounter(txn, channelName, ordinal); err != nil {
		return errors.Wrap(err, "unapply: roll back apply counter")
	}

	blobHash, _ := schema.LookupHash(txn.ReadTxn, id)
	if _, err := schema.IncRefcount(txn, blobHash, -1); err != nil {
		return errors.Wrap(err, "unapply: decrement blob refcount")
	}

	log.WithFields(logrus.Fields{"change": id, "channel": channelName, "ordinal": ordinal}).Debug("unapplied change")
	return nil
}

func unapplyFileAdd(txn pristine.WriteTxn, channelName string, id change.ChangeId, h change.FileAdd) error {
	start, end := contentVertex(id, h.ContentOffset, h.ContentLen)

	dir, base := splitPath(h.Path)
	parentInode, ok := resolveInode(txn.ReadTxn, channelName, dir)
	if !ok {
		return InvalidReference{Reason: "parent directory of " + h.Path + " not found during unapply"}
	}
	parentPos, ok := inodePosition(txn.ReadTxn, channelName, parentInode)
	if !ok {
		return InvalidReference{Reason: "parent inode has no vertex during unapply"}
	}

	if err := schema.RemoveEdge(txn, channelName, parentPos, start, id); err != nil {
		return errors.Wrap(err, "unapply: remove tree edge")
	}
	if err := schema.DeleteTreeEntry(txn, channelName, parentInode, base, h.Inode); err != nil {
		return errors.Wrap(err, "unapply: remove tree entry")
	}
	if err := schema.DeleteInode(txn, channelName, h.Inode, start); err != nil {
		return errors.Wrap(err, "unapply: remove inode")
	}
	if err := schema.DeleteVertex(txn, channelName, start, end); err != nil {
		return errors.Wrap(err, "unapply: remove vertex")
	}
	return nil
}

func unapplyFileDel(txn pristine.WriteTxn, channelName string, id change.ChangeId, h change.FileDel) error {
	pos, ok := inodePosition(txn.ReadTxn, channelName, h.Inode)
	if !ok {
		return InvalidReference{Reason: "deleted inode has no vertex during unapply"}
	}
	dir, _ := splitPath(h.Path)
	parentInode, ok := resolveInode(txn.ReadTxn, channelName, dir)
	if !ok {
		return InvalidReference{Reason: "parent directory not found during unapply"}
	}
	parentPos, ok := inodePosition(txn.ReadTxn, channelName, parentInode)
	if !ok {
		return InvalidReference{Reason: "parent inode has no vertex during unapply"}
	}
	if _, err := schema.UnmarkEdgesByDeleter(txn, channelName, parentPos, pos, id); err != nil {
		return errors.Wrap(err, "unapply: restore tree edge")
	}
	return nil
}

func unapplyFileMove(txn pristine.WriteTxn, channelName string, id change.ChangeId, h change.FileMove) error {
	toDir, toBase := splitPath(h.PathTo)
	toParent, ok := resolveInode(txn.ReadTxn, channelName, toDir)
	if !ok {
		return InvalidReference{Reason: "move destination parent not found during unapply"}
	}
	if err := schema.DeleteTreeEntry(txn, channelName, toParent, toBase, h.Inode); err != nil {
		return errors.Wrap(err, "unapply: remove new tree entry")
	}

	fromDir, fromBase := splitPath(h.PathFrom)
	fromParent, ok := resolveInode(txn.ReadTxn, channelName, fromDir)
	if !ok {
		return InvalidReference{Reason: "move source parent not found during unapply"}
	}
	if err := schema.PutTreeEntry(txn, channelName, fromParent, fromBase, h.Inode); err != nil {
		return errors.Wrap(err, "unapply: restore old tree entry")
	}
	return nil
}

func unapplyEdit(txn pristine.WriteTxn, channelName string, id change.ChangeId, h change.Edit) error {
	for _, a := range h.EdgesAdded {
		if err := schema.RemoveEdge(txn, channelName, a.From, a.To, id); err != nil {
			return errors.Wrap(err, "unapply: remove edit edge")
		}
	}
	if h.ReplacementLen > 0 {
		start, end := contentVertex(id, h.ReplacementOffset, h.ReplacementLen)
		if err := schema.DeleteVertex(txn, channelName, start, end); err != nil {
			return errors.Wrap(err, "unapply: remove replacement vertex")
		}
	}
	for _, d := range h.EdgesDeleted {
		if err := schema.RemoveEdge(txn, channelName, d.From, d.To, id); err != nil {
			return errors.Wrap(err, "unapply: remove pseudo edge")
		}
		if _, err := schema.UnmarkEdgesByDeleter(txn, channelName, d.From, d.To, id); err != nil {
			return errors.Wrap(err, "unapply: restore edit edge")
		}
	}

	for i := len(h.VertexSplits) - 1; i >= 0; i-- {
		if err := schema.MergeVertex(txn, channelName, h.VertexSplits[i]); err != nil {
			return errors.Wrap(err, "unapply: merge split vertex")
		}
	}
	return nil
}

func unapplySolveOrderConflict(txn pristine.WriteTxn, channelName string, id change.ChangeId, h change.SolveOrderConflict) error {
	if h.Resolved != h.Between.Start {
		if _, err := schema.UnmarkEdgesByDeleter(txn, channelName, h.Between.Start, h.Between.End, id); err != nil {
			return errors.Wrap(err, "unapply: restore order conflict side")
		}
	}
	return nil
}

func unapplySolveNameConflict(txn pristine.WriteTxn, channelName string, id change.ChangeId, h change.SolveNameConflict) error {
	parentPos, ok := inodePosition(txn.ReadTxn, channelName, h.Parent)
	if !ok {
		return nil
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
	_, err := schema.UnmarkEdgesByDeleter(txn, channelName, parentPos, childPos, id)
	return errors.Wrap(err, "unapply: restore name conflict side")
}
