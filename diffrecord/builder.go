package diffrecord

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/pristine"
	"github.com/rcowham/pijulgo/pristine/schema"
)

// builder accumulates the hunks and content bytes for one new Change
// while Record walks the differences between a channel and a working
// copy, tracking which pre-existing ChangeIds it referenced along the
// way so Dependencies can be computed afterward.
type builder struct {
	txn         pristine.WriteTxn
	channelName string
	resolver    *chainResolver
	selfChange  change.ChangeId

	hunks    []change.Hunk
	contents bytes.Buffer
	newDirs  map[string]change.Inode
	refs     map[change.ChangeId]bool
}

func (b *builder) track(id change.ChangeId) {
	if id == b.selfChange || id == 0 {
		return
	}
	if b.refs == nil {
		b.refs = map[change.ChangeId]bool{}
	}
	b.refs[id] = true
}

// referencedHashes resolves every tracked ChangeId to its Hash, the
// "referenced" set change.MinimalCover narrows into Dependencies.
func (b *builder) referencedHashes() []change.Hash {
	var out []change.Hash
	for id := range b.refs {
		if h, ok := schema.LookupHash(b.txn.ReadTxn, id); ok {
			out = append(out, h)
		}
	}
	return out
}

// appendContent appends data to the change's shared Contents blob,
// returning its offset/length within it (FileAdd.ContentOffset/Len and
// Edit.ReplacementOffset/Len both index into this same accumulator).
func (b *builder) appendContent(data []byte) (offset, length uint64) {
	offset = uint64(b.contents.Len())
	b.contents.Write(data)
	length = uint64(len(data))
	return offset, length
}

// ensureDir returns the inode for dir, creating FileAdd directory hunks
// for any path components missing from both the channel's existing tree
// and the directories this same Record pass has already decided to add.
func (b *builder) ensureDir(dir string) (change.Inode, error) {
	if dir == "" {
		return rootInode, nil
	}
	if inode, ok := resolvePath(b.txn.ReadTxn, b.channelName, dir); ok {
		return inode, nil
	}
	if b.newDirs != nil {
		if inode, ok := b.newDirs[dir]; ok {
			return inode, nil
		}
	}
	parent, _ := splitPath(dir)
	if _, err := b.ensureDir(parent); err != nil {
		return 0, err
	}
	inode, err := schema.NextInode(b.txn)
	if err != nil {
		return 0, errors.Wrap(err, "diffrecord: allocate directory inode")
	}
	b.hunks = append(b.hunks, change.FileAdd{Path: dir, Inode: inode, IsDir: true})
	if b.newDirs == nil {
		b.newDirs = map[string]change.Inode{}
	}
	b.newDirs[dir] = inode
	return inode, nil
}

func (b *builder) move(from, to string) error {
	inode, ok := resolvePath(b.txn.ReadTxn, b.channelName, from)
	if !ok {
		return errors.Errorf("diffrecord: no inode recorded for moved path %s", from)
	}
	dir, _ := splitPath(to)
	if _, err := b.ensureDir(dir); err != nil {
		return err
	}
	b.hunks = append(b.hunks, change.FileMove{PathFrom: from, PathTo: to, Inode: inode})
	return nil
}

func (b *builder) delete(path string) error {
	inode, ok := resolvePath(b.txn.ReadTxn, b.channelName, path)
	if !ok {
		return errors.Errorf("diffrecord: no inode recorded for deleted path %s", path)
	}
	pos, ok := schema.GetInodePosition(b.txn.ReadTxn, b.channelName, inode)
	if !ok {
		return errors.Errorf("diffrecord: no content vertex recorded for %s", path)
	}
	_, data, ok := b.resolver.walkChain(b.channelName, pos)
	if !ok {
		data = nil
	}
	b.hunks = append(b.hunks, change.FileDel{Path: path, Inode: inode, ContentLen: uint64(len(data))})
	return nil
}

func (b *builder) add(path string, data []byte, executable bool) error {
	dir, _ := splitPath(path)
	if _, err := b.ensureDir(dir); err != nil {
		return err
	}
	inode, err := schema.NextInode(b.txn)
	if err != nil {
		return errors.Wrap(err, "diffrecord: allocate file inode")
	}
	offset, length := b.appendContent(data)
	b.hunks = append(b.hunks, change.FileAdd{
		Path:          path,
		Inode:         inode,
		ContentOffset: offset,
		ContentLen:    length,
		IsExecutable:  executable,
	})
	return nil
}

// editPlan is the pure, txn-read-only result of diffing one file's
// current theoretical content against a candidate replacement. Computing
// it never touches b's shared mutable state, so a pool of workers can
// produce plans for many files concurrently (planEdit's only shared
// input is the read-only txn); applying each plan to the builder's
// hunks/contents still happens one at a time, on the caller's goroutine.
type editPlan struct {
	inode      change.Inode
	splits     []change.Position
	deletions  []change.EdgeDeletion
	trackedIds []change.ChangeId
	newBytes   []byte // nil if this edit deletes without inserting
	startPosAt change.Position
	endPosAt   change.Position
}

// planEdit diffs newData against path's current theoretical content and,
// if they differ, returns the plan for a single Edit hunk covering the
// bounding range of every changed line. Multiple disjoint Replacements
// from one file are folded into that single bounding span rather than
// emitted as separate Edit hunks (a deliberate simplification: the
// common single-hunk-per-file case is handled exactly, a file edited in
// several distant places in one Record pass trades a slightly wider Edit
// for one fewer pass over the graph). A file whose current content chain
// branches (an unresolved conflict) is left untouched, the same scope
// limit output/render.go already documents for N-way conflicts. A file on
// either side of the edit that sniffs as binary skips line-diffing
// entirely and replaces its whole span instead, the same binary/text fork
// setCompressionDetails makes before deciding whether content is worth
// diffing at all. A nil plan with a nil error means the file is unchanged.
func (b *builder) planEdit(path string, newData []byte, alg Algorithm) (*editPlan, error) {
	inode, ok := resolvePath(b.txn.ReadTxn, b.channelName, path)
	if !ok {
		return nil, errors.Errorf("diffrecord: no inode recorded for %s", path)
	}
	startPos, ok := schema.GetInodePosition(b.txn.ReadTxn, b.channelName, inode)
	if !ok {
		return nil, errors.Errorf("diffrecord: no content vertex recorded for %s", path)
	}
	spans, oldData, ok := b.resolver.walkChain(b.channelName, startPos)
	if !ok || len(spans) == 0 {
		return nil, nil
	}
	if bytes.Equal(oldData, newData) {
		return nil, nil
	}

	if isBinary(oldData) || isBinary(newData) {
		return b.planRange(path, inode, spans, 0, len(oldData), newData)
	}

	oldLines := SplitLines(oldData)
	newLines := SplitLines(newData)
	reps := Diff(alg, oldLines, newLines)
	if len(reps) == 0 {
		return nil, nil
	}

	first, last := reps[0], reps[len(reps)-1]
	oldStartByte := lineOffset(oldLines, first.Old)
	oldEndByte := lineOffset(oldLines, last.Old+last.OldLen)
	newStartByte := lineOffset(newLines, first.New)
	newEndByte := lineOffset(newLines, last.New+last.NewLen)
	return b.planRange(path, inode, spans, oldStartByte, oldEndByte, newData[newStartByte:newEndByte])
}

// planRange builds the editPlan replacing old content in [oldStartByte,
// oldEndByte) with newBytes, the shared tail of both the line-diff path
// (given a computed bounding range) and the binary path (given the whole
// file's range).
func (b *builder) planRange(path string, inode change.Inode, spans []vertexSpan, oldStartByte, oldEndByte int, newBytes []byte) (*editPlan, error) {
	startPosAt, startSplit, ok := positionAt(spans, oldStartByte)
	if !ok {
		return nil, errors.Errorf("diffrecord: could not locate start offset in %s", path)
	}
	endPosAt, endSplit, ok := positionAt(spans, oldEndByte)
	if !ok {
		return nil, errors.Errorf("diffrecord: could not locate end offset in %s", path)
	}

	plan := &editPlan{inode: inode, startPosAt: startPosAt, endPosAt: endPosAt}
	if startSplit {
		plan.splits = append(plan.splits, startPosAt)
	}
	if endSplit && endPosAt != startPosAt {
		plan.splits = append(plan.splits, endPosAt)
	}
	plan.trackedIds = append(plan.trackedIds, startPosAt.Change, endPosAt.Change)

	for i := 0; i+1 < len(spans); i++ {
		junction := spans[i+1].offset
		if junction < oldStartByte || junction > oldEndByte {
			continue
		}
		plan.trackedIds = append(plan.trackedIds, spans[i].End.Change, spans[i+1].Start.Change)
		plan.deletions = append(plan.deletions, change.EdgeDeletion{From: spans[i].End, To: spans[i+1].Start})
	}

	if len(newBytes) > 0 {
		plan.newBytes = newBytes
	}
	return plan, nil
}

// applyPlan appends plan's Edit hunk to b, reserving its replacement
// content range in b's shared Contents accumulator. Not safe to call
// from more than one goroutine at a time.
func (b *builder) applyPlan(plan *editPlan) {
	for _, id := range plan.trackedIds {
		b.track(id)
	}

	var additions []change.EdgeAddition
	var replacementOffset, replacementLen uint64
	if len(plan.newBytes) > 0 {
		replacementOffset, replacementLen = b.appendContent(plan.newBytes)
		newStart := change.Position{Change: b.selfChange, Offset: replacementOffset}
		newEnd := change.Position{Change: b.selfChange, Offset: replacementOffset + replacementLen}
		additions = append(additions,
			change.EdgeAddition{From: plan.startPosAt, To: newStart, Flags: change.FlagAlive},
			change.EdgeAddition{From: newEnd, To: plan.endPosAt, Flags: change.FlagAlive},
		)
	} else {
		additions = append(additions, change.EdgeAddition{From: plan.startPosAt, To: plan.endPosAt, Flags: change.FlagAlive})
	}

	b.hunks = append(b.hunks, change.Edit{
		Inode:             plan.inode,
		VertexSplits:      plan.splits,
		EdgesAdded:        additions,
		EdgesDeleted:      plan.deletions,
		ReplacementOffset: replacementOffset,
		ReplacementLen:    replacementLen,
	})
}

// lineOffset returns the byte offset where lines[idx] begins (or the
// total byte length of lines if idx == len(lines)).
func lineOffset(lines [][]byte, idx int) int {
	offset := 0
	for i := 0; i < idx && i < len(lines); i++ {
		offset += len(lines[i])
	}
	return offset
}
