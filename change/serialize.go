package change

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"time"
)

// wireVersion is the canonical encoding version. Parse rejects a blob
// carrying any other version. Within this version, hunk payloads are
// length-prefixed, so readHunks skips a hunk whose tag it does not
// recognize.
const wireVersion uint8 = 1

// Serialize produces the canonical binary form of c. Hash(c) is defined as
// the digest of this form; Parse(Serialize(c)) must reproduce c exactly
// (spec §6, §8 round-trip property).
func Serialize(c *Change) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(wireVersion)

	if err := writeHeader(&buf, c.Header); err != nil {
		return nil, err
	}
	if err := writeHashes(&buf, c.Dependencies); err != nil {
		return nil, err
	}
	if err := writeHashes(&buf, c.ExtraKnown); err != nil {
		return nil, err
	}
	if err := writeHunks(&buf, c.Hunks); err != nil {
		return nil, err
	}
	writeBytes(&buf, c.Contents)

	return buf.Bytes(), nil
}

// Parse reads the canonical binary form produced by Serialize.
func Parse(b []byte) (*Change, error) {
	r := bytes.NewReader(b)
	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("change: empty blob: %w", err)
	}
	if version != wireVersion {
		return nil, fmt.Errorf("change: unsupported wire version %d", version)
	}

	c := &Change{}
	if c.Header, err = readHeader(r); err != nil {
		return nil, fmt.Errorf("change: header: %w", err)
	}
	if c.Dependencies, err = readHashes(r); err != nil {
		return nil, fmt.Errorf("change: dependencies: %w", err)
	}
	if c.ExtraKnown, err = readHashes(r); err != nil {
		return nil, fmt.Errorf("change: extra known: %w", err)
	}
	if c.Hunks, err = readHunks(r); err != nil {
		return nil, fmt.Errorf("change: hunks: %w", err)
	}
	if c.Contents, err = readBytes(r); err != nil {
		return nil, fmt.Errorf("change: contents: %w", err)
	}
	return c, nil
}

func writeUvarint(w *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.Write(tmp[:n])
}

func readUvarint(r *bytes.Reader) (uint64, error) {
	return binary.ReadUvarint(r)
}

func writeBytes(w *bytes.Buffer, b []byte) {
	writeUvarint(w, uint64(len(b)))
	w.Write(b)
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func writeString(w *bytes.Buffer, s string) {
	writeBytes(w, []byte(s))
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeHeader(w *bytes.Buffer, h Header) error {
	writeUvarint(w, uint64(len(h.Authors)))
	for _, a := range h.Authors {
		writeUvarint(w, uint64(len(a)))
		keys := make([]string, 0, len(a))
		for k := range a {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			writeString(w, k)
			writeString(w, a[k])
		}
	}
	writeString(w, h.Message)
	if h.Description != nil {
		w.WriteByte(1)
		writeString(w, *h.Description)
	} else {
		w.WriteByte(0)
	}
	writeUvarint(w, uint64(h.Timestamp.UnixNano()))
	return nil
}

func readHeader(r *bytes.Reader) (Header, error) {
	var h Header
	n, err := readUvarint(r)
	if err != nil {
		return h, err
	}
	h.Authors = make([]Author, n)
	for i := range h.Authors {
		m, err := readUvarint(r)
		if err != nil {
			return h, err
		}
		a := make(Author, m)
		for j := uint64(0); j < m; j++ {
			k, err := readString(r)
			if err != nil {
				return h, err
			}
			v, err := readString(r)
			if err != nil {
				return h, err
			}
			a[k] = v
		}
		h.Authors[i] = a
	}
	if h.Message, err = readString(r); err != nil {
		return h, err
	}
	hasDesc, err := r.ReadByte()
	if err != nil {
		return h, err
	}
	if hasDesc == 1 {
		desc, err := readString(r)
		if err != nil {
			return h, err
		}
		h.Description = &desc
	}
	nanos, err := readUvarint(r)
	if err != nil {
		return h, err
	}
	h.Timestamp = time.Unix(0, int64(nanos)).UTC()
	return h, nil
}

func writeHashes(w *bytes.Buffer, hs []Hash) error {
	writeUvarint(w, uint64(len(hs)))
	for _, h := range hs {
		w.Write(h[:])
	}
	return nil
}

func readHashes(r *bytes.Reader) ([]Hash, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	hs := make([]Hash, n)
	for i := range hs {
		if _, err := io.ReadFull(r, hs[i][:]); err != nil {
			return nil, err
		}
	}
	return hs, nil
}

func writePosition(w *bytes.Buffer, p Position) {
	writeUvarint(w, uint64(p.Change))
	writeUvarint(w, p.Offset)
}

func readPosition(r *bytes.Reader) (Position, error) {
	c, err := readUvarint(r)
	if err != nil {
		return Position{}, err
	}
	o, err := readUvarint(r)
	if err != nil {
		return Position{}, err
	}
	return Position{Change: ChangeId(c), Offset: o}, nil
}

func writeVertex(w *bytes.Buffer, v Vertex) {
	writePosition(w, v.Start)
	writePosition(w, v.End)
}

func readVertex(r *bytes.Reader) (Vertex, error) {
	start, err := readPosition(r)
	if err != nil {
		return Vertex{}, err
	}
	end, err := readPosition(r)
	if err != nil {
		return Vertex{}, err
	}
	return Vertex{Start: start, End: end}, nil
}

func writeHunks(w *bytes.Buffer, hunks []Hunk) error {
	writeUvarint(w, uint64(len(hunks)))
	for _, h := range hunks {
		var payload bytes.Buffer
		if err := encodeHunkBody(&payload, h); err != nil {
			return err
		}
		w.WriteByte(byte(h.Tag()))
		writeBytes(w, payload.Bytes())
	}
	return nil
}

// readHunks decodes the hunk sequence, skipping (rather than failing on)
// any tag this build doesn't recognize — the additive-hunk-versioning
// contract from spec §9.
func readHunks(r *bytes.Reader) ([]Hunk, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	hunks := make([]Hunk, 0, n)
	for i := uint64(0); i < n; i++ {
		tagByte, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		payload, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		tag := HunkTag(tagByte)
		h, ok, err := decodeHunkBody(tag, payload)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue // unknown tag: skip, tolerated by version
		}
		hunks = append(hunks, h)
	}
	return hunks, nil
}

func encodeHunkBody(w *bytes.Buffer, h Hunk) error {
	switch v := h.(type) {
	case FileAdd:
		writeString(w, v.Path)
		writeUvarint(w, uint64(v.Inode))
		writeUvarint(w, v.ContentOffset)
		writeUvarint(w, v.ContentLen)
		writeBool(w, v.IsExecutable)
		writeBool(w, v.IsDir)
	case FileDel:
		writeString(w, v.Path)
		writeUvarint(w, uint64(v.Inode))
		writeUvarint(w, v.ContentLen)
	case FileMove:
		writeString(w, v.PathFrom)
		writeString(w, v.PathTo)
		writeUvarint(w, uint64(v.Inode))
	case Edit:
		writeUvarint(w, uint64(v.Inode))
		writeUvarint(w, uint64(len(v.VertexSplits)))
		for _, p := range v.VertexSplits {
			writePosition(w, p)
		}
		writeUvarint(w, uint64(len(v.EdgesAdded)))
		for _, e := range v.EdgesAdded {
			writePosition(w, e.From)
			writePosition(w, e.To)
			writeUvarint(w, uint64(e.Flags))
		}
		writeUvarint(w, uint64(len(v.EdgesDeleted)))
		for _, e := range v.EdgesDeleted {
			writePosition(w, e.From)
			writePosition(w, e.To)
		}
		writeUvarint(w, v.ReplacementOffset)
		writeUvarint(w, v.ReplacementLen)
	case SolveOrderConflict:
		writeVertex(w, v.Between)
		writePosition(w, v.Resolved)
	case SolveNameConflict:
		writeUvarint(w, uint64(v.Parent))
		writeString(w, v.Basename)
		writeUvarint(w, uint64(v.Keep))
	default:
		return fmt.Errorf("change: unknown hunk type %T", h)
	}
	return nil
}

func decodeHunkBody(tag HunkTag, payload []byte) (Hunk, bool, error) {
	r := bytes.NewReader(payload)
	switch tag {
	case TagFileAdd:
		path, err := readString(r)
		if err != nil {
			return nil, false, err
		}
		inode, err := readUvarint(r)
		if err != nil {
			return nil, false, err
		}
		off, err := readUvarint(r)
		if err != nil {
			return nil, false, err
		}
		length, err := readUvarint(r)
		if err != nil {
			return nil, false, err
		}
		exec, err := readBool(r)
		if err != nil {
			return nil, false, err
		}
		isDir, err := readBool(r)
		if err != nil {
			return nil, false, err
		}
		return FileAdd{Path: path, Inode: Inode(inode), ContentOffset: off, ContentLen: length, IsExecutable: exec, IsDir: isDir}, true, nil
	case TagFileDel:
		path, err := readString(r)
		if err != nil {
			return nil, false, err
		}
		inode, err := readUvarint(r)
		if err != nil {
			return nil, false, err
		}
		length, err := readUvarint(r)
		if err != nil {
			return nil, false, err
		}
		return FileDel{Path: path, Inode: Inode(inode), ContentLen: length}, true, nil
	case TagFileMove:
		from, err := readString(r)
		if err != nil {
			return nil, false, err
		}
		to, err := readString(r)
		if err != nil {
			return nil, false, err
		}
		inode, err := readUvarint(r)
		if err != nil {
			return nil, false, err
		}
		return FileMove{PathFrom: from, PathTo: to, Inode: Inode(inode)}, true, nil
	case TagEdit:
		inode, err := readUvarint(r)
		if err != nil {
			return nil, false, err
		}
		nSplits, err := readUvarint(r)
		if err != nil {
			return nil, false, err
		}
		splits := make([]Position, nSplits)
		for i := range splits {
			if splits[i], err = readPosition(r); err != nil {
				return nil, false, err
			}
		}
		nAdded, err := readUvarint(r)
		if err != nil {
			return nil, false, err
		}
		added := make([]EdgeAddition, nAdded)
		for i := range added {
			from, err := readPosition(r)
			if err != nil {
				return nil, false, err
			}
			to, err := readPosition(r)
			if err != nil {
				return nil, false, err
			}
			flags, err := readUvarint(r)
			if err != nil {
				return nil, false, err
			}
			added[i] = EdgeAddition{From: from, To: to, Flags: EdgeFlags(flags)}
		}
		nDeleted, err := readUvarint(r)
		if err != nil {
			return nil, false, err
		}
		deleted := make([]EdgeDeletion, nDeleted)
		for i := range deleted {
			from, err := readPosition(r)
			if err != nil {
				return nil, false, err
			}
			to, err := readPosition(r)
			if err != nil {
				return nil, false, err
			}
			deleted[i] = EdgeDeletion{From: from, To: to}
		}
		replOff, err := readUvarint(r)
		if err != nil {
			return nil, false, err
		}
		replLen, err := readUvarint(r)
		if err != nil {
			return nil, false, err
		}
		return Edit{
			Inode:             Inode(inode),
			VertexSplits:      splits,
			EdgesAdded:        added,
			EdgesDeleted:      deleted,
			ReplacementOffset: replOff,
			ReplacementLen:    replLen,
		}, true, nil
	case TagSolveOrderConflict:
		between, err := readVertex(r)
		if err != nil {
			return nil, false, err
		}
		resolved, err := readPosition(r)
		if err != nil {
			return nil, false, err
		}
		return SolveOrderConflict{Between: between, Resolved: resolved}, true, nil
	case TagSolveNameConflict:
		parent, err := readUvarint(r)
		if err != nil {
			return nil, false, err
		}
		basename, err := readString(r)
		if err != nil {
			return nil, false, err
		}
		keep, err := readUvarint(r)
		if err != nil {
			return nil, false, err
		}
		return SolveNameConflict{Parent: Inode(parent), Basename: basename, Keep: Inode(keep)}, true, nil
	default:
		return nil, false, nil
	}
}

func writeBool(w *bytes.Buffer, b bool) {
	if b {
		w.WriteByte(1)
	} else {
		w.WriteByte(0)
	}
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b == 1, nil
}
