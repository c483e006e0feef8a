package channel

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/rcowham/pijulgo/apply"
	"github.com/rcowham/pijulgo/blobstore"
	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/output"
	"github.com/rcowham/pijulgo/pristine"
	"github.com/rcowham/pijulgo/pristine/schema"
)

// tagFormatVersion is the leading byte of a tag payload, so a future
// format change can be detected before the hash list is misread (spec
// §6 "a versioned header", the same discipline change.Serialize follows
// for change blobs).
const tagFormatVersion = 1

// encodeTag serializes name's applied-change sequence (in ordinal order)
// into the self-contained payload that gets zlib-compressed and stored
// under the channel's Merkle, per spec §4.7.
func encodeTag(hashes []change.Hash) []byte {
	buf := make([]byte, 0, 5+len(hashes)*32)
	buf = append(buf, tagFormatVersion)
	var countBytes [4]byte
	binary.BigEndian.PutUint32(countBytes[:], uint32(len(hashes)))
	buf = append(buf, countBytes[:]...)
	for _, h := range hashes {
		buf = append(buf, h[:]...)
	}
	return buf
}

func decodeTag(b []byte) ([]change.Hash, error) {
	if len(b) < 5 {
		return nil, errors.New("channel: tag payload truncated")
	}
	if b[0] != tagFormatVersion {
		return nil, errors.Errorf("channel: unsupported tag format version %d", b[0])
	}
	count := binary.BigEndian.Uint32(b[1:5])
	rest := b[5:]
	if uint64(len(rest)) != uint64(count)*32 {
		return nil, errors.New("channel: tag payload length mismatch")
	}
	hashes := make([]change.Hash, count)
	for i := range hashes {
		copy(hashes[i][:], rest[i*32:(i+1)*32])
	}
	return hashes, nil
}

// Tag freezes name's current change set as a compressed, self-contained
// blob content-addressed by the channel's current Merkle (spec §4.7),
// storing it through blobs alongside change blobs with the ".tag"
// filename suffix, and records it in the Tags table.
func Tag(txn pristine.WriteTxn, blobs *blobstore.Store, name string) (change.Hash, error) {
	if !schema.ChannelEntryExists(txn.ReadTxn, name) {
		return change.Hash{}, NotFound{Name: name}
	}
	merkle, _ := schema.GetCurrentMerkle(txn.ReadTxn, name)
	ordinal := schema.CurrentOrdinal(txn.ReadTxn, name)

	hashes := make([]change.Hash, 0, ordinal)
	for o := uint64(1); o <= ordinal; o++ {
		id, ok := schema.ChangeAtOrdinal(txn.ReadTxn, name, o)
		if !ok {
			return change.Hash{}, errors.Errorf("channel: tag %q: ordinal %d has no recorded change", name, o)
		}
		h, ok := schema.LookupHash(txn.ReadTxn, id)
		if !ok {
			return change.Hash{}, errors.Errorf("channel: tag %q: change %d has no recorded hash", name, id)
		}
		hashes = append(hashes, h)
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(encodeTag(hashes)); err != nil {
		return change.Hash{}, errors.Wrap(err, "channel: compress tag")
	}
	if err := zw.Close(); err != nil {
		return change.Hash{}, errors.Wrap(err, "channel: close tag writer")
	}
	if err := blobs.SaveTag(merkle, compressed.Bytes()); err != nil {
		return change.Hash{}, err
	}
	if err := schema.PutTag(txn, name, ordinal, merkle); err != nil {
		return change.Hash{}, err
	}
	return merkle, nil
}

// loadTagHashes reads and decompresses the tag blob for merkle.
func loadTagHashes(blobs *blobstore.Store, merkle change.Hash) ([]change.Hash, error) {
	raw, err := blobs.LoadTag(merkle)
	if err != nil {
		return nil, err
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "channel: tag zlib reader")
	}
	defer zr.Close()
	payload, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrap(err, "channel: read tag payload")
	}
	return decodeTag(payload)
}

// TagCheckout restores a fresh channel named into from the tag blob
// addressed by merkle, replaying each recorded change's Apply in order.
// into must not already exist.
func TagCheckout(txn pristine.WriteTxn, blobs *blobstore.Store, log *logrus.Logger, merkle change.Hash, into string) error {
	if schema.ChannelEntryExists(txn.ReadTxn, into) {
		return AlreadyExists{Name: into}
	}
	hashes, err := loadTagHashes(blobs, merkle)
	if err != nil {
		return errors.Wrapf(err, "channel: tag checkout %s", merkle)
	}
	if err := schema.CreateChannelEntry(txn, into); err != nil {
		return err
	}
	for _, h := range hashes {
		raw, err := blobs.Load(h)
		if err != nil {
			return errors.Wrapf(err, "channel: tag checkout %s: load change %s", merkle, h)
		}
		c, err := change.Parse(raw)
		if err != nil {
			return errors.Wrapf(err, "channel: tag checkout %s: parse change %s", merkle, h)
		}
		if _, err := apply.Apply(txn, log, into, h, c); err != nil {
			return errors.Wrapf(err, "channel: tag checkout %s: apply change %s", merkle, h)
		}
	}
	return nil
}

// TagReset projects the tagged state onto wc without creating or
// altering any visible channel: it replays the tag into a throwaway
// scratch channel, runs output.Write from it, then erases every trace of
// the scratch channel before returning (spec §4.7 "projects the tagged
// state onto the working copy without altering any channel").
func TagReset(txn pristine.WriteTxn, blobs *blobstore.Store, wc output.WorkingCopy, opts output.Options, log *logrus.Logger, merkle change.Hash) error {
	scratch := scratchChannelName(merkle)
	if err := TagCheckout(txn, blobs, log, merkle, scratch); err != nil {
		return err
	}
	err := output.Write(txn.ReadTxn, scratch, blobs, wc, opts, log)
	if purgeErr := purgeChannelTables(txn, scratch); purgeErr != nil && err == nil {
		err = purgeErr
	}
	if delErr := schema.DeleteChannelEntry(txn, scratch); delErr != nil && err == nil {
		err = delErr
	}
	return err
}

func scratchChannelName(merkle change.Hash) string {
	return "\x00tagreset-" + merkle.String()
}
