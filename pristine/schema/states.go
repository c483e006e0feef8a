package schema

import (
	"github.com/rcowham/pijulgo/change"
	"github.com/rcowham/pijulgo/pristine"
)

// PutState records channel's Merkle after applying the change at ordinal
// (invariant I5).
func PutState(txn pristine.WriteTxn, channelName string, merkle change.Hash, ordinal uint64) error {
	b, err := txn.Bucket(TableStates)
	if err != nil {
		return err
	}
	return b.Put(EncodeChannelKey(channelName, EncodeHash(merkle)), encodeUint64(ordinal))
}

// GetStateOrdinal resolves channel's merkle to the ordinal it was recorded
// at, if any.
func GetStateOrdinal(txn pristine.ReadTxn, channelName string, merkle change.Hash) (uint64, bool) {
	b := txn.Bucket(TableStates)
	v := b.Get(EncodeChannelKey(channelName, EncodeHash(merkle)))
	if v == nil {
		return 0, false
	}
	return decodeUint64(v), true
}

// DeleteState removes channel's states entry for merkle (used by unapply
// rolling the channel Merkle back).
func DeleteState(txn pristine.WriteTxn, channelName string, merkle change.Hash) error {
	b, err := txn.Bucket(TableStates)
	if err != nil {
		return err
	}
	return b.Delete(EncodeChannelKey(channelName, EncodeHash(merkle)))
}

// PutTag records a frozen tag at channel's ordinal.
func PutTag(txn pristine.WriteTxn, channelName string, ordinal uint64, merkle change.Hash) error {
	b, err := txn.Bucket(TableTags)
	if err != nil {
		return err
	}
	return b.Put(EncodeChannelKey(channelName, encodeUint64(ordinal)), EncodeHash(merkle))
}

// GetTag reads the Merkle tagged at channel's ordinal, if any.
func GetTag(txn pristine.ReadTxn, channelName string, ordinal uint64) (change.Hash, bool) {
	b := txn.Bucket(TableTags)
	v := b.Get(EncodeChannelKey(channelName, encodeUint64(ordinal)))
	if v == nil {
		return change.Hash{}, false
	}
	return DecodeHash(v), true
}

// PutChangeLogEntry records that channel's ordinal applied id.
func PutChangeLogEntry(txn pristine.WriteTxn, channelName string, ordinal uint64, id change.ChangeId) error {
	log, err := txn.Bucket(TableChangeLog)
	if err != nil {
		return err
	}
	rev, err := txn.Bucket(TableChangeOrdinal)
	if err != nil {
		return err
	}
	if err := log.Put(EncodeChannelKey(channelName, encodeUint64(ordinal)), EncodeChangeId(id)); err != nil {
		return err
	}
	return rev.Put(EncodeChannelKey(channelName, EncodeChangeId(id)), encodeUint64(ordinal))
}

// DeleteChangeLogEntry undoes PutChangeLogEntry.
func DeleteChangeLogEntry(txn pristine.WriteTxn, channelName string, ordinal uint64, id change.ChangeId) error {
	log, err := txn.Bucket(TableChangeLog)
	if err != nil {
		return err
	}
	rev, err := txn.Bucket(TableChangeOrdinal)
	if err != nil {
		return err
	}
	if err := log.Delete(EncodeChannelKey(channelName, encodeUint64(ordinal))); err != nil {
		return err
	}
	return rev.Delete(EncodeChannelKey(channelName, EncodeChangeId(id)))
}

// ChangeAtOrdinal resolves channel's ordinal to the ChangeId applied
// there.
func ChangeAtOrdinal(txn pristine.ReadTxn, channelName string, ordinal uint64) (change.ChangeId, bool) {
	b := txn.Bucket(TableChangeLog)
	v := b.Get(EncodeChannelKey(channelName, encodeUint64(ordinal)))
	if v == nil {
		return 0, false
	}
	return DecodeChangeId(v), true
}

// OrdinalOfChange resolves channel's id to the ordinal it was applied at.
func OrdinalOfChange(txn pristine.ReadTxn, channelName string, id change.ChangeId) (uint64, bool) {
	b := txn.Bucket(TableChangeOrdinal)
	v := b.Get(EncodeChannelKey(channelName, EncodeChangeId(id)))
	if v == nil {
		return 0, false
	}
	return decodeUint64(v), true
}

// NextOrdinal returns and reserves channel's next apply ordinal (the
// Channel.apply_counter of spec §3).
func NextOrdinal(txn pristine.WriteTxn, channelName string) (uint64, error) {
	b, err := txn.Bucket(TableApplyCounter)
	if err != nil {
		return 0, err
	}
	key := []byte(channelName)
	var next uint64 = 1
	if raw := b.Get(key); raw != nil {
		next = decodeUint64(raw)
	}
	if err := b.Put(key, encodeUint64(next+1)); err != nil {
		return 0, err
	}
	return next, nil
}

// SetApplyCounter overwrites channel's raw counter value; used by unapply
// to roll the counter back to the ordinal it is removing.
func SetApplyCounter(txn pristine.WriteTxn, channelName string, next uint64) error {
	b, err := txn.Bucket(TableApplyCounter)
	if err != nil {
		return err
	}
	return b.Put([]byte(channelName), encodeUint64(next))
}

// CurrentOrdinal returns the last ordinal assigned to channel, or 0 if none
// has been applied yet.
func CurrentOrdinal(txn pristine.ReadTxn, channelName string) uint64 {
	b := txn.Bucket(TableApplyCounter)
	v := b.Get([]byte(channelName))
	if v == nil {
		return 0
	}
	return decodeUint64(v) - 1
}

// PutOrdinalMerkle records the Merkle resulting from channel's ordinal,
// the inverse of PutState, so Unapply can recover the prior Merkle
// without rescanning States.
func PutOrdinalMerkle(txn pristine.WriteTxn, channelName string, ordinal uint64, merkle change.Hash) error {
	b, err := txn.Bucket(TableOrdinalMerkle)
	if err != nil {
		return err
	}
	return b.Put(EncodeChannelKey(channelName, encodeUint64(ordinal)), EncodeHash(merkle))
}

// GetOrdinalMerkle reads the Merkle recorded for channel's ordinal, if
// any. Ordinal 0 (before any change has ever been applied) is always the
// zero Hash.
func GetOrdinalMerkle(txn pristine.ReadTxn, channelName string, ordinal uint64) (change.Hash, bool) {
	if ordinal == 0 {
		return change.Hash{}, true
	}
	b := txn.Bucket(TableOrdinalMerkle)
	v := b.Get(EncodeChannelKey(channelName, encodeUint64(ordinal)))
	if v == nil {
		return change.Hash{}, false
	}
	return DecodeHash(v), true
}

// DeleteOrdinalMerkle removes channel's ordinal->Merkle entry, used by
// Unapply when rolling the ordinal back.
func DeleteOrdinalMerkle(txn pristine.WriteTxn, channelName string, ordinal uint64) error {
	b, err := txn.Bucket(TableOrdinalMerkle)
	if err != nil {
		return err
	}
	return b.Delete(EncodeChannelKey(channelName, encodeUint64(ordinal)))
}

// PutCurrentMerkle records channel's rolling Merkle after its most
// recently applied ordinal.
func PutCurrentMerkle(txn pristine.WriteTxn, channelName string, merkle change.Hash) error {
	b, err := txn.Bucket(TableCurrentMerkle)
	if err != nil {
		return err
	}
	return b.Put([]byte(channelName), EncodeHash(merkle))
}

// GetCurrentMerkle reads channel's rolling Merkle, or the zero Hash if
// the channel has never had a change applied.
func GetCurrentMerkle(txn pristine.ReadTxn, channelName string) (change.Hash, bool) {
	b := txn.Bucket(TableCurrentMerkle)
	v := b.Get([]byte(channelName))
	if v == nil {
		return change.Hash{}, false
	}
	return DecodeHash(v), true
}
