package schema

import "github.com/rcowham/pijulgo/pristine"

// CreateChannelEntry records name in the channel registry. A no-op (not
// an error) if name is already registered, so callers that only care
// "does it exist now" don't need a separate existence check first.
func CreateChannelEntry(txn pristine.WriteTxn, name string) error {
	b, err := txn.Bucket(TableChannels)
	if err != nil {
		return err
	}
	return b.Put([]byte(name), []byte{1})
}

// ChannelEntryExists reports whether name is registered.
func ChannelEntryExists(txn pristine.ReadTxn, name string) bool {
	b := txn.Bucket(TableChannels)
	return b.Get([]byte(name)) != nil
}

// DeleteChannelEntry removes name from the registry.
func DeleteChannelEntry(txn pristine.WriteTxn, name string) error {
	b, err := txn.Bucket(TableChannels)
	if err != nil {
		return err
	}
	return b.Delete([]byte(name))
}

// ListChannelEntries returns every registered channel name, in ascending
// order.
func ListChannelEntries(txn pristine.ReadTxn) []string {
	b := txn.Bucket(TableChannels)
	var out []string
	_ = b.ForEach(func(k, v []byte) error {
		out = append(out, string(k))
		return nil
	})
	return out
}
