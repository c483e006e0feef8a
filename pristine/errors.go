package pristine

import (
	"github.com/pkg/errors"
)

// Storage errors are fatal to the current transaction: the transaction
// must not commit (spec §7, "Storage" row of the taxonomy).
var (
	// ErrCorruption means a page failed its consistency check on read.
	// bbolt surfaces this as a non-nil error from Open or from a
	// transaction touching a damaged page.
	ErrCorruption = errors.New("pristine: corruption detected")

	// ErrIO wraps an underlying filesystem I/O failure.
	ErrIO = errors.New("pristine: I/O error")

	// ErrNoSpace is returned by Update when its write failed because the
	// underlying volume is full (ENOSPC). Non-fatal: the caller may free
	// space and retry.
	ErrNoSpace = errors.New("pristine: out of space")

	// ErrTableNotFound names a table that does not exist. No function in
	// this package returns it: ReadTxn.Bucket yields an empty Bucket for
	// a table that has never been written.
	ErrTableNotFound = errors.New("pristine: table not found")
)

// WrapIO attaches ErrIO context (with the original error as Cause, so
// errors.Cause(err) still recovers the *os.PathError etc.) the way
// pkg/errors.Wrap is meant to be used.
func WrapIO(err error, context string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "%s: %s", ErrIO, context)
}
