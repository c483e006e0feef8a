package apply

import (
	"fmt"

	"github.com/rcowham/pijulgo/change"
)

// MissingDependency is returned when a change names a dependency hash
// that either has never been recorded in this pristine, or has not yet
// been applied to the target channel (spec §4.4 "Failure semantics").
type MissingDependency struct {
	Hash change.Hash
}

func (e MissingDependency) Error() string {
	return fmt.Sprintf("apply: missing dependency %s", e.Hash)
}

// NotTopOfChannel is returned when Unapply is asked to remove a change
// that is not the channel's most recently applied ordinal. Unapply only
// ever rolls a channel back one ordinal at a time.
type NotTopOfChannel struct {
	ChangeId change.ChangeId
}

func (e NotTopOfChannel) Error() string {
	return fmt.Sprintf("apply: change %d is not the channel's top ordinal", e.ChangeId)
}

// InvalidReference is returned when a hunk names a path, inode or
// position that does not resolve against the channel's current alive
// subgraph.
type InvalidReference struct {
	Reason string
}

func (e InvalidReference) Error() string {
	return "apply: invalid reference: " + e.Reason
}
