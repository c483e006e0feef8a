// Package buildinfo prints a version banner for the pijulgo binaries.
//
// The teacher this repository is adapted from (gitp4transfer) pulled its
// banner from github.com/perforce/p4prometheus/version, which formats
// Perforce's own release metadata convention. Nothing in this domain
// produces that metadata, so the banner is a plain stdlib replacement
// rather than a stand-in for a dropped domain dependency.
package buildinfo

import "fmt"

// Version is overridden at link time with -ldflags "-X ...Version=...".
var Version = "dev"

// Commit is overridden at link time with -ldflags "-X ...Commit=...".
var Commit = "unknown"

// Print returns a one-line banner for app, in the same spirit as the
// teacher's version.Print(appname).
func Print(app string) string {
	return fmt.Sprintf("%s version %s (%s)", app, Version, Commit)
}
