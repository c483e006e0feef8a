// Package logctx centralizes the logrus.Logger construction convention used
// across pijulgo, following the teacher's habit of threading a single
// *logrus.Logger through every constructor (GitP4Transfer, BlobFileMatcher,
// GitFile, ...) rather than using the package-level default logger.
package logctx

import "github.com/sirupsen/logrus"

// New builds the logger used by the CLI entrypoints, honoring the same
// debug-level toggle convention as the teacher's main().
func New(debug bool) *logrus.Logger {
	logger := logrus.New()
	logger.Level = logrus.InfoLevel
	if debug {
		logger.Level = logrus.DebugLevel
	}
	return logger
}

// Discard returns a logger that emits nothing, for use in tests and in
// library code that was not handed a logger explicitly.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.Out = discardWriter{}
	return logger
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
