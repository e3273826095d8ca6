// Package log builds the PRISM logger: a log/slog text handler wrapped by
// SecureHandler, which masks subject identifiers before anything reaches
// the log stream.
//
// A WID is masked wherever it appears: attributes keyed "wid" (or another
// identifier key) are replaced entirely, and any standalone run of ten
// digits inside a message, string attribute or error is replaced in place,
// so artifact stems stay readable:
//
//	2024-06-01_Form2-**********_1_front
//
// Credentials that may appear in command output are masked by key as well.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
package log
