// Package database provides the SQLite ledger of PRISM sessions, documents
// and artifacts.
//
// The ledger records what was produced, not the images themselves: every
// session with its backend, every document with its final status and
// warnings, and every artifact path with its SHA-256 digest. It uses
// modernc.org/sqlite, so no CGO is required.
package database
