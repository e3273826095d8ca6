// Package capture turns device frames into labeled pages of one document.
//
// In duplex mode a single acquisition covers the whole form and pages are
// labeled by position: each sheet yields a front followed by a back. In
// simplex mode the operator feeds the stack twice, fronts first, and pages
// are paired by index. Every page is written to the Scans directory as soon
// as it arrives, under a sequence number that continues after any scans of
// the same request already on disk.
package capture
