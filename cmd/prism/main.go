// Package main provides the entry point for the PRISM CLI.
//
// PRISM digitizes two-sided paper forms and occludes their privacy
// protected fields before any digital copy leaves the scanner workflow.
//
// Usage:
//
//	prism run
//	prism redact [raw files...]
//	prism history
//
// See --help for all available options.
package main

// main is the entry point for PRISM.
func main() {
	Execute()
}
