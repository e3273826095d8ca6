// Package config provides the PRISM configuration: workspace directories,
// device backend selection, redaction and OCR settings, and the locations
// of the ledger and metrics files.
package config
