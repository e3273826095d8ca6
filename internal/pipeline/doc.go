// Package pipeline runs the steps that process one document.
//
// A document moves through capture, redaction, optional OCR and the ledger.
// Each stage is a Step that receives the Document and records its results
// on it. A failing step stops the main sequence; steps added with
// WithFinally run afterwards regardless, with a context that is not
// cancelled, so failed and interrupted documents are still recorded.
//
// BatchProcessor runs redaction pipelines over existing raw scans
// concurrently for the offline redact command. It never touches a device.
package pipeline
