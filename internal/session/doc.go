// Package session runs the interactive PRISM scanning session.
//
// A Session discovers and opens one device, asks whether to run OCR and
// whether to scan duplex, then loops: ask the WID and form type, capture,
// redact and optionally OCR the document, and ask whether to continue.
// Teardown releases the device exactly once however the loop ends,
// including on an interrupt during acquisition.
//
// The session only emits console events. Formatting is left to the
// console renderer.
package session
