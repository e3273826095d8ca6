// Package ocr extracts searchable text from redacted page images.
//
// The assembler only ever sees the RedactedArtifact and its occlusion mask.
// Words the engine reports inside an occluded region are discarded, so
// nothing under the mask can reach the text or the searchable PDF even if
// an engine hallucinates it. Every failure in this package is reported to
// the caller as a warning; the redacted image stays valid.
package ocr
