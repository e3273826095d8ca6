// Package artifact names and persists the files PRISM produces.
//
// Every page produces up to four artifacts sharing one stem:
//
//	Scans/<stem>.png                  RawArtifact
//	Redactions/REDACTED_<stem>.png    RedactedArtifact
//	OCR/OCR_<stem>.txt                recognized text
//	OCR/OCR_<stem>.pdf                searchable page
//
// Files are written to a temporary name in the destination directory and
// published only after they are complete, so a failure never leaves a
// partial artifact behind. Published files are never modified or deleted;
// replacing one requires an explicit overwrite.
package artifact
