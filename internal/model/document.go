package model

import (
	"fmt"
	"time"
)

// DocumentStatus is the outcome of processing one document.
type DocumentStatus string

const (
	// StatusPending means the pipeline has not finished.
	StatusPending DocumentStatus = "pending"

	// StatusComplete means every page was captured and redacted.
	StatusComplete DocumentStatus = "complete"

	// StatusCaptureFailed means acquisition was aborted. Raw artifacts
	// written before the failure remain on disk.
	StatusCaptureFailed DocumentStatus = "capture_failed"

	// StatusRedactionFailed means no redacted output was emitted for at
	// least one page.
	StatusRedactionFailed DocumentStatus = "redaction_failed"

	// StatusCancelled means the session was interrupted mid-document.
	StatusCancelled DocumentStatus = "cancelled"
)

// Document carries everything known about one DocumentRequest while it moves
// through the capture, redaction and OCR steps.
type Document struct {
	// ID is the ledger row id once saved.
	ID int64 `json:"id,omitempty"`

	// SessionID identifies the session that produced the document.
	SessionID string `json:"session_id"`

	// Request is the operator's request.
	Request DocumentRequest `json:"request"`

	// Pages are in physical scan order.
	Pages []*Page `json:"pages"`

	// Status is the final outcome.
	Status DocumentStatus `json:"status"`

	// Warnings are non-fatal problems (OCR failures, pass count mismatch).
	Warnings []string `json:"warnings,omitempty"`

	// Error is the failure that stopped the pipeline, if any.
	Error error `json:"-"`

	// ErrorMessage is Error rendered for storage.
	ErrorMessage string `json:"error,omitempty"`

	// PerformedSteps lists the pipeline steps that ran, in order.
	PerformedSteps []string `json:"performed_steps,omitempty"`

	// StartedAt and FinishedAt bound the processing time.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewDocument creates a pending document for req.
func NewDocument(sessionID string, req DocumentRequest) *Document {
	return &Document{
		SessionID: sessionID,
		Request:   req,
		Pages:     make([]*Page, 0, 2),
		Status:    StatusPending,
		StartedAt: time.Now(),
	}
}

// AddWarning records a non-fatal problem.
func (d *Document) AddWarning(format string, args ...any) {
	d.Warnings = append(d.Warnings, fmt.Sprintf(format, args...))
}

// Fail records err as the document failure with the given status.
func (d *Document) Fail(status DocumentStatus, err error) {
	d.Status = status
	d.Error = err
	if err != nil {
		d.ErrorMessage = err.Error()
	}
}

// RedactedPages returns the pages that have a RedactedArtifact.
func (d *Document) RedactedPages() []*Page {
	pages := make([]*Page, 0, len(d.Pages))
	for _, p := range d.Pages {
		if p.Redacted() {
			pages = append(pages, p)
		}
	}
	return pages
}

// CountSide returns the number of pages labeled with side.
func (d *Document) CountSide(side Side) int {
	n := 0
	for _, p := range d.Pages {
		if p.Side == side {
			n++
		}
	}
	return n
}
