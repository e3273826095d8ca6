package model

import (
	"fmt"
	"time"
)

// DateLayout is the date format used in artifact names.
const DateLayout = "2006-01-02"

// DocumentRequest identifies one form to capture during a loop iteration.
// It is created from operator input and not modified after capture starts.
type DocumentRequest struct {
	// WID is the subject identifier printed on the form.
	WID WID `json:"wid"`

	// FormType selects the redaction overlays for the form.
	FormType FormType `json:"form_type"`

	// Date is the capture date used in artifact names.
	Date time.Time `json:"date"`
}

// NewDocumentRequest returns a request dated at the calendar day of now.
func NewDocumentRequest(wid WID, form FormType, now time.Time) DocumentRequest {
	return DocumentRequest{WID: wid, FormType: form, Date: now}
}

// Prefix returns the stem prefix shared by every page of the request:
// "{YYYY-MM-DD}_Form{N}-{wid}".
func (r DocumentRequest) Prefix() string {
	return fmt.Sprintf("%s_Form%s-%s", r.Date.Format(DateLayout), r.FormType, r.WID)
}

// Stem returns the file name stem for the page with the given 1-based
// sequence number and side, e.g. "2024-06-01_Form2-0012345678_1_front".
func (r DocumentRequest) Stem(seq int, side Side) string {
	return fmt.Sprintf("%s_%d_%s", r.Prefix(), seq, side)
}
