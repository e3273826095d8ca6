package model

import "fmt"

// DocumentError ties a failure to the document, and optionally the page,
// it affected so operator messages can name them.
type DocumentError struct {
	// Op is the step that failed (e.g. "capture", "redact").
	Op string

	// WID and FormType identify the document.
	WID      WID
	FormType FormType

	// Side and Sequence identify the page. Sequence is zero when the error
	// is not specific to a page. HasSide is set when Side is meaningful
	// without a page, as for a failed simplex pass.
	Side     Side
	Sequence int
	HasSide  bool

	// Err is the underlying error.
	Err error
}

// Error implements error.
func (e *DocumentError) Error() string {
	if e.Sequence > 0 {
		return fmt.Sprintf("%s: WID %s form %s page %d (%s): %v",
			e.Op, e.WID, e.FormType, e.Sequence, e.Side, e.Err)
	}
	if e.HasSide {
		return fmt.Sprintf("%s: WID %s form %s %s pass: %v", e.Op, e.WID, e.FormType, e.Side, e.Err)
	}
	return fmt.Sprintf("%s: WID %s form %s: %v", e.Op, e.WID, e.FormType, e.Err)
}

// Unwrap returns the underlying error.
func (e *DocumentError) Unwrap() error {
	return e.Err
}

// PageError builds a DocumentError for one page of req.
func PageError(op string, req DocumentRequest, page *Page, err error) *DocumentError {
	return &DocumentError{
		Op:       op,
		WID:      req.WID,
		FormType: req.FormType,
		Side:     page.Side,
		Sequence: page.Sequence(),
		HasSide:  true,
		Err:      err,
	}
}

// SideError builds a DocumentError for every page of one side of req.
func SideError(op string, req DocumentRequest, side Side, err error) *DocumentError {
	return &DocumentError{
		Op:       op,
		WID:      req.WID,
		FormType: req.FormType,
		Side:     side,
		HasSide:  true,
		Err:      err,
	}
}

// RequestError builds a DocumentError that is not specific to one page.
func RequestError(op string, req DocumentRequest, err error) *DocumentError {
	return &DocumentError{
		Op:       op,
		WID:      req.WID,
		FormType: req.FormType,
		Err:      err,
	}
}
