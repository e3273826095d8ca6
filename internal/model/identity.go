package model

import (
	"errors"
	"fmt"
	"strings"
)

// WIDLength is the number of digits in a WID.
const WIDLength = 10

// Input validation errors. Both are recovered locally by reprompting.
var (
	// ErrInvalidWID is returned when a WID is not exactly ten ASCII digits.
	ErrInvalidWID = errors.New("invalid WID: must be a 10-digit number")

	// ErrInvalidFormType is returned for anything other than "2" or "3".
	ErrInvalidFormType = errors.New("invalid form type: must be 2 or 3")
)

// WID is the 10-digit numeric identifier of a document subject.
// The zero value is the empty WID and is never valid.
type WID string

// ParseWID validates s and returns it as a WID.
// Surrounding whitespace is ignored; everything else must be a digit.
func ParseWID(s string) (WID, error) {
	s = strings.TrimSpace(s)
	if len(s) != WIDLength {
		return "", ErrInvalidWID
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return "", ErrInvalidWID
		}
	}
	return WID(s), nil
}

// String returns the WID digits.
func (w WID) String() string {
	return string(w)
}

// IsZero reports whether no WID has been set.
func (w WID) IsZero() bool {
	return w == ""
}

// FormType identifies a document template. Each form type has its own
// front and back redaction overlay.
type FormType int

const (
	// Form2 is form template number 2.
	Form2 FormType = 2

	// Form3 is form template number 3.
	Form3 FormType = 3
)

// ParseFormType accepts exactly "2" or "3".
func ParseFormType(s string) (FormType, error) {
	switch strings.TrimSpace(s) {
	case "2":
		return Form2, nil
	case "3":
		return Form3, nil
	default:
		return 0, ErrInvalidFormType
	}
}

// Valid reports whether f is a known form type.
func (f FormType) Valid() bool {
	return f == Form2 || f == Form3
}

// String returns the form number as used in file names ("2" or "3").
func (f FormType) String() string {
	return fmt.Sprintf("%d", int(f))
}
