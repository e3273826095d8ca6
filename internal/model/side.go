package model

import "fmt"

// Side is the face of a physical sheet a page image belongs to.
type Side int

const (
	// SideFront is the first face of a sheet in scan order.
	SideFront Side = iota

	// SideBack is the second face of a sheet in scan order.
	SideBack
)

// Sides lists both sides in scan order.
var Sides = []Side{SideFront, SideBack}

// SideForPosition returns the side of the page at the zero-based position i
// of a scan stream. The 1st, 3rd, 5th... pages are fronts and the 2nd, 4th,
// 6th... are backs. A duplex device interleaves one front and one back per
// sheet, so the same rule labels duplex output.
func SideForPosition(i int) Side {
	if i%2 == 0 {
		return SideFront
	}
	return SideBack
}

// String returns "front" or "back".
func (s Side) String() string {
	switch s {
	case SideFront:
		return "front"
	case SideBack:
		return "back"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Side) UnmarshalText(text []byte) error {
	switch string(text) {
	case "front":
		*s = SideFront
	case "back":
		*s = SideBack
	default:
		return fmt.Errorf("unknown side %q", string(text))
	}
	return nil
}
