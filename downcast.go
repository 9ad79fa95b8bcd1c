package lockbox

import "fmt"

type (
	// Tag identifies a backend family. For any two Handles carrying equal
	// tags, their sub payloads are of the same backend-specific handle type
	Tag string

	// DowncastError reports an attempt to narrow a Handle to a backend
	// family it does not belong to. It signals a programming error, not a
	// transient condition
	DowncastError struct {
		Expected Tag
		Actual   Tag
	}
)

func (e *DowncastError) Error() string {
	return fmt.Sprintf(
		"downcast mismatch: expected tag %q, but handle carries %q",
		e.Expected, e.Actual,
	)
}

// Downcast narrows a generic Handle to the backend-specific handle type B.
// The tag must equal the one the Handle was constructed with; a factory
// that registered a payload of the wrong type for its tag reports as a
// mismatch as well
func Downcast[B any](tag Tag, h *Handle) (B, error) {
	if tag != h.tag {
		var zero B
		return zero, &DowncastError{Expected: tag, Actual: h.tag}
	}
	sub, ok := h.sub.(B)
	if !ok {
		var zero B
		return zero, &DowncastError{Expected: tag, Actual: h.tag}
	}
	return sub, nil
}
