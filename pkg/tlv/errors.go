package tlv

import (
	"errors"
	"fmt"
)

// Parse failure reasons. Every decoding failure is a *ParseError wrapping
// exactly one of these, so callers can match with errors.Is.
var (
	ErrTooShort         = errors.New("bytes array is too short")
	ErrLengthTooLarge   = errors.New("length value is too large")
	ErrIndefiniteLength = errors.New("indefinite length form is not supported")
	ErrPrematureEnd     = errors.New("premature end of bytes")
	ErrInconsistent     = errors.New("inconsistent data")
)

// ErrNotFound is returned by Part and Find when no child carries the tag.
var ErrNotFound = errors.New("tag not found")

// ParseError reports a malformed byte stream.
type ParseError struct {
	Offset int   // position in the decoded buffer where the problem was seen
	Err    error // one of the Err* reasons above
	Cause  error // detail only, not unwrapped
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("tlv: parse failed at offset %d: %v", e.Offset, e.Err)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes the reason only. A constraint violation met while decoding
// stays a parse failure for the caller; its text is kept in Cause.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// ConstraintError reports a node used or built against its tag encoding.
// It is never a parse failure on its own.
type ConstraintError struct {
	Tag    Tag
	Op     string
	Want   Encoding
	Reason string
}

func (e *ConstraintError) Error() string {
	if len(e.Tag) == 0 {
		return fmt.Sprintf("tlv: %s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("tlv: %s on tag %s: %s (want %s)", e.Op, e.Tag, e.Reason, e.Want)
}

func (e *ConstraintError) Is(target error) bool {
	_, ok := target.(*ConstraintError)
	return ok
}

func parseErr(offset int, reason error) *ParseError {
	return &ParseError{Offset: offset, Err: reason}
}
