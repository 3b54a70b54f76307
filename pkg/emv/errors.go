package emv

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gregLibert/emv-reader/pkg/iso7816"
)

// Protocol failure reasons, matched with errors.Is through a *ProtocolError.
var (
	ErrUnexpectedStatus   = errors.New("unexpected status word")
	ErrMissingData        = errors.New("missing mandatory data object")
	ErrUnexpectedTemplate = errors.New("unexpected template tag")
	ErrMalformedAFL       = errors.New("malformed application file locator")
)

// ProtocolError reports a card answer the discovery flow cannot continue
// with. Status is zero when the failure is not tied to a status word.
type ProtocolError struct {
	Step   State
	Status iso7816.StatusWord
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	var sb strings.Builder
	sb.WriteString("emv: ")
	sb.WriteString(e.Step.String())
	sb.WriteString(": ")
	sb.WriteString(e.Reason)
	if e.Status != 0 {
		fmt.Fprintf(&sb, " (SW %04X %s)", uint16(e.Status), e.Status)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func statusError(step State, status iso7816.StatusWord, reason string) *ProtocolError {
	return &ProtocolError{Step: step, Status: status, Reason: reason, Err: ErrUnexpectedStatus}
}

// IsProtocolError reports whether err carries a *ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
