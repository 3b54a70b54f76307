package iso7816

import (
	"fmt"
	"log/slog"
)

// The Client hides the T=0 transport conventions from callers:
//
//   - 6CXX: the command is resent once with Le = XX.
//   - 61XX: GET RESPONSE is sent with Le = XX on the same logical channel,
//     and again while the card keeps answering 61XX, up to MaxGetResponse.
//
// Send returns the Trace of every exchange made for the logical command.

// DefaultMaxGetResponse bounds a 61XX chain.
const DefaultMaxGetResponse = 16

// Transmitter abstracts the physical card connection. *scard.Card satisfies it.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// TransmitError reports a transport failure. Transport failures are never
// retried.
type TransmitError struct {
	Command []byte
	Err     error
}

func (e *TransmitError) Error() string {
	return fmt.Sprintf("transmit %X: %v", e.Command, e.Err)
}

func (e *TransmitError) Unwrap() error { return e.Err }

// Client manages the high-level communication with the card.
type Client struct {
	Card           Transmitter
	Logger         *slog.Logger
	MaxGetResponse int
}

// NewClient creates a Client logging through slog.Default.
func NewClient(card Transmitter) *Client {
	return &Client{
		Card:           card,
		Logger:         slog.Default(),
		MaxGetResponse: DefaultMaxGetResponse,
	}
}

// Send transmits a command and handles protocol logic (61xx, 6Cxx).
// Status words are outcomes, not errors: a non-success final status comes
// back in the Trace with a nil error.
func (c *Client) Send(cmd *CommandAPDU) (Trace, error) {
	var trace Trace

	resp, err := c.exchange(cmd, &trace)
	if err != nil {
		return trace, err
	}

	if resp.Status.IsWrongLength() {
		resp, err = c.exchange(cmd.WithNe(shortLe(resp.Status.SW2())), &trace)
		if err != nil {
			return trace, err
		}
	}

	if resp.Status.IsBytesAvailable() {
		// GET RESPONSE stays on the logical channel of the original command.
		cls := cmd.Class
		cls.IsChained = false
		ins := MustInstruction(INS_GET_RESPONSE)

		for i := 0; resp.Status.IsBytesAvailable(); i++ {
			if i == c.maxGetResponse() {
				c.logger().Warn("GET RESPONSE chain truncated", "limit", c.maxGetResponse())
				break
			}
			getResp := NewCommandAPDU(cls, ins, 0x00, 0x00, nil, shortLe(resp.Status.SW2()))
			resp, err = c.exchange(getResp, &trace)
			if err != nil {
				return trace, err
			}
		}
	}

	return trace, nil
}

func (c *Client) exchange(cmd *CommandAPDU, trace *Trace) (*ResponseAPDU, error) {
	raw, err := cmd.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding error: %w", err)
	}

	rawResp, err := c.Card.Transmit(raw)
	if err != nil {
		c.logger().Debug("apdu transmit failed", "command", fmt.Sprintf("%X", raw), "error", err)
		return nil, &TransmitError{Command: raw, Err: err}
	}

	resp, err := ParseResponseAPDU(rawResp)
	if err != nil {
		return nil, &TransmitError{Command: raw, Err: err}
	}

	c.logger().Debug("apdu exchange",
		"ins", cmd.Instruction.Raw.String(),
		"command", fmt.Sprintf("%X", raw),
		"data", fmt.Sprintf("%X", resp.Data),
		"sw", fmt.Sprintf("%04X", uint16(resp.Status)),
	)

	*trace = append(*trace, Transaction{Command: cmd, Response: resp})
	return resp, nil
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c *Client) maxGetResponse() int {
	if c.MaxGetResponse <= 0 {
		return DefaultMaxGetResponse
	}
	return c.MaxGetResponse
}
