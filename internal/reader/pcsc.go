// Package reader connects to a contact card through PC/SC.
package reader

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ebfe/scard"
	"github.com/gregLibert/emv-reader/internal/config"
)

var (
	ErrNoReader    = errors.New("no smart card reader found")
	ErrNoCard      = errors.New("no card present")
	ErrUnknownName = errors.New("no reader matches the configured name")
)

// Reader is an open card connection. It implements iso7816.Transmitter.
type Reader struct {
	Name string

	ctx    *scard.Context
	card   *scard.Card
	logger *slog.Logger
}

// Open establishes a PC/SC context, picks the reader, waits for a card and
// connects to it. The caller must Close the Reader.
func Open(cfg config.ReaderConfig, logger *slog.Logger) (*Reader, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("establishing context: %w", err)
	}

	r := &Reader{ctx: ctx, logger: logger}
	if err := r.connect(cfg); err != nil {
		if relErr := ctx.Release(); relErr != nil {
			logger.Warn("failed to release context during error handling", "error", relErr)
		}
		return nil, err
	}
	return r, nil
}

func (r *Reader) connect(cfg config.ReaderConfig) error {
	readers, err := r.ctx.ListReaders()
	if err != nil {
		return fmt.Errorf("listing readers: %w", err)
	}

	name, err := pickReader(readers, cfg.Name)
	if err != nil {
		return err
	}
	r.Name = name
	r.logger.Info("using reader", "reader", name)

	if err := r.waitForCard(cfg.WaitTimeout); err != nil {
		return err
	}

	card, err := r.ctx.Connect(name, scard.ShareShared, protocol(cfg.Protocol))
	if err != nil {
		return fmt.Errorf("connecting to card in %s: %w", name, err)
	}
	r.card = card

	if status, err := card.Status(); err == nil {
		r.logger.Debug("card connected", "atr", fmt.Sprintf("%X", status.Atr), "protocol", status.ActiveProtocol)
	}
	return nil
}

// pickReader returns the first reader whose name contains want, or the first
// reader when want is empty.
func pickReader(readers []string, want string) (string, error) {
	if len(readers) == 0 {
		return "", ErrNoReader
	}
	if want == "" {
		return readers[0], nil
	}
	for _, name := range readers {
		if strings.Contains(strings.ToLower(name), strings.ToLower(want)) {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %q in %v", ErrUnknownName, want, readers)
}

// waitForCard blocks until a card is present. A negative timeout waits
// forever.
func (r *Reader) waitForCard(timeout time.Duration) error {
	states := []scard.ReaderState{
		{Reader: r.Name, CurrentState: scard.StateUnaware},
	}

	// The first call reports the current state without blocking.
	if err := r.ctx.GetStatusChange(states, 0); err != nil && !errors.Is(err, scard.ErrTimeout) {
		return fmt.Errorf("reading reader state: %w", err)
	}
	if states[0].EventState&scard.StatePresent != 0 {
		return nil
	}

	r.logger.Info("waiting for card", "reader", r.Name, "timeout", timeout)
	deadline := time.Now().Add(timeout)
	for {
		states[0].CurrentState = states[0].EventState &^ scard.StateChanged

		wait := time.Duration(-1)
		if timeout >= 0 {
			wait = time.Until(deadline)
			if wait <= 0 {
				return fmt.Errorf("%w after %s", ErrNoCard, timeout)
			}
		}

		err := r.ctx.GetStatusChange(states, wait)
		if errors.Is(err, scard.ErrTimeout) {
			return fmt.Errorf("%w after %s", ErrNoCard, timeout)
		}
		if err != nil {
			return fmt.Errorf("waiting for card: %w", err)
		}
		if states[0].EventState&scard.StatePresent != 0 {
			return nil
		}
	}
}

func protocol(name string) scard.Protocol {
	switch name {
	case "t0":
		return scard.ProtocolT0
	case "t1":
		return scard.ProtocolT1
	default:
		// Force T=0 or T=1 to avoid "Parameter Incorrect" errors (Error 57)
		return scard.ProtocolT0 | scard.ProtocolT1
	}
}

// Transmit sends one command APDU and returns the raw response.
func (r *Reader) Transmit(cmd []byte) ([]byte, error) {
	return r.card.Transmit(cmd)
}

// Close leaves the card powered and releases the context.
func (r *Reader) Close() error {
	var errs []error
	if r.card != nil {
		if err := r.card.Disconnect(scard.LeaveCard); err != nil {
			errs = append(errs, fmt.Errorf("disconnecting card: %w", err))
		}
	}
	if err := r.ctx.Release(); err != nil {
		errs = append(errs, fmt.Errorf("releasing context: %w", err))
	}
	return errors.Join(errs...)
}
