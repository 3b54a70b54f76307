package iso7816

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

// MockCard is a scripted Transmitter. Commands are matched on their exact
// bytes, written as hex. Each command owns a queue of replies: replies are
// consumed in order and the last one repeats. Unscripted commands get
// Fallback.
type MockCard struct {
	Fallback StatusWord

	mu        sync.Mutex
	responses map[string][][]byte
	failures  map[string]error
	sent      [][]byte
}

// NewMockCard returns a card answering 6A82 to anything unscripted.
func NewMockCard() *MockCard {
	return &MockCard{
		Fallback:  SW_ERR_FILE_NOT_FOUND,
		responses: make(map[string][][]byte),
		failures:  make(map[string]error),
	}
}

// On scripts the replies to a command. Spaces are allowed in both.
func (m *MockCard) On(command string, replies ...string) *MockCard {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := normalizeHex(command)
	for _, r := range replies {
		raw, err := hex.DecodeString(normalizeHex(r))
		if err != nil {
			panic(fmt.Sprintf("mock card: invalid reply %q: %v", r, err))
		}
		m.responses[key] = append(m.responses[key], raw)
	}
	return m
}

// Fail makes every transmission of command return err.
func (m *MockCard) Fail(command string, err error) *MockCard {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[normalizeHex(command)] = err
	return m
}

// Transmit implements Transmitter. Commands that do not parse as short APDUs
// are rejected.
func (m *MockCard) Transmit(cmd []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, append([]byte(nil), cmd...))

	if _, err := ParseCommandAPDU(cmd); err != nil {
		return nil, fmt.Errorf("mock card: malformed command %X: %w", cmd, err)
	}

	key := strings.ToUpper(hex.EncodeToString(cmd))
	if err, ok := m.failures[key]; ok {
		return nil, err
	}

	queue := m.responses[key]
	if len(queue) == 0 {
		return []byte{m.Fallback.SW1(), m.Fallback.SW2()}, nil
	}
	reply := queue[0]
	if len(queue) > 1 {
		m.responses[key] = queue[1:]
	}
	return append([]byte(nil), reply...), nil
}

// Sent returns every transmitted command as upper-case hex, in order.
func (m *MockCard) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.sent))
	for i, c := range m.sent {
		out[i] = strings.ToUpper(hex.EncodeToString(c))
	}
	return out
}

// Commands returns the transmitted commands decoded. Commands that failed to
// parse are left out.
func (m *MockCard) Commands() []*CommandAPDU {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*CommandAPDU
	for _, c := range m.sent {
		if cmd, err := ParseCommandAPDU(c); err == nil {
			out = append(out, cmd)
		}
	}
	return out
}

func normalizeHex(s string) string {
	return strings.ToUpper(strings.ReplaceAll(s, " ", ""))
}
