package iso7816

// A Transaction is one physical exchange: a command and the card's reply.
// A Trace is every transaction performed for one logical command, which may
// span several exchanges when the card answers 6CXX (resend with the right
// Le) or 61XX (collect the data with GET RESPONSE).

// Transaction represents a completed Command-Response pair.
type Transaction struct {
	Command  *CommandAPDU
	Response *ResponseAPDU
}

// IsSuccess checks if the transaction ended with a successful status.
// It returns false if the response is missing.
func (t *Transaction) IsSuccess() bool {
	if t.Response == nil {
		return false
	}
	return t.Response.Status.IsSuccess()
}

// Trace is a sequence of transactions in the order they were sent.
type Trace []Transaction

// Last returns the final transaction of the trace, nil when empty.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsSuccess checks the final transaction only. Intermediate 61XX and 6CXX
// replies do not count.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	if last == nil {
		return false
	}
	return last.IsSuccess()
}

// Status returns the status word of the final transaction, or zero for an
// empty or incomplete trace.
func (t Trace) Status() StatusWord {
	last := t.Last()
	if last == nil || last.Response == nil {
		return 0
	}
	return last.Response.Status
}

// Data returns the response data of the logical command: the data of every
// successful reply concatenated in order, so that a chain of GET RESPONSE
// answers yields one payload.
func (t Trace) Data() []byte {
	var out []byte
	for _, tx := range t {
		if tx.IsSuccess() {
			out = append(out, tx.Response.Data...)
		}
	}
	return out
}
