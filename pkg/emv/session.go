package emv

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/gregLibert/emv-reader/pkg/iso7816"
	"github.com/gregLibert/emv-reader/pkg/tlv"
)

// DirectoryName is the DF name of the contact Payment System Environment.
const DirectoryName = "1PAY.SYS.DDF01"

// DefaultMaxDirectoryRecords bounds the directory scan. An SFI holds at most
// 30 records.
const DefaultMaxDirectoryRecords = 30

// DefaultCandidateAIDs are tried in order when the card has no PSE.
var DefaultCandidateAIDs = [][]byte{
	{0xA0, 0x00, 0x00, 0x00, 0x03, 0x20, 0x10}, // Visa Electron
	{0xA0, 0x00, 0x00, 0x00, 0x03, 0x10, 0x10}, // Visa
	{0xA0, 0x00, 0x00, 0x00, 0x04, 0x10, 0x10}, // Mastercard
}

// State is a step of the discovery flow.
type State int

const (
	StateLocateDirectory State = iota
	StateReadDirectory
	StateGuessAID
	StateSelectApplication
	StateProcessingOptions
	StateReadRecords
	StateCompleted
	StateFailed
)

var stateNames = map[State]string{
	StateLocateDirectory:   "locate directory",
	StateReadDirectory:     "read directory",
	StateGuessAID:          "guess AID",
	StateSelectApplication: "select application",
	StateProcessingOptions: "get processing options",
	StateReadRecords:       "read records",
	StateCompleted:         "completed",
	StateFailed:            "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// SkippedRecord is an AFL record left out of the result.
type SkippedRecord struct {
	SFI    byte
	Record byte
	Status iso7816.StatusWord
	Err    error
}

func (r SkippedRecord) String() string {
	if r.Status != iso7816.SW_NO_ERROR {
		return fmt.Sprintf("SFI %d record %d: SW %04X: %v", r.SFI, r.Record, uint16(r.Status), r.Err)
	}
	return fmt.Sprintf("SFI %d record %d: %v", r.SFI, r.Record, r.Err)
}

// Result is what one discovery run learned about the card. Fields are
// filled as the flow progresses, so a failed run still reports what was read
// before the failure.
type Result struct {
	SessionID uuid.UUID
	State     State

	Candidates [][]byte
	AID        []byte
	Label      []byte
	Language   []byte
	PDOL       DOL

	AIP     *AIP
	AFL     []AFLEntry
	Objects []tlv.Node
	Skipped []SkippedRecord

	Err error
}

// Found reports whether an application was selected.
func (r *Result) Found() bool {
	return len(r.AID) > 0
}

// Option configures a Session.
type Option func(*Session)

// WithClass sets the CLA used for SELECT and READ RECORD.
func WithClass(cla iso7816.Class) Option {
	return func(s *Session) { s.cla = cla }
}

// WithCandidateAIDs replaces the AIDs tried when there is no PSE.
func WithCandidateAIDs(aids ...[]byte) Option {
	return func(s *Session) { s.candidates = aids }
}

// WithMaxDirectoryRecords bounds the number of directory records read.
func WithMaxDirectoryRecords(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxDirectoryRecords = n
		}
	}
}

// WithAbortOnRecordError makes the first unreadable AFL record fail the
// session, as a payment terminal would. By default such records are skipped.
func WithAbortOnRecordError(abort bool) Option {
	return func(s *Session) { s.abortOnRecordError = abort }
}

// WithLogger sets the logger. A session attribute is added to it.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTraceWriter receives a report of every SELECT, GET PROCESSING OPTIONS
// and READ RECORD exchange.
func WithTraceWriter(w io.Writer) Option {
	return func(s *Session) { s.trace = w }
}

// Session runs the EMV application discovery flow over a Client:
//
//	locate directory -> read directory ----------> select application
//	        \-> guess AID (6A82) -------------------/        |
//	                                         get processing options
//	                                                         |
//	                                                  read records
//
// Every step returns the next state. Status words drive the flow; transport
// failures end it at once.
type Session struct {
	client              *iso7816.Client
	cla                 iso7816.Class
	candidates          [][]byte
	maxDirectoryRecords int
	abortOnRecordError  bool
	logger              *slog.Logger
	trace               io.Writer

	result *Result
	log    *slog.Logger
	sfi    byte
}

// NewSession prepares a discovery session. Nothing is sent before Run.
func NewSession(client *iso7816.Client, opts ...Option) *Session {
	cla, _ := iso7816.NewClass(0x00)
	s := &Session{
		client:              client,
		cla:                 cla,
		candidates:          DefaultCandidateAIDs,
		maxDirectoryRecords: DefaultMaxDirectoryRecords,
		logger:              slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run drives the card to a terminal state. The returned error is Result.Err;
// the Result is never nil.
func (s *Session) Run() (*Result, error) {
	s.result = &Result{SessionID: uuid.New()}
	s.log = s.logger.With("session", s.result.SessionID.String())
	s.sfi = 0

	state := StateLocateDirectory
	for state != StateCompleted && state != StateFailed {
		s.log.Debug("emv step", "state", state.String())

		next, err := s.step(state)
		if err != nil {
			s.log.Error("emv discovery failed", "state", state.String(), "error", err)
			s.result.Err = err
			next = StateFailed
		}
		state = next
	}

	s.result.State = state
	s.log.Info("emv discovery finished",
		"state", state.String(),
		"aid", fmt.Sprintf("%X", s.result.AID),
		"objects", len(s.result.Objects),
		"skipped", len(s.result.Skipped),
	)
	return s.result, s.result.Err
}

func (s *Session) step(state State) (State, error) {
	switch state {
	case StateLocateDirectory:
		return s.locateDirectory()
	case StateReadDirectory:
		return s.readDirectory()
	case StateGuessAID:
		return s.guessAID()
	case StateSelectApplication:
		return s.selectApplication()
	case StateProcessingOptions:
		return s.processingOptions()
	case StateReadRecords:
		return s.readRecords()
	default:
		return StateFailed, fmt.Errorf("emv: no transition from state %s", state)
	}
}

func (s *Session) locateDirectory() (State, error) {
	trace, err := s.selectFile([]byte(DirectoryName))
	if err != nil {
		return StateFailed, err
	}

	switch status := trace.Status(); {
	case status == iso7816.SW_ERR_FILE_NOT_FOUND:
		s.log.Info("no payment system directory, guessing AIDs")
		return StateGuessAID, nil
	case !trace.IsSuccess():
		return StateFailed, statusError(StateLocateDirectory, status, "SELECT "+DirectoryName)
	}

	fci, err := ParseFCI(trace.Data())
	if err != nil {
		return StateFailed, &ProtocolError{Step: StateLocateDirectory, Reason: "directory FCI", Err: err}
	}
	pt, err := fci.Proprietary()
	if err != nil {
		return StateFailed, &ProtocolError{Step: StateLocateDirectory, Reason: "directory FCI", Err: err}
	}
	if len(pt.SFI) == 0 {
		return StateFailed, &ProtocolError{
			Step:   StateLocateDirectory,
			Reason: "directory FCI has no SFI (A5/88)",
			Err:    ErrMissingData,
		}
	}

	s.sfi = pt.SFI[0]
	s.log.Debug("payment system directory found", "sfi", s.sfi)
	return StateReadDirectory, nil
}

func (s *Session) readDirectory() (State, error) {
	for n := 1; n <= s.maxDirectoryRecords; n++ {
		trace, err := s.readRecord(s.sfi, byte(n))
		if err != nil {
			return StateFailed, err
		}
		if !trace.IsSuccess() {
			s.log.Debug("end of directory", "record", n, "sw", trace.Status().String())
			break
		}

		data := trace.Data()
		if len(data) == 0 {
			continue
		}

		record, err := ParseDirectoryRecord(data)
		if err != nil {
			return StateFailed, &ProtocolError{
				Step:   StateReadDirectory,
				Reason: fmt.Sprintf("directory record %d", n),
				Err:    err,
			}
		}
		s.result.Candidates = append(s.result.Candidates, record.AIDs()...)
	}

	if len(s.result.Candidates) == 0 {
		s.log.Info("directory lists no application")
		return StateCompleted, nil
	}

	s.result.AID = s.result.Candidates[0]
	return StateSelectApplication, nil
}

func (s *Session) guessAID() (State, error) {
	for _, aid := range s.candidates {
		trace, err := s.selectFile(aid)
		if err != nil {
			s.log.Warn("candidate AID not reachable", "aid", fmt.Sprintf("%X", aid), "error", err)
			continue
		}
		if trace.Status() == iso7816.SW_NO_ERROR {
			s.result.AID = bytes.Clone(aid)
			return StateSelectApplication, nil
		}
	}

	s.log.Info("no candidate AID answered")
	return StateCompleted, nil
}

func (s *Session) selectApplication() (State, error) {
	trace, err := s.selectFile(s.result.AID)
	if err != nil {
		return StateFailed, err
	}
	if !trace.IsSuccess() {
		return StateFailed, statusError(StateSelectApplication, trace.Status(), fmt.Sprintf("SELECT %X", s.result.AID))
	}

	fail := func(err error) (State, error) {
		return StateFailed, &ProtocolError{Step: StateSelectApplication, Reason: "application FCI", Err: err}
	}

	fci, err := ParseFCI(trace.Data())
	if err != nil {
		return fail(err)
	}
	pt, err := fci.Proprietary()
	if err != nil {
		return fail(err)
	}

	s.result.Label = pt.ApplicationLabel
	s.result.Language = pt.LanguagePreference
	if s.result.PDOL, err = ParseDOL(pt.PDOL); err != nil {
		return fail(err)
	}

	s.log.Debug("application selected",
		"aid", fmt.Sprintf("%X", s.result.AID),
		"label", FormatText.Display(pt.ApplicationLabel),
		"pdol", s.result.PDOL.String(),
	)
	return StateProcessingOptions, nil
}

func (s *Session) processingOptions() (State, error) {
	trace, err := s.client.Send(NewGPOCommand(s.result.PDOL))
	if err != nil {
		return StateFailed, fmt.Errorf("%s: %w", StateProcessingOptions, err)
	}
	s.report(describeExchange("GET PROCESSING OPTIONS", trace))

	if !trace.IsSuccess() {
		return StateFailed, statusError(StateProcessingOptions, trace.Status(), "GET PROCESSING OPTIONS")
	}

	po, err := ParseProcessingOptions(trace.Data())
	if err != nil {
		return StateFailed, &ProtocolError{Step: StateProcessingOptions, Reason: "GPO response", Err: err}
	}

	s.result.AIP = &po.AIP
	s.result.AFL = po.AFL
	s.log.Debug("processing options", "format", po.Template.String(), "aip", po.AIP.String(), "afl_entries", len(po.AFL))
	return StateReadRecords, nil
}

func (s *Session) readRecords() (State, error) {
	for _, entry := range s.result.AFL {
		for _, n := range entry.Records() {
			trace, err := s.readRecord(entry.SFI, n)
			if err != nil {
				return StateFailed, err
			}

			node, err := applicationRecord(trace)
			if err != nil {
				skipped := SkippedRecord{SFI: entry.SFI, Record: n, Status: trace.Status(), Err: err}
				if s.abortOnRecordError {
					return StateFailed, &ProtocolError{
						Step:   StateReadRecords,
						Status: skipped.Status,
						Reason: fmt.Sprintf("SFI %d record %d", entry.SFI, n),
						Err:    err,
					}
				}
				s.log.Warn("skipping record", "sfi", entry.SFI, "record", n, "error", err)
				s.result.Skipped = append(s.result.Skipped, skipped)
				continue
			}

			parts, _ := node.Parts()
			s.result.Objects = append(s.result.Objects, parts...)
		}
	}
	return StateCompleted, nil
}

// applicationRecord returns the 70 template of a READ RECORD answer.
func applicationRecord(trace iso7816.Trace) (tlv.Node, error) {
	if !trace.IsSuccess() {
		return tlv.Node{}, ErrUnexpectedStatus
	}
	node, _, err := tlv.Decode(trace.Data())
	if err != nil {
		return tlv.Node{}, err
	}
	if !node.Is(tagRecordTemplate) {
		return tlv.Node{}, fmt.Errorf("record tag %s, want 70: %w", node.Tag(), ErrUnexpectedTemplate)
	}
	return node, nil
}

func (s *Session) selectFile(name []byte) (iso7816.Trace, error) {
	trace, err := s.client.Send(iso7816.SelectByAID(s.cla, name))
	if err != nil {
		return trace, fmt.Errorf("select %X: %w", name, err)
	}
	if res, err := iso7816.NewSelectResult(trace); err == nil {
		s.report(res.Describe())
	}
	return trace, nil
}

func (s *Session) readRecord(sfi, n byte) (iso7816.Trace, error) {
	trace, err := s.client.Send(iso7816.ReadRecord(s.cla, sfi, n))
	if err != nil {
		return trace, fmt.Errorf("read record %d of SFI %d: %w", n, sfi, err)
	}
	if res, err := iso7816.NewReadRecordResult(trace); err == nil {
		s.report(res.Describe())
	}
	return trace, nil
}

func (s *Session) report(text string) {
	if s.trace == nil {
		return
	}
	if _, err := fmt.Fprintf(s.trace, "%s\n\n", text); err != nil {
		s.log.Warn("trace writer failed", "error", err)
	}
}

func describeExchange(title string, trace iso7816.Trace) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== %s ===\n", title)
	for i, tx := range trace {
		fmt.Fprintf(&sb, "[%d] %s\n    -> %s\n", i+1, tx.Command, tx.Response)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Describe renders the outcome of the run, data objects resolved through
// the tag dictionary.
func (r *Result) Describe() string {
	var sb strings.Builder

	sb.WriteString("=== EMV DISCOVERY REPORT ===\n")
	fmt.Fprintf(&sb, "Session:  %s\n", r.SessionID)
	fmt.Fprintf(&sb, "State:    %s\n", r.State)

	if !r.Found() {
		sb.WriteString("AID:      none found\n")
	} else {
		fmt.Fprintf(&sb, "AID:      %X\n", r.AID)
	}
	for i, aid := range r.Candidates {
		fmt.Fprintf(&sb, "    + Candidate %d: %X\n", i+1, aid)
	}
	if len(r.Label) > 0 {
		fmt.Fprintf(&sb, "Label:    %s\n", FormatText.Display(r.Label))
	}
	if len(r.Language) > 0 {
		fmt.Fprintf(&sb, "Language: %s\n", FormatText.Display(r.Language))
	}
	if len(r.PDOL) > 0 {
		fmt.Fprintf(&sb, "PDOL:     %s\n", r.PDOL)
	}

	if r.AIP != nil {
		fmt.Fprintf(&sb, "AIP:      %s\n", r.AIP)
		for _, f := range r.AIP.Flags() {
			mark := "[ ]"
			if f.Set {
				mark = "[x]"
			}
			fmt.Fprintf(&sb, "    %s %s\n", mark, f.Name)
		}
	}
	if len(r.AFL) > 0 {
		sb.WriteString("AFL:\n")
		for _, e := range r.AFL {
			fmt.Fprintf(&sb, "    + %s\n", e)
		}
	}

	if len(r.Objects) > 0 {
		sb.WriteString("Data Objects:\n")
		for _, obj := range r.Objects {
			fmt.Fprintf(&sb, "    - %s\n", Render(obj))
		}
	}
	if len(r.Skipped) > 0 {
		sb.WriteString("Skipped Records:\n")
		for _, sk := range r.Skipped {
			fmt.Fprintf(&sb, "    ! %s\n", sk)
		}
	}

	if r.Err != nil {
		fmt.Fprintf(&sb, "Error:    %v\n", r.Err)
	}

	return strings.TrimRight(sb.String(), "\n")
}

// TransportFailed reports whether the run ended on a card communication
// fault rather than on a card answer.
func (r *Result) TransportFailed() bool {
	var te *iso7816.TransmitError
	return errors.As(r.Err, &te)
}
