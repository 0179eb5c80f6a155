// Package httpcodec implements the HTTP/1.x wire codec: a single state
// machine that parses both requests and responses (selected by Kind) and
// serialises a Message back into a buffer.Buffer.
package httpcodec

import (
	"strings"

	"github.com/wxggg/libio-go/internal/buffer"
)

// Kind selects which firstline grammar Parse applies.
type Kind int

const (
	KindRequest Kind = iota
	KindResponse
)

// Outcome is Parse's result.
type Outcome int

const (
	// NeedMore means the buffer was fully consumed but the message is
	// incomplete; the caller should re-invoke Parse once more bytes arrive.
	NeedMore Outcome = iota
	// AllRead means the message is complete.
	AllRead
	// Corrupted means the peer sent bytes that don't parse as HTTP/1.x; the
	// connection should be closed.
	Corrupted
	// Canceled means the message was abandoned with Message.Cancel; Parse
	// returns it without consuming any bytes.
	Canceled
)

func (o Outcome) String() string {
	switch o {
	case NeedMore:
		return "NEEDMORE"
	case AllRead:
		return "ALLREAD"
	case Corrupted:
		return "CORRUPTED"
	case Canceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

type parseState int

const (
	stateFirstLine parseState = iota
	stateHeaders
	stateBody
	stateChunkHeader
	stateChunkBody
	stateTrailer
	stateDone
)

type bodyMode int

const (
	bodyNone bodyMode = iota
	bodyChunked
	bodyContentLength
	bodyUntilClose
)

// Field is one ordered, case-preserved header entry.
type Field struct {
	Name  string
	Value string
}

// Header is an ordered, case-preserving multimap, matching the wire's own
// rules: lookups are case-insensitive (per RFC 7230) but the original casing
// a peer sent is preserved for re-serialisation or logging.
type Header []Field

// Get returns the first value for name (case-insensitive) and whether it was
// present.
func (h Header) Get(name string) (string, bool) {
	for _, f := range h {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Set replaces the first matching field's value, or appends a new one if
// name is not yet present.
func (h *Header) Set(name, value string) {
	for i := range *h {
		if strings.EqualFold((*h)[i].Name, name) {
			(*h)[i].Value = value
			return
		}
	}
	*h = append(*h, Field{Name: name, Value: value})
}

// Add appends a new field without checking for an existing one, preserving
// repeated-header semantics (e.g. multiple Set-Cookie lines).
func (h *Header) Add(name, value string) {
	*h = append(*h, Field{Name: name, Value: value})
}

// Message is both the request and the response representation; Kind picks
// which fields the firstline grammar populates.
type Message struct {
	Kind Kind

	// Request firstline.
	Method   string
	Path     string
	Query    string
	RawURI   string
	Major    int
	Minor    int

	// Response firstline.
	Code   int
	Reason string

	Header Header
	Body   *buffer.Buffer

	state    parseState
	mode     bodyMode
	ntoread  int64
	closed   bool // CloseBody was called: until-close body is now complete
	canceled bool
	lastHdr  int // index of most recent header field, for folding continuations
}

// New returns a Message ready to Parse one message of the given kind.
func New(kind Kind) *Message {
	return &Message{Kind: kind, Body: buffer.New(), state: stateFirstLine}
}

// Reset clears m so it can parse the next message on the same connection,
// reusing its Body's backing array.
func (m *Message) Reset() {
	kind := m.Kind
	body := m.Body
	body.Clear()
	*m = Message{Kind: kind, Body: body, state: stateFirstLine}
}

// CloseBody signals that the peer's connection has reached EOF while this
// message's body is in until-close mode. Parse must be called once more
// afterward to observe the resulting AllRead outcome.
func (m *Message) CloseBody() {
	m.closed = true
}

// Cancel marks the message as abandoned: the next Parse call (and every one
// after it) returns Canceled without consuming any bytes. Used by a
// connection driver that is tearing down a half-parsed message (e.g. the
// peer reset the connection) and wants the codec's caller to see an outcome
// distinct from a parse error.
func (m *Message) Cancel() {
	m.canceled = true
}

// HasBody reports whether the firstline/headers parsed so far imply a body
// will follow (used by the connection driver to decide how to read chunked
// vs fixed-length vs until-close payloads further upstream, if ever needed).
func (m *Message) HasBody() bool {
	return m.mode != bodyNone
}
