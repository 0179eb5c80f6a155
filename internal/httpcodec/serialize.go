package httpcodec

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wxggg/libio-go/internal/buffer"
)

// dateFormat mirrors net/http.TimeFormat without importing the whole
// package just for the constant.
const dateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// SendTo serialises m's firstline, headers and body into buf. For a
// response it first applies FillResponseDefaults.
func (m *Message) SendTo(buf *buffer.Buffer) {
	if m.Kind == KindResponse {
		m.FillResponseDefaults()
	}
	m.SendHead(buf)
	if m.Body != nil && m.Body.Len() > 0 {
		buf.PushFrom(m.Body, m.Body.Len())
	}
}

// SendHead pushes the firstline and headers (terminated by the blank line)
// without touching the body. Used directly by a streamed chunked response,
// whose body is pushed incrementally after the head rather than all at once.
func (m *Message) SendHead(buf *buffer.Buffer) {
	buf.PushString(m.firstLine())
	buf.PushString("\r\n")
	for _, f := range m.Header {
		if f.Value == "" {
			continue
		}
		buf.PushString(f.Name)
		buf.PushString(": ")
		buf.PushString(f.Value)
		buf.PushString("\r\n")
	}
	buf.PushString("\r\n")
}

func (m *Message) firstLine() string {
	if m.Kind == KindRequest {
		uri := m.RawURI
		if uri == "" {
			uri = m.Path
			if m.Query != "" {
				uri += "?" + m.Query
			}
		}
		return fmt.Sprintf("%s %s HTTP/%d.%d", m.Method, uri, m.Major, m.Minor)
	}
	return fmt.Sprintf("HTTP/%d.%d %d %s", m.Major, m.Minor, m.Code, m.Reason)
}

// FillResponseDefaults fills in Date, Connection and Content-Type where the
// caller left them unset, and, whenever the body is non-empty, sets
// Content-Length to the body length (replacing any value the caller set).
// These are the same defaults SendTo applies. Exported so a streamed response (chunked) can apply the
// Date/Connection half of these defaults via SendHead before any body bytes
// exist (Content-Length/Content-Type are skipped when Body is empty, which
// is always true for a chunk-started response).
func (m *Message) FillResponseDefaults() {
	isOneOne := m.Major == 1 && m.Minor == 1
	if isOneOne {
		if _, ok := m.Header.Get("Date"); !ok {
			m.Header.Set("Date", time.Now().UTC().Format(dateFormat))
		}
	}
	if _, ok := m.Header.Get("Connection"); !ok && isOneOne {
		m.Header.Set("Connection", "keep-alive")
	}
	if m.Body != nil && m.Body.Len() > 0 {
		m.Header.Set("Content-Length", strconv.Itoa(m.Body.Len()))
		if _, ok := m.Header.Get("Content-Type"); !ok {
			m.Header.Set("Content-Type", "text/html; charset=utf-8")
		}
	}
}

// KeepAlive reports whether the connection should stay open after this
// message, per the Connection header (defaulting to the protocol version's
// own persistence rule when the header is absent).
func (m *Message) KeepAlive() bool {
	if v, ok := m.Header.Get("Connection"); ok {
		trimmed := strings.TrimSpace(v)
		switch {
		case strings.EqualFold(trimmed, "close"):
			return false
		case strings.EqualFold(trimmed, "keep-alive"):
			return true
		}
	}
	return m.Major == 1 && m.Minor == 1
}
