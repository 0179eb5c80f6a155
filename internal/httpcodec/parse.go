package httpcodec

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/wxggg/libio-go/internal/buffer"
)

// Parse drives the state machine forward using whatever bytes are currently
// available in buf, popping only what it can fully interpret and leaving the
// remainder for the next call. It never blocks and never reads past what
// buf already holds.
func (m *Message) Parse(buf *buffer.Buffer) Outcome {
	if m.canceled {
		return Canceled
	}

	for {
		switch m.state {
		case stateFirstLine:
			line, ok := buf.PopLine()
			if !ok {
				return NeedMore
			}
			if !m.parseFirstLine(line) {
				return Corrupted
			}
			m.state = stateHeaders

		case stateHeaders:
			switch m.parseHeaderLines(buf) {
			case headerNeedMore:
				return NeedMore
			case headerCorrupted:
				return Corrupted
			case headerDone:
				if m.headersImplyNoBody() {
					m.state = stateDone
					continue
				}
				if !m.enterBody() {
					return Corrupted
				}
			}

		case stateChunkHeader:
			line, ok := buf.PopLine()
			if !ok {
				return NeedMore
			}
			line = strings.TrimSpace(line)
			if semi := strings.IndexByte(line, ';'); semi >= 0 {
				line = line[:semi] // chunk extensions are accepted but ignored
			}
			n, err := strconv.ParseInt(line, 16, 64)
			if err != nil || n < 0 {
				return Corrupted
			}
			if n == 0 {
				m.lastHdr = -1
				m.state = stateTrailer
			} else {
				m.ntoread = n
				m.state = stateChunkBody
			}

		case stateChunkBody:
			need := int(m.ntoread) + 2
			if buf.Len() < need {
				return NeedMore
			}
			m.Body.PushFrom(buf, int(m.ntoread))
			buf.Drain(2) // trailing CRLF after the chunk's data
			m.ntoread = -1
			m.state = stateChunkHeader

		case stateBody:
			switch m.mode {
			case bodyContentLength:
				if int64(buf.Len()) < m.ntoread {
					return NeedMore
				}
				m.Body.PushFrom(buf, int(m.ntoread))
				m.state = stateDone
			case bodyUntilClose:
				if buf.Len() > 0 {
					m.Body.PushFrom(buf, buf.Len())
				}
				if !m.closed {
					return NeedMore
				}
				m.state = stateDone
			default:
				m.state = stateDone
			}

		case stateTrailer:
			switch m.parseHeaderLines(buf) {
			case headerNeedMore:
				return NeedMore
			case headerCorrupted:
				return Corrupted
			case headerDone:
				m.state = stateDone
			}

		case stateDone:
			return AllRead
		}
	}
}

type headerResult int

const (
	headerNeedMore headerResult = iota
	headerDone
	headerCorrupted
)

// parseHeaderLines pops and interprets lines until either an empty line (the
// header block's terminator) or the buffer runs dry. Shared by the HEADERS
// and TRAILER states, which differ only in what happens after headerDone.
func (m *Message) parseHeaderLines(buf *buffer.Buffer) headerResult {
	for {
		line, ok := buf.PopLine()
		if !ok {
			return headerNeedMore
		}
		if line == "" {
			return headerDone
		}
		if line[0] == ' ' || line[0] == '\t' {
			if m.lastHdr < 0 || m.lastHdr >= len(m.Header) {
				return headerCorrupted
			}
			m.Header[m.lastHdr].Value += " " + strings.TrimLeft(line, " \t")
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return headerCorrupted
		}
		name := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if name == "" {
			return headerCorrupted
		}
		m.Header = append(m.Header, Field{Name: name, Value: value})
		m.lastHdr = len(m.Header) - 1
	}
}

func (m *Message) headersImplyNoBody() bool {
	if m.Kind == KindRequest {
		return m.Method != "POST"
	}
	return m.Code/100 == 1 || m.Code == 204 || m.Code == 304
}

// enterBody inspects the already-parsed headers to choose a body framing. It
// returns false when the framing itself is malformed (an unparsable or
// negative Content-Length).
func (m *Message) enterBody() bool {
	if te, ok := m.Header.Get("Transfer-Encoding"); ok && strings.EqualFold(strings.TrimSpace(te), "chunked") {
		m.mode = bodyChunked
		m.state = stateChunkHeader
		return true
	}
	if cl, ok := m.Header.Get("Content-Length"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || n < 0 {
			return false
		}
		m.mode = bodyContentLength
		m.ntoread = n
		m.state = stateBody
		return true
	}
	if m.Kind == KindResponse && m.Minor == 0 {
		m.mode = bodyUntilClose
		m.ntoread = -1
		m.state = stateBody
		return true
	}
	m.mode = bodyNone
	m.state = stateDone
	return true
}

func (m *Message) parseFirstLine(line string) bool {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		return false
	}
	switch m.Kind {
	case KindRequest:
		method, uri, proto := parts[0], parts[1], parts[2]
		switch method {
		case "GET", "POST", "HEAD":
		default:
			return false
		}
		major, minor, ok := parseProtocolVersion(proto)
		if !ok {
			return false
		}
		path, query := splitURI(uri)
		decoded, err := url.PathUnescape(path)
		if err != nil {
			return false
		}
		m.Method = method
		m.RawURI = uri
		m.Path = decoded
		m.Query = query
		m.Major, m.Minor = major, minor
		return true

	case KindResponse:
		proto, codeStr, reason := parts[0], parts[1], parts[2]
		major, minor, ok := parseProtocolVersion(proto)
		if !ok {
			return false
		}
		code, err := strconv.Atoi(codeStr)
		if err != nil || code < 100 || code > 599 {
			return false
		}
		m.Major, m.Minor = major, minor
		m.Code = code
		m.Reason = reason
		return true
	}
	return false
}

func parseProtocolVersion(s string) (major, minor int, ok bool) {
	switch s {
	case "HTTP/1.0":
		return 1, 0, true
	case "HTTP/1.1":
		return 1, 1, true
	default:
		return 0, 0, false
	}
}

func splitURI(uri string) (path, query string) {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		return uri[:i], uri[i+1:]
	}
	return uri, ""
}
