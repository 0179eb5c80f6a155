package httpcore

import (
	"strings"
	"sync"

	"github.com/wxggg/libio-go/internal/httpcodec"
	"github.com/wxggg/libio-go/internal/httpconn"
)

// HandlerFunc writes a response into conn (via SendReply, SendRequest or
// the SendChunk* streaming API) for the completed request req. It runs on
// whichever worker goroutine owns conn and must not block.
type HandlerFunc func(conn *httpconn.Connection, req *httpcodec.Message)

type registration struct {
	segments []string
	handler  HandlerFunc
}

// handlerTable is the server's URI dispatch registry: an exact-match map
// for plain patterns plus an insertion-ordered slice of every registered
// pattern (plain or '*'-wildcard) for segment matching, matching §4.9's lookup order (exact, then first-match pattern,
// then general, then 404). Writes only happen during setup, before Serve;
// reads happen concurrently from every worker goroutine once the server is
// running, hence the RWMutex even though the spec's own discipline would
// allow an unsynchronized read-only phase.
type handlerTable struct {
	mu       sync.RWMutex
	exact    map[string]HandlerFunc
	patterns []registration
	general  HandlerFunc
}

func newHandlerTable() *handlerTable {
	return &handlerTable{exact: make(map[string]HandlerFunc)}
}

// SetRequestHandler registers h for pattern. A pattern is matched
// `/`-segment by `/`-segment against the request path; a `*` segment
// matches any single segment, and segment counts must be equal. Call
// before Serve/ListenAndServe — the registry is not safe to mutate once
// workers are dispatching requests.
func (t *handlerTable) SetRequestHandler(pattern string, h HandlerFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !strings.Contains(pattern, "*") {
		t.exact[pattern] = h
	}
	t.patterns = append(t.patterns, registration{segments: strings.Split(pattern, "/"), handler: h})
}

// SetGeneralHandler registers the catch-all handler invoked when no
// exact or pattern registration matches a request's path.
func (t *handlerTable) SetGeneralHandler(h HandlerFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.general = h
}

func (t *handlerTable) lookup(path string) (HandlerFunc, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if h, ok := t.exact[path]; ok {
		return h, true
	}
	segs := strings.Split(path, "/")
	for _, reg := range t.patterns {
		if matchSegments(reg.segments, segs) {
			return reg.handler, true
		}
	}
	if t.general != nil {
		return t.general, true
	}
	return nil, false
}

func matchSegments(pattern, path []string) bool {
	if len(pattern) != len(path) {
		return false
	}
	for i, p := range pattern {
		if p == "*" {
			continue
		}
		if p != path[i] {
			return false
		}
	}
	return true
}
