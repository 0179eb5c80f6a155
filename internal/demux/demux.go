// Package demux implements the reactor's pluggable I/O demultiplexer: three
// interchangeable readiness-based back-ends (bitset-scan/select,
// array/poll, edge-registration/epoll) behind one small interface, mirroring
// the shape of the teacher's uring.Ring interface — a handful of verbs
// (add/remove/wait/results) behind one Go interface with a per-kind
// constructor and a package-level factory.
package demux

import "fmt"

// Mask is a subset of {Read, Write} interest for a registered fd.
type Mask uint8

const (
	Read Mask = 1 << iota
	Write
)

// Event reports one fd's readiness after a Wait call. HUP/ERR conditions
// are surfaced as both Readable and Writable so the reactor delivers them to
// whichever handler (read or write) can detect the condition, per the
// edge-registration back-end's contract.
type Event struct {
	FD       int
	Readable bool
	Writable bool
	Err      bool // HUP/ERR condition detected (select back-end never sets this)
}

// Backend is the capability a reactor depends on: register fd x {read,
// write} interest, wait for readiness, and report the ready set. All three
// implementations are level-triggered between Wait calls — an fd registered
// across two consecutive Wait calls never silently loses an event.
type Backend interface {
	// Add registers additional interest for fd. Safe to call repeatedly to
	// extend an existing registration (e.g. Read then later Write).
	Add(fd int, mask Mask) error

	// Remove clears interest bits for fd. Once both Read and Write interest
	// are cleared the fd is fully deregistered.
	Remove(fd int, mask Mask) error

	// Wait blocks for up to timeoutMs milliseconds (or indefinitely for a
	// negative value, or returns immediately for zero) and returns the
	// number of ready fds.
	Wait(timeoutMs int) (int, error)

	// Ready returns the events produced by the most recent Wait call.
	Ready() []Event

	// Close releases any kernel resources (e.g. the epoll fd).
	Close() error
}

// Kind selects a back-end implementation.
type Kind int

const (
	// KindEpoll is the edge-registration back-end (default: lowest
	// overhead, no hard fd ceiling).
	KindEpoll Kind = iota
	// KindPoll is the array back-end.
	KindPoll
	// KindSelect is the bitset-scan back-end, capped at 1024 fds; intended
	// for portability testing only.
	KindSelect
)

func (k Kind) String() string {
	switch k {
	case KindEpoll:
		return "epoll"
	case KindPoll:
		return "poll"
	case KindSelect:
		return "select"
	default:
		return "unknown"
	}
}

// New constructs the requested back-end.
func New(kind Kind) (Backend, error) {
	switch kind {
	case KindEpoll:
		return newEpollBackend()
	case KindPoll:
		return newPollBackend()
	case KindSelect:
		return newSelectBackend()
	default:
		return nil, fmt.Errorf("demux: unknown backend kind %v", kind)
	}
}
