// Package worker implements one worker thread: a reactor, a pool of
// httpconn.Connection objects, and the thread-safe inbound queue the
// acceptor hands freshly accepted sockets across on.
package worker

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/wxggg/libio-go/internal/buffer"
	"github.com/wxggg/libio-go/internal/demux"
	"github.com/wxggg/libio-go/internal/httpconn"
	"github.com/wxggg/libio-go/internal/httperr"
	"github.com/wxggg/libio-go/internal/logging"
	"github.com/wxggg/libio-go/internal/metrics"
	"github.com/wxggg/libio-go/internal/reactor"
)

// handoff is one freshly accepted connection, queued by the acceptor and
// drained by the worker's own goroutine.
type handoff struct {
	fd   int
	addr string
	port int
}

// Worker owns one reactor, one wakeup eventfd, the active connection set,
// and a free list of connections to reuse across accepts.
type Worker struct {
	Reactor *reactor.Reactor

	dispatcher httpconn.Dispatcher
	metrics    *metrics.Counters

	wakeupFD int

	mu      sync.Mutex
	inbound []handoff

	active map[int]*httpconn.Connection
	free   []*httpconn.Connection
}

// New constructs a worker with its own reactor and wakeup eventfd,
// registered for read on that reactor.
func New(kind demux.Kind, dispatcher httpconn.Dispatcher, m *metrics.Counters) (*Worker, error) {
	r, err := reactor.New(kind)
	if err != nil {
		return nil, err
	}
	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		r.Close()
		return nil, httperr.Wrap("worker.New", 0, err)
	}

	w := &Worker{
		Reactor:    r,
		dispatcher: dispatcher,
		metrics:    m,
		wakeupFD:   efd,
		active:     make(map[int]*httpconn.Connection),
	}
	if err := r.SetReadHandler(efd, w.onWakeup); err != nil {
		unix.Close(efd)
		r.Close()
		return nil, err
	}
	return w, nil
}

// Enqueue hands a freshly accepted (fd, addr, port) triple to this worker
// and wakes its reactor. Safe to call from the acceptor goroutine.
func (w *Worker) Enqueue(fd int, addr string, port int) {
	w.mu.Lock()
	w.inbound = append(w.inbound, handoff{fd: fd, addr: addr, port: port})
	w.mu.Unlock()

	one := [8]byte{1, 0, 0, 0, 0, 0, 0, 0}
	if _, err := unix.Write(w.wakeupFD, one[:]); err != nil && !buffer.IsTransient(err) {
		logging.Default().Errorf("worker: wakeup write failed: %v", err)
	}
}

func (w *Worker) onWakeup() {
	var buf [8]byte
	for {
		_, err := unix.Read(w.wakeupFD, buf[:])
		if err != nil {
			break
		}
	}

	w.mu.Lock()
	pending := w.inbound
	w.inbound = nil
	w.mu.Unlock()

	for _, h := range pending {
		conn := w.acquireConnection()
		if err := conn.Bind(h.fd, h.addr, h.port); err != nil {
			logging.Default().Errorf("worker: bind fd=%d failed: %v", h.fd, err)
			unix.Close(h.fd)
			w.releaseToFree(conn)
			continue
		}
		w.active[h.fd] = conn
		w.metrics.ConnAccepted()
	}
}

// acquireConnection draws from the free list or allocates a new Connection,
// wiring its detach callback back to this worker so a closed connection
// returns to the free list and a hijacked one does not.
func (w *Worker) acquireConnection() *httpconn.Connection {
	if n := len(w.free); n > 0 {
		c := w.free[n-1]
		w.free = w.free[:n-1]
		return c
	}
	return httpconn.New(w.Reactor, w.dispatcher, w.metrics, w.onDetach)
}

func (w *Worker) onDetach(c *httpconn.Connection, returnToPool bool) {
	delete(w.active, c.FD)
	if returnToPool {
		w.releaseToFree(c)
	}
}

func (w *Worker) releaseToFree(c *httpconn.Connection) {
	w.free = append(w.free, c)
}

// Loop runs this worker's reactor until SetTerminated is called on it or it
// runs out of channels and timers (it never should while the worker owns
// its wakeup eventfd's channel).
func (w *Worker) Loop() error {
	return w.Reactor.Loop(false, false)
}

// Close releases the wakeup eventfd and the underlying reactor's back-end.
func (w *Worker) Close() error {
	unix.Close(w.wakeupFD)
	return w.Reactor.Close()
}

// ActiveCount reports the number of connections currently being served, for
// diagnostics/tests.
func (w *Worker) ActiveCount() int {
	return len(w.active)
}
