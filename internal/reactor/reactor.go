// Package reactor implements the event loop that ties the demultiplexer, the
// timer set, and per-fd callbacks together: a single-threaded loop that
// blocks in one demux.Backend.Wait call, fires due timers, then dispatches
// readiness to whichever callables are registered for each ready fd.
package reactor

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"

	"github.com/wxggg/libio-go/internal/demux"
	"github.com/wxggg/libio-go/internal/logging"
	"github.com/wxggg/libio-go/internal/timerset"
)

// Callable is a zero-argument callback invoked from the loop goroutine.
type Callable func()

// Channel tracks the callables and current interest for one fd. Callers
// never construct one directly; it is created lazily by SetReadHandler,
// SetWriteHandler, SetErrorHandler, AddRead, or AddWrite.
type Channel struct {
	FD            int
	readFn        Callable
	writeFn       Callable
	errorFn       Callable
	readInterest  bool
	writeInterest bool
}

func (c *Channel) idle() bool {
	return c.readFn == nil && c.writeFn == nil && c.errorFn == nil &&
		!c.readInterest && !c.writeInterest
}

// Reactor is the event loop: one demux.Backend, one timerset.Set, and the
// fd -> Channel registry they arbitrate over. Not safe for concurrent use —
// every method is expected to be called from the single goroutine that also
// calls Loop, which is the same discipline the worker and acceptor both
// follow when they own a Reactor.
type Reactor struct {
	backend    demux.Backend
	timers     *timerset.Set
	channels   map[int]*Channel
	terminated bool
}

// New constructs a Reactor around the requested demux back-end kind.
func New(kind demux.Kind) (*Reactor, error) {
	b, err := demux.New(kind)
	if err != nil {
		return nil, err
	}
	return &Reactor{
		backend:  b,
		timers:   timerset.New(),
		channels: make(map[int]*Channel),
	}, nil
}

// Close releases the underlying back-end's kernel resources.
func (r *Reactor) Close() error {
	return r.backend.Close()
}

func (r *Reactor) channel(fd int) *Channel {
	ch, ok := r.channels[fd]
	if !ok {
		unix.SetNonblock(fd, true)
		ch = &Channel{FD: fd}
		r.channels[fd] = ch
	}
	return ch
}

// SetReadHandler installs cb as fd's read callback and raises read interest
// on the back-end if it was not already raised. Replaces any prior read
// callback for fd.
func (r *Reactor) SetReadHandler(fd int, cb Callable) error {
	ch := r.channel(fd)
	ch.readFn = cb
	if !ch.readInterest {
		if err := r.backend.Add(fd, demux.Read); err != nil {
			return err
		}
		ch.readInterest = true
	}
	return nil
}

// SetWriteHandler installs cb as fd's write callback and raises write
// interest on the back-end if it was not already raised.
func (r *Reactor) SetWriteHandler(fd int, cb Callable) error {
	ch := r.channel(fd)
	ch.writeFn = cb
	if !ch.writeInterest {
		if err := r.backend.Add(fd, demux.Write); err != nil {
			return err
		}
		ch.writeInterest = true
	}
	return nil
}

// SetErrorHandler installs cb as fd's error callback. It does not by itself
// register any back-end interest; the error condition rides along with
// whichever of read/write interest is already active (epoll reports HUP/ERR
// as both readable and writable, see demux.Event).
func (r *Reactor) SetErrorHandler(fd int, cb Callable) error {
	ch := r.channel(fd)
	ch.errorFn = cb
	return nil
}

// RemoveReadHandler clears fd's read callback and read interest. Idempotent:
// calling it for an fd with no registered channel, or one with no read
// handler, is a silent no-op. If the channel becomes fully idle as a result
// it is erased from the registry immediately.
func (r *Reactor) RemoveReadHandler(fd int) {
	ch, ok := r.channels[fd]
	if !ok {
		return
	}
	ch.readFn = nil
	if ch.readInterest {
		r.backend.Remove(fd, demux.Read)
		ch.readInterest = false
	}
	if ch.idle() {
		r.Erase(fd)
	}
}

// RemoveWriteHandler clears fd's write callback and write interest.
// Idempotent, mirroring RemoveReadHandler.
func (r *Reactor) RemoveWriteHandler(fd int) {
	ch, ok := r.channels[fd]
	if !ok {
		return
	}
	ch.writeFn = nil
	if ch.writeInterest {
		r.backend.Remove(fd, demux.Write)
		ch.writeInterest = false
	}
	if ch.idle() {
		r.Erase(fd)
	}
}

// AddRead raises read interest on fd without touching its callable. Used to
// resume a channel previously paused with RemoveRead.
func (r *Reactor) AddRead(fd int) error {
	ch := r.channel(fd)
	if ch.readInterest {
		return nil
	}
	if err := r.backend.Add(fd, demux.Read); err != nil {
		return err
	}
	ch.readInterest = true
	return nil
}

// RemoveRead lowers read interest on fd without touching its callable. Used
// to pause a channel (e.g. while its inbound buffer is full) without
// discarding the handler that will resume it.
func (r *Reactor) RemoveRead(fd int) error {
	ch, ok := r.channels[fd]
	if !ok || !ch.readInterest {
		return nil
	}
	if err := r.backend.Remove(fd, demux.Read); err != nil {
		return err
	}
	ch.readInterest = false
	if ch.idle() {
		r.Erase(fd)
	}
	return nil
}

// AddWrite raises write interest on fd without touching its callable.
func (r *Reactor) AddWrite(fd int) error {
	ch := r.channel(fd)
	if ch.writeInterest {
		return nil
	}
	if err := r.backend.Add(fd, demux.Write); err != nil {
		return err
	}
	ch.writeInterest = true
	return nil
}

// RemoveWrite lowers write interest on fd without touching its callable.
// Used to stop polling for writability once an outbound buffer drains.
func (r *Reactor) RemoveWrite(fd int) error {
	ch, ok := r.channels[fd]
	if !ok || !ch.writeInterest {
		return nil
	}
	if err := r.backend.Remove(fd, demux.Write); err != nil {
		return err
	}
	ch.writeInterest = false
	if ch.idle() {
		r.Erase(fd)
	}
	return nil
}

// Erase immediately drops all interest and callables for fd and removes its
// channel. Safe to call mid-dispatch: Loop re-checks channel existence
// before invoking a second callable on the same fd within one tick.
func (r *Reactor) Erase(fd int) {
	ch, ok := r.channels[fd]
	if !ok {
		return
	}
	if ch.readInterest {
		r.backend.Remove(fd, demux.Read)
	}
	if ch.writeInterest {
		r.backend.Remove(fd, demux.Write)
	}
	delete(r.channels, fd)
}

// SetTimer delegates to the embedded timer set and returns the new timer's id.
func (r *Reactor) SetTimer(interval time.Duration, persistent bool, cb func()) uint32 {
	return r.timers.SetTimer(interval, persistent, cb)
}

// RemoveTimer cancels a previously-registered timer. Idempotent.
func (r *Reactor) RemoveTimer(id uint32) {
	r.timers.Remove(id)
}

// SetTerminated asks the loop to stop after the tick currently in flight.
// Loop checks the flag only after a tick, so a loop that has not yet
// entered its next tick still runs that tick first.
func (r *Reactor) SetTerminated() {
	r.terminated = true
}

// Loop runs the reactor's tick until termination. If once is true it
// performs exactly one tick and returns, regardless of terminated state or
// remaining work — used by callers that interleave the reactor with other
// work on the same goroutine. If nonblocking is true each Wait call returns
// immediately instead of blocking for the timer set's shortest deadline.
func (r *Reactor) Loop(nonblocking, once bool) error {
	for {
		if err := r.tick(nonblocking); err != nil {
			return err
		}
		if once {
			return nil
		}
		if r.terminated {
			return nil
		}
		if len(r.channels) == 0 && r.timers.Len() == 0 {
			return nil
		}
	}
}

// tick performs one iteration of the loop: compute the timeout, wait on the
// back-end, fire due timers, then dispatch the ready set in order. A channel
// that goes idle as a side effect of a callback (RemoveReadHandler etc. all
// erase synchronously) is gone from the registry before dispatch looks it up
// again, so no separate deferred-cleanup pass is needed. A failed Wait ends
// the tick early: EINTR silently, any other error after it is logged.
func (r *Reactor) tick(nonblocking bool) error {
	timeout := r.timers.ShortestTimeoutMs()
	if nonblocking {
		timeout = 0
	}

	n, err := r.backend.Wait(timeout)
	if err != nil {
		if !errors.Is(err, unix.EINTR) {
			logging.Default().Errorf("reactor: wait failed: %v", err)
		}
		return nil
	}

	r.timers.Process()

	if n > 0 {
		r.dispatch(r.backend.Ready())
	}

	return nil
}

func (r *Reactor) dispatch(ready []demux.Event) {
	for _, ev := range ready {
		ch, ok := r.channels[ev.FD]
		if !ok {
			continue
		}
		if ev.Err && ch.errorFn != nil {
			ch.errorFn()
		}
		// Re-fetch: the error callback may have erased the channel.
		ch, ok = r.channels[ev.FD]
		if !ok {
			continue
		}
		if ev.Readable && ch.readFn != nil {
			ch.readFn()
		}
		// Re-fetch: the read callback may have closed/erased fd, in which
		// case firing the write callback on a dead fd would be wrong.
		ch, ok = r.channels[ev.FD]
		if !ok {
			continue
		}
		if ev.Writable && ch.writeFn != nil {
			ch.writeFn()
		}
	}
}
