// Package signalbridge converts delivered POSIX signals into callbacks that
// are safe to run from ordinary Go code.
//
// The C++ original's signal handler ran user callbacks directly from signal
// context, which the project's design notes call out as a defect: arbitrary
// code must never run there because only async-signal-safe state can be
// touched. In Go that whole class of bug is moot — os/signal.Notify already
// marshals delivery onto a regular goroutine before any user code runs — but
// the discipline is preserved anyway: exactly one goroutine reads the
// delivery channel and every registered callback runs from it, never from
// an arbitrary call site, matching the spirit of routing everything through
// a single, predictable hand-off point.
package signalbridge

import (
	"os"
	"os/signal"
	"sync"
)

type entry struct {
	persistent bool
	callback   func(os.Signal)
}

// Bridge is a process-wide signal registry. Entries are mutated only from
// the goroutine that owns the Bridge (conventionally the main/acceptor
// goroutine); the delivery goroutine reads them under mu and, also under
// mu, removes a one-shot entry once it has been delivered.
type Bridge struct {
	mu       sync.Mutex
	registry map[os.Signal]entry
	ch       chan os.Signal
	done     chan struct{}
}

// New starts a bridge. Call Close to stop its delivery goroutine.
func New() *Bridge {
	b := &Bridge{
		registry: make(map[os.Signal]entry),
		ch:       make(chan os.Signal, 16),
		done:     make(chan struct{}),
	}
	go b.loop()
	return b
}

// Register maps sig to callback. If persistent is false the registration is
// removed after the first delivery, restoring default handling for sig
// (assuming nothing else in the process also calls signal.Notify for it).
// Re-registering a signal replaces its prior callback.
func (b *Bridge) Register(sig os.Signal, persistent bool, callback func(os.Signal)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registry[sig] = entry{persistent: persistent, callback: callback}
	b.refreshNotifyLocked()
}

// Deregister removes sig's registration, if any. Idempotent.
func (b *Bridge) Deregister(sig os.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.registry, sig)
	b.refreshNotifyLocked()
}

// refreshNotifyLocked re-subscribes the channel to exactly the currently
// registered signals. Called with mu held.
func (b *Bridge) refreshNotifyLocked() {
	signal.Stop(b.ch)
	for sig := range b.registry {
		signal.Notify(b.ch, sig)
	}
}

// Close stops the bridge's delivery goroutine and deregisters everything.
func (b *Bridge) Close() {
	signal.Stop(b.ch)
	close(b.done)
}

func (b *Bridge) loop() {
	for {
		select {
		case sig := <-b.ch:
			b.mu.Lock()
			e, ok := b.registry[sig]
			if ok && !e.persistent {
				delete(b.registry, sig)
				b.refreshNotifyLocked()
			}
			b.mu.Unlock()
			if ok && e.callback != nil {
				e.callback(sig)
			}
		case <-b.done:
			return
		}
	}
}
