// Package metrics holds the atomic counters shared by the server, its
// workers, and every connection they own. It is a leaf package (no
// dependency on reactor/httpconn/worker) so that every layer of the server
// can update the same instance without an import cycle back to the root
// package that exposes it to embedders.
package metrics

import "sync/atomic"

// Counters tracks accept/connection/request/byte/error counts. All fields
// are safe for concurrent use: multiple workers update the same instance
// from their own goroutines.
type Counters struct {
	AcceptedConns  atomic.Uint64
	ActiveConns    atomic.Int64
	ClosedConns    atomic.Uint64
	RequestsServed atomic.Uint64
	ParseErrors    atomic.Uint64
	HandlerErrors  atomic.Uint64
	BytesIn        atomic.Uint64
	BytesOut       atomic.Uint64
}

// New returns a zeroed Counters instance.
func New() *Counters {
	return &Counters{}
}

func (c *Counters) ConnAccepted() {
	c.AcceptedConns.Add(1)
	c.ActiveConns.Add(1)
}

func (c *Counters) ConnClosed() {
	c.ActiveConns.Add(-1)
	c.ClosedConns.Add(1)
}

func (c *Counters) RequestServed() {
	c.RequestsServed.Add(1)
}

func (c *Counters) ParseError() {
	c.ParseErrors.Add(1)
}

func (c *Counters) HandlerError() {
	c.HandlerErrors.Add(1)
}

func (c *Counters) Read(n int) {
	if n > 0 {
		c.BytesIn.Add(uint64(n))
	}
}

func (c *Counters) Wrote(n int) {
	if n > 0 {
		c.BytesOut.Add(uint64(n))
	}
}

// Snapshot is a point-in-time, non-atomic copy suitable for logging or a
// /debug endpoint.
type Snapshot struct {
	AcceptedConns  uint64
	ActiveConns    int64
	ClosedConns    uint64
	RequestsServed uint64
	ParseErrors    uint64
	HandlerErrors  uint64
	BytesIn        uint64
	BytesOut       uint64
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		AcceptedConns:  c.AcceptedConns.Load(),
		ActiveConns:    c.ActiveConns.Load(),
		ClosedConns:    c.ClosedConns.Load(),
		RequestsServed: c.RequestsServed.Load(),
		ParseErrors:    c.ParseErrors.Load(),
		HandlerErrors:  c.HandlerErrors.Load(),
		BytesIn:        c.BytesIn.Load(),
		BytesOut:       c.BytesOut.Load(),
	}
}
