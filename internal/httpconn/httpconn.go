// Package httpconn wires one accepted socket to the HTTP codec and a
// reactor: it owns the connection's input/output buffers, drives the parser
// across pipelined requests, and exposes the response-writing API a handler
// uses (send_reply/send_request/chunked streaming) plus the Hijack escape
// hatch.
package httpconn

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/wxggg/libio-go/internal/buffer"
	"github.com/wxggg/libio-go/internal/httpcodec"
	"github.com/wxggg/libio-go/internal/httperr"
	"github.com/wxggg/libio-go/internal/metrics"
	"github.com/wxggg/libio-go/internal/reactor"
)

// Status is the connection's lifecycle state.
type Status int

const (
	StatusConnected Status = iota
	StatusClosing
	StatusClosed
)

// Dispatcher resolves one completed request, writing the reply into conn's
// output buffer (via the conn's Send* methods) before returning.
type Dispatcher interface {
	Dispatch(conn *Connection, req *httpcodec.Message)
}

// DetachFunc is called exactly once when a connection stops being driven by
// its reactor, either because it closed normally (returnToPool true, the
// connection should go back on the worker's free list) or because it was
// hijacked (returnToPool false, the caller now owns the fd).
type DetachFunc func(c *Connection, returnToPool bool)

// Connection is a pooled object: Bind (re-)attaches it to a freshly accepted
// fd, and it returns to its owner's free list once closed (unless hijacked).
type Connection struct {
	FD     int
	Addr   string
	Port   int
	Status Status

	In  *buffer.Buffer
	Out *buffer.Buffer

	reactor    *reactor.Reactor
	dispatcher Dispatcher
	metrics    *metrics.Counters
	onDetach   DetachFunc

	pending []*httpcodec.Message

	major, minor       int
	keepAliveRequested bool
}

// New constructs an unbound connection object. Call Bind before use.
func New(r *reactor.Reactor, dispatcher Dispatcher, m *metrics.Counters, onDetach DetachFunc) *Connection {
	return &Connection{
		In:         buffer.New(),
		Out:        buffer.New(),
		reactor:    r,
		dispatcher: dispatcher,
		metrics:    m,
		onDetach:   onDetach,
		Status:     StatusClosed,
	}
}

// Bind (re-)attaches this connection object to fd, resetting all
// per-connection state. Used both for a brand new connection and for one
// drawn from a worker's free pool.
func (c *Connection) Bind(fd int, addr string, port int) error {
	c.FD = fd
	c.Addr = addr
	c.Port = port
	c.Status = StatusConnected
	c.In.Clear()
	c.Out.Clear()
	c.pending = c.pending[:0]
	c.major, c.minor = 1, 1
	c.keepAliveRequested = true

	if err := unix.SetNonblock(fd, true); err != nil {
		return httperr.Wrap("httpconn.Bind", fd, err)
	}
	if err := c.reactor.SetReadHandler(fd, c.onRead); err != nil {
		return httperr.Wrap("httpconn.Bind", fd, err)
	}
	if err := c.reactor.SetWriteHandler(fd, c.onWrite); err != nil {
		return httperr.Wrap("httpconn.Bind", fd, err)
	}
	if err := c.reactor.SetErrorHandler(fd, c.onError); err != nil {
		return httperr.Wrap("httpconn.Bind", fd, err)
	}
	return nil
}

func (c *Connection) onRead() {
	n, err := c.In.ReadFd(c.FD)
	if err != nil {
		if buffer.IsTransient(err) {
			return
		}
		c.beginClosing()
		return
	}
	if n == 0 {
		c.reactor.RemoveRead(c.FD)
		c.beginClosing()
		return
	}
	c.metrics.Read(n)
	c.drainParse()
}

// drainParse feeds whatever bytes are already in In through the pipelined
// request queue: one Message is always "head of line"; ALLREAD dispatches
// it, pops it, and immediately tries the next request already buffered.
func (c *Connection) drainParse() {
	for {
		if len(c.pending) == 0 {
			c.pending = append(c.pending, httpcodec.New(httpcodec.KindRequest))
		}
		head := c.pending[0]
		switch head.Parse(c.In) {
		case httpcodec.NeedMore:
			return
		case httpcodec.AllRead:
			c.major, c.minor = head.Major, head.Minor
			c.keepAliveRequested = head.KeepAlive()
			c.metrics.RequestServed()
			c.dispatcher.Dispatch(c, head)
			c.pending = c.pending[1:]
			if c.Status != StatusConnected {
				return
			}
			if c.In.Len() == 0 {
				return
			}
		case httpcodec.Corrupted:
			c.metrics.ParseError()
			c.SendReply(400, "Bad Request", []byte(httpcodec.GenericErrorBody(400, "Bad Request")))
			c.pending = c.pending[:0]
			c.reactor.RemoveRead(c.FD)
			c.beginClosing()
			return
		case httpcodec.Canceled:
			return
		}
	}
}

func (c *Connection) onWrite() {
	if c.Out.Len() == 0 {
		c.reactor.RemoveWrite(c.FD)
		if c.Status == StatusClosing {
			c.finishClose()
		}
		return
	}
	n, err := c.Out.WriteFd(c.FD)
	c.metrics.Wrote(n)
	if err != nil && !buffer.IsTransient(err) {
		c.Status = StatusClosing
		c.finishClose()
		return
	}
	if c.Out.Len() == 0 {
		c.reactor.RemoveWrite(c.FD)
		if c.Status == StatusClosing {
			c.finishClose()
		}
	}
}

func (c *Connection) onError() {
	c.Status = StatusClosing
	c.finishClose()
}

// beginClosing transitions toward CLOSED: if output is already empty there
// is nothing left to drain, so close now; otherwise arm write interest and
// let onWrite finish the job once the buffer empties.
func (c *Connection) beginClosing() {
	if c.Status != StatusConnected {
		return
	}
	c.Status = StatusClosing
	if c.Out.Len() == 0 {
		c.finishClose()
		return
	}
	c.reactor.AddWrite(c.FD)
}

func (c *Connection) finishClose() {
	unix.Shutdown(c.FD, unix.SHUT_WR)
	c.reactor.Erase(c.FD)
	unix.Close(c.FD)
	c.Status = StatusClosed
	c.metrics.ConnClosed()
	if c.onDetach != nil {
		c.onDetach(c, true)
	}
}

func (c *Connection) armWrite() {
	c.reactor.AddWrite(c.FD)
}

// SendReply writes a complete response (status line, headers, body) into
// Out. If the originating request asked for (or the protocol version
// defaults to) a non-persistent connection, the connection is scheduled to
// close once Out drains.
func (c *Connection) SendReply(code int, reason string, body []byte) {
	resp := httpcodec.New(httpcodec.KindResponse)
	resp.Major, resp.Minor = c.major, c.minor
	resp.Code = code
	resp.Reason = reason
	if len(body) > 0 {
		resp.Body.Push(body)
	}
	if !c.keepAliveRequested {
		resp.Header.Set("Connection", "close")
	}
	resp.SendTo(c.Out)
	c.armWrite()
	if !c.keepAliveRequested {
		c.beginClosing()
	}
}

// SendRequest serialises an already-built Message (e.g. a response a
// handler assembled itself, headers and all) into Out; for a response,
// SendTo first fills in its defaults. If either the originating request or
// msg itself calls for a non-persistent connection, the connection is
// scheduled to close once Out drains.
func (c *Connection) SendRequest(msg *httpcodec.Message) {
	msg.SendTo(c.Out)
	c.armWrite()
	if !c.keepAliveRequested || !msg.KeepAlive() {
		c.beginClosing()
	}
}

// SendChunkStart writes the status line and headers for a chunked response,
// without Content-Length, and primes Transfer-Encoding: chunked. If the
// response itself is non-persistent (e.g. header carries Connection: close),
// SendChunkEnd closes the connection just as for a non-persistent request.
func (c *Connection) SendChunkStart(code int, reason string, header httpcodec.Header) {
	resp := httpcodec.New(httpcodec.KindResponse)
	resp.Major, resp.Minor = c.major, c.minor
	resp.Code = code
	resp.Reason = reason
	resp.Header = header
	resp.Header.Set("Transfer-Encoding", "chunked")
	if !c.keepAliveRequested {
		resp.Header.Set("Connection", "close")
	}
	resp.FillResponseDefaults()
	if !resp.KeepAlive() {
		c.keepAliveRequested = false
	}
	resp.SendHead(c.Out)
	c.armWrite()
}

// SendChunk writes one chunk frame (size_hex\r\ndata\r\n).
func (c *Connection) SendChunk(data []byte) {
	if len(data) == 0 {
		return
	}
	c.Out.PushString(fmt.Sprintf("%x\r\n", len(data)))
	c.Out.Push(data)
	c.Out.PushString("\r\n")
	c.armWrite()
}

// SendChunkEnd writes the terminating zero-length chunk and, if the
// connection isn't persistent, schedules it to close once drained.
func (c *Connection) SendChunkEnd() {
	c.Out.PushString("0\r\n\r\n")
	c.armWrite()
	if !c.keepAliveRequested {
		c.beginClosing()
	}
}

// Hijack detaches the connection from the codec/dispatch loop and hands the
// raw fd and its still-buffered bytes to the caller. The connection never
// returns to the worker's free pool afterward.
func (c *Connection) Hijack() (fd int, in, out *buffer.Buffer, err error) {
	if c.Status != StatusConnected {
		return 0, nil, nil, httperr.New("httpconn.Hijack", httperr.CodeIOError, "connection is not in a hijackable state")
	}
	c.reactor.RemoveReadHandler(c.FD)
	c.reactor.RemoveWriteHandler(c.FD)
	c.reactor.Erase(c.FD)

	fd, in, out = c.FD, c.In, c.Out
	c.Status = StatusClosed
	if c.onDetach != nil {
		c.onDetach(c, false)
	}
	return fd, in, out, nil
}
