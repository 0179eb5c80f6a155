// Package httpcore is the public surface of the reactor-based HTTP/1.1
// server: buffers, errors and metrics re-exported from their leaf packages,
// plus the Server/Options types assembled in server.go, handlers.go and
// accept.go.
package httpcore

import (
	"github.com/wxggg/libio-go/internal/buffer"
	"github.com/wxggg/libio-go/internal/httperr"
	"github.com/wxggg/libio-go/internal/metrics"
)

// Buffer is the growable byte queue every connection's input and output
// sides are built from. See internal/buffer for the implementation.
type Buffer = buffer.Buffer

// Error is the package's structured error type. Listener setup, Serve misuse
// and wrapped syscall failures are reported as *Error; an error from
// creating a reactor back-end or registering an fd on it is returned as the
// underlying error, not wrapped.
type Error = httperr.Error

// Metrics holds the atomic counters a Server and its Workers update as they
// accept connections, serve requests and encounter errors.
type Metrics = metrics.Counters

// MetricsSnapshot is a point-in-time, non-atomic copy of Metrics suitable
// for logging or exposing on a debug endpoint.
type MetricsSnapshot = metrics.Snapshot
