// Package upgrader adapts github.com/cloudflare/tableflip to the server's
// ListenerProvider shape, so requesting a zero-downtime binary upgrade is
// just a different Options.Listener rather than anything the core reactor,
// worker or codec packages need to know about.
package upgrader

import (
	"net"

	"github.com/cloudflare/tableflip"

	"github.com/wxggg/libio-go/internal/httperr"
)

// Tableflip wraps a *tableflip.Upgrader so it satisfies
// Listen(network, addr string) (net.Listener, error) — the only method the
// server's acceptor actually calls to obtain its listening socket. The
// lifecycle methods below (Ready, Upgrade, Exit, Stop) are for the embedder
// to drive from its own signal handling; the server itself never calls
// them.
type Tableflip struct {
	upg *tableflip.Upgrader
}

// New constructs a Tableflip upgrader. opts is passed through to
// tableflip.New verbatim; a zero value picks tableflip's own defaults
// (PID file under os.TempDir, no upgrade timeout override).
func New(opts tableflip.Options) (*Tableflip, error) {
	upg, err := tableflip.New(opts)
	if err != nil {
		return nil, httperr.Wrap("upgrader.New", 0, err)
	}
	return &Tableflip{upg: upg}, nil
}

// Listen satisfies httpcore.ListenerProvider: it asks tableflip for the
// named listener, inheriting the fd from a prior generation across an
// Upgrade rather than binding a fresh socket whenever one is already held
// open by the parent process.
func (t *Tableflip) Listen(network, addr string) (net.Listener, error) {
	ln, err := t.upg.Listen(network, addr)
	if err != nil {
		return nil, httperr.Wrap("upgrader.Listen", 0, err)
	}
	return ln, nil
}

// Ready signals that every listener this generation needs has already been
// opened and is accepting connections. tableflip holds SIGHUP off until
// Ready is called, so the embedder should call it once after the server's
// acceptor goroutines are running.
func (t *Tableflip) Ready() error {
	return t.upg.Ready()
}

// Upgrade asks tableflip to fork and exec a new copy of the running binary,
// handing it the same listening fds this generation holds. The caller
// typically wires this to SIGHUP.
func (t *Tableflip) Upgrade() error {
	return t.upg.Upgrade()
}

// Exit returns a channel that closes once this generation should begin
// shutting down — either because a new generation has taken over the
// listeners, or because tableflip received a terminal signal.
func (t *Tableflip) Exit() <-chan struct{} {
	return t.upg.Exit()
}

// Stop releases tableflip's PID file and internal state. Call once, during
// final process shutdown.
func (t *Tableflip) Stop() {
	t.upg.Stop()
}
