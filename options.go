package httpcore

import (
	"net"
	"runtime"

	"github.com/wxggg/libio-go/internal/demux"
	"github.com/wxggg/libio-go/internal/logging"
)

// ListenerProvider acquires the listening socket a Server accepts
// connections on. The default implementation calls net.Listen directly;
// internal/upgrader.Tableflip adapts github.com/cloudflare/tableflip to
// this same interface so an embedder can request zero-downtime binary
// upgrades without the server itself knowing anything about that protocol.
type ListenerProvider interface {
	Listen(network, addr string) (net.Listener, error)
}

type netListenerProvider struct{}

func (netListenerProvider) Listen(network, addr string) (net.Listener, error) {
	return net.Listen(network, addr)
}

// Options configures a Server. Construct via DefaultOptions and override
// only the fields that matter, matching the teacher's
// DefaultParams(backend)-then-override convention.
type Options struct {
	// Network and Addr are passed to Listener.Listen verbatim, e.g.
	// ("tcp", "127.0.0.1:8080").
	Network string
	Addr    string

	// NumWorkers is the number of worker goroutines, each with its own
	// reactor and connection pool. Defaults to runtime.GOMAXPROCS(0).
	NumWorkers int

	// BackendKind selects the I/O demultiplexer back-end used by the
	// acceptor reactor and every worker reactor.
	BackendKind demux.Kind

	// Listener acquires the listening socket. Defaults to plain net.Listen.
	Listener ListenerProvider

	// Logger receives lifecycle and error messages. Defaults to
	// logging.Default().
	Logger *logging.Logger
}

// DefaultOptions returns sensible defaults: TCP on ":8080", one worker per
// logical CPU, the epoll back-end, plain net.Listen, the package's default
// logger.
func DefaultOptions() Options {
	return Options{
		Network:     "tcp",
		Addr:        ":8080",
		NumWorkers:  runtime.GOMAXPROCS(0),
		BackendKind: demux.KindEpoll,
		Listener:    netListenerProvider{},
		Logger:      logging.Default(),
	}
}

func (o *Options) fillDefaults() {
	if o.Network == "" {
		o.Network = "tcp"
	}
	if o.NumWorkers <= 0 {
		o.NumWorkers = runtime.GOMAXPROCS(0)
	}
	if o.Listener == nil {
		o.Listener = netListenerProvider{}
	}
	if o.Logger == nil {
		o.Logger = logging.Default()
	}
}
