package httpcore

import (
	"net"
	"os"
	"sync"
	"syscall"

	"github.com/wxggg/libio-go/internal/httpcodec"
	"github.com/wxggg/libio-go/internal/httpconn"
	"github.com/wxggg/libio-go/internal/httperr"
	"github.com/wxggg/libio-go/internal/metrics"
	"github.com/wxggg/libio-go/internal/reactor"
	"github.com/wxggg/libio-go/internal/signalbridge"
	"github.com/wxggg/libio-go/internal/worker"
)

// Server accepts connections on a single listening socket from an acceptor
// reactor running on the calling goroutine, and round-robin dispatches
// each accepted (fd, addr, port) triple to one of a fixed set of workers,
// each running its own reactor on its own goroutine. It implements
// httpconn.Dispatcher itself, so every worker shares one handler registry.
type Server struct {
	opts    Options
	metrics *Metrics

	handlers *handlerTable

	acceptor *reactor.Reactor
	workers  []*worker.Worker
	next     int

	signals *signalbridge.Bridge

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
	listener net.Listener
	acceptFD int

	wg sync.WaitGroup
}

// New constructs a Server and its fixed pool of workers. Listening and
// accepting do not start until ListenAndServe or Serve is called.
func New(opts Options) (*Server, error) {
	opts.fillDefaults()

	acceptorReactor, err := reactor.New(opts.BackendKind)
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:     opts,
		metrics:  metrics.New(),
		handlers: newHandlerTable(),
		acceptor: acceptorReactor,
		signals:  signalbridge.New(),
	}

	s.workers = make([]*worker.Worker, opts.NumWorkers)
	for i := range s.workers {
		w, err := worker.New(opts.BackendKind, s, s.metrics)
		if err != nil {
			s.closeWorkers(i)
			acceptorReactor.Close()
			return nil, err
		}
		s.workers[i] = w
	}
	return s, nil
}

func (s *Server) closeWorkers(n int) {
	for i := 0; i < n; i++ {
		s.workers[i].Close()
	}
}

// SetRequestHandler registers h for pattern (see handlerTable for the
// matching rule). Call before ListenAndServe/Serve.
func (s *Server) SetRequestHandler(pattern string, h HandlerFunc) {
	s.handlers.SetRequestHandler(pattern, h)
}

// SetGeneralHandler registers the catch-all handler. Call before
// ListenAndServe/Serve.
func (s *Server) SetGeneralHandler(h HandlerFunc) {
	s.handlers.SetGeneralHandler(h)
}

// Dispatch implements httpconn.Dispatcher: exact match, then pattern
// match, then the general handler, then a built-in 404. A panicking
// handler is recovered, counted as a handler error and turned into a 500
// rather than taking down the worker goroutine.
func (s *Server) Dispatch(conn *httpconn.Connection, req *httpcodec.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.HandlerError()
			s.opts.Logger.Errorf("httpcore: handler panic on %s: %v", req.Path, r)
			conn.SendReply(500, "Internal Server Error", []byte(httpcodec.GenericErrorBody(500, "Internal Server Error")))
		}
	}()

	if h, ok := s.handlers.lookup(req.Path); ok {
		h(conn, req)
		return
	}
	conn.SendReply(404, "Not Found", []byte(httpcodec.NotFoundBody(req.Path)))
}

// ListenAndServe acquires a listener via Options.Listener (net.Listen by
// default) and serves on it with Serve. Accept errors are logged and do not
// end serving.
func (s *Server) ListenAndServe() error {
	ln, err := s.opts.Listener.Listen(s.opts.Network, s.opts.Addr)
	if err != nil {
		return httperr.Wrap("httpcore.ListenAndServe", 0, err)
	}
	return s.Serve(ln)
}

// Serve drives the acceptor reactor on the calling goroutine, dispatching
// accepted connections round-robin to the server's workers (each already
// running on its own goroutine). It blocks until Stop is called.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return httperr.New("httpcore.Serve", httperr.CodeListenFailed, "server already started")
	}
	s.started = true
	s.mu.Unlock()

	fd, err := acceptorFDFromListener(ln)
	if err != nil {
		ln.Close()
		return err
	}
	s.listener = ln
	s.acceptFD = fd

	if err := s.acceptor.SetReadHandler(fd, s.onAcceptable); err != nil {
		ln.Close()
		return err
	}

	// Per §4.4/§5's discipline, only this acceptor/signal-bridge goroutine
	// calls signal.Notify; workers never touch process-wide signal state.
	s.signals.Register(os.Interrupt, false, func(os.Signal) { s.Stop() })
	s.signals.Register(syscall.SIGTERM, false, func(os.Signal) { s.Stop() })

	for _, w := range s.workers {
		s.wg.Add(1)
		go func(w *worker.Worker) {
			defer s.wg.Done()
			if err := w.Loop(); err != nil {
				s.opts.Logger.Errorf("httpcore: worker loop exited: %v", err)
			}
		}(w)
	}

	err = s.acceptor.Loop(false, false)
	s.wg.Wait()
	return err
}

// Stop requests termination of the acceptor reactor and every worker
// reactor; each exits after its current tick. It does not wait for
// in-flight connections to drain.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.acceptor.SetTerminated()
		for _, w := range s.workers {
			w.Reactor.SetTerminated()
		}
		s.signals.Close()
		s.mu.Lock()
		ln := s.listener
		s.mu.Unlock()
		if ln != nil {
			err = ln.Close()
		}
	})
	return err
}

// MetricsSnapshot mirrors the teacher's Device.MetricsSnapshot(): a
// point-in-time copy of the counters shared by every worker and
// connection this server owns.
func (s *Server) MetricsSnapshot() MetricsSnapshot {
	return s.metrics.Snapshot()
}
