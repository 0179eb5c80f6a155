package httpcore

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/wxggg/libio-go/internal/buffer"
	"github.com/wxggg/libio-go/internal/httperr"
)

// acceptorFDFromListener extracts a non-blocking, independently-closeable
// raw fd backing ln, so the acceptor reactor can register it directly
// instead of running a blocking Accept loop on its own goroutine. The
// duplicate keeps ln (and its Close/Addr bookkeeping) intact; the original
// net.Listener is left open and closed normally by Server.Stop.
func acceptorFDFromListener(ln net.Listener) (int, error) {
	sc, ok := ln.(syscall.Conn)
	if !ok {
		return -1, httperr.New("httpcore.Serve", httperr.CodeListenFailed, "listener does not support SyscallConn")
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1, httperr.Wrap("httpcore.Serve", 0, err)
	}

	var fd int
	var dupErr error
	if ctrlErr := raw.Control(func(fdPtr uintptr) {
		fd, dupErr = unix.Dup(int(fdPtr))
	}); ctrlErr != nil {
		return -1, httperr.Wrap("httpcore.Serve", 0, ctrlErr)
	}
	if dupErr != nil {
		return -1, httperr.Wrap("httpcore.Serve", 0, dupErr)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, httperr.Wrap("httpcore.Serve", fd, err)
	}
	return fd, nil
}

// onAcceptable drains every connection currently pending on the listening
// socket, handing each off to the next worker in round-robin order. Per
// §7's resource-exhaustion policy, an accept failure (including fd
// exhaustion) is logged and this burst simply stops; the listening socket
// stays registered and fires again once more connections are pending.
func (s *Server) onAcceptable() {
	for {
		connFD, sa, err := unix.Accept4(s.acceptFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if !buffer.IsTransient(err) {
				s.opts.Logger.Errorf("httpcore: accept failed: %v", err)
			}
			return
		}
		addr, port := sockaddrToAddr(sa)
		w := s.workers[s.next]
		w.Enqueue(connFD, addr, port)
		s.next = (s.next + 1) % len(s.workers)
	}
}

func sockaddrToAddr(sa unix.Sockaddr) (string, int) {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(v.Addr[:]).String(), v.Port
	case *unix.SockaddrInet6:
		return net.IP(v.Addr[:]).String(), v.Port
	default:
		return "", 0
	}
}
