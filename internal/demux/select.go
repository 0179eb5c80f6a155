package demux

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// selectMaxFD is the hard ceiling the spec places on the bitset-scan
// back-end: unix.FdSet has room for exactly 1024 fds (16 * 64-bit words) on
// Linux, so there is nothing to grow — the ceiling is structural, not a
// policy choice this code makes.
const selectMaxFD = 1024

// selectBackend is the bitset-scan back-end: in/out bitsets are copied into
// the kernel on every Wait, which then scans [0..highest fd] to report
// readiness. Intended for portability testing only, per the spec.
type selectBackend struct {
	readFds  map[int]bool
	writeFds map[int]bool
	maxFd    int
	ready    []Event
}

func newSelectBackend() (Backend, error) {
	return &selectBackend{
		readFds:  make(map[int]bool),
		writeFds: make(map[int]bool),
	}, nil
}

func (s *selectBackend) Add(fd int, mask Mask) error {
	if fd >= selectMaxFD {
		return fmt.Errorf("demux: fd %d exceeds select backend ceiling of %d", fd, selectMaxFD)
	}
	if mask&Read != 0 {
		s.readFds[fd] = true
	}
	if mask&Write != 0 {
		s.writeFds[fd] = true
	}
	if fd > s.maxFd {
		s.maxFd = fd
	}
	return nil
}

func (s *selectBackend) Remove(fd int, mask Mask) error {
	if mask&Read != 0 {
		delete(s.readFds, fd)
	}
	if mask&Write != 0 {
		delete(s.writeFds, fd)
	}
	return nil
}

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << uint(fd%64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<uint(fd%64)) != 0
}

func (s *selectBackend) Wait(timeoutMs int) (int, error) {
	var rfds, wfds unix.FdSet
	for fd := range s.readFds {
		fdSet(&rfds, fd)
	}
	for fd := range s.writeFds {
		fdSet(&wfds, fd)
	}

	var tvp *unix.Timeval
	if timeoutMs >= 0 {
		tv := unix.NsecToTimeval(int64(timeoutMs) * 1_000_000)
		tvp = &tv
	}

	n, err := unix.Select(s.maxFd+1, &rfds, &wfds, nil, tvp)
	if err != nil {
		return 0, err
	}

	s.ready = s.ready[:0]
	for fd := 0; fd <= s.maxFd; fd++ {
		r := fdIsSet(&rfds, fd)
		w := fdIsSet(&wfds, fd)
		if r || w {
			s.ready = append(s.ready, Event{FD: fd, Readable: r, Writable: w})
		}
	}
	return n, nil
}

func (s *selectBackend) Ready() []Event { return s.ready }

func (s *selectBackend) Close() error { return nil }
