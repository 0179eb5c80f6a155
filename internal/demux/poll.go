package demux

import "golang.org/x/sys/unix"

// pollBackend is the array back-end: a map fd -> registered mask, flattened
// into a contiguous []unix.PollFd on every Wait call and rebuilt afterward.
type pollBackend struct {
	registered map[int]Mask
	fds        []unix.PollFd
	ready      []Event
}

func newPollBackend() (Backend, error) {
	return &pollBackend{registered: make(map[int]Mask)}, nil
}

func toPollEvents(m Mask) int16 {
	var ev int16
	if m&Read != 0 {
		ev |= unix.POLLIN
	}
	if m&Write != 0 {
		ev |= unix.POLLOUT
	}
	return ev
}

func (p *pollBackend) Add(fd int, mask Mask) error {
	p.registered[fd] |= mask
	return nil
}

func (p *pollBackend) Remove(fd int, mask Mask) error {
	next := p.registered[fd] &^ mask
	if next == 0 {
		delete(p.registered, fd)
		return nil
	}
	p.registered[fd] = next
	return nil
}

func (p *pollBackend) Wait(timeoutMs int) (int, error) {
	p.fds = p.fds[:0]
	for fd, mask := range p.registered {
		p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: toPollEvents(mask)})
	}
	n, err := unix.Poll(p.fds, timeoutMs)
	if err != nil {
		return 0, err
	}
	p.ready = p.ready[:0]
	for _, pfd := range p.fds {
		if pfd.Revents == 0 {
			continue
		}
		hupOrErr := pfd.Revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0
		p.ready = append(p.ready, Event{
			FD:       int(pfd.Fd),
			Readable: hupOrErr || pfd.Revents&unix.POLLIN != 0,
			Writable: hupOrErr || pfd.Revents&unix.POLLOUT != 0,
			Err:      hupOrErr,
		})
	}
	return n, nil
}

func (p *pollBackend) Ready() []Event { return p.ready }

func (p *pollBackend) Close() error { return nil }
