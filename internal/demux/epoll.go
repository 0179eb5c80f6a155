package demux

import "golang.org/x/sys/unix"

// epollBackend is the edge-registration back-end: one kernel epoll instance,
// per-fd registered mask tracked so add/mod/del calls only happen on actual
// mask transitions.
type epollBackend struct {
	epfd       int
	registered map[int]Mask
	events     []unix.EpollEvent
	ready      []Event
}

func newEpollBackend() (Backend, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollBackend{
		epfd:       fd,
		registered: make(map[int]Mask),
		events:     make([]unix.EpollEvent, 64),
	}, nil
}

func toEpollEvents(m Mask) uint32 {
	var ev uint32
	if m&Read != 0 {
		ev |= unix.EPOLLIN
	}
	if m&Write != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (e *epollBackend) Add(fd int, mask Mask) error {
	cur, exists := e.registered[fd]
	next := cur | mask
	if exists && next == cur {
		return nil
	}
	op := unix.EPOLL_CTL_MOD
	if !exists {
		op = unix.EPOLL_CTL_ADD
	}
	ev := unix.EpollEvent{Events: toEpollEvents(next), Fd: int32(fd)}
	if err := unix.EpollCtl(e.epfd, op, fd, &ev); err != nil {
		return err
	}
	e.registered[fd] = next
	return nil
}

func (e *epollBackend) Remove(fd int, mask Mask) error {
	cur, exists := e.registered[fd]
	if !exists {
		return nil
	}
	next := cur &^ mask
	if next == cur {
		return nil
	}
	if next == 0 {
		if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
			return err
		}
		delete(e.registered, fd)
		return nil
	}
	ev := unix.EpollEvent{Events: toEpollEvents(next), Fd: int32(fd)}
	if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return err
	}
	e.registered[fd] = next
	return nil
}

func (e *epollBackend) Wait(timeoutMs int) (int, error) {
	if len(e.registered) > len(e.events) {
		e.events = make([]unix.EpollEvent, len(e.registered)*2)
	}
	n, err := unix.EpollWait(e.epfd, e.events, timeoutMs)
	if err != nil {
		return 0, err
	}
	e.ready = e.ready[:0]
	for i := 0; i < n; i++ {
		ev := e.events[i]
		hupOrErr := ev.Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0
		e.ready = append(e.ready, Event{
			FD:       int(ev.Fd),
			Readable: hupOrErr || ev.Events&unix.EPOLLIN != 0,
			Writable: hupOrErr || ev.Events&unix.EPOLLOUT != 0,
			Err:      hupOrErr,
		})
	}
	return n, nil
}

func (e *epollBackend) Ready() []Event { return e.ready }

func (e *epollBackend) Close() error {
	return unix.Close(e.epfd)
}
