package reactor

import (
	"os"
	"testing"
	"time"

	"github.com/wxggg/libio-go/internal/demux"
)

func newTestReactor(t *testing.T) *Reactor {
	t.Helper()
	r, err := New(demux.KindEpoll)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestReactorFiresReadHandlerOnData(t *testing.T) {
	r := newTestReactor(t)
	rd, wr, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer rd.Close()
	defer wr.Close()

	fired := false
	if err := r.SetReadHandler(int(rd.Fd()), func() { fired = true }); err != nil {
		t.Fatal(err)
	}

	if _, err := wr.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}

	if err := r.Loop(false, true); err != nil {
		t.Fatalf("Loop: %v", err)
	}
	if !fired {
		t.Fatal("read handler did not fire")
	}
}

func TestReactorWriteHandlerFiresWhenWritable(t *testing.T) {
	r := newTestReactor(t)
	rd, wr, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer rd.Close()
	defer wr.Close()

	fired := false
	if err := r.SetWriteHandler(int(wr.Fd()), func() { fired = true }); err != nil {
		t.Fatal(err)
	}
	if err := r.Loop(false, true); err != nil {
		t.Fatalf("Loop: %v", err)
	}
	if !fired {
		t.Fatal("write handler did not fire for an always-writable pipe")
	}
}

func TestRemoveReadHandlerIsIdempotent(t *testing.T) {
	r := newTestReactor(t)
	rd, wr, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer rd.Close()
	defer wr.Close()

	fd := int(rd.Fd())
	r.RemoveReadHandler(fd) // no channel yet: must not panic

	if err := r.SetReadHandler(fd, func() {}); err != nil {
		t.Fatal(err)
	}
	r.RemoveReadHandler(fd)
	r.RemoveReadHandler(fd) // second removal: still must not panic

	if _, ok := r.channels[fd]; ok {
		t.Fatal("channel should have been erased once idle")
	}
}

func TestReactorStopsWhenChannelsAndTimersAreEmpty(t *testing.T) {
	r := newTestReactor(t)
	rd, wr, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer rd.Close()
	defer wr.Close()

	fd := int(rd.Fd())
	if err := r.SetReadHandler(fd, func() { r.RemoveReadHandler(fd) }); err != nil {
		t.Fatal(err)
	}
	if _, err := wr.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- r.Loop(false, false) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Loop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Loop did not exit once channels and timers drained")
	}
}

func TestReactorFiresTimerWithNoIO(t *testing.T) {
	r := newTestReactor(t)
	timerFired := false
	r.SetTimer(time.Millisecond, false, func() { timerFired = true })

	// Nothing to wait on but the timer: give the loop a bounded number of
	// blocking ticks, each waiting at most until the timer comes due.
	for i := 0; i < 100 && !timerFired; i++ {
		if err := r.tick(false); err != nil {
			t.Fatalf("tick: %v", err)
		}
		if r.timers.Len() == 0 {
			break
		}
	}
	if !timerFired {
		t.Fatal("timer never fired")
	}
}

func TestErrorHandlerFiresOnPeerClose(t *testing.T) {
	r := newTestReactor(t)
	rd, wr, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer rd.Close()

	fd := int(rd.Fd())
	errFired := false
	if err := r.SetReadHandler(fd, func() {}); err != nil {
		t.Fatal(err)
	}
	if err := r.SetErrorHandler(fd, func() { errFired = true }); err != nil {
		t.Fatal(err)
	}

	wr.Close() // writer goes away: reader side should see HUP

	if err := r.Loop(false, true); err != nil {
		t.Fatalf("Loop: %v", err)
	}
	if !errFired {
		t.Fatal("error handler did not fire on peer close")
	}
}
