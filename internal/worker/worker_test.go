package worker

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/wxggg/libio-go/internal/demux"
	"github.com/wxggg/libio-go/internal/httpcodec"
	"github.com/wxggg/libio-go/internal/httpconn"
	"github.com/wxggg/libio-go/internal/metrics"
)

type recordingDispatcher struct{ paths []string }

func (d *recordingDispatcher) Dispatch(c *httpconn.Connection, req *httpcodec.Message) {
	d.paths = append(d.paths, req.Path)
	c.SendReply(200, "OK", []byte("ok"))
}

func TestWorkerHandsOffConnectionAndDispatches(t *testing.T) {
	m := metrics.New()
	disp := &recordingDispatcher{}
	w, err := New(demux.KindEpoll, disp, m)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Close(fds[1])

	w.Enqueue(fds[0], "127.0.0.1", 12345)

	// Drive the wakeup tick (which binds the connection and raises its read
	// and write interest), then one tick in which the write interest fires
	// on the still-empty output buffer and is dropped. Nothing is readable
	// until the request is written below, so a further tick would block.
	for i := 0; i < 2; i++ {
		if err := w.Reactor.Loop(false, true); err != nil {
			t.Fatalf("Loop: %v", err)
		}
	}

	if w.ActiveCount() != 1 {
		t.Fatalf("ActiveCount = %d, want 1", w.ActiveCount())
	}

	if _, err := unix.Write(fds[1], []byte("GET /ping HTTP/1.1\r\n\r\n")); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for len(disp.paths) == 0 && time.Now().Before(deadline) {
		if err := w.Reactor.Loop(false, true); err != nil {
			t.Fatalf("Loop: %v", err)
		}
	}

	if len(disp.paths) != 1 || disp.paths[0] != "/ping" {
		t.Fatalf("dispatched paths = %v", disp.paths)
	}
}

func TestWorkerReusesFreedConnections(t *testing.T) {
	m := metrics.New()
	disp := &recordingDispatcher{}
	w, err := New(demux.KindEpoll, disp, m)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	w.Enqueue(fds[0], "127.0.0.1", 1)
	for i := 0; i < 2; i++ {
		w.Reactor.Loop(false, true)
	}
	unix.Close(fds[1]) // peer EOF: the connection should close and free up
	deadline := time.Now().Add(time.Second)
	for w.ActiveCount() != 0 && time.Now().Before(deadline) {
		w.Reactor.Loop(false, true)
	}
	if w.ActiveCount() != 0 {
		t.Fatal("connection never returned to the free pool after EOF")
	}
	if len(w.free) != 1 {
		t.Fatalf("free pool size = %d, want 1", len(w.free))
	}

	fds2, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Close(fds2[1])
	w.Enqueue(fds2[0], "127.0.0.1", 2)
	w.Reactor.Loop(false, true)
	if len(w.free) != 0 {
		t.Fatalf("free pool should have been drawn from, size = %d", len(w.free))
	}
}
