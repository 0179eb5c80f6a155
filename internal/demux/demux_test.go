package demux

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

func eachBackend(t *testing.T, fn func(t *testing.T, kind Kind)) {
	for _, kind := range []Kind{KindEpoll, KindPoll, KindSelect} {
		kind := kind
		t.Run(kind.String(), func(t *testing.T) {
			fn(t, kind)
		})
	}
}

func TestBackendReportsReadReadiness(t *testing.T) {
	eachBackend(t, func(t *testing.T, kind Kind) {
		r, w, err := os.Pipe()
		if err != nil {
			t.Fatal(err)
		}
		defer r.Close()
		defer w.Close()
		if err := unix.SetNonblock(int(r.Fd()), true); err != nil {
			t.Fatal(err)
		}

		b, err := New(kind)
		if err != nil {
			t.Fatalf("New(%v): %v", kind, err)
		}
		defer b.Close()

		if err := b.Add(int(r.Fd()), Read); err != nil {
			t.Fatalf("Add: %v", err)
		}

		if n, err := b.Wait(0); err != nil {
			t.Fatalf("Wait: %v", err)
		} else if n != 0 {
			t.Fatalf("Wait before write: n=%d, want 0", n)
		}

		if _, err := w.Write([]byte("x")); err != nil {
			t.Fatal(err)
		}

		n, err := b.Wait(1000)
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
		if n != 1 {
			t.Fatalf("Wait after write: n=%d, want 1", n)
		}
		ready := b.Ready()
		if len(ready) != 1 || ready[0].FD != int(r.Fd()) || !ready[0].Readable {
			t.Fatalf("Ready() = %+v, want one readable event for fd %d", ready, r.Fd())
		}
	})
}

func TestBackendRemoveStopsReporting(t *testing.T) {
	eachBackend(t, func(t *testing.T, kind Kind) {
		r, w, err := os.Pipe()
		if err != nil {
			t.Fatal(err)
		}
		defer r.Close()
		defer w.Close()
		unix.SetNonblock(int(r.Fd()), true)

		b, err := New(kind)
		if err != nil {
			t.Fatalf("New(%v): %v", kind, err)
		}
		defer b.Close()

		if err := b.Add(int(r.Fd()), Read); err != nil {
			t.Fatal(err)
		}
		if err := b.Remove(int(r.Fd()), Read); err != nil {
			t.Fatal(err)
		}
		w.Write([]byte("x"))

		n, err := b.Wait(50)
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
		if n != 0 {
			t.Fatalf("Wait after Remove: n=%d, want 0", n)
		}
	})
}

func TestBackendWriteReadiness(t *testing.T) {
	eachBackend(t, func(t *testing.T, kind Kind) {
		r, w, err := os.Pipe()
		if err != nil {
			t.Fatal(err)
		}
		defer r.Close()
		defer w.Close()
		unix.SetNonblock(int(w.Fd()), true)

		b, err := New(kind)
		if err != nil {
			t.Fatalf("New(%v): %v", kind, err)
		}
		defer b.Close()

		// A pipe's write end is writable as soon as there's buffer room,
		// which is immediately true for a fresh pipe.
		if err := b.Add(int(w.Fd()), Write); err != nil {
			t.Fatal(err)
		}
		n, err := b.Wait(1000)
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
		if n != 1 {
			t.Fatalf("Wait: n=%d, want 1", n)
		}
		ready := b.Ready()
		if len(ready) != 1 || !ready[0].Writable {
			t.Fatalf("Ready() = %+v, want one writable event", ready)
		}
	})
}

func TestSelectBackendRejectsFDBeyondCeiling(t *testing.T) {
	b, err := New(KindSelect)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if err := b.Add(selectMaxFD, Read); err == nil {
		t.Fatalf("Add(fd=%d) should fail beyond the select ceiling", selectMaxFD)
	}
}
