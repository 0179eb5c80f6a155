package buffer

import (
	"bytes"
	"testing"
)

func TestPushPopRoundTrip(t *testing.T) {
	b := New()
	defer b.Release()

	parts := [][]byte{[]byte("hello "), []byte("world"), []byte("!")}
	var want []byte
	for _, p := range parts {
		b.Push(p)
		want = append(want, p...)
	}

	got := make([]byte, len(want))
	n := b.Pop(got)
	if n != len(want) {
		t.Fatalf("Pop returned %d, want %d", n, len(want))
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("Pop() = %q, want %q", got, want)
	}
	if b.Len() != 0 {
		t.Fatalf("buffer not drained, Len()=%d", b.Len())
	}
}

func TestPopLineTerminators(t *testing.T) {
	for _, term := range []string{"\r\n", "\n\r", "\r", "\n"} {
		b := New()
		b.PushString("GET /x" + term + "rest")
		line, ok := b.PopLine()
		if !ok {
			t.Fatalf("terminator %q: PopLine reported no line", term)
		}
		if line != "GET /x" {
			t.Fatalf("terminator %q: line = %q, want %q", term, line, "GET /x")
		}
		if got := string(b.Bytes()); got != "rest" {
			t.Fatalf("terminator %q: remainder = %q, want %q", term, got, "rest")
		}
		b.Release()
	}
}

func TestPopLineNeedsMore(t *testing.T) {
	b := New()
	defer b.Release()
	b.PushString("no terminator yet")
	if _, ok := b.PopLine(); ok {
		t.Fatalf("PopLine should report no line present")
	}
}

func TestFind(t *testing.T) {
	b := New()
	defer b.Release()
	b.PushString("abcXYZdef")
	if off := b.Find([]byte("XYZ")); off != 3 {
		t.Fatalf("Find = %d, want 3", off)
	}
	if off := b.Find([]byte("nope")); off != -1 {
		t.Fatalf("Find = %d, want -1", off)
	}
}

func TestGrowthBeyondInitialCapacity(t *testing.T) {
	b := New()
	defer b.Release()
	big := bytes.Repeat([]byte("x"), 10_000)
	b.Push(big)
	if b.Len() != len(big) {
		t.Fatalf("Len() = %d, want %d", b.Len(), len(big))
	}
	if !bytes.Equal(b.Bytes(), big) {
		t.Fatalf("grown buffer contents mismatch")
	}
}

func TestDrainReclaimsHeadViaRealign(t *testing.T) {
	b := New()
	defer b.Release()

	// Consume most of the buffer from the head, then push enough that the
	// realign branch (misalign >= need) fires instead of a reallocation.
	b.PushString(string(bytes.Repeat([]byte("a"), 200)))
	discard := make([]byte, 190)
	b.Pop(discard)
	before := b.Cap()
	b.PushString(string(bytes.Repeat([]byte("b"), 150)))
	if b.Cap() != before {
		t.Fatalf("expected realign, not growth: cap before=%d after=%d", before, b.Cap())
	}
}

func TestClearRetainsCapacity(t *testing.T) {
	b := New()
	defer b.Release()
	b.PushString("some data")
	capBefore := b.Cap()
	b.Clear()
	if b.Len() != 0 {
		t.Fatalf("Len() after Clear = %d, want 0", b.Len())
	}
	if b.Cap() != capBefore {
		t.Fatalf("Cap() after Clear = %d, want %d", b.Cap(), capBefore)
	}
}

func TestPushFromDrainsSource(t *testing.T) {
	src := New()
	defer src.Release()
	dst := New()
	defer dst.Release()

	src.PushString("hello world")
	dst.PushFrom(src, 5)

	if got := string(dst.Bytes()); got != "hello" {
		t.Fatalf("dst = %q, want %q", got, "hello")
	}
	if got := string(src.Bytes()); got != " world" {
		t.Fatalf("src remainder = %q, want %q", got, " world")
	}
}
