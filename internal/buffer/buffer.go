// Package buffer implements the growable byte queue used by every socket in
// the reactor: amortised-O(1) head consumption via an advancing misalignment
// offset, and amortised-O(1) tail growth via power-of-two doubling.
package buffer

import (
	"bytes"
	"errors"

	"golang.org/x/sys/unix"
)

// MaxRead caps a single readFd syscall, mirroring the spec's "min(count,
// 4096)" contract so one slow peer can't make a single Read loop hog a
// worker's reactor tick.
const MaxRead = 4096

// Buffer is an owned, heap-allocated byte region with three offsets:
// misalign (head padding already consumed), length (valid bytes) and
// cap(arr) (capacity). It is not safe for concurrent use; each connection
// owns two (input, output) and touches them only from its worker goroutine.
type Buffer struct {
	arr      []byte
	misalign int
	length   int
}

// New returns an empty buffer with the minimum pooled capacity.
func New() *Buffer {
	return &Buffer{arr: getPooled(minCapacity)[:minCapacity]}
}

// Release returns the backing array to the shared pool. The buffer must not
// be used afterward.
func (b *Buffer) Release() {
	if b.arr != nil {
		putPooled(b.arr)
		b.arr = nil
	}
	b.misalign = 0
	b.length = 0
}

// Len reports the number of valid, unread bytes.
func (b *Buffer) Len() int { return b.length }

// Cap reports the current backing capacity.
func (b *Buffer) Cap() int { return cap(b.arr) }

// Bytes returns the valid region. The slice is only valid until the next
// mutating call (Push/Pop/Read/Clear/Release), matching the teacher's
// convention of returning pooled, reused storage rather than copies.
func (b *Buffer) Bytes() []byte {
	return b.arr[b.misalign : b.misalign+b.length]
}

// Clear resets all offsets; capacity is retained.
func (b *Buffer) Clear() {
	b.misalign = 0
	b.length = 0
}

func nextPow2(n int) int {
	p := minCapacity
	for p < n {
		p <<= 1
	}
	return p
}

// ensureTail guarantees room for `need` additional bytes past the current
// valid region, realigning (memmove to offset 0) when the head padding
// already covers the need, or growing to the next power of two otherwise.
func (b *Buffer) ensureTail(need int) {
	if b.misalign+b.length+need <= cap(b.arr) {
		return
	}
	if b.misalign >= need {
		copy(b.arr[0:b.length], b.arr[b.misalign:b.misalign+b.length])
		b.misalign = 0
		return
	}
	newCap := nextPow2(b.misalign + b.length + need)
	fresh := getPooled(newCap)[:newCap]
	copy(fresh, b.arr[b.misalign:b.misalign+b.length])
	if b.arr != nil {
		putPooled(b.arr)
	}
	b.arr = fresh
	b.misalign = 0
}

// sentinel writes a trailing NUL one byte past the tail whenever space
// permits. It enables C-style string scans on Bytes() but is never a length
// guarantee — callers must still use Len().
func (b *Buffer) sentinel() {
	if b.misalign+b.length < cap(b.arr) {
		b.arr[b.misalign+b.length] = 0
	}
}

// Push appends p to the tail, growing as needed.
func (b *Buffer) Push(p []byte) {
	if len(p) == 0 {
		return
	}
	b.ensureTail(len(p))
	copy(b.arr[b.misalign+b.length:], p)
	b.length += len(p)
	b.sentinel()
}

// PushString appends s to the tail.
func (b *Buffer) PushString(s string) {
	b.Push([]byte(s))
}

// PushFrom appends the first n bytes of other's valid region and drains
// other by that amount.
func (b *Buffer) PushFrom(other *Buffer, n int) {
	if n <= 0 {
		return
	}
	if n > other.length {
		n = other.length
	}
	b.Push(other.arr[other.misalign : other.misalign+n])
	other.misalign += n
	other.length -= n
}

// Pop copies up to len(dst) head bytes out and drains them. It returns the
// number of bytes copied.
func (b *Buffer) Pop(dst []byte) int {
	n := len(dst)
	if n > b.length {
		n = b.length
	}
	copy(dst, b.arr[b.misalign:b.misalign+n])
	b.misalign += n
	b.length -= n
	return n
}

// Drain advances the head by n bytes without copying, for callers (the HTTP
// codec) that have already consumed the bytes via Bytes().
func (b *Buffer) Drain(n int) {
	if n > b.length {
		n = b.length
	}
	b.misalign += n
	b.length -= n
}

// lineTerm reports the terminator starting at offset i within the valid
// region, if any: 1 for a single CR or LF, 2 for CRLF/LFCR.
func (b *Buffer) lineTerm(i int) (width int, ok bool) {
	c := b.arr[b.misalign+i]
	if c != '\r' && c != '\n' {
		return 0, false
	}
	if i+1 < b.length {
		d := b.arr[b.misalign+i+1]
		if (c == '\r' && d == '\n') || (c == '\n' && d == '\r') {
			return 2, true
		}
	}
	return 1, true
}

// PopLine returns the next line (excluding its terminator) and true, or
// ("", false) if no terminator has arrived yet. CR, LF, CRLF and LFCR are
// all recognised; a two-byte terminator is consumed as a single line break.
func (b *Buffer) PopLine() (string, bool) {
	for i := 0; i < b.length; i++ {
		width, ok := b.lineTerm(i)
		if !ok {
			continue
		}
		line := string(b.arr[b.misalign : b.misalign+i])
		b.Drain(i + width)
		return line, true
	}
	return "", false
}

// Find returns the offset of needle within the valid region, or -1.
func (b *Buffer) Find(needle []byte) int {
	return bytes.Index(b.Bytes(), needle)
}

// IsTransient reports whether err represents EAGAIN/EWOULDBLOCK/EINTR —
// conditions the reactor treats as "try again on next readiness event"
// rather than a permanent I/O failure.
func IsTransient(err error) bool {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno == unix.EAGAIN || errno == unix.EWOULDBLOCK || errno == unix.EINTR || errno == unix.EINPROGRESS
	}
	return false
}

// ReadFd reads up to MaxRead bytes directly into the tail, growing if
// needed. It returns the number of bytes read, (0, nil) on peer EOF, or
// (0, err) on error — the caller inspects err with IsTransient.
func (b *Buffer) ReadFd(fd int) (int, error) {
	b.ensureTail(MaxRead)
	tail := b.arr[b.misalign+b.length : b.misalign+b.length+MaxRead]
	n, err := unix.Read(fd, tail)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		b.length += n
		b.sentinel()
	}
	return n, nil
}

// WriteFd writes the entire valid region in one syscall and drains by the
// number of bytes the kernel accepted, which may be a partial write.
func (b *Buffer) WriteFd(fd int) (int, error) {
	if b.length == 0 {
		return 0, nil
	}
	n, err := unix.Write(fd, b.Bytes())
	if n > 0 {
		b.Drain(n)
	}
	if err != nil {
		return n, err
	}
	return n, nil
}
