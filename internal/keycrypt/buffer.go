package keycrypt

import (
	"runtime"
	"sync"
)

// Buffer is key material kept in pinned memory where the OS allows it.
// Wipe clears it; a finalizer wipes buffers that are dropped.
type Buffer struct {
	mu     sync.Mutex
	b      []byte
	pinned bool
}

// NewBuffer allocates a zeroed n-byte buffer.
func NewBuffer(n int) *Buffer {
	buf := &Buffer{b: make([]byte, n)}
	buf.pinned = pin(buf.b) == nil
	runtime.SetFinalizer(buf, (*Buffer).Wipe)
	return buf
}

// Copy returns a Buffer holding a copy of b.
func Copy(b []byte) *Buffer {
	buf := NewBuffer(len(b))
	copy(buf.b, b)
	return buf
}

// Bytes exposes the contents. It is nil once wiped.
func (buf *Buffer) Bytes() []byte {
	buf.mu.Lock()
	defer buf.mu.Unlock()
	return buf.b
}

func (buf *Buffer) Len() int {
	return len(buf.Bytes())
}

// Pinned reports whether the pages are locked against swapping.
func (buf *Buffer) Pinned() bool {
	buf.mu.Lock()
	defer buf.mu.Unlock()
	return buf.pinned
}

// Wipe zeroes and unpins the contents. Later calls do nothing.
func (buf *Buffer) Wipe() {
	buf.mu.Lock()
	defer buf.mu.Unlock()
	if buf.b == nil {
		return
	}
	Wipe(buf.b)
	if buf.pinned {
		unpin(buf.b)
		buf.pinned = false
	}
	buf.b = nil
	runtime.SetFinalizer(buf, nil)
}

// Wipe zeroes b in place.
func Wipe(b []byte) {
	clear(b)
}
