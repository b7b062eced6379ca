package pgwire

import "encoding/binary"

// Default sizing for WriteBuffer storage.
const (
	// initialWriteCapacity is the allocation a fresh WriteBuffer starts with.
	initialWriteCapacity = 256
	// growFloor is the capacity the buffer jumps to on the first grow.
	// Growing straight to the floor instead of doubling keeps the common
	// one-message-per-buffer case to a single reallocation.
	growFloor = 64 * 1024
)

// WriteBuffer assembles one outgoing protocol message. It owns a contiguous
// backing allocation that grows on demand and never shrinks, and provides the
// primitive writers for the wire format: raw bytes, single bytes,
// NUL-terminated strings, and fixed-width big-endian integers.
//
// A WriteBuffer must be driven by a single goroutine; it does no locking and
// performs no I/O. The caller hands the finished contents to the transport via
// View and releases the view once the send completes.
type WriteBuffer struct {
	storage []byte // backing allocation, len(storage) is the capacity
	n       int    // bytes written so far, n <= len(storage)
	views   int    // live views handed out by View and not yet Released
}

// NewWriteBuffer creates an empty WriteBuffer with a small initial capacity.
func NewWriteBuffer() *WriteBuffer {
	return &WriteBuffer{storage: make([]byte, initialWriteCapacity)}
}

// grow ensures room for need more bytes. Growth goes to max(needed, growFloor)
// in one step rather than doubling repeatedly.
func (b *WriteBuffer) grow(need int) {
	if b.n+need <= len(b.storage) {
		return
	}

	capacity := b.n + need
	if capacity < growFloor {
		capacity = growFloor
	}

	storage := make([]byte, capacity)
	copy(storage, b.storage[:b.n])
	b.storage = storage
}

// WriteBytes appends the entire contents of p. Empty input is a no-op.
func (b *WriteBuffer) WriteBytes(p []byte) {
	if len(p) == 0 {
		return
	}
	b.grow(len(p))
	b.n += copy(b.storage[b.n:], p)
}

// WriteByte appends a single byte. The error is always nil; it is there to
// satisfy io.ByteWriter.
func (b *WriteBuffer) WriteByte(c byte) error {
	b.grow(1)
	b.storage[b.n] = c
	b.n++
	return nil
}

// WriteCString appends s followed by a single terminating zero byte.
// s must not itself contain a NUL byte; an embedded terminator silently
// truncates the string for the peer's parser, so keeping it out is the
// caller's responsibility.
func (b *WriteBuffer) WriteCString(s string) {
	b.grow(len(s) + 1)
	b.n += copy(b.storage[b.n:], s)
	b.storage[b.n] = 0
	b.n++
}

// WriteInt16 appends v as a 2-byte big-endian integer.
func (b *WriteBuffer) WriteInt16(v int16) {
	b.grow(2)
	binary.BigEndian.PutUint16(b.storage[b.n:], uint16(v))
	b.n += 2
}

// WriteInt32 appends v as a 4-byte big-endian integer.
func (b *WriteBuffer) WriteInt32(v int32) {
	b.grow(4)
	binary.BigEndian.PutUint32(b.storage[b.n:], uint32(v))
	b.n += 4
}

// Len returns the number of bytes written so far.
func (b *WriteBuffer) Len() int {
	return b.n
}

// Cap returns the current capacity of the backing allocation.
func (b *WriteBuffer) Cap() int {
	return len(b.storage)
}

// View returns a read-only zero-copy view of the buffer's current contents,
// suitable for a single transport send. The view aliases the backing storage:
// it must not be retained after the send completes, and must not be mutated.
// Every View call must be paired with a Release before the buffer is Reset.
func (b *WriteBuffer) View() []byte {
	b.views++
	return b.storage[:b.n:b.n]
}

// Release returns a view obtained from View. Releasing more views than were
// taken is a programming error and panics.
func (b *WriteBuffer) Release() {
	if b.views == 0 {
		panic("pgwire: WriteBuffer.Release without outstanding view")
	}
	b.views--
}

// Reset discards the buffer's contents so it can assemble the next message.
// The backing allocation is kept. Resetting while views are outstanding would
// let the transport read bytes of the next message through a stale view, so
// it is treated as a fatal programming error and panics.
func (b *WriteBuffer) Reset() {
	if b.views > 0 {
		panic("pgwire: WriteBuffer.Reset with outstanding views")
	}
	b.n = 0
}
