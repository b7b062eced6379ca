package pgwire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Wire framing constants: 1 type byte, then a 4-byte big-endian length that
// counts itself but not the type byte.
const (
	lengthSize = 4
	headerSize = 5
)

// defaultMaxMessageLength is the largest declared message length accepted
// before the length field is considered corrupt (1MB).
const defaultMaxMessageLength = 1024 * 1024

// framingState tracks per-message header progress so that HasMessage never
// re-parses a header it has already consumed.
type framingState int

const (
	// stateNoHeader means no header bytes have been consumed yet.
	stateNoHeader framingState = iota
	// stateHeader means type and length are parsed but the body is not fully
	// buffered yet.
	stateHeader
	// stateReady means the whole declared message is buffered and reads are
	// bounded by the message's remaining length.
	stateReady
)

// ReadBuffer accumulates bytes received from the network and exposes them as
// a sequence of whole, length-framed protocol messages. Incoming chunks are
// kept in a FIFO queue with a persistent read cursor, so arbitrary network
// fragmentation never forces a flattening copy.
//
// The caller feeds chunks as they arrive, polls HasMessage, decodes the framed
// message with the typed reads, and calls DiscardMessage before polling for
// the next one. A ReadBuffer must be driven by a single goroutine; it does no
// locking and performs no I/O.
type ReadBuffer struct {
	chunks [][]byte // FIFO of immutable chunks, owned once fed
	pos    int      // read cursor within chunks[0], 0 <= pos <= len(chunks[0])
	unread int      // cached sum of unread bytes across all chunks

	maxMessageLength int32

	state        framingState
	msgType      byte
	msgLen       int32 // declared length, including the length field itself
	msgRemaining int   // unread bytes of the current message
}

// NewReadBuffer creates an empty ReadBuffer.
func NewReadBuffer() *ReadBuffer {
	return &ReadBuffer{maxMessageLength: defaultMaxMessageLength}
}

// Feed appends one received chunk. The buffer takes ownership: the caller
// must not mutate the chunk afterward. Empty chunks are ignored; EOF
// detection belongs to the transport, not to this layer.
func (b *ReadBuffer) Feed(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	b.chunks = append(b.chunks, chunk)
	b.unread += len(chunk)
}

// Len returns the number of unread bytes currently buffered.
func (b *ReadBuffer) Len() int {
	return b.unread
}

// evictHead drops fully consumed chunks from the front of the queue and
// re-syncs the cursor. Called lazily at the start of each read rather than
// eagerly after every byte, so single-byte reads do not churn the queue.
func (b *ReadBuffer) evictHead() {
	for len(b.chunks) > 0 && b.pos == len(b.chunks[0]) {
		b.chunks[0] = nil
		b.chunks = b.chunks[1:]
		b.pos = 0
	}
}

// ReadByte returns the next unread byte and advances the cursor.
func (b *ReadBuffer) ReadByte() (byte, error) {
	if b.state == stateReady && b.msgRemaining < 1 {
		return 0, errors.Wrap(ErrOverread, "read 1 byte with 0 remaining in message")
	}
	if b.unread < 1 {
		return 0, errors.Wrap(ErrUnderflow, "read 1 byte")
	}

	b.evictHead()
	c := b.chunks[0][b.pos]
	b.pos++
	b.unread--
	if b.state == stateReady {
		b.msgRemaining--
	}
	return c, nil
}

// ReadBytes returns the next n unread bytes. When the whole request sits
// inside the current head chunk the returned slice is a zero-copy view into
// that chunk's storage; a request spanning chunk boundaries is copied into a
// fresh allocation, since no contiguous source exists. Either way the result
// is read-only and must not be retained past the next call that mutates the
// buffer.
func (b *ReadBuffer) ReadBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	if b.state == stateReady && n > b.msgRemaining {
		return nil, errors.Wrapf(ErrOverread, "read %d bytes with %d remaining in message", n, b.msgRemaining)
	}
	if n > b.unread {
		return nil, errors.Wrapf(ErrUnderflow, "read %d bytes with %d buffered", n, b.unread)
	}

	b.evictHead()

	var p []byte
	if head := b.chunks[0]; len(head)-b.pos >= n {
		p = head[b.pos : b.pos+n : b.pos+n]
		b.pos += n
	} else {
		p = make([]byte, n)
		for copied := 0; copied < n; {
			b.evictHead()
			m := copy(p[copied:], b.chunks[0][b.pos:])
			b.pos += m
			copied += m
		}
	}

	b.unread -= n
	if b.state == stateReady {
		b.msgRemaining -= n
	}
	return p, nil
}

// ReadInt16 reads a 2-byte big-endian integer.
func (b *ReadBuffer) ReadInt16() (int16, error) {
	p, err := b.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(p)), nil
}

// ReadInt32 reads a 4-byte big-endian integer.
func (b *ReadBuffer) ReadInt32() (int32, error) {
	p, err := b.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(p)), nil
}

// ReadCString returns the bytes up to (excluding) the next NUL byte and
// consumes the terminator. The terminator position is not known in advance,
// so the scan may cross chunk boundaries. A message must currently be framed:
// the terminator search is bounded by the message's remaining length, and a
// string running past it is an overread.
func (b *ReadBuffer) ReadCString() ([]byte, error) {
	if b.state != stateReady {
		return nil, errors.Wrap(ErrNoMessage, "ReadCString outside a framed message")
	}

	// Find the distance from the cursor to the terminator without consuming.
	// A ready message is fully buffered, so the scan cannot run out of bytes
	// before msgRemaining is exhausted.
	end := -1
	scanned := 0
	pos := b.pos
	for i := 0; i < len(b.chunks) && end < 0; i++ {
		chunk := b.chunks[i]
		for ; pos < len(chunk); pos++ {
			if scanned == b.msgRemaining {
				return nil, errors.Wrapf(ErrOverread, "no string terminator within %d remaining bytes", b.msgRemaining)
			}
			if chunk[pos] == 0 {
				end = scanned
				break
			}
			scanned++
		}
		pos = 0
	}
	if end < 0 {
		return nil, errors.Wrapf(ErrOverread, "no string terminator within %d remaining bytes", b.msgRemaining)
	}

	s, err := b.ReadBytes(end)
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = []byte{}
	}
	if _, err := b.ReadByte(); err != nil {
		return nil, err
	}
	return s, nil
}

// HasMessage reports whether a complete framed message is buffered. It is
// idempotent and cheap to poll: the 5-byte header is consumed and parsed at
// most once per message, and partial-header state is retained across calls
// while the body trickles in. A false return means "wait for more Feed
// calls". A non-nil error means the declared length cannot be trusted and
// the connection should be closed.
func (b *ReadBuffer) HasMessage() (bool, error) {
	if b.state == stateReady {
		return true, nil
	}

	if b.state == stateNoHeader {
		if b.unread < headerSize {
			return false, nil
		}

		t, err := b.ReadByte()
		if err != nil {
			return false, err
		}
		l, err := b.ReadInt32()
		if err != nil {
			return false, err
		}
		if l < lengthSize || l > b.maxMessageLength {
			return false, errors.Wrapf(ErrMessageTooLarge, "declared length %d out of range [%d, %d]", l, lengthSize, b.maxMessageLength)
		}

		b.msgType = t
		b.msgLen = l
		b.msgRemaining = int(l) - lengthSize
		b.state = stateHeader
	}

	if b.unread < b.msgRemaining {
		return false, nil
	}

	b.state = stateReady
	return true, nil
}

// MessageType returns the type byte of the current message. Valid once
// HasMessage has returned true and until DiscardMessage.
func (b *ReadBuffer) MessageType() byte {
	return b.msgType
}

// MessageLength returns the declared length of the current message, including
// the 4-byte length field itself. Valid once HasMessage has returned true and
// until DiscardMessage.
func (b *ReadBuffer) MessageLength() int32 {
	return b.msgLen
}

// DiscardMessage consumes any unread tail of the current message and resets
// the framing state, allowing the next HasMessage cycle. Decoders call it
// after every message, even after reading the full body themselves; with
// nothing left to drain it only resets state. Calling it with no message
// framed returns ErrNoMessage.
func (b *ReadBuffer) DiscardMessage() error {
	if b.state != stateReady {
		return errors.Wrap(ErrNoMessage, "DiscardMessage")
	}

	for b.msgRemaining > 0 {
		b.evictHead()
		m := len(b.chunks[0]) - b.pos
		if m > b.msgRemaining {
			m = b.msgRemaining
		}
		b.pos += m
		b.unread -= m
		b.msgRemaining -= m
	}

	b.msgType = 0
	b.msgLen = 0
	b.state = stateNoHeader
	return nil
}
