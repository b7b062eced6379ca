// Package pgwire implements the wire-protocol buffering layer underneath a
// PostgreSQL-style database client. WriteBuffer assembles outgoing protocol
// messages with growable storage and primitive big-endian writers; ReadBuffer
// accumulates arbitrarily-chunked network data and exposes it as a sequence
// of whole, length-framed messages with a persistent zero-copy read cursor.
// Transport drives both ends of a connection through a Codec with
// asynchronous read and write loops; the buffers themselves never touch the
// socket.
package pgwire

import (
	"context"
	"math"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Errors returned by transport operations.
var (
	// ErrInvalidCodec is returned when no codec is provided.
	ErrInvalidCodec = errors.New("invalid codec callback")
	// ErrInvalidOnMessage is returned when no message handler is provided.
	ErrInvalidOnMessage = errors.New("invalid on message callback")
	// ErrConnectionClosed is returned when operating on a closed transport.
	ErrConnectionClosed = errors.New("connection closed")
)

// ErrBufferFull is returned when the outbound queue is full and cannot accept
// more messages. This signals backpressure: the peer or the network is not
// draining messages fast enough. Use WriteBlocking to wait for queue space,
// or drop the message if it is not critical.
var ErrBufferFull = errors.New("send buffer full")

// readChunkSize is how much is asked of the socket per read. Each read
// becomes one immutable chunk fed to the ReadBuffer.
const readChunkSize = 8 * 1024

// Default configuration values.
const (
	// defaultBufferSize is the default size of the outbound message channel.
	defaultBufferSize = 1
	// defaultIdleTimeout bounds how long the connection may sit idle.
	defaultIdleTimeout = time.Second * 30
)

// Transport owns one side of a protocol connection: the socket, the
// ReadBuffer reassembling inbound messages, and the outbound queue of
// assembled WriteBuffers. It decodes inbound messages through the configured
// codec and delivers them to the message handler.
type Transport struct {
	conn   net.Conn
	in     *ReadBuffer
	logger Logger

	opts options

	sendMsg chan *WriteBuffer
	closed  atomic.Bool
	cancel  context.CancelFunc
}

// NewTransport creates a transport around the given connection.
// It applies the provided options and validates them before returning.
// Returns an error if required options (codec, onMessage) are missing.
func NewTransport(conn net.Conn, opt ...Option) (*Transport, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	in := NewReadBuffer()
	in.maxMessageLength = int32(opts.maxMessageLength)

	return &Transport{
		conn:    conn,
		in:      in,
		logger:  opts.logger,
		opts:    opts,
		sendMsg: make(chan *WriteBuffer, opts.bufferSize),
	}, nil
}

// checkOptions validates and sets default values for transport options.
func checkOptions(opts *options) error {
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.maxMessageLength <= 0 {
		opts.maxMessageLength = defaultMaxMessageLength
	}
	// The declared length field is an int32 on the wire; a larger limit
	// cannot be expressed and must not wrap negative.
	if opts.maxMessageLength > math.MaxInt32 {
		opts.maxMessageLength = math.MaxInt32
	}

	if opts.onMessage == nil {
		return ErrInvalidOnMessage
	}

	if opts.idleTimeout <= 0 {
		opts.idleTimeout = defaultIdleTimeout
	}

	if opts.codec == nil {
		return ErrInvalidCodec
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return nil
}

// Run starts the transport's read and write loops.
// It creates two goroutines for concurrent reading and writing,
// and blocks until an error occurs or the context is canceled.
// The connection is automatically closed when Run returns.
func (t *Transport) Run(ctx context.Context) error {
	t.logger.Info("connection established", "addr", t.Addr())
	t.logger.Debug("transport options", "addr", t.Addr(),
		"buffer_size", t.opts.bufferSize,
		"max_message_length", t.opts.maxMessageLength,
		"idle_timeout", t.opts.idleTimeout)

	ctx, t.cancel = context.WithCancel(ctx)
	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		return t.readLoop(child)
	})

	group.Go(func() error {
		return t.writeLoop(child)
	})

	err := group.Wait()
	t.closeConn()

	if err != nil && !errors.Is(err, context.Canceled) {
		t.logger.Info("connection closed with error", "addr", t.Addr(), "error", err)
	} else {
		t.logger.Info("connection closed", "addr", t.Addr())
	}

	return err
}

// Close gracefully closes the transport.
// It cancels the context and closes the underlying connection.
// Safe to call multiple times.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil // already closed
	}
	if t.cancel != nil {
		t.cancel()
	}
	return t.conn.Close()
}

// IsClosed returns true if the transport has been closed.
func (t *Transport) IsClosed() bool {
	return t.closed.Load()
}

// Write encodes and queues a message without blocking (fire-and-forget).
//
// Returns:
//   - nil: message was successfully queued (not yet sent)
//   - ErrBufferFull: the outbound queue is full, message was NOT queued
//   - ErrConnectionClosed: transport is closed
//   - encoding error: if codec.Encode fails
//
// For guaranteed delivery under backpressure, use WriteBlocking instead.
func (t *Transport) Write(message Message) error {
	wb, err := t.encode(message)
	if err != nil {
		return err
	}

	select {
	case t.sendMsg <- wb:
		return nil
	default:
		return ErrBufferFull
	}
}

// WriteBlocking encodes and queues a message, blocking until the message is
// queued or the context is canceled.
//
// Returns:
//   - nil: message was successfully queued
//   - context.Canceled or context.DeadlineExceeded: context was canceled
//   - ErrConnectionClosed: transport is closed
//   - encoding error: if codec.Encode fails
func (t *Transport) WriteBlocking(ctx context.Context, message Message) error {
	wb, err := t.encode(message)
	if err != nil {
		return err
	}

	select {
	case t.sendMsg <- wb:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteTimeout encodes and queues a message, waiting up to timeout for queue
// space. This is the middle ground between Write (non-blocking) and
// WriteBlocking.
//
// Returns:
//   - nil: message was successfully queued
//   - ErrBufferFull: timeout expired before the message could be queued
//   - ErrConnectionClosed: transport is closed
//   - encoding error: if codec.Encode fails
func (t *Transport) WriteTimeout(message Message, timeout time.Duration) error {
	wb, err := t.encode(message)
	if err != nil {
		return err
	}

	select {
	case t.sendMsg <- wb:
		return nil
	case <-time.After(timeout):
		return ErrBufferFull
	}
}

// encode assembles message into a fresh WriteBuffer via the codec.
func (t *Transport) encode(message Message) (*WriteBuffer, error) {
	if t.closed.Load() {
		return nil, ErrConnectionClosed
	}

	wb := NewWriteBuffer()
	if err := t.opts.codec.Encode(message, wb); err != nil {
		return nil, err
	}
	return wb, nil
}

// Addr returns the remote address of the connection.
func (t *Transport) Addr() net.Addr {
	return t.conn.RemoteAddr()
}

// readLoop continuously reads from the connection, feeds the ReadBuffer, and
// dispatches every complete message. Returns when the context is canceled or
// an unrecoverable error occurs.
func (t *Transport) readLoop(ctx context.Context) error {
	scratch := make([]byte, readChunkSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			_ = t.conn.SetReadDeadline(time.Now().Add(t.opts.idleTimeout * 2))

			n, err := t.conn.Read(scratch)
			if n > 0 {
				// Feed transfers chunk ownership, and scratch is reused on
				// the next Read, so the chunk must be its own allocation.
				chunk := make([]byte, n)
				copy(chunk, scratch[:n])
				t.in.Feed(chunk)
			}
			if err != nil {
				t.logger.Debug("read error", "addr", t.Addr(), "error", err)
				if t.opts.onError(err) == Disconnect {
					return err
				}
				continue
			}

			if err = t.dispatch(); err != nil {
				return err
			}
		}
	}
}

// dispatch decodes and delivers every message currently framed in the
// ReadBuffer. Decode errors go through onError, except framing corruption
// (ErrOverread, ErrMessageTooLarge): once the cursor no longer agrees with
// the declared message boundaries the stream cannot be resynchronized, so
// those always fail the connection.
func (t *Transport) dispatch() error {
	for {
		ok, err := t.in.HasMessage()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		message, err := t.opts.codec.Decode(t.in)
		if err != nil {
			if errors.Is(err, ErrOverread) {
				return err
			}
			t.logger.Debug("decode error", "addr", t.Addr(), "type", t.in.MessageType(), "error", err)
			if t.opts.onError(err) == Disconnect {
				return err
			}
		}

		// Drain whatever the decoder left unread, even on a suppressed
		// decode error, so the next message starts at its real boundary.
		if err := t.in.DiscardMessage(); err != nil {
			return err
		}

		if message != nil {
			if err := t.opts.onMessage(message); err != nil {
				return err
			}
		}
	}
}

// writeLoop continuously flushes queued WriteBuffers to the connection.
// Returns when the context is canceled or an unrecoverable error occurs.
func (t *Transport) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case wb := <-t.sendMsg:
			if err := t.flush(wb); err != nil {
				return err
			}
		}
	}
}

// flush sends a WriteBuffer's contents to the connection with a deadline.
// The zero-copy view is released as soon as the send completes; the transport
// never retains it.
func (t *Transport) flush(wb *WriteBuffer) error {
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.opts.idleTimeout * 2))

	view := wb.View()
	_, err := t.conn.Write(view)
	wb.Release()

	if err != nil {
		t.logger.Debug("write error", "addr", t.Addr(), "error", err)
		if t.opts.onError(err) == Disconnect {
			return err
		}
	}

	return nil
}

// closeConn marks the transport as closed and closes the underlying connection.
func (t *Transport) closeConn() {
	t.closed.Store(true)
	t.conn.Close()
}
