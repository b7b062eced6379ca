package pgwire

import (
	"time"
)

// ErrorAction defines the action to take when an error occurs.
type ErrorAction int

const (
	// Disconnect closes the connection when an error occurs.
	Disconnect ErrorAction = iota
	// Continue suppresses the error and continues processing.
	Continue
)

// options holds the configuration for a transport.
type options struct {
	codec  Codec
	logger Logger

	onMessage func(message Message) error
	// onError is called when a read, write, or decode error occurs.
	// Returns Disconnect to close the connection, Continue to suppress it.
	onError func(error) ErrorAction

	bufferSize       int           // size of the outbound message channel
	maxMessageLength int           // largest declared message length accepted
	idleTimeout      time.Duration // read/write deadlines are idleTimeout * 2
}

// Option is a function that configures transport options.
type Option func(*options)

// CustomCodecOption returns an Option that sets the message codec.
// The codec is required and must be provided before creating a transport.
func CustomCodecOption(codec Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

// BufferSizeOption returns an Option that sets the size of the outbound
// message channel. A larger buffer allows more messages to be queued before
// Write reports backpressure.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// MessageMaxSize returns an Option that sets the largest declared message
// length the read side will accept. A header declaring more than this is
// treated as corrupt and fails the connection before any allocation sized
// by it.
func MessageMaxSize(size int) Option {
	return func(o *options) {
		o.maxMessageLength = size
	}
}

// IdleTimeoutOption returns an Option that sets the idle timeout.
// Read and write deadlines on the connection are set to twice this value.
func IdleTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = timeout
	}
}

// OnErrorOption returns an Option that sets the error callback.
// The callback is invoked when a read/write/decode error occurs.
// Return Disconnect to close the connection, or Continue to suppress the
// error. Framing errors (ErrOverread, ErrMessageTooLarge) always disconnect,
// since the stream is desynchronized and cannot be locally repaired.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// OnMessageOption returns an Option that sets the message handler callback.
// This callback is required and is invoked for each decoded message.
func OnMessageOption(cb func(Message) error) Option {
	return func(o *options) {
		o.onMessage = cb
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
