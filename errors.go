package pgwire

import "github.com/pkg/errors"

// Errors returned by buffer operations.
var (
	// ErrUnderflow is returned when a read requests more bytes than are
	// currently buffered. It is not a protocol violation: the caller should
	// feed more network data and retry.
	ErrUnderflow = errors.New("not enough data buffered")

	// ErrOverread is returned when a read would consume bytes past the end of
	// the currently framed message. This always indicates a decoder whose
	// field layout disagrees with the declared message length; the stream is
	// desynchronized and the connection should be torn down.
	ErrOverread = errors.New("read past message boundary")

	// ErrNoMessage is returned when a message-scoped operation (DiscardMessage,
	// ReadCString) is called while no message is framed. This is an integration
	// bug in the caller, not a network condition.
	ErrNoMessage = errors.New("no message framed")

	// ErrMessageTooLarge is returned by HasMessage when a message header
	// declares a length above the configured limit (or below the minimum the
	// framing format allows). The length field cannot be trusted and the
	// connection should be closed.
	ErrMessageTooLarge = errors.New("message too large")
)
