package pgwire

// Message is a single protocol message. Implementations carry the decoded
// fields of their message kind; the type tag drives the caller's dispatch.
type Message interface {
	// Type returns the 1-byte wire type tag of this message.
	Type() byte
}

// Codec translates between Messages and the wire framing. Applications
// implement it for the concrete message kinds their protocol dialect uses
// (startup, authentication, query, row data, and so on).
//
// Decode is only ever called with a complete message framed in r: the type
// and declared length accessors are valid, and every read is bounded by the
// message's remaining length, so a decoder whose field layout disagrees with
// the header fails with ErrOverread instead of consuming the next message.
// The decoder may leave trailing bytes unread; the transport drains them.
type Codec interface {
	// Decode reads one message's fields from r and returns the decoded
	// message. It must not call DiscardMessage.
	Decode(r *ReadBuffer) (Message, error)
	// Encode appends m to w as a complete framed message, header included.
	// WriteBuffer supplies only the primitive writers, so implementations
	// either precompute the body length before writing the header or patch
	// a placeholder afterward.
	Encode(m Message, w *WriteBuffer) error
}
