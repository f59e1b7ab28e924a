package transport

import (
	"context"
	"errors"
	"io"

	"github.com/devicekit/iotexec/envelope"
)

// ErrClosed is returned by Receive and Stream after the transport has been
// closed. It is a fatal condition for the message loop.
var ErrClosed = errors.New("transport is closed")

// Receiver delivers inbound envelopes. Receive blocks until an envelope is
// available, the context is canceled, or the transport is closed.
type Receiver interface {
	Receive(ctx context.Context) (envelope.Envelope, error)
}

// Sender delivers one outbound message. Implementations forward the body
// progressively as it is read; the body length is unbounded and must not be
// buffered whole.
type Sender interface {
	Stream(ctx context.Context, headers []byte, body io.Reader) error
}

// Transport is a bidirectional messaging channel. It is the only long-lived
// shared resource of the pipeline and is exclusively owned by the message
// loop, which mediates all use of it.
type Transport interface {
	Receiver
	Sender
	io.Closer
}
