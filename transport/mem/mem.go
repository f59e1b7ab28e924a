package mem

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/devicekit/iotexec/envelope"
	"github.com/devicekit/iotexec/transport"
)

// Message is one delivered outbound message.
type Message struct {
	Headers []byte
	Body    []byte
}

// Transport is an in-process transport backed by bounded channels. The
// publishing side enqueues envelopes with Publish and consumes responses
// from Responses; the pipeline side uses the transport.Transport methods.
type Transport struct {
	inbound   chan envelope.Envelope
	responses chan Message

	closed    chan struct{}
	closeOnce sync.Once
}

// New creates a transport whose inbound queue holds up to pending envelopes.
func New(pending int) *Transport {
	return &Transport{
		inbound:   make(chan envelope.Envelope, pending),
		responses: make(chan Message, pending),
		closed:    make(chan struct{}),
	}
}

// Publish enqueues an inbound envelope, blocking while the queue is full.
func (t *Transport) Publish(ctx context.Context, env envelope.Envelope) error {
	select {
	case t.inbound <- env:
		return nil
	case <-t.closed:
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Responses delivers outbound messages in the order they were sent.
func (t *Transport) Responses() <-chan Message {
	return t.responses
}

func (t *Transport) Receive(ctx context.Context) (envelope.Envelope, error) {
	select {
	case env := <-t.inbound:
		return env, nil
	case <-t.closed:
		return envelope.Envelope{}, transport.ErrClosed
	case <-ctx.Done():
		return envelope.Envelope{}, ctx.Err()
	}
}

func (t *Transport) Stream(ctx context.Context, headers []byte, body io.Reader) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	select {
	case t.responses <- Message{Headers: headers, Body: b}:
		return nil
	case <-t.closed:
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
	})
	return nil
}
