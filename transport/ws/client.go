package ws

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/devicekit/iotexec/envelope"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Client publishes command envelopes to a device and collects the streamed
// replies. It is the requester half of the transport, used by tests and by
// command senders.
type Client struct {
	log  *zap.SugaredLogger
	host string
	conn *websocket.Conn

	customizeRetryableClient func(*retryablehttp.Client)
}

type ClientOption func(c *Client)

func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		c.log = l.Named("ws_client").Sugar()
	}
}

func WithCustomizeRetryableClient(f func(r *retryablehttp.Client)) ClientOption {
	return func(c *Client) {
		c.customizeRetryableClient = f
	}
}

type logAdapter struct {
	*zap.SugaredLogger
}

func (a *logAdapter) Printf(msg string, args ...interface{}) { a.Debugf(msg, args...) }

// Dial waits for the device endpoint to come up and opens a WebSocket
// connection to it. The host is "addr:port".
func Dial(ctx context.Context, host string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		log:  zap.NewNop().Sugar(),
		host: host,
	}
	for _, o := range opts {
		o(c)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.Logger = &logAdapter{c.log}
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = 1 * time.Second
	if c.customizeRetryableClient != nil {
		c.customizeRetryableClient(retryClient)
	}

	req, err := retryablehttp.NewRequest(http.MethodGet, fmt.Sprintf("http://%s/healthz", host), nil)
	if err != nil {
		return nil, fmt.Errorf("building healthz request: %w", err)
	}
	resp, err := retryClient.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("waiting for device endpoint: %w", err)
	}
	resp.Body.Close()

	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/exec", host), nil)
	if err != nil {
		return nil, fmt.Errorf("dialing WebSocket: %w", err)
	}
	conn.SetReadLimit(readLimit)
	c.conn = conn

	return c, nil
}

// Publish sends one command envelope. It does not wait for the reply.
func (c *Client) Publish(ctx context.Context, headers, body []byte) error {
	c.log.Debugf("publishing envelope, header %d bytes, body %d bytes", len(headers), len(body))
	return wsjson.Write(ctx, c.conn, requestMessage{Header: headers, Body: body})
}

// Response is one fully collected reply.
type Response struct {
	Headers envelope.Headers
	Body    []byte
}

// CorrelationID is the correlation id echoed by the device, or empty if the
// request carried no message id.
func (r *Response) CorrelationID() string {
	v, _ := r.Headers.Get(envelope.CorrelationIDKey)
	return v
}

// ReadResponse collects the next streamed reply to completion.
func (c *Client) ReadResponse(ctx context.Context) (*Response, error) {
	var header []byte
	var body bytes.Buffer
	for {
		var msg responseMessage
		err := wsjson.Read(ctx, c.conn, &msg)
		if err != nil {
			return nil, fmt.Errorf("reading response frame: %w", err)
		}
		if msg.Header != nil {
			header = msg.Header
		}
		body.Write(msg.Body)
		if msg.Done {
			break
		}
	}

	headers, warnings := envelope.ParseHeaders(header)
	for _, w := range warnings {
		c.log.Debugf("response header warning: %s", w)
	}
	return &Response{Headers: headers, Body: body.Bytes()}, nil
}

// Exec publishes a tracked command request and waits for its reply,
// verifying the echoed correlation id.
func (c *Client) Exec(ctx context.Context, command string) (*Response, error) {
	id := uuid.NewString()
	headers := []byte(envelope.MessageIDKey + ":" + id)

	err := c.Publish(ctx, headers, []byte(command))
	if err != nil {
		return nil, fmt.Errorf("publishing command: %w", err)
	}

	resp, err := c.ReadResponse(ctx)
	if err != nil {
		return nil, err
	}
	if got := resp.CorrelationID(); got != id {
		return nil, fmt.Errorf("correlation mismatch: sent %s, got %s", id, got)
	}
	return resp, nil
}

func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
