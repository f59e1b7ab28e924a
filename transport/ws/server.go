package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/devicekit/iotexec/envelope"
	"github.com/devicekit/iotexec/transport"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const readLimit = 32768

// write chunks conservatively, estimating the final encoded JSON size
const writeLimit = readLimit / 3

// Listener is the device-side transport endpoint. Requesters connect over
// WebSocket and publish command envelopes; the response to each envelope is
// streamed back on the connection it arrived on.
type Listener struct {
	log        *zap.SugaredLogger
	listenAddr string
	pending    int

	tcpListener net.Listener
	httpServer  *http.Server

	inbound chan inboundRequest

	// reply target for the envelope most recently handed out by Receive.
	// The message loop is strictly sequential, so at most one response is
	// ever outstanding and no locking is needed around it.
	reply *replyTarget

	closed    chan struct{}
	closeOnce sync.Once
}

type inboundRequest struct {
	env  envelope.Envelope
	conn *websocket.Conn
	ctx  context.Context
}

type replyTarget struct {
	conn *websocket.Conn
	ctx  context.Context
}

type Option func(l *Listener)

func WithLogger(l *zap.Logger) Option {
	return func(lis *Listener) {
		lis.log = l.Named("ws_listener").Sugar()
	}
}

func WithListenAddr(s string) Option {
	return func(lis *Listener) {
		lis.listenAddr = s
	}
}

// WithPendingMessages sets the inbound queue depth. Connection readers
// block once the queue is full.
func WithPendingMessages(n int) Option {
	return func(lis *Listener) {
		lis.pending = n
	}
}

func NewListener(opts ...Option) *Listener {
	l := &Listener{
		log:        zap.NewNop().Sugar(),
		listenAddr: "0.0.0.0:7070",
		pending:    envelope.MaxPendingMessages,
		closed:     make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	l.inbound = make(chan inboundRequest, l.pending)
	return l
}

// Start binds the listen address and serves in the background. A bind
// failure is returned synchronously; it is fatal to the caller.
func (l *Listener) Start() error {
	tcpListener, err := net.Listen("tcp", l.listenAddr)
	if err != nil {
		return fmt.Errorf("listening TCP: %w", err)
	}
	l.tcpListener = tcpListener

	router := httprouter.New()
	router.GET("/exec", l.exec)
	router.GET("/healthz", l.healthz)

	l.httpServer = &http.Server{Handler: router}

	go func() {
		err := l.httpServer.Serve(tcpListener)
		if !errors.Is(err, http.ErrServerClosed) {
			l.log.Debugf("serve error: %s", err)
		}
	}()

	return nil
}

// Addr is the bound listen address, useful when listening on port 0.
func (l *Listener) Addr() net.Addr {
	return l.tcpListener.Addr()
}

func (l *Listener) exec(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionContextTakeover,
	})
	if err != nil {
		l.log.Debugf("error accepting WebSocket conn: %s", err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	l.log.Debug("accepted WebSocket conn")
	wsConn.SetReadLimit(readLimit)

	ctx := r.Context()
	for {
		var req requestMessage
		err := wsjson.Read(ctx, wsConn, &req)
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			l.log.Debug("got normal closure from requester")
			return
		}
		if err != nil {
			l.log.Debugf("conn reader got error: %s", err)
			return
		}

		select {
		case l.inbound <- inboundRequest{
			env:  envelope.Envelope{Header: req.Header, Body: req.Body},
			conn: wsConn,
			ctx:  ctx,
		}:
		case <-l.closed:
			wsConn.Close(websocket.StatusGoingAway, "listener closed")
			return
		case <-ctx.Done():
			return
		}
	}
}

func (l *Listener) healthz(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	b, err := json.Marshal(struct {
		Status string
	}{Status: "ok"})
	if err != nil {
		l.log.Debugf("error marshaling healthz response: %s", err)
	}
	w.Header().Add("Content-Type", "application/json")
	w.Write(b)
}

func (l *Listener) Receive(ctx context.Context) (envelope.Envelope, error) {
	select {
	case req := <-l.inbound:
		l.reply = &replyTarget{conn: req.conn, ctx: req.ctx}
		return req.env, nil
	case <-l.closed:
		return envelope.Envelope{}, transport.ErrClosed
	case <-ctx.Done():
		return envelope.Envelope{}, ctx.Err()
	}
}

// Stream sends the response for the last received envelope: a header frame,
// then body chunks as they are read, then a final done frame. The body is
// never buffered whole.
func (l *Listener) Stream(ctx context.Context, headers []byte, body io.Reader) error {
	target := l.reply
	if target == nil {
		return errors.New("no request awaiting a response")
	}
	l.reply = nil

	err := wsjson.Write(ctx, target.conn, responseMessage{Header: headers})
	if err != nil {
		return fmt.Errorf("sending headers: %w", err)
	}

	buf := make([]byte, writeLimit)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			err := wsjson.Write(ctx, target.conn, responseMessage{Body: buf[:n]})
			if err != nil {
				return fmt.Errorf("sending body chunk: %w", err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("reading body: %w", readErr)
		}
	}

	err = wsjson.Write(ctx, target.conn, responseMessage{Done: true})
	if err != nil {
		return fmt.Errorf("sending done frame: %w", err)
	}
	return nil
}

func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		if l.httpServer != nil {
			err = l.httpServer.Close()
		}
	})
	return err
}
