// Package service runs the message-driven command execution pipeline: it
// receives command envelopes from a transport, executes each body as a host
// command, and streams the command's stdout back as a correlated reply.
// Processing is strictly sequential, so replies are emitted in arrival
// order. There is no per-command timeout: a command that never terminates
// blocks all further message processing.
package service

import (
	"context"
	"fmt"

	"github.com/devicekit/iotexec/envelope"
	"github.com/devicekit/iotexec/executor"
	"github.com/devicekit/iotexec/transport"
	"go.uber.org/zap"
)

// Outbound header lines identifying command responses.
const (
	SourceHeader      = "source:exec"
	MessageTypeHeader = "messagetype:cmdresp"
)

// Service is the message loop. It exclusively owns the transport handle.
type Service struct {
	log  *zap.SugaredLogger
	tpt  transport.Transport
	exec *executor.Executor
}

type Option func(s *Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		s.log = l.Named("service").Sugar()
	}
}

func WithExecutor(e *executor.Executor) Option {
	return func(s *Service) {
		s.exec = e
	}
}

func New(tpt transport.Transport, opts ...Option) *Service {
	s := &Service{
		log: zap.NewNop().Sugar(),
		tpt: tpt,
	}
	for _, o := range opts {
		o(s)
	}
	if s.exec == nil {
		s.exec = executor.New()
	}
	return s
}

// Run processes messages until the context is canceled or the transport
// fails. Per-message errors (oversized envelope, spawn failure, send
// failure) are logged and contained within their iteration; none of them
// stops the loop, and a failed message yields no reply at all.
func (s *Service) Run(ctx context.Context) error {
	for {
		env, err := s.tpt.Receive(ctx)
		if err != nil {
			return fmt.Errorf("receiving: %w", err)
		}
		s.processMessage(ctx, env)
	}
}

func (s *Service) processMessage(ctx context.Context, env envelope.Envelope) {
	s.log.Debugf("received envelope, header %d bytes, body %d bytes", len(env.Header), len(env.Body))

	msg, err := envelope.Decode(env)
	if err != nil {
		s.log.Debugf("dropping message: %s", err)
		return
	}
	for _, w := range msg.Warnings {
		s.log.Debugf("header warning: %s", w)
	}

	command := string(msg.Body)
	s.log.Debugf("processing command: %s", command)
	if msg.MessageID != "" {
		s.log.Debugf("message id: %s", msg.MessageID)
	}

	proc, err := s.exec.Start(ctx, command)
	if err != nil {
		s.log.Debugf("dropping message: %s", err)
		return
	}
	defer proc.Close()

	err = s.tpt.Stream(ctx, responseHeaders(msg.MessageID), proc.Stdout())
	if err != nil {
		s.log.Debugf("sending response: %s", err)
		return
	}

	proc.Close()
	s.log.Debugf("command exited with code %d", proc.ExitCode())
}

// responseHeaders builds a fresh outbound header block, echoing the message
// id as a correlation id when the request carried one.
func responseHeaders(messageID string) []byte {
	headers := SourceHeader + "\n" + MessageTypeHeader
	if messageID != "" {
		headers += "\n" + envelope.CorrelationIDKey + ":" + messageID
	}
	return []byte(headers)
}
