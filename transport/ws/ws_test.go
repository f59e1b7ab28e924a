package ws

import (
	"context"
	"fmt"
	"testing"

	"github.com/devicekit/iotexec/envelope"
	internalnet "github.com/devicekit/iotexec/internal/net"
	"github.com/devicekit/iotexec/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var log *zap.Logger

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	log = l
}

func startPipeline(t *testing.T) string {
	t.Helper()

	port, err := internalnet.GetEphemeralTCPPort()
	require.NoError(t, err)
	addr := fmt.Sprintf("127.0.0.1:%d", port)

	lis := NewListener(WithLogger(log), WithListenAddr(addr))
	require.NoError(t, lis.Start())

	svc := service.New(lis, service.WithLogger(log))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, lis.Close())
		<-done
	})

	return addr
}

func TestExecEndToEnd(t *testing.T) {
	ctx := context.Background()
	addr := startPipeline(t)

	client, err := Dial(ctx, addr, WithClientLogger(log))
	require.NoError(t, err)
	defer client.Close()

	// Exec mints a message id and verifies the echoed correlation id
	resp, err := client.Exec(ctx, "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(resp.Body))

	source, ok := resp.Headers.Get("source")
	require.True(t, ok)
	assert.Equal(t, "exec", source)
	msgType, ok := resp.Headers.Get("messagetype")
	require.True(t, ok)
	assert.Equal(t, "cmdresp", msgType)
}

func TestUntrackedRequest(t *testing.T) {
	ctx := context.Background()
	addr := startPipeline(t)

	client, err := Dial(ctx, addr, WithClientLogger(log))
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Publish(ctx, nil, []byte("printf foo")))
	resp, err := client.ReadResponse(ctx)
	require.NoError(t, err)

	assert.Equal(t, "foo", string(resp.Body))
	assert.Empty(t, resp.CorrelationID())
}

func TestResponsesInOrder(t *testing.T) {
	ctx := context.Background()
	addr := startPipeline(t)

	client, err := Dial(ctx, addr, WithClientLogger(log))
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Publish(ctx, []byte("messageId:a"), []byte("sleep 0.2; echo A")))
	require.NoError(t, client.Publish(ctx, []byte("messageId:b"), []byte("echo B")))

	respA, err := client.ReadResponse(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", respA.CorrelationID())
	assert.Equal(t, "A\n", string(respA.Body))

	respB, err := client.ReadResponse(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", respB.CorrelationID())
	assert.Equal(t, "B\n", string(respB.Body))
}

func TestLargeResponseChunked(t *testing.T) {
	ctx := context.Background()
	addr := startPipeline(t)

	client, err := Dial(ctx, addr, WithClientLogger(log))
	require.NoError(t, err)
	defer client.Close()

	// response bodies are unbounded and arrive as multiple chunk frames
	n := writeLimit * 10
	resp, err := client.Exec(ctx, fmt.Sprintf("head -c %d /dev/zero | tr '\\0' 'a'", n))
	require.NoError(t, err)
	assert.Len(t, resp.Body, n)
}

func TestOversizedRequestDropped(t *testing.T) {
	ctx := context.Background()
	addr := startPipeline(t)

	client, err := Dial(ctx, addr, WithClientLogger(log))
	require.NoError(t, err)
	defer client.Close()

	big := make([]byte, envelope.MaxMessageSize)
	for i := range big {
		big[i] = 'x'
	}
	require.NoError(t, client.Publish(ctx, big, []byte("echo never")))

	// the dropped request yields no reply; the next one is still answered
	resp, err := client.Exec(ctx, "echo after")
	require.NoError(t, err)
	assert.Equal(t, "after\n", string(resp.Body))
}
