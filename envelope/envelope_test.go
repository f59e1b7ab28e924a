package envelope

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		name        string
		header      string
		body        string
		expID       string
		expBody     string
		expWarnings int
	}{
		{
			name:    "no headers",
			body:    "echo hello",
			expBody: "echo hello",
		},
		{
			name:    "message id present",
			header:  "service:exec\nmessageId:abc-123",
			body:    "uptime",
			expID:   "abc-123",
			expBody: "uptime",
		},
		{
			name:    "message id absent",
			header:  "service:exec",
			body:    "uptime",
			expBody: "uptime",
		},
		{
			name:        "malformed line tolerated",
			header:      "service:exec\ngarbage line\nmessageId:xyz",
			body:        "ls",
			expID:       "xyz",
			expBody:     "ls",
			expWarnings: 1,
		},
		{
			name:    "value containing colons",
			header:  "messageId:urn:uuid:1234",
			body:    "true",
			expID:   "urn:uuid:1234",
			expBody: "true",
		},
		{
			name:    "body truncated at NUL",
			body:    "echo hi\x00trailing",
			expBody: "echo hi",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			msg, err := Decode(Envelope{Header: []byte(c.header), Body: []byte(c.body)})
			require.NoError(t, err)
			assert.Equal(t, c.expID, msg.MessageID)
			assert.Equal(t, c.expBody, string(msg.Body))
			assert.Len(t, msg.Warnings, c.expWarnings)
		})
	}
}

func TestDecodeBodyPreserved(t *testing.T) {
	body := []byte("sh -c 'printf hello; printf world 1>&2'")
	msg, err := Decode(Envelope{Body: body})
	require.NoError(t, err)
	assert.Equal(t, body, msg.Body)
}

func TestDecodeOversized(t *testing.T) {
	cases := []struct {
		name      string
		headerLen int
		bodyLen   int
		expErr    bool
	}{
		{name: "just under the ceiling", headerLen: 95, bodyLen: MaxMessageSize - 96, expErr: false},
		{name: "exactly at the ceiling", headerLen: 96, bodyLen: MaxMessageSize - 96, expErr: true},
		{name: "over the ceiling", headerLen: MaxMessageSize, bodyLen: 1, expErr: true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			env := Envelope{
				Header: bytes.Repeat([]byte("h"), c.headerLen),
				Body:   bytes.Repeat([]byte("b"), c.bodyLen),
			}
			msg, err := Decode(env)
			if c.expErr {
				require.ErrorIs(t, err, ErrOversized)
				assert.Nil(t, msg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestParseHeadersOrdering(t *testing.T) {
	headers, warnings := ParseHeaders([]byte("a:1\nb:2\na:3"))
	require.Empty(t, warnings)
	require.Len(t, headers, 3)
	assert.Equal(t, Field{Key: "a", Value: "1"}, headers[0])

	// lookups return the first occurrence
	v, ok := headers.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok = headers.Get("missing")
	assert.False(t, ok)
}

func TestParseHeadersEmpty(t *testing.T) {
	headers, warnings := ParseHeaders(nil)
	assert.Empty(t, headers)
	assert.Empty(t, warnings)
}
