package envelope

import (
	"bytes"
	"fmt"
	"strings"
)

const (
	// MaxMessageSize is the inbound size ceiling for header+body, in bytes.
	// It only gates requests; response bodies are unbounded.
	MaxMessageSize = 4096

	// MaxPendingMessages is the inbound queue depth negotiated with the
	// transport at startup.
	MaxPendingMessages = 10
)

const (
	// MessageIDKey is the inbound header carrying the requester's message id.
	MessageIDKey = "messageId"

	// CorrelationIDKey is the outbound header echoing the message id back to
	// the requester.
	CorrelationIDKey = "correlationId"
)

// ErrOversized is returned by Decode when header+body meets or exceeds the
// size ceiling. The message is dropped; it is not a fatal condition.
var ErrOversized = fmt.Errorf("message exceeds %d bytes", MaxMessageSize)

// Envelope is one raw inbound transport message.
type Envelope struct {
	Header []byte
	Body   []byte
}

// Field is a single key:value header line. Keys are case-sensitive.
type Field struct {
	Key   string
	Value string
}

// Headers is the ordered header lines of an envelope.
type Headers []Field

// Get returns the value of the first header with the given key.
func (h Headers) Get(key string) (string, bool) {
	for _, f := range h {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Message is a decoded envelope ready for execution.
type Message struct {
	Headers Headers

	// MessageID is the requester's message id, or empty if the envelope
	// carried none. An untracked request is a valid state.
	MessageID string

	// Body is the command text. NUL-terminated text semantics: the body is
	// truncated at the first embedded NUL byte.
	Body []byte

	// Warnings holds descriptions of header lines that could not be parsed.
	// Parsing is lenient so a malformed header never fails the decode.
	Warnings []string
}

// ParseHeaders parses key:value lines into ordered headers. Lines without a
// colon are skipped and reported as warnings rather than failing the parse.
func ParseHeaders(b []byte) (Headers, []string) {
	var headers Headers
	var warnings []string
	for _, line := range strings.Split(string(b), "\n") {
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok || key == "" {
			warnings = append(warnings, fmt.Sprintf("malformed header line %q", line))
			continue
		}
		headers = append(headers, Field{Key: key, Value: value})
	}
	return headers, warnings
}

// Decode splits an envelope into headers and a command body.
// It fails only when the envelope exceeds MaxMessageSize; header parse
// problems are downgraded to warnings on the returned message.
func Decode(env Envelope) (*Message, error) {
	if len(env.Header)+len(env.Body) >= MaxMessageSize {
		return nil, ErrOversized
	}

	headers, warnings := ParseHeaders(env.Header)

	body := env.Body
	if i := bytes.IndexByte(body, 0); i != -1 {
		body = body[:i]
	}

	msg := &Message{
		Headers:  headers,
		Body:     body,
		Warnings: warnings,
	}
	if id, ok := headers.Get(MessageIDKey); ok {
		msg.MessageID = id
	}
	return msg, nil
}
