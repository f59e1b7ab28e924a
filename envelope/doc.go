/*
Package envelope decodes inbound transport messages into header metadata and a command body.

An envelope is an opaque header block of key:value lines paired with a body of raw bytes. Decoding enforces the inbound size ceiling, parses the header block leniently (malformed lines become warnings, never errors), and extracts the optional messageId used for response correlation. The body is treated as NUL-terminated text, matching the wire contract of the requesters.
*/
package envelope
