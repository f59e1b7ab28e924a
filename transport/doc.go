/*
Package transport defines the messaging collaborator interfaces used by the command execution pipeline.

The pipeline is transport-agnostic: it receives raw envelopes from a Receiver and streams responses through a Sender. Connection setup, authentication, queueing, and delivery retries are the transport implementation's concern. Two implementations are provided: transport/ws (WebSocket) and transport/mem (in-process channels).
*/
package transport
