/*
Package ws is a WebSocket transport for the command execution pipeline.

The device runs a Listener with two HTTP routes: GET /exec upgrades to a WebSocket over which requesters publish command envelopes, and GET /healthz reports liveness. There are two messages in the protocol: "request" messages carry one envelope requester->device, and "response" messages stream a reply device->requester as a header frame, zero or more body chunk frames, and a final done frame. The schema is in types.go.

Responses go back on the connection their request arrived on. Inbound envelopes from all connections queue on a single bounded channel; a full queue blocks the connection readers, which is the only backpressure mechanism.
*/
package ws
