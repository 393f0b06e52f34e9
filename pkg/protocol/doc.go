// Package protocol defines the wire format of the ChatterBox realtime
// protocol: the event envelope exchanged over websocket connections, the
// payload structures for every inbound and outbound event, and the chat
// message model with its delivery status ordering.
package protocol
