package messaging

import (
	"sync"

	"chatterbox/pkg/presence"
	"chatterbox/pkg/protocol"
)

// Handler processes one inbound event type
type Handler interface {
	// Handle applies the event against the shared registries and emits
	// any resulting outbound events
	Handle(from *Peer, ev *protocol.Event) error
	// EventType returns the type of event this handler processes
	EventType() protocol.EventType
}

// Dispatcher routes inbound events to the handler for their type
type Dispatcher interface {
	// Register registers a handler for an event type
	Register(handler Handler) error
	// Dispatch routes an event to the appropriate handler
	Dispatch(from *Peer, ev *protocol.Event) error
	// HasHandler checks if a handler exists for the event type
	HasHandler(t protocol.EventType) bool
}

// Peer is the server-side view of one websocket connection: its outbound
// sink plus the identity bound to it once a connect event arrives.
type Peer struct {
	Sink presence.Sink

	mu       sync.Mutex
	identity string
}

// NewPeer wraps a connection sink into an unbound peer
func NewPeer(sink presence.Sink) *Peer {
	return &Peer{Sink: sink}
}

// SetIdentity binds the peer to an identity
func (p *Peer) SetIdentity(email string) {
	p.mu.Lock()
	p.identity = email
	p.mu.Unlock()
}

// Identity returns the bound identity, empty before a connect event
func (p *Peer) Identity() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identity
}

// Send emits an event on the peer's own connection
func (p *Peer) Send(ev *protocol.Event) error {
	return p.Sink.Send(ev)
}
