package messaging

import (
	"fmt"
	"sync"

	"chatterbox/pkg/protocol"
)

// DispatcherImpl implements the Dispatcher interface
type DispatcherImpl struct {
	handlers map[protocol.EventType]Handler
	mu       sync.RWMutex
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher() *DispatcherImpl {
	return &DispatcherImpl{
		handlers: make(map[protocol.EventType]Handler),
	}
}

// Register registers a handler for an event type
func (d *DispatcherImpl) Register(handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	t := handler.EventType()
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.handlers[t]; exists {
		return fmt.Errorf("handler already registered for event type: %s", t)
	}

	d.handlers[t] = handler
	return nil
}

// Dispatch routes an event to the handler registered for its type
func (d *DispatcherImpl) Dispatch(from *Peer, ev *protocol.Event) error {
	d.mu.RLock()
	handler, exists := d.handlers[ev.Type]
	d.mu.RUnlock()

	if !exists {
		return fmt.Errorf("no handler registered for event type: %s", ev.Type)
	}

	return handler.Handle(from, ev)
}

// HasHandler checks if a handler exists for the event type
func (d *DispatcherImpl) HasHandler(t protocol.EventType) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, exists := d.handlers[t]
	return exists
}
