package presence

import (
	"sort"
	"sync"
	"time"

	"chatterbox/pkg/protocol"
)

// Sink is the outbound side of one live connection. Send must not block;
// implementations hand the event to a buffered writer.
type Sink interface {
	Send(ev *protocol.Event) error
	Close() error
}

// Identity is one known user. Identities are created on first registration
// and never deleted; only the online flag and last-seen timestamp change.
type Identity struct {
	Username string
	Email    string
	IsOnline bool
	LastSeen time.Time
}

// Registry is the identity directory plus the single live connection
// binding per identity. All access is serialized behind one mutex so a
// connect cannot race a disconnect for the same identity.
type Registry struct {
	mu         sync.RWMutex
	identities map[string]*Identity
	bindings   map[string]Sink
}

// NewRegistry creates an empty presence registry
func NewRegistry() *Registry {
	return &Registry{
		identities: make(map[string]*Identity),
		bindings:   make(map[string]Sink),
	}
}

// Register creates the identity if absent and reports whether it was
// created. Re-registering is not an error; it only refreshes last-seen.
func (r *Registry) Register(username, email string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.identities[email]; ok {
		id.LastSeen = time.Now()
		return false
	}

	r.identities[email] = &Identity{
		Username: username,
		Email:    email,
		LastSeen: time.Now(),
	}
	return true
}

// Connect binds a live connection to the identity, creating it on first
// contact. Any previous binding is replaced and closed (last bind wins).
func (r *Registry) Connect(username, email string, sink Sink) {
	r.mu.Lock()

	id, ok := r.identities[email]
	if !ok {
		id = &Identity{Username: username, Email: email}
		r.identities[email] = id
	}
	if username != "" {
		id.Username = username
	}
	id.IsOnline = true
	id.LastSeen = time.Now()

	prev := r.bindings[email]
	r.bindings[email] = sink
	r.mu.Unlock()

	if prev != nil && prev != sink {
		prev.Close()
	}
}

// Disconnect clears the binding and marks the identity offline. When sink
// is non-nil the binding is only cleared if it still belongs to that sink,
// so a stale teardown cannot knock out a fresh reconnect. Returns whether
// anything changed.
func (r *Registry) Disconnect(email string, sink Sink) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	bound, ok := r.bindings[email]
	if !ok {
		return false
	}
	if sink != nil && bound != sink {
		return false
	}

	delete(r.bindings, email)
	if id, ok := r.identities[email]; ok {
		id.IsOnline = false
		id.LastSeen = time.Now()
	}
	return true
}

// SinkOf returns the live connection for an identity, if any
func (r *Registry) SinkOf(email string) (Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sink, ok := r.bindings[email]
	return sink, ok
}

// Get returns a copy of the identity record
func (r *Registry) Get(email string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.identities[email]
	if !ok {
		return Identity{}, false
	}
	return *id, true
}

// Snapshot lists every identity ever registered with its current status,
// sorted by email for stable output.
func (r *Registry) Snapshot() []protocol.PresenceInfo {
	r.mu.RLock()
	users := make([]protocol.PresenceInfo, 0, len(r.identities))
	for _, id := range r.identities {
		users = append(users, protocol.PresenceInfo{
			Username: id.Username,
			Email:    id.Email,
			IsOnline: id.IsOnline,
			LastSeen: id.LastSeen,
		})
	}
	r.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users
}

// OnlineCount returns how many identities currently hold a binding
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}

// KnownCount returns how many identities were ever registered
func (r *Registry) KnownCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.identities)
}

// Broadcast sends an event to every bound connection. Connections whose
// buffers are full are skipped; they are torn down by their own pumps.
func (r *Registry) Broadcast(ev *protocol.Event) {
	r.mu.RLock()
	sinks := make([]Sink, 0, len(r.bindings))
	for _, sink := range r.bindings {
		sinks = append(sinks, sink)
	}
	r.mu.RUnlock()

	for _, sink := range sinks {
		sink.Send(ev)
	}
}

// BroadcastSnapshot pushes the current presence snapshot to everyone
// online. Called after every connect and disconnect.
func (r *Registry) BroadcastSnapshot() {
	ev, err := protocol.NewEvent(protocol.EventPresenceSnapshot, protocol.PresenceSnapshotPayload{
		Users: r.Snapshot(),
	})
	if err != nil {
		return
	}
	r.Broadcast(ev)
}
