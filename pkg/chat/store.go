package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"chatterbox/pkg/protocol"
)

// Draft is the sender-supplied part of a message before the store assigns
// id, timestamp and initial status.
type Draft struct {
	Sender   string
	Receiver string
	Body     string
	Kind     string
	FileURL  string
	FileName string
	FileType string
	IsGroup  bool
}

// Store holds the append-only per-conversation message logs and owns the
// status state machine. Messages are never removed or reordered; only
// their status advances, and only forward.
type Store struct {
	mu   sync.RWMutex
	logs map[string][]*protocol.Message
	byID map[string]*protocol.Message
}

// NewStore creates an empty message store
func NewStore() *Store {
	return &Store{
		logs: make(map[string][]*protocol.Message),
		byID: make(map[string]*protocol.Message),
	}
}

// Append stores a new message under the conversation key with a fresh id,
// the current timestamp and status sent, and returns a copy of it.
func (s *Store) Append(key string, d Draft) protocol.Message {
	kind := d.Kind
	if kind == "" {
		kind = protocol.KindText
	}

	msg := &protocol.Message{
		ID:        uuid.NewString(),
		Key:       key,
		Sender:    d.Sender,
		Receiver:  d.Receiver,
		Body:      d.Body,
		Kind:      kind,
		FileURL:   d.FileURL,
		FileName:  d.FileName,
		FileType:  d.FileType,
		IsGroup:   d.IsGroup,
		Status:    protocol.StatusSent,
		Timestamp: time.Now(),
	}

	s.mu.Lock()
	s.logs[key] = append(s.logs[key], msg)
	s.byID[msg.ID] = msg
	s.mu.Unlock()

	return *msg
}

// History returns the full ordered log for a conversation key, or an empty
// slice if nothing has been sent yet. The returned messages are copies;
// reading history never mutates state.
func (s *Store) History(key string) []*protocol.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[key]
	out := make([]*protocol.Message, len(log))
	for i, m := range log {
		c := *m
		out[i] = &c
	}
	return out
}

// Get returns a copy of the message by id
func (s *Store) Get(id string) (protocol.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return protocol.Message{}, false
	}
	return *m, true
}

// MarkDelivered advances a message from sent to delivered. Group messages
// never advance (delivery is not tracked per member), and a message
// already delivered or read is left alone. Reports whether the status
// changed.
func (s *Store) MarkDelivered(id string) (protocol.Message, bool) {
	return s.advance(id, protocol.StatusDelivered)
}

// MarkRead advances a message to read. The jump sent -> read is valid:
// a receiver can read a message that was never acked as delivered.
func (s *Store) MarkRead(id string) (protocol.Message, bool) {
	return s.advance(id, protocol.StatusRead)
}

func (s *Store) advance(id string, to protocol.Status) (protocol.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return protocol.Message{}, false
	}
	if m.IsGroup {
		return *m, false
	}
	if !m.Status.Before(to) {
		return *m, false
	}

	m.Status = to
	return *m, true
}
