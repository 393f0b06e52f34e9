package protocol

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of event being sent
type EventType string

const (
	// Inbound events (client -> server)
	EventConnect        EventType = "connect"
	EventSendMessage    EventType = "send_message"
	EventTypingStart    EventType = "typing_start"
	EventTypingStop     EventType = "typing_stop"
	EventMarkRead       EventType = "mark_read"
	EventRequestHistory EventType = "request_history"
	EventCallInitiate   EventType = "call_initiate"
	EventCallAnswer     EventType = "call_answer"
	EventCallEnd        EventType = "call_end"

	// Outbound events (server -> client)
	EventPresenceSnapshot EventType = "presence_snapshot"
	EventMessageReceived  EventType = "message_received"
	EventMessageHistory   EventType = "message_history"
	EventStatusChanged    EventType = "status_changed"
	EventTypingChanged    EventType = "typing_changed"
	EventCallIncoming     EventType = "call_incoming"
	EventCallAccepted     EventType = "call_accepted"
	EventCallEnded        EventType = "call_ended"
	EventCallFailed       EventType = "call_failed"
	EventError            EventType = "error"
)

// Event is the envelope for all traffic on a websocket connection.
type Event struct {
	Type      EventType       `json:"type"`
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEvent creates a new event with the given type and payload
func NewEvent(t EventType, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		Type:      t,
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Payload:   data,
	}, nil
}

// ParsePayload unmarshals the event payload into the given value
func (e *Event) ParsePayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// Status is the delivery status of a message. It only moves forward:
// sent -> delivered -> read, and a sent -> read jump is valid when the
// receiver reads without an intervening delivery ack.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

var statusRank = map[Status]int{
	StatusSent:      0,
	StatusDelivered: 1,
	StatusRead:      2,
}

// Before reports whether s precedes other in the sent/delivered/read order.
func (s Status) Before(other Status) bool {
	return statusRank[s] < statusRank[other]
}

// MessageKind distinguishes plain text from media payloads.
const (
	KindText  = "text"
	KindImage = "image"
	KindFile  = "file"
)

// Message is a stored chat message. Immutable once appended except for
// Status.
type Message struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Body      string    `json:"message,omitempty"`
	Kind      string    `json:"kind"`
	FileURL   string    `json:"file_url,omitempty"`
	FileName  string    `json:"file_name,omitempty"`
	FileType  string    `json:"file_type,omitempty"`
	IsGroup   bool      `json:"is_group"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ConnectPayload binds a websocket connection to an identity
type ConnectPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// SendMessagePayload contains an outgoing chat message
type SendMessagePayload struct {
	Receiver string `json:"receiver"` // peer email, or group id when IsGroup
	Body     string `json:"message,omitempty"`
	Kind     string `json:"kind,omitempty"` // defaults to text
	FileURL  string `json:"file_url,omitempty"`
	FileName string `json:"file_name,omitempty"`
	FileType string `json:"file_type,omitempty"`
	IsGroup  bool   `json:"is_group"`
}

// TypingPayload starts or stops a typing indicator
type TypingPayload struct {
	Receiver string `json:"receiver"`
	IsGroup  bool   `json:"is_group"`
}

// MarkReadPayload acknowledges that a message was read
type MarkReadPayload struct {
	MessageID string `json:"message_id"`
	Sender    string `json:"sender"` // original sender of the message
}

// HistoryRequestPayload asks for the full log of one conversation
type HistoryRequestPayload struct {
	Receiver string `json:"receiver"`
	IsGroup  bool   `json:"is_group"`
}

// CallInitiatePayload starts a call. Signal is an opaque blob relayed to
// the callee unchanged; the server never inspects it.
type CallInitiatePayload struct {
	Callee     string          `json:"callee"`
	CallerName string          `json:"caller_name,omitempty"`
	Signal     json.RawMessage `json:"signal,omitempty"`
	IsVideo    bool            `json:"is_video"`
}

// CallAnswerPayload accepts a ringing call
type CallAnswerPayload struct {
	Caller string          `json:"caller"`
	Signal json.RawMessage `json:"signal,omitempty"`
}

// CallEndPayload ends or declines a call with the given peer
type CallEndPayload struct {
	Peer string `json:"peer"`
}

// PresenceInfo is one identity's entry in a presence snapshot
type PresenceInfo struct {
	Username string    `json:"username"`
	Email    string    `json:"email"`
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
}

// PresenceSnapshotPayload lists every known identity with current status
type PresenceSnapshotPayload struct {
	Users []PresenceInfo `json:"users"`
}

// HistoryPayload carries the ordered log of one conversation
type HistoryPayload struct {
	Key      string     `json:"key"`
	Messages []*Message `json:"messages"`
}

// StatusChangedPayload notifies a sender that a message status advanced
type StatusChangedPayload struct {
	MessageID string `json:"message_id"`
	Status    Status `json:"status"`
	Peer      string `json:"peer,omitempty"` // identity whose action caused the change
}

// TypingChangedPayload notifies conversation members of typing state
type TypingChangedPayload struct {
	Sender  string `json:"sender"`
	Key     string `json:"key"`
	IsGroup bool   `json:"is_group"`
	Active  bool   `json:"active"`
}

// CallIncomingPayload notifies a callee of a ringing call
type CallIncomingPayload struct {
	Caller     string          `json:"caller"`
	CallerName string          `json:"caller_name,omitempty"`
	Signal     json.RawMessage `json:"signal,omitempty"`
	IsVideo    bool            `json:"is_video"`
}

// CallAcceptedPayload notifies the caller that the callee answered
type CallAcceptedPayload struct {
	Callee string          `json:"callee"`
	Signal json.RawMessage `json:"signal,omitempty"`
}

// CallEndedPayload notifies the remaining party that a call ended
type CallEndedPayload struct {
	Peer string `json:"peer"`
}

// CallFailedPayload notifies the caller that a ringing call timed out.
// Only emitted when a ring timeout is configured.
type CallFailedPayload struct {
	Callee string `json:"callee"`
	Reason string `json:"reason"`
}

// ErrorPayload carries a non-fatal protocol error back to the client
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
