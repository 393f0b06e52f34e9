package messaging

import (
	"fmt"

	"chatterbox/pkg/chat"
	"chatterbox/pkg/errors"
	"chatterbox/pkg/group"
	"chatterbox/pkg/presence"
	"chatterbox/pkg/protocol"
	"chatterbox/pkg/router"
	"chatterbox/pkg/typing"
)

// ConnectHandler binds a connection to an identity
type ConnectHandler struct {
	registry *presence.Registry
}

// NewConnectHandler creates a new connect handler
func NewConnectHandler(registry *presence.Registry) *ConnectHandler {
	return &ConnectHandler{registry: registry}
}

// EventType returns the event type this handler processes
func (h *ConnectHandler) EventType() protocol.EventType {
	return protocol.EventConnect
}

// Handle binds the connection, marks the identity online and broadcasts a
// fresh presence snapshot to everyone.
func (h *ConnectHandler) Handle(from *Peer, ev *protocol.Event) error {
	var p protocol.ConnectPayload
	if err := ev.ParsePayload(&p); err != nil {
		return err
	}
	if p.Email == "" {
		return fmt.Errorf("connect: %w: missing email", errors.ErrInvalidEvent)
	}

	h.registry.Connect(p.Username, p.Email, from.Sink)
	from.SetIdentity(p.Email)
	h.registry.BroadcastSnapshot()
	return nil
}

// SendMessageHandler appends a message to its conversation log and fans
// it out
type SendMessageHandler struct {
	store  *chat.Store
	router *router.Router
	groups *group.Directory
}

// NewSendMessageHandler creates a new send-message handler
func NewSendMessageHandler(store *chat.Store, rtr *router.Router, groups *group.Directory) *SendMessageHandler {
	return &SendMessageHandler{store: store, router: rtr, groups: groups}
}

// EventType returns the event type this handler processes
func (h *SendMessageHandler) EventType() protocol.EventType {
	return protocol.EventSendMessage
}

// Handle stores the message, delivers it to the resolved targets, marks a
// direct message delivered when the receiver is online, and always echoes
// the stored message back to the sender.
func (h *SendMessageHandler) Handle(from *Peer, ev *protocol.Event) error {
	sender := from.Identity()
	if sender == "" {
		return errors.ErrNotConnected
	}

	var p protocol.SendMessagePayload
	if err := ev.ParsePayload(&p); err != nil {
		return err
	}
	if p.Receiver == "" {
		return fmt.Errorf("send_message: %w: missing receiver", errors.ErrInvalidEvent)
	}

	if p.IsGroup {
		if _, ok := h.groups.Get(p.Receiver); !ok {
			return fmt.Errorf("send_message: %w: %s", errors.ErrUnknownGroup, p.Receiver)
		}
	}

	key := h.router.Key(sender, p.Receiver, p.IsGroup)
	msg := h.store.Append(key, chat.Draft{
		Sender:   sender,
		Receiver: p.Receiver,
		Body:     p.Body,
		Kind:     p.Kind,
		FileURL:  p.FileURL,
		FileName: p.FileName,
		FileType: p.FileType,
		IsGroup:  p.IsGroup,
	})

	out, err := protocol.NewEvent(protocol.EventMessageReceived, msg)
	if err != nil {
		return err
	}

	if p.IsGroup {
		h.router.Deliver(h.router.TargetsFor(sender, p.Receiver, true), out)
	} else if h.router.DeliverTo(p.Receiver, out) {
		// Handing the message to the receiver's live connection counts
		// as delivery; a receiver-side render ack is not part of the
		// protocol.
		if updated, changed := h.store.MarkDelivered(msg.ID); changed {
			msg = updated
			h.notifyStatus(from, msg.ID, msg.Status, p.Receiver)
		}
	}

	echo, err := protocol.NewEvent(protocol.EventMessageReceived, msg)
	if err != nil {
		return err
	}
	return from.Send(echo)
}

func (h *SendMessageHandler) notifyStatus(from *Peer, messageID string, status protocol.Status, peer string) {
	ev, err := protocol.NewEvent(protocol.EventStatusChanged, protocol.StatusChangedPayload{
		MessageID: messageID,
		Status:    status,
		Peer:      peer,
	})
	if err != nil {
		return
	}
	from.Send(ev)
}

// MarkReadHandler advances a message to read and notifies the original
// sender
type MarkReadHandler struct {
	store  *chat.Store
	router *router.Router
}

// NewMarkReadHandler creates a new mark-read handler
func NewMarkReadHandler(store *chat.Store, rtr *router.Router) *MarkReadHandler {
	return &MarkReadHandler{store: store, router: rtr}
}

// EventType returns the event type this handler processes
func (h *MarkReadHandler) EventType() protocol.EventType {
	return protocol.EventMarkRead
}

// Handle moves the message to read, jumping straight from sent when no
// delivery ack happened first. The original sender gets exactly one
// status_changed if online; an offline sender is not caught up later.
func (h *MarkReadHandler) Handle(from *Peer, ev *protocol.Event) error {
	reader := from.Identity()
	if reader == "" {
		return errors.ErrNotConnected
	}

	var p protocol.MarkReadPayload
	if err := ev.ParsePayload(&p); err != nil {
		return err
	}
	if p.MessageID == "" {
		return fmt.Errorf("mark_read: %w: missing message id", errors.ErrInvalidEvent)
	}
	if _, ok := h.store.Get(p.MessageID); !ok {
		return fmt.Errorf("mark_read: %w: %s", errors.ErrUnknownMessage, p.MessageID)
	}

	msg, changed := h.store.MarkRead(p.MessageID)
	if !changed {
		// Group message or already read: both no-ops.
		return nil
	}

	out, err := protocol.NewEvent(protocol.EventStatusChanged, protocol.StatusChangedPayload{
		MessageID: msg.ID,
		Status:    msg.Status,
		Peer:      reader,
	})
	if err != nil {
		return err
	}
	h.router.DeliverTo(msg.Sender, out)
	return nil
}

// HistoryHandler replays a conversation log to the requesting connection
type HistoryHandler struct {
	store  *chat.Store
	router *router.Router
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(store *chat.Store, rtr *router.Router) *HistoryHandler {
	return &HistoryHandler{store: store, router: rtr}
}

// EventType returns the event type this handler processes
func (h *HistoryHandler) EventType() protocol.EventType {
	return protocol.EventRequestHistory
}

// Handle sends the full ordered log for the conversation back to the
// requester. Reading history never mutates message status.
func (h *HistoryHandler) Handle(from *Peer, ev *protocol.Event) error {
	requester := from.Identity()
	if requester == "" {
		return errors.ErrNotConnected
	}

	var p protocol.HistoryRequestPayload
	if err := ev.ParsePayload(&p); err != nil {
		return err
	}
	if p.Receiver == "" {
		return fmt.Errorf("request_history: %w: missing receiver", errors.ErrInvalidEvent)
	}

	key := h.router.Key(requester, p.Receiver, p.IsGroup)
	out, err := protocol.NewEvent(protocol.EventMessageHistory, protocol.HistoryPayload{
		Key:      key,
		Messages: h.store.History(key),
	})
	if err != nil {
		return err
	}
	return from.Send(out)
}

// TypingStartHandler activates a typing session for a conversation
type TypingStartHandler struct {
	tracker *typing.Tracker
	router  *router.Router
}

// NewTypingStartHandler creates a new typing-start handler
func NewTypingStartHandler(tracker *typing.Tracker, rtr *router.Router) *TypingStartHandler {
	return &TypingStartHandler{tracker: tracker, router: rtr}
}

// EventType returns the event type this handler processes
func (h *TypingStartHandler) EventType() protocol.EventType {
	return protocol.EventTypingStart
}

// Handle starts or refreshes the typing session. Only a fresh session
// broadcasts "started"; refreshes within the window are debounced. When
// the inactivity window lapses the tracker broadcasts the stop on its
// own.
func (h *TypingStartHandler) Handle(from *Peer, ev *protocol.Event) error {
	sender := from.Identity()
	if sender == "" {
		return errors.ErrNotConnected
	}

	var p protocol.TypingPayload
	if err := ev.ParsePayload(&p); err != nil {
		return err
	}
	if p.Receiver == "" {
		return fmt.Errorf("typing_start: %w: missing receiver", errors.ErrInvalidEvent)
	}

	key := h.router.Key(sender, p.Receiver, p.IsGroup)
	receiver, isGroup := p.Receiver, p.IsGroup

	started := h.tracker.Start(sender, key, func() {
		// Targets are resolved at expiry time so membership changes
		// between start and timeout are honored.
		h.broadcast(sender, key, receiver, isGroup, false)
	})
	if started {
		h.broadcast(sender, key, receiver, isGroup, true)
	}
	return nil
}

func (h *TypingStartHandler) broadcast(sender, key, receiver string, isGroup, active bool) {
	broadcastTyping(h.router, sender, key, receiver, isGroup, active)
}

// TypingStopHandler deactivates a typing session
type TypingStopHandler struct {
	tracker *typing.Tracker
	router  *router.Router
}

// NewTypingStopHandler creates a new typing-stop handler
func NewTypingStopHandler(tracker *typing.Tracker, rtr *router.Router) *TypingStopHandler {
	return &TypingStopHandler{tracker: tracker, router: rtr}
}

// EventType returns the event type this handler processes
func (h *TypingStopHandler) EventType() protocol.EventType {
	return protocol.EventTypingStop
}

// Handle stops the session if one is active. A stop without a session
// broadcasts nothing.
func (h *TypingStopHandler) Handle(from *Peer, ev *protocol.Event) error {
	sender := from.Identity()
	if sender == "" {
		return errors.ErrNotConnected
	}

	var p protocol.TypingPayload
	if err := ev.ParsePayload(&p); err != nil {
		return err
	}
	if p.Receiver == "" {
		return fmt.Errorf("typing_stop: %w: missing receiver", errors.ErrInvalidEvent)
	}

	key := h.router.Key(sender, p.Receiver, p.IsGroup)
	if h.tracker.Stop(sender, key) {
		broadcastTyping(h.router, sender, key, p.Receiver, p.IsGroup, false)
	}
	return nil
}

func broadcastTyping(rtr *router.Router, sender, key, receiver string, isGroup, active bool) {
	ev, err := protocol.NewEvent(protocol.EventTypingChanged, protocol.TypingChangedPayload{
		Sender:  sender,
		Key:     key,
		IsGroup: isGroup,
		Active:  active,
	})
	if err != nil {
		return
	}
	rtr.Deliver(rtr.TargetsFor(sender, receiver, isGroup), ev)
}
