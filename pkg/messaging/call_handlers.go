package messaging

import (
	"fmt"

	"chatterbox/pkg/call"
	"chatterbox/pkg/errors"
	"chatterbox/pkg/protocol"
	"chatterbox/pkg/router"
)

// CallInitiateHandler starts a call and relays the ring to the callee
type CallInitiateHandler struct {
	relay  *call.Relay
	router *router.Router
}

// NewCallInitiateHandler creates a new call-initiate handler
func NewCallInitiateHandler(relay *call.Relay, rtr *router.Router) *CallInitiateHandler {
	return &CallInitiateHandler{relay: relay, router: rtr}
}

// EventType returns the event type this handler processes
func (h *CallInitiateHandler) EventType() protocol.EventType {
	return protocol.EventCallInitiate
}

// Handle creates the ringing session and relays the opaque signaling
// payload to the callee. An offline callee still gets a session; the
// caller is not told the ring went nowhere unless a ring timeout is
// configured on the relay.
func (h *CallInitiateHandler) Handle(from *Peer, ev *protocol.Event) error {
	caller := from.Identity()
	if caller == "" {
		return errors.ErrNotConnected
	}

	var p protocol.CallInitiatePayload
	if err := ev.ParsePayload(&p); err != nil {
		return err
	}
	if p.Callee == "" {
		return fmt.Errorf("call_initiate: %w: missing callee", errors.ErrInvalidEvent)
	}

	_, fresh := h.relay.Initiate(caller, p.Callee, p.IsVideo)
	if !fresh {
		return nil
	}

	out, err := protocol.NewEvent(protocol.EventCallIncoming, protocol.CallIncomingPayload{
		Caller:     caller,
		CallerName: p.CallerName,
		Signal:     p.Signal,
		IsVideo:    p.IsVideo,
	})
	if err != nil {
		return err
	}
	h.router.DeliverTo(p.Callee, out)
	return nil
}

// CallAnswerHandler accepts a ringing call and relays the answer
type CallAnswerHandler struct {
	relay  *call.Relay
	router *router.Router
}

// NewCallAnswerHandler creates a new call-answer handler
func NewCallAnswerHandler(relay *call.Relay, rtr *router.Router) *CallAnswerHandler {
	return &CallAnswerHandler{relay: relay, router: rtr}
}

// EventType returns the event type this handler processes
func (h *CallAnswerHandler) EventType() protocol.EventType {
	return protocol.EventCallAnswer
}

// Handle moves the session to accepted and relays the answer payload to
// the caller. A caller who disconnected meanwhile simply gets nothing;
// the session state still advances.
func (h *CallAnswerHandler) Handle(from *Peer, ev *protocol.Event) error {
	callee := from.Identity()
	if callee == "" {
		return errors.ErrNotConnected
	}

	var p protocol.CallAnswerPayload
	if err := ev.ParsePayload(&p); err != nil {
		return err
	}
	if p.Caller == "" {
		return fmt.Errorf("call_answer: %w: missing caller", errors.ErrInvalidEvent)
	}

	s, ok := h.relay.Answer(callee, p.Caller)
	if !ok {
		return nil
	}

	out, err := protocol.NewEvent(protocol.EventCallAccepted, protocol.CallAcceptedPayload{
		Callee: callee,
		Signal: p.Signal,
	})
	if err != nil {
		return err
	}
	h.router.DeliverTo(s.Caller, out)
	return nil
}

// CallEndHandler terminates a call and notifies the other party
type CallEndHandler struct {
	relay  *call.Relay
	router *router.Router
}

// NewCallEndHandler creates a new call-end handler
func NewCallEndHandler(relay *call.Relay, rtr *router.Router) *CallEndHandler {
	return &CallEndHandler{relay: relay, router: rtr}
}

// EventType returns the event type this handler processes
func (h *CallEndHandler) EventType() protocol.EventType {
	return protocol.EventCallEnd
}

// Handle ends the session from any non-terminal state, covering decline,
// cancel and hang-up alike, and tells the other party if reachable.
func (h *CallEndHandler) Handle(from *Peer, ev *protocol.Event) error {
	self := from.Identity()
	if self == "" {
		return errors.ErrNotConnected
	}

	var p protocol.CallEndPayload
	if err := ev.ParsePayload(&p); err != nil {
		return err
	}
	if p.Peer == "" {
		return fmt.Errorf("call_end: %w: missing peer", errors.ErrInvalidEvent)
	}

	s, ok := h.relay.End(self, p.Peer)
	if !ok {
		return nil
	}

	other := s.Caller
	if other == self {
		other = s.Callee
	}

	out, err := protocol.NewEvent(protocol.EventCallEnded, protocol.CallEndedPayload{Peer: self})
	if err != nil {
		return err
	}
	h.router.DeliverTo(other, out)
	return nil
}
