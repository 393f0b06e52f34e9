package messaging

import (
	"errors"
	"sync"
	"testing"
	"time"

	"chatterbox/pkg/call"
	"chatterbox/pkg/chat"
	apperrors "chatterbox/pkg/errors"
	"chatterbox/pkg/group"
	"chatterbox/pkg/presence"
	"chatterbox/pkg/protocol"
	"chatterbox/pkg/router"
	"chatterbox/pkg/typing"
)

type fakeConn struct {
	mu     sync.Mutex
	events []*protocol.Event
}

func (c *fakeConn) Send(ev *protocol.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) byType(t protocol.EventType) []*protocol.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*protocol.Event
	for _, ev := range c.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// core wires every handler against shared in-memory registries, the same
// shape the server assembles at startup.
type core struct {
	registry   *presence.Registry
	groups     *group.Directory
	store      *chat.Store
	router     *router.Router
	tracker    *typing.Tracker
	relay      *call.Relay
	dispatcher *DispatcherImpl
}

func newCore(t *testing.T, typingTimeout time.Duration) *core {
	t.Helper()

	c := &core{
		registry: presence.NewRegistry(),
		groups:   group.NewDirectory(),
		store:    chat.NewStore(),
		tracker:  typing.NewTracker(typingTimeout),
		relay:    call.NewRelay(0, nil),
	}
	c.router = router.New(c.registry, c.groups)
	c.dispatcher = NewDispatcher()

	handlers := []Handler{
		NewConnectHandler(c.registry),
		NewSendMessageHandler(c.store, c.router, c.groups),
		NewMarkReadHandler(c.store, c.router),
		NewHistoryHandler(c.store, c.router),
		NewTypingStartHandler(c.tracker, c.router),
		NewTypingStopHandler(c.tracker, c.router),
		NewCallInitiateHandler(c.relay, c.router),
		NewCallAnswerHandler(c.relay, c.router),
		NewCallEndHandler(c.relay, c.router),
	}
	for _, h := range handlers {
		if err := c.dispatcher.Register(h); err != nil {
			t.Fatalf("failed to register handler: %v", err)
		}
	}
	return c
}

func (c *core) dispatch(t *testing.T, from *Peer, typ protocol.EventType, payload interface{}) error {
	t.Helper()
	ev, err := protocol.NewEvent(typ, payload)
	if err != nil {
		t.Fatalf("failed to build %s event: %v", typ, err)
	}
	return c.dispatcher.Dispatch(from, ev)
}

func (c *core) connect(t *testing.T, username, email string) (*Peer, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	peer := NewPeer(conn)
	if err := c.dispatch(t, peer, protocol.EventConnect, protocol.ConnectPayload{Username: username, Email: email}); err != nil {
		t.Fatalf("connect failed for %s: %v", email, err)
	}
	return peer, conn
}

func TestConnectBindsIdentityAndBroadcastsPresence(t *testing.T) {
	c := newCore(t, time.Hour)

	peer, conn := c.connect(t, "alice", "alice@example.com")

	if peer.Identity() != "alice@example.com" {
		t.Errorf("peer should be bound, got %q", peer.Identity())
	}

	snaps := conn.byType(protocol.EventPresenceSnapshot)
	if len(snaps) != 1 {
		t.Fatalf("expected 1 presence snapshot, got %d", len(snaps))
	}
	var p protocol.PresenceSnapshotPayload
	if err := snaps[0].ParsePayload(&p); err != nil {
		t.Fatalf("failed to parse snapshot: %v", err)
	}
	if len(p.Users) != 1 || !p.Users[0].IsOnline {
		t.Errorf("snapshot should show alice online, got %+v", p.Users)
	}
}

func TestConnectWithoutEmailRejected(t *testing.T) {
	c := newCore(t, time.Hour)
	peer := NewPeer(&fakeConn{})

	if err := c.dispatch(t, peer, protocol.EventConnect, protocol.ConnectPayload{Username: "ghost"}); err == nil {
		t.Error("connect without email should fail")
	}
	if peer.Identity() != "" {
		t.Error("failed connect must not bind the peer")
	}
}

func TestSendBeforeConnectRejected(t *testing.T) {
	c := newCore(t, time.Hour)
	peer := NewPeer(&fakeConn{})

	err := c.dispatch(t, peer, protocol.EventSendMessage, protocol.SendMessagePayload{
		Receiver: "bob@example.com", Body: "hi",
	})
	if err == nil {
		t.Fatal("send before connect should fail")
	}
	if log := c.store.History(router.DirectKey("", "bob@example.com")); len(log) != 0 {
		t.Error("nothing should be stored")
	}
}

func TestSendToOfflineReceiverStaysSent(t *testing.T) {
	c := newCore(t, time.Hour)
	alice, aliceConn := c.connect(t, "alice", "alice@example.com")

	if err := c.dispatch(t, alice, protocol.EventSendMessage, protocol.SendMessagePayload{
		Receiver: "bob@example.com", Body: "are you there?",
	}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	// Sender gets an echo of the stored message, still at sent.
	echoes := aliceConn.byType(protocol.EventMessageReceived)
	if len(echoes) != 1 {
		t.Fatalf("expected 1 echo, got %d", len(echoes))
	}
	var echoed protocol.Message
	if err := echoes[0].ParsePayload(&echoed); err != nil {
		t.Fatalf("failed to parse echo: %v", err)
	}
	if echoed.Status != protocol.StatusSent {
		t.Errorf("offline receiver should leave the message sent, got %s", echoed.Status)
	}
	if len(aliceConn.byType(protocol.EventStatusChanged)) != 0 {
		t.Error("no status change should be reported for an offline receiver")
	}

	// Bob connecting later does not retroactively deliver; he finds the
	// message at sent when he asks for history.
	bob, bobConn := c.connect(t, "bob", "bob@example.com")
	if err := c.dispatch(t, bob, protocol.EventRequestHistory, protocol.HistoryRequestPayload{
		Receiver: "alice@example.com",
	}); err != nil {
		t.Fatalf("history request failed: %v", err)
	}

	hists := bobConn.byType(protocol.EventMessageHistory)
	if len(hists) != 1 {
		t.Fatalf("expected 1 history reply, got %d", len(hists))
	}
	var h protocol.HistoryPayload
	if err := hists[0].ParsePayload(&h); err != nil {
		t.Fatalf("failed to parse history: %v", err)
	}
	if h.Key != router.DirectKey("alice@example.com", "bob@example.com") {
		t.Errorf("unexpected history key %q", h.Key)
	}
	if len(h.Messages) != 1 || h.Messages[0].Status != protocol.StatusSent {
		t.Errorf("history should hold 1 message still at sent, got %+v", h.Messages)
	}
}

func TestSendToOnlineReceiverDeliversAndNotifiesSender(t *testing.T) {
	c := newCore(t, time.Hour)
	alice, aliceConn := c.connect(t, "alice", "alice@example.com")
	_, bobConn := c.connect(t, "bob", "bob@example.com")

	if err := c.dispatch(t, alice, protocol.EventSendMessage, protocol.SendMessagePayload{
		Receiver: "bob@example.com", Body: "hello bob",
	}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	if got := bobConn.byType(protocol.EventMessageReceived); len(got) != 1 {
		t.Fatalf("receiver should get exactly 1 message, got %d", len(got))
	}

	changes := aliceConn.byType(protocol.EventStatusChanged)
	if len(changes) != 1 {
		t.Fatalf("sender should get exactly 1 status change, got %d", len(changes))
	}
	var sc protocol.StatusChangedPayload
	if err := changes[0].ParsePayload(&sc); err != nil {
		t.Fatalf("failed to parse status change: %v", err)
	}
	if sc.Status != protocol.StatusDelivered || sc.Peer != "bob@example.com" {
		t.Errorf("unexpected status change %+v", sc)
	}

	// The sender's echo reflects the post-delivery status.
	echoes := aliceConn.byType(protocol.EventMessageReceived)
	if len(echoes) != 1 {
		t.Fatalf("expected 1 echo, got %d", len(echoes))
	}
	var echoed protocol.Message
	if err := echoes[0].ParsePayload(&echoed); err != nil {
		t.Fatalf("failed to parse echo: %v", err)
	}
	if echoed.Status != protocol.StatusDelivered {
		t.Errorf("echo should show delivered, got %s", echoed.Status)
	}

	stored, _ := c.store.Get(sc.MessageID)
	if stored.Status != protocol.StatusDelivered {
		t.Errorf("stored message should be delivered, got %s", stored.Status)
	}
}

func TestGroupFanoutReachesEachMemberOnce(t *testing.T) {
	c := newCore(t, time.Hour)
	alice, aliceConn := c.connect(t, "alice", "alice@example.com")
	_, bobConn := c.connect(t, "bob", "bob@example.com")
	_, carolConn := c.connect(t, "carol", "carol@example.com")
	g := c.groups.Create("team", "alice@example.com", []string{"bob@example.com", "carol@example.com", "dave@example.com"})

	if err := c.dispatch(t, alice, protocol.EventSendMessage, protocol.SendMessagePayload{
		Receiver: g.ID, Body: "standup in 5", IsGroup: true,
	}); err != nil {
		t.Fatalf("group send failed: %v", err)
	}

	for name, conn := range map[string]*fakeConn{"bob": bobConn, "carol": carolConn} {
		if got := conn.byType(protocol.EventMessageReceived); len(got) != 1 {
			t.Errorf("%s should get exactly 1 message, got %d", name, len(got))
		}
	}

	// Sender gets the echo but never a fanout copy.
	echoes := aliceConn.byType(protocol.EventMessageReceived)
	if len(echoes) != 1 {
		t.Fatalf("sender should get exactly 1 echo, got %d", len(echoes))
	}
	var echoed protocol.Message
	if err := echoes[0].ParsePayload(&echoed); err != nil {
		t.Fatalf("failed to parse echo: %v", err)
	}
	if echoed.Status != protocol.StatusSent {
		t.Errorf("group messages stay sent regardless of who is online, got %s", echoed.Status)
	}
	if len(aliceConn.byType(protocol.EventStatusChanged)) != 0 {
		t.Error("group delivery must not produce status changes")
	}
}

func TestSendToUnknownGroupRejected(t *testing.T) {
	c := newCore(t, time.Hour)
	alice, _ := c.connect(t, "alice", "alice@example.com")

	err := c.dispatch(t, alice, protocol.EventSendMessage, protocol.SendMessagePayload{
		Receiver: "no-such-group", Body: "hello?", IsGroup: true,
	})
	if err == nil {
		t.Fatal("send to unknown group should fail")
	}
	if log := c.store.History("no-such-group"); len(log) != 0 {
		t.Error("nothing should be stored for an unknown group")
	}
}

func TestMarkReadNotifiesOriginalSenderOnce(t *testing.T) {
	c := newCore(t, time.Hour)
	alice, aliceConn := c.connect(t, "alice", "alice@example.com")

	// Bob is offline at send time, so the message stays at sent.
	if err := c.dispatch(t, alice, protocol.EventSendMessage, protocol.SendMessagePayload{
		Receiver: "bob@example.com", Body: "read me",
	}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	var msg protocol.Message
	if err := aliceConn.byType(protocol.EventMessageReceived)[0].ParsePayload(&msg); err != nil {
		t.Fatalf("failed to parse echo: %v", err)
	}

	bob, _ := c.connect(t, "bob", "bob@example.com")
	if err := c.dispatch(t, bob, protocol.EventMarkRead, protocol.MarkReadPayload{
		MessageID: msg.ID, Sender: "alice@example.com",
	}); err != nil {
		t.Fatalf("mark_read failed: %v", err)
	}

	// The jump sent -> read produces exactly one notification, to alice.
	changes := aliceConn.byType(protocol.EventStatusChanged)
	if len(changes) != 1 {
		t.Fatalf("sender should get exactly 1 status change, got %d", len(changes))
	}
	var sc protocol.StatusChangedPayload
	if err := changes[0].ParsePayload(&sc); err != nil {
		t.Fatalf("failed to parse status change: %v", err)
	}
	if sc.Status != protocol.StatusRead || sc.Peer != "bob@example.com" {
		t.Errorf("unexpected status change %+v", sc)
	}

	// A duplicate ack changes nothing and stays silent.
	if err := c.dispatch(t, bob, protocol.EventMarkRead, protocol.MarkReadPayload{
		MessageID: msg.ID, Sender: "alice@example.com",
	}); err != nil {
		t.Fatalf("duplicate mark_read failed: %v", err)
	}
	if got := aliceConn.byType(protocol.EventStatusChanged); len(got) != 1 {
		t.Errorf("duplicate read ack must not re-notify, got %d changes", len(got))
	}
}

func TestMarkReadUnknownMessageRejected(t *testing.T) {
	c := newCore(t, time.Hour)
	bob, bobConn := c.connect(t, "bob", "bob@example.com")

	err := c.dispatch(t, bob, protocol.EventMarkRead, protocol.MarkReadPayload{
		MessageID: "no-such-id", Sender: "alice@example.com",
	})
	if !errors.Is(err, apperrors.ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
	if got := bobConn.byType(protocol.EventStatusChanged); len(got) != 0 {
		t.Errorf("no notification expected, got %d", len(got))
	}
}

func TestTypingStartDebouncedAndExpires(t *testing.T) {
	c := newCore(t, 100*time.Millisecond)
	alice, _ := c.connect(t, "alice", "alice@example.com")
	_, bobConn := c.connect(t, "bob", "bob@example.com")

	payload := protocol.TypingPayload{Receiver: "bob@example.com"}
	for i := 0; i < 3; i++ {
		if err := c.dispatch(t, alice, protocol.EventTypingStart, payload); err != nil {
			t.Fatalf("typing_start failed: %v", err)
		}
	}

	active := bobConn.byType(protocol.EventTypingChanged)
	if len(active) != 1 {
		t.Fatalf("repeated starts should broadcast once, got %d", len(active))
	}
	var tc protocol.TypingChangedPayload
	if err := active[0].ParsePayload(&tc); err != nil {
		t.Fatalf("failed to parse typing change: %v", err)
	}
	if !tc.Active || tc.Sender != "alice@example.com" {
		t.Errorf("unexpected typing change %+v", tc)
	}

	// Let the inactivity window lapse: bob gets exactly one stop.
	time.Sleep(300 * time.Millisecond)
	all := bobConn.byType(protocol.EventTypingChanged)
	if len(all) != 2 {
		t.Fatalf("expected start + expiry stop, got %d events", len(all))
	}
	if err := all[1].ParsePayload(&tc); err != nil {
		t.Fatalf("failed to parse typing change: %v", err)
	}
	if tc.Active {
		t.Error("expiry should broadcast inactive")
	}

	// A late explicit stop finds no session and broadcasts nothing more.
	if err := c.dispatch(t, alice, protocol.EventTypingStop, payload); err != nil {
		t.Fatalf("typing_stop failed: %v", err)
	}
	if got := bobConn.byType(protocol.EventTypingChanged); len(got) != 2 {
		t.Errorf("late stop must stay silent, got %d events", len(got))
	}
}

func TestTypingStopBeatsExpiry(t *testing.T) {
	c := newCore(t, time.Hour)
	alice, _ := c.connect(t, "alice", "alice@example.com")
	_, bobConn := c.connect(t, "bob", "bob@example.com")

	payload := protocol.TypingPayload{Receiver: "bob@example.com"}
	if err := c.dispatch(t, alice, protocol.EventTypingStart, payload); err != nil {
		t.Fatalf("typing_start failed: %v", err)
	}
	if err := c.dispatch(t, alice, protocol.EventTypingStop, payload); err != nil {
		t.Fatalf("typing_stop failed: %v", err)
	}

	all := bobConn.byType(protocol.EventTypingChanged)
	if len(all) != 2 {
		t.Fatalf("expected start + stop, got %d events", len(all))
	}

	var tc protocol.TypingChangedPayload
	if err := all[1].ParsePayload(&tc); err != nil {
		t.Fatalf("failed to parse typing change: %v", err)
	}
	if tc.Active {
		t.Error("second broadcast should be the stop")
	}
}

func TestGroupTypingExcludesSender(t *testing.T) {
	c := newCore(t, time.Hour)
	alice, aliceConn := c.connect(t, "alice", "alice@example.com")
	_, bobConn := c.connect(t, "bob", "bob@example.com")
	g := c.groups.Create("team", "alice@example.com", []string{"bob@example.com"})

	if err := c.dispatch(t, alice, protocol.EventTypingStart, protocol.TypingPayload{
		Receiver: g.ID, IsGroup: true,
	}); err != nil {
		t.Fatalf("typing_start failed: %v", err)
	}

	if got := bobConn.byType(protocol.EventTypingChanged); len(got) != 1 {
		t.Errorf("member should see the indicator, got %d", len(got))
	}
	if got := aliceConn.byType(protocol.EventTypingChanged); len(got) != 0 {
		t.Errorf("sender must not see their own indicator, got %d", len(got))
	}
}

func TestCallSignalRelayedOpaque(t *testing.T) {
	c := newCore(t, time.Hour)
	alice, aliceConn := c.connect(t, "alice", "alice@example.com")
	bob, bobConn := c.connect(t, "bob", "bob@example.com")

	offer := []byte(`{"sdp":"v=0 fake-offer","type":"offer"}`)
	if err := c.dispatch(t, alice, protocol.EventCallInitiate, protocol.CallInitiatePayload{
		Callee: "bob@example.com", CallerName: "Alice", Signal: offer, IsVideo: true,
	}); err != nil {
		t.Fatalf("call_initiate failed: %v", err)
	}

	incoming := bobConn.byType(protocol.EventCallIncoming)
	if len(incoming) != 1 {
		t.Fatalf("callee should get exactly 1 ring, got %d", len(incoming))
	}
	var in protocol.CallIncomingPayload
	if err := incoming[0].ParsePayload(&in); err != nil {
		t.Fatalf("failed to parse incoming call: %v", err)
	}
	if in.Caller != "alice@example.com" || !in.IsVideo {
		t.Errorf("unexpected incoming call %+v", in)
	}
	if string(in.Signal) != string(offer) {
		t.Errorf("signal must pass through untouched, got %s", in.Signal)
	}

	answer := []byte(`{"sdp":"v=0 fake-answer","type":"answer"}`)
	if err := c.dispatch(t, bob, protocol.EventCallAnswer, protocol.CallAnswerPayload{
		Caller: "alice@example.com", Signal: answer,
	}); err != nil {
		t.Fatalf("call_answer failed: %v", err)
	}

	accepted := aliceConn.byType(protocol.EventCallAccepted)
	if len(accepted) != 1 {
		t.Fatalf("caller should get exactly 1 accept, got %d", len(accepted))
	}
	var acc protocol.CallAcceptedPayload
	if err := accepted[0].ParsePayload(&acc); err != nil {
		t.Fatalf("failed to parse accept: %v", err)
	}
	if string(acc.Signal) != string(answer) {
		t.Errorf("answer signal must pass through untouched, got %s", acc.Signal)
	}

	if err := c.dispatch(t, bob, protocol.EventCallEnd, protocol.CallEndPayload{
		Peer: "alice@example.com",
	}); err != nil {
		t.Fatalf("call_end failed: %v", err)
	}

	ended := aliceConn.byType(protocol.EventCallEnded)
	if len(ended) != 1 {
		t.Fatalf("caller should be told the call ended, got %d", len(ended))
	}
	if _, live := c.relay.Get("alice@example.com", "bob@example.com"); live {
		t.Error("session should be gone after end")
	}
}

func TestCallToOfflineCalleeRingsIntoVoid(t *testing.T) {
	c := newCore(t, time.Hour)
	alice, aliceConn := c.connect(t, "alice", "alice@example.com")

	if err := c.dispatch(t, alice, protocol.EventCallInitiate, protocol.CallInitiatePayload{
		Callee: "bob@example.com",
	}); err != nil {
		t.Fatalf("call_initiate failed: %v", err)
	}

	// The session exists and rings, but with no timeout configured the
	// caller gets no failure notification.
	if s, live := c.relay.Get("alice@example.com", "bob@example.com"); !live || s.State != call.StateRinging {
		t.Error("session should be ringing despite the offline callee")
	}
	if got := aliceConn.byType(protocol.EventCallFailed); len(got) != 0 {
		t.Errorf("no failure should be reported, got %d", len(got))
	}
}

func TestDuplicateCallInitiateDoesNotReRing(t *testing.T) {
	c := newCore(t, time.Hour)
	alice, _ := c.connect(t, "alice", "alice@example.com")
	_, bobConn := c.connect(t, "bob", "bob@example.com")

	payload := protocol.CallInitiatePayload{Callee: "bob@example.com"}
	if err := c.dispatch(t, alice, protocol.EventCallInitiate, payload); err != nil {
		t.Fatalf("call_initiate failed: %v", err)
	}
	if err := c.dispatch(t, alice, protocol.EventCallInitiate, payload); err != nil {
		t.Fatalf("duplicate call_initiate failed: %v", err)
	}

	if got := bobConn.byType(protocol.EventCallIncoming); len(got) != 1 {
		t.Errorf("callee should ring once, got %d", len(got))
	}
}
