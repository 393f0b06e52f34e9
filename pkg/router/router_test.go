package router

import (
	"testing"

	"chatterbox/pkg/group"
	"chatterbox/pkg/presence"
	"chatterbox/pkg/protocol"
)

type fakeSink struct {
	events []*protocol.Event
}

func (f *fakeSink) Send(ev *protocol.Event) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeSink) Close() error { return nil }

func TestDirectKeyIsSymmetric(t *testing.T) {
	cases := []struct {
		a, b, want string
	}{
		{"alice@example.com", "bob@example.com", "alice@example.com_bob@example.com"},
		{"bob@example.com", "alice@example.com", "alice@example.com_bob@example.com"},
		{"x", "x", "x_x"},
	}
	for _, c := range cases {
		if got := DirectKey(c.a, c.b); got != c.want {
			t.Errorf("DirectKey(%q, %q) = %q, want %q", c.a, c.b, got, c.want)
		}
	}
}

func TestKeyForGroupIsGroupID(t *testing.T) {
	r := New(presence.NewRegistry(), group.NewDirectory())

	if got := r.Key("alice", "group-123", true); got != "group-123" {
		t.Errorf("group key should be the group id, got %q", got)
	}
	if got := r.Key("b", "a", false); got != "a_b" {
		t.Errorf("direct key should be canonical, got %q", got)
	}
}

func TestTargetsForDirect(t *testing.T) {
	r := New(presence.NewRegistry(), group.NewDirectory())

	targets := r.TargetsFor("alice", "bob", false)
	if len(targets) != 1 || targets[0] != "bob" {
		t.Errorf("direct message should target the receiver only, got %v", targets)
	}
}

func TestTargetsForGroupExcludesSender(t *testing.T) {
	groups := group.NewDirectory()
	g := groups.Create("team", "alice", []string{"bob", "carol"})
	r := New(presence.NewRegistry(), groups)

	targets := r.TargetsFor("alice", g.ID, true)
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %v", targets)
	}
	for _, target := range targets {
		if target == "alice" {
			t.Error("sender must not be a fanout target")
		}
	}
}

func TestTargetsForUnknownGroup(t *testing.T) {
	r := New(presence.NewRegistry(), group.NewDirectory())
	if targets := r.TargetsFor("alice", "no-such-group", true); len(targets) != 0 {
		t.Errorf("unknown group should have no targets, got %v", targets)
	}
}

func TestDeliverSkipsOfflineTargets(t *testing.T) {
	registry := presence.NewRegistry()
	sink := &fakeSink{}
	registry.Connect("alice", "alice@example.com", sink)
	registry.Register("bob", "bob@example.com") // known but offline

	r := New(registry, group.NewDirectory())
	ev, err := protocol.NewEvent(protocol.EventTypingChanged, protocol.TypingChangedPayload{Sender: "x"})
	if err != nil {
		t.Fatalf("failed to build event: %v", err)
	}

	reached := r.Deliver([]string{"alice@example.com", "bob@example.com", "ghost@example.com"}, ev)
	if reached != 1 {
		t.Errorf("expected to reach 1 target, got %d", reached)
	}
	if len(sink.events) != 1 {
		t.Errorf("online target should get exactly 1 event, got %d", len(sink.events))
	}
	if r.DeliverTo("bob@example.com", ev) {
		t.Error("delivery to an offline identity should report false")
	}
}
