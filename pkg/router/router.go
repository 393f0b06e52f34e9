package router

import (
	"sort"
	"strings"

	"chatterbox/pkg/group"
	"chatterbox/pkg/presence"
	"chatterbox/pkg/protocol"
)

// DirectKey canonicalizes a direct conversation between two identities.
// The pair is sorted before joining so DirectKey(a, b) == DirectKey(b, a).
func DirectKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "_")
}

// Router resolves conversation keys and fans events out to the
// connections of affected identities, consulting the presence registry
// for bindings and the group directory for membership.
type Router struct {
	registry *presence.Registry
	groups   *group.Directory
}

// New creates a router over the given registries
func New(registry *presence.Registry, groups *group.Directory) *Router {
	return &Router{registry: registry, groups: groups}
}

// Key resolves the conversation key for a sender/receiver pair. For
// groups the key is the group id itself.
func (r *Router) Key(sender, receiver string, isGroup bool) string {
	if isGroup {
		return receiver
	}
	return DirectKey(sender, receiver)
}

// TargetsFor returns the identities an event in this conversation should
// reach. Direct conversations target the other party only; group
// conversations target every member except the sender.
func (r *Router) TargetsFor(sender, receiver string, isGroup bool) []string {
	if !isGroup {
		return []string{receiver}
	}

	members := r.groups.MembersOf(receiver)
	targets := make([]string, 0, len(members))
	for _, m := range members {
		if m != sender {
			targets = append(targets, m)
		}
	}
	return targets
}

// DeliverTo emits an event to one identity's connection. An offline
// target is silently skipped; that is policy, not an error.
func (r *Router) DeliverTo(email string, ev *protocol.Event) bool {
	sink, ok := r.registry.SinkOf(email)
	if !ok {
		return false
	}
	return sink.Send(ev) == nil
}

// Deliver emits an event to each target and returns how many were
// actually reached.
func (r *Router) Deliver(targets []string, ev *protocol.Event) int {
	n := 0
	for _, t := range targets {
		if r.DeliverTo(t, ev) {
			n++
		}
	}
	return n
}
