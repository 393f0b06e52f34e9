package call

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// State is the lifecycle state of a call session
type State string

const (
	StateRinging  State = "ringing"
	StateAccepted State = "accepted"
	StateEnded    State = "ended"
)

// Session is one call between two peers. The signaling payloads pass
// through the relay opaquely and are never stored here; a session only
// tracks who is talking to whom and where the state machine stands.
type Session struct {
	Caller    string
	Callee    string
	IsVideo   bool
	State     State
	StartedAt time.Time
}

// Relay implements the per-call state machine, keyed by the unordered
// {caller, callee} pair. At most one non-terminal session exists per
// pair at any time.
type Relay struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	timers      map[string]*time.Timer
	ringTimeout time.Duration
	onTimeout   func(Session)
}

// NewRelay creates a relay. When ringTimeout is positive, a session still
// ringing after the window is ended and onTimeout is invoked with a copy
// of it; with a zero timeout an unanswered call rings indefinitely.
func NewRelay(ringTimeout time.Duration, onTimeout func(Session)) *Relay {
	return &Relay{
		sessions:    make(map[string]*Session),
		timers:      make(map[string]*time.Timer),
		ringTimeout: ringTimeout,
		onTimeout:   onTimeout,
	}
}

// pairKey canonicalizes the unordered peer pair
func pairKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "|")
}

// Initiate creates a ringing session between caller and callee and
// reports whether it is fresh. A second initiate while a session for the
// pair is still live is a redundant operation and changes nothing.
func (r *Relay) Initiate(caller, callee string, isVideo bool) (Session, bool) {
	key := pairKey(caller, callee)

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[key]; ok {
		return *s, false
	}

	s := &Session{
		Caller:    caller,
		Callee:    callee,
		IsVideo:   isVideo,
		State:     StateRinging,
		StartedAt: time.Now(),
	}
	r.sessions[key] = s

	if r.ringTimeout > 0 {
		r.timers[key] = time.AfterFunc(r.ringTimeout, func() { r.ringExpired(key) })
	}

	return *s, true
}

// Answer moves the pair's session from ringing to accepted. It is a no-op
// when no session exists or the session already left the ringing state.
func (r *Relay) Answer(callee, caller string) (Session, bool) {
	key := pairKey(callee, caller)

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[key]
	if !ok || s.State != StateRinging {
		return Session{}, false
	}

	s.State = StateAccepted
	r.cancelTimer(key)
	return *s, true
}

// End terminates the pair's session from any non-terminal state and
// removes it. Returns the final session so the caller can notify the
// other party.
func (r *Relay) End(peerA, peerB string) (Session, bool) {
	key := pairKey(peerA, peerB)

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[key]
	if !ok {
		return Session{}, false
	}

	s.State = StateEnded
	delete(r.sessions, key)
	r.cancelTimer(key)
	return *s, true
}

// DropParticipant ends every live session involving the identity, for use
// when its connection goes away. Returns the ended sessions so remaining
// parties can be notified best-effort.
func (r *Relay) DropParticipant(email string) []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ended []Session
	for key, s := range r.sessions {
		if s.Caller != email && s.Callee != email {
			continue
		}
		s.State = StateEnded
		delete(r.sessions, key)
		r.cancelTimer(key)
		ended = append(ended, *s)
	}
	return ended
}

// Get returns a copy of the live session for the pair, if any
func (r *Relay) Get(a, b string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[pairKey(a, b)]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// cancelTimer stops and forgets the ring timer for a key. Caller holds
// the mutex.
func (r *Relay) cancelTimer(key string) {
	if timer, ok := r.timers[key]; ok {
		timer.Stop()
		delete(r.timers, key)
	}
}

func (r *Relay) ringExpired(key string) {
	r.mu.Lock()
	s, ok := r.sessions[key]
	if ok && s.State == StateRinging {
		s.State = StateEnded
		delete(r.sessions, key)
		delete(r.timers, key)
	} else {
		ok = false
	}
	r.mu.Unlock()

	// An answer or end that raced the timer wins; only a session still
	// ringing at expiry reports a failure.
	if ok && r.onTimeout != nil {
		r.onTimeout(*s)
	}
}
