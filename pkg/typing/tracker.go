package typing

import (
	"sync"
	"time"
)

// Tracker owns the ephemeral typing sessions, one per (sender,
// conversation key), each with a resettable inactivity timer. Start and
// Stop for the same session are serialized behind one mutex, and an
// expiry that lost the race to an explicit Stop or a refresh finds its
// generation stale and stays silent, so nothing can double-broadcast.
type Tracker struct {
	mu       sync.Mutex
	timeout  time.Duration
	sessions map[sessionKey]*session
}

type sessionKey struct {
	sender string
	key    string
}

type session struct {
	timer  *time.Timer
	gen    uint64
	expire func()
}

// NewTracker creates a tracker with the given inactivity window
func NewTracker(timeout time.Duration) *Tracker {
	return &Tracker{
		timeout:  timeout,
		sessions: make(map[sessionKey]*session),
	}
}

// Start activates a typing session and reports whether it is new. A
// repeated start within the window only re-arms the timer (debounced);
// the caller must broadcast "started" only when true is returned. expire
// is invoked once if the window lapses without a refresh or explicit
// stop.
func (t *Tracker) Start(sender, key string, expire func()) bool {
	sk := sessionKey{sender: sender, key: key}

	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.sessions[sk]; ok {
		s.timer.Stop()
		s.gen++
		t.arm(sk, s)
		return false
	}

	s := &session{expire: expire}
	t.sessions[sk] = s
	t.arm(sk, s)
	return true
}

// Stop removes the session and cancels its timer, reporting whether a
// session was actually active. The caller broadcasts "stopped" only when
// true is returned; a redundant stop is a no-op.
func (t *Tracker) Stop(sender, key string) bool {
	sk := sessionKey{sender: sender, key: key}

	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[sk]
	if !ok {
		return false
	}

	s.timer.Stop()
	delete(t.sessions, sk)
	return true
}

// Active reports whether a session currently exists
func (t *Tracker) Active(sender, key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.sessions[sessionKey{sender: sender, key: key}]
	return ok
}

// arm installs a fresh timer bound to the session's current generation.
// Caller holds the mutex. A new timer per refresh, rather than Reset,
// keeps an already-fired callback from adopting the refreshed deadline.
func (t *Tracker) arm(sk sessionKey, s *session) {
	gen := s.gen
	s.timer = time.AfterFunc(t.timeout, func() { t.expired(sk, gen) })
}

func (t *Tracker) expired(sk sessionKey, gen uint64) {
	t.mu.Lock()
	s, ok := t.sessions[sk]
	if ok && s.gen == gen {
		delete(t.sessions, sk)
	} else {
		ok = false
	}
	t.mu.Unlock()

	if ok && s.expire != nil {
		s.expire()
	}
}
