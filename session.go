package chatsync

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SessionTracker holds the server session identity, the connectivity state
// machine, and the sync cursor. It is the sole writer of the cursor and the
// place where session rollover is detected.
type SessionTracker struct {
	mu         sync.Mutex
	session    Session
	state      ConnState
	clock      Clock
	log        zerolog.Logger
	onRollover func(oldID, newID string)
	onState    func(prev, next ConnState)
}

func NewSessionTracker(clock Clock, log zerolog.Logger) *SessionTracker {
	if clock == nil {
		clock = time.Now
	}
	return &SessionTracker{state: StateDisconnected, clock: clock, log: log}
}

// OnRollover registers the invalidation hook invoked when ApplyInfo sees a
// new session id. The hook runs outside the tracker lock.
func (t *SessionTracker) OnRollover(fn func(oldID, newID string)) {
	t.mu.Lock()
	t.onRollover = fn
	t.mu.Unlock()
}

// OnStateChange registers a hook invoked outside the lock whenever the
// connectivity state actually changes.
func (t *SessionTracker) OnStateChange(fn func(prev, next ConnState)) {
	t.mu.Lock()
	t.onState = fn
	t.mu.Unlock()
}

// ApplyInfo ingests a GET /info response. A session id different from the
// stored one means the server's backing state was reset: the cursor jumps
// to the current time and the rollover hook fires so the caches can be
// cleared. Polling a fresh server epoch with a stale cursor would silently
// miss everything that existed before the reset.
func (t *SessionTracker) ApplyInfo(info InfoResponse) (rolled bool) {
	t.mu.Lock()
	prev := t.session.SessionID
	rolled = prev != "" && info.SessionID != "" && info.SessionID != prev
	if info.SessionID != "" {
		t.session.SessionID = info.SessionID
	}
	t.session.APIVersion = info.APIVersion
	if rolled {
		t.session.LastSyncCursor = t.clock()
	}
	hook := t.onRollover
	t.mu.Unlock()

	if rolled {
		t.log.Warn().
			Str("previous", prev).
			Str("current", info.SessionID).
			Msg("session rollover, invalidating local state")
		if hook != nil {
			hook(prev, info.SessionID)
		}
	}
	return rolled
}

// AdvanceCursor moves the sync cursor forward. The cursor never regresses:
// an older or equal timestamp is ignored.
func (t *SessionTracker) AdvanceCursor(ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ts.After(t.session.LastSyncCursor) {
		t.session.LastSyncCursor = ts
	}
}

// Cursor returns the current sync cursor. Zero means no delta has ever
// been applied for this session.
func (t *SessionTracker) Cursor() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session.LastSyncCursor
}

// Restore seeds the tracker from a persisted snapshot. Connectivity is
// never restored; a fresh process always starts disconnected.
func (t *SessionTracker) Restore(sessionID string, apiVersion int, cursor time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.session.SessionID = sessionID
	t.session.APIVersion = apiVersion
	t.session.LastSyncCursor = cursor
}

// Session returns a copy of the tracked session with the derived Connected
// flag filled in.
func (t *SessionTracker) Session() Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.session
	s.Connected = t.state == StateConnected || t.state == StateDegraded
	return s
}

// State returns the connectivity state.
func (t *SessionTracker) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Connected reports whether the service is reachable. Degraded counts: the
// link is up even though recent syncs failed.
func (t *SessionTracker) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == StateConnected || t.state == StateDegraded
}

func (t *SessionTracker) MarkConnecting() { t.setState(StateConnecting) }

func (t *SessionTracker) MarkConnected() { t.setState(StateConnected) }

// MarkDegraded records that the service answers but sync cycles keep
// failing. Only meaningful after a connection was established; earlier
// failures keep the connecting state until the retry budget runs out.
func (t *SessionTracker) MarkDegraded() { t.setState(StateDegraded) }

func (t *SessionTracker) MarkDisconnected() { t.setState(StateDisconnected) }

func (t *SessionTracker) setState(next ConnState) {
	t.mu.Lock()
	prev := t.state
	t.state = next
	hook := t.onState
	t.mu.Unlock()
	if prev == next {
		return
	}
	t.log.Debug().Str("from", string(prev)).Str("to", string(next)).Msg("connection state changed")
	if hook != nil {
		hook(prev, next)
	}
}
