// Package liveness keeps an advisory heartbeat record per participant. It is
// never the source of truth for session state; the state machine and sweeper
// only consult it as an input.
package liveness

import (
	"sync"
	"time"
)

type presence struct {
	lastHeartbeatAt  time.Time
	currentSessionID string
}

// Tracker answers "is participant P currently live" against a fixed window.
// Records are created on first heartbeat, updated per heartbeat, and removed
// via Forget (session went terminal) or PruneIdle (timed out with no session).
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*presence
	window  time.Duration
	now     func() time.Time
}

func NewTracker(window time.Duration, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		records: make(map[string]*presence),
		window:  window,
		now:     now,
	}
}

// Heartbeat records a liveness signal. sessionID may be empty while the
// participant is between sessions.
func (t *Tracker) Heartbeat(participantID, sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[participantID]
	if !ok {
		rec = &presence{}
		t.records[participantID] = rec
	}
	rec.lastHeartbeatAt = t.now()
	rec.currentSessionID = sessionID
}

// IsLive reports whether the participant signalled within the window.
func (t *Tracker) IsLive(participantID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[participantID]
	if !ok {
		return false
	}
	return t.now().Sub(rec.lastHeartbeatAt) < t.window
}

// LastSeen returns the time of the last heartbeat, if any was recorded.
func (t *Tracker) LastSeen(participantID string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[participantID]
	if !ok {
		return time.Time{}, false
	}
	return rec.lastHeartbeatAt, true
}

// SessionOf returns the session id from the participant's last heartbeat.
func (t *Tracker) SessionOf(participantID string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[participantID]
	if !ok {
		return ""
	}
	return rec.currentSessionID
}

func (t *Tracker) Forget(participantID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, participantID)
}

// Window returns the configured liveness window.
func (t *Tracker) Window() time.Duration {
	return t.window
}

// PruneIdle drops records with no session whose silence exceeds grace.
// Called by the sweeper each cycle to bound memory.
func (t *Tracker) PruneIdle(grace time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	n := 0
	for id, rec := range t.records {
		if rec.currentSessionID == "" && now.Sub(rec.lastHeartbeatAt) > grace {
			delete(t.records, id)
			n++
		}
	}
	return n
}
