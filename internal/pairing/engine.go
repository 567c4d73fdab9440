package pairing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dicematch/internal/profile"
	"dicematch/internal/session"
)

// ErrPairingInProgress rejects a second concurrent RequestMatch for the
// same participant; the in-flight one must finish first.
var ErrPairingInProgress = errors.New("pairing: request already in progress")

// PresenceView is the slice of the liveness tracker the engine needs.
type PresenceView interface {
	Heartbeat(participantID, sessionID string)
	SessionOf(participantID string) string
}

// Engine pairs join requests into sessions. It holds no persistent state of
// its own: every mutation goes through the state machine's conditional
// writes, and losing a race just means trying the next candidate.
type Engine struct {
	store    session.Store
	machine  *session.Machine
	presence PresenceView
	profiles profile.Provider
	policy   TolerancePolicy
	now      func() time.Time

	// OnSession is called with the fresh record whenever the engine creates
	// a session or fills a slot; main wires it to the websocket notifier.
	OnSession func(*session.Session)

	mu           sync.Mutex
	inflight     map[string]struct{}
	waitingSince map[string]time.Time
}

func NewEngine(store session.Store, machine *session.Machine, presence PresenceView, profiles profile.Provider, policy TolerancePolicy, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:        store,
		machine:      machine,
		presence:     presence,
		profiles:     profiles,
		policy:       policy,
		now:          now,
		inflight:     make(map[string]struct{}),
		waitingSince: make(map[string]time.Time),
	}
}

// RequestMatch finds a compatible open session for the request or creates a
// new one. A participant already occupying a live session gets that session
// back unchanged (idempotent rejoin).
func (e *Engine) RequestMatch(ctx context.Context, req JoinRequest) (*MatchResult, error) {
	if err := e.begin(req.ParticipantID); err != nil {
		return nil, err
	}
	defer e.end(req.ParticipantID)

	if res, ok := e.rejoin(ctx, req.ParticipantID); ok {
		return res, nil
	}

	snap, err := e.profiles.Snapshot(ctx, req.ParticipantID)
	if err != nil {
		return nil, fmt.Errorf("pairing: profile lookup: %w", err)
	}

	if req.Kind == session.KindDirect || req.Kind == session.KindRematch {
		// An invite may already be waiting for us; joining it is authorized
		// by id match, never by open discovery.
		if res, err := e.attachInvited(ctx, req, snap); err != nil {
			return nil, err
		} else if res != nil {
			return res, nil
		}
		return e.createSession(ctx, req, snap)
	}

	if res, err := e.attachOpen(ctx, req, snap); err != nil {
		return nil, err
	} else if res != nil {
		return res, nil
	}
	return e.createSession(ctx, req, snap)
}

// begin marks the participant "pairing in progress" for the duration of one
// RequestMatch, ruling out a double-attach via concurrent requests.
func (e *Engine) begin(participantID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[participantID]; busy {
		return ErrPairingInProgress
	}
	e.inflight[participantID] = struct{}{}
	if _, ok := e.waitingSince[participantID]; !ok {
		e.waitingSince[participantID] = e.now()
	}
	return nil
}

func (e *Engine) end(participantID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, participantID)
}

func (e *Engine) waited(participantID string) time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	since, ok := e.waitingSince[participantID]
	if !ok {
		return 0
	}
	return e.now().Sub(since)
}

func (e *Engine) donePairing(participantID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.waitingSince, participantID)
}

// rejoin resolves requests from a participant who already occupies a
// non-terminal session, via the presence record or the open-session list.
func (e *Engine) rejoin(ctx context.Context, participantID string) (*MatchResult, bool) {
	if sid := e.presence.SessionOf(participantID); sid != "" {
		if s, err := e.store.Get(ctx, sid); err == nil && !s.State.Terminal() && s.HasParticipant(participantID) {
			return &MatchResult{SessionID: s.ID, Role: roleOf(s, participantID)}, true
		}
	}
	searching, err := e.store.ListByState(ctx, session.StateSearching)
	if err != nil {
		return nil, false
	}
	for _, s := range searching {
		if s.HasParticipant(participantID) {
			return &MatchResult{SessionID: s.ID, Role: roleOf(s, participantID)}, true
		}
	}
	return nil, false
}

// attachOpen filters searching sessions by mode and skill distance; the
// tolerance widens with the requester's wait.
func (e *Engine) attachOpen(ctx context.Context, req JoinRequest, snap profile.Snapshot) (*MatchResult, error) {
	candidates, err := e.store.ListByState(ctx, session.StateSearching)
	if err != nil {
		return nil, err
	}
	tolerance := e.policy.Tolerance(e.waited(req.ParticipantID))

	eligible := candidates[:0]
	for _, s := range candidates {
		if s.Mode != req.Mode || s.Kind != session.KindOpen || len(s.Participants) != 1 {
			continue
		}
		if abs(s.SkillBucket-snap.SkillBucket) > tolerance {
			continue
		}
		eligible = append(eligible, s)
	}
	return e.tryCandidates(ctx, req, snap, eligible)
}

// attachInvited joins a waiting direct/rematch session whose invite names
// the requester.
func (e *Engine) attachInvited(ctx context.Context, req JoinRequest, snap profile.Snapshot) (*MatchResult, error) {
	candidates, err := e.store.ListByState(ctx, session.StateSearching)
	if err != nil {
		return nil, err
	}
	eligible := candidates[:0]
	for _, s := range candidates {
		if s.Kind != req.Kind || s.Mode != req.Mode || len(s.Participants) != 1 {
			continue
		}
		if !s.Authorized(req.ParticipantID) {
			continue
		}
		eligible = append(eligible, s)
	}
	return e.tryCandidates(ctx, req, snap, eligible)
}

// tryCandidates attempts the second-slot attach oldest-first. Conflicts mean
// another requester won that candidate; fall through to the next. Returns
// nil when no candidate worked out.
func (e *Engine) tryCandidates(ctx context.Context, req JoinRequest, snap profile.Snapshot, eligible []*session.Session) (*MatchResult, error) {
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})

	for _, cand := range eligible {
		updated, err := e.machine.Attach(ctx, cand.ID, session.Participant{
			ID:          snap.ParticipantID,
			DisplayName: snap.DisplayName,
			Wins:        snap.Wins,
			Losses:      snap.Losses,
			SkillBucket: snap.SkillBucket,
		})
		switch {
		case err == nil:
			e.presence.Heartbeat(req.ParticipantID, updated.ID)
			e.donePairing(req.ParticipantID)
			if e.OnSession != nil {
				go e.OnSession(updated)
			}
			return &MatchResult{SessionID: updated.ID, Role: RoleGuest}, nil
		case errors.Is(err, session.ErrConflict), errors.Is(err, session.ErrNotFound):
			continue // candidate was taken or reclaimed; next
		case errors.Is(err, session.ErrUnauthorized):
			continue
		default:
			return nil, err
		}
	}
	return nil, nil
}

func (e *Engine) createSession(ctx context.Context, req JoinRequest, snap profile.Snapshot) (*MatchResult, error) {
	s := &session.Session{
		ID:    uuid.NewString(),
		Mode:  req.Mode,
		Kind:  req.Kind,
		State: session.StateSearching,
		Participants: []session.Participant{{
			ID:          snap.ParticipantID,
			DisplayName: snap.DisplayName,
			Wins:        snap.Wins,
			Losses:      snap.Losses,
			SkillBucket: snap.SkillBucket,
			JoinedAt:    e.now(),
		}},
		SkillBucket: snap.SkillBucket,
		CreatedAt:   e.now(),
	}
	if req.Kind == session.KindDirect || req.Kind == session.KindRematch {
		s.Invited = append([]string(nil), req.Targets...)
	}
	if err := e.store.Create(ctx, s); err != nil {
		return nil, err
	}
	e.presence.Heartbeat(req.ParticipantID, s.ID)
	if e.OnSession != nil {
		go e.OnSession(s)
	}
	return &MatchResult{SessionID: s.ID, Role: RoleHost}, nil
}

// Ready marks the caller ready and, once both sides are, drives the session
// to active. Activation refusal is not an error for the caller: the returned
// state tells them whether to keep waiting.
func (e *Engine) Ready(ctx context.Context, sessionID, participantID string) (*session.Session, error) {
	s, err := e.machine.MarkReady(ctx, sessionID, participantID)
	if err != nil {
		return nil, err
	}
	if s.State == session.StateReadyCheck && s.BothReady() {
		activated, err := e.machine.Activate(ctx, sessionID)
		if err == nil {
			e.donePairing(s.Participants[0].ID)
			e.donePairing(s.Participants[1].ID)
			return activated, nil
		}
		if !errors.Is(err, session.ErrConflict) &&
			!errors.Is(err, session.ErrNotReady) &&
			!errors.Is(err, session.ErrPeerGone) {
			return nil, err
		}
	}
	return s, nil
}

// Leave withdraws a participant: cancellation while still searching alone,
// abandonment otherwise. The session may have transitioned concurrently, so
// callers must re-check the returned state rather than assume success.
func (e *Engine) Leave(ctx context.Context, sessionID, participantID string) (*session.Session, error) {
	cur, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !cur.HasParticipant(participantID) {
		return nil, session.ErrUnauthorized
	}
	if cur.State.Terminal() {
		return cur, nil
	}
	if cur.State == session.StateSearching && len(cur.Participants) == 1 {
		s, err := e.machine.Cancel(ctx, sessionID, participantID)
		if !errors.Is(err, session.ErrConflict) {
			return s, err
		}
		// A second participant attached while we were cancelling.
	}
	return e.machine.Abandon(ctx, sessionID, fmt.Sprintf("participant %s left", participantID))
}

func roleOf(s *session.Session, participantID string) Role {
	if len(s.Participants) > 0 && s.Participants[0].ID == participantID {
		return RoleHost
	}
	return RoleGuest
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
