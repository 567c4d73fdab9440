package session

import (
	"context"
	"errors"
	"time"

	"dicematch/internal/utils"
)

var (
	// ErrUnauthorized rejects a join against a direct/rematch session by a
	// participant outside the pre-authorized set. Never retried.
	ErrUnauthorized = errors.New("session: participant not authorized")
	// ErrNotReady refuses activation while either side has not readied up.
	ErrNotReady = errors.New("session: both participants must be ready")
	// ErrPeerGone refuses activation when a participant is no longer live.
	ErrPeerGone = errors.New("session: participant not live")
	// ErrInvariant flags a record that violates a structural invariant
	// (e.g. three participants). Loud by design: it means a conditional
	// write guard was bypassed, and must never be silently corrected.
	ErrInvariant = errors.New("session: invariant violation")

	// errRejoin is an internal marker for the idempotent-rejoin path.
	errRejoin = errors.New("session: already attached")
)

// LivenessView is the slice of the liveness tracker the machine needs.
type LivenessView interface {
	IsLive(participantID string) bool
	Forget(participantID string)
}

// Machine owns the lifecycle transitions of session records. Every operation
// is a single conditional write through the store; ErrConflict from any of
// them means another writer got there first and the caller should re-read.
type Machine struct {
	store Store
	live  LivenessView
	now   func() time.Time
}

func NewMachine(store Store, live LivenessView, now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{store: store, live: live, now: now}
}

// Attach fills the second slot of a searching session. Attaching an id that
// already occupies a slot is a no-op success (rejoin after reconnect). When
// the second slot fills the session moves to ready_check.
func (m *Machine) Attach(ctx context.Context, sessionID string, p Participant) (*Session, error) {
	updated, err := m.store.ConditionalUpdate(ctx, sessionID, StateSearching, func(s *Session) error {
		if len(s.Participants) > 2 {
			utils.Error.Printf("session %s has %d participants, guard bypassed", s.ID, len(s.Participants))
			return ErrInvariant
		}
		if s.HasParticipant(p.ID) {
			return errRejoin
		}
		if len(s.Participants) != 1 {
			return ErrConflict
		}
		if !s.Authorized(p.ID) {
			return ErrUnauthorized
		}
		p.Ready = false
		p.JoinedAt = m.now()
		s.Participants = append(s.Participants, p)
		s.State = StateReadyCheck
		return nil
	})
	if errors.Is(err, errRejoin) {
		return m.store.Get(ctx, sessionID)
	}
	return updated, err
}

// MarkReady sets the caller's ready flag. Valid while the session is not yet
// terminal; the expected state is whatever the record currently shows, so a
// concurrent transition surfaces as ErrConflict for the caller to retry.
func (m *Machine) MarkReady(ctx context.Context, sessionID, participantID string) (*Session, error) {
	cur, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cur.State.Terminal() {
		return nil, ErrConflict
	}
	return m.store.ConditionalUpdate(ctx, sessionID, cur.State, func(s *Session) error {
		i := s.ParticipantIndex(participantID)
		if i < 0 {
			return ErrUnauthorized
		}
		s.Participants[i].Ready = true
		return nil
	})
}

// Activate moves ready_check to active. Both slots must be filled, both
// ready, and both live per the tracker checked immediately before the write.
func (m *Machine) Activate(ctx context.Context, sessionID string) (*Session, error) {
	return m.store.ConditionalUpdate(ctx, sessionID, StateReadyCheck, func(s *Session) error {
		if len(s.Participants) != 2 || !s.BothReady() {
			return ErrNotReady
		}
		for _, p := range s.Participants {
			if !m.live.IsLive(p.ID) {
				return ErrPeerGone
			}
		}
		s.State = StateActive
		return nil
	})
}

// Complete records the rules engine's result for an active session.
func (m *Machine) Complete(ctx context.Context, sessionID string, result Result) (*Session, error) {
	updated, err := m.store.ConditionalUpdate(ctx, sessionID, StateActive, func(s *Session) error {
		result.ReportedAt = m.now()
		s.State = StateCompleted
		s.Result = &result
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.releasePresence(updated)
	return updated, nil
}

// Abandon force-transitions a non-completed session to abandoned. Already
// terminal sessions are a no-op success so racing sweep cycles converge.
func (m *Machine) Abandon(ctx context.Context, sessionID, reason string) (*Session, error) {
	cur, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if cur.State == StateCompleted {
		return nil, ErrConflict
	}
	if cur.State.Terminal() {
		return cur, nil
	}
	updated, err := m.store.ConditionalUpdate(ctx, sessionID, cur.State, func(s *Session) error {
		s.State = StateAbandoned
		return nil
	})
	if err != nil {
		return nil, err
	}
	utils.Info.Printf("session %s abandoned: %s", sessionID, reason)
	m.releasePresence(updated)
	return updated, nil
}

// Cancel withdraws the sole participant of a searching session. If a second
// participant attached concurrently the guard fails with ErrConflict and the
// caller must re-check the session state.
func (m *Machine) Cancel(ctx context.Context, sessionID, participantID string) (*Session, error) {
	updated, err := m.store.ConditionalUpdate(ctx, sessionID, StateSearching, func(s *Session) error {
		if !s.HasParticipant(participantID) {
			return ErrUnauthorized
		}
		if len(s.Participants) != 1 {
			return ErrConflict
		}
		s.State = StateCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.releasePresence(updated)
	return updated, nil
}

// Presence records are dropped once the owning session goes terminal.
func (m *Machine) releasePresence(s *Session) {
	if m.live == nil {
		return
	}
	for _, p := range s.Participants {
		m.live.Forget(p.ID)
	}
}
