// Package sweeper reclaims stale sessions: it is the single consolidated
// background job for abandonment detection and terminal-record retention.
package sweeper

import (
	"context"
	"errors"
	"time"

	"dicematch/internal/liveness"
	"dicematch/internal/session"
	"dicematch/internal/utils"
)

type Config struct {
	Period time.Duration // sweep cadence, shorter than the session TTL
	// ReadyWindow bounds how long a ready_check session may sit without
	// both sides ready before the waiting side is released.
	ReadyWindow time.Duration
	// Grace is the multiple of the liveness window a required participant
	// may be silent before the session is considered abandoned.
	Grace int
	// Retention is how long terminal sessions are kept for audit before
	// deletion.
	Retention time.Duration
}

type Sweeper struct {
	store   session.Store
	machine *session.Machine
	tracker *liveness.Tracker
	cfg     Config
	now     func() time.Time
}

func New(store session.Store, machine *session.Machine, tracker *liveness.Tracker, cfg Config, now func() time.Time) *Sweeper {
	if now == nil {
		now = time.Now
	}
	return &Sweeper{store: store, machine: machine, tracker: tracker, cfg: cfg, now: now}
}

// Run ticks until ctx is cancelled. A failed cycle is skipped, not retried:
// the next tick starts from fresh state.
func (sw *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.cfg.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sw.SweepOnce(ctx); err != nil {
				utils.Error.Printf("sweep cycle skipped: %v", err)
			}
		}
	}
}

// SweepOnce scans every session once. Abandonment is at-least-once: a
// conditional write lost to a racing cycle is a benign no-op.
func (sw *Sweeper) SweepOnce(ctx context.Context) error {
	sessions, err := sw.store.ListAll(ctx)
	if err != nil {
		return err
	}
	now := sw.now()
	for _, s := range sessions {
		if s.State.Terminal() {
			if now.Sub(s.LastActivityAt) > sw.cfg.Retention {
				if err := sw.store.Delete(ctx, s.ID); err != nil {
					utils.Error.Printf("reclaim %s: %v", s.ID, err)
				}
			}
			continue
		}
		if reason := sw.staleReason(s, now); reason != "" {
			_, err := sw.machine.Abandon(ctx, s.ID, reason)
			if err != nil && !errors.Is(err, session.ErrConflict) && !errors.Is(err, session.ErrNotFound) {
				utils.Error.Printf("abandon %s: %v", s.ID, err)
			}
		}
	}
	sw.tracker.PruneIdle(time.Duration(sw.cfg.Grace) * sw.tracker.Window())
	return nil
}

// staleReason decides whether a non-terminal session should be abandoned.
func (sw *Sweeper) staleReason(s *session.Session, now time.Time) string {
	if now.After(s.ExpiresAt) {
		return "expired with no activity"
	}
	if s.State == session.StateReadyCheck && !s.BothReady() &&
		sw.cfg.ReadyWindow > 0 && now.Sub(s.LastActivityAt) > sw.cfg.ReadyWindow {
		return "ready check window elapsed"
	}
	grace := time.Duration(sw.cfg.Grace) * sw.tracker.Window()
	for _, p := range s.Participants {
		last, ok := sw.tracker.LastSeen(p.ID)
		if !ok {
			continue // no heartbeat yet; ExpiresAt covers never-arriving peers
		}
		if now.Sub(last) > grace {
			return "participant " + p.ID + " silent past liveness grace"
		}
	}
	return ""
}
