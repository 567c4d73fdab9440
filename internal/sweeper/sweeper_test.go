package sweeper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicematch/internal/liveness"
	"dicematch/internal/pairing"
	"dicematch/internal/profile"
	"dicematch/internal/session"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

const (
	window    = 30 * time.Second
	ttl       = 5 * time.Minute
	retention = 10 * time.Minute
)

type fixture struct {
	clk     *fakeClock
	store   session.Store
	tracker *liveness.Tracker
	machine *session.Machine
	engine  *pairing.Engine
	sweeper *Sweeper
}

func newFixture() *fixture {
	clk := newFakeClock()
	store := session.NewMemoryStore(ttl, clk.Now)
	tracker := liveness.NewTracker(window, clk.Now)
	machine := session.NewMachine(store, tracker, clk.Now)
	engine := pairing.NewEngine(store, machine, tracker, profile.NewStaticProvider(),
		pairing.WideningPolicy{Base: 1}, clk.Now)
	sw := New(store, machine, tracker, Config{
		Period:      15 * time.Second,
		ReadyWindow: 8 * time.Second,
		Grace:       2,
		Retention:   retention,
	}, clk.Now)
	return &fixture{clk: clk, store: store, tracker: tracker, machine: machine, engine: engine, sweeper: sw}
}

func (f *fixture) open(t *testing.T, pid string) string {
	t.Helper()
	res, err := f.engine.RequestMatch(context.Background(), pairing.JoinRequest{
		ParticipantID: pid, Mode: "classic", Kind: session.KindOpen,
	})
	require.NoError(t, err)
	return res.SessionID
}

// a searching session whose host stops heartbeating is reclaimed within the
// liveness grace
func TestSweepAbandonsSilentHost(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	sid := f.open(t, "alice")

	// still live: nothing happens
	require.NoError(t, f.sweeper.SweepOnce(ctx))
	s, err := f.store.Get(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, session.StateSearching, s.State)

	// silence past grace (2 x window)
	f.clk.Advance(2*window + time.Second)
	require.NoError(t, f.sweeper.SweepOnce(ctx))

	s, err = f.store.Get(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, session.StateAbandoned, s.State)
}

func TestSweepAbandonsExpiredSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	sid := f.open(t, "alice")

	// keep heartbeating but do nothing else until the session TTL passes
	for i := 0; i < 11; i++ {
		f.clk.Advance(window - time.Second)
		f.tracker.Heartbeat("alice", sid)
	}
	require.NoError(t, f.sweeper.SweepOnce(ctx))

	s, err := f.store.Get(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, session.StateAbandoned, s.State)
}

// A is ready, B never readies and goes silent; after the ready window plus
// one sweep the session is abandoned and A can re-queue
func TestReadyCheckTimeoutReleasesWaiter(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	sid := f.open(t, "alice")
	got := f.open(t, "bob")
	require.Equal(t, sid, got)

	_, err := f.engine.Ready(ctx, sid, "alice")
	require.NoError(t, err)

	// bob never calls ready and stops heartbeating
	f.clk.Advance(9 * time.Second)
	f.tracker.Heartbeat("alice", sid)
	require.NoError(t, f.sweeper.SweepOnce(ctx))

	s, err := f.store.Get(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, session.StateAbandoned, s.State)

	// alice lands in a fresh session on her next request
	next := f.open(t, "alice")
	assert.NotEqual(t, sid, next)
}

func TestSweepRacesAreBenign(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	sid := f.open(t, "alice")

	f.clk.Advance(2*window + time.Second)

	// two overlapping sweep cycles; the second abandon is a no-op
	require.NoError(t, f.sweeper.SweepOnce(ctx))
	require.NoError(t, f.sweeper.SweepOnce(ctx))

	s, err := f.store.Get(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, session.StateAbandoned, s.State)
}

func TestSweepReclaimsTerminalSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	sid := f.open(t, "alice")

	_, err := f.engine.Leave(ctx, sid, "alice")
	require.NoError(t, err)

	// terminal but inside retention: kept for audit
	f.clk.Advance(retention - time.Minute)
	require.NoError(t, f.sweeper.SweepOnce(ctx))
	_, err = f.store.Get(ctx, sid)
	require.NoError(t, err)

	// past retention: deleted
	f.clk.Advance(2 * time.Minute)
	require.NoError(t, f.sweeper.SweepOnce(ctx))
	_, err = f.store.Get(ctx, sid)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestSweepActiveSessionWithDeadParticipant(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	sid := f.open(t, "alice")
	f.open(t, "bob")

	_, err := f.engine.Ready(ctx, sid, "alice")
	require.NoError(t, err)
	s, err := f.engine.Ready(ctx, sid, "bob")
	require.NoError(t, err)
	require.Equal(t, session.StateActive, s.State)

	// bob disconnects mid-game; alice keeps playing
	for i := 0; i < 3; i++ {
		f.clk.Advance(window)
		f.tracker.Heartbeat("alice", sid)
	}
	require.NoError(t, f.sweeper.SweepOnce(ctx))

	s, err = f.store.Get(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, session.StateAbandoned, s.State)
}

func TestSweepPrunesIdlePresence(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	f.tracker.Heartbeat("drifter", "")
	f.clk.Advance(3 * window)
	require.NoError(t, f.sweeper.SweepOnce(ctx))

	_, ok := f.tracker.LastSeen("drifter")
	assert.False(t, ok)
}
