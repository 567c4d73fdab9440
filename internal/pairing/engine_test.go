package pairing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicematch/internal/liveness"
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

type fixture struct {
	clk      *fakeClock
	store    session.Store
	tracker  *liveness.Tracker
	machine  *session.Machine
	profiles *profile.StaticProvider
	engine   *Engine
}

func newFixture(policy TolerancePolicy) *fixture {
	clk := newFakeClock()
	store := session.NewMemoryStore(5*time.Minute, clk.Now)
	tracker := liveness.NewTracker(30*time.Second, clk.Now)
	machine := session.NewMachine(store, tracker, clk.Now)
	profiles := profile.NewStaticProvider()
	if policy == nil {
		policy = WideningPolicy{Base: 1, Step: 1, Interval: 10 * time.Second}
	}
	return &fixture{
		clk:      clk,
		store:    store,
		tracker:  tracker,
		machine:  machine,
		profiles: profiles,
		engine:   NewEngine(store, machine, tracker, profiles, policy, clk.Now),
	}
}

func openReq(pid string) JoinRequest {
	return JoinRequest{ParticipantID: pid, Mode: "classic", Kind: session.KindOpen}
}

// full happy path: create, attach, ready check, activation, completion
func TestOpenMatchLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)

	// no compatible session: A becomes host of a fresh searching session
	resA, err := f.engine.RequestMatch(ctx, openReq("alice"))
	require.NoError(t, err)
	assert.Equal(t, RoleHost, resA.Role)

	s, err := f.store.Get(ctx, resA.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StateSearching, s.State)
	assert.Len(t, s.Participants, 1)

	// B is compatible: fills the second slot, session moves to ready_check
	resB, err := f.engine.RequestMatch(ctx, openReq("bob"))
	require.NoError(t, err)
	assert.Equal(t, resA.SessionID, resB.SessionID)
	assert.Equal(t, RoleGuest, resB.Role)

	s, err = f.store.Get(ctx, resA.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StateReadyCheck, s.State)

	// both mark ready; the second call drives activation
	s, err = f.engine.Ready(ctx, resA.SessionID, "alice")
	require.NoError(t, err)
	assert.Equal(t, session.StateReadyCheck, s.State)

	s, err = f.engine.Ready(ctx, resA.SessionID, "bob")
	require.NoError(t, err)
	assert.Equal(t, session.StateActive, s.State)

	// rules engine reports alice wins
	s, err = f.machine.Complete(ctx, resA.SessionID, session.Result{WinnerID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, session.StateCompleted, s.State)
	assert.Equal(t, "alice", s.Result.WinnerID)
}

func TestIdempotentRejoin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)

	first, err := f.engine.RequestMatch(ctx, openReq("alice"))
	require.NoError(t, err)

	// same request again: same session, no duplicate slot, no new session
	second, err := f.engine.RequestMatch(ctx, openReq("alice"))
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, RoleHost, second.Role)

	searching, err := f.store.ListByState(ctx, session.StateSearching)
	require.NoError(t, err)
	assert.Len(t, searching, 1)
	assert.Len(t, searching[0].Participants, 1)

	// a guest rejoining after reconnect also gets their existing session
	resB, err := f.engine.RequestMatch(ctx, openReq("bob"))
	require.NoError(t, err)
	again, err := f.engine.RequestMatch(ctx, openReq("bob"))
	require.NoError(t, err)
	assert.Equal(t, resB.SessionID, again.SessionID)
	assert.Equal(t, RoleGuest, again.Role)
}

func TestConcurrentSecondSlotRace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)

	host, err := f.engine.RequestMatch(ctx, openReq("host"))
	require.NoError(t, err)

	// two requesters race for the single open slot
	results := make(chan *MatchResult, 2)
	var wg sync.WaitGroup
	for _, pid := range []string{"racer1", "racer2"} {
		wg.Add(1)
		go func(pid string) {
			defer wg.Done()
			res, err := f.engine.RequestMatch(ctx, openReq(pid))
			assert.NoError(t, err)
			results <- res
		}(pid)
	}
	wg.Wait()
	close(results)

	guests, hosts := 0, 0
	for res := range results {
		switch res.Role {
		case RoleGuest:
			guests++
			assert.Equal(t, host.SessionID, res.SessionID)
		case RoleHost:
			hosts++
			assert.NotEqual(t, host.SessionID, res.SessionID, "the loser must open a fresh session")
		}
	}
	assert.Equal(t, 1, guests, "exactly one racer may take the slot")
	assert.Equal(t, 1, hosts)

	s, err := f.store.Get(ctx, host.SessionID)
	require.NoError(t, err)
	assert.Len(t, s.Participants, 2)
}

func TestPairingInProgressGuard(t *testing.T) {
	f := newFixture(nil)

	require.NoError(t, f.engine.begin("alice"))
	_, err := f.engine.RequestMatch(context.Background(), openReq("alice"))
	assert.ErrorIs(t, err, ErrPairingInProgress)

	f.engine.end("alice")
	_, err = f.engine.RequestMatch(context.Background(), openReq("alice"))
	assert.NoError(t, err)
}

func TestSkillToleranceWidens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(WideningPolicy{Base: 1, Step: 2, Interval: 10 * time.Second})

	f.profiles.Set(profile.Snapshot{ParticipantID: "pro", DisplayName: "Pro", Wins: 9, Losses: 1, SkillBucket: 9})
	f.profiles.Set(profile.Snapshot{ParticipantID: "novice", DisplayName: "Novice", SkillBucket: 0})

	proRes, err := f.engine.RequestMatch(ctx, openReq("pro"))
	require.NoError(t, err)

	// bucket distance 9 > base tolerance 1: the novice opens their own session
	novRes, err := f.engine.RequestMatch(ctx, openReq("novice"))
	require.NoError(t, err)
	assert.Equal(t, RoleHost, novRes.Role)
	assert.NotEqual(t, proRes.SessionID, novRes.SessionID)

	// the novice gives up and keeps searching; waiting widens the window
	_, err = f.engine.Leave(ctx, novRes.SessionID, "novice")
	require.NoError(t, err)
	f.clk.Advance(50 * time.Second) // tolerance = 1 + 2*5 = 11 >= 9

	novRes, err = f.engine.RequestMatch(ctx, openReq("novice"))
	require.NoError(t, err)
	assert.Equal(t, RoleGuest, novRes.Role)
	assert.Equal(t, proRes.SessionID, novRes.SessionID)
}

func TestDirectInviteFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)

	inv := JoinRequest{ParticipantID: "alice", Mode: "classic", Kind: session.KindDirect, Targets: []string{"bob"}}
	resA, err := f.engine.RequestMatch(ctx, inv)
	require.NoError(t, err)
	assert.Equal(t, RoleHost, resA.Role)

	// an open requester never discovers the invite
	resC, err := f.engine.RequestMatch(ctx, openReq("carol"))
	require.NoError(t, err)
	assert.NotEqual(t, resA.SessionID, resC.SessionID)

	// bob joins by id match
	join := JoinRequest{ParticipantID: "bob", Mode: "classic", Kind: session.KindDirect, Targets: []string{"alice"}}
	resB, err := f.engine.RequestMatch(ctx, join)
	require.NoError(t, err)
	assert.Equal(t, resA.SessionID, resB.SessionID)
	assert.Equal(t, RoleGuest, resB.Role)

	s, err := f.store.Get(ctx, resA.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StateReadyCheck, s.State)
}

func TestRematchBindsBothIDs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)

	req := JoinRequest{ParticipantID: "alice", Mode: "classic", Kind: session.KindRematch, Targets: []string{"alice", "bob"}}
	resA, err := f.engine.RequestMatch(ctx, req)
	require.NoError(t, err)

	s, err := f.store.Get(ctx, resA.SessionID)
	require.NoError(t, err)
	assert.False(t, s.Authorized("carol"))
	assert.True(t, s.Authorized("bob"))
}

func TestLeaveWhileSearchingCancels(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)

	res, err := f.engine.RequestMatch(ctx, openReq("alice"))
	require.NoError(t, err)

	s, err := f.engine.Leave(ctx, res.SessionID, "alice")
	require.NoError(t, err)
	assert.Equal(t, session.StateCancelled, s.State)

	// leaving again reports the terminal state unchanged
	s, err = f.engine.Leave(ctx, res.SessionID, "alice")
	require.NoError(t, err)
	assert.Equal(t, session.StateCancelled, s.State)
}

func TestLeaveAfterPairAbandons(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)

	resA, err := f.engine.RequestMatch(ctx, openReq("alice"))
	require.NoError(t, err)
	_, err = f.engine.RequestMatch(ctx, openReq("bob"))
	require.NoError(t, err)

	s, err := f.engine.Leave(ctx, resA.SessionID, "bob")
	require.NoError(t, err)
	assert.Equal(t, session.StateAbandoned, s.State)

	// alice is free to search again and lands in a new session
	again, err := f.engine.RequestMatch(ctx, openReq("alice"))
	require.NoError(t, err)
	assert.NotEqual(t, resA.SessionID, again.SessionID)
	assert.Equal(t, RoleHost, again.Role)
}

func TestLeaveByOutsiderRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(nil)

	res, err := f.engine.RequestMatch(ctx, openReq("alice"))
	require.NoError(t, err)

	_, err = f.engine.Leave(ctx, res.SessionID, "mallory")
	assert.ErrorIs(t, err, session.ErrUnauthorized)
}
