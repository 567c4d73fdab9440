package profile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucket(t *testing.T) {
	assert.Equal(t, 0, Bucket(0, 0, 10), "no games lands in bucket 0")
	assert.Equal(t, 0, Bucket(0, 10, 10))
	assert.Equal(t, 5, Bucket(1, 1, 10)) // 50% win rate
	assert.Equal(t, 10, Bucket(10, 0, 10))
	assert.Equal(t, 0, Bucket(5, 5, 0), "degenerate width never divides by zero")
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider()
	p.Set(Snapshot{ParticipantID: "alice", DisplayName: "Alice", Wins: 3, Losses: 1, SkillBucket: 7})

	snap, err := p.Snapshot(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", snap.DisplayName)
	assert.Equal(t, 7, snap.SkillBucket)

	// unknown players get a usable zeroed snapshot
	snap, err = p.Snapshot(context.Background(), "newcomer")
	require.NoError(t, err)
	assert.Equal(t, "newcomer", snap.DisplayName)
	assert.Equal(t, 0, snap.SkillBucket)
}
