// Package profile supplies the participant display snapshot and skill bucket
// consumed at join time. The core never calls back into it mid-session.
package profile

import "context"

// Snapshot is the display data captured when a participant joins a session.
type Snapshot struct {
	ParticipantID string
	DisplayName   string
	Wins          int
	Losses        int
	SkillBucket   int
}

type Provider interface {
	Snapshot(ctx context.Context, participantID string) (Snapshot, error)
}

// Bucket derives the coarse skill classification from a win/loss record:
// win-rate percentage divided into bands of width bucketWidth. Players with
// no games land in bucket 0.
func Bucket(wins, losses, bucketWidth int) int {
	total := wins + losses
	if total == 0 || bucketWidth <= 0 {
		return 0
	}
	return (wins * 100 / total) / bucketWidth
}
