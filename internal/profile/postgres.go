package profile

import (
	"context"
	"database/sql"
)

const defaultBucketWidth = 10

// PGProvider reads player records from postgres. An unknown participant gets
// a zeroed snapshot rather than an error so first-time players can queue.
type PGProvider struct {
	db          *sql.DB
	bucketWidth int
}

func NewPGProvider(db *sql.DB) *PGProvider {
	return &PGProvider{db: db, bucketWidth: defaultBucketWidth}
}

func (p *PGProvider) Snapshot(ctx context.Context, participantID string) (Snapshot, error) {
	snap := Snapshot{ParticipantID: participantID, DisplayName: participantID}
	row := p.db.QueryRowContext(ctx,
		`SELECT display_name, wins, losses FROM players WHERE id = $1`,
		participantID,
	)
	err := row.Scan(&snap.DisplayName, &snap.Wins, &snap.Losses)
	if err == sql.ErrNoRows {
		return snap, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	snap.SkillBucket = Bucket(snap.Wins, snap.Losses, p.bucketWidth)
	return snap, nil
}
