package profile

import (
	"context"
	"sync"
)

// StaticProvider serves snapshots from an in-memory map; used in tests and
// single-node dev where no player database exists.
type StaticProvider struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{snapshots: make(map[string]Snapshot)}
}

func (p *StaticProvider) Set(snap Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots[snap.ParticipantID] = snap
}

func (p *StaticProvider) Snapshot(ctx context.Context, participantID string) (Snapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if snap, ok := p.snapshots[participantID]; ok {
		return snap, nil
	}
	return Snapshot{ParticipantID: participantID, DisplayName: participantID}, nil
}
