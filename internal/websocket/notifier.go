package websocket

import (
	"context"
	"sync"

	"dicematch/internal/session"
	"dicematch/internal/utils"
)

// Notifier bridges the store's change feed to connected participants: one
// subscription per watched session, relayed as session_update events. The
// core logic never depends on these pushes; they exist for UI listeners.
type Notifier struct {
	store session.Store
	hub   HubInterface

	mu      sync.Mutex
	cancels map[string]func()
}

func NewNotifier(store session.Store, hub HubInterface) *Notifier {
	return &Notifier{store: store, hub: hub, cancels: make(map[string]func())}
}

// Watch starts relaying updates for s to its participants. Idempotent per
// session id; the subscription ends itself once the session goes terminal.
func (n *Notifier) Watch(s *session.Session) {
	n.mu.Lock()
	if _, ok := n.cancels[s.ID]; ok {
		n.mu.Unlock()
		return
	}
	// reserve the slot before subscribing so a concurrent Watch backs off
	n.cancels[s.ID] = func() {}
	n.mu.Unlock()

	id := s.ID
	cancel, err := n.store.Subscribe(context.Background(), id, func(updated *session.Session) {
		ids := make([]string, 0, len(updated.Participants))
		for _, p := range updated.Participants {
			ids = append(ids, p.ID)
		}
		n.hub.BroadcastToParticipants(ids, OutgoingMessage{
			Event: "session_update",
			Data:  updated,
		})
		if updated.State.Terminal() {
			n.Unwatch(id)
		}
	})
	if err != nil {
		utils.Error.Printf("subscribe %s: %v", id, err)
		n.Unwatch(id)
		return
	}

	n.mu.Lock()
	n.cancels[id] = cancel
	n.mu.Unlock()

	// Push the snapshot we already have so late subscribers catch up.
	ids := make([]string, 0, len(s.Participants))
	for _, p := range s.Participants {
		ids = append(ids, p.ID)
	}
	n.hub.BroadcastToParticipants(ids, OutgoingMessage{Event: "session_update", Data: s})
}

func (n *Notifier) Unwatch(sessionID string) {
	n.mu.Lock()
	cancel, ok := n.cancels[sessionID]
	delete(n.cancels, sessionID)
	n.mu.Unlock()
	if ok {
		cancel()
	}
}

func (n *Notifier) Close() {
	n.mu.Lock()
	cancels := n.cancels
	n.cancels = make(map[string]func())
	n.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}
