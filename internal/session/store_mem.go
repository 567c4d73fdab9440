package session

import (
	"context"
	"sync"
	"time"
)

type memStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	subs     map[string]map[int]func(*Session)
	nextSub  int
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore returns an in-process Store for tests and single-node dev.
func NewMemoryStore(ttl time.Duration, now func() time.Time) Store {
	if now == nil {
		now = time.Now
	}
	return &memStore{
		sessions: make(map[string]*Session),
		subs:     make(map[string]map[int]func(*Session)),
		ttl:      ttl,
		now:      now,
	}
}

func (m *memStore) Create(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Version = 1
	s.Touch(m.now(), m.ttl)
	m.sessions[s.ID] = s.clone()
	return nil
}

func (m *memStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.clone(), nil
}

func (m *memStore) ListByState(ctx context.Context, state State) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Session
	for _, s := range m.sessions {
		if s.State == state {
			out = append(out, s.clone())
		}
	}
	return out, nil
}

func (m *memStore) ListAll(ctx context.Context) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.clone())
	}
	return out, nil
}

func (m *memStore) ConditionalUpdate(ctx context.Context, id string, expect State, mutate func(*Session) error) (*Session, error) {
	m.mu.Lock()
	cur, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	if cur.State != expect {
		m.mu.Unlock()
		return nil, ErrConflict
	}
	next := cur.clone()
	if err := mutate(next); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	next.Version = cur.Version + 1
	next.Touch(m.now(), m.ttl)
	m.sessions[id] = next

	var fns []func(*Session)
	for _, fn := range m.subs[id] {
		fns = append(fns, fn)
	}
	snapshot := next.clone()
	m.mu.Unlock()

	// Notify outside the lock; subscribers may call back into the store.
	for _, fn := range fns {
		fn(snapshot.clone())
	}
	return snapshot, nil
}

func (m *memStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.subs, id)
	return nil
}

func (m *memStore) Subscribe(ctx context.Context, id string, fn func(*Session)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		m.subs[id] = make(map[int]func(*Session))
	}
	key := m.nextSub
	m.nextSub++
	m.subs[id][key] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs[id], key)
	}, nil
}
