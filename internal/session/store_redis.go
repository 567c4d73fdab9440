package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// key layout:
//
//	hash dm:session:{id}          -> fields: data (JSON), version, state
//	set  dm:sessions:{state}      -> ids currently in that state
//	pub  dm:session:events:{id}   -> full record JSON on every accepted write
func sessionKey(id string) string {
	return "dm:session:" + id
}
func stateKey(state State) string {
	return "dm:sessions:" + string(state)
}
func eventChannel(id string) string {
	return "dm:session:events:" + id
}

var allStates = []State{
	StateSearching, StateReadyCheck, StateActive,
	StateCompleted, StateAbandoned, StateCancelled,
}

// casScript commits the new record only if nobody else wrote since our read,
// and moves the id between state index sets in the same atomic step.
// KEYS[1]=session hash, KEYS[2]=old state set, KEYS[3]=new state set
// ARGV[1]=expected version, ARGV[2]=new JSON, ARGV[3]=new version,
// ARGV[4]=new state, ARGV[5]=id
var casScript = redis.NewScript(`
local v = redis.call("HGET", KEYS[1], "version")
if not v or v ~= ARGV[1] then
    return 0
end
redis.call("HSET", KEYS[1], "data", ARGV[2], "version", ARGV[3], "state", ARGV[4])
if KEYS[2] ~= KEYS[3] then
    redis.call("SMOVE", KEYS[2], KEYS[3], ARGV[5])
end
return 1
`)

type redisStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisStore returns the production Store backed by a redis client.
func NewRedisStore(rdb *redis.Client, ttl time.Duration, now func() time.Time) Store {
	if now == nil {
		now = time.Now
	}
	return &redisStore{rdb: rdb, ttl: ttl, now: now}
}

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (r *redisStore) Create(ctx context.Context, s *Session) error {
	s.Version = 1
	s.Touch(r.now(), r.ttl)
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	p := r.rdb.TxPipeline()
	p.HSet(ctx, sessionKey(s.ID),
		"data", data,
		"version", s.Version,
		"state", string(s.State),
	)
	p.SAdd(ctx, stateKey(s.State), s.ID)
	if _, err := p.Exec(ctx); err != nil {
		return storeErr(err)
	}
	return nil
}

func (r *redisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.rdb.HGet(ctx, sessionKey(id), "data").Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	var s Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("session: corrupt record %s: %w", id, err)
	}
	return &s, nil
}

func (r *redisStore) ListByState(ctx context.Context, state State) ([]*Session, error) {
	ids, err := r.rdb.SMembers(ctx, stateKey(state)).Result()
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		s, err := r.Get(ctx, id)
		if err == ErrNotFound {
			// Index member outlived the record; self-heal the set.
			_ = r.rdb.SRem(ctx, stateKey(state), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *redisStore) ListAll(ctx context.Context) ([]*Session, error) {
	var out []*Session
	for _, st := range allStates {
		batch, err := r.ListByState(ctx, st)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (r *redisStore) ConditionalUpdate(ctx context.Context, id string, expect State, mutate func(*Session) error) (*Session, error) {
	cur, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.State != expect {
		return nil, ErrConflict
	}
	oldVersion, oldState := cur.Version, cur.State

	next := cur.clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.Version = oldVersion + 1
	next.Touch(r.now(), r.ttl)

	data, err := json.Marshal(next)
	if err != nil {
		return nil, err
	}
	ok, err := casScript.Run(ctx, r.rdb,
		[]string{sessionKey(id), stateKey(oldState), stateKey(next.State)},
		oldVersion, data, next.Version, string(next.State), id,
	).Int()
	if err != nil {
		return nil, storeErr(err)
	}
	if ok != 1 {
		return nil, ErrConflict
	}
	_ = r.rdb.Publish(ctx, eventChannel(id), data).Err()
	return next, nil
}

func (r *redisStore) Delete(ctx context.Context, id string) error {
	state, err := r.rdb.HGet(ctx, sessionKey(id), "state").Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return storeErr(err)
	}
	p := r.rdb.TxPipeline()
	p.SRem(ctx, stateKey(State(state)), id)
	p.Del(ctx, sessionKey(id))
	if _, err := p.Exec(ctx); err != nil {
		return storeErr(err)
	}
	return nil
}

func (r *redisStore) Subscribe(ctx context.Context, id string, fn func(*Session)) (func(), error) {
	pubsub := r.rdb.Subscribe(ctx, eventChannel(id))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, storeErr(err)
	}
	go func() {
		for msg := range pubsub.Channel() {
			var s Session
			if err := json.Unmarshal([]byte(msg.Payload), &s); err != nil {
				continue
			}
			fn(&s)
		}
	}()
	return func() { _ = pubsub.Close() }, nil
}
