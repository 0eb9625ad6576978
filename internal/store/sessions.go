package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"diary/internal/session"
)

const sessionPrefix = "diary:session:"

// Sessions keeps session states in redis as JSON, refreshing the TTL on every write.
type Sessions struct {
	redis *Redis
	ttl   time.Duration
}

var _ session.Store = (*Sessions)(nil)

// NewSessions creates a redis session store.
func NewSessions(r *Redis, ttl time.Duration) *Sessions {
	return &Sessions{redis: r, ttl: ttl}
}

func (s *Sessions) Get(ctx context.Context, id string) (session.State, error) {
	data, err := s.redis.Client.Get(ctx, sessionPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return session.State{}, session.ErrNotFound
	}
	if err != nil {
		return session.State{}, fmt.Errorf("get session %s: %w", id, err)
	}
	var st session.State
	if err := json.Unmarshal(data, &st); err != nil {
		return session.State{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return st, nil
}

func (s *Sessions) Put(ctx context.Context, st session.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", st.ID, err)
	}
	return s.redis.Client.Set(ctx, sessionPrefix+st.ID, data, s.ttl).Err()
}

func (s *Sessions) Delete(ctx context.Context, id string) error {
	return s.redis.Client.Del(ctx, sessionPrefix+id).Err()
}

func (s *Sessions) Ping(ctx context.Context) error {
	return s.redis.Client.Ping(ctx).Err()
}
