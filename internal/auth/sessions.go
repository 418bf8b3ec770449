package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Session is a signed-in browser.
type Session struct {
	ID        string    `json:"id"`
	User      User      `json:"user"`
	BrowserID string    `json:"browserId"`
	AuthTime  time.Time `json:"authTime"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionStore persists sessions. Get returns ErrNoSession for unknown or
// expired ids.
type SessionStore interface {
	Put(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
	// DeleteUser removes every session of uid and returns them.
	DeleteUser(ctx context.Context, uid string) ([]Session, error)
	Close() error
}

// MemorySessions is a process-local SessionStore.
type MemorySessions struct {
	Now func() time.Time

	mu       sync.Mutex
	sessions map[string]Session
}

// NewMemorySessions creates an empty session store.
func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[string]Session)}
}

func (m *MemorySessions) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func expired(s Session, now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Put stores s and drops every expired session, so browsers that never
// come back do not accumulate.
func (m *MemorySessions) Put(ctx context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, old := range m.sessions {
		if expired(old, now) {
			delete(m.sessions, id)
		}
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *MemorySessions) Get(ctx context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNoSession
	}
	if expired(s, m.now()) {
		delete(m.sessions, id)
		return Session{}, ErrNoSession
	}
	return s, nil
}

func (m *MemorySessions) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemorySessions) DeleteUser(ctx context.Context, uid string) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed []Session
	for id, s := range m.sessions {
		if s.User.ID == uid {
			removed = append(removed, s)
			delete(m.sessions, id)
		}
	}
	return removed, nil
}

func (m *MemorySessions) Close() error { return nil }

// RedisSessions stores sessions in Redis as JSON values with a TTL, plus a
// per-user set of session ids.
type RedisSessions struct {
	client *redis.Client
	prefix string
}

// NewRedisSessions connects to addr and verifies the connection.
func NewRedisSessions(ctx context.Context, addr, password string, db int) (*RedisSessions, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisSessions{client: client, prefix: "smoke:"}, nil
}

func (r *RedisSessions) sessionKey(id string) string { return r.prefix + "session:" + id }
func (r *RedisSessions) userKey(uid string) string { return r.prefix + "user-sessions:" + uid }

func (r *RedisSessions) Put(ctx context.Context, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	var ttl time.Duration
	if !s.ExpiresAt.IsZero() {
		ttl = time.Until(s.ExpiresAt)
		if ttl <= 0 {
			return nil
		}
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.sessionKey(s.ID), data, ttl)
	pipe.SAdd(ctx, r.userKey(s.User.ID), s.ID)
	if ttl > 0 {
		pipe.Expire(ctx, r.userKey(s.User.ID), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (r *RedisSessions) Get(ctx context.Context, id string) (Session, error) {
	data, err := r.client.Get(ctx, r.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("failed to get session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("failed to decode session: %w", err)
	}
	return s, nil
}

func (r *RedisSessions) Delete(ctx context.Context, id string) error {
	s, err := r.Get(ctx, id)
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.sessionKey(id))
	pipe.SRem(ctx, r.userKey(s.User.ID), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *RedisSessions) DeleteUser(ctx context.Context, uid string) ([]Session, error) {
	ids, err := r.client.SMembers(ctx, r.userKey(uid)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	var removed []Session
	keys := []string{r.userKey(uid)}
	for _, id := range ids {
		if s, err := r.Get(ctx, id); err == nil {
			removed = append(removed, s)
		}
		keys = append(keys, r.sessionKey(id))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return nil, fmt.Errorf("failed to delete sessions: %w", err)
	}
	return removed, nil
}

func (r *RedisSessions) Close() error {
	return r.client.Close()
}
