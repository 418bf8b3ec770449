package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySessions(t *testing.T) {
	testSessionStore(t, NewMemorySessions())
}

func TestMemorySessionsExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemorySessions()
	m.Now = func() time.Time { return now }

	require.NoError(t, m.Put(ctx, Session{ID: "s", User: User{ID: "u"}, ExpiresAt: now.Add(time.Hour)}))
	_, err := m.Get(ctx, "s")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = m.Get(ctx, "s")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestMemorySessionsSweepOnPut(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemorySessions()
	m.Now = func() time.Time { return now }

	require.NoError(t, m.Put(ctx, Session{ID: "stale", User: User{ID: "u1"}, ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, m.Put(ctx, Session{ID: "open", User: User{ID: "u2"}}))

	// The stale browser never returns; the next sign-in clears it.
	now = now.Add(2 * time.Hour)
	require.NoError(t, m.Put(ctx, Session{ID: "fresh", User: User{ID: "u3"}, ExpiresAt: now.Add(time.Hour)}))

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.NotContains(t, m.sessions, "stale")
	assert.Contains(t, m.sessions, "open")
	assert.Contains(t, m.sessions, "fresh")
}

func testSessionStore(t *testing.T, store SessionStore) {
	ctx := context.Background()
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	a := Session{ID: uuid.NewString(), User: User{ID: "u1", Email: "a@example.com"}, BrowserID: "b1", AuthTime: time.Now().UTC().Truncate(time.Second), ExpiresAt: expires}
	b := Session{ID: uuid.NewString(), User: User{ID: "u1", Email: "a@example.com"}, BrowserID: "b2", ExpiresAt: expires}
	c := Session{ID: uuid.NewString(), User: User{ID: "u2", Email: "c@example.com"}, BrowserID: "b3", ExpiresAt: expires}
	for _, s := range []Session{a, b, c} {
		require.NoError(t, store.Put(ctx, s))
	}

	got, err := store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.User.Email, got.User.Email)
	assert.Equal(t, a.BrowserID, got.BrowserID)
	assert.True(t, a.AuthTime.Equal(got.AuthTime))

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNoSession)

	removed, err := store.DeleteUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, removed, 2)
	_, err = store.Get(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, store.Delete(ctx, c.ID))
	_, err = store.Get(ctx, c.ID)
	assert.ErrorIs(t, err, ErrNoSession)
	assert.NoError(t, store.Delete(ctx, c.ID))
}
