package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yu-fu/smokesearch/internal/auth"
	"github.com/yu-fu/smokesearch/internal/bus"
	"github.com/yu-fu/smokesearch/internal/i18n"
)

// mockWatcher expects one Watch call for browser b1 and hands the
// notification function to the test.
type mockWatcher struct {
	mock.Mock

	mu      sync.Mutex
	fn      func(*auth.User)
	started chan struct{}
	stopped chan struct{}
}

func newMockWatcher() *mockWatcher {
	w := &mockWatcher{started: make(chan struct{}), stopped: make(chan struct{})}
	w.On("Watch", mock.Anything, "b1", "", mock.Anything).
		Run(func(args mock.Arguments) {
			w.mu.Lock()
			w.fn = args.Get(3).(func(*auth.User))
			w.mu.Unlock()
			close(w.started)
		}).
		Return(func() { close(w.stopped) }).
		Once()
	return w
}

func (w *mockWatcher) Watch(ctx context.Context, browserID, sessionID string, fn func(*auth.User)) func() {
	args := w.Called(ctx, browserID, sessionID, fn)
	return args.Get(0).(func())
}

func (w *mockWatcher) emit(u *auth.User) {
	w.mu.Lock()
	fn := w.fn
	w.mu.Unlock()
	fn(u)
}

func TestContextStartsLoading(t *testing.T) {
	w := newMockWatcher()
	c := NewManager(w).Open(context.Background(), "b1", "")
	defer c.Close()

	assert.Equal(t, Loading, c.Snapshot().State)
	assert.False(t, c.Snapshot().SignedIn())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestContextFollowsNotifications(t *testing.T) {
	w := newMockWatcher()
	c := NewManager(w).Open(context.Background(), "b1", "")
	<-w.started
	w.AssertExpectations(t)

	var seen []Snapshot
	unsubscribe := c.Subscribe(func(s Snapshot) { seen = append(seen, s) })

	w.emit(nil)
	snap, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Anonymous, snap.State)

	w.emit(&auth.User{ID: "u1", Email: "a@example.com"})
	assert.Equal(t, "u1", c.Snapshot().UserID())

	unsubscribe()
	w.emit(nil)

	require.Len(t, seen, 3)
	assert.Equal(t, Loading, seen[0].State)
	assert.Equal(t, Anonymous, seen[1].State)
	assert.Equal(t, Authenticated, seen[2].State)
	assert.Equal(t, "a@example.com", seen[2].User.Email)

	c.Close()
	select {
	case <-w.stopped:
	case <-time.After(time.Second):
		t.Fatal("watch not stopped on close")
	}
}

func TestSubscribeGetsCurrentSnapshot(t *testing.T) {
	w := newMockWatcher()
	c := NewManager(w).Open(context.Background(), "b1", "")
	defer c.Close()
	<-w.started
	w.emit(&auth.User{ID: "u1"})

	var first Snapshot
	c.Subscribe(func(s Snapshot) { first = s })
	assert.Equal(t, Authenticated, first.State)
	assert.Equal(t, "u1", first.UserID())
}

func TestContextWithAuthClient(t *testing.T) {
	ctx := context.Background()
	sessions := auth.NewMemorySessions()
	provider := auth.NewLocalProvider("", "", nil)
	provider.Cost = 4
	client := auth.NewClient(provider, sessions, bus.New(), i18n.MustLoad(), auth.Config{})

	c := NewManager(client).Open(ctx, "browser-1", "")
	defer c.Close()

	snap, err := c.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, Anonymous, snap.State)

	changed := make(chan Snapshot, 4)
	c.Subscribe(func(s Snapshot) { changed <- s })
	<-changed

	_, err = client.SignUp(ctx, "browser-1", "alice@example.com", "secret1")
	require.NoError(t, err)
	select {
	case s := <-changed:
		assert.True(t, s.SignedIn())
		assert.Equal(t, "alice@example.com", s.User.Email)
	case <-time.After(time.Second):
		t.Fatal("session did not follow sign-up")
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "loading", Loading.String())
	assert.Equal(t, "authenticated", Authenticated.String())
	assert.Equal(t, "anonymous", Anonymous.String())
}
