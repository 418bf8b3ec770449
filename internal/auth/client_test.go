package auth

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yu-fu/smokesearch/internal/bus"
	"github.com/yu-fu/smokesearch/internal/i18n"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestClient(t *testing.T) (*Client, *bus.Bus, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	p, _ := newTestProvider(t, "")
	sessions := NewMemorySessions()
	sessions.Now = clock.Now
	b := bus.New()
	c := NewClient(p, sessions, b, i18n.MustLoad(), Config{RecentLogin: 5 * time.Minute})
	c.Now = clock.Now
	return c, b, clock
}

func TestClientSignUpSignInSignOut(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestClient(t)

	s, err := c.SignUp(ctx, "browser-1", "alice@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "browser-1", s.BrowserID)

	u, err := c.Current(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "alice@example.com", u.Email)

	require.NoError(t, c.SignOut(ctx, s.ID))
	u, err = c.Current(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, u)

	// signing out twice is harmless
	assert.NoError(t, c.SignOut(ctx, s.ID))

	s2, err := c.SignIn(ctx, "browser-1", "alice@example.com", "secret1")
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, s2.ID)
}

func TestClientErrorsAreLocalized(t *testing.T) {
	c, _, _ := newTestClient(t)
	ja := i18n.WithLocale(context.Background(), i18n.Japanese)
	en := i18n.WithLocale(context.Background(), i18n.English)

	_, err := c.SignUp(ja, "b", "alice@example.com", "123")
	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, CodeWeakPassword, ae.Code)
	assert.Equal(t, "パスワードが弱すぎます（6文字以上必要）", ae.Message)

	_, err = c.SignIn(en, "b", "nobody@example.com", "secret1")
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "User not found", ae.Message)
}

func TestClientDeleteAccountRequiresRecentLogin(t *testing.T) {
	ctx := context.Background()
	c, _, clock := newTestClient(t)

	s, err := c.SignUp(ctx, "browser-1", "alice@example.com", "secret1")
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	err = c.DeleteAccount(ctx, s.ID)
	require.Error(t, err)
	assert.True(t, IsRequiresRecentLogin(err))
	assert.Equal(t, "セキュリティのため、再ログインが必要です", err.Error())

	// the account still exists
	s2, err := c.SignIn(ctx, "browser-1", "alice@example.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, c.DeleteAccount(ctx, s2.ID))
	_, err = c.SignIn(ctx, "browser-1", "alice@example.com", "secret1")
	assert.Equal(t, CodeUserNotFound, CodeOf(err))

	// every session of the deleted user is gone
	u, err := c.Current(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestClientDeleteAccountWithoutSession(t *testing.T) {
	c, _, _ := newTestClient(t)
	assert.ErrorIs(t, c.DeleteAccount(context.Background(), ""), ErrNoSession)
	assert.ErrorIs(t, c.DeleteAccount(context.Background(), "stale"), ErrNoSession)
}

func TestClientWatch(t *testing.T) {
	ctx := context.Background()
	c, b, _ := newTestClient(t)

	got := make(chan *User, 4)
	stop := c.Watch(ctx, "browser-1", "", func(u *User) { got <- u })
	defer stop()

	// first notification is the identity at subscription time
	assert.Nil(t, <-got)

	// failed sign-ins announce nothing
	_, err := c.SignIn(ctx, "browser-1", "nobody@example.com", "secret1")
	require.Error(t, err)

	s, err := c.SignUp(ctx, "browser-1", "alice@example.com", "secret1")
	require.NoError(t, err)
	select {
	case u := <-got:
		require.NotNil(t, u)
		assert.Equal(t, "alice@example.com", u.Email)
	case <-time.After(time.Second):
		t.Fatal("no sign-in notification")
	}

	// other browsers do not notify this watcher
	_, err = c.SignIn(ctx, "browser-2", "alice@example.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, c.SignOut(ctx, s.ID))
	select {
	case u := <-got:
		assert.Nil(t, u)
	case <-time.After(time.Second):
		t.Fatal("no sign-out notification")
	}

	stop()
	assert.Equal(t, 0, b.Subscribers("browser-1"))
}

func TestClientWatchStartsAuthenticated(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestClient(t)
	s, err := c.SignUp(ctx, "browser-1", "alice@example.com", "secret1")
	require.NoError(t, err)

	got := make(chan *User, 1)
	stop := c.Watch(ctx, "browser-1", s.ID, func(u *User) { got <- u })
	defer stop()

	u := <-got
	require.NotNil(t, u)
	assert.Equal(t, s.User.ID, u.ID)
}

func TestHeaderVerifier(t *testing.T) {
	r := httptest.NewRequest("POST", "/ui/auth/federated", nil)
	r.Header.Set("X-Forwarded-Email", "a@example.com")
	r.Header.Set("X-Forwarded-User", "sub-1")

	_, err := HeaderVerifier{}.Verify(r)
	assert.Equal(t, CodeOperationNotAllowed, CodeOf(err))

	v := HeaderVerifier{EmailHeader: "X-Forwarded-Email", SubjectHeader: "X-Forwarded-User"}
	id, err := v.Verify(r)
	require.NoError(t, err)
	assert.Equal(t, "sub-1", id.Subject)
	assert.Equal(t, "a@example.com", id.Email)

	_, err = v.Verify(httptest.NewRequest("POST", "/ui/auth/federated", nil))
	assert.Equal(t, CodeOperationNotAllowed, CodeOf(err))
}
