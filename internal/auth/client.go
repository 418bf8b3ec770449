package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/yu-fu/smokesearch/internal/bus"
	"github.com/yu-fu/smokesearch/internal/i18n"
)

// Identity change actions published on the bus.
const (
	ActionSignedIn  = "signed-in"
	ActionSignedOut = "signed-out"
)

// Config holds session lifetimes.
type Config struct {
	SessionTTL  time.Duration // default 30 days
	RecentLogin time.Duration // max session age for account deletion, default 5 minutes
}

// Client is the auth client used by the UI and the REST API. Every failure
// it returns is an *Error carrying the localized message for the request
// locale, except ErrNoSession.
type Client struct {
	provider Provider
	sessions SessionStore
	bus      *bus.Bus
	catalog  *i18n.Catalog
	cfg      Config

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// NewClient creates an auth client.
func NewClient(p Provider, s SessionStore, b *bus.Bus, cat *i18n.Catalog, cfg Config) *Client {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * 24 * time.Hour
	}
	if cfg.RecentLogin <= 0 {
		cfg.RecentLogin = 5 * time.Minute
	}
	return &Client{provider: p, sessions: s, bus: b, catalog: cat, cfg: cfg}
}

func (c *Client) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Client) fail(ctx context.Context, op string, err error) error {
	out := translate(ctx, c.catalog, err)
	log.Warn().Err(err).Str("op", op).Str("code", string(CodeOf(out))).Msg("auth: operation failed")
	return out
}

// startSession stores a new session for u and announces it to browserID.
func (c *Client) startSession(ctx context.Context, browserID string, u User) (Session, error) {
	now := c.now()
	s := Session{
		ID:        uuid.NewString(),
		User:      u,
		BrowserID: browserID,
		AuthTime:  now.UTC(),
		ExpiresAt: now.Add(c.cfg.SessionTTL).UTC(),
	}
	if err := c.sessions.Put(ctx, s); err != nil {
		return Session{}, err
	}
	c.bus.Publish(bus.Event{Topic: browserID, Action: ActionSignedIn, ID: s.ID})
	return s, nil
}

// SignUp creates a password account and signs it in.
func (c *Client) SignUp(ctx context.Context, browserID, email, password string) (Session, error) {
	u, err := c.provider.CreateUser(ctx, email, password)
	if err != nil {
		return Session{}, c.fail(ctx, "sign-up", err)
	}
	s, err := c.startSession(ctx, browserID, u)
	if err != nil {
		return Session{}, c.fail(ctx, "sign-up", err)
	}
	log.Info().Str("uid", u.ID).Msg("auth: signed up")
	return s, nil
}

// SignIn signs in with email and password.
func (c *Client) SignIn(ctx context.Context, browserID, email, password string) (Session, error) {
	u, err := c.provider.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, c.fail(ctx, "sign-in", err)
	}
	s, err := c.startSession(ctx, browserID, u)
	if err != nil {
		return Session{}, c.fail(ctx, "sign-in", err)
	}
	log.Info().Str("uid", u.ID).Msg("auth: signed in")
	return s, nil
}

// SignInFederated signs in with an identity asserted by an external provider.
func (c *Client) SignInFederated(ctx context.Context, browserID string, id FederatedIdentity) (Session, error) {
	u, err := c.provider.SignInFederated(ctx, id)
	if err != nil {
		return Session{}, c.fail(ctx, "sign-in-federated", err)
	}
	s, err := c.startSession(ctx, browserID, u)
	if err != nil {
		return Session{}, c.fail(ctx, "sign-in-federated", err)
	}
	log.Info().Str("uid", u.ID).Msg("auth: signed in (federated)")
	return s, nil
}

// SignOut ends the session. Unknown sessions are ignored.
func (c *Client) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	s, err := c.sessions.Get(ctx, sessionID)
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	if err != nil {
		return c.fail(ctx, "sign-out", err)
	}
	if err := c.sessions.Delete(ctx, sessionID); err != nil {
		return c.fail(ctx, "sign-out", err)
	}
	c.bus.Publish(bus.Event{Topic: s.BrowserID, Action: ActionSignedOut})
	return nil
}

// SendPasswordReset asks the provider to mail a reset link.
func (c *Client) SendPasswordReset(ctx context.Context, email string) error {
	if err := c.provider.SendPasswordReset(ctx, email); err != nil {
		return c.fail(ctx, "send-password-reset", err)
	}
	return nil
}

// ConfirmPasswordReset sets a new password using a mailed reset code.
func (c *Client) ConfirmPasswordReset(ctx context.Context, code, newPassword string) error {
	if err := c.provider.ConfirmPasswordReset(ctx, code, newPassword); err != nil {
		return c.fail(ctx, "confirm-password-reset", err)
	}
	return nil
}

// DeleteAccount deletes the signed-in user. The session must be younger
// than the recent-login window, otherwise the error code is
// CodeRequiresRecentLogin and the caller should sign out and re-authenticate.
func (c *Client) DeleteAccount(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrNoSession
	}
	s, err := c.sessions.Get(ctx, sessionID)
	if errors.Is(err, ErrNoSession) {
		return ErrNoSession
	}
	if err != nil {
		return c.fail(ctx, "delete-account", err)
	}
	if c.now().Sub(s.AuthTime) > c.cfg.RecentLogin {
		return c.fail(ctx, "delete-account", providerErr(CodeRequiresRecentLogin))
	}
	if err := c.provider.DeleteUser(ctx, s.User.ID); err != nil {
		return c.fail(ctx, "delete-account", err)
	}

	removed, err := c.sessions.DeleteUser(ctx, s.User.ID)
	if err != nil {
		log.Error().Err(err).Str("uid", s.User.ID).Msg("auth: failed to drop sessions of deleted user")
	}
	notified := map[string]bool{}
	for _, r := range append(removed, s) {
		if !notified[r.BrowserID] {
			notified[r.BrowserID] = true
			c.bus.Publish(bus.Event{Topic: r.BrowserID, Action: ActionSignedOut})
		}
	}
	log.Info().Str("uid", s.User.ID).Msg("auth: account deleted")
	return nil
}

// Current returns the user of sessionID, or nil when signed out.
func (c *Client) Current(ctx context.Context, sessionID string) (*User, error) {
	if sessionID == "" {
		return nil, nil
	}
	s, err := c.sessions.Get(ctx, sessionID)
	if errors.Is(err, ErrNoSession) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s.User, nil
}

// Watch calls fn with the identity of sessionID, then again with every
// identity change announced for browserID, until ctx is done or the
// returned stop function is called. fn receives nil when signed out. Calls
// are made from a single goroutine, in order.
func (c *Client) Watch(ctx context.Context, browserID, sessionID string, fn func(*User)) (stop func()) {
	ch := c.bus.Subscribe(browserID)

	u, err := c.Current(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Msg("auth: resolve session for watch")
	}

	ctx, cancel := context.WithCancel(ctx)
	var once sync.Once
	stop = func() {
		once.Do(func() {
			cancel()
			c.bus.Unsubscribe(browserID, ch)
		})
	}

	ready := make(chan struct{})
	go func() {
		defer stop()
		fn(u)
		close(ready)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				fn(c.resolve(ctx, e))
			}
		}
	}()
	<-ready
	return stop
}

func (c *Client) resolve(ctx context.Context, e bus.Event) *User {
	if e.Action != ActionSignedIn {
		return nil
	}
	s, err := c.sessions.Get(ctx, e.ID)
	if err != nil {
		return nil
	}
	return &s.User
}
