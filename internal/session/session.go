// Package session tracks the signed-in identity of one browser.
//
// A Context starts Loading and settles on the first identity notification
// from the auth client; afterwards it follows sign-in and sign-out events
// for the same browser. Page handlers read it once with Wait, streaming
// handlers Subscribe to re-render identity-dependent fragments.
package session

import (
	"context"
	"sync"

	"github.com/yu-fu/smokesearch/internal/auth"
)

// State of a session context.
type State int

const (
	Loading State = iota
	Authenticated
	Anonymous
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Snapshot is the session at one point in time. User is set only when
// State is Authenticated.
type Snapshot struct {
	State State
	User  *auth.User
}

// SignedIn reports whether a user is signed in.
func (s Snapshot) SignedIn() bool { return s.State == Authenticated && s.User != nil }

// UserID returns the signed-in user id, or "".
func (s Snapshot) UserID() string {
	if !s.SignedIn() {
		return ""
	}
	return s.User.ID
}

// Watcher delivers identity notifications; *auth.Client implements it.
type Watcher interface {
	Watch(ctx context.Context, browserID, sessionID string, fn func(*auth.User)) (stop func())
}

// Manager opens session contexts. One Manager is created at startup.
type Manager struct {
	watcher Watcher
}

// NewManager creates a manager backed by w.
func NewManager(w Watcher) *Manager {
	return &Manager{watcher: w}
}

// Open starts tracking browserID. The returned context is Loading until
// the first notification arrives. Close it when done.
func (m *Manager) Open(ctx context.Context, browserID, sessionID string) *Context {
	ctx, cancel := context.WithCancel(ctx)
	c := &Context{
		cancel:   cancel,
		settled:  make(chan struct{}),
		subs:     make(map[int]func(Snapshot)),
		snapshot: Snapshot{State: Loading},
	}
	go func() {
		stop := m.watcher.Watch(ctx, browserID, sessionID, c.update)
		<-ctx.Done()
		stop()
	}()
	return c
}

// Context is the identity of one browser.
type Context struct {
	cancel  context.CancelFunc
	settled chan struct{}
	once    sync.Once

	// notify serializes subscriber calls so they observe changes in order.
	notify sync.Mutex

	mu       sync.Mutex
	snapshot Snapshot
	subs     map[int]func(Snapshot)
	nextID   int
	closed   bool
}

func (c *Context) update(u *auth.User) {
	snap := Snapshot{State: Anonymous}
	if u != nil {
		user := *u
		snap = Snapshot{State: Authenticated, User: &user}
	}

	c.notify.Lock()
	defer c.notify.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.snapshot = snap
	subs := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	c.once.Do(func() { close(c.settled) })
	for _, fn := range subs {
		fn(snap)
	}
}

// Snapshot returns the current state without blocking.
func (c *Context) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Subscribe calls fn with the current snapshot, then after every change,
// until the returned function is called or the context is closed.
func (c *Context) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.notify.Lock()
	defer c.notify.Unlock()

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	snap := c.snapshot
	c.mu.Unlock()

	fn(snap)
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Wait blocks until the session leaves Loading or ctx is done.
func (c *Context) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-c.settled:
		return c.Snapshot(), nil
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	}
}

// Close stops tracking. Subscribers receive no further calls.
func (c *Context) Close() {
	c.mu.Lock()
	c.closed = true
	c.subs = map[int]func(Snapshot){}
	c.mu.Unlock()
	c.cancel()
}
