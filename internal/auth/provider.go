package auth

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// Provider is the process's credential state. It implements Credentials.
//
// Listeners registered with Subscribe are called, outside the lock, whenever
// the status or the token changes.
type Provider struct {
	mu    sync.RWMutex
	state State
	store SessionStore
	now   func() time.Time

	listeners map[int]func(Status)
	nextID    int

	logger *log.Logger
}

var _ Credentials = (*Provider)(nil)

// NewProvider creates a provider in StatusLoading. Call Load to read the
// stored session.
//
// If logger is nil, a default logger writing to stderr is used.
func NewProvider(store SessionStore, logger *log.Logger) *Provider {
	if logger == nil {
		logger = log.New(os.Stderr, "[auth] ", log.LstdFlags)
	}
	return &Provider{
		state:     State{Status: StatusLoading},
		store:     store,
		now:       time.Now,
		listeners: make(map[int]func(Status)),
		logger:    logger,
	}
}

// Load reads the stored session. A missing or expired session leaves the
// provider unauthenticated; only read failures are returned.
func (p *Provider) Load() error {
	s, err := p.store.Load()
	if err != nil {
		p.dispatch(SetUnauthenticated{})
		return fmt.Errorf("failed to load session: %w", err)
	}
	if !s.Valid(p.now()) {
		if s != nil {
			p.logger.Printf("Stored session for %s has expired", s.User.ID)
		}
		p.dispatch(SetUnauthenticated{})
		return nil
	}
	p.dispatch(SignIn{Session: s})
	return nil
}

// SignIn persists s and makes it current.
func (p *Provider) SignIn(s *Session) error {
	if s == nil || s.AccessToken == "" {
		return fmt.Errorf("session has no access token")
	}
	if err := p.store.Save(s); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	p.dispatch(SignIn{Session: s})
	p.logger.Printf("Signed in as %s", s.User.ID)
	return nil
}

// SignOut forgets the stored session.
func (p *Provider) SignOut() error {
	if err := p.store.Remove(); err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	p.dispatch(SignOut{})
	p.logger.Printf("Signed out")
	return nil
}

// Invalidate implements Credentials. The stored session is kept so a later
// Load (e.g. after the session file is rewritten) can recover.
func (p *Provider) Invalidate() {
	p.logger.Printf("Access token rejected by remote service")
	p.dispatch(SetUnauthenticated{})
}

// Status implements Credentials. An expired session reads as unauthenticated.
func (p *Provider) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.state.Status == StatusAuthenticated && !p.state.Session.Valid(p.now()) {
		return StatusUnauthenticated
	}
	return p.state.Status
}

// Token implements Credentials.
func (p *Provider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.state.Status != StatusAuthenticated || !p.state.Session.Valid(p.now()) {
		return ""
	}
	return p.state.Session.AccessToken
}

// Session returns a copy of the current session, or nil.
func (p *Provider) Session() *Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.state.Session == nil {
		return nil
	}
	s := *p.state.Session
	return &s
}

// Subscribe registers fn for status and token changes. The returned function
// removes it.
func (p *Provider) Subscribe(fn func(Status)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

func (p *Provider) dispatch(action Action) {
	p.mu.Lock()
	before := p.state
	p.state = Reduce(p.state, action)
	after := p.state

	changed := before.Status != after.Status || token(before) != token(after)
	var listeners []func(Status)
	if changed {
		for _, fn := range p.listeners {
			listeners = append(listeners, fn)
		}
	}
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(after.Status)
	}
}

func token(s State) string {
	if s.Session == nil {
		return ""
	}
	return s.Session.AccessToken
}
