package identity

import "sync"

// Identity is the authenticated principal as reported by the external
// identity provider. The sync core only consumes it: synchronization runs
// while an identity is present and is suspended entirely while it is not.
type Identity struct {
	UserID      string
	Email       string
	DisplayName string
	Role        string
}

// Provider exposes the current identity and change notifications. The
// OAuth flow itself lives outside this repository.
type Provider interface {
	// Current returns the signed-in identity, or false when nobody is
	// signed in.
	Current() (Identity, bool)
	// Subscribe registers a callback invoked with the new identity (nil on
	// sign-out) and returns an unsubscribe function.
	Subscribe(fn func(*Identity)) func()
}

// StaticProvider is a Provider whose identity is set programmatically. It
// backs tests and deployments where the session is established out of band.
type StaticProvider struct {
	mu      sync.Mutex
	current *Identity
	subs    map[int]func(*Identity)
	nextSub int
}

// NewStaticProvider returns a provider that starts signed out, or signed in
// when an identity is given.
func NewStaticProvider(current *Identity) *StaticProvider {
	return &StaticProvider{current: current, subs: make(map[int]func(*Identity))}
}

// Current implements Provider.
func (p *StaticProvider) Current() (Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return Identity{}, false
	}
	return *p.current, true
}

// Subscribe implements Provider.
func (p *StaticProvider) Subscribe(fn func(*Identity)) func() {
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// SignIn installs an identity and notifies subscribers.
func (p *StaticProvider) SignIn(ident Identity) {
	p.set(&ident)
}

// SignOut clears the identity and notifies subscribers.
func (p *StaticProvider) SignOut() {
	p.set(nil)
}

func (p *StaticProvider) set(ident *Identity) {
	p.mu.Lock()
	p.current = ident
	fns := make([]func(*Identity), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(ident)
	}
}
