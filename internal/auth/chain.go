package auth

import (
	"context"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
)

// Chain walks registered providers in order until one produces a
// session. With no matching session it answers with the full provider
// list so the caller can offer a login choice.
//
// Thread-safe: providers can be registered at any time.
type Chain struct {
	mu        sync.RWMutex
	providers []Provider
}

// NewChain creates an empty provider chain.
func NewChain() *Chain {
	return &Chain{providers: make([]Provider, 0)}
}

// Register adds a provider to the end of the chain. Providers are
// tried in registration order.
func (c *Chain) Register(p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers = append(c.providers, p)
	log.Info().Str("provider", p.Name()).Msg("auth provider registered")
}

func (c *Chain) snapshot() []Provider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	providers := make([]Provider, len(c.providers))
	copy(providers, c.providers)
	return providers
}

// Login walks the chain. The first provider that resolves a session
// (okay or registration_required) wins; a provider fault stops the
// walk immediately. When nothing matches, the caller gets the
// authentication_required response listing every provider.
func (c *Chain) Login(ctx context.Context, r *http.Request) *Response {
	providers := c.snapshot()
	if len(providers) == 0 {
		return ErrorResponse("no authentication providers configured")
	}

	for _, p := range providers {
		resp := p.Login(ctx, r)
		if resp == nil {
			continue
		}
		if resp.Error {
			log.Warn().Str("provider", p.Name()).Str("message", resp.Message).Msg("auth provider fault")
			return resp
		}
		switch resp.Status {
		case StatusOkay, StatusRegistrationRequired:
			return resp
		}
		// authentication_required from one provider: keep walking,
		// another provider may hold a session.
	}

	return AuthenticationRequired(providers...)
}

// Logout asks every provider to destroy its session. The first fault
// wins; otherwise the terminal logged_out response is returned.
func (c *Chain) Logout(ctx context.Context, r *http.Request) *Response {
	for _, p := range c.snapshot() {
		resp := p.Logout(ctx, r)
		if resp != nil && resp.Error {
			return resp
		}
	}
	return LoggedOut()
}

// Callback routes the provider redirect to the named provider.
func (c *Chain) Callback(ctx context.Context, r *http.Request, provider string) *Response {
	for _, p := range c.snapshot() {
		if p.Name() == provider {
			return p.Callback(ctx, r)
		}
	}
	return ErrorResponse("unknown authentication provider: " + provider)
}
