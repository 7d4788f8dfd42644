package auth

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/blueherons/stattracker/pkg/models"
)

// sessionCookie carries the session identifier between requests.
const sessionCookie = "stattracker_session"

// defaultSessionTTL bounds how long a session survives without a new
// callback.
const defaultSessionTTL = 24 * time.Hour

// Verifier validates a provider callback request and yields the
// authenticated email. The external identity flow (OAuth dance, token
// exchange) lives entirely behind this interface.
type Verifier interface {
	Verify(ctx context.Context, r *http.Request) (email string, err error)
}

// AgentResolver resolves an authenticated email to an Agent and
// provisions web-session credentials. Satisfied by identity.Resolver.
type AgentResolver interface {
	ResolveByPrincipal(ctx context.Context, email string) (models.Agent, error)
	CreateToken(ctx context.Context, agent, name string) (secret string, created bool, err error)
}

type sessionRecord struct {
	email   string
	expires time.Time
}

// SessionProvider is a cookie-session Provider. The callback verifies
// the external identity, establishes a server-side session, and
// subsequent logins resolve the session's email to an Agent,
// provisioning the web token on first login.
type SessionProvider struct {
	name     string
	authURL  string
	verifier Verifier
	resolver AgentResolver
	ttl      time.Duration

	mu       sync.Mutex
	sessions map[string]sessionRecord
}

// NewSessionProvider creates a session provider. name identifies the
// provider in the chain; authURL is where unauthenticated users are
// sent to start the external flow.
func NewSessionProvider(name, authURL string, verifier Verifier, resolver AgentResolver) *SessionProvider {
	return &SessionProvider{
		name:     name,
		authURL:  authURL,
		verifier: verifier,
		resolver: resolver,
		ttl:      defaultSessionTTL,
		sessions: make(map[string]sessionRecord),
	}
}

func (p *SessionProvider) Name() string              { return p.name }
func (p *SessionProvider) AuthenticationURL() string { return p.authURL }

// Login resolves the request's session cookie. A nil return means no
// session here; the chain keeps walking.
func (p *SessionProvider) Login(ctx context.Context, r *http.Request) *Response {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil
	}

	email, ok := p.sessionEmail(cookie.Value)
	if !ok {
		return nil
	}
	return p.resolve(ctx, email)
}

// Logout destroys the request's session. Always succeeds; the chain
// produces the terminal logged_out response.
func (p *SessionProvider) Logout(_ context.Context, r *http.Request) *Response {
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		p.mu.Lock()
		delete(p.sessions, cookie.Value)
		p.mu.Unlock()
	}
	return nil
}

// Callback verifies the external identity and establishes a session.
// The response is the same shape Login would produce for the session.
func (p *SessionProvider) Callback(ctx context.Context, r *http.Request) *Response {
	email, err := p.verifier.Verify(ctx, r)
	if err != nil {
		log.Warn().Str("provider", p.name).Err(err).Msg("callback verification failed")
		return ErrorResponse("identity verification failed")
	}

	id := uuid.NewString()
	p.mu.Lock()
	p.sessions[id] = sessionRecord{email: email, expires: time.Now().Add(p.ttl)}
	p.mu.Unlock()

	log.Info().Str("provider", p.name).Msg("session established")
	return p.resolve(ctx, email)
}

// RegistrationEmail returns the body of the registration mail sent to
// authenticated users who have no agent yet.
func (p *SessionProvider) RegistrationEmail(email string) (string, bool) {
	return "Reply to this message with your agent name and faction to activate " + email + ".", true
}

// SessionID exposes the active session for an email, for handlers that
// need to set the cookie after a callback.
func (p *SessionProvider) SessionID(email string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, rec := range p.sessions {
		if rec.email == email && time.Now().Before(rec.expires) {
			return id, true
		}
	}
	return "", false
}

func (p *SessionProvider) sessionEmail(id string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.sessions[id]
	if !ok {
		return "", false
	}
	if time.Now().After(rec.expires) {
		delete(p.sessions, id)
		return "", false
	}
	return rec.email, true
}

// resolve maps an authenticated email to the chain response: okay with
// the agent, or registration_required for emails with no agent. The
// web-session token is provisioned on first login.
func (p *SessionProvider) resolve(ctx context.Context, email string) *Response {
	agent, err := p.resolver.ResolveByPrincipal(ctx, email)
	if err != nil {
		return ErrorResponse("agent resolution failed")
	}
	if agent == models.InvalidAgent() {
		message := "No agent is registered for this identity."
		if body, ok := p.RegistrationEmail(email); ok {
			message = body
		}
		return RegistrationRequired(message, email)
	}

	if !agent.Valid() {
		if _, _, err := p.resolver.CreateToken(ctx, agent.Name, models.TokenWeb); err != nil {
			return ErrorResponse("web credential provisioning failed")
		}
		if agent, err = p.resolver.ResolveByPrincipal(ctx, email); err != nil || !agent.Valid() {
			return ErrorResponse("web credential provisioning failed")
		}
	}

	return Okay(agent)
}
