// Package identity resolves opaque credentials (access tokens or
// registered emails) to Agent identities, and owns the access-token
// lifecycle: creation, revocation, and the reserved web-session token
// replacement rule.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/blueherons/stattracker/internal/store"
	"github.com/blueherons/stattracker/pkg/models"
)

// Resolver resolves credentials against the store.
type Resolver struct {
	store store.Store
}

// NewResolver creates a resolver over the given store.
func NewResolver(s store.Store) *Resolver {
	return &Resolver{store: s}
}

// ResolveByCredential resolves an access-token secret to an Agent.
// An unknown or revoked secret yields the invalid-agent sentinel, not
// an error; callers must check Valid(). Resolution touches the token's
// last-used timestamp as a best-effort side effect.
func (r *Resolver) ResolveByCredential(ctx context.Context, secret string) (models.Agent, error) {
	if secret == "" {
		return models.InvalidAgent(), nil
	}

	agent, err := r.store.GetAgentByToken(ctx, secret)
	if err != nil {
		if store.IsNotFound(err) {
			return models.InvalidAgent(), nil
		}
		return models.InvalidAgent(), fmt.Errorf("resolve credential: %w", err)
	}

	// Last-used bookkeeping must not block the resolution.
	if err := r.store.TouchToken(ctx, secret); err != nil {
		log.Warn().Str("agent", agent.Name).Err(err).Msg("token touch failed")
	}

	return *agent, nil
}

// ResolveByPrincipal resolves a registered email to an Agent. When the
// agent has a non-revoked web-session token it is attached as the
// resolved credential; otherwise the agent resolves invalid (no
// credential, no access).
func (r *Resolver) ResolveByPrincipal(ctx context.Context, email string) (models.Agent, error) {
	if email == "" {
		return models.InvalidAgent(), nil
	}

	agent, err := r.store.GetAgentByEmail(ctx, email)
	if err != nil {
		if store.IsNotFound(err) {
			return models.InvalidAgent(), nil
		}
		return models.InvalidAgent(), fmt.Errorf("resolve principal: %w", err)
	}

	token, err := r.store.GetToken(ctx, agent.Name, models.TokenWeb)
	if err != nil {
		if store.IsNotFound(err) {
			return *agent, nil
		}
		return models.InvalidAgent(), fmt.Errorf("resolve principal token: %w", err)
	}
	agent.Token = token.Secret

	return *agent, nil
}

// CreateToken creates a new named access token for the agent and
// returns its secret. The secret is returned exactly once; it cannot
// be retrieved again. Returns created=false when a non-revoked token
// with that name already exists.
func (r *Resolver) CreateToken(ctx context.Context, agent, name string) (secret string, created bool, err error) {
	name = strings.ToUpper(name)

	if _, err := r.store.GetToken(ctx, agent, name); err == nil {
		return "", false, nil
	} else if !store.IsNotFound(err) {
		return "", false, fmt.Errorf("create token: %w", err)
	}

	sum := sha256.Sum256([]byte(agent + name + uuid.NewString()))
	secret = hex.EncodeToString(sum[:])

	token := &models.Token{
		Agent:   agent,
		Name:    name,
		Secret:  secret,
		Created: time.Now().UTC(),
	}
	if err := r.store.CreateToken(ctx, token); err != nil {
		return "", false, fmt.Errorf("create token: %w", err)
	}

	log.Info().Str("agent", agent).Str("token", name).Msg("access token created")
	return secret, true, nil
}

// RevokeToken revokes the named token. The revoked token is renamed
// with a timestamp suffix so the name stays reusable. Revoking the
// reserved web-session token immediately issues a replacement, so
// exactly one non-revoked web token exists afterward.
func (r *Resolver) RevokeToken(ctx context.Context, agent, name string) (bool, error) {
	name = strings.ToUpper(name)

	newName := name + "-" + strconv.FormatInt(time.Now().Unix(), 10)
	if err := r.store.RevokeToken(ctx, agent, name, newName); err != nil {
		if store.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("revoke token: %w", err)
	}
	log.Info().Str("agent", agent).Str("token", name).Msg("access token revoked")

	if strings.EqualFold(name, models.TokenWeb) {
		if _, _, err := r.CreateToken(ctx, agent, models.TokenWeb); err != nil {
			return false, fmt.Errorf("replace web token: %w", err)
		}
	}

	return true, nil
}

// TokenNames returns the names of the agent's non-revoked tokens.
func (r *Resolver) TokenNames(ctx context.Context, agent string) ([]string, error) {
	tokens, err := r.store.ListTokens(ctx, agent)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	names := make([]string, 0, len(tokens))
	for _, t := range tokens {
		names = append(names, t.Name)
	}
	return names, nil
}
