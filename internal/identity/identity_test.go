package identity_test

import (
	"context"
	"testing"

	"github.com/blueherons/stattracker/internal/identity"
	"github.com/blueherons/stattracker/internal/store"
	"github.com/blueherons/stattracker/pkg/models"
)

func newTestResolver(t *testing.T) (*identity.Resolver, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	s.AddAgent("Tycho", "tycho@example.com", models.FactionEnlightened)
	return identity.NewResolver(s), s
}

// ─── Credential resolution ───────────────────────────────────

func TestResolveByCredential(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := context.Background()
	s.CreateToken(ctx, &models.Token{Agent: "Tycho", Name: "IFTTT", Secret: "s3cret"})

	agent, err := r.ResolveByCredential(ctx, "s3cret")
	if err != nil {
		t.Fatalf("ResolveByCredential() error = %v", err)
	}
	if !agent.Valid() {
		t.Fatal("resolved agent should be valid")
	}
	if agent.Name != "Tycho" || agent.Token != "s3cret" {
		t.Errorf("agent = %+v, want Tycho with the credential attached", agent)
	}

	// Resolution records token use.
	tokens, _ := s.ListTokens(ctx, "Tycho")
	if len(tokens) != 1 || tokens[0].LastUsed.IsZero() {
		t.Error("resolution should touch the token's last-used timestamp")
	}
}

func TestResolveByCredential_InvalidSentinel(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	for _, secret := range []string{"", "unknown"} {
		agent, err := r.ResolveByCredential(ctx, secret)
		if err != nil {
			t.Fatalf("ResolveByCredential(%q) error = %v", secret, err)
		}
		if agent.Valid() {
			t.Errorf("ResolveByCredential(%q) = %+v, want invalid sentinel", secret, agent)
		}
		if agent.Name != "Agent" {
			t.Errorf("invalid agent Name = %q, want the %q placeholder", agent.Name, "Agent")
		}
	}
}

func TestResolveByCredential_Revoked(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := context.Background()
	s.CreateToken(ctx, &models.Token{Agent: "Tycho", Name: "IFTTT", Secret: "s3cret"})
	r.RevokeToken(ctx, "Tycho", "IFTTT")

	agent, err := r.ResolveByCredential(ctx, "s3cret")
	if err != nil {
		t.Fatalf("ResolveByCredential() error = %v", err)
	}
	if agent.Valid() {
		t.Error("revoked credential should resolve invalid")
	}
}

// ─── Principal resolution ────────────────────────────────────

func TestResolveByPrincipal(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	secret, created, err := r.CreateToken(ctx, "Tycho", models.TokenWeb)
	if err != nil || !created {
		t.Fatalf("CreateToken() = %v, %v", created, err)
	}

	agent, err := r.ResolveByPrincipal(ctx, "tycho@example.com")
	if err != nil {
		t.Fatalf("ResolveByPrincipal() error = %v", err)
	}
	if !agent.Valid() {
		t.Fatal("registered principal should resolve valid")
	}
	if agent.Token != secret {
		t.Error("web-session credential should be attached to the resolved agent")
	}
}

func TestResolveByPrincipal_NoWebToken(t *testing.T) {
	r, _ := newTestResolver(t)

	agent, err := r.ResolveByPrincipal(context.Background(), "tycho@example.com")
	if err != nil {
		t.Fatalf("ResolveByPrincipal() error = %v", err)
	}
	if agent.Valid() {
		t.Errorf("agent without a web token = %+v, want invalid (no credential)", agent)
	}
	if agent.Name != "Tycho" {
		t.Errorf("Name = %q, want the resolved name even without a credential", agent.Name)
	}
}

func TestResolveByPrincipal_Unregistered(t *testing.T) {
	r, _ := newTestResolver(t)

	agent, err := r.ResolveByPrincipal(context.Background(), "stranger@example.com")
	if err != nil {
		t.Fatalf("ResolveByPrincipal() error = %v", err)
	}
	if agent.Valid() {
		t.Error("unregistered email should resolve invalid")
	}
}

// ─── Token lifecycle ─────────────────────────────────────────

func TestCreateToken_SecretReturnedOnce(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	secret, created, err := r.CreateToken(ctx, "Tycho", "ifttt")
	if err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}
	if !created || secret == "" {
		t.Fatalf("CreateToken() = (%q, %v), want a fresh secret", secret, created)
	}

	// Names are stored upper-case; a duplicate is reported, not an error.
	if _, created, err := r.CreateToken(ctx, "Tycho", "IFTTT"); err != nil || created {
		t.Errorf("duplicate CreateToken() = %v, %v; want created=false, nil", created, err)
	}

	names, _ := r.TokenNames(ctx, "Tycho")
	if len(names) != 1 || names[0] != "IFTTT" {
		t.Errorf("TokenNames() = %v, want [IFTTT]", names)
	}
}

func TestRevokeToken_Unknown(t *testing.T) {
	r, _ := newTestResolver(t)

	revoked, err := r.RevokeToken(context.Background(), "Tycho", "NOPE")
	if err != nil {
		t.Fatalf("RevokeToken() error = %v", err)
	}
	if revoked {
		t.Error("revoking an unknown token should report false")
	}
}

func TestRevokeWebToken_IssuesReplacement(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := context.Background()

	first, _, err := r.CreateToken(ctx, "Tycho", models.TokenWeb)
	if err != nil {
		t.Fatalf("CreateToken() error = %v", err)
	}

	revoked, err := r.RevokeToken(ctx, "Tycho", models.TokenWeb)
	if err != nil || !revoked {
		t.Fatalf("RevokeToken() = %v, %v", revoked, err)
	}

	// Exactly one non-revoked web token remains, with a new secret.
	tokens, _ := s.ListTokens(ctx, "Tycho")
	var webTokens []models.Token
	for _, tok := range tokens {
		if tok.Name == models.TokenWeb {
			webTokens = append(webTokens, tok)
		}
	}
	if len(webTokens) != 1 {
		t.Fatalf("active web tokens after revoke = %d, want 1", len(webTokens))
	}
	if webTokens[0].Secret == first {
		t.Error("replacement web token must carry a fresh secret")
	}

	// The old credential no longer resolves.
	agent, _ := r.ResolveByCredential(ctx, first)
	if agent.Valid() {
		t.Error("revoked web credential should resolve invalid")
	}
}
