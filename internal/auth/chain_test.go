package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blueherons/stattracker/internal/auth"
	"github.com/blueherons/stattracker/pkg/models"
)

// fakeProvider scripts each operation's response.
type fakeProvider struct {
	name     string
	login    *auth.Response
	logout   *auth.Response
	callback *auth.Response
}

func (p *fakeProvider) Name() string              { return p.name }
func (p *fakeProvider) AuthenticationURL() string { return "https://auth.example.com/" + p.name }
func (p *fakeProvider) Login(context.Context, *http.Request) *auth.Response    { return p.login }
func (p *fakeProvider) Logout(context.Context, *http.Request) *auth.Response   { return p.logout }
func (p *fakeProvider) Callback(context.Context, *http.Request) *auth.Response { return p.callback }
func (p *fakeProvider) RegistrationEmail(string) (string, bool)                { return "", false }

func loginRequest() *http.Request {
	return httptest.NewRequest(http.MethodGet, "/auth/login", nil)
}

// ─── Login walk ──────────────────────────────────────────────

func TestLogin_FirstSessionWins(t *testing.T) {
	chain := auth.NewChain()
	agent := models.Agent{Name: "Tycho", Faction: models.FactionEnlightened, Token: "tok"}
	chain.Register(&fakeProvider{name: "google"})
	chain.Register(&fakeProvider{name: "github", login: auth.Okay(agent)})

	resp := chain.Login(context.Background(), loginRequest())
	if resp.Status != auth.StatusOkay {
		t.Fatalf("Login() status = %q, want okay", resp.Status)
	}
	if resp.Agent == nil || resp.Agent.Name != "Tycho" {
		t.Errorf("Login() agent = %+v, want Tycho", resp.Agent)
	}
}

func TestLogin_RegistrationRequiredWins(t *testing.T) {
	chain := auth.NewChain()
	chain.Register(&fakeProvider{
		name:  "google",
		login: auth.RegistrationRequired("verify your agent name", "new@example.com"),
	})

	resp := chain.Login(context.Background(), loginRequest())
	if resp.Status != auth.StatusRegistrationRequired {
		t.Fatalf("Login() status = %q, want registration_required", resp.Status)
	}
	if resp.Email != "new@example.com" {
		t.Errorf("Login() email = %q, want the authenticated address", resp.Email)
	}
}

func TestLogin_NoSessionListsProviders(t *testing.T) {
	chain := auth.NewChain()
	chain.Register(&fakeProvider{name: "google"})
	chain.Register(&fakeProvider{name: "github"})

	resp := chain.Login(context.Background(), loginRequest())
	if resp.Status != auth.StatusAuthenticationRequired {
		t.Fatalf("Login() status = %q, want authentication_required", resp.Status)
	}
	if len(resp.Providers) != 2 {
		t.Fatalf("Login() providers = %d, want 2", len(resp.Providers))
	}
	if resp.Providers[0].Name != "google" || resp.Providers[0].URL == "" {
		t.Errorf("provider ref = %+v, want name and login URL", resp.Providers[0])
	}
}

func TestLogin_ProviderFaultStopsWalk(t *testing.T) {
	chain := auth.NewChain()
	agent := models.Agent{Name: "Tycho", Faction: models.FactionEnlightened, Token: "tok"}
	chain.Register(&fakeProvider{name: "broken", login: auth.ErrorResponse("session store down")})
	chain.Register(&fakeProvider{name: "github", login: auth.Okay(agent)})

	resp := chain.Login(context.Background(), loginRequest())
	if !resp.Error {
		t.Fatalf("Login() = %+v, want the fault surfaced", resp)
	}
}

func TestLogin_EmptyChain(t *testing.T) {
	resp := auth.NewChain().Login(context.Background(), loginRequest())
	if !resp.Error {
		t.Errorf("Login() with no providers = %+v, want an error response", resp)
	}
}

// ─── Logout and callback ─────────────────────────────────────

func TestLogout_Terminal(t *testing.T) {
	chain := auth.NewChain()
	chain.Register(&fakeProvider{name: "google"})

	resp := chain.Logout(context.Background(), loginRequest())
	if resp.Status != auth.StatusLoggedOut {
		t.Errorf("Logout() status = %q, want logged_out", resp.Status)
	}
}

func TestCallback_RoutesByName(t *testing.T) {
	chain := auth.NewChain()
	chain.Register(&fakeProvider{name: "google", callback: auth.LoggedOut()})
	chain.Register(&fakeProvider{
		name:     "github",
		callback: auth.Okay(models.Agent{Name: "Tycho", Faction: models.FactionEnlightened, Token: "tok"}),
	})

	resp := chain.Callback(context.Background(), loginRequest(), "github")
	if resp.Status != auth.StatusOkay {
		t.Errorf("Callback(github) status = %q, want okay", resp.Status)
	}

	resp = chain.Callback(context.Background(), loginRequest(), "missing")
	if !resp.Error {
		t.Errorf("Callback(missing) = %+v, want an error response", resp)
	}
}
