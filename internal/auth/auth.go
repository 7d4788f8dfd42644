// Package auth defines the authentication-provider contract for the
// Stat Tracker. Providers own their entire flow (OAuth, sessions);
// the core only consumes the resolved Agent or the rejection state.
package auth

import (
	"context"
	"net/http"

	"github.com/blueherons/stattracker/pkg/models"
)

// Status is the outcome state of a provider operation.
type Status string

const (
	// StatusAuthenticationRequired means no session exists and the
	// user must log in; the response carries provider login URLs.
	StatusAuthenticationRequired Status = "authentication_required"

	// StatusRegistrationRequired means the user authenticated but has
	// not completed registration.
	StatusRegistrationRequired Status = "registration_required"

	// StatusOkay means a session exists and an Agent was resolved.
	StatusOkay Status = "okay"

	// StatusLoggedOut is the terminal state of a logout.
	StatusLoggedOut Status = "logged_out"
)

// ProviderRef names a provider and its authentication URL.
type ProviderRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Response is the uniform result of login, logout, and callback.
// Error is true only for application faults the user cannot fix.
type Response struct {
	Error     bool          `json:"error"`
	Status    Status        `json:"status,omitempty"`
	Message   string        `json:"message,omitempty"`
	Email     string        `json:"email,omitempty"`
	Providers []ProviderRef `json:"providers,omitempty"`
	Agent     *models.Agent `json:"agent,omitempty"`
}

// AuthenticationRequired builds the response directing the user to log
// in with one of the given providers.
func AuthenticationRequired(providers ...Provider) *Response {
	refs := make([]ProviderRef, 0, len(providers))
	for _, p := range providers {
		refs = append(refs, ProviderRef{Name: p.Name(), URL: p.AuthenticationURL()})
	}
	return &Response{Status: StatusAuthenticationRequired, Providers: refs}
}

// RegistrationRequired builds the response for an authenticated but
// unregistered user.
func RegistrationRequired(message, email string) *Response {
	return &Response{Status: StatusRegistrationRequired, Message: message, Email: email}
}

// Okay builds the success response carrying the resolved agent.
func Okay(agent models.Agent) *Response {
	return &Response{Status: StatusOkay, Agent: &agent}
}

// LoggedOut builds the terminal logout response.
func LoggedOut() *Response {
	return &Response{Status: StatusLoggedOut}
}

// ErrorResponse builds an application-fault response.
func ErrorResponse(message string) *Response {
	return &Response{Error: true, Message: message}
}

// Provider is an external authentication collaborator.
type Provider interface {
	// Name is the provider's lower-case identifier.
	Name() string

	// AuthenticationURL is where users go to start the provider's
	// login flow.
	AuthenticationURL() string

	// Login processes a login request, resolving the session to an
	// Agent when one exists.
	Login(ctx context.Context, r *http.Request) *Response

	// Logout destroys the session.
	Logout(ctx context.Context, r *http.Request) *Response

	// Callback processes the provider's redirect. Providers should
	// persist their session state here; Login is called afterwards.
	Callback(ctx context.Context, r *http.Request) *Response

	// RegistrationEmail returns the body of the registration email
	// for the address, and whether one should be sent.
	RegistrationEmail(email string) (string, bool)
}
