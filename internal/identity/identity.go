// Package identity holds the external collaborators of the session
// subsystem: the identity-management service that owns principal credential
// material, and the federated login provider.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/avoronel/authd/internal/models"
)

var (
	ErrPrincipalNotFound = errors.New("principal not found")
	ErrEmailTaken        = errors.New("email already registered")
)

// VerifyStatus is the password-verification outcome including the
// lockout/not-allowed states the verifier owns.
type VerifyStatus int

const (
	VerifyOK VerifyStatus = iota
	VerifyMismatch
	VerifyLockedOut
	VerifyNotAllowed
)

// NewPrincipal carries everything the verifier needs to create an account.
// Password is empty for federated principals; EmailConfirmed is set when the
// provider already verified the address.
type NewPrincipal struct {
	Email          string
	FullName       string
	Password       string
	EmailConfirmed bool
}

// RegistrationError carries the verifier's field-level rejections.
type RegistrationError struct {
	Fields map[string][]string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registration rejected: %d invalid fields", len(e.Fields))
}

// Verifier is the external identity-management service. It exclusively owns
// password hashing, verification and lockout policy.
type Verifier interface {
	CreatePrincipal(ctx context.Context, np NewPrincipal) (*models.Principal, error)
	VerifyPassword(ctx context.Context, principalID, password string) (VerifyStatus, error)
	AssignRole(ctx context.Context, principalID, role string) error
	Roles(ctx context.Context, principalID string) ([]string, error)
	PrincipalByEmail(ctx context.Context, email string) (*models.Principal, error)
	PrincipalByID(ctx context.Context, id string) (*models.Principal, error)
}

// Assertion is a verified federated identity claim delivered by the
// provider callback.
type Assertion struct {
	Email     string
	SubjectID string
	FullName  string
}

// ExternalAuthenticator drives the federated login exchange.
type ExternalAuthenticator interface {
	// AuthCodeURL builds the provider redirect carrying the CSRF state.
	AuthCodeURL(state string) string
	// Exchange trades the callback code for a verified assertion.
	Exchange(ctx context.Context, code string) (*Assertion, error)
}
