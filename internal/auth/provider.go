// Package auth is the auth client: sign-up, sign-in, sign-out, password
// reset and account deletion against an identity provider, plus the
// server-side sessions that carry the signed-in identity between requests.
package auth

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// User is an authenticated identity.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName,omitempty"`
	Provider    string    `json:"provider"` // "password" or "federated"
	CreatedAt   time.Time `json:"createdAt"`
}

// Provider kinds.
const (
	ProviderPassword  = "password"
	ProviderFederated = "federated"
)

// FederatedIdentity is an identity asserted by an external provider.
type FederatedIdentity struct {
	Subject     string
	Email       string
	DisplayName string
}

// Provider is the identity service the Client delegates to. Failures are
// reported as *ProviderError.
type Provider interface {
	CreateUser(ctx context.Context, email, password string) (User, error)
	SignIn(ctx context.Context, email, password string) (User, error)
	SignInFederated(ctx context.Context, id FederatedIdentity) (User, error)
	SendPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, code, newPassword string) error
	DeleteUser(ctx context.Context, uid string) error
}

// Mailer delivers password reset links.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, link string) error
}

// LogMailer writes reset links to the log instead of sending mail.
type LogMailer struct{}

func (LogMailer) SendPasswordReset(ctx context.Context, email, link string) error {
	log.Info().Str("email", email).Str("link", link).Msg("password reset link")
	return nil
}
