package backend

import (
	"context"
	"time"
)

// AuthUser is the identity record held by the auth service.
type AuthUser struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`
}

// Session is an authenticated session issued by the auth service.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         AuthUser  `json:"user"`
}

// Expired reports whether the access token is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SignUpOptions carries the optional parts of a sign-up request.
type SignUpOptions struct {
	// EmailRedirectTo is the callback the verification link points at.
	EmailRedirectTo string
	// Data is stored as user metadata.
	Data map[string]any
	// CodeChallenge switches the verification link to the PKCE flow: the
	// link carries a code that only the matching verifier can exchange.
	CodeChallenge string
}

// SignUpResult is the outcome of a sign-up. User is nil when the service
// created nothing; Session is nil while verification is outstanding.
type SignUpResult struct {
	User    *AuthUser
	Session *Session
}

// Auth is the hosted authentication service.
type Auth interface {
	SignUp(ctx context.Context, email, password string, opts SignUpOptions) (SignUpResult, error)
	SignInWithPassword(ctx context.Context, email, password string) (Session, error)
	VerifyOTP(ctx context.Context, email, token string) (Session, error)
	ExchangeCodeForSession(ctx context.Context, code, verifier string) (Session, error)
	GetUser(ctx context.Context, accessToken string) (AuthUser, error)
	SignOut(ctx context.Context, accessToken string) error
}

// Revoker is implemented by auth services that can tell whether a still
// unexpired access token was signed out.
type Revoker interface {
	Revoked(tokenID string) bool
}
