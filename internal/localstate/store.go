// Package localstate persists the small key/value blobs a client keeps
// between runs: the cached identity, the signup cooldown and the session.
package localstate

import "context"

// Keys used by the auth holder.
const (
	KeyUser      = "jobfinder_user"
	KeyRateLimit = "jobfinder_rate_limit"
	KeySession   = "jobfinder_session"
	// KeyCodeVerifier holds the PKCE verifier of the last sign-up until its
	// email link is redeemed.
	KeyCodeVerifier = "jobfinder_code_verifier"
)

// Store is a client-side key/value store.
// Get returns (nil, nil) when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
