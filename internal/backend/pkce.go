package backend

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// CodeChallengeMethod is the PKCE transform sent with sign-up.
const CodeChallengeMethod = "s256"

// NewCodeVerifier returns a random PKCE code verifier (43 URL-safe characters).
func NewCodeVerifier() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf[:]), nil
}

// CodeChallenge is the S256 challenge of verifier.
func CodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
