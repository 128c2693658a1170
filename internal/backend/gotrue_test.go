package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	userID1 = "6f1c1f8e-3b7a-4c55-9d35-0f3a7f5b2a11"
	userID2 = "0b8e2f5a-9c4d-4e1f-8a7b-2c3d4e5f6a7b"
)

func newGoTrue(t *testing.T, handler http.HandlerFunc) *GoTrueClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGoTrueClient(srv.URL+"/", "anon-key", time.Second)
}

func writeSession(w http.ResponseWriter, token, id, email string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  token,
		"refresh_token": "ref",
		"token_type":    "bearer",
		"expires_in":    3600,
		"user":          map[string]any{"id": id, "email": email},
	})
}

func TestGoTrue_SignUpSendsPKCEChallenge(t *testing.T) {
	verifier, err := NewCodeVerifier()
	require.NoError(t, err)
	challenge := CodeChallenge(verifier)

	c := newGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/signup", r.URL.Path)
		assert.Equal(t, "http://localhost:3000/auth/callback", r.URL.Query().Get("redirect_to"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@b.co", body["email"])
		assert.Equal(t, map[string]any{"role": "employer"}, body["data"])
		assert.Equal(t, challenge, body["code_challenge"])
		assert.Equal(t, "s256", body["code_challenge_method"])

		_ = json.NewEncoder(w).Encode(map[string]any{"id": userID1, "email": "a@b.co"})
	})

	res, err := c.SignUp(context.Background(), "a@b.co", "password1", SignUpOptions{
		EmailRedirectTo: "http://localhost:3000/auth/callback",
		Data:            map[string]any{"role": "employer"},
		CodeChallenge:   challenge,
	})
	require.NoError(t, err)
	require.NotNil(t, res.User)
	assert.Equal(t, userID1, res.User.ID)
	assert.Nil(t, res.Session)
}

func TestGoTrue_SignUpWithoutChallengeOmitsIt(t *testing.T) {
	c := newGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotContains(t, body, "code_challenge")
		assert.NotContains(t, body, "code_challenge_method")
		assert.Empty(t, r.URL.Query().Get("redirect_to"))
		writeSession(w, "tok", userID1, "a@b.co")
	})

	res, err := c.SignUp(context.Background(), "a@b.co", "password1", SignUpOptions{})
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	assert.Equal(t, "tok", res.Session.AccessToken)
	assert.Equal(t, userID1, res.Session.User.ID)
}

func TestGoTrue_SignInSession(t *testing.T) {
	c := newGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@b.co", body["email"])
		assert.Equal(t, "password1", body["password"])
		writeSession(w, "tok", userID1, "a@b.co")
	})

	s, err := c.SignInWithPassword(context.Background(), "a@b.co", "password1")
	require.NoError(t, err)
	assert.Equal(t, "tok", s.AccessToken)
	assert.Equal(t, userID1, s.User.ID)
	assert.False(t, s.Expired(time.Now()))
}

func TestGoTrue_ExchangeSendsCodeVerifier(t *testing.T) {
	c := newGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "pkce", r.URL.Query().Get("grant_type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "code-1", body["auth_code"])
		assert.Equal(t, "verifier-1", body["code_verifier"])
		writeSession(w, "tok", userID2, "e@b.co")
	})

	s, err := c.ExchangeCodeForSession(context.Background(), "code-1", "verifier-1")
	require.NoError(t, err)
	assert.Equal(t, userID2, s.User.ID)
}

func TestGoTrue_ExchangeWithoutVerifierIsRejectedLocally(t *testing.T) {
	calls := 0
	c := newGoTrue(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.ExchangeCodeForSession(context.Background(), "code-1", "")
	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusBadRequest, be.Status)
	assert.False(t, IsNetwork(err))
	assert.Zero(t, calls)
}

func TestGoTrue_VerifyOTPFetchesUser(t *testing.T) {
	var paths []string
	c := newGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		switch r.URL.Path {
		case "/auth/v1/verify":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "signup", body["type"])
			assert.Equal(t, "123456", body["token"])
			assert.Equal(t, "a@b.co", body["email"])
			writeSession(w, "verified-token", userID1, "a@b.co")
		case "/auth/v1/user":
			assert.Equal(t, "Bearer verified-token", r.Header.Get("Authorization"))
			_ = json.NewEncoder(w).Encode(map[string]any{"id": userID1, "email": "a@b.co"})
		}
	})

	s, err := c.VerifyOTP(context.Background(), "a@b.co", "123456")
	require.NoError(t, err)
	assert.Equal(t, "verified-token", s.AccessToken)
	assert.Equal(t, userID1, s.User.ID)
	assert.Equal(t, []string{"POST /auth/v1/verify", "GET /auth/v1/user"}, paths)
}

func TestGoTrue_ErrorBodies(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
		msg    string
	}{
		{"rate limit", 429, `{"code":429,"error_code":"over_email_send_rate_limit","msg":"email rate limit exceeded"}`, IsRateLimited, "email rate limit exceeded"},
		{"legacy grant error", 400, `{"error":"invalid_grant","error_description":"Invalid login credentials"}`, IsInvalidCredentials, "Invalid login credentials"},
		{"already registered", 422, `{"code":"user_already_exists","message":"User already registered"}`, IsAlreadyRegistered, "User already registered"},
		{"plain text", 502, `bad gateway`, func(err error) bool { return !IsNetwork(err) }, "bad gateway"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newGoTrue(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := c.SignInWithPassword(context.Background(), "a@b.co", "x")
			require.Error(t, err)
			assert.True(t, tc.check(err), err.Error())

			var be *Error
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tc.status, be.Status)
			assert.Equal(t, tc.msg, be.Message)
		})
	}
}

func TestTranslateError(t *testing.T) {
	err := translateError(errors.New(`response status code 422: {"code":"user_already_exists","message":"User already registered"}`))
	assert.True(t, IsAlreadyRegistered(err))

	err = translateError(errors.New("response status code 500"))
	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 500, be.Status)
	assert.Equal(t, "500 Internal Server Error", be.Message)

	err = translateError(errors.New("dial tcp: connection refused"))
	require.ErrorAs(t, err, &be)
	assert.Zero(t, be.Status)

	assert.NoError(t, translateError(nil))
}

func TestGoTrue_UserAndSignOutUseAccessToken(t *testing.T) {
	var paths []string
	c := newGoTrue(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		if r.URL.Path == "/auth/v1/logout" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": userID1, "email": "a@b.co"})
	})

	u, err := c.GetUser(context.Background(), "user-token")
	require.NoError(t, err)
	assert.Equal(t, "a@b.co", u.Email)
	require.NoError(t, c.SignOut(context.Background(), "user-token"))
	assert.Equal(t, []string{"GET /auth/v1/user", "POST /auth/v1/logout"}, paths)
}

func TestGoTrue_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewGoTrueClient(url, "anon", time.Second)
	_, err := c.GetUser(context.Background(), "tok")
	require.Error(t, err)
	assert.True(t, IsNetwork(err))
}

func TestPKCEChallenge(t *testing.T) {
	v, err := NewCodeVerifier()
	require.NoError(t, err)
	assert.Len(t, v, 43)
	// RFC 7636 appendix B.
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", CodeChallenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"))
	assert.NotEqual(t, CodeChallenge(v), v)
}
