package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/jobboard/apiserver/internal/auth"
	"github.com/jobboard/apiserver/internal/auth/authtest"
	"github.com/jobboard/apiserver/internal/backend"
	"github.com/jobboard/apiserver/internal/retry"
	"github.com/jobboard/apiserver/types"
)

const seekerBody = `{
	"role": "job_seeker",
	"email": "ann@example.com",
	"password": "secret123",
	"confirmPassword": "secret123",
	"firstName": "Ann",
	"lastName": "Lee"
}`

type authFixture struct {
	auth     *authtest.Auth
	dir      *authtest.Directory
	sessions *SessionRegistry
	router   http.Handler
}

func newAuthFixture(t *testing.T, fake *authtest.Auth) *authFixture {
	t.Helper()
	f := &authFixture{auth: fake, dir: authtest.NewDirectory()}

	var source *backend.Accessor
	if fake != nil {
		source = backend.NewStaticAccessor(newClient(nil, fake))
	} else {
		source = backend.NewStaticAccessor(nil)
	}
	f.sessions = NewSessionRegistry(source, nil, SessionOptions{
		Holder: auth.Options{
			Directory: func(*backend.Client) auth.Directory { return f.dir },
			Retry: retry.Policy{
				MaxRetries: 3,
				BaseDelay:  time.Second,
				Sleep:      func(context.Context, time.Duration) error { return nil },
			},
		},
	})

	handler := NewAuthHandler(f.sessions, nil)
	r := chi.NewRouter()
	r.Route("/api/auth", func(r chi.Router) {
		AuthRouter(r, handler)
	})
	r.Get("/auth/callback", handler.Callback)
	f.router = r
	return f
}

// do sends a request carrying the session cookie when one is given and
// returns the recorder plus the cookie in effect afterwards.
func (f *authFixture) do(method, target, body string, cookie *http.Cookie) (*httptest.ResponseRecorder, *http.Cookie) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := serve(f.router, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			cookie = c
		}
	}
	return rec, cookie
}

func redirectQuery(t *testing.T, rec *httptest.ResponseRecorder) (string, url.Values) {
	t.Helper()
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	return loc.Path, loc.Query()
}

func TestAuth_RegisterThenVerify(t *testing.T) {
	fake := &authtest.Auth{
		OnSignUp: func(email, _ string, opts backend.SignUpOptions) (backend.SignUpResult, error) {
			return backend.SignUpResult{User: &backend.AuthUser{ID: "u1", Email: email}}, nil
		},
		OnVerifyOTP: func(email, token string) (backend.Session, error) {
			require.Equal(t, "123456", token)
			return authtest.Session("u1", email), nil
		},
	}
	f := newAuthFixture(t, fake)

	rec, cookie := f.do(http.MethodPost, "/api/auth/register", seekerBody, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, cookie)
	var pending ResultResponse
	decodeBody(t, rec, &pending)
	require.Equal(t, auth.OutcomeVerificationPending, pending.Outcome)
	require.Nil(t, pending.User)
	require.Len(t, f.dir.Pending, 1)

	rec, _ = f.do(http.MethodPost, "/api/auth/verify", `{"email":"ann@example.com","code":"123456"}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var done ResultResponse
	decodeBody(t, rec, &done)
	require.Equal(t, auth.OutcomeSignedIn, done.Outcome)
	require.NotNil(t, done.User)
	require.Equal(t, types.RoleJobSeeker, done.User.Role)
	require.Contains(t, f.dir.Users, "u1")
	require.Contains(t, f.dir.Seekers, "u1")
	require.Empty(t, f.dir.Pending)

	rec, _ = f.do(http.MethodGet, "/api/auth/session", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var state auth.State
	decodeBody(t, rec, &state)
	require.NotNil(t, state.Identity)
	require.Equal(t, "u1", state.Identity.ID)
	require.Equal(t, 1, f.sessions.Len())
}

func TestAuth_RegisterValidation(t *testing.T) {
	f := newAuthFixture(t, &authtest.Auth{})

	body := strings.Replace(seekerBody, `"confirmPassword": "secret123"`, `"confirmPassword": "other123"`, 1)
	rec, _ := f.do(http.MethodPost, "/api/auth/register", body, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ValidationErrorResponse
	decodeBody(t, rec, &resp)
	require.Equal(t, "Passwords don't match", resp.Fields["confirmPassword"])

	rec, _ = f.do(http.MethodPost, "/api/auth/register", `{"email":"a@b.co"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	decodeBody(t, rec, &resp)
	require.Equal(t, "User role is required", resp.Fields["role"])
	require.Zero(t, f.auth.SignUpCalls)
}

func TestAuth_RegisterRateLimited(t *testing.T) {
	fake := &authtest.Auth{
		OnSignUp: func(string, string, backend.SignUpOptions) (backend.SignUpResult, error) {
			return backend.SignUpResult{}, &backend.Error{Status: http.StatusTooManyRequests, Message: "email rate limit exceeded"}
		},
	}
	f := newAuthFixture(t, fake)

	rec, cookie := f.do(http.MethodPost, "/api/auth/register", seekerBody, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "900", rec.Header().Get("Retry-After"))
	require.Equal(t, "Too many signup attempts. Please try again in 15 minute(s) or contact support.", errorBody(t, rec))
	require.Equal(t, 4, fake.SignUpCalls)

	rec, _ = f.do(http.MethodPost, "/api/auth/register", seekerBody, cookie)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, 4, fake.SignUpCalls)
}

func TestAuth_RegisterBackendMissing(t *testing.T) {
	f := newAuthFixture(t, nil)

	rec, _ := f.do(http.MethodPost, "/api/auth/register", seekerBody, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "Database connection not available. Please try again later.", errorBody(t, rec))
}

func TestAuth_LoginAndLogout(t *testing.T) {
	fake := &authtest.Auth{
		OnSignIn: func(email, password string) (backend.Session, error) {
			if password != "secret123" {
				return backend.Session{}, &backend.Error{Status: http.StatusBadRequest, Code: "invalid_credentials", Message: "Invalid login credentials"}
			}
			return authtest.Session("u2", email), nil
		},
	}
	f := newAuthFixture(t, fake)
	f.dir.Users["u2"] = types.User{ID: "u2", Email: "jobs@acme.io", Role: types.RoleEmployer}

	rec, _ := f.do(http.MethodPost, "/api/auth/login", `{"email":"jobs@acme.io","password":"wrong-pass"}`, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.do(http.MethodPost, "/api/auth/login", `{"email":"jobs@acme.io"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec, cookie := f.do(http.MethodPost, "/api/auth/login", `{"email":"jobs@acme.io","password":"secret123"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var state auth.State
	decodeBody(t, rec, &state)
	require.NotNil(t, state.Identity)
	require.Equal(t, types.RoleEmployer, state.Identity.Role)

	fake.SignOutErr = &backend.Error{Status: http.StatusInternalServerError, Message: "boom"}
	rec, _ = f.do(http.MethodPost, "/api/auth/logout", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"token-u2"}, fake.SignOuts)

	rec, _ = f.do(http.MethodGet, "/api/auth/session", "", cookie)
	decodeBody(t, rec, &state)
	require.Nil(t, state.Identity)
}

func TestAuth_CallbackWithoutCode(t *testing.T) {
	f := newAuthFixture(t, &authtest.Auth{})

	rec, _ := f.do(http.MethodGet, "/auth/callback", "", nil)
	path, q := redirectQuery(t, rec)
	require.Equal(t, "/login", path)
	require.Empty(t, q.Get("message"))
}

func TestAuth_CallbackBadCode(t *testing.T) {
	f := newAuthFixture(t, &authtest.Auth{})

	rec, _ := f.do(http.MethodGet, "/auth/callback?code=expired", "", nil)
	path, q := redirectQuery(t, rec)
	require.Equal(t, "/login", path)
	require.Equal(t, "Error authenticating. Please try again.", q.Get("message"))
	require.Equal(t, "error", q.Get("status"))
}

func TestAuth_CallbackCreatesEmployer(t *testing.T) {
	fake := &authtest.Auth{
		OnExchange: func(string) (backend.Session, error) {
			return authtest.Session("e1", "jobs@acme.io"), nil
		},
	}
	f := newAuthFixture(t, fake)
	f.dir.Pending = append(f.dir.Pending, types.PendingRegistration{
		ID: "p1", Email: "jobs@acme.io", Role: types.RoleEmployer, CompanyName: "Acme",
	})

	rec, _ := f.do(http.MethodGet, "/auth/callback?code=abc", "", nil)
	path, q := redirectQuery(t, rec)
	require.Equal(t, "/post-job", path)
	require.Equal(t, "Your employer account has been successfully created!", q.Get("message"))
	require.Equal(t, "success", q.Get("status"))
	require.Equal(t, "Acme", f.dir.Employers["e1"].CompanyName)
}

func TestAuth_CallbackProfileWarning(t *testing.T) {
	fake := &authtest.Auth{
		OnExchange: func(string) (backend.Session, error) {
			return authtest.Session("s1", "ann@example.com"), nil
		},
	}
	f := newAuthFixture(t, fake)
	f.dir.ProfileErr = &backend.Error{Status: http.StatusInternalServerError, Message: "insert failed"}

	rec, _ := f.do(http.MethodGet, "/auth/callback?code=abc", "", nil)
	path, q := redirectQuery(t, rec)
	require.Equal(t, "/", path)
	require.Equal(t, "warning", q.Get("status"))
	require.Contains(t, f.dir.Users, "s1")
}

func TestAuth_CallbackExistingAccount(t *testing.T) {
	fake := &authtest.Auth{
		OnExchange: func(string) (backend.Session, error) {
			return authtest.Session("e1", "jobs@acme.io"), nil
		},
	}
	f := newAuthFixture(t, fake)
	f.dir.Users["e1"] = types.User{ID: "e1", Email: "jobs@acme.io", Role: types.RoleEmployer}

	rec, _ := f.do(http.MethodGet, "/auth/callback?code=abc", "", nil)
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	require.Equal(t, "/post-job", rec.Header().Get("Location"))
}
