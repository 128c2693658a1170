package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	gotrue "github.com/supabase-community/auth-go"
	"github.com/supabase-community/auth-go/types"
)

const (
	authPath           = "/auth/v1"
	defaultHTTPTimeout = 10 * time.Second
	maxErrorBody       = 64 << 10
)

// statusPattern matches the errors auth-go returns for non-2xx answers.
var statusPattern = regexp.MustCompile(`(?s)response status code (\d+)(?::\s*(.*))?`)

// GoTrueClient talks to the hosted auth REST service through auth-go.
// Sign-up is sent directly because it needs redirect_to and the PKCE
// challenge, which auth-go's SignupRequest does not carry.
type GoTrueClient struct {
	api     gotrue.Client
	authURL string
	anonKey string
	http    *http.Client
	timeout time.Duration
	now     func() time.Time
}

// NewGoTrueClient constructs a client for the auth service under baseURL.
func NewGoTrueClient(baseURL, anonKey string, timeout time.Duration) *GoTrueClient {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	authURL := strings.TrimRight(baseURL, "/") + authPath
	return &GoTrueClient{
		api:     gotrue.New("", anonKey).WithCustomAuthURL(authURL),
		authURL: authURL,
		anonKey: anonKey,
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
		now:     time.Now,
	}
}

type signUpBody struct {
	Email               string         `json:"email"`
	Password            string         `json:"password"`
	Data                map[string]any `json:"data,omitempty"`
	CodeChallenge       string         `json:"code_challenge,omitempty"`
	CodeChallengeMethod string         `json:"code_challenge_method,omitempty"`
}

// signUpReply is a session when the address needs no confirmation and the
// bare user object otherwise.
type signUpReply struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	User         *AuthUser `json:"user"`

	ID    string `json:"id"`
	Email string `json:"email"`
}

type wireError struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorName        string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (c *GoTrueClient) SignUp(ctx context.Context, email, password string, opts SignUpOptions) (SignUpResult, error) {
	body := signUpBody{Email: email, Password: password, Data: opts.Data}
	if opts.CodeChallenge != "" {
		body.CodeChallenge = opts.CodeChallenge
		body.CodeChallengeMethod = CodeChallengeMethod
	}
	endpoint := c.authURL + "/signup"
	if opts.EmailRedirectTo != "" {
		endpoint += "?" + url.Values{"redirect_to": {opts.EmailRedirectTo}}.Encode()
	}

	var out signUpReply
	if err := c.post(ctx, endpoint, body, &out); err != nil {
		return SignUpResult{}, err
	}

	var result SignUpResult
	switch {
	case out.User != nil:
		result.User = out.User
	case out.ID != "":
		result.User = &AuthUser{ID: out.ID, Email: out.Email}
	}
	if out.AccessToken != "" {
		s := Session{
			AccessToken:  out.AccessToken,
			RefreshToken: out.RefreshToken,
			TokenType:    out.TokenType,
			ExpiresAt:    c.expiry(int(out.ExpiresIn)),
		}
		if out.User != nil {
			s.User = *out.User
		}
		result.Session = &s
	}
	return result, nil
}

func (c *GoTrueClient) SignInWithPassword(ctx context.Context, email, password string) (Session, error) {
	var resp *types.TokenResponse
	err := c.call(ctx, func() (err error) {
		resp, err = c.api.Token(types.TokenRequest{GrantType: "password", Email: email, Password: password})
		return err
	})
	if err != nil {
		return Session{}, err
	}
	return c.session(resp.Session), nil
}

// VerifyOTP confirms a sign-up with the emailed code. The verify answer
// carries no user, so the user is fetched with the new token.
func (c *GoTrueClient) VerifyOTP(ctx context.Context, email, token string) (Session, error) {
	var resp *types.VerifyForUserResponse
	err := c.call(ctx, func() (err error) {
		resp, err = c.api.VerifyForUser(types.VerifyForUserRequest{
			Type:  types.VerificationTypeSignup,
			Token: token,
			Email: email,
		})
		return err
	})
	if err != nil {
		return Session{}, err
	}

	s := Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresAt:    c.expiry(int(resp.ExpiresIn)),
	}
	user, err := c.GetUser(ctx, s.AccessToken)
	if err != nil {
		return Session{}, err
	}
	s.User = user
	return s, nil
}

func (c *GoTrueClient) ExchangeCodeForSession(ctx context.Context, code, verifier string) (Session, error) {
	if code == "" || verifier == "" {
		return Session{}, &Error{
			Status:  http.StatusBadRequest,
			Code:    "validation_failed",
			Message: "both auth code and code verifier should be non-empty",
		}
	}
	var resp *types.TokenResponse
	err := c.call(ctx, func() (err error) {
		resp, err = c.api.Token(types.TokenRequest{GrantType: "pkce", Code: code, CodeVerifier: verifier})
		return err
	})
	if err != nil {
		return Session{}, err
	}
	return c.session(resp.Session), nil
}

func (c *GoTrueClient) GetUser(ctx context.Context, accessToken string) (AuthUser, error) {
	var resp *types.UserResponse
	err := c.call(ctx, func() (err error) {
		resp, err = c.api.WithToken(accessToken).GetUser()
		return err
	})
	if err != nil {
		return AuthUser{}, err
	}
	return authUser(resp.User), nil
}

func (c *GoTrueClient) SignOut(ctx context.Context, accessToken string) error {
	return c.call(ctx, func() error {
		return c.api.WithToken(accessToken).Logout()
	})
}

// call runs an auth-go request, which takes no context, bounded by ctx and
// the client timeout.
func (c *GoTrueClient) call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return &Error{Err: err}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return translateError(err)
	case <-ctx.Done():
		return &Error{Err: ctx.Err()}
	}
}

func (c *GoTrueClient) session(s types.Session) Session {
	return Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		ExpiresAt:    c.expiry(int(s.ExpiresIn)),
		User:         authUser(s.User),
	}
}

func (c *GoTrueClient) expiry(expiresIn int) time.Time {
	if expiresIn <= 0 {
		return time.Time{}
	}
	return c.now().Add(time.Duration(expiresIn) * time.Second).UTC()
}

func authUser(u types.User) AuthUser {
	return AuthUser{ID: u.ID.String(), Email: u.Email}
}

func (c *GoTrueClient) post(ctx context.Context, endpoint string, in, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+c.anonKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return decodeError(resp.StatusCode, body, nil)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}

// translateError turns an auth-go failure into an *Error. Failures without
// a status never reached the service.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	m := statusPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return &Error{Err: err}
	}
	status, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return &Error{Err: err}
	}
	return decodeError(status, []byte(m[2]), err)
}

func decodeError(status int, raw []byte, cause error) error {
	be := &Error{Status: status, Err: cause}

	var w wireError
	if json.Unmarshal(raw, &w) == nil {
		be.Code = w.ErrorCode
		if be.Code == "" {
			if code, ok := w.Code.(string); ok {
				be.Code = code
			} else {
				be.Code = w.ErrorName
			}
		}
		for _, m := range []string{w.Msg, w.Message, w.ErrorDescription, w.ErrorName} {
			if m != "" {
				be.Message = m
				break
			}
		}
	}
	if be.Message == "" {
		be.Message = strings.TrimSpace(string(raw))
	}
	if be.Message == "" {
		be.Message = fmt.Sprintf("%d %s", status, http.StatusText(status))
	}
	return be
}
