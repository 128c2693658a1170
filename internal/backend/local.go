package backend

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jobboard/apiserver/internal/ids"
)

const (
	localTokenTTL = time.Hour
	localCodeTTL  = time.Hour
	sendWindow    = time.Hour
)

var (
	errLocalInvalidCredentials = &Error{Status: http.StatusBadRequest, Code: "invalid_credentials", Message: "Invalid login credentials"}
	errLocalNotConfirmed       = &Error{Status: http.StatusBadRequest, Code: "email_not_confirmed", Message: "Email not confirmed"}
	errLocalAlreadyRegistered  = &Error{Status: http.StatusUnprocessableEntity, Code: "user_already_exists", Message: "User already registered"}
	errLocalRateLimited        = &Error{Status: http.StatusTooManyRequests, Code: "over_email_send_rate_limit", Message: "email rate limit exceeded"}
	errLocalInvalidCode        = &Error{Status: http.StatusForbidden, Code: "otp_expired", Message: "Token has expired or is invalid"}
	errLocalBadJWT             = &Error{Status: http.StatusUnauthorized, Code: "bad_jwt", Message: "invalid JWT"}
)

// LocalAuthOptions configures LocalAuth.
type LocalAuthOptions struct {
	Secret        []byte
	SiteURL       string
	EmailsPerHour int
	Logger        *zap.Logger
}

// LocalAuth is an in-process stand-in for the hosted auth service, backed
// by the auth_local_* tables. Verification emails are written to the log.
type LocalAuth struct {
	db            *sqlx.DB
	secret        []byte
	siteURL       string
	emailsPerHour int
	logger        *zap.Logger
	now           func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time
}

// NewLocalAuth constructs a LocalAuth over db.
func NewLocalAuth(db *sqlx.DB, opts LocalAuthOptions) *LocalAuth {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalAuth{
		db:            db,
		secret:        opts.Secret,
		siteURL:       strings.TrimRight(opts.SiteURL, "/"),
		emailsPerHour: opts.EmailsPerHour,
		logger:        logger,
		now:           time.Now,
		revoked:       make(map[string]time.Time),
	}
}

type localUser struct {
	ID           string       `db:"id"`
	Email        string       `db:"email"`
	PasswordHash string       `db:"password_hash"`
	ConfirmedAt  sql.NullTime `db:"confirmed_at"`
}

func (u localUser) authUser() AuthUser {
	out := AuthUser{ID: u.ID, Email: u.Email}
	if u.ConfirmedAt.Valid {
		t := u.ConfirmedAt.Time
		out.EmailConfirmedAt = &t
	}
	return out
}

func (a *LocalAuth) SignUp(ctx context.Context, email, password string, opts SignUpOptions) (SignUpResult, error) {
	email = normalizeEmail(email)
	now := a.now().UTC()

	existing, err := a.userByEmail(ctx, email)
	switch {
	case err == nil && existing.ConfirmedAt.Valid:
		return SignUpResult{}, errLocalAlreadyRegistered
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return SignUpResult{}, a.dbError(err)
	}

	if a.emailsPerHour > 0 {
		var sent int
		const countQuery = `
			SELECT COUNT(1) FROM auth_local_codes
			WHERE email = $1 AND kind = 'otp' AND created_at > $2`
		if err := a.db.GetContext(ctx, &sent, countQuery, email, now.Add(-sendWindow)); err != nil {
			return SignUpResult{}, a.dbError(err)
		}
		if sent >= a.emailsPerHour {
			return SignUpResult{}, errLocalRateLimited
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return SignUpResult{}, err
	}

	var user localUser
	const upsert = `
		INSERT INTO auth_local_users (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET password_hash = EXCLUDED.password_hash
		RETURNING id, email, password_hash, confirmed_at`
	if err := a.db.GetContext(ctx, &user, upsert, ids.NewKSUID(), email, string(hash), now); err != nil {
		return SignUpResult{}, a.dbError(err)
	}

	otp, err := newOTP()
	if err != nil {
		return SignUpResult{}, err
	}
	link := ids.NewKSUID()
	const insertCode = `
		INSERT INTO auth_local_codes (code, email, kind, code_challenge, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	codes := []struct{ code, kind, challenge string }{
		{otp, "otp", ""},
		{link, "link", opts.CodeChallenge},
	}
	for _, c := range codes {
		if _, err := a.db.ExecContext(ctx, insertCode, c.code, email, c.kind, c.challenge, now.Add(localCodeTTL), now); err != nil {
			return SignUpResult{}, a.dbError(err)
		}
	}

	a.logger.Info("verification email",
		zap.String("email", email),
		zap.String("code", otp),
		zap.String("link", a.callbackURL(link, opts.EmailRedirectTo)),
	)

	u := user.authUser()
	u.UserMetadata = opts.Data
	return SignUpResult{User: &u}, nil
}

func (a *LocalAuth) SignInWithPassword(ctx context.Context, email, password string) (Session, error) {
	user, err := a.userByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, errLocalInvalidCredentials
		}
		return Session{}, a.dbError(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, errLocalInvalidCredentials
	}
	if !user.ConfirmedAt.Valid {
		return Session{}, errLocalNotConfirmed
	}
	return a.newSession(user.authUser())
}

func (a *LocalAuth) VerifyOTP(ctx context.Context, email, token string) (Session, error) {
	return a.consume(ctx, "otp", strings.TrimSpace(token), normalizeEmail(email), "")
}

// ExchangeCodeForSession redeems a link code. A code issued with a PKCE
// challenge needs the matching verifier.
func (a *LocalAuth) ExchangeCodeForSession(ctx context.Context, code, verifier string) (Session, error) {
	challenge := ""
	if verifier != "" {
		challenge = CodeChallenge(verifier)
	}
	return a.consume(ctx, "link", strings.TrimSpace(code), "", challenge)
}

func (a *LocalAuth) GetUser(ctx context.Context, accessToken string) (AuthUser, error) {
	claims, err := a.verify(accessToken)
	if err != nil {
		return AuthUser{}, err
	}
	var user localUser
	const query = `SELECT id, email, password_hash, confirmed_at FROM auth_local_users WHERE id = $1`
	if err := a.db.GetContext(ctx, &user, query, claims.Subject); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AuthUser{}, &Error{Status: http.StatusNotFound, Code: "user_not_found", Message: "User not found"}
		}
		return AuthUser{}, a.dbError(err)
	}
	return user.authUser(), nil
}

func (a *LocalAuth) SignOut(_ context.Context, accessToken string) error {
	claims, err := a.verify(accessToken)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	for id, exp := range a.revoked {
		if now.After(exp) {
			delete(a.revoked, id)
		}
	}
	exp := now.Add(localTokenTTL)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	a.revoked[claims.ID] = exp
	return nil
}

func (a *LocalAuth) consume(ctx context.Context, kind, code, email, challenge string) (Session, error) {
	if code == "" {
		return Session{}, errLocalInvalidCode
	}
	now := a.now().UTC()

	const claim = `
		UPDATE auth_local_codes SET consumed_at = $1
		WHERE kind = $2 AND code = $3 AND ($4 = '' OR email = $4)
			AND (code_challenge = '' OR code_challenge = $5)
			AND consumed_at IS NULL AND expires_at > $1
		RETURNING email`
	var owner string
	if err := a.db.GetContext(ctx, &owner, claim, now, kind, code, email, challenge); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, errLocalInvalidCode
		}
		return Session{}, a.dbError(err)
	}

	var user localUser
	const confirm = `
		UPDATE auth_local_users SET confirmed_at = COALESCE(confirmed_at, $1)
		WHERE email = $2
		RETURNING id, email, password_hash, confirmed_at`
	if err := a.db.GetContext(ctx, &user, confirm, now, owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, errLocalInvalidCode
		}
		return Session{}, a.dbError(err)
	}
	return a.newSession(user.authUser())
}

func (a *LocalAuth) newSession(user AuthUser) (Session, error) {
	now := a.now()
	token, err := issueAccessToken(user, ids.NewKSUID(), a.secret, now, localTokenTTL)
	if err != nil {
		return Session{}, err
	}
	return Session{
		AccessToken:  token,
		RefreshToken: ids.NewKSUID(),
		TokenType:    "bearer",
		ExpiresAt:    now.Add(localTokenTTL).UTC(),
		User:         user,
	}, nil
}

func (a *LocalAuth) verify(accessToken string) (AccessClaims, error) {
	claims, err := ParseAccessToken(accessToken, a.secret)
	if err != nil {
		return AccessClaims{}, errLocalBadJWT
	}
	if a.Revoked(claims.ID) {
		return AccessClaims{}, &Error{Status: http.StatusUnauthorized, Code: "session_not_found", Message: "Session not found"}
	}
	return claims, nil
}

// Revoked reports whether the access token with id tokenID was signed out.
func (a *LocalAuth) Revoked(tokenID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.revoked[tokenID]
	return ok
}

func (a *LocalAuth) userByEmail(ctx context.Context, email string) (localUser, error) {
	var user localUser
	const query = `SELECT id, email, password_hash, confirmed_at FROM auth_local_users WHERE email = $1`
	err := a.db.GetContext(ctx, &user, query, email)
	return user, err
}

func (a *LocalAuth) callbackURL(code, redirectTo string) string {
	base := redirectTo
	if base == "" {
		base = a.siteURL + "/auth/callback"
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "code=" + url.QueryEscape(code)
}

func (a *LocalAuth) dbError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{Err: err}
	}
	return &Error{Status: http.StatusInternalServerError, Message: "database error", Err: err}
}

func newOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
