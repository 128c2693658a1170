package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jobboard/apiserver/internal/backend"
	"github.com/jobboard/apiserver/internal/localstate"
	"github.com/jobboard/apiserver/internal/mq"
	"github.com/jobboard/apiserver/internal/retry"
	"github.com/jobboard/apiserver/internal/store"
	"github.com/jobboard/apiserver/types"
)

// Outcome is how a registration or verification ended.
type Outcome string

const (
	// OutcomeVerificationPending means the account exists and waits for the
	// emailed code or link.
	OutcomeVerificationPending Outcome = "verification_pending"
	// OutcomeSignedIn means the holder is now authenticated.
	OutcomeSignedIn Outcome = "signed_in"
)

const (
	noticeCheckEmail = "Registration successful! Please check your email for a verification code or link to activate your account."
	noticeSignedIn   = "Welcome! Your account is ready."
	noticeRecovered  = "You already have an account, so we signed you in."
)

// Result describes a finished registration step.
type Result struct {
	Outcome  Outcome         `json:"outcome"`
	Identity *types.Identity `json:"user,omitempty"`
	Notice   string          `json:"notice"`
	// Created is set when this step inserted the users row.
	Created bool `json:"created"`
	// Warning is set when the account works but something non-fatal failed,
	// such as ErrProfileCreationFailed.
	Warning error `json:"-"`
}

type registrationEvent struct {
	Email string     `json:"email"`
	Role  types.Role `json:"role"`
}

type verifiedEvent struct {
	UserID string     `json:"userId"`
	Email  string     `json:"email"`
	Role   types.Role `json:"role"`
}

// Register signs up a new account. Rate-limit refusals are retried with
// backoff; once retries run out a cooldown blocks further attempts.
func (h *Holder) Register(ctx context.Context, reg types.Registration) (Result, error) {
	if err := reg.Validate(); err != nil {
		return Result{}, err
	}

	h.op.Lock()
	defer h.op.Unlock()
	done := h.begin()
	defer done()

	if rl := h.activeCooldown(ctx); rl != nil {
		return Result{}, rl
	}

	client := h.source.Client(ctx)
	if client == nil {
		return Result{}, ErrConfigurationMissing
	}
	dir := h.directory(client)

	creds := reg.Credentials()
	creds.Email = normalizeEmail(creds.Email)
	verifier, err := backend.NewCodeVerifier()
	if err != nil {
		return Result{}, newError(ErrRegistrationFailed, "Registration failed. Please try again.", err)
	}
	opts := backend.SignUpOptions{
		EmailRedirectTo: h.redirectTo,
		Data:            map[string]any{"role": string(reg.Role())},
		CodeChallenge:   backend.CodeChallenge(verifier),
	}

	policy := h.retry
	policy.OnRetry = func(n int, delay time.Duration, err error) {
		h.logger.Info("signup rate limited, retrying",
			zap.Int("retry", n), zap.Duration("delay", delay), zap.Error(err))
	}

	var res backend.SignUpResult
	err = retry.Do(ctx, policy, func(ctx context.Context) error {
		var err error
		res, err = client.Auth.SignUp(ctx, creds.Email, creds.Password, opts)
		return err
	})
	if err != nil {
		return h.signUpFailed(ctx, client, dir, reg, creds, err)
	}

	if res.User == nil {
		session, err := client.Auth.SignInWithPassword(ctx, creds.Email, creds.Password)
		if err != nil {
			return Result{}, newError(ErrRegistrationFailed, "Registration failed. Please try again.", err)
		}
		return h.signInExisting(ctx, client, dir, reg, session)
	}

	pending := reg.Pending()
	pending.Email = creds.Email

	if res.Session != nil {
		return h.complete(ctx, client, dir, *res.Session, &pending)
	}

	if _, err := dir.ReplacePending(ctx, pending); err != nil {
		h.logger.Error("stage pending registration", zap.String("email", creds.Email), zap.Error(err))
		return Result{}, newError(ErrRegistrationFailed, "Failed to save your registration details. Please try again.", err)
	}
	if err := h.writeBlob(ctx, localstate.KeyCodeVerifier, verifier); err != nil {
		h.logger.Warn("save code verifier, email link will not work here", zap.Error(err))
	}
	client.Events.Publish(ctx, mq.EventRegistrationPending, registrationEvent{Email: creds.Email, Role: reg.Role()})

	return Result{Outcome: OutcomeVerificationPending, Notice: noticeCheckEmail}, nil
}

func (h *Holder) signUpFailed(ctx context.Context, client *backend.Client, dir Directory, reg types.Registration, creds types.Credentials, err error) (Result, error) {
	switch {
	case backend.IsRateLimited(err):
		resetAt := h.now().Add(h.cooldown)
		h.setCooldown(ctx, resetAt)
		h.logger.Warn("signup rate limit persisted", zap.String("email", creds.Email), zap.Time("reset_at", resetAt))
		return Result{}, &RateLimitedError{ResetAt: resetAt, RetryAfter: h.cooldown}
	case backend.IsAlreadyRegistered(err):
		session, serr := client.Auth.SignInWithPassword(ctx, creds.Email, creds.Password)
		if serr != nil {
			return Result{}, newError(ErrAlreadyRegistered, "User already registered. Please sign in instead.", err)
		}
		return h.signInExisting(ctx, client, dir, reg, session)
	case ctx.Err() != nil:
		return Result{}, ctx.Err()
	case backend.IsNetwork(err):
		return Result{}, newError(ErrNetwork, "", err)
	default:
		return Result{}, newError(ErrRegistrationFailed, remoteMessage(err), err)
	}
}

// signInExisting finishes a registration that turned out to be a sign-in.
// A missing users row is created together with a profile.
func (h *Holder) signInExisting(ctx context.Context, client *backend.Client, dir Directory, reg types.Registration, session backend.Session) (Result, error) {
	row, err := dir.GetUser(ctx, session.User.ID)
	if err == nil {
		identity := row.Identity()
		if err := h.promote(ctx, identity, &session); err != nil {
			return Result{}, err
		}
		return Result{Outcome: OutcomeSignedIn, Identity: &identity, Notice: noticeRecovered}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		h.logger.Warn("user lookup during recovery", zap.String("user_id", session.User.ID), zap.Error(err))
	}

	pending := reg.Pending()
	pending.Email = normalizeEmail(session.User.Email)
	if pending.Email == "" {
		pending.Email = normalizeEmail(reg.Credentials().Email)
	}
	return h.createAccount(ctx, client, dir, session, pending, noticeRecovered)
}

// VerifyOTP completes a pending registration with the emailed code.
func (h *Holder) VerifyOTP(ctx context.Context, email, code string) (Result, error) {
	return h.verify(ctx, func(ctx context.Context, auth backend.Auth) (backend.Session, error) {
		return auth.VerifyOTP(ctx, normalizeEmail(email), strings.TrimSpace(code))
	})
}

// ExchangeCode completes a pending registration with the code carried by
// the email link, proving it with the verifier saved by Register.
func (h *Holder) ExchangeCode(ctx context.Context, code string) (Result, error) {
	return h.verify(ctx, func(ctx context.Context, auth backend.Auth) (backend.Session, error) {
		var verifier string
		if _, err := h.readBlob(ctx, localstate.KeyCodeVerifier, &verifier); err != nil {
			h.logger.Warn("read code verifier", zap.Error(err))
		}
		session, err := auth.ExchangeCodeForSession(ctx, strings.TrimSpace(code), verifier)
		if err != nil {
			return backend.Session{}, err
		}
		if err := h.local.Delete(ctx, localstate.KeyCodeVerifier); err != nil {
			h.logger.Warn("clear code verifier", zap.Error(err))
		}
		return session, nil
	})
}

func (h *Holder) verify(ctx context.Context, exchange func(context.Context, backend.Auth) (backend.Session, error)) (Result, error) {
	h.op.Lock()
	defer h.op.Unlock()
	done := h.begin()
	defer done()

	client := h.source.Client(ctx)
	if client == nil {
		return Result{}, ErrConfigurationMissing
	}

	session, err := exchange(ctx, client.Auth)
	if err != nil {
		if backend.IsNetwork(err) {
			return Result{}, newError(ErrNetwork, "", err)
		}
		return Result{}, newError(ErrInvalidCredentials, "Invalid or expired verification code.", err)
	}
	return h.complete(ctx, client, h.directory(client), session, nil)
}

// complete promotes a verified session. An existing users row wins;
// otherwise the staged registration (or a job seeker default) becomes the
// users row and profile.
func (h *Holder) complete(ctx context.Context, client *backend.Client, dir Directory, session backend.Session, pending *types.PendingRegistration) (Result, error) {
	row, err := dir.GetUser(ctx, session.User.ID)
	if err == nil {
		identity := row.Identity()
		if err := h.promote(ctx, identity, &session); err != nil {
			return Result{}, err
		}
		return Result{Outcome: OutcomeSignedIn, Identity: &identity, Notice: noticeSignedIn}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return Result{}, newError(ErrRemoteFailure, "Failed to load your account. Please try again.", err)
	}

	email := normalizeEmail(session.User.Email)
	if pending == nil {
		staged, err := dir.LatestPending(ctx, email)
		switch {
		case err == nil:
			pending = &staged
		case errors.Is(err, store.ErrNotFound):
			h.logger.Info("no pending registration, defaulting to job seeker", zap.String("email", email))
			pending = &types.PendingRegistration{Email: email, Role: types.RoleJobSeeker}
		default:
			h.logger.Warn("pending registration lookup failed", zap.String("email", email), zap.Error(err))
			pending = &types.PendingRegistration{Email: email, Role: types.RoleJobSeeker}
		}
	}
	if pending.Email == "" {
		pending.Email = email
	}
	return h.createAccount(ctx, client, dir, session, *pending, noticeSignedIn)
}

func (h *Holder) createAccount(ctx context.Context, client *backend.Client, dir Directory, session backend.Session, pending types.PendingRegistration, notice string) (Result, error) {
	if !pending.Role.Valid() {
		pending.Role = types.RoleJobSeeker
	}

	user := types.User{
		ID:                 session.User.ID,
		Email:              pending.Email,
		Role:               pending.Role,
		FirstName:          pending.FirstName,
		LastName:           pending.LastName,
		CompanyName:        pending.CompanyName,
		CompanyWebsite:     pending.CompanyWebsite,
		CompanyDescription: pending.CompanyDescription,
		Industry:           pending.Industry,
	}
	if _, err := dir.CreateUser(ctx, user); err != nil {
		h.logger.Error("create users row", zap.String("user_id", user.ID), zap.Error(err))
		return Result{}, newError(ErrRemoteFailure, "Failed to create your account record. Please try again.", err)
	}

	result := Result{Outcome: OutcomeSignedIn, Notice: notice, Created: true}
	if err := h.createProfile(ctx, dir, user, pending); err != nil {
		h.logger.Error("create profile", zap.String("user_id", user.ID), zap.Error(err))
		result.Warning = newError(ErrProfileCreationFailed,
			"Your account was created, but we couldn't set up your profile. You can complete it from your profile page.", err)
	}

	if pending.ID != "" {
		if err := dir.DeletePending(ctx, pending.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			h.logger.Warn("delete pending registration", zap.String("id", pending.ID), zap.Error(err))
		}
	}
	client.Events.Publish(ctx, mq.EventAccountVerified, verifiedEvent{UserID: user.ID, Email: user.Email, Role: user.Role})

	identity := user.Identity()
	if err := h.promote(ctx, identity, &session); err != nil {
		return Result{}, err
	}
	result.Identity = &identity
	return result, nil
}

func (h *Holder) createProfile(ctx context.Context, dir Directory, user types.User, pending types.PendingRegistration) error {
	if user.Role == types.RoleEmployer {
		return dir.SaveEmployerProfile(ctx, types.EmployerProfile{
			UserID:             user.ID,
			CompanyName:        orDefault(pending.CompanyName, "Company"),
			Email:              user.Email,
			CompanyWebsite:     pending.CompanyWebsite,
			Industry:           pending.Industry,
			CompanyDescription: pending.CompanyDescription,
			ContactFirstName:   orDefault(pending.FirstName, "Contact"),
			ContactLastName:    orDefault(pending.LastName, "Person"),
		})
	}
	return dir.SaveJobSeekerProfile(ctx, types.JobSeekerProfile{
		UserID:    user.ID,
		FirstName: orDefault(pending.FirstName, "New"),
		LastName:  orDefault(pending.LastName, "User"),
		Email:     user.Email,
		Headline:  pending.Headline,
		Bio:       pending.Bio,
	})
}

func remoteMessage(err error) string {
	var be *backend.Error
	if errors.As(err, &be) && be.Message != "" {
		return be.Message
	}
	return "Registration failed. Please try again."
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
