// Package auth holds the client-side authentication state of one browser
// session or CLI profile and runs the registration and verification flow
// against the hosted backend.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jobboard/apiserver/internal/backend"
	"github.com/jobboard/apiserver/internal/localstate"
	"github.com/jobboard/apiserver/internal/retry"
	"github.com/jobboard/apiserver/internal/store"
	"github.com/jobboard/apiserver/types"
)

const (
	defaultCooldown   = 15 * time.Minute
	defaultMaxRetries = 3
	defaultBaseDelay  = 2 * time.Second
)

// Phase is the lifecycle stage of a Holder.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseHydrated
	PhaseReconciled
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseHydrated:
		return "hydrated"
	case PhaseReconciled:
		return "reconciled"
	case PhaseReady:
		return "ready"
	default:
		return "init"
	}
}

// State is a point-in-time copy of the holder state.
type State struct {
	Identity         *types.Identity `json:"user"`
	IsLoading        bool            `json:"isLoading"`
	IsRateLimited    bool            `json:"isRateLimited"`
	RateLimitResetAt *time.Time      `json:"rateLimitResetAt,omitempty"`
	Phase            Phase           `json:"-"`
}

// Event types accepted by HandleAuthEvent.
const (
	EventSignedIn  = "SIGNED_IN"
	EventSignedOut = "SIGNED_OUT"
)

// AuthEvent is a session change notification.
type AuthEvent struct {
	Type    string
	Session *backend.Session
}

// ClientSource hands out the backend client, or nil when unavailable.
type ClientSource interface {
	Client(ctx context.Context) *backend.Client
}

// Options tune a Holder. The zero value gives production behavior.
type Options struct {
	Logger *zap.Logger
	// Directory builds the table access for a client. Defaults to NewDirectory(c.DB).
	Directory func(c *backend.Client) Directory
	// Retry overrides the signup backoff; Retryable is always backend.IsRateLimited.
	Retry retry.Policy
	// Cooldown is how long signups stay blocked after retries run out.
	Cooldown time.Duration
	// EmailRedirectTo is the callback URL put into verification emails.
	EmailRedirectTo string
	Now             func() time.Time
}

// Holder is the auth/session state of one client. Operations that talk to
// the backend are serialized; Snapshot may be called at any time.
type Holder struct {
	source     ClientSource
	local      localstate.Store
	logger     *zap.Logger
	directory  func(c *backend.Client) Directory
	retry      retry.Policy
	cooldown   time.Duration
	redirectTo string
	now        func() time.Time

	op sync.Mutex

	mu      sync.RWMutex
	state   State
	session *backend.Session
	touched time.Time
}

// NewHolder constructs a Holder in PhaseInit.
func NewHolder(source ClientSource, local localstate.Store, opts Options) *Holder {
	h := &Holder{
		source:     source,
		local:      local,
		logger:     opts.Logger,
		directory:  opts.Directory,
		retry:      opts.Retry,
		cooldown:   opts.Cooldown,
		redirectTo: opts.EmailRedirectTo,
		now:        opts.Now,
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.directory == nil {
		h.directory = func(c *backend.Client) Directory { return NewDirectory(c.DB) }
	}
	if h.retry.MaxRetries == 0 && h.retry.BaseDelay == 0 {
		h.retry.MaxRetries = defaultMaxRetries
		h.retry.BaseDelay = defaultBaseDelay
	}
	h.retry.Retryable = backend.IsRateLimited
	if h.cooldown <= 0 {
		h.cooldown = defaultCooldown
	}
	if h.now == nil {
		h.now = time.Now
	}
	h.touched = h.now()
	return h
}

// Snapshot returns a copy of the current state.
func (h *Holder) Snapshot() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := h.state
	if s.Identity != nil {
		id := *s.Identity
		s.Identity = &id
	}
	if s.RateLimitResetAt != nil {
		t := *s.RateLimitResetAt
		s.RateLimitResetAt = &t
	}
	return s
}

// AccessToken returns the token of the current session, if any.
func (h *Holder) AccessToken() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.session == nil {
		return ""
	}
	return h.session.AccessToken
}

// LastActive is when the holder last ran an operation.
func (h *Holder) LastActive() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.touched
}

// Start runs the full lifecycle: Hydrate, Reconcile, then ready.
func (h *Holder) Start(ctx context.Context) error {
	if err := h.Hydrate(ctx); err != nil {
		return err
	}
	if err := h.Reconcile(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	h.state.Phase = PhaseReady
	h.mu.Unlock()
	return nil
}

type rateLimitBlob struct {
	Limited   bool      `json:"limited"`
	ResetTime time.Time `json:"resetTime"`
}

// Hydrate loads the cached identity, cooldown and session from local state.
// Unreadable blobs are dropped.
func (h *Holder) Hydrate(ctx context.Context) error {
	h.op.Lock()
	defer h.op.Unlock()

	var identity types.Identity
	hasIdentity, err := h.readBlob(ctx, localstate.KeyUser, &identity)
	if err != nil {
		return err
	}

	var limit rateLimitBlob
	hasLimit, err := h.readBlob(ctx, localstate.KeyRateLimit, &limit)
	if err != nil {
		return err
	}

	var session backend.Session
	hasSession, err := h.readBlob(ctx, localstate.KeySession, &session)
	if err != nil {
		return err
	}

	now := h.now()
	h.mu.Lock()
	defer h.mu.Unlock()
	if hasIdentity {
		h.state.Identity = &identity
	}
	if hasSession {
		h.session = &session
	}
	if hasLimit {
		if limit.Limited && limit.ResetTime.After(now) {
			reset := limit.ResetTime
			h.state.IsRateLimited = true
			h.state.RateLimitResetAt = &reset
		} else if err := h.local.Delete(ctx, localstate.KeyRateLimit); err != nil {
			h.logger.Warn("clear expired rate limit", zap.Error(err))
		}
	}
	h.state.Phase = PhaseHydrated
	return nil
}

// Reconcile checks the cached session against the backend. A rejected
// session clears the identity; a different live user replaces it. When the
// backend is unreachable the cached identity is kept.
func (h *Holder) Reconcile(ctx context.Context) error {
	h.op.Lock()
	defer h.op.Unlock()
	defer func() {
		h.mu.Lock()
		h.state.Phase = PhaseReconciled
		h.mu.Unlock()
	}()

	h.mu.RLock()
	session := h.session
	h.mu.RUnlock()
	if session == nil {
		return nil
	}

	client := h.source.Client(ctx)
	if client == nil {
		return nil
	}

	user, err := client.Auth.GetUser(ctx, session.AccessToken)
	if err != nil {
		if backend.IsNetwork(err) || ctx.Err() != nil {
			h.logger.Warn("session check skipped", zap.Error(err))
			return nil
		}
		h.logger.Info("cached session rejected", zap.Error(err))
		return h.applyEvent(ctx, client, AuthEvent{Type: EventSignedOut})
	}

	live := *session
	live.User = user
	return h.applyEvent(ctx, client, AuthEvent{Type: EventSignedIn, Session: &live})
}

// HandleAuthEvent applies a session change notification.
func (h *Holder) HandleAuthEvent(ctx context.Context, ev AuthEvent) error {
	h.op.Lock()
	defer h.op.Unlock()
	return h.applyEvent(ctx, h.source.Client(ctx), ev)
}

func (h *Holder) applyEvent(ctx context.Context, client *backend.Client, ev AuthEvent) error {
	switch ev.Type {
	case EventSignedOut:
		return h.clearIdentity(ctx)
	case EventSignedIn:
		if ev.Session == nil {
			return errors.New("signed-in event without session")
		}
		current := h.Snapshot().Identity
		if current != nil && current.ID == ev.Session.User.ID {
			return h.persistSession(ctx, ev.Session)
		}
		if client == nil {
			return ErrConfigurationMissing
		}
		identity := h.resolveIdentity(ctx, h.directory(client), ev.Session.User)
		return h.promote(ctx, identity, ev.Session)
	default:
		return nil
	}
}

// Login signs in with a password and caches the resulting identity.
func (h *Holder) Login(ctx context.Context, email, password string) (types.Identity, error) {
	h.op.Lock()
	defer h.op.Unlock()
	done := h.begin()
	defer done()

	client := h.source.Client(ctx)
	if client == nil {
		return types.Identity{}, ErrConfigurationMissing
	}

	session, err := client.Auth.SignInWithPassword(ctx, normalizeEmail(email), password)
	if err != nil {
		if backend.IsNetwork(err) {
			return types.Identity{}, newError(ErrNetwork, "", err)
		}
		return types.Identity{}, newError(ErrInvalidCredentials, "Invalid email or password", err)
	}

	identity := h.resolveIdentity(ctx, h.directory(client), session.User)
	if err := h.promote(ctx, identity, &session); err != nil {
		return types.Identity{}, err
	}
	return identity, nil
}

// Logout clears the local identity and, best effort, the backend session.
func (h *Holder) Logout(ctx context.Context) {
	h.op.Lock()
	defer h.op.Unlock()
	done := h.begin()
	defer done()

	token := h.AccessToken()
	if err := h.clearIdentity(ctx); err != nil {
		h.logger.Warn("clear local identity", zap.Error(err))
	}
	if token == "" {
		return
	}
	client := h.source.Client(ctx)
	if client == nil {
		return
	}
	if err := client.Auth.SignOut(ctx, token); err != nil {
		h.logger.Warn("remote sign out failed", zap.Error(err))
	}
}

// resolveIdentity looks up the role in the users table. When that fails the
// role is inferred from existing profile rows, and a missing users row is
// created for the inferred role.
func (h *Holder) resolveIdentity(ctx context.Context, dir Directory, user backend.AuthUser) types.Identity {
	identity := types.Identity{ID: user.ID, Email: user.Email}

	row, err := dir.GetUser(ctx, user.ID)
	if err == nil {
		identity.Role = row.Role
		if identity.Email == "" {
			identity.Email = row.Email
		}
		return identity
	}
	h.logger.Warn("user role lookup failed", zap.String("user_id", user.ID), zap.Error(err))

	if ok, perr := dir.HasJobSeekerProfile(ctx, user.ID); perr == nil && ok {
		identity.Role = types.RoleJobSeeker
	} else if ok, perr := dir.HasEmployerProfile(ctx, user.ID); perr == nil && ok {
		identity.Role = types.RoleEmployer
	}

	if identity.Role.Valid() && errors.Is(err, store.ErrNotFound) {
		if _, cerr := dir.CreateUser(ctx, types.User{ID: user.ID, Email: normalizeEmail(user.Email), Role: identity.Role}); cerr != nil {
			h.logger.Warn("create missing users row", zap.String("user_id", user.ID), zap.Error(cerr))
		}
	}
	return identity
}

func (h *Holder) begin() func() {
	h.mu.Lock()
	h.state.IsLoading = true
	h.touched = h.now()
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		h.state.IsLoading = false
		h.mu.Unlock()
	}
}

func (h *Holder) promote(ctx context.Context, identity types.Identity, session *backend.Session) error {
	h.mu.Lock()
	h.state.Identity = &identity
	h.mu.Unlock()

	if err := h.writeBlob(ctx, localstate.KeyUser, identity); err != nil {
		return err
	}
	return h.persistSession(ctx, session)
}

func (h *Holder) persistSession(ctx context.Context, session *backend.Session) error {
	h.mu.Lock()
	h.session = session
	h.mu.Unlock()
	if session == nil {
		return h.local.Delete(ctx, localstate.KeySession)
	}
	return h.writeBlob(ctx, localstate.KeySession, session)
}

func (h *Holder) clearIdentity(ctx context.Context) error {
	h.mu.Lock()
	h.state.Identity = nil
	h.session = nil
	h.mu.Unlock()

	return errors.Join(
		h.local.Delete(ctx, localstate.KeyUser),
		h.local.Delete(ctx, localstate.KeySession),
	)
}

func (h *Holder) setCooldown(ctx context.Context, resetAt time.Time) {
	h.mu.Lock()
	h.state.IsRateLimited = true
	h.state.RateLimitResetAt = &resetAt
	h.mu.Unlock()
	if err := h.writeBlob(ctx, localstate.KeyRateLimit, rateLimitBlob{Limited: true, ResetTime: resetAt}); err != nil {
		h.logger.Warn("persist rate limit", zap.Error(err))
	}
}

// activeCooldown returns the pending cooldown, clearing an expired one.
func (h *Holder) activeCooldown(ctx context.Context) *RateLimitedError {
	now := h.now()
	h.mu.Lock()
	limited, reset := h.state.IsRateLimited, h.state.RateLimitResetAt
	if limited && (reset == nil || !reset.After(now)) {
		h.state.IsRateLimited = false
		h.state.RateLimitResetAt = nil
		limited = false
	}
	h.mu.Unlock()

	if !limited {
		if reset != nil {
			if err := h.local.Delete(ctx, localstate.KeyRateLimit); err != nil {
				h.logger.Warn("clear expired rate limit", zap.Error(err))
			}
		}
		return nil
	}
	return &RateLimitedError{ResetAt: *reset, RetryAfter: reset.Sub(now)}
}

func (h *Holder) readBlob(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := h.local.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		h.logger.Warn("dropping unreadable local state", zap.String("key", key), zap.Error(err))
		if derr := h.local.Delete(ctx, key); derr != nil {
			return false, derr
		}
		return false, nil
	}
	return true, nil
}

func (h *Holder) writeBlob(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.local.Set(ctx, key, raw)
}
