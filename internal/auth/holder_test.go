package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jobboard/apiserver/internal/auth/authtest"
	"github.com/jobboard/apiserver/internal/backend"
	"github.com/jobboard/apiserver/internal/localstate"
	"github.com/jobboard/apiserver/types"
)

func seedBlob(t *testing.T, s localstate.Store, key string, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), key, raw))
}

func TestHydrate_DropsCorruptBlobs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(&authtest.Auth{})
	require.NoError(t, h.local.Set(ctx, localstate.KeyUser, []byte("{not json")))
	require.NoError(t, h.local.Set(ctx, localstate.KeyRateLimit, []byte("[]")))

	require.NoError(t, h.holder.Hydrate(ctx))

	state := h.holder.Snapshot()
	require.Nil(t, state.Identity)
	require.False(t, state.IsRateLimited)
	require.Equal(t, PhaseHydrated, state.Phase)

	raw, err := h.local.Get(ctx, localstate.KeyUser)
	require.NoError(t, err)
	require.Nil(t, raw)
	raw, err = h.local.Get(ctx, localstate.KeyRateLimit)
	require.NoError(t, err)
	require.Nil(t, raw)
}

func TestHydrate_RestoresIdentityAndCooldown(t *testing.T) {
	ctx := context.Background()
	h := newHarness(&authtest.Auth{})
	seedBlob(t, h.local, localstate.KeyUser, types.Identity{ID: "u1", Email: "a@b.co", Role: types.RoleEmployer})
	seedBlob(t, h.local, localstate.KeyRateLimit, rateLimitBlob{Limited: true, ResetTime: h.now.Add(5 * time.Minute)})

	require.NoError(t, h.holder.Hydrate(ctx))

	state := h.holder.Snapshot()
	require.NotNil(t, state.Identity)
	require.Equal(t, types.RoleEmployer, state.Identity.Role)
	require.True(t, state.IsRateLimited)
	require.Equal(t, h.now.Add(5*time.Minute), *state.RateLimitResetAt)
}

func TestHydrate_ClearsExpiredCooldown(t *testing.T) {
	ctx := context.Background()
	h := newHarness(&authtest.Auth{})
	seedBlob(t, h.local, localstate.KeyRateLimit, rateLimitBlob{Limited: true, ResetTime: h.now.Add(-time.Minute)})

	require.NoError(t, h.holder.Hydrate(ctx))

	require.False(t, h.holder.Snapshot().IsRateLimited)
	raw, err := h.local.Get(ctx, localstate.KeyRateLimit)
	require.NoError(t, err)
	require.Nil(t, raw)
}

func TestStart_RejectedSessionSignsOut(t *testing.T) {
	ctx := context.Background()
	h := newHarness(&authtest.Auth{
		OnGetUser: func(string) (backend.AuthUser, error) {
			return backend.AuthUser{}, &backend.Error{Status: 401, Message: "invalid JWT"}
		},
	})
	seedBlob(t, h.local, localstate.KeyUser, types.Identity{ID: "u1", Email: "a@b.co", Role: types.RoleJobSeeker})
	seedBlob(t, h.local, localstate.KeySession, authtest.Session("u1", "a@b.co"))

	require.NoError(t, h.holder.Start(ctx))

	state := h.holder.Snapshot()
	require.Nil(t, state.Identity)
	require.Equal(t, PhaseReady, state.Phase)
	require.Empty(t, h.holder.AccessToken())
	raw, err := h.local.Get(ctx, localstate.KeyUser)
	require.NoError(t, err)
	require.Nil(t, raw)
}

func TestStart_UnreachableBackendKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(&authtest.Auth{
		OnGetUser: func(string) (backend.AuthUser, error) {
			return backend.AuthUser{}, &backend.Error{Err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}}
		},
	})
	seedBlob(t, h.local, localstate.KeyUser, types.Identity{ID: "u1", Email: "a@b.co", Role: types.RoleJobSeeker})
	seedBlob(t, h.local, localstate.KeySession, authtest.Session("u1", "a@b.co"))

	require.NoError(t, h.holder.Start(ctx))

	state := h.holder.Snapshot()
	require.NotNil(t, state.Identity)
	require.Equal(t, "u1", state.Identity.ID)
	require.Equal(t, "token-u1", h.holder.AccessToken())
}

func TestStart_DifferentLiveUserReplacesIdentity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(&authtest.Auth{
		OnGetUser: func(string) (backend.AuthUser, error) {
			return backend.AuthUser{ID: "u2", Email: "c@d.co"}, nil
		},
	})
	h.dir.Users["u2"] = types.User{ID: "u2", Email: "c@d.co", Role: types.RoleEmployer}
	seedBlob(t, h.local, localstate.KeyUser, types.Identity{ID: "u1", Email: "a@b.co", Role: types.RoleJobSeeker})
	seedBlob(t, h.local, localstate.KeySession, authtest.Session("u1", "a@b.co"))

	require.NoError(t, h.holder.Start(ctx))

	state := h.holder.Snapshot()
	require.Equal(t, &types.Identity{ID: "u2", Email: "c@d.co", Role: types.RoleEmployer}, state.Identity)
}

func TestLogin_InfersRoleAndCreatesUserRow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(&authtest.Auth{
		OnSignIn: func(email, password string) (backend.Session, error) {
			require.Equal(t, "ann@example.com", email)
			return authtest.Session("u1", email), nil
		},
	})
	h.dir.Employers["u1"] = types.EmployerProfile{UserID: "u1", CompanyName: "Acme"}

	identity, err := h.holder.Login(ctx, " Ann@Example.com ", "secret123")
	require.NoError(t, err)
	require.Equal(t, types.RoleEmployer, identity.Role)

	row, ok := h.dir.Users["u1"]
	require.True(t, ok)
	require.Equal(t, types.RoleEmployer, row.Role)

	state := h.holder.Snapshot()
	require.False(t, state.IsLoading)
	require.Equal(t, &identity, state.Identity)

	var cached types.Identity
	raw, err := h.local.Get(ctx, localstate.KeyUser)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &cached))
	require.Equal(t, identity, cached)
}

func TestLogin_CreatedUserRowHasNormalizedEmail(t *testing.T) {
	h := newHarness(&authtest.Auth{
		OnSignIn: func(string, string) (backend.Session, error) {
			return authtest.Session("u2", " Bob@Example.COM "), nil
		},
	})
	h.dir.Seekers["u2"] = types.JobSeekerProfile{UserID: "u2", FirstName: "Bob"}

	_, err := h.holder.Login(context.Background(), "bob@example.com", "secret123")
	require.NoError(t, err)
	require.Equal(t, "bob@example.com", h.dir.Users["u2"].Email)
	require.Equal(t, types.RoleJobSeeker, h.dir.Users["u2"].Role)
}

func TestLogin_UsesUsersRowRole(t *testing.T) {
	h := newHarness(&authtest.Auth{
		OnSignIn: func(email, _ string) (backend.Session, error) { return authtest.Session("u1", email), nil },
	})
	h.dir.Users["u1"] = types.User{ID: "u1", Email: "a@b.co", Role: types.RoleJobSeeker}
	h.dir.Employers["u1"] = types.EmployerProfile{UserID: "u1"}

	identity, err := h.holder.Login(context.Background(), "a@b.co", "secret123")
	require.NoError(t, err)
	require.Equal(t, types.RoleJobSeeker, identity.Role)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	h := newHarness(&authtest.Auth{})

	_, err := h.holder.Login(context.Background(), "a@b.co", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.Equal(t, "Invalid email or password", UserMessage(err))
	require.Nil(t, h.holder.Snapshot().Identity)
}

func TestLogin_NoBackend(t *testing.T) {
	h := NewHolder(backend.NewStaticAccessor(nil), localstate.NewMemoryStore(), Options{})

	_, err := h.Login(context.Background(), "a@b.co", "secret123")
	require.ErrorIs(t, err, ErrConfigurationMissing)
}

func TestLogout_NeverFails(t *testing.T) {
	ctx := context.Background()
	auth := &authtest.Auth{
		OnSignIn:   func(email, _ string) (backend.Session, error) { return authtest.Session("u1", email), nil },
		SignOutErr: errors.New("boom"),
	}
	h := newHarness(auth)
	h.dir.Users["u1"] = types.User{ID: "u1", Email: "a@b.co", Role: types.RoleJobSeeker}
	_, err := h.holder.Login(ctx, "a@b.co", "secret123")
	require.NoError(t, err)

	h.holder.Logout(ctx)

	require.Nil(t, h.holder.Snapshot().Identity)
	require.Equal(t, []string{"token-u1"}, auth.SignOuts)
	for _, key := range []string{localstate.KeyUser, localstate.KeySession} {
		raw, err := h.local.Get(ctx, key)
		require.NoError(t, err)
		require.Nil(t, raw, key)
	}
}

func TestHandleAuthEvent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(&authtest.Auth{})
	h.dir.Users["u1"] = types.User{ID: "u1", Email: "a@b.co", Role: types.RoleEmployer}
	s := authtest.Session("u1", "a@b.co")

	require.NoError(t, h.holder.HandleAuthEvent(ctx, AuthEvent{Type: EventSignedIn, Session: &s}))
	require.Equal(t, types.RoleEmployer, h.holder.Snapshot().Identity.Role)

	require.NoError(t, h.holder.HandleAuthEvent(ctx, AuthEvent{Type: EventSignedOut}))
	require.Nil(t, h.holder.Snapshot().Identity)
}

func TestPhaseString(t *testing.T) {
	require.Equal(t, "init", PhaseInit.String())
	require.Equal(t, "ready", PhaseReady.String())
}
