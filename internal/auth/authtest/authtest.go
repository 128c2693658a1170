// Package authtest provides in-memory stand-ins for the auth service and
// the hosted tables, for tests of code built on package auth.
package authtest

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/jobboard/apiserver/internal/backend"
	"github.com/jobboard/apiserver/internal/store"
	"github.com/jobboard/apiserver/types"
)

// Auth is a backend.Auth whose behavior is set per test. Unset hooks
// reject the call.
type Auth struct {
	mu sync.Mutex

	OnSignUp    func(email, password string, opts backend.SignUpOptions) (backend.SignUpResult, error)
	OnSignIn    func(email, password string) (backend.Session, error)
	OnVerifyOTP func(email, token string) (backend.Session, error)
	OnExchange  func(code string) (backend.Session, error)
	OnGetUser   func(token string) (backend.AuthUser, error)
	SignOutErr  error

	SignUpCalls int
	SignUpOpts  []backend.SignUpOptions
	Verifiers   []string
	SignOuts    []string
}

var errRejected = &backend.Error{Status: http.StatusBadRequest, Code: "invalid_credentials", Message: "Invalid login credentials"}

func (a *Auth) SignUp(_ context.Context, email, password string, opts backend.SignUpOptions) (backend.SignUpResult, error) {
	a.mu.Lock()
	a.SignUpCalls++
	a.SignUpOpts = append(a.SignUpOpts, opts)
	a.mu.Unlock()
	if a.OnSignUp == nil {
		return backend.SignUpResult{}, errRejected
	}
	return a.OnSignUp(email, password, opts)
}

func (a *Auth) SignInWithPassword(_ context.Context, email, password string) (backend.Session, error) {
	if a.OnSignIn == nil {
		return backend.Session{}, errRejected
	}
	return a.OnSignIn(email, password)
}

func (a *Auth) VerifyOTP(_ context.Context, email, token string) (backend.Session, error) {
	if a.OnVerifyOTP == nil {
		return backend.Session{}, errRejected
	}
	return a.OnVerifyOTP(email, token)
}

func (a *Auth) ExchangeCodeForSession(_ context.Context, code, verifier string) (backend.Session, error) {
	a.mu.Lock()
	a.Verifiers = append(a.Verifiers, verifier)
	a.mu.Unlock()
	if a.OnExchange == nil {
		return backend.Session{}, errRejected
	}
	return a.OnExchange(code)
}

func (a *Auth) GetUser(_ context.Context, token string) (backend.AuthUser, error) {
	if a.OnGetUser == nil {
		return backend.AuthUser{}, &backend.Error{Status: http.StatusUnauthorized, Message: "invalid JWT"}
	}
	return a.OnGetUser(token)
}

func (a *Auth) SignOut(_ context.Context, token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.SignOuts = append(a.SignOuts, token)
	return a.SignOutErr
}

// Session returns a session for user id with token "token-<id>".
func Session(id, email string) backend.Session {
	return backend.Session{
		AccessToken: "token-" + id,
		TokenType:   "bearer",
		User:        backend.AuthUser{ID: id, Email: email},
	}
}

// Directory keeps users, profiles and pending registrations in maps.
type Directory struct {
	mu sync.Mutex

	Users     map[string]types.User
	Seekers   map[string]types.JobSeekerProfile
	Employers map[string]types.EmployerProfile
	Pending   []types.PendingRegistration

	// GetUserErr and ProfileErr force failures of user lookups and profile writes.
	GetUserErr error
	ProfileErr error

	nextID int
}

func NewDirectory() *Directory {
	return &Directory{
		Users:     make(map[string]types.User),
		Seekers:   make(map[string]types.JobSeekerProfile),
		Employers: make(map[string]types.EmployerProfile),
	}
}

func (d *Directory) GetUser(_ context.Context, id string) (types.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.GetUserErr != nil {
		return types.User{}, d.GetUserErr
	}
	u, ok := d.Users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (d *Directory) CreateUser(_ context.Context, user types.User) (types.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Users[user.ID] = user
	return user, nil
}

func (d *Directory) HasJobSeekerProfile(_ context.Context, userID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.Seekers[userID]
	return ok, nil
}

func (d *Directory) HasEmployerProfile(_ context.Context, userID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.Employers[userID]
	return ok, nil
}

func (d *Directory) SaveJobSeekerProfile(_ context.Context, p types.JobSeekerProfile) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ProfileErr != nil {
		return d.ProfileErr
	}
	d.Seekers[p.UserID] = p
	return nil
}

func (d *Directory) SaveEmployerProfile(_ context.Context, p types.EmployerProfile) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ProfileErr != nil {
		return d.ProfileErr
	}
	d.Employers[p.UserID] = p
	return nil
}

// ReplacePending drops older rows for the email before appending p.
func (d *Directory) ReplacePending(_ context.Context, p types.PendingRegistration) (types.PendingRegistration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.Pending[:0]
	for _, row := range d.Pending {
		if row.Email != p.Email {
			kept = append(kept, row)
		}
	}
	d.nextID++
	p.ID = "pending-" + strconv.Itoa(d.nextID)
	d.Pending = append(kept, p)
	return p, nil
}

func (d *Directory) LatestPending(_ context.Context, email string) (types.PendingRegistration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.Pending) - 1; i >= 0; i-- {
		if d.Pending[i].Email == email {
			return d.Pending[i], nil
		}
	}
	return types.PendingRegistration{}, store.ErrNotFound
}

func (d *Directory) DeletePending(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, row := range d.Pending {
		if row.ID == id {
			d.Pending = append(d.Pending[:i], d.Pending[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}
