package auth

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/jobboard/apiserver/internal/store"
	"github.com/jobboard/apiserver/types"
)

// Directory is the slice of the hosted tables the holder reads and writes.
// Lookups return store.ErrNotFound when no row matches.
type Directory interface {
	GetUser(ctx context.Context, id string) (types.User, error)
	CreateUser(ctx context.Context, user types.User) (types.User, error)
	HasJobSeekerProfile(ctx context.Context, userID string) (bool, error)
	HasEmployerProfile(ctx context.Context, userID string) (bool, error)
	SaveJobSeekerProfile(ctx context.Context, p types.JobSeekerProfile) error
	SaveEmployerProfile(ctx context.Context, p types.EmployerProfile) error
	ReplacePending(ctx context.Context, p types.PendingRegistration) (types.PendingRegistration, error)
	LatestPending(ctx context.Context, email string) (types.PendingRegistration, error)
	DeletePending(ctx context.Context, id string) error
}

type storeDirectory struct {
	users    *store.UserRepository
	pending  *store.PendingRegistrationRepository
	profiles *store.ProfileRepository
}

// NewDirectory returns a Directory over the store repositories.
func NewDirectory(db *sqlx.DB) Directory {
	return &storeDirectory{
		users:    store.NewUserRepository(db),
		pending:  store.NewPendingRegistrationRepository(db),
		profiles: store.NewProfileRepository(db),
	}
}

func (d *storeDirectory) GetUser(ctx context.Context, id string) (types.User, error) {
	return d.users.GetByID(ctx, id)
}

func (d *storeDirectory) CreateUser(ctx context.Context, user types.User) (types.User, error) {
	return d.users.Create(ctx, user)
}

func (d *storeDirectory) HasJobSeekerProfile(ctx context.Context, userID string) (bool, error) {
	_, err := d.profiles.GetJobSeeker(ctx, userID)
	return exists(err)
}

func (d *storeDirectory) HasEmployerProfile(ctx context.Context, userID string) (bool, error) {
	_, err := d.profiles.GetEmployer(ctx, userID)
	return exists(err)
}

func (d *storeDirectory) SaveJobSeekerProfile(ctx context.Context, p types.JobSeekerProfile) error {
	return d.profiles.UpsertJobSeeker(ctx, p)
}

func (d *storeDirectory) SaveEmployerProfile(ctx context.Context, p types.EmployerProfile) error {
	return d.profiles.UpsertEmployer(ctx, p)
}

func (d *storeDirectory) ReplacePending(ctx context.Context, p types.PendingRegistration) (types.PendingRegistration, error) {
	return d.pending.Replace(ctx, p)
}

func (d *storeDirectory) LatestPending(ctx context.Context, email string) (types.PendingRegistration, error) {
	return d.pending.LatestByEmail(ctx, email)
}

func (d *storeDirectory) DeletePending(ctx context.Context, id string) error {
	return d.pending.Delete(ctx, id)
}

func exists(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
