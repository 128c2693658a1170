package services

import (
	"context"
	"errors"

	"github.com/jobboard/apiserver/internal/store"
	"github.com/jobboard/apiserver/types"
)

// ProfileRepository defines persistence operations for profiles.
type ProfileRepository interface {
	GetJobSeeker(ctx context.Context, userID string) (types.JobSeekerProfile, error)
	UpsertJobSeeker(ctx context.Context, p types.JobSeekerProfile) error
	GetEmployer(ctx context.Context, userID string) (types.EmployerProfile, error)
	UpsertEmployer(ctx context.Context, p types.EmployerProfile) error
}

// ProfileService reads and writes profiles. Reads never fail for a missing
// row: they fall back to the users row and then to an empty profile.
type ProfileService struct {
	profiles ProfileRepository
	users    *UserService
}

func NewProfileService(profiles ProfileRepository, users UserRepository) *ProfileService {
	return &ProfileService{profiles: profiles, users: NewUserService(users)}
}

func (s *ProfileService) JobSeeker(ctx context.Context, userID string) (types.JobSeekerProfile, error) {
	p, err := s.profiles.GetJobSeeker(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.JobSeekerProfile{}, err
	}

	user, err := s.users.GetByID(ctx, userID)
	switch {
	case err == nil:
		return types.JobSeekerProfile{
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Email:     user.Email,
		}, nil
	case errors.Is(err, store.ErrNotFound):
		return types.JobSeekerProfile{}, nil
	default:
		return types.JobSeekerProfile{}, err
	}
}

func (s *ProfileService) SaveJobSeeker(ctx context.Context, p types.JobSeekerProfile) error {
	return s.profiles.UpsertJobSeeker(ctx, p)
}

func (s *ProfileService) Employer(ctx context.Context, userID string) (types.EmployerProfile, error) {
	p, err := s.profiles.GetEmployer(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return types.EmployerProfile{}, err
	}

	user, err := s.users.GetByID(ctx, userID)
	switch {
	case err == nil:
		return types.EmployerProfile{
			CompanyName:        user.CompanyName,
			Email:              user.Email,
			CompanyWebsite:     user.CompanyWebsite,
			Industry:           user.Industry,
			CompanyDescription: user.CompanyDescription,
		}, nil
	case errors.Is(err, store.ErrNotFound):
		return types.EmployerProfile{}, nil
	default:
		return types.EmployerProfile{}, err
	}
}

func (s *ProfileService) SaveEmployer(ctx context.Context, p types.EmployerProfile) error {
	return s.profiles.UpsertEmployer(ctx, p)
}
