package services

import (
	"context"

	"github.com/jobboard/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
}

// UserService encapsulates user use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id string) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

// Role returns the role recorded for the user.
func (s *UserService) Role(ctx context.Context, id string) (types.Role, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.RoleUnset, err
	}
	return user.Role, nil
}
