package services

import (
	"context"
	"errors"
	"time"

	"github.com/jobboard/apiserver/internal/ids"
	"github.com/jobboard/apiserver/internal/listing"
	"github.com/jobboard/apiserver/internal/mq"
	"github.com/jobboard/apiserver/internal/store"
	"github.com/jobboard/apiserver/types"
)

// ErrNotEmployer is returned when a non-employer tries to post a job.
var ErrNotEmployer = errors.New("only employers can post jobs")

// JobRepository defines persistence operations for job postings.
type JobRepository interface {
	ListActive(ctx context.Context, now time.Time) ([]types.JobPosting, error)
	Get(ctx context.Context, id string) (types.JobPostingDetail, error)
	Create(ctx context.Context, job types.JobPosting) (types.JobPosting, error)
}

// EventPublisher emits domain events.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any)
}

// JobService encapsulates job posting use-cases.
type JobService struct {
	repo   JobRepository
	users  *UserService
	events EventPublisher
	now    func() time.Time
}

func NewJobService(repo JobRepository, users UserRepository, events EventPublisher) *JobService {
	return &JobService{repo: repo, users: NewUserService(users), events: events, now: time.Now}
}

// List returns the active postings whose location matches the filter.
func (s *JobService) List(ctx context.Context, location string) ([]types.JobPosting, error) {
	jobs, err := s.repo.ListActive(ctx, s.now().UTC())
	if err != nil {
		return nil, err
	}
	return listing.FilterByLocation(jobs, location), nil
}

func (s *JobService) Get(ctx context.Context, id string) (types.JobPostingDetail, error) {
	return s.repo.Get(ctx, id)
}

type jobPostedEvent struct {
	ID         string `json:"id"`
	EmployerID string `json:"employerId"`
	Title      string `json:"title"`
	Location   string `json:"location"`
}

// Create validates and stores a posting on behalf of employerID.
func (s *JobService) Create(ctx context.Context, employerID string, job types.JobPosting) (types.JobPosting, error) {
	role, err := s.users.Role(ctx, employerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.JobPosting{}, ErrNotEmployer
		}
		return types.JobPosting{}, err
	}
	if role != types.RoleEmployer {
		return types.JobPosting{}, ErrNotEmployer
	}

	job.Normalize()
	if err := job.Validate(); err != nil {
		return types.JobPosting{}, err
	}
	job.ID = ids.NewSnowflakeID()
	job.EmployerID = employerID

	created, err := s.repo.Create(ctx, job)
	if err != nil {
		return types.JobPosting{}, err
	}
	if s.events != nil {
		s.events.Publish(ctx, mq.EventJobPosted, jobPostedEvent{
			ID:         created.ID,
			EmployerID: created.EmployerID,
			Title:      created.Title,
			Location:   created.Location,
		})
	}
	return created, nil
}
