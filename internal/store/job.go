package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jobboard/apiserver/types"
)

const jobColumns = `jp.id, jp.employer_id, jp.title, jp.company_name, jp.location, jp.description,
	jp.application_instructions, jp.employment_type, jp.experience_level,
	jp.salary_min, jp.salary_max, jp.salary_currency, jp.expires_at, jp.created_at, jp.updated_at`

// JobRepository handles persistence for job postings.
type JobRepository struct {
	db *sqlx.DB
}

func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// ListActive returns postings that have not expired at now, most recently
// updated first.
func (r *JobRepository) ListActive(ctx context.Context, now time.Time) ([]types.JobPosting, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM job_postings jp
		WHERE jp.expires_at IS NULL OR jp.expires_at > $1
		ORDER BY jp.updated_at DESC`
	jobs := []types.JobPosting{}
	if err := r.db.SelectContext(ctx, &jobs, query, now); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Get returns a posting with the employer's display name: the employer
// profile's company name, else the name typed on the posting.
func (r *JobRepository) Get(ctx context.Context, id string) (types.JobPostingDetail, error) {
	query := `
		SELECT ` + jobColumns + `,
			COALESCE(NULLIF(ep.company_name, ''), jp.company_name) AS employer_name
		FROM job_postings jp
		LEFT JOIN employer_profiles ep ON ep.user_id = jp.employer_id
		WHERE jp.id = $1`
	var job types.JobPostingDetail
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.JobPostingDetail{}, ErrNotFound
		}
		return types.JobPostingDetail{}, err
	}
	return job, nil
}

func (r *JobRepository) Create(ctx context.Context, job types.JobPosting) (types.JobPosting, error) {
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	const query = `
		INSERT INTO job_postings (id, employer_id, title, company_name, location, description,
			application_instructions, employment_type, experience_level, salary_min, salary_max,
			salary_currency, expires_at, created_at, updated_at)
		VALUES (:id, :employer_id, :title, :company_name, :location, :description,
			:application_instructions, :employment_type, :experience_level, :salary_min, :salary_max,
			:salary_currency, :expires_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return types.JobPosting{}, err
	}
	return job, nil
}
