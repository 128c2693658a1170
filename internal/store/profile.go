package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/jobboard/apiserver/types"
)

// ProfileRepository handles persistence for job seeker and employer profiles.
// Both tables are keyed by user_id and written by upsert.
type ProfileRepository struct {
	db *sqlx.DB
}

func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) GetJobSeeker(ctx context.Context, userID string) (types.JobSeekerProfile, error) {
	const query = `
		SELECT user_id,
			COALESCE(first_name, '') AS first_name,
			COALESCE(last_name, '') AS last_name,
			COALESCE(email, '') AS email,
			COALESCE(headline, '') AS headline,
			COALESCE(bio, '') AS bio,
			COALESCE(phone_number, '') AS phone_number,
			COALESCE(profile_picture_url, '') AS profile_picture_url,
			COALESCE(resume_url, '') AS resume_url,
			COALESCE(website_url, '') AS website_url,
			COALESCE(linkedin_url, '') AS linkedin_url,
			COALESCE(github_url, '') AS github_url
		FROM job_seeker_profiles
		WHERE user_id = $1`
	var p types.JobSeekerProfile
	if err := r.db.GetContext(ctx, &p, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.JobSeekerProfile{}, ErrNotFound
		}
		return types.JobSeekerProfile{}, err
	}
	return p, nil
}

func (r *ProfileRepository) UpsertJobSeeker(ctx context.Context, p types.JobSeekerProfile) error {
	const query = `
		INSERT INTO job_seeker_profiles (user_id, first_name, last_name, email, headline, bio, phone_number,
			profile_picture_url, resume_url, website_url, linkedin_url, github_url, updated_at)
		VALUES (:user_id, :first_name, :last_name, :email, :headline, :bio, :phone_number,
			:profile_picture_url, :resume_url, :website_url, :linkedin_url, :github_url, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			email = EXCLUDED.email,
			headline = EXCLUDED.headline,
			bio = EXCLUDED.bio,
			phone_number = EXCLUDED.phone_number,
			profile_picture_url = EXCLUDED.profile_picture_url,
			resume_url = EXCLUDED.resume_url,
			website_url = EXCLUDED.website_url,
			linkedin_url = EXCLUDED.linkedin_url,
			github_url = EXCLUDED.github_url,
			updated_at = NOW()`
	_, err := r.db.NamedExecContext(ctx, query, p)
	return err
}

func (r *ProfileRepository) GetEmployer(ctx context.Context, userID string) (types.EmployerProfile, error) {
	const query = `
		SELECT user_id,
			COALESCE(company_name, '') AS company_name,
			COALESCE(email, '') AS email,
			COALESCE(company_website, '') AS company_website,
			COALESCE(industry, '') AS industry,
			COALESCE(company_description, '') AS company_description,
			COALESCE(company_logo_url, '') AS company_logo_url,
			COALESCE(company_size, '') AS company_size,
			COALESCE(contact_first_name, '') AS contact_first_name,
			COALESCE(contact_last_name, '') AS contact_last_name
		FROM employer_profiles
		WHERE user_id = $1`
	var p types.EmployerProfile
	if err := r.db.GetContext(ctx, &p, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.EmployerProfile{}, ErrNotFound
		}
		return types.EmployerProfile{}, err
	}
	return p, nil
}

// UpsertEmployer writes the employer profile. Empty contact names keep the
// stored ones, since the profile form does not carry them.
func (r *ProfileRepository) UpsertEmployer(ctx context.Context, p types.EmployerProfile) error {
	const query = `
		INSERT INTO employer_profiles (user_id, company_name, email, company_website, industry,
			company_description, company_logo_url, company_size, contact_first_name, contact_last_name, updated_at)
		VALUES (:user_id, :company_name, :email, :company_website, :industry,
			:company_description, :company_logo_url, :company_size, :contact_first_name, :contact_last_name, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			company_name = EXCLUDED.company_name,
			email = EXCLUDED.email,
			company_website = EXCLUDED.company_website,
			industry = EXCLUDED.industry,
			company_description = EXCLUDED.company_description,
			company_logo_url = EXCLUDED.company_logo_url,
			company_size = EXCLUDED.company_size,
			contact_first_name = COALESCE(NULLIF(EXCLUDED.contact_first_name, ''), employer_profiles.contact_first_name),
			contact_last_name = COALESCE(NULLIF(EXCLUDED.contact_last_name, ''), employer_profiles.contact_last_name),
			updated_at = NOW()`
	_, err := r.db.NamedExecContext(ctx, query, p)
	return err
}
