package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jobboard/apiserver/internal/ids"
	"github.com/jobboard/apiserver/types"
)

// PendingRegistrationRepository stages registration details until the
// address is verified.
type PendingRegistrationRepository struct {
	db *sqlx.DB
}

func NewPendingRegistrationRepository(db *sqlx.DB) *PendingRegistrationRepository {
	return &PendingRegistrationRepository{db: db}
}

// Replace removes every staged row for p.Email and inserts p, so at most one
// registration per address is pending.
func (r *PendingRegistrationRepository) Replace(ctx context.Context, p types.PendingRegistration) (types.PendingRegistration, error) {
	if p.ID == "" {
		p.ID = ids.NewKSUID()
	}
	p.CreatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return types.PendingRegistration{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_registrations WHERE email = $1`, p.Email); err != nil {
		return types.PendingRegistration{}, fmt.Errorf("clear pending registrations: %w", err)
	}

	const insert = `
		INSERT INTO pending_registrations (id, email, role, first_name, last_name, headline, bio,
			company_name, company_website, company_description, industry, created_at)
		VALUES (:id, :email, :role, :first_name, :last_name, :headline, :bio,
			:company_name, :company_website, :company_description, :industry, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insert, p); err != nil {
		return types.PendingRegistration{}, fmt.Errorf("insert pending registration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return types.PendingRegistration{}, err
	}
	return p, nil
}

// LatestByEmail returns the newest staged registration for email.
func (r *PendingRegistrationRepository) LatestByEmail(ctx context.Context, email string) (types.PendingRegistration, error) {
	const query = `
		SELECT id, email, role,
			COALESCE(first_name, '') AS first_name,
			COALESCE(last_name, '') AS last_name,
			COALESCE(headline, '') AS headline,
			COALESCE(bio, '') AS bio,
			COALESCE(company_name, '') AS company_name,
			COALESCE(company_website, '') AS company_website,
			COALESCE(company_description, '') AS company_description,
			COALESCE(industry, '') AS industry,
			created_at
		FROM pending_registrations
		WHERE email = $1
		ORDER BY created_at DESC
		LIMIT 1`
	var p types.PendingRegistration
	if err := r.db.GetContext(ctx, &p, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.PendingRegistration{}, ErrNotFound
		}
		return types.PendingRegistration{}, err
	}
	return p, nil
}

func (r *PendingRegistrationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM pending_registrations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// PruneOlderThan deletes registrations staged before cutoff and reports how many went.
func (r *PendingRegistrationRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM pending_registrations WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
