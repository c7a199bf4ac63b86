package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/alumni-portal-api/internal/models"
)

const alumniColumns = `id, name, position, location, avatar, about, profile_url, current_company, education, experience, batch, branch, graduation_year, current_company_name, created_at, updated_at`

const upsertAlumni = `INSERT INTO alumni_profiles (id, name, position, location, avatar, about, profile_url, current_company, education, experience, batch, branch, graduation_year, current_company_name, created_at, updated_at)
	VALUES (:id, :name, :position, :location, :avatar, :about, :profile_url, :current_company, :education, :experience, :batch, :branch, :graduation_year, :current_company_name, :created_at, :updated_at)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name,
		position = EXCLUDED.position,
		location = EXCLUDED.location,
		avatar = EXCLUDED.avatar,
		about = EXCLUDED.about,
		profile_url = EXCLUDED.profile_url,
		current_company = EXCLUDED.current_company,
		education = EXCLUDED.education,
		experience = EXCLUDED.experience,
		batch = EXCLUDED.batch,
		branch = EXCLUDED.branch,
		graduation_year = EXCLUDED.graduation_year,
		current_company_name = EXCLUDED.current_company_name,
		updated_at = EXCLUDED.updated_at`

// AlumniRepository persists directory profiles.
type AlumniRepository struct {
	db *sqlx.DB
}

// NewAlumniRepository creates a new AlumniRepository.
func NewAlumniRepository(db *sqlx.DB) *AlumniRepository {
	return &AlumniRepository{db: db}
}

// ListAll returns every profile ordered by name then id. The filter engine
// preserves this order.
func (r *AlumniRepository) ListAll(ctx context.Context) ([]models.AlumniProfile, error) {
	query := `SELECT ` + alumniColumns + ` FROM alumni_profiles ORDER BY name ASC, id ASC`
	var profiles []models.AlumniProfile
	if err := r.db.SelectContext(ctx, &profiles, query); err != nil {
		return nil, fmt.Errorf("list alumni: %w", err)
	}
	return profiles, nil
}

// FindByID returns one profile.
func (r *AlumniRepository) FindByID(ctx context.Context, id string) (*models.AlumniProfile, error) {
	query := `SELECT ` + alumniColumns + ` FROM alumni_profiles WHERE id = $1 LIMIT 1`
	var p models.AlumniProfile
	if err := r.db.GetContext(ctx, &p, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find alumni by id: %w", err)
	}
	return &p, nil
}

// UpsertBatch inserts or replaces profiles in one transaction.
func (r *AlumniRepository) UpsertBatch(ctx context.Context, profiles []models.AlumniProfile) error {
	if len(profiles) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin alumni upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareNamedContext(ctx, upsertAlumni)
	if err != nil {
		return fmt.Errorf("prepare alumni upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range profiles {
		p := &profiles[i]
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
		if _, err := stmt.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("upsert alumni %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit alumni upsert: %w", err)
	}
	return nil
}

// UpdateDerived rewrites the derived columns of a profile.
func (r *AlumniRepository) UpdateDerived(ctx context.Context, p models.AlumniProfile) error {
	const query = `UPDATE alumni_profiles SET batch = :batch, branch = :branch, graduation_year = :graduation_year, current_company_name = :current_company_name, updated_at = :updated_at WHERE id = :id`
	p.UpdatedAt = time.Now().UTC()
	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("update derived fields %s: %w", p.ID, err)
	}
	return nil
}

// Count returns the number of stored profiles.
func (r *AlumniRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM alumni_profiles`); err != nil {
		return 0, fmt.Errorf("count alumni: %w", err)
	}
	return n, nil
}
