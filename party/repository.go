package party

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the requested party does not exist.
	ErrNotFound = errors.New("party: not found")
	// ErrDuplicateEmail signals another party already uses the email.
	ErrDuplicateEmail = errors.New("party: email already exists")
)

// Repository provides access to party profiles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const profileColumns = `id, email, first_name, last_name, is_active, is_superuser, date_joined`

// GetByID fetches a party profile by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Profile, error) {
	profile, err := scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if isMissing(err) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("party: query by id: %w", err)
	}
	return profile, nil
}

// ListActive fetches active parties ordered by email.
func (r *Repository) ListActive(ctx context.Context) ([]Profile, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+profileColumns+` FROM users WHERE is_active ORDER BY email ASC`)
	if err != nil {
		return nil, fmt.Errorf("party: list: %w", err)
	}
	defer rows.Close()

	profiles := make([]Profile, 0)
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("party: scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("party: iterate profiles: %w", err)
	}

	return profiles, nil
}

// Update applies the non-nil fields of params and returns the stored profile.
func (r *Repository) Update(ctx context.Context, id string, params UpdateParams) (Profile, error) {
	const query = `
		UPDATE users SET
			first_name = COALESCE($2::text, first_name),
			last_name  = COALESCE($3::text, last_name),
			email      = COALESCE($4::text, email),
			is_active  = COALESCE($5::boolean, is_active),
			updated_at = now()
		WHERE id = $1
		RETURNING ` + profileColumns

	profile, err := scanProfile(r.pool.QueryRow(ctx, query, id, params.FirstName, params.LastName, params.Email, params.IsActive))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Profile{}, ErrDuplicateEmail
		}
		if isMissing(err) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("party: update: %w", err)
	}
	return profile, nil
}

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.IsActive, &p.IsSuperuser, &p.DateJoined)
	return p, err
}

// isMissing treats malformed ids like absent rows.
func isMissing(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}
