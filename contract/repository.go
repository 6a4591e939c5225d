package contract

import (
	"context"
	"errors"
	"fmt"

	"escrowflow/access"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no visible contract row exists for the identifier.
	ErrNotFound = errors.New("contract: not found")
	// ErrUnknownParty signals a party id that does not reference a user.
	ErrUnknownParty = errors.New("contract: party does not exist")
)

// Repository persists contracts in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const selectSQL = `
	SELECT c.id, c.title, c.description, c.contract_amount, c.status, c.start_date, c.end_date,
	       c.created_by::text, c.created_at, c.updated_at,
	       ip.id, ip.email, ip.first_name, ip.last_name,
	       s.id, s.email, s.first_name, s.last_name
	FROM contracts c
	JOIN users ip ON ip.id = c.intended_parent_id
	JOIN users s ON s.id = c.surrogate_id
`

// Create inserts the contract and its escrow account in one transaction.
func (r *Repository) Create(ctx context.Context, createdBy string, params CreateParams, status Status) (Contract, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Contract{}, fmt.Errorf("contract: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO contracts (intended_parent_id, surrogate_id, title, description, contract_amount, status, start_date, end_date, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, params.IntendedParentID, params.SurrogateID, params.Title, params.Description, *params.Amount,
		string(status), params.StartDate, params.EndDate, createdBy).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && (pgErr.Code == "23503" || pgErr.Code == "22P02") {
			return Contract{}, ErrUnknownParty
		}
		return Contract{}, fmt.Errorf("contract: insert: %w", err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO escrow_accounts (contract_id) VALUES ($1)`, id); err != nil {
		return Contract{}, fmt.Errorf("contract: create escrow account: %w", err)
	}

	rec, err := scanContract(tx.QueryRow(ctx, selectSQL+` WHERE c.id = $1`, id))
	if err != nil {
		return Contract{}, fmt.Errorf("contract: reload: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Contract{}, fmt.Errorf("contract: commit: %w", err)
	}
	return rec, nil
}

// List returns contracts visible to caller, newest first.
func (r *Repository) List(ctx context.Context, caller access.Caller) ([]Contract, error) {
	query := selectSQL + ` WHERE ` + caller.ContractPredicate("c", 1) + ` ORDER BY c.created_at DESC, c.id`

	rows, err := r.pool.Query(ctx, query, caller.Args()...)
	if err != nil {
		return nil, fmt.Errorf("contract: list: %w", err)
	}
	defer rows.Close()

	records := []Contract{}
	for rows.Next() {
		rec, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("contract: scan: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contract: iterate: %w", err)
	}
	return records, nil
}

// Get returns a single contract when caller may see it.
func (r *Repository) Get(ctx context.Context, caller access.Caller, id string) (Contract, error) {
	query := selectSQL + ` WHERE c.id = $1 AND ` + caller.ContractPredicate("c", 2)
	args := append([]any{id}, caller.Args()...)

	rec, err := scanContract(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isMissing(err) {
			return Contract{}, ErrNotFound
		}
		return Contract{}, fmt.Errorf("contract: get: %w", err)
	}
	return rec, nil
}

// Update applies the non-nil fields of params to a visible contract.
func (r *Repository) Update(ctx context.Context, caller access.Caller, id string, params UpdateParams) (Contract, error) {
	query := `
		UPDATE contracts c SET
			title           = COALESCE($4::text, c.title),
			description     = COALESCE($5::text, c.description),
			contract_amount = COALESCE($6::numeric, c.contract_amount),
			start_date      = COALESCE($7::date, c.start_date),
			end_date        = COALESCE($8::date, c.end_date),
			updated_at      = now()
		WHERE c.id = $1 AND ` + caller.ContractPredicate("c", 2) + `
		RETURNING c.id`

	args := append([]any{id}, caller.Args()...)
	args = append(args, params.Title, params.Description, params.Amount, params.StartDate, params.EndDate)
	return r.updateAndReload(ctx, caller, query, args)
}

// UpdateStatus overwrites the status of a visible contract.
func (r *Repository) UpdateStatus(ctx context.Context, caller access.Caller, id string, status Status) (Contract, error) {
	query := `
		UPDATE contracts c SET status = $4, updated_at = now()
		WHERE c.id = $1 AND ` + caller.ContractPredicate("c", 2) + `
		RETURNING c.id`

	args := append([]any{id}, caller.Args()...)
	args = append(args, string(status))
	return r.updateAndReload(ctx, caller, query, args)
}

func (r *Repository) updateAndReload(ctx context.Context, caller access.Caller, query string, args []any) (Contract, error) {
	var id string
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		if isMissing(err) {
			return Contract{}, ErrNotFound
		}
		return Contract{}, fmt.Errorf("contract: update: %w", err)
	}
	return r.Get(ctx, caller, id)
}

func scanContract(row pgx.Row) (Contract, error) {
	var (
		c      Contract
		status string
	)
	err := row.Scan(
		&c.ID, &c.Title, &c.Description, &c.Amount, &status, &c.StartDate, &c.EndDate,
		&c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
		&c.IntendedParent.ID, &c.IntendedParent.Email, &c.IntendedParent.FirstName, &c.IntendedParent.LastName,
		&c.Surrogate.ID, &c.Surrogate.Email, &c.Surrogate.FirstName, &c.Surrogate.LastName,
	)
	c.Status = Status(status)
	return c, err
}

func isMissing(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}
