package milestone

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
	// ErrNotFound is returned when no visible milestone exists for the identifier.
	ErrNotFound = errors.New("milestone: not found")
	// ErrContractNotFound signals the target contract is missing or not visible.
	ErrContractNotFound = errors.New("milestone: contract not found")
	// ErrDuplicateOrder signals another milestone of the contract already uses the order.
	ErrDuplicateOrder = errors.New("milestone: order already used in this contract")
	// ErrOrderOutOfRange signals the next free order no longer fits the column.
	ErrOrderOutOfRange = errors.New("milestone: no order left in this contract")
)

// Repository persists milestones in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const returning = `
	RETURNING m.id, m.contract_id, m.title, m.description, m.amount, m.status, m.due_date,
	          m.completed_date, m.completion_notes, m.completed_by::text, m.sort_order,
	          m.created_by::text, m.created_at, m.updated_at`

const selectSQL = `
	SELECT m.id, m.contract_id, m.title, m.description, m.amount, m.status, m.due_date,
	       m.completed_date, m.completion_notes, m.completed_by::text, m.sort_order,
	       m.created_by::text, m.created_at, m.updated_at
	FROM milestones m
	JOIN contracts c ON c.id = m.contract_id
`

// Create inserts a milestone under a contract visible to caller.
func (r *Repository) Create(ctx context.Context, caller access.Caller, params CreateParams) (Milestone, error) {
	query := `
		INSERT INTO milestones AS m (contract_id, title, description, amount, due_date, sort_order, created_by)
		SELECT c.id, $4::text, $5::text, $6::numeric, $7::date,
		       COALESCE($8::integer, (SELECT COALESCE(MAX(sort_order) + 1, 0) FROM milestones WHERE contract_id = c.id)),
		       $3::uuid
		FROM contracts c
		WHERE c.id = $1 AND ` + caller.ContractPredicate("c", 2) + returning

	// $2 and $3 are consumed by the predicate; $3 doubles as the creator.
	args := append([]any{params.ContractID}, caller.Args()...)
	args = append(args, params.Title, params.Description, params.Amount, params.DueDate, params.Order)

	m, err := scanMilestone(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return Milestone{}, ErrDuplicateOrder
			case "22003":
				return Milestone{}, ErrOrderOutOfRange
			}
		}
		if isMissing(err) {
			return Milestone{}, ErrContractNotFound
		}
		return Milestone{}, fmt.Errorf("milestone: insert: %w", err)
	}
	return m, nil
}

// List returns visible milestones, optionally narrowed to one contract.
func (r *Repository) List(ctx context.Context, caller access.Caller, contractID string) ([]Milestone, error) {
	query := selectSQL + ` WHERE ` + caller.ContractPredicate("c", 1) + `
		AND ($3::text = '' OR m.contract_id::text = $3)
		ORDER BY m.contract_id, m.sort_order, m.created_at`

	args := append(caller.Args(), contractID)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("milestone: list: %w", err)
	}
	defer rows.Close()

	items := []Milestone{}
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, fmt.Errorf("milestone: scan: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("milestone: iterate: %w", err)
	}
	return items, nil
}

// Get returns a milestone whose contract is visible to caller.
func (r *Repository) Get(ctx context.Context, caller access.Caller, id string) (Milestone, error) {
	query := selectSQL + ` WHERE m.id = $1 AND ` + caller.ContractPredicate("c", 2)
	args := append([]any{id}, caller.Args()...)

	m, err := scanMilestone(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isMissing(err) {
			return Milestone{}, ErrNotFound
		}
		return Milestone{}, fmt.Errorf("milestone: get: %w", err)
	}
	return m, nil
}

// Update applies the non-nil fields of params.
func (r *Repository) Update(ctx context.Context, caller access.Caller, id string, params UpdateParams) (Milestone, error) {
	set := `
		title       = COALESCE($4::text, m.title),
		description = COALESCE($5::text, m.description),
		amount      = COALESCE($6::numeric, m.amount),
		due_date    = COALESCE($7::date, m.due_date),
		sort_order  = COALESCE($8::integer, m.sort_order),
		updated_at  = now()`
	return r.update(ctx, caller, id, set, params.Title, params.Description, params.Amount, params.DueDate, params.Order)
}

// UpdateStatus overwrites the status, filling the completion fields when a
// milestone first becomes completed.
func (r *Repository) UpdateStatus(ctx context.Context, caller access.Caller, id string, change StatusChange) (Milestone, error) {
	set := `
		status         = $4,
		completed_date = CASE WHEN $4 = 'completed' AND m.completed_date IS NULL THEN $5::date ELSE m.completed_date END,
		completed_by   = CASE WHEN $4 = 'completed' AND m.completed_date IS NULL THEN $6::uuid ELSE m.completed_by END,
		updated_at     = now()`
	return r.update(ctx, caller, id, set, string(change.Status), change.Today, change.ActorID)
}

// Complete marks a milestone completed, overwriting date, completer and notes.
func (r *Repository) Complete(ctx context.Context, caller access.Caller, id string, c Completion) (Milestone, error) {
	set := `
		status           = 'completed',
		completed_date   = $4::date,
		completed_by     = $5::uuid,
		completion_notes = $6,
		updated_at       = now()`
	return r.update(ctx, caller, id, set, c.Date, c.ActorID, c.Notes)
}

func (r *Repository) update(ctx context.Context, caller access.Caller, id, set string, extra ...any) (Milestone, error) {
	query := `
		UPDATE milestones m SET ` + set + `
		FROM contracts c
		WHERE m.id = $1 AND c.id = m.contract_id AND ` + caller.ContractPredicate("c", 2) + returning

	args := append([]any{id}, caller.Args()...)
	args = append(args, extra...)

	m, err := scanMilestone(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Milestone{}, ErrDuplicateOrder
		}
		if isMissing(err) {
			return Milestone{}, ErrNotFound
		}
		return Milestone{}, fmt.Errorf("milestone: update: %w", err)
	}
	return m, nil
}

func scanMilestone(row pgx.Row) (Milestone, error) {
	var (
		m      Milestone
		status string
	)
	err := row.Scan(
		&m.ID, &m.ContractID, &m.Title, &m.Description, &m.Amount, &status, &m.DueDate,
		&m.CompletedDate, &m.CompletionNotes, &m.CompletedBy, &m.Order,
		&m.CreatedBy, &m.CreatedAt, &m.UpdatedAt,
	)
	m.Status = Status(status)
	return m, err
}

func isMissing(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}
