package payment

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
	// ErrNotFound is returned when no visible payment exists for the identifier.
	ErrNotFound = errors.New("payment: not found")
	// ErrContractNotFound signals the target contract is missing or not visible.
	ErrContractNotFound = errors.New("payment: contract not found")
	// ErrDuplicateTransaction signals the transaction id is already recorded.
	ErrDuplicateTransaction = errors.New("payment: transaction id already exists")
	// ErrUnknownParty signals a payer or payee id that does not reference a user.
	ErrUnknownParty = errors.New("payment: payer or payee does not exist")
)

// Repository persists payments in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const columns = `p.id, p.contract_id, p.payer_id, p.payee_id, p.amount, p.payment_type, p.status,
	p.transaction_id, p.payment_method, p.payment_date, p.description, p.notes,
	p.created_by::text, p.created_at, p.updated_at`

// visible extends the contract predicate with the payer and payee of the row.
// The caller id is the parameter right after the superuser flag.
func visible(caller access.Caller, first int) string {
	return fmt.Sprintf("(%s OR p.payer_id = $%[2]d::uuid OR p.payee_id = $%[2]d::uuid)",
		caller.ContractPredicate("c", first), first+1)
}

// Create inserts a payment under a contract visible to caller.
func (r *Repository) Create(ctx context.Context, caller access.Caller, params CreateParams, typ Type) (Payment, error) {
	query := `
		INSERT INTO payments AS p (contract_id, payer_id, payee_id, amount, payment_type, status,
			transaction_id, payment_method, payment_date, description, notes, created_by)
		SELECT c.id, $4::uuid, $5::uuid, $6::numeric, $7::text, 'pending',
		       NULLIF($8::text, ''), $9::text, $10::timestamptz, $11::text, $12::text, $3::uuid
		FROM contracts c
		WHERE c.id = $1 AND ` + caller.ContractPredicate("c", 2) + `
		RETURNING ` + columns

	args := append([]any{params.ContractID}, caller.Args()...)
	args = append(args, params.PayerID, params.PayeeID, params.Amount, string(typ),
		params.TransactionID, params.PaymentMethod, params.PaymentDate, params.Description, params.Notes)

	p, err := scanPayment(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return Payment{}, ErrDuplicateTransaction
			case "23503":
				return Payment{}, ErrUnknownParty
			}
		}
		if isMissing(err) {
			return Payment{}, ErrContractNotFound
		}
		return Payment{}, fmt.Errorf("payment: insert: %w", err)
	}
	return p, nil
}

// List returns payments visible to caller, optionally narrowed to one contract.
func (r *Repository) List(ctx context.Context, caller access.Caller, contractID string) ([]Payment, error) {
	query := `
		SELECT ` + columns + `
		FROM payments p
		JOIN contracts c ON c.id = p.contract_id
		WHERE ` + visible(caller, 1) + `
		  AND ($3::text = '' OR p.contract_id::text = $3)
		ORDER BY p.created_at DESC, p.id`

	args := append(caller.Args(), contractID)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("payment: list: %w", err)
	}
	defer rows.Close()

	items := []Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("payment: scan: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("payment: iterate: %w", err)
	}
	return items, nil
}

// Get returns a payment visible to caller.
func (r *Repository) Get(ctx context.Context, caller access.Caller, id string) (Payment, error) {
	query := `
		SELECT ` + columns + `
		FROM payments p
		JOIN contracts c ON c.id = p.contract_id
		WHERE p.id = $1 AND ` + visible(caller, 2)

	args := append([]any{id}, caller.Args()...)
	p, err := scanPayment(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isMissing(err) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, fmt.Errorf("payment: get: %w", err)
	}
	return p, nil
}

// UpdateStatus overwrites the status of a visible payment.
func (r *Repository) UpdateStatus(ctx context.Context, caller access.Caller, id string, status Status) (Payment, error) {
	query := `
		UPDATE payments p SET status = $4, updated_at = now()
		FROM contracts c
		WHERE p.id = $1 AND c.id = p.contract_id AND ` + visible(caller, 2) + `
		RETURNING ` + columns

	args := append([]any{id}, caller.Args()...)
	args = append(args, string(status))

	p, err := scanPayment(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isMissing(err) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, fmt.Errorf("payment: update status: %w", err)
	}
	return p, nil
}

func scanPayment(row pgx.Row) (Payment, error) {
	var (
		p           Payment
		typ, status string
	)
	err := row.Scan(
		&p.ID, &p.ContractID, &p.PayerID, &p.PayeeID, &p.Amount, &typ, &status,
		&p.TransactionID, &p.PaymentMethod, &p.PaymentDate, &p.Description, &p.Notes,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	p.Type, p.Status = Type(typ), Status(status)
	return p, err
}

func isMissing(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}
