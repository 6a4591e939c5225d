package escrow

import (
	"context"
	"errors"
	"fmt"

	"escrowflow/access"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no visible account exists for the identifier.
	ErrNotFound = errors.New("escrow: not found")
	// ErrDuplicateIdempotencyKey signals the scoped key already produced a ledger entry.
	ErrDuplicateIdempotencyKey = errors.New("escrow: duplicate idempotency key")
)

// Repository persists escrow accounts and their ledger.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const accountColumns = `a.id, a.contract_id, a.balance, a.total_deposited, a.total_released, a.created_at, a.updated_at`

// List returns accounts of contracts visible to caller, optionally narrowed to one contract.
func (r *Repository) List(ctx context.Context, caller access.Caller, contractID string) ([]Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM escrow_accounts a
		JOIN contracts c ON c.id = a.contract_id
		WHERE ` + caller.ContractPredicate("c", 1) + `
		  AND ($3::text = '' OR a.contract_id::text = $3)
		ORDER BY a.created_at DESC, a.id`

	args := append(caller.Args(), contractID)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("escrow: list: %w", err)
	}
	defer rows.Close()

	items := []Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("escrow: scan: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("escrow: iterate: %w", err)
	}
	return items, nil
}

// Get returns an account whose contract is visible to caller.
func (r *Repository) Get(ctx context.Context, caller access.Caller, id string) (Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM escrow_accounts a
		JOIN contracts c ON c.id = a.contract_id
		WHERE a.id = $1 AND ` + caller.ContractPredicate("c", 2)

	args := append([]any{id}, caller.Args()...)
	a, err := scanAccount(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isMissing(err) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("escrow: get: %w", err)
	}
	return a, nil
}

// Entries returns the ledger of a visible account, oldest first.
func (r *Repository) Entries(ctx context.Context, caller access.Caller, id string) ([]Entry, error) {
	if _, err := r.Get(ctx, caller, id); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, kind, amount, balance_after, COALESCE(actor_id::text, ''), idempotency_key, created_at
		FROM escrow_entries
		WHERE account_id = $1
		ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("escrow: list entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e    Entry
			kind string
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &kind, &e.Amount, &e.BalanceAfter, &e.ActorID, &e.IdempotencyKey, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("escrow: scan entry: %w", err)
		}
		e.Kind = EntryKind(kind)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("escrow: iterate entries: %w", err)
	}
	return entries, nil
}

// KeyUsed reports whether the actor already moved money of this kind on the
// account under the same idempotency key.
func (r *Repository) KeyUsed(ctx context.Context, k ReplayKey) (bool, error) {
	var used bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM escrow_entries
			WHERE account_id::text = $1 AND kind = $2 AND actor_id::text = $3 AND idempotency_key = $4)
	`, k.AccountID, string(k.Kind), k.ActorID, k.Key).Scan(&used)
	if err != nil {
		return false, fmt.Errorf("escrow: check idempotency key: %w", err)
	}
	return used, nil
}

// ApplyDeposit adds amount to a visible account in a single statement.
func (r *Repository) ApplyDeposit(ctx context.Context, tx pgx.Tx, caller access.Caller, id string, amount decimal.Decimal) (Account, error) {
	query := `
		UPDATE escrow_accounts a SET
			balance         = a.balance + $4::numeric,
			total_deposited = a.total_deposited + $4::numeric,
			updated_at      = now()
		FROM contracts c
		WHERE a.id = $1 AND c.id = a.contract_id AND ` + caller.ContractPredicate("c", 2) + `
		RETURNING ` + accountColumns

	return r.apply(ctx, tx, query, id, caller, amount, ErrNotFound)
}

// ApplyRelease subtracts amount from a visible account only while the balance
// covers it. When no row changes it reports ErrInsufficientBalance; the caller
// tells that apart from a missing account.
func (r *Repository) ApplyRelease(ctx context.Context, tx pgx.Tx, caller access.Caller, id string, amount decimal.Decimal) (Account, error) {
	query := `
		UPDATE escrow_accounts a SET
			balance        = a.balance - $4::numeric,
			total_released = a.total_released + $4::numeric,
			updated_at     = now()
		FROM contracts c
		WHERE a.id = $1 AND c.id = a.contract_id AND ` + caller.ContractPredicate("c", 2) + `
		  AND a.balance >= $4::numeric
		RETURNING ` + accountColumns

	return r.apply(ctx, tx, query, id, caller, amount, ErrInsufficientBalance)
}

func (r *Repository) apply(ctx context.Context, tx pgx.Tx, query, id string, caller access.Caller, amount decimal.Decimal, noRow error) (Account, error) {
	args := append([]any{id}, caller.Args()...)
	args = append(args, amount)

	a, err := scanAccount(tx.QueryRow(ctx, query, args...))
	if err != nil {
		if isMissing(err) {
			return Account{}, noRow
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "22003" {
			return Account{}, ErrAmountTooLarge
		}
		return Account{}, fmt.Errorf("escrow: apply movement: %w", err)
	}
	return a, nil
}

// AppendEntry writes a ledger line inside tx.
func (r *Repository) AppendEntry(ctx context.Context, tx pgx.Tx, e Entry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO escrow_entries (account_id, kind, amount, balance_after, actor_id, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.AccountID, string(e.Kind), e.Amount, e.BalanceAfter, e.ActorID, e.IdempotencyKey)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("escrow: append entry: %w", err)
	}
	return nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.ContractID, &a.Balance, &a.TotalDeposited, &a.TotalReleased, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func isMissing(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}
