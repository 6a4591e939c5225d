package escrow

import (
	"context"
	"errors"
	"fmt"

	"escrowflow/access"
	"escrowflow/pkg/validate"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAmount signals a missing, zero or negative amount.
	ErrInvalidAmount = errors.New("escrow: invalid amount")
	// ErrInsufficientBalance signals a release larger than the current balance.
	ErrInsufficientBalance = errors.New("escrow: insufficient balance")
	// ErrAmountTooLarge signals a movement that would overflow the stored precision.
	ErrAmountTooLarge = errors.New("escrow: amount exceeds account limit")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the data access required by the service.
type Store interface {
	List(ctx context.Context, caller access.Caller, contractID string) ([]Account, error)
	Get(ctx context.Context, caller access.Caller, id string) (Account, error)
	Entries(ctx context.Context, caller access.Caller, id string) ([]Entry, error)
	KeyUsed(ctx context.Context, k ReplayKey) (bool, error)
	ApplyDeposit(ctx context.Context, tx pgx.Tx, caller access.Caller, id string, amount decimal.Decimal) (Account, error)
	ApplyRelease(ctx context.Context, tx pgx.Tx, caller access.Caller, id string, amount decimal.Decimal) (Account, error)
	AppendEntry(ctx context.Context, tx pgx.Tx, e Entry) error
}

type Service struct {
	pool TxBeginner
	repo Store
}

func NewService(pool TxBeginner, repo Store) *Service {
	return &Service{pool: pool, repo: repo}
}

// List returns visible accounts; contractID narrows the result when set.
func (s *Service) List(ctx context.Context, caller access.Caller, contractID string) ([]Account, error) {
	return s.repo.List(ctx, caller, contractID)
}

func (s *Service) Get(ctx context.Context, caller access.Caller, id string) (Account, error) {
	return s.repo.Get(ctx, caller, id)
}

// Entries returns the ledger of a visible account.
func (s *Service) Entries(ctx context.Context, caller access.Caller, id string) ([]Entry, error) {
	return s.repo.Entries(ctx, caller, id)
}

// Deposit credits the account. A key the caller already used for a deposit on
// this account returns the current account without moving money.
func (s *Service) Deposit(ctx context.Context, caller access.Caller, req MovementRequest) (Account, error) {
	return s.move(ctx, caller, req, EntryDeposit)
}

// Release debits the account. The balance check and the write are one
// statement, so concurrent releases cannot overdraw.
func (s *Service) Release(ctx context.Context, caller access.Caller, req MovementRequest) (Account, error) {
	return s.move(ctx, caller, req, EntryRelease)
}

func (s *Service) move(ctx context.Context, caller access.Caller, req MovementRequest, kind EntryKind) (Account, error) {
	amount, err := checkAmount(req.Amount)
	if err != nil {
		return Account{}, err
	}

	if req.IdempotencyKey != "" {
		used, err := s.repo.KeyUsed(ctx, ReplayKey{
			AccountID: req.AccountID,
			Kind:      kind,
			ActorID:   caller.UserID,
			Key:       req.IdempotencyKey,
		})
		if err != nil {
			return Account{}, err
		}
		if used {
			return s.repo.Get(ctx, caller, req.AccountID)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Account{}, fmt.Errorf("escrow: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var acct Account
	if kind == EntryDeposit {
		acct, err = s.repo.ApplyDeposit(ctx, tx, caller, req.AccountID, amount)
	} else {
		acct, err = s.repo.ApplyRelease(ctx, tx, caller, req.AccountID, amount)
	}
	if errors.Is(err, ErrInsufficientBalance) {
		if _, getErr := s.repo.Get(ctx, caller, req.AccountID); getErr != nil {
			return Account{}, getErr
		}
		return Account{}, ErrInsufficientBalance
	}
	if err != nil {
		return Account{}, err
	}

	entry := Entry{
		AccountID:    acct.ID,
		Kind:         kind,
		Amount:       amount,
		BalanceAfter: acct.Balance,
		ActorID:      caller.UserID,
	}
	if req.IdempotencyKey != "" {
		entry.IdempotencyKey = &req.IdempotencyKey
	}
	if err := s.repo.AppendEntry(ctx, tx, entry); err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			// lost a race with the same key; undo and report the winner's state
			_ = tx.Rollback(ctx)
			return s.repo.Get(ctx, caller, req.AccountID)
		}
		return Account{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Account{}, fmt.Errorf("escrow: commit tx: %w", err)
	}
	return acct, nil
}

func checkAmount(amount *decimal.Decimal) (decimal.Decimal, error) {
	if amount == nil || !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	placesOK, sizeOK := validate.Fit(*amount)
	if !placesOK {
		return decimal.Zero, ErrInvalidAmount
	}
	if !sizeOK {
		return decimal.Zero, ErrAmountTooLarge
	}
	return *amount, nil
}
