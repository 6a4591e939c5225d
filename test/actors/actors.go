// Package actors drives concurrent escrow traffic against a live database.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"escrowflow/access"
	"escrowflow/contract"
	"escrowflow/escrow"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// Movements is the subset of escrow.Service the actors exercise.
type Movements interface {
	Deposit(ctx context.Context, caller access.Caller, req escrow.MovementRequest) (escrow.Account, error)
	Release(ctx context.Context, caller access.Caller, req escrow.MovementRequest) (escrow.Account, error)
}

// Lister is the subset of contract.Service used by Snooper.
type Lister interface {
	List(ctx context.Context, caller access.Caller) ([]contract.Contract, error)
}

func randomAmount(max int) *decimal.Decimal {
	cents := int64(1 + rand.Intn(max*100))
	d := decimal.New(cents, -2)
	return &d
}

// stopped reports whether the actor should exit.
func stopped(ctx context.Context, stop <-chan struct{}) (bool, error) {
	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case <-stop:
		return true, nil
	default:
		return false, nil
	}
}

// tolerable filters out failures that chaos and contention are expected to cause.
func tolerable(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, escrow.ErrInsufficientBalance),
		errors.Is(err, escrow.ErrAmountTooLarge),
		errors.Is(err, context.Canceled):
		return true
	case errors.Is(err, escrow.ErrNotFound),
		errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, contract.ErrNotFound):
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// admin shutdown from chaos, serialization failure, deadlock
		switch pgErr.Code {
		case "57P01", "40001", "40P01":
			return true
		}
		return false
	}
	// terminated backends surface as transport errors
	return true
}

// Depositor keeps adding small random amounts to accountID.
func Depositor(ctx context.Context, svc Movements, caller access.Caller, accountID string, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		_, err := svc.Deposit(ctx, caller, escrow.MovementRequest{AccountID: accountID, Amount: randomAmount(50)})
		if !tolerable(err) {
			return fmt.Errorf("depositor: %w", err)
		}
		time.Sleep(time.Duration(5+rand.Intn(15)) * time.Millisecond)
	}
}

// Releaser races to drain accountID; insufficient balance is an expected outcome.
func Releaser(ctx context.Context, svc Movements, caller access.Caller, accountID string, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		_, err := svc.Release(ctx, caller, escrow.MovementRequest{AccountID: accountID, Amount: randomAmount(80)})
		if !tolerable(err) {
			return fmt.Errorf("releaser: %w", err)
		}
		time.Sleep(time.Duration(5+rand.Intn(15)) * time.Millisecond)
	}
}

// Replayer sends every deposit twice under one idempotency key, from two
// goroutines at once, so only one ledger entry may land per key.
func Replayer(ctx context.Context, svc Movements, caller access.Caller, accountID string, stop <-chan struct{}) error {
	for i := 0; ; i++ {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		req := escrow.MovementRequest{
			AccountID:      accountID,
			Amount:         randomAmount(20),
			IdempotencyKey: fmt.Sprintf("replay-%s-%d-%d", accountID, time.Now().UnixNano(), i),
		}
		errs := make(chan error, 2)
		for j := 0; j < 2; j++ {
			go func() {
				_, err := svc.Deposit(ctx, caller, req)
				errs <- err
			}()
		}
		for j := 0; j < 2; j++ {
			if err := <-errs; !tolerable(err) {
				return fmt.Errorf("replayer: %w", err)
			}
		}
		time.Sleep(time.Duration(20+rand.Intn(30)) * time.Millisecond)
	}
}

// Snooper lists contracts as a party to none of them and fails on any leak.
func Snooper(ctx context.Context, svc Lister, stranger access.Caller, stop <-chan struct{}) error {
	for {
		if done, err := stopped(ctx, stop); done {
			return err
		}
		contracts, err := svc.List(ctx, stranger)
		if err != nil {
			if tolerable(err) {
				continue
			}
			return fmt.Errorf("snooper: %w", err)
		}
		if len(contracts) > 0 {
			return fmt.Errorf("snooper: stranger %s sees contract %s", stranger.UserID, contracts[0].ID)
		}
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}
