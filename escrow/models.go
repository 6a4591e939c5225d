package escrow

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind names the direction of a balance movement.
type EntryKind string

const (
	EntryDeposit EntryKind = "deposit"
	EntryRelease EntryKind = "release"
)

// Account mirrors the escrow_accounts table. Balance always equals
// TotalDeposited minus TotalReleased and never goes negative.
type Account struct {
	ID             string
	ContractID     string
	Balance        decimal.Decimal
	TotalDeposited decimal.Decimal
	TotalReleased  decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Entry is one append-only ledger line of an account.
type Entry struct {
	ID             int64
	AccountID      string
	Kind           EntryKind
	Amount         decimal.Decimal
	BalanceAfter   decimal.Decimal
	ActorID        string
	IdempotencyKey *string
	CreatedAt      time.Time
}

// ReplayKey scopes an idempotency key: the same key may be reused by another
// actor, on another account or for the other movement kind.
type ReplayKey struct {
	AccountID string
	Kind      EntryKind
	ActorID   string
	Key       string
}

// MovementRequest is a deposit or release issued by a party.
type MovementRequest struct {
	AccountID      string
	Amount         *decimal.Decimal
	IdempotencyKey string
}
