package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type classifies what a payment is for.
type Type string

const (
	TypeDeposit   Type = "deposit"
	TypeMilestone Type = "milestone"
	TypeFinal     Type = "final"
	TypeRefund    Type = "refund"
)

// Status tracks the processing state of a payment.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

var (
	types    = []Type{TypeDeposit, TypeMilestone, TypeFinal, TypeRefund}
	statuses = []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded}
)

// ParseType validates raw against the payment type enum.
func ParseType(raw string) (Type, bool) {
	for _, t := range types {
		if string(t) == raw {
			return t, true
		}
	}
	return "", false
}

// ParseStatus validates raw against the payment status enum.
func ParseStatus(raw string) (Status, error) {
	for _, s := range statuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", ErrInvalidStatus
}

// Payment mirrors the payments table.
type Payment struct {
	ID            string
	ContractID    string
	PayerID       string
	PayeeID       string
	Amount        decimal.Decimal
	Type          Type
	Status        Status
	TransactionID *string
	PaymentMethod string
	PaymentDate   *time.Time
	Description   string
	Notes         string
	CreatedBy     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateParams carries a new payment record. Status always starts as pending.
type CreateParams struct {
	ContractID    string
	PayerID       string
	PayeeID       string
	Amount        *decimal.Decimal
	Type          string
	TransactionID *string
	PaymentMethod string
	PaymentDate   *time.Time
	Description   string
	Notes         string
}
