package contract

import (
	"time"

	"escrowflow/party"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a contract. Any status may follow any other.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var statuses = []Status{StatusDraft, StatusPending, StatusActive, StatusCompleted, StatusCancelled}

// ParseStatus validates raw against the contract status enum.
func ParseStatus(raw string) (Status, error) {
	for _, s := range statuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", ErrInvalidStatus
}

// Contract mirrors the contracts table together with both parties.
type Contract struct {
	ID             string
	IntendedParent party.Profile
	Surrogate      party.Profile
	Title          string
	Description    string
	Amount         decimal.Decimal
	Status         Status
	StartDate      *time.Time
	EndDate        *time.Time
	CreatedBy      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreateParams carries a new contract. Status defaults to draft.
type CreateParams struct {
	IntendedParentID string
	SurrogateID      string
	Title            string
	Description      string
	Amount           *decimal.Decimal
	Status           string
	StartDate        *time.Time
	EndDate          *time.Time
}

// UpdateParams carries a partial update. Nil fields are left alone.
type UpdateParams struct {
	Title       *string
	Description *string
	Amount      *decimal.Decimal
	StartDate   *time.Time
	EndDate     *time.Time
}
