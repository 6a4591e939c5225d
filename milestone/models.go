package milestone

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the progress state of a milestone.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var statuses = []Status{StatusPending, StatusInProgress, StatusCompleted, StatusCancelled}

// ParseStatus validates raw against the milestone status enum.
func ParseStatus(raw string) (Status, error) {
	for _, s := range statuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", ErrInvalidStatus
}

// Milestone mirrors the milestones table.
type Milestone struct {
	ID              string
	ContractID      string
	Title           string
	Description     string
	Amount          decimal.Decimal
	Status          Status
	DueDate         *time.Time
	CompletedDate   *time.Time
	CompletionNotes string
	CompletedBy     *string
	Order           int
	CreatedBy       *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CreateParams carries a new milestone. A nil Order takes the next free index
// within the contract.
type CreateParams struct {
	ContractID  string
	Title       string
	Description string
	Amount      *decimal.Decimal
	DueDate     *time.Time
	Order       *int
}

// UpdateParams carries a partial update. Nil fields are left alone.
type UpdateParams struct {
	Title       *string
	Description *string
	Amount      *decimal.Decimal
	DueDate     *time.Time
	Order       *int
}

// StatusChange is applied by update_status. When Status is completed and the
// milestone has no completion date, Today and ActorID fill it in.
type StatusChange struct {
	Status  Status
	Today   time.Time
	ActorID string
}

// Completion is applied by the complete action and always overwrites.
type Completion struct {
	Date    time.Time
	ActorID string
	Notes   string
}
