package milestone

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"escrowflow/access"
	"escrowflow/pkg/validate"
)

// ErrInvalidStatus signals a status outside the milestone enum.
var ErrInvalidStatus = errors.New("milestone: invalid status")

// Store abstracts repository operations for the service.
type Store interface {
	Create(ctx context.Context, caller access.Caller, params CreateParams) (Milestone, error)
	List(ctx context.Context, caller access.Caller, contractID string) ([]Milestone, error)
	Get(ctx context.Context, caller access.Caller, id string) (Milestone, error)
	Update(ctx context.Context, caller access.Caller, id string, params UpdateParams) (Milestone, error)
	UpdateStatus(ctx context.Context, caller access.Caller, id string, change StatusChange) (Milestone, error)
	Complete(ctx context.Context, caller access.Caller, id string, c Completion) (Milestone, error)
}

type Service struct {
	repo Store
	now  func() time.Time
}

func NewService(repo Store) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create validates params and adds a milestone to a visible contract.
func (s *Service) Create(ctx context.Context, caller access.Caller, params CreateParams) (Milestone, error) {
	params.Title = strings.TrimSpace(params.Title)

	v := validate.Errors{}
	v.Required("contract", params.ContractID)
	v.Required("title", params.Title)
	v.NonNegative("amount", params.Amount)
	v.Money("amount", params.Amount)
	checkOrder(v, params.Order)
	if err := v.Err(); err != nil {
		return Milestone{}, err
	}

	m, err := s.repo.Create(ctx, caller, params)
	if errors.Is(err, ErrContractNotFound) {
		return Milestone{}, validate.Errors{"contract": "Invalid pk \"" + params.ContractID + "\" - object does not exist."}
	}
	return m, err
}

// maxOrder is the largest value the integer sort_order column holds.
const maxOrder = math.MaxInt32

func checkOrder(v validate.Errors, order *int) {
	switch {
	case order == nil:
	case *order < 0:
		v.Add("order", "Ensure this value is greater than or equal to 0.")
	case *order > maxOrder:
		v.Add("order", "Ensure this value is less than or equal to 2147483647.")
	}
}

// List returns visible milestones; contractID narrows the result when set.
func (s *Service) List(ctx context.Context, caller access.Caller, contractID string) ([]Milestone, error) {
	return s.repo.List(ctx, caller, contractID)
}

func (s *Service) Get(ctx context.Context, caller access.Caller, id string) (Milestone, error) {
	return s.repo.Get(ctx, caller, id)
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, caller access.Caller, id string, params UpdateParams) (Milestone, error) {
	v := validate.Errors{}
	if params.Title != nil {
		t := strings.TrimSpace(*params.Title)
		params.Title = &t
		v.Required("title", t)
	}
	if params.Amount != nil {
		v.NonNegative("amount", params.Amount)
		v.Money("amount", params.Amount)
	}
	checkOrder(v, params.Order)
	if err := v.Err(); err != nil {
		return Milestone{}, err
	}
	return s.repo.Update(ctx, caller, id, params)
}

// UpdateStatus sets the status to raw. Moving into completed records today and
// the caller as completer unless a completion date already exists.
func (s *Service) UpdateStatus(ctx context.Context, caller access.Caller, id, raw string) (Milestone, error) {
	status, err := ParseStatus(raw)
	if err != nil {
		return Milestone{}, err
	}
	return s.repo.UpdateStatus(ctx, caller, id, StatusChange{
		Status:  status,
		Today:   today(s.now()),
		ActorID: caller.UserID,
	})
}

// Complete marks the milestone completed by caller with the given notes.
func (s *Service) Complete(ctx context.Context, caller access.Caller, id, notes string) (Milestone, error) {
	return s.repo.Complete(ctx, caller, id, Completion{
		Date:    today(s.now()),
		ActorID: caller.UserID,
		Notes:   notes,
	})
}

func today(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
