package contract

import (
	"context"
	"errors"
	"strings"

	"escrowflow/access"
	"escrowflow/pkg/validate"
)

// ErrInvalidStatus signals a status outside the contract enum.
var ErrInvalidStatus = errors.New("contract: invalid status")

// Store abstracts repository operations for the service.
type Store interface {
	Create(ctx context.Context, createdBy string, params CreateParams, status Status) (Contract, error)
	List(ctx context.Context, caller access.Caller) ([]Contract, error)
	Get(ctx context.Context, caller access.Caller, id string) (Contract, error)
	Update(ctx context.Context, caller access.Caller, id string, params UpdateParams) (Contract, error)
	UpdateStatus(ctx context.Context, caller access.Caller, id string, status Status) (Contract, error)
}

// Service exposes contract operations scoped to the calling party.
type Service struct {
	repo Store
}

func NewService(repo Store) *Service {
	return &Service{repo: repo}
}

// Create validates params and stores a new contract with an empty escrow account.
func (s *Service) Create(ctx context.Context, caller access.Caller, params CreateParams) (Contract, error) {
	params.Title = strings.TrimSpace(params.Title)

	v := validate.Errors{}
	v.Required("intended_parent", params.IntendedParentID)
	v.Required("surrogate", params.SurrogateID)
	v.Required("title", params.Title)
	v.NonNegative("contract_amount", params.Amount)
	v.Money("contract_amount", params.Amount)

	status := StatusDraft
	if params.Status != "" {
		parsed, err := ParseStatus(params.Status)
		if err != nil {
			v.Add("status", "\""+params.Status+"\" is not a valid choice.")
		}
		status = parsed
	}
	if params.StartDate != nil && params.EndDate != nil && params.EndDate.Before(*params.StartDate) {
		v.Add("end_date", "End date must not be before start date.")
	}
	if err := v.Err(); err != nil {
		return Contract{}, err
	}

	return s.repo.Create(ctx, caller.UserID, params, status)
}

func (s *Service) List(ctx context.Context, caller access.Caller) ([]Contract, error) {
	return s.repo.List(ctx, caller)
}

func (s *Service) Get(ctx context.Context, caller access.Caller, id string) (Contract, error) {
	return s.repo.Get(ctx, caller, id)
}

// Update applies a partial update to a visible contract.
func (s *Service) Update(ctx context.Context, caller access.Caller, id string, params UpdateParams) (Contract, error) {
	v := validate.Errors{}
	if params.Title != nil {
		t := strings.TrimSpace(*params.Title)
		params.Title = &t
		v.Required("title", t)
	}
	if params.Amount != nil {
		v.NonNegative("contract_amount", params.Amount)
		v.Money("contract_amount", params.Amount)
	}
	if err := v.Err(); err != nil {
		return Contract{}, err
	}

	if params.StartDate != nil || params.EndDate != nil {
		current, err := s.repo.Get(ctx, caller, id)
		if err != nil {
			return Contract{}, err
		}
		start, end := current.StartDate, current.EndDate
		if params.StartDate != nil {
			start = params.StartDate
		}
		if params.EndDate != nil {
			end = params.EndDate
		}
		if start != nil && end != nil && end.Before(*start) {
			return Contract{}, validate.Errors{"end_date": "End date must not be before start date."}
		}
	}
	return s.repo.Update(ctx, caller, id, params)
}

// UpdateStatus sets the contract status to raw if it is a member of the enum.
func (s *Service) UpdateStatus(ctx context.Context, caller access.Caller, id, raw string) (Contract, error) {
	status, err := ParseStatus(raw)
	if err != nil {
		return Contract{}, err
	}
	return s.repo.UpdateStatus(ctx, caller, id, status)
}
