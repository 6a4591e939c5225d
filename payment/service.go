package payment

import (
	"context"
	"errors"

	"escrowflow/access"
	"escrowflow/pkg/validate"
)

// ErrInvalidStatus signals a status outside the payment enum.
var ErrInvalidStatus = errors.New("payment: invalid status")

// Store abstracts repository operations for the service.
type Store interface {
	Create(ctx context.Context, caller access.Caller, params CreateParams, typ Type) (Payment, error)
	List(ctx context.Context, caller access.Caller, contractID string) ([]Payment, error)
	Get(ctx context.Context, caller access.Caller, id string) (Payment, error)
	UpdateStatus(ctx context.Context, caller access.Caller, id string, status Status) (Payment, error)
}

type Service struct {
	repo Store
}

func NewService(repo Store) *Service {
	return &Service{repo: repo}
}

// Create records a pending payment against a visible contract.
func (s *Service) Create(ctx context.Context, caller access.Caller, params CreateParams) (Payment, error) {
	v := validate.Errors{}
	v.Required("contract", params.ContractID)
	v.Required("payer", params.PayerID)
	v.Required("payee", params.PayeeID)
	v.Positive("amount", params.Amount)
	v.Money("amount", params.Amount)

	typ, ok := ParseType(params.Type)
	if !ok {
		if params.Type == "" {
			v.Add("payment_type", "This field is required.")
		} else {
			v.Add("payment_type", "\""+params.Type+"\" is not a valid choice.")
		}
	}
	if err := v.Err(); err != nil {
		return Payment{}, err
	}

	p, err := s.repo.Create(ctx, caller, params, typ)
	switch {
	case errors.Is(err, ErrContractNotFound):
		return Payment{}, validate.Errors{"contract": "Invalid pk \"" + params.ContractID + "\" - object does not exist."}
	case errors.Is(err, ErrDuplicateTransaction):
		return Payment{}, validate.Errors{"transaction_id": "payment with this transaction id already exists."}
	case errors.Is(err, ErrUnknownParty):
		return Payment{}, validate.Errors{"payer": "Payer or payee does not exist."}
	}
	return p, err
}

// List returns visible payments; contractID narrows the result when set.
func (s *Service) List(ctx context.Context, caller access.Caller, contractID string) ([]Payment, error) {
	return s.repo.List(ctx, caller, contractID)
}

func (s *Service) Get(ctx context.Context, caller access.Caller, id string) (Payment, error) {
	return s.repo.Get(ctx, caller, id)
}

// UpdateStatus sets the payment status to raw if it is a member of the enum.
func (s *Service) UpdateStatus(ctx context.Context, caller access.Caller, id, raw string) (Payment, error) {
	status, err := ParseStatus(raw)
	if err != nil {
		return Payment{}, err
	}
	return s.repo.UpdateStatus(ctx, caller, id, status)
}
