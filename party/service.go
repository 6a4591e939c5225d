package party

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"escrowflow/access"
	"escrowflow/pkg/validate"
)

// ErrForbidden signals the caller may not read or modify the requested party.
var ErrForbidden = errors.New("party: you do not have permission to perform this action")

// Store abstracts repository operations for the service.
type Store interface {
	GetByID(ctx context.Context, id string) (Profile, error)
	ListActive(ctx context.Context) ([]Profile, error)
	Update(ctx context.Context, id string, params UpdateParams) (Profile, error)
}

// PasswordSetter stores a new password without checking the old one.
type PasswordSetter interface {
	SetPassword(ctx context.Context, userID, password string) error
}

// Service exposes business-level party operations.
type Service struct {
	repo      Store
	passwords PasswordSetter
}

// NewService builds a Service using the provided repository. passwords may be
// nil, in which case password resets are rejected.
func NewService(repo Store, passwords PasswordSetter) *Service {
	return &Service{repo: repo, passwords: passwords}
}

// Get returns the profile of id when the caller is that party or a superuser.
func (s *Service) Get(ctx context.Context, caller access.Caller, id string) (Profile, error) {
	if !caller.CanManageUser(id) {
		return Profile{}, ErrForbidden
	}
	return s.repo.GetByID(ctx, id)
}

// ListActive returns every active party ordered by email.
func (s *Service) ListActive(ctx context.Context) ([]Profile, error) {
	return s.repo.ListActive(ctx)
}

// Update modifies the party id on behalf of caller. A party may edit their own
// name; superusers may also change email, activation and reset the password.
func (s *Service) Update(ctx context.Context, caller access.Caller, id string, req UpdateRequest) (Profile, error) {
	if !caller.CanManageUser(id) {
		return Profile{}, ErrForbidden
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return Profile{}, err
	}

	params := UpdateParams{
		FirstName: trimmed(req.FirstName),
		LastName:  trimmed(req.LastName),
	}

	if caller.Superuser {
		v := validate.Errors{}
		if req.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*req.Email))
			if _, err := mail.ParseAddress(email); err != nil {
				v.Add("email", "Enter a valid email address.")
			}
			params.Email = &email
		}
		if req.NewPassword != nil && strings.TrimSpace(*req.NewPassword) == "" {
			v.Add("new_password", "This field may not be blank.")
		}
		if err := v.Err(); err != nil {
			return Profile{}, err
		}
		params.IsActive = req.IsActive

		if req.NewPassword != nil {
			if s.passwords == nil {
				return Profile{}, ErrForbidden
			}
			if err := s.passwords.SetPassword(ctx, id, *req.NewPassword); err != nil {
				return Profile{}, err
			}
		}
	}

	return s.repo.Update(ctx, id, params)
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}
