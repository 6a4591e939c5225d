package party

import "time"

// Profile is the public view of a party. Password material never leaves the
// auth package.
type Profile struct {
	ID          string
	Email       string
	FirstName   string
	LastName    string
	IsActive    bool
	IsSuperuser bool
	DateJoined  time.Time
}

// FullName joins first and last name, falling back to the email address.
func (p Profile) FullName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	case p.LastName != "":
		return p.LastName
	}
	return p.Email
}

// UpdateRequest carries optional profile changes. Nil fields are left alone.
type UpdateRequest struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Email       *string `json:"email"`
	IsActive    *bool   `json:"is_active"`
	NewPassword *string `json:"new_password"`
}

// UpdateParams is the persisted subset of UpdateRequest.
type UpdateParams struct {
	FirstName *string
	LastName  *string
	Email     *string
	IsActive  *bool
}
