// Package access scopes queries to the contracts the calling party may see.
//
// Every party-scoped repository uses the same predicate: a privileged caller
// sees every row, anyone else only rows whose contract names them as the
// intended parent or the surrogate.
package access

import (
	"context"
	"fmt"
)

// Caller identifies the authenticated party issuing a request.
type Caller struct {
	UserID    string
	Superuser bool
}

// ContractPredicate renders the visibility condition for the contracts table
// aliased as alias. It consumes two positional parameters starting at first:
// $first is the superuser flag and $first+1 the caller id (see Args).
func (c Caller) ContractPredicate(alias string, first int) string {
	return fmt.Sprintf("($%[2]d::boolean OR %[1]s.intended_parent_id = $%[3]d::uuid OR %[1]s.surrogate_id = $%[3]d::uuid)",
		alias, first, first+1)
}

// Args returns the positional arguments consumed by ContractPredicate.
func (c Caller) Args() []any {
	return []any{c.Superuser, c.UserID}
}

// IsParty reports whether the caller is one of the two named parties or privileged.
func (c Caller) IsParty(intendedParentID, surrogateID string) bool {
	return c.Superuser || c.UserID == intendedParentID || c.UserID == surrogateID
}

// CanManageUser reports whether the caller may read or modify the given user.
func (c Caller) CanManageUser(userID string) bool {
	return c.Superuser || c.UserID == userID
}

type ctxKey struct{}

// WithCaller stores the caller on ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the caller stored on ctx, if any.
func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(ctxKey{}).(Caller)
	return c, ok && c.UserID != ""
}
