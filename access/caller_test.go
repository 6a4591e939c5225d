package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContractPredicate_NumbersParameters(t *testing.T) {
	c := Caller{UserID: "u1"}

	got := c.ContractPredicate("c", 3)
	assert.Equal(t, "($3::boolean OR c.intended_parent_id = $4::uuid OR c.surrogate_id = $4::uuid)", got)
	assert.Equal(t, []any{false, "u1"}, c.Args())
}

func TestCaller_IsParty(t *testing.T) {
	parent, surrogate := "parent", "surrogate"

	assert.True(t, Caller{UserID: parent}.IsParty(parent, surrogate))
	assert.True(t, Caller{UserID: surrogate}.IsParty(parent, surrogate))
	assert.False(t, Caller{UserID: "stranger"}.IsParty(parent, surrogate))
	assert.True(t, Caller{UserID: "admin", Superuser: true}.IsParty(parent, surrogate))
}

func TestCaller_CanManageUser(t *testing.T) {
	assert.True(t, Caller{UserID: "u1"}.CanManageUser("u1"))
	assert.False(t, Caller{UserID: "u1"}.CanManageUser("u2"))
	assert.True(t, Caller{UserID: "admin", Superuser: true}.CanManageUser("u2"))
}

func TestContextRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)

	ctx := WithCaller(context.Background(), Caller{UserID: "u1", Superuser: true})
	c, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", c.UserID)
	assert.True(t, c.Superuser)

	_, ok = FromContext(WithCaller(context.Background(), Caller{}))
	assert.False(t, ok)
}
