package identity_test

import (
	"testing"

	"github.com/ivorscott/saas-core/identity"
	"github.com/ivorscott/saas-core/msgstore"
	"github.com/stretchr/testify/assert"
)

func TestUserAddIsIdempotentPerAuth0Account(t *testing.T) {
	u := identity.NewUser("42")

	err := u.Rehydrate(u, msgstore.Message{
		Type:     "UserAdded",
		Seq:      1,
		Metadata: msgstore.Metadata{TraceID: "trace-1"},
		Data:     identity.UserAdded(addUser("42")),
	})

	assert.NoError(t, err)
	assert.Equal(t, "auth0|42", u.Auth0ID)
	assert.True(t, u.Caused("trace-1"))

	assert.NoError(t, u.Add(addUser("42")))
	assert.Empty(t, u.Events())

	other := addUser("42")
	other.Auth0ID = "auth0|other"

	assert.ErrorIs(t, u.Add(other), identity.ErrUserExists)
	assert.Empty(t, u.Events())
}

func TestNewUserCanBeAdded(t *testing.T) {
	u := identity.NewUser("42")

	assert.NoError(t, u.Rehydrate(u))
	assert.NoError(t, u.Add(addUser("42")))

	assert.Equal(t, []any{identity.UserAdded(addUser("42"))}, u.Events())
	assert.Equal(t, "auth0|42", u.Auth0ID)
}

func TestModifyRequiresAddedUser(t *testing.T) {
	u := identity.NewUser("42")

	assert.NoError(t, u.Rehydrate(u))

	assert.ErrorIs(t, u.Modify(identity.ModifyUser{FirstName: "Ivy"}), identity.ErrUserNotFound)

	assert.NoError(t, u.Add(addUser("42")))
	assert.NoError(t, u.Modify(identity.ModifyUser{FirstName: "Ivy"}))

	assert.Equal(t, "Ivy", u.FirstName)
	assert.Len(t, u.Events(), 2)
}
