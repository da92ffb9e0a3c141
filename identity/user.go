package identity

import (
	"github.com/ivorscott/saas-core/msgstore/aggregate"
	"github.com/pkg/errors"
)

var (
	// ErrUserExists is returned when registering a user id taken by another auth0 account
	ErrUserExists = errors.New("user id already registered")

	// ErrUserNotFound is returned when modifying a user that was never added
	ErrUserNotFound = errors.New("user not found")
)

// UserID identifies a user entity stream
type UserID string

// User is the event sourced user entity
type User struct {
	aggregate.Root[UserID]

	Auth0ID       string
	Email         string
	EmailVerified bool
	FirstName     string
	LastName      string
	Locale        string
	Picture       string

	added bool
}

// NewUser returns a user to be loaded from the stream of id
func NewUser(id string) *User {
	var u User

	u.ID = UserID(id)

	return &u
}

// Add registers the user. Adding an already registered user with the same
// auth0 id emits nothing
func (u *User) Add(cmd AddUser) error {
	if u.added {
		if u.Auth0ID == cmd.Auth0ID {
			return nil
		}

		return errors.Wrapf(ErrUserExists, "%s by %s", u.ID, u.Auth0ID)
	}

	return u.Apply(UserAdded(cmd))
}

// Modify changes the user profile
func (u *User) Modify(cmd ModifyUser) error {
	if !u.added {
		return errors.Wrap(ErrUserNotFound, string(u.ID))
	}

	return u.Apply(UserModified(cmd))
}

// OnUserAdded handler
func (u *User) OnUserAdded(e UserAdded) {
	u.added = true
	u.Auth0ID = e.Auth0ID
	u.Email = e.Email
	u.EmailVerified = e.EmailVerified
	u.FirstName = e.FirstName
	u.LastName = e.LastName
	u.Locale = e.Locale
	u.Picture = e.Picture
}

// OnUserModified handler
func (u *User) OnUserModified(e UserModified) {
	u.FirstName = e.FirstName
	u.LastName = e.LastName
	u.Locale = e.Locale
	u.Picture = e.Picture
}
