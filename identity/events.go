// Package identity is the identity service domain: user registration
// commands, the events they produce, the User aggregate, and the users
// read model.
package identity

import "github.com/ivorscott/saas-core/msgstore"

// Category is the identity category. Commands go to identity.command and
// user events to identity.<user id>
const Category = "identity"

// AddUser asks for a user to be registered
type AddUser struct {
	Auth0ID       string `json:"auth0Id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
	FirstName     string `json:"firstName"`
	ID            string `json:"id"`
	LastName      string `json:"lastName"`
	Locale        string `json:"locale"`
	Picture       string `json:"picture"`
}

// ModifyUser asks for the profile of the user in metadata.userId to change
type ModifyUser struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Locale    string `json:"locale"`
	Picture   string `json:"picture"`
}

// UserAdded is emitted once per registered user
type UserAdded struct {
	Auth0ID       string `json:"auth0Id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
	FirstName     string `json:"firstName"`
	ID            string `json:"id"`
	LastName      string `json:"lastName"`
	Locale        string `json:"locale"`
	Picture       string `json:"picture"`
}

// UserModified is emitted once per ModifyUser trace
type UserModified struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Locale    string `json:"locale"`
	Picture   string `json:"picture"`
}

// Codec returns the envelope codec knowing every identity payload
func Codec() *msgstore.JSONCodec {
	return msgstore.NewJSONCodec(
		AddUser{},
		ModifyUser{},
		UserAdded{},
		UserModified{},
	)
}
