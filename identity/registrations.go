package identity

import (
	"context"
	"sync"

	"github.com/ivorscott/saas-core/msgstore"
)

// CategoryReader reads a slice of a category (see msgstore.Store)
type CategoryReader interface {
	ReadCategory(ctx context.Context, category string, fromPosition int64, maxMessages int) ([]msgstore.Message, error)
}

// Registrations maps auth0 accounts to the user ids they registered. It is
// caught up from the UserAdded events of the identity category on every
// lookup. The first registration of an account wins
type Registrations struct {
	reader CategoryReader

	mu       sync.Mutex
	position int64
	users    map[string]string
}

// NewRegistrations returns an empty index reading from reader
func NewRegistrations(reader CategoryReader) *Registrations {
	return &Registrations{
		reader: reader,
		users:  make(map[string]string),
	}
}

// Lookup catches up with the identity category and returns the user id
// registered by auth0ID
func (r *Registrations) Lookup(ctx context.Context, auth0ID string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		msgs, err := r.reader.ReadCategory(ctx, Category, r.position+1, msgstore.DefaultMaxMessages)
		if err != nil {
			return "", false, err
		}

		for _, m := range msgs {
			if e, ok := m.Data.(UserAdded); ok {
				r.record(e.Auth0ID, e.ID)
			}

			r.position = m.GlobalPosition
		}

		if len(msgs) < msgstore.DefaultMaxMessages {
			break
		}
	}

	id, ok := r.users[auth0ID]

	return id, ok, nil
}

// Record registers userID for auth0ID ahead of its UserAdded reaching the
// log store, as happens with broker transports
func (r *Registrations) Record(auth0ID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.record(auth0ID, userID)
}

func (r *Registrations) record(auth0ID, userID string) {
	if _, ok := r.users[auth0ID]; !ok {
		r.users[auth0ID] = userID
	}
}
