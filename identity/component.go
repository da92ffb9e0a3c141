package identity

import (
	"context"
	"sync"

	"github.com/ivorscott/saas-core/msgstore"
	"github.com/ivorscott/saas-core/msgstore/aggregate"
	"github.com/pkg/errors"
)

// ComponentID is the subscriber id of the identity command processor
const ComponentID = "components:identity"

// Component turns identity commands into user events. Each command
// replays what it would affect first, so a redelivered command never emits
// a second event: AddUser checks the auth0 account against every
// registration in the category, ModifyUser replays the user stream
type Component struct {
	users         *aggregate.Store[*User]
	registrations *Registrations
	codec         *msgstore.JSONCodec
	sub           *msgstore.Subscription

	// serializes the registration check with the emit
	addMu sync.Mutex
}

// NewComponent builds the command processor. Events are emitted through
// publisher and replayed from store. The subscription to identity.command
// is only created by Subscribe, so the component can be fed by a transport
// listener instead (see Listen)
func NewComponent(store *msgstore.Store, publisher aggregate.Publisher) *Component {
	return &Component{
		users:         aggregate.NewStore[*User](Category, store, publisher),
		registrations: NewRegistrations(store),
		codec:         store.Codec(),
	}
}

// Subscribe subscribes the component to the identity command stream
func (c *Component) Subscribe(store *msgstore.Store, opts ...msgstore.SubscriptionOpt) (*msgstore.Subscription, error) {
	hs, err := c.Handlers()
	if err != nil {
		return nil, err
	}

	c.sub, err = store.Subscribe(msgstore.CommandStream(Category), ComponentID, hs, opts...)
	if err != nil {
		return nil, err
	}

	return c.sub, nil
}

// Handlers returns the command handlers
func (c *Component) Handlers() (msgstore.Handlers, error) {
	return msgstore.NewHandlers(
		msgstore.On(c.addUser),
		msgstore.On(c.modifyUser),
	)
}

// Listen returns a transport listener decoding command envelopes and
// dispatching them to the command handlers. Undecodable envelopes are
// logged and acknowledged
func (c *Component) Listen() (func(ctx context.Context, data []byte) error, error) {
	hs, err := c.Handlers()
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, data []byte) error {
		m, err := c.codec.DecodeText(data)
		if err != nil {
			log.WithError(err).Error("decoding command", "size", len(data))

			return nil
		}

		return hs.Dispatch(ctx, m)
	}, nil
}

func (c *Component) addUser(ctx context.Context, m msgstore.Message, cmd AddUser) error {
	if cmd.ID == "" {
		log.Warning("add user without user id", "command", m.ID, "auth0Id", cmd.Auth0ID)

		return nil
	}

	if cmd.Auth0ID == "" {
		log.Warning("add user without auth0 id", "command", m.ID, "user", cmd.ID)

		return nil
	}

	c.addMu.Lock()
	defer c.addMu.Unlock()

	registered, ok, err := c.registrations.Lookup(ctx, cmd.Auth0ID)
	if err != nil {
		return errors.Wrap(err, "looking up registrations")
	}

	if ok {
		log.Info("auth0 account already registered", "command", m.ID, "auth0Id", cmd.Auth0ID, "user", registered)

		return nil
	}

	u := NewUser(cmd.ID)

	err = aggregate.Init(ctx, c.users, u, func(context.Context) error {
		return u.Add(cmd)
	})
	if errors.Is(err, ErrUserExists) {
		log.WithError(err).Warning("rejecting add user", "command", m.ID, "auth0Id", cmd.Auth0ID)

		return nil
	}

	if err != nil {
		return err
	}

	c.registrations.Record(cmd.Auth0ID, cmd.ID)

	return nil
}

func (c *Component) modifyUser(ctx context.Context, m msgstore.Message, cmd ModifyUser) error {
	md := m.Metadata

	if md.UserID == "" {
		log.Warning("modify user without user id", "command", m.ID, "trace", md.TraceID)

		return nil
	}

	u := NewUser(md.UserID)

	err := aggregate.Exec(ctx, c.users, u, func(context.Context) error {
		if md.TraceID != "" && u.Caused(md.TraceID) {
			return nil
		}

		return u.Modify(cmd)
	})
	if errors.Is(err, aggregate.ErrAggregateNotFound) || errors.Is(err, ErrUserNotFound) {
		log.WithError(err).Warning("rejecting modify user", "command", m.ID, "user", md.UserID)

		return nil
	}

	return err
}

// Subscription returns the command subscription, nil before Subscribe
func (c *Component) Subscription() *msgstore.Subscription { return c.sub }
