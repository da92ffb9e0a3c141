package identity

import (
	"context"

	"github.com/iidesho/bragi/sbragi"
	"github.com/ivorscott/saas-core/msgstore"
)

var log = sbragi.WithLocalScope(sbragi.LevelInfo)

// AggregatorID is the subscriber id of the users projection
const AggregatorID = "aggregators:user-registration"

// Aggregator projects user events of the identity category into the
// users read model
type Aggregator struct {
	rm  *ReadModel
	sub *msgstore.Subscription
}

// NewAggregator subscribes the users projection to the identity category
func NewAggregator(store *msgstore.Store, rm *ReadModel, opts ...msgstore.SubscriptionOpt) (*Aggregator, error) {
	a := &Aggregator{rm: rm}

	hs, err := a.Handlers()
	if err != nil {
		return nil, err
	}

	a.sub, err = store.Subscribe(Category, AggregatorID, hs, opts...)
	if err != nil {
		return nil, err
	}

	return a, nil
}

// Handlers returns the projection handlers
func (a *Aggregator) Handlers() (msgstore.Handlers, error) {
	return msgstore.NewHandlers(
		msgstore.On(a.userAdded),
		msgstore.On(a.userModified),
	)
}

func (a *Aggregator) userAdded(ctx context.Context, _ msgstore.Message, e UserAdded) error {
	return a.rm.AddUser(ctx, e)
}

func (a *Aggregator) userModified(ctx context.Context, m msgstore.Message, e UserModified) error {
	id := msgstore.EntityID(m.StreamName)
	if id == "" {
		log.Warning("user modified outside a user stream", "stream", m.StreamName, "id", m.ID)

		return nil
	}

	return a.rm.ModifyUser(ctx, id, e)
}

// Subscription returns the underlying subscription
func (a *Aggregator) Subscription() *msgstore.Subscription { return a.sub }

// Run runs the projection until stopped
func (a *Aggregator) Run(ctx context.Context) error { return a.sub.Run(ctx) }

// Stop stops the projection
func (a *Aggregator) Stop() { a.sub.Stop() }
