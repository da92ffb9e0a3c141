package aggregate

import (
	"context"

	"github.com/ivorscott/saas-core/msgstore"
	"github.com/pkg/errors"
)

// ErrAggregateNotFound is returned when the aggregate entity stream has no events
var ErrAggregateNotFound = errors.New("aggregate not found")

// NewStore constructs new event sourced aggregate store over the entity
// streams of category
func NewStore[T Rooter](category string, reader StreamReader, publisher Publisher) *Store[T] {
	return &Store[T]{
		category:  category,
		reader:    reader,
		publisher: publisher,
	}
}

// StreamReader reads an entity stream (see msgstore.Store)
type StreamReader interface {
	ReadStream(ctx context.Context, stream string) ([]msgstore.Message, error)
}

// Publisher publishes an event to a stream (see msgstore.Publisher)
type Publisher interface {
	Publish(ctx context.Context, stream string, msg msgstore.Message) (msgstore.Message, error)
}

// Store represents event sourced aggregate store
type Store[T Rooter] struct {
	category  string
	reader    StreamReader
	publisher Publisher
}

// Save publishes uncommitted aggregate events to the aggregate entity stream.
// Metadata is taken from ctx, so events emitted while handling a command
// carry the command's trace id
func (s *Store[T]) Save(ctx context.Context, aggregate T) error {
	stream := msgstore.EntityStream(s.category, aggregate.StringID())

	for _, evt := range aggregate.Events() {
		_, err := s.publisher.Publish(ctx, stream, msgstore.Message{Data: evt})
		if err != nil {
			return err
		}
	}

	aggregate.commit()

	return nil
}

// ByID reads the aggregate entity stream and rehydrates the aggregate.
// When the stream is empty the aggregate is rehydrated with no events
// and ErrAggregateNotFound is returned
func (s *Store[T]) ByID(ctx context.Context, id string, root T) error {
	events, err := s.reader.ReadStream(ctx, msgstore.EntityStream(s.category, id))
	if err != nil && !errors.Is(err, msgstore.ErrStreamNotFound) {
		return err
	}

	rerr := root.Rehydrate(root, events...)
	if rerr != nil {
		return rerr
	}

	if len(events) == 0 {
		return ErrAggregateNotFound
	}

	return nil
}
