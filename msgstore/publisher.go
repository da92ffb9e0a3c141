package msgstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DefaultPublishTimeout bounds a publish when the caller's context has no deadline
const DefaultPublishTimeout = 5 * time.Second

// Transport appends serialized message text to a stream and returns
// once the append was durably accepted
type Transport interface {
	Publish(ctx context.Context, stream string, text []byte) error
}

// TransportFunc adapts a function to Transport
type TransportFunc func(ctx context.Context, stream string, text []byte) error

// Publish calls f
func (f TransportFunc) Publish(ctx context.Context, stream string, text []byte) error {
	return f(ctx, stream, text)
}

// PublisherOpt represents publisher option
type PublisherOpt func(*Publisher)

// WithPublishTimeout overrides DefaultPublishTimeout
func WithPublishTimeout(d time.Duration) PublisherOpt {
	return func(p *Publisher) {
		p.timeout = d
	}
}

// NewPublisher constructs a publisher encoding messages with codec
// and handing them to transport
func NewPublisher(transport Transport, codec *JSONCodec, opts ...PublisherOpt) *Publisher {
	p := Publisher{
		transport: transport,
		codec:     codec,
		timeout:   DefaultPublishTimeout,
	}

	for _, opt := range opts {
		opt(&p)
	}

	return &p
}

// Publisher serializes commands and events and publishes them to a transport.
// Publish does not retry, a failed publish is returned as *PublishError
type Publisher struct {
	transport Transport
	codec     *JSONCodec
	timeout   time.Duration
}

// Publish publishes msg to stream. Missing id is generated, missing
// type is derived from the payload and missing metadata is taken from ctx
// (see WithMetadata). It returns the published message
func (p *Publisher) Publish(ctx context.Context, stream string, msg Message) (Message, error) {
	if msg.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return msg, err
		}

		msg.ID = id.String()
	}

	if msg.Type == "" && msg.Data != nil {
		msg.Type = TypeName(msg.Data)
	}

	if msg.Metadata == (Metadata{}) {
		msg.Metadata = MetadataFrom(ctx)
	}

	text, err := p.codec.Encode(msg)
	if err != nil {
		return msg, errors.Wrap(err, "encoding message")
	}

	if _, ok := ctx.Deadline(); !ok && p.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, p.timeout)

		defer cancel()
	}

	if err := p.transport.Publish(ctx, stream, text); err != nil {
		return msg, &PublishError{Stream: stream, Err: err}
	}

	msg.StreamName = stream

	log.Debug("message published", "stream", stream, "type", msg.Type, "id", msg.ID)

	return msg, nil
}
