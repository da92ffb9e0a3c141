// Package amqp implements the message transport over RabbitMQ with
// publisher confirms. Messages are published to a topic exchange with the
// stream name as routing key.
package amqp

import (
	"context"
	"sync"

	"github.com/iidesho/bragi/sbragi"
	"github.com/ivorscott/saas-core/msgstore"
	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"
)

var log = sbragi.WithLocalScope(sbragi.LevelInfo)

// ErrNacked is returned when the broker refuses a message
var ErrNacked = errors.New("amqp publish nacked")

var _ msgstore.Transport = (*Publisher)(nil)

// Config holds broker settings
type Config struct {
	URL      string
	Exchange string
}

// Validate checks broker settings
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("amqp url is required")
	}

	if c.Exchange == "" {
		return errors.New("amqp exchange is required")
	}

	return nil
}

// Publisher publishes messages in confirm mode
type Publisher struct {
	exchange string

	mu   sync.Mutex
	conn *amqp091.Connection
	ch   *amqp091.Channel
}

// Dial connects to the broker, declares the exchange and puts the channel
// in confirm mode
func Dial(cfg Config) (*Publisher, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "dial amqp")
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()

		return nil, errors.Wrap(err, "open channel")
	}

	err = ch.ExchangeDeclare(cfg.Exchange, amqp091.ExchangeTopic, true, false, false, false, nil)
	if err != nil {
		_ = conn.Close()

		return nil, errors.Wrapf(err, "declare exchange %s", cfg.Exchange)
	}

	err = ch.Confirm(false)
	if err != nil {
		_ = conn.Close()

		return nil, errors.Wrap(err, "confirm mode")
	}

	return &Publisher{
		exchange: cfg.Exchange,
		conn:     conn,
		ch:       ch,
	}, nil
}

// Publish publishes text routed by stream and waits for the broker confirm
func (p *Publisher) Publish(ctx context.Context, stream string, text []byte) error {
	p.mu.Lock()
	dc, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, stream, false, false, Publishing(stream, text))
	p.mu.Unlock()

	if err != nil {
		return errors.Wrapf(err, "publishing to %s", stream)
	}

	ok, err := dc.WaitContext(ctx)
	if err != nil {
		return errors.Wrapf(err, "confirm for %s", stream)
	}

	if !ok {
		return errors.Wrap(ErrNacked, stream)
	}

	log.Debug("published", "exchange", p.exchange, "stream", stream, "tag", dc.DeliveryTag)

	return nil
}

// Close closes the channel and the connection
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_ = p.ch.Close()

	return p.conn.Close()
}

// Publishing builds the persistent amqp message for text
func Publishing(stream string, text []byte) amqp091.Publishing {
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Type:         stream,
		Body:         text,
	}
}
