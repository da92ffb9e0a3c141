// Package stan implements the message transport over NATS Streaming.
//
// Publishing is fire-and-confirm: Publish returns only after the streaming
// server has acknowledged the message. Listeners are durable queue
// subscriptions with manual acknowledgement, so a message is redelivered
// until its handler succeeds.
package stan

import (
	"context"
	"sync"
	"time"

	"github.com/iidesho/bragi/sbragi"
	"github.com/ivorscott/saas-core/msgstore"
	"github.com/nats-io/stan.go"
	"github.com/pkg/errors"
)

var log = sbragi.WithLocalScope(sbragi.LevelInfo)

const (
	// DefaultAckWait is how long the server waits for a listener ack before redelivering
	DefaultAckWait = 5 * time.Second

	// DefaultReconnectWait is the pause between reconnect attempts
	DefaultReconnectWait = 2 * time.Second
)

// ErrClosed is returned when using a closed connection
var ErrClosed = errors.New("stan connection closed")

var _ msgstore.Transport = (*Conn)(nil)

// Config holds NATS Streaming connection settings
type Config struct {
	URL           string
	ClusterID     string
	ClientID      string
	AckWait       time.Duration
	ReconnectWait time.Duration
}

// Validate checks the connection settings
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("stan url is required")
	}

	if c.ClusterID == "" {
		return errors.New("stan cluster id is required")
	}

	if c.ClientID == "" {
		return errors.New("stan client id is required")
	}

	return nil
}

func (c Config) withDefaults() Config {
	if c.AckWait <= 0 {
		c.AckWait = DefaultAckWait
	}

	if c.ReconnectWait <= 0 {
		c.ReconnectWait = DefaultReconnectWait
	}

	return c
}

// ListenFunc handles a delivered message body. A nil error acks the message
type ListenFunc func(ctx context.Context, data []byte) error

type listener struct {
	subject    string
	queueGroup string
	fn         ListenFunc
}

// Conn owns a NATS Streaming connection. When the connection is lost it
// is rebuilt by Reconnect and every listener is subscribed again on the
// new connection
type Conn struct {
	cfg     Config
	connect func(cfg Config, onLost stan.ConnectionLostHandler) (stan.Conn, error)

	mu        sync.RWMutex
	sc        stan.Conn
	listeners []listener
	closed    bool
}

// Connect opens a connection to the streaming server
func Connect(cfg Config) (*Conn, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	c := &Conn{
		cfg:     cfg.withDefaults(),
		connect: dial,
	}

	sc, err := c.connect(c.cfg, c.connectionLost)
	if err != nil {
		return nil, err
	}

	c.sc = sc

	return c, nil
}

func dial(cfg Config, onLost stan.ConnectionLostHandler) (stan.Conn, error) {
	sc, err := stan.Connect(
		cfg.ClusterID,
		cfg.ClientID,
		stan.NatsURL(cfg.URL),
		stan.SetConnectionLostHandler(onLost),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", cfg.URL)
	}

	return sc, nil
}

// Publish publishes text to the stream subject and waits for the server ack
func (c *Conn) Publish(ctx context.Context, stream string, text []byte) error {
	sc, err := c.conn()
	if err != nil {
		return err
	}

	acked := make(chan error, 1)

	guid, err := sc.PublishAsync(stream, text, func(_ string, err error) {
		acked <- err
	})
	if err != nil {
		return errors.Wrapf(err, "publishing to %s", stream)
	}

	select {
	case err := <-acked:
		if err != nil {
			return errors.Wrapf(err, "ack for %s", guid)
		}

		log.Debug("published", "subject", stream, "guid", guid)

		return nil
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "waiting ack for %s", guid)
	}
}

// Listen subscribes fn to subject as a durable member of queueGroup,
// delivering all available messages. fn must succeed for a message to be
// acked; otherwise the server redelivers it after the ack wait
func (c *Conn) Listen(subject, queueGroup string, fn ListenFunc) error {
	l := listener{
		subject:    subject,
		queueGroup: queueGroup,
		fn:         fn,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	err := c.subscribe(c.sc, l)
	if err != nil {
		return err
	}

	c.listeners = append(c.listeners, l)

	return nil
}

func (c *Conn) subscribe(sc stan.Conn, l listener) error {
	_, err := sc.QueueSubscribe(
		l.subject,
		l.queueGroup,
		func(m *stan.Msg) {
			deliver(l, m.Data, m.Sequence, m.Ack)
		},
		stan.DeliverAllAvailable(),
		stan.SetManualAckMode(),
		stan.AckWait(c.cfg.AckWait),
		stan.DurableName(l.queueGroup),
	)

	return errors.Wrapf(err, "subscribing to %s", l.subject)
}

func deliver(l listener, data []byte, seq uint64, ack func() error) {
	err := l.fn(context.Background(), data)
	if err != nil {
		log.WithError(err).Error("handling delivery", "subject", l.subject, "seq", seq)

		return
	}

	err = ack()
	if err != nil {
		log.WithError(err).Warning("acking delivery", "subject", l.subject, "seq", seq)
	}
}

// Reconnect replaces the connection with a fresh one and resubscribes
// every listener on it
func (c *Conn) Reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	sc, err := c.connect(c.cfg, c.connectionLost)
	if err != nil {
		return err
	}

	for _, l := range c.listeners {
		err := c.subscribe(sc, l)
		if err != nil {
			_ = sc.Close()

			return err
		}
	}

	if c.sc != nil {
		_ = c.sc.Close()
	}

	c.sc = sc

	return nil
}

func (c *Conn) connectionLost(_ stan.Conn, reason error) {
	log.WithError(reason).Error("stan connection lost", "cluster", c.cfg.ClusterID)

	go c.reconnectLoop()
}

func (c *Conn) reconnectLoop() {
	for {
		err := c.Reconnect()
		if err == nil {
			log.Info("stan reconnected", "cluster", c.cfg.ClusterID)

			return
		}

		if errors.Is(err, ErrClosed) {
			return
		}

		log.WithError(err).Warning("stan reconnect", "retry_in", c.cfg.ReconnectWait)

		time.Sleep(c.cfg.ReconnectWait)
	}
}

func (c *Conn) conn() (stan.Conn, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrClosed
	}

	return c.sc, nil
}

// Close closes the connection; listeners are not resubscribed afterwards
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true

	if c.sc == nil {
		return nil
	}

	return c.sc.Close()
}
