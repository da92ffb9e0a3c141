package msgstore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iidesho/bragi/sbragi"
	"github.com/pkg/errors"
)

var log = sbragi.WithLocalScope(sbragi.LevelInfo)

const (
	// DefaultMessagesPerTick is the default batch size of a subscription
	DefaultMessagesPerTick = 100

	// DefaultPositionUpdateInterval is the default number of processed
	// messages between checkpoint writes
	DefaultPositionUpdateInterval = 100

	// DefaultTickInterval is the default idle backoff
	DefaultTickInterval = 100 * time.Millisecond
)

// State of a subscription
type State int32

// Subscription states
const (
	StateStopped State = iota
	StatePolling
	StateIdle
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateIdle:
		return "idle"
	default:
		return "stopped"
	}
}

// SubscriptionStore is the part of the log store a subscription reads from
// and checkpoints to. This package offers Store as SubscriptionStore implementation
type SubscriptionStore interface {
	ReadCategory(ctx context.Context, category string, fromPosition int64, maxMessages int) ([]Message, error)
	ReadLastCheckpoint(ctx context.Context, subscriberID string) (*Checkpoint, error)
	WriteCheckpoint(ctx context.Context, subscriberID string, position int64) error
}

// SubscriptionConfig (configure using SubscriptionOpt)
type SubscriptionConfig struct {
	messagesPerTick        int
	positionUpdateInterval int
	tickInterval           time.Duration
	metrics                *Metrics
}

// SubscriptionOpt represents subscription option
type SubscriptionOpt func(SubscriptionConfig) SubscriptionConfig

// WithMessagesPerTick sets the batch size (limit) of each category read
func WithMessagesPerTick(n int) SubscriptionOpt {
	return func(cfg SubscriptionConfig) SubscriptionConfig {
		cfg.messagesPerTick = n

		return cfg
	}
}

// WithPositionUpdateInterval sets after how many processed messages
// the subscription writes its checkpoint
func WithPositionUpdateInterval(n int) SubscriptionOpt {
	return func(cfg SubscriptionConfig) SubscriptionConfig {
		cfg.positionUpdateInterval = n

		return cfg
	}
}

// WithTickInterval sets the backoff used when a read returns no messages
func WithTickInterval(d time.Duration) SubscriptionOpt {
	return func(cfg SubscriptionConfig) SubscriptionConfig {
		cfg.tickInterval = d

		return cfg
	}
}

// WithMetrics reports subscription progress to m
func WithMetrics(m *Metrics) SubscriptionOpt {
	return func(cfg SubscriptionConfig) SubscriptionConfig {
		cfg.metrics = m

		return cfg
	}
}

// Subscribe creates a subscription of subscriberID to a category.
// Every handled message type must be registered with the store's codec
func (s *Store) Subscribe(category, subscriberID string, handlers Handlers, opts ...SubscriptionOpt) (*Subscription, error) {
	if err := handlers.Validate(s.codec); err != nil {
		return nil, err
	}

	return NewSubscription(s, category, subscriberID, handlers, opts...)
}

// NewSubscription constructs a polling subscription
func NewSubscription(
	store SubscriptionStore,
	category string,
	subscriberID string,
	handlers Handlers,
	opts ...SubscriptionOpt) (*Subscription, error) {

	cfg := SubscriptionConfig{
		messagesPerTick:        DefaultMessagesPerTick,
		positionUpdateInterval: DefaultPositionUpdateInterval,
		tickInterval:           DefaultTickInterval,
	}

	for _, opt := range opts {
		cfg = opt(cfg)
	}

	if category == "" {
		return nil, errors.New("category must be provided")
	}

	if subscriberID == "" {
		return nil, errors.New("subscriber id must be provided")
	}

	if cfg.messagesPerTick < 1 {
		return nil, errors.New("messages per tick should be at least 1")
	}

	if cfg.positionUpdateInterval < 1 {
		return nil, errors.New("position update interval should be at least 1")
	}

	if cfg.tickInterval <= 0 {
		return nil, errors.New("tick interval should be positive")
	}

	return &Subscription{
		store:    store,
		category: category,
		id:       subscriberID,
		handlers: handlers,
		cfg:      cfg,
		stop:     make(chan struct{}),
	}, nil
}

// Subscription polls a category stream and delivers its messages one at a
// time, in global position order, to the handlers. Progress is checkpointed
// every position update interval messages so a restarted subscription
// resumes after the last checkpoint (messages after it are redelivered).
//
// A subscription runs once: after it stops a new one has to be constructed
type Subscription struct {
	store    SubscriptionStore
	category string
	id       string
	handlers Handlers
	cfg      SubscriptionConfig

	state    atomic.Int32
	running  atomic.Bool
	position atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once

	mu  sync.Mutex
	err error

	// only touched by the poll loop
	sinceCheckpoint int
}

// ID returns subscriber id
func (s *Subscription) ID() string { return s.id }

// Category returns subscribed category
func (s *Subscription) Category() string { return s.category }

// State returns current state
func (s *Subscription) State() State { return State(s.state.Load()) }

// Position returns global position of the last processed message
func (s *Subscription) Position() int64 { return s.position.Load() }

// Err returns the error that stopped the subscription, if any
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// Stop prevents the next tick from starting. A tick in flight (including
// its handlers) finishes first. Stop is idempotent
func (s *Subscription) Stop() {
	s.stopOnce.Do(func() {
		log.Info("stopping subscription", "subscriber", s.id)
		close(s.stop)
	})
}

func (s *Subscription) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// Run loads the checkpoint and polls until stopped, ctx is done or an
// unrecoverable error occurs. Fetch, decode, handler and checkpoint
// failures stop the subscription and are returned
func (s *Subscription) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrSubscriptionRunning
	}

	defer s.running.Store(false)

	s.setState(StatePolling)

	defer s.setState(StateStopped)

	log.Info("starting subscription", "subscriber", s.id, "category", s.category)

	if err := s.loadPosition(ctx); err != nil {
		return s.fail(ctx, err)
	}

	for {
		if s.stopped() || ctx.Err() != nil {
			log.Info("subscription stopped", "subscriber", s.id, "position", s.Position())

			return nil
		}

		n, err := s.tick(ctx)
		if err != nil {
			return s.fail(ctx, err)
		}

		if n > 0 {
			continue
		}

		s.setState(StateIdle)

		select {
		case <-ctx.Done():
		case <-s.stop:
		case <-time.After(s.cfg.tickInterval):
		}

		s.setState(StatePolling)
	}
}

func (s *Subscription) fail(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		log.Info("subscription cancelled", "subscriber", s.id, "position", s.Position())

		return nil
	}

	log.WithError(err).Error("subscription stopped on error", "subscriber", s.id, "category", s.category)

	s.mu.Lock()
	s.err = err
	s.mu.Unlock()

	s.Stop()

	if s.cfg.metrics != nil {
		s.cfg.metrics.failures.WithLabelValues(s.id).Inc()
	}

	return err
}

func (s *Subscription) setState(st State) {
	s.state.Store(int32(st))

	if s.cfg.metrics != nil {
		s.cfg.metrics.state.WithLabelValues(s.id).Set(float64(st))
	}
}

func (s *Subscription) loadPosition(ctx context.Context) error {
	cp, err := s.store.ReadLastCheckpoint(ctx, s.id)
	if err != nil {
		return errors.Wrap(err, "loading position")
	}

	var pos int64

	if cp != nil {
		pos = cp.Position
	}

	s.position.Store(pos)

	log.Info("loaded position", "subscriber", s.id, "position", pos)

	return nil
}

func (s *Subscription) tick(ctx context.Context) (int, error) {
	msgs, err := s.store.ReadCategory(ctx, s.category, s.Position()+1, s.cfg.messagesPerTick)
	if err != nil {
		return 0, errors.Wrap(err, "fetching batch")
	}

	for _, m := range msgs {
		if m.GlobalPosition <= s.Position() {
			return 0, errors.Errorf(
				"log store returned position %d after %d", m.GlobalPosition, s.Position(),
			)
		}

		if err := s.handlers.Dispatch(ctx, m); err != nil {
			log.WithError(err).Error(
				"error processing message",
				"subscriber", s.id,
				"category", s.category,
				"id", m.ID,
				"type", m.Type,
				"global_position", m.GlobalPosition,
			)

			return 0, &HandlerError{Message: m, Err: err}
		}

		if err := s.updatePosition(ctx, m.GlobalPosition); err != nil {
			return 0, err
		}
	}

	return len(msgs), nil
}

func (s *Subscription) updatePosition(ctx context.Context, position int64) error {
	s.position.Store(position)
	s.sinceCheckpoint++

	if m := s.cfg.metrics; m != nil {
		m.processed.WithLabelValues(s.id).Inc()
		m.position.WithLabelValues(s.id).Set(float64(position))
	}

	if s.sinceCheckpoint < s.cfg.positionUpdateInterval {
		return nil
	}

	s.sinceCheckpoint = 0

	if err := s.store.WriteCheckpoint(ctx, s.id, position); err != nil {
		return errors.Wrap(err, "writing position")
	}

	if m := s.cfg.metrics; m != nil {
		m.checkpoints.WithLabelValues(s.id).Inc()
	}

	log.Debug("checkpoint written", "subscriber", s.id, "position", position)

	return nil
}
