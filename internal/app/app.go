// Package app wires configuration into the message store, transports and
// the health server shared by the identity processes.
package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/iidesho/bragi/sbragi"
	"github.com/ivorscott/saas-core/config"
	"github.com/ivorscott/saas-core/identity"
	"github.com/ivorscott/saas-core/msgstore"
	"github.com/ivorscott/saas-core/transport/amqp"
	"github.com/ivorscott/saas-core/transport/kafka"
	"github.com/ivorscott/saas-core/transport/stan"
	"github.com/labstack/echo/v4"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var log = sbragi.WithLocalScope(sbragi.LevelInfo)

// OpenLogStore opens the message store described by cfg
func OpenLogStore(cfg config.LogStore, codec *msgstore.JSONCodec) (*msgstore.Store, error) {
	if cfg.DSN != "" {
		return msgstore.New(codec, msgstore.WithPostgresDB(cfg.DSN))
	}

	return msgstore.New(codec, msgstore.WithSQLiteDB(cfg.SQLitePath))
}

// OpenReadModel opens the users read model. Without settings of its own it
// shares the log store database settings
func OpenReadModel(cfg config.Config) (*identity.ReadModel, error) {
	dsn, path := cfg.ReadModel.DSN, cfg.ReadModel.SQLitePath

	if dsn == "" && path == "" {
		dsn, path = cfg.LogStore.DSN, cfg.LogStore.SQLitePath
	}

	var dial gorm.Dialector

	if dsn != "" {
		dial = postgres.Open(dsn)
	} else {
		dial = sqlite.Open(path)
	}

	db, err := gorm.Open(dial, &gorm.Config{})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "opening read model")
	}

	return identity.NewReadModel(db)
}

// Transport is an opened publish transport
type Transport struct {
	msgstore.Transport

	// Stan is set for the stan transport so commands can be listened to
	Stan *stan.Conn

	close func() error
}

// Close closes the transport connection
func (t *Transport) Close() error {
	if t.close == nil {
		return nil
	}

	return t.close()
}

// OpenTransport opens the transport selected by cfg. The log transport
// appends straight to store
func OpenTransport(cfg config.Transport, clientID string, store *msgstore.Store) (*Transport, error) {
	switch strings.ToLower(cfg.Kind) {
	case config.TransportStan:
		if cfg.ClientID != "" {
			clientID = cfg.ClientID
		}

		c, err := stan.Connect(stan.Config{URL: cfg.NatsURL, ClusterID: cfg.ClusterID, ClientID: clientID})
		if err != nil {
			return nil, err
		}

		return &Transport{Transport: c, Stan: c, close: c.Close}, nil
	case config.TransportKafka:
		p, err := kafka.NewProducer(kafka.Config{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic, ClientID: clientID})
		if err != nil {
			return nil, err
		}

		return &Transport{Transport: p, close: func() error { p.Close(); return nil }}, nil
	case config.TransportAMQP:
		p, err := amqp.Dial(amqp.Config{URL: cfg.AMQPURL, Exchange: cfg.AMQPExchange})
		if err != nil {
			return nil, err
		}

		return &Transport{Transport: p, close: p.Close}, nil
	case config.TransportLog:
		return &Transport{Transport: store}, nil
	default:
		return nil, pkgerrors.Errorf("unknown transport %q", cfg.Kind)
	}
}

// SubscriptionOpts converts subscription settings to options
func SubscriptionOpts(cfg config.Subscription, m *msgstore.Metrics) []msgstore.SubscriptionOpt {
	opts := []msgstore.SubscriptionOpt{
		msgstore.WithMessagesPerTick(cfg.MessagesPerTick),
		msgstore.WithPositionUpdateInterval(cfg.PositionUpdateInterval),
		msgstore.WithTickInterval(cfg.TickInterval),
	}

	if m != nil {
		opts = append(opts, msgstore.WithMetrics(m))
	}

	return opts
}

// SignalContext is cancelled on SIGINT or SIGTERM
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Serve runs e on addr until ctx is done, then shuts it down
func Serve(ctx context.Context, e *echo.Echo, addr string) error {
	errc := make(chan error, 1)

	go func() {
		errc <- e.Start(addr)
	}()

	log.Info("health server started", "addr", addr)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return e.Shutdown(sctx)
}
