// Package config loads process configuration from the environment.
package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iidesho/bragi/sbragi"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Transport kinds
const (
	TransportStan  = "stan"
	TransportKafka = "kafka"
	TransportAMQP  = "amqp"
	TransportLog   = "log"
)

// Config of the identity processes
type Config struct {
	LogStore  LogStore
	ReadModel ReadModel
	Transport Transport
	Sub       Subscription

	HealthAddr string `env:"HEALTH_ADDR" envDefault:":4000"`
}

// LogStore holds the message store database settings. DSN takes precedence
// over SQLitePath
type LogStore struct {
	DSN        string `env:"MSGSTORE_DSN"`
	SQLitePath string `env:"MSGSTORE_SQLITE_PATH"`
}

// ReadModel holds the users read model database settings
type ReadModel struct {
	DSN        string `env:"READMODEL_DSN"`
	SQLitePath string `env:"READMODEL_SQLITE_PATH"`
}

// Transport selects and configures the publish transport
type Transport struct {
	Kind string `env:"TRANSPORT" envDefault:"log"`

	NatsURL    string `env:"NATS_URL" envDefault:"nats://nats-svc:4222"`
	ClusterID  string `env:"NATS_CLUSTER_ID" envDefault:"devpie-client"`
	ClientID   string `env:"NATS_CLIENT_ID"`
	QueueGroup string `env:"NATS_QUEUE_GROUP" envDefault:"com-identity-queue"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"messages"`

	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"messages"`

	PublishTimeout time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"5s"`
}

// Subscription holds subscription tuning
type Subscription struct {
	MessagesPerTick        int           `env:"MESSAGES_PER_TICK" envDefault:"100"`
	PositionUpdateInterval int           `env:"POSITION_UPDATE_INTERVAL" envDefault:"100"`
	TickInterval           time.Duration `env:"TICK_INTERVAL" envDefault:"100ms"`
}

// Load reads a .env file when present and parses the environment
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}

	err := godotenv.Load(files...)
	if err != nil {
		sbragi.WithoutEscalation().WithError(err).Debug("no env file loaded", "files", files)
	}

	return Parse()
}

// Parse parses and validates the environment
func Parse() (Config, error) {
	var cfg Config

	err := env.Parse(&cfg)
	if err != nil {
		return cfg, errors.Wrap(err, "parse env")
	}

	return cfg, cfg.Validate()
}

// Validate checks the configuration is usable
func (c Config) Validate() error {
	if c.LogStore.DSN == "" && c.LogStore.SQLitePath == "" {
		return errors.New("MSGSTORE_DSN or MSGSTORE_SQLITE_PATH is required")
	}

	switch strings.ToLower(c.Transport.Kind) {
	case TransportLog:
	case TransportStan:
		if c.Transport.NatsURL == "" || c.Transport.ClusterID == "" {
			return errors.New("stan transport needs NATS_URL and NATS_CLUSTER_ID")
		}
	case TransportKafka:
		if len(c.Transport.KafkaBrokers) == 0 {
			return errors.New("kafka transport needs KAFKA_BROKERS")
		}
	case TransportAMQP:
		if c.Transport.AMQPURL == "" {
			return errors.New("amqp transport needs AMQP_URL")
		}
	default:
		return errors.Errorf("unknown transport %q", c.Transport.Kind)
	}

	if c.Sub.MessagesPerTick < 1 || c.Sub.PositionUpdateInterval < 1 || c.Sub.TickInterval <= 0 {
		return errors.New("subscription batch size, checkpoint interval and tick must be positive")
	}

	return nil
}
