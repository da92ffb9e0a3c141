// Package kafka implements the message transport over Kafka. Every
// message is produced to one topic keyed by its stream name, so messages
// of an entity stream stay ordered within a partition.
package kafka

import (
	"context"

	"github.com/iidesho/bragi/sbragi"
	"github.com/ivorscott/saas-core/msgstore"
	"github.com/pkg/errors"
	"github.com/twmb/franz-go/pkg/kgo"
)

var log = sbragi.WithLocalScope(sbragi.LevelInfo)

// StreamHeader is the record header carrying the stream name
const StreamHeader = "stream"

var _ msgstore.Transport = (*Producer)(nil)

// Config holds producer settings
type Config struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// Validate checks producer settings
func (c Config) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka brokers are required")
	}

	if c.Topic == "" {
		return errors.New("kafka topic is required")
	}

	return nil
}

// Producer publishes messages and waits for the broker acks
type Producer struct {
	client *kgo.Client
	topic  string
}

// NewProducer creates a producer. Extra kgo options are appended after the
// ones derived from cfg
func NewProducer(cfg Config, opts ...kgo.Opt) (*Producer, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	kopts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.AllowAutoTopicCreation(),
	}

	if cfg.ClientID != "" {
		kopts = append(kopts, kgo.ClientID(cfg.ClientID))
	}

	kopts = append(kopts, opts...)

	cl, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, errors.Wrap(err, "new kafka client")
	}

	return &Producer{
		client: cl,
		topic:  cfg.Topic,
	}, nil
}

// Publish produces text keyed by stream and blocks until it is acknowledged
func (p *Producer) Publish(ctx context.Context, stream string, text []byte) error {
	rec := Record(p.topic, stream, text)

	err := p.client.ProduceSync(ctx, rec).FirstErr()
	if err != nil {
		return errors.Wrapf(err, "producing to %s", p.topic)
	}

	log.Debug("produced", "topic", rec.Topic, "stream", stream, "partition", rec.Partition, "offset", rec.Offset)

	return nil
}

// Close closes the client
func (p *Producer) Close() {
	p.client.Close()
}

// Record builds the kafka record for a message of stream
func Record(topic, stream string, text []byte) *kgo.Record {
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(stream),
		Value: text,
		Headers: []kgo.RecordHeader{
			{Key: StreamHeader, Value: []byte(stream)},
		},
	}
}

// StreamOf returns the stream name carried by rec
func StreamOf(rec *kgo.Record) string {
	for _, h := range rec.Headers {
		if h.Key == StreamHeader {
			return string(h.Value)
		}
	}

	return string(rec.Key)
}
