package kafka_test

import (
	"testing"

	"github.com/ivorscott/saas-core/transport/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestConfigValidation(t *testing.T) {
	assert.NoError(t, kafka.Config{Brokers: []string{"localhost:9092"}, Topic: "messages"}.Validate())
	assert.Error(t, kafka.Config{Topic: "messages"}.Validate())
	assert.Error(t, kafka.Config{Brokers: []string{"localhost:9092"}}.Validate())

	_, err := kafka.NewProducer(kafka.Config{})

	assert.Error(t, err)
}

func TestRecordIsKeyedByStream(t *testing.T) {
	rec := kafka.Record("messages", "identity.42", []byte(`{}`))

	assert.Equal(t, "messages", rec.Topic)
	assert.Equal(t, []byte("identity.42"), rec.Key)
	assert.Equal(t, []byte(`{}`), rec.Value)
	assert.Equal(t, "identity.42", kafka.StreamOf(rec))
}

func TestStreamFallsBackToKey(t *testing.T) {
	assert.Equal(t, "identity.1", kafka.StreamOf(&kgo.Record{Key: []byte("identity.1")}))
}
