package msgstore_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ivorscott/saas-core/msgstore"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
)

func TestPublisherEncodesAndStampsMessage(t *testing.T) {
	var (
		gotStream string
		gotText   []byte
		deadline  bool
	)

	transport := msgstore.TransportFunc(func(ctx context.Context, stream string, text []byte) error {
		gotStream = stream
		gotText = text
		_, deadline = ctx.Deadline()

		return nil
	})

	p := msgstore.NewPublisher(transport, codec())

	ctx := msgstore.WithMetadata(context.Background(), msgstore.Metadata{TraceID: "trace-1", UserID: "user-1"})

	msg, err := p.Publish(ctx, "identity.1", msgstore.Message{Data: SomeEvent{UserID: "1"}})

	assert.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "SomeEvent", msg.Type)
	assert.Equal(t, "identity.1", gotStream)
	assert.True(t, deadline)

	decoded, err := codec().DecodeText(gotText)

	assert.NoError(t, err)
	assert.Equal(t, msg.ID, decoded.ID)
	assert.Equal(t, msgstore.Metadata{TraceID: "trace-1", UserID: "user-1"}, decoded.Metadata)
	assert.Equal(t, SomeEvent{UserID: "1"}, decoded.Data)
}

func TestPublisherKeepsExplicitIDAndMetadata(t *testing.T) {
	var gotText []byte

	p := msgstore.NewPublisher(msgstore.TransportFunc(func(_ context.Context, _ string, text []byte) error {
		gotText = text

		return nil
	}), codec(), msgstore.WithPublishTimeout(time.Second))

	ctx := msgstore.WithMetadata(context.Background(), msgstore.Metadata{TraceID: "ctx"})

	_, err := p.Publish(ctx, "identity.1", msgstore.Message{
		ID:       "fixed-id",
		Metadata: msgstore.Metadata{TraceID: "explicit"},
		Data:     SomeEvent{},
	})

	assert.NoError(t, err)
	assert.Equal(t, "fixed-id", jsoniter.Get(gotText, "id").ToString())
	assert.Equal(t, "explicit", jsoniter.Get(gotText, "metadata", "traceId").ToString())
}

func TestPublisherSurfacesTransportRejection(t *testing.T) {
	rejected := fmt.Errorf("nats: timeout")

	p := msgstore.NewPublisher(msgstore.TransportFunc(func(context.Context, string, []byte) error {
		return rejected
	}), codec())

	_, err := p.Publish(context.Background(), "identity.1", msgstore.Message{Data: SomeEvent{}})

	var pe *msgstore.PublishError

	if assert.ErrorAs(t, err, &pe) {
		assert.Equal(t, "identity.1", pe.Stream)
	}

	assert.ErrorIs(t, err, rejected)
}
