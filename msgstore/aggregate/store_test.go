package aggregate_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/ivorscott/saas-core/msgstore"
	"github.com/ivorscott/saas-core/msgstore/aggregate"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
)

type published struct {
	stream string
	msg    msgstore.Message
	md     msgstore.Metadata
}

type eventStore struct {
	streams   map[string][]msgstore.Message
	published []published

	wantErr    error
	publishErr error
}

// ReadStream reads events from the stream
func (e *eventStore) ReadStream(_ context.Context, stream string) ([]msgstore.Message, error) {
	if e.wantErr != nil {
		return nil, e.wantErr
	}

	events := e.streams[stream]
	if len(events) == 0 {
		return nil, msgstore.ErrStreamNotFound
	}

	return events, nil
}

// Publish records the published event
func (e *eventStore) Publish(ctx context.Context, stream string, msg msgstore.Message) (msgstore.Message, error) {
	if e.publishErr != nil {
		return msgstore.Message{}, e.publishErr
	}

	e.published = append(e.published, published{
		stream: stream,
		msg:    msg,
		md:     msgstore.MetadataFrom(ctx),
	})

	return msg, nil
}

type fooEvent struct {
	Foo string
}

type barEvent struct {
	N int
}

// ID represents an ID
type ID string

type foo struct {
	aggregate.Root[ID]

	Foo     string
	Balance int
}

func (f *foo) doStuff() error {
	return f.Apply(
		fooEvent{
			Foo: "foo-1",
		},
		fooEvent{
			Foo: "foo-2",
		},
	)
}

func (f *foo) doMoreStuff() error {
	return f.Apply(barEvent{N: 10})
}

// OnfooEvent handler
func (f *foo) OnfooEvent(evt fooEvent) {
	f.Foo = evt.Foo
}

// OnbarEvent handler
func (f *foo) OnbarEvent(evt barEvent) error {
	if evt.N < 0 {
		return fmt.Errorf("negative balance")
	}

	f.Balance += evt.N

	return nil
}

func stored(seq int64, trace string, data any) msgstore.Message {
	return msgstore.Message{
		ID:       fmt.Sprintf("event-id-%d", seq),
		Type:     msgstore.TypeName(data),
		Metadata: msgstore.Metadata{TraceID: trace},
		Data:     data,
		Seq:      seq,
	}
}

func TestShould_Save_Aggregate_Events(t *testing.T) {
	var es eventStore

	store := aggregate.NewStore[*foo]("foo", &es, &es)

	ctx := msgstore.WithMetadata(context.Background(), msgstore.Metadata{TraceID: "trace-1", UserID: "user-1"})

	var f foo

	f.ID = "foo-1"

	assert.NoError(t, f.Rehydrate(&f))
	assert.NoError(t, f.doStuff())

	err := store.Save(ctx, &f)

	assert.NoError(t, err)

	assert.Equal(t, []published{
		{
			stream: "foo.foo-1",
			msg:    msgstore.Message{Data: fooEvent{Foo: "foo-1"}},
			md:     msgstore.Metadata{TraceID: "trace-1", UserID: "user-1"},
		},
		{
			stream: "foo.foo-1",
			msg:    msgstore.Message{Data: fooEvent{Foo: "foo-2"}},
			md:     msgstore.Metadata{TraceID: "trace-1", UserID: "user-1"},
		},
	}, es.published)

	assert.Empty(t, f.Events())
	assert.Equal(t, int64(2), f.Version())
}

func TestShould_Report_Publish_Error_And_Keep_Events(t *testing.T) {
	var es eventStore

	es.publishErr = fmt.Errorf("broker down")

	store := aggregate.NewStore[*foo]("foo", &es, &es)

	var f foo

	f.ID = "foo-1"

	assert.NoError(t, f.Rehydrate(&f))
	assert.NoError(t, f.doStuff())

	err := store.Save(context.Background(), &f)

	assert.ErrorIs(t, err, es.publishErr)
	assert.Len(t, f.Events(), 2)
}

func TestShould_Return_AggregateNotFound_Error_If_No_Events(t *testing.T) {
	var es eventStore

	var f foo

	store := aggregate.NewStore[*foo]("foo", &es, &es)

	err := store.ByID(context.Background(), "foo-1", &f)

	assert.ErrorIs(t, err, aggregate.ErrAggregateNotFound)
	assert.Equal(t, int64(0), f.Version())
}

func TestShould_Report_Read_Error(t *testing.T) {
	var es eventStore

	es.wantErr = msgstore.ErrLogStore

	var f foo

	store := aggregate.NewStore[*foo]("foo", &es, &es)

	err := store.ByID(context.Background(), "foo-1", &f)

	assert.ErrorIs(t, err, msgstore.ErrLogStore)
	assert.NotErrorIs(t, err, aggregate.ErrAggregateNotFound)
}

func TestShould_Rehydrate_Aggregate(t *testing.T) {
	es := eventStore{
		streams: map[string][]msgstore.Message{
			"foo.foo-1": {
				stored(1, "trace-1", fooEvent{Foo: "foo-1"}),
				stored(2, "trace-2", barEvent{N: 5}),
				{ID: "event-id-3", Type: "SomethingElse", Data: jsoniter.RawMessage(`{}`), Seq: 3},
				stored(4, "trace-4", barEvent{N: 7}),
			},
		},
	}

	var f foo

	store := aggregate.NewStore[*foo]("foo", &es, &es)

	err := store.ByID(context.Background(), "foo-1", &f)

	assert.NoError(t, err)
	assert.Equal(t, "foo-1", f.Foo)
	assert.Equal(t, 12, f.Balance)
	assert.Equal(t, int64(4), f.Version())
	assert.Len(t, f.Events(), 0)

	assert.True(t, f.Caused("trace-2"))
	assert.False(t, f.Caused("trace-3"))
}

func TestShould_Report_Replay_Error(t *testing.T) {
	es := eventStore{
		streams: map[string][]msgstore.Message{
			"foo.foo-1": {stored(1, "", barEvent{N: -1})},
		},
	}

	var f foo

	store := aggregate.NewStore[*foo]("foo", &es, &es)

	err := store.ByID(context.Background(), "foo-1", &f)

	assert.EqualError(t, err, "replaying barEvent seq 1: negative balance")
}
