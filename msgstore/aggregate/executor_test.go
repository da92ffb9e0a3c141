package aggregate_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/ivorscott/saas-core/msgstore"
	"github.com/ivorscott/saas-core/msgstore/aggregate"
	"github.com/stretchr/testify/assert"
)

func TestShould_Load_And_Persist_Aggregate(t *testing.T) {
	es := eventStore{
		streams: map[string][]msgstore.Message{
			"foo.foo-1": {stored(1, "trace-1", fooEvent{Foo: "foo-1"})},
		},
	}

	store := aggregate.NewStore[*foo]("foo", &es, &es)

	exec := aggregate.NewExecutor(store)

	var f foo

	f.ID = "foo-1"

	err := exec(context.Background(), &f, func(ctx context.Context) error {
		return f.doMoreStuff()
	})

	assert.NoError(t, err)
	assert.Equal(t, "foo-1", f.Foo)

	if assert.Len(t, es.published, 1) {
		assert.Equal(t, "foo.foo-1", es.published[0].stream)
		assert.Equal(t, barEvent{N: 10}, es.published[0].msg.Data)
	}
}

func TestShould_Should_Report_Exec_Error(t *testing.T) {
	es := eventStore{
		streams: map[string][]msgstore.Message{
			"foo.foo-1": {stored(1, "", fooEvent{Foo: "foo-1"})},
		},
	}

	store := aggregate.NewStore[*foo]("foo", &es, &es)

	exec := aggregate.NewExecutor(store)

	var f foo

	f.ID = "foo-1"

	wantErr := fmt.Errorf("error")

	err := exec(context.Background(), &f, func(ctx context.Context) error {
		return wantErr
	})

	assert.ErrorIs(t, err, wantErr)
	assert.Empty(t, es.published)
}

func TestShould_Report_AggregateNotFound_Error(t *testing.T) {
	var es eventStore

	store := aggregate.NewStore[*foo]("foo", &es, &es)

	exec := aggregate.NewExecutor(store)

	var f foo

	f.ID = "foo-1"

	err := exec(context.Background(), &f, func(ctx context.Context) error {
		return f.doMoreStuff()
	})

	assert.ErrorIs(t, err, aggregate.ErrAggregateNotFound)
	assert.Empty(t, es.published)
}

func TestInitCreatesMissingAggregate(t *testing.T) {
	var es eventStore

	store := aggregate.NewStore[*foo]("foo", &es, &es)

	var f foo

	f.ID = "foo-1"

	err := aggregate.Init(context.Background(), store, &f, func(ctx context.Context) error {
		return f.doStuff()
	})

	assert.NoError(t, err)
	assert.Len(t, es.published, 2)
}

func TestNothingIsPublishedWhenNoEventsApplied(t *testing.T) {
	es := eventStore{
		streams: map[string][]msgstore.Message{
			"foo.foo-1": {stored(1, "trace-1", fooEvent{Foo: "foo-1"})},
		},
	}

	store := aggregate.NewStore[*foo]("foo", &es, &es)

	var f foo

	f.ID = "foo-1"

	err := aggregate.Init(context.Background(), store, &f, func(ctx context.Context) error {
		if f.Caused("trace-1") {
			return nil
		}

		return f.doStuff()
	})

	assert.NoError(t, err)
	assert.Empty(t, es.published)
}
