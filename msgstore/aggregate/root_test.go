package aggregate_test

import (
	"testing"

	"github.com/ivorscott/saas-core/msgstore"
	"github.com/ivorscott/saas-core/msgstore/aggregate"
	"github.com/stretchr/testify/assert"
)

type created struct {
	Name  string
	Email string
}

type nameUpdated struct {
	NewName string
}

type wrongHandler struct{}
type missingHandler struct{}

type id string

type testAggregate struct {
	aggregate.Root[id]

	name  string
	email string
}

func (ta *testAggregate) Oncreated(event created) {
	ta.name = event.Name
	ta.email = event.Email
}

func (ta *testAggregate) OnnameUpdated(event nameUpdated) {
	ta.name = event.NewName
}

func (ta *testAggregate) OnwrongHandler(event wrongHandler, n int) {
}

func TestApplyEventShouldMutateAggregateAndAddEvent(t *testing.T) {
	var a testAggregate

	assert.NoError(t, a.Rehydrate(&a))

	assert.NoError(t, a.Apply(created{"john", "john@email.com"}))
	assert.NoError(t, a.Apply(nameUpdated{"max"}))

	assert.Len(t, a.Events(), 2)
	assert.Equal(t, "max", a.name)
	assert.Equal(t, "john@email.com", a.email)
	assert.Equal(t, int64(0), a.Version())
}

func TestShouldInitAggregate(t *testing.T) {
	var a testAggregate

	err := a.Rehydrate(
		&a,
		msgstore.Message{Type: "created", Seq: 1, Data: created{"john", "john@email.com"}},
		msgstore.Message{Type: "nameUpdated", Seq: 2, Data: nameUpdated{"max"}},
	)

	assert.NoError(t, err)
	assert.Equal(t, int64(2), a.Version())

	assert.NoError(t, a.Apply(nameUpdated{"jane"}))

	assert.Equal(t, "jane", a.name)
	assert.Equal(t, "john@email.com", a.email)
}

func TestRehydrateResetsUncommittedEvents(t *testing.T) {
	var a testAggregate

	assert.NoError(t, a.Rehydrate(&a))
	assert.NoError(t, a.Apply(created{"john", "john@email.com"}))

	assert.NoError(t, a.Rehydrate(&a))

	assert.Empty(t, a.Events())
}

func TestShouldPanicOnApplyWithNoRehydrate(t *testing.T) {
	var a testAggregate

	assert.PanicsWithError(t, aggregate.ErrAggregateRootNotRehydrated.Error(), func() {
		_ = a.Apply(missingHandler{})
	})
}

func TestShouldFailOnMissingHandler(t *testing.T) {
	var a testAggregate

	assert.NoError(t, a.Rehydrate(&a))

	err := a.Apply(missingHandler{})

	assert.ErrorIs(t, err, aggregate.ErrMissingAggregateEventHandler)
	assert.Empty(t, a.Events())
}

func TestShouldFailOnWrongHandlerSignature(t *testing.T) {
	var a testAggregate

	assert.NoError(t, a.Rehydrate(&a))

	err := a.Apply(wrongHandler{})

	assert.ErrorIs(t, err, aggregate.ErrMissingAggregateEventHandler)
}

func TestShouldAcceptOnlyPointerOnRehydration(t *testing.T) {
	var a testAggregate

	assert.PanicsWithError(t, aggregate.ErrAggregateRootNotAPointer.Error(), func() {
		_ = a.Rehydrate(a)
	})
}
