package aggregate

import (
	"fmt"
	"reflect"

	"github.com/ivorscott/saas-core/msgstore"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var (
	// ErrMissingAggregateEventHandler is returned when aggregate event handler is missing
	// On{EventName} method
	ErrMissingAggregateEventHandler = errors.New("missing aggregate event handler")

	// ErrAggregateRootNotAPointer is returned when supplied aggregate root is not a pointer
	ErrAggregateRootNotAPointer = errors.New("aggregate needs to be a pointer")

	// ErrAggregateRootNotRehydrated is returned when aggregate is not rehydrated (with Rehydrate method)
	ErrAggregateRootNotRehydrated = errors.New("aggregate needs to be rehydrated")
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Rooter represents an event sourced aggregate root (embed Root to implement it)
type Rooter interface {
	StringID() string
	Version() int64
	Events() []any
	Caused(traceID string) bool
	Rehydrate(aggregatePtr any, events ...msgstore.Message) error

	commit()
}

// Root represents reusable DDD Event Sourcing friendly Aggregate
// base type which provides helpers for easy aggregate initialization and
// event handler execution
type Root[T ~string] struct {
	ID T

	version      int64
	domainEvents []any
	traces       map[string]struct{}

	ptr reflect.Value
}

// StringID returns the entity id used to build the aggregate stream name
func (a *Root[T]) StringID() string { return string(a.ID) }

// Rehydrate is used to construct and rehydrate the aggregate from its
// entity stream. Messages with payload types the codec does not know
// still count towards the version but are not applied
func (a *Root[T]) Rehydrate(aggregatePtr any, events ...msgstore.Message) error {
	a.ptr = reflect.ValueOf(aggregatePtr)

	if a.ptr.Kind() != reflect.Ptr {
		panic(ErrAggregateRootNotAPointer)
	}

	a.version = 0
	a.domainEvents = nil
	a.traces = make(map[string]struct{})

	for _, evt := range events {
		if _, raw := evt.Data.(jsoniter.RawMessage); !raw {
			err := a.mutate(evt.Data)
			if err != nil {
				return errors.Wrapf(err, "replaying %s seq %d", evt.Type, evt.Seq)
			}
		}

		if evt.Metadata.TraceID != "" {
			a.traces[evt.Metadata.TraceID] = struct{}{}
		}

		a.version = evt.Seq
	}

	return nil
}

// Version returns the seq of the last replayed or committed event
func (a *Root[T]) Version() int64 { return a.version }

// Caused reports whether a replayed event was caused by traceID
func (a *Root[T]) Caused(traceID string) bool {
	_, ok := a.traces[traceID]

	return ok
}

// Events returns uncommitted domain events (produced by calling Apply)
func (a *Root[T]) Events() []any {
	if a.domainEvents == nil {
		return []any{}
	}

	return a.domainEvents
}

// Apply mutates aggregate (calls respective event handle) and
// appends event to internal slice, so that they can be retrieved with Events method
// In order for Apply to work the derived aggregate struct needs to implement
// an event handler method for all events it produces eg:
//
// If it produces event of type: SomethingImportantHappened
// Derived aggregate should have the following method implemented:
// func (a *SomeAggregate) OnSomethingImportantHappened(e SomethingImportantHappened) error
func (a *Root[T]) Apply(events ...any) error {
	if !a.ptr.IsValid() {
		panic(ErrAggregateRootNotRehydrated)
	}

	for _, evt := range events {
		err := a.mutate(evt)
		if err != nil {
			return err
		}

		a.domainEvents = append(a.domainEvents, evt)
	}

	return nil
}

func (a *Root[T]) commit() {
	a.version += int64(len(a.domainEvents))
	a.domainEvents = nil
}

func (a *Root[T]) mutate(evt any) error {
	ev := reflect.TypeOf(evt)

	hName := fmt.Sprintf("On%s", ev.Name())

	h := a.ptr.MethodByName(hName)

	if !h.IsValid() {
		return errors.Wrap(ErrMissingAggregateEventHandler, hName)
	}

	ht := h.Type()

	if ht.NumIn() != 1 || !ev.AssignableTo(ht.In(0)) {
		return errors.Wrapf(ErrMissingAggregateEventHandler, "%s has wrong signature", hName)
	}

	out := h.Call([]reflect.Value{
		reflect.ValueOf(evt),
	})

	if len(out) == 1 && ht.Out(0) == errorType && !out[0].IsNil() {
		return out[0].Interface().(error)
	}

	return nil
}
