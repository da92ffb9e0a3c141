package msgstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// Handler handles a single message
type Handler func(context.Context, Message) error

// Handlers maps message types to their handlers. Messages of types
// with no handler are acknowledged as a no-op
type Handlers map[string]Handler

// TypedHandler is a message type and its handler (see On)
type TypedHandler struct {
	Type    string
	Handler Handler
}

// On registers a payload typed handler. The message type is the name of T
// and the handler receives the decoded payload:
//
//	msgstore.On(func(ctx context.Context, m msgstore.Message, e UserAdded) error { ... })
func On[T any](fn func(context.Context, Message, T) error) TypedHandler {
	var zero T

	typ := TypeName(zero)

	return TypedHandler{
		Type: typ,
		Handler: func(ctx context.Context, m Message) error {
			payload, ok := m.Data.(T)
			if !ok {
				return fmt.Errorf("%s payload has unexpected type %T", typ, m.Data)
			}

			return fn(ctx, m, payload)
		},
	}
}

// NewHandlers builds a handler table. Registering the same type twice is an error
func NewHandlers(hs ...TypedHandler) (Handlers, error) {
	out := make(Handlers, len(hs))

	for _, h := range hs {
		if _, ok := out[h.Type]; ok {
			return nil, errors.Errorf("duplicate handler for %s", h.Type)
		}

		out[h.Type] = h.Handler
	}

	return out, nil
}

// Types returns handled message types in a stable order
func (h Handlers) Types() []string {
	types := make([]string, 0, len(h))

	for t := range h {
		types = append(types, t)
	}

	sort.Strings(types)

	return types
}

// Validate checks that codec decodes every handled type
func (h Handlers) Validate(codec *JSONCodec) error {
	for _, t := range h.Types() {
		if !codec.Registered(t) {
			return errors.Wrap(ErrHandlerTypeNotRegistered, t)
		}
	}

	return nil
}

// Dispatch calls the handler of m's type with m's metadata in ctx.
// A message with no handler is a no-op
func (h Handlers) Dispatch(ctx context.Context, m Message) error {
	handler, ok := h[m.Type]
	if !ok {
		return nil
	}

	return handler(WithMetadata(ctx, m.Metadata), m)
}
