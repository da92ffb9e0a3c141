package msgstore

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrStreamNotFound indicates that the requested stream does not exist in the log store
	ErrStreamNotFound = errors.New("stream not found")

	// ErrConcurrencyCheckFailed indicates that stream entry related to a particular version already exists
	ErrConcurrencyCheckFailed = errors.New("optimistic concurrency check failed: stream version exists")

	// ErrInvalidPosition is returned when a checkpoint write carries no progress (zero position)
	ErrInvalidPosition = errors.New("checkpoint position must be greater than zero")

	// ErrLogStore wraps log store query failures
	ErrLogStore = errors.New("log store")

	// ErrDecode is matched by every *DecodeError
	ErrDecode = errors.New("malformed message envelope")

	// ErrHandlerTypeNotRegistered is returned when a handler is registered for
	// a message type the codec cannot decode
	ErrHandlerTypeNotRegistered = errors.New("handler registered for a type unknown to the codec")

	// ErrSubscriptionRunning is returned by Run if the subscription is already running
	ErrSubscriptionRunning = errors.New("subscription already running")
)

// DecodeError is a malformed envelope. It carries the identity
// of the offending row
type DecodeError struct {
	ID  string
	Seq string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding message id=%s seq=%s: %v", e.ID, e.Seq, e.Err)
}

// Unwrap returns underlying cause
func (e *DecodeError) Unwrap() error { return e.Err }

// Is matches ErrDecode
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// HandlerError is a failure of a message handler
type HandlerError struct {
	Message Message
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf(
		"handling %s id=%s global_position=%d: %v",
		e.Message.Type, e.Message.ID, e.Message.GlobalPosition, e.Err,
	)
}

// Unwrap returns underlying cause
func (e *HandlerError) Unwrap() error { return e.Err }

// PublishError is a transport rejection of an append
type PublishError struct {
	Stream string
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publishing to %s: %v", e.Stream, e.Err)
}

// Unwrap returns underlying cause
func (e *PublishError) Unwrap() error { return e.Err }

func logStoreErr(err error, op string) error {
	return errors.Wrap(fmt.Errorf("%w: %w", ErrLogStore, err), op)
}
