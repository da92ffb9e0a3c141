package msgstore

import (
	"strings"
	"time"
)

const (
	// CommandSuffix marks a command stream, eg. identity.command
	CommandSuffix = "command"

	streamSeparator = "."
)

// Metadata carries causal and tracing context of a message.
// TraceID correlates a command with the events it causes
type Metadata struct {
	TraceID string `json:"traceId"`
	UserID  string `json:"userId"`
}

// Message is the unit flowing through the log
type Message struct {
	ID       string
	Type     string
	Metadata Metadata

	// Data holds the decoded payload. For types registered with the codec
	// this is a value of the registered Go type, otherwise the raw json
	Data any

	// Assigned by the log store
	StreamName     string
	Seq            int64
	GlobalPosition int64
	Timestamp      int64
	Size           int
}

// Checkpoint is the persisted position of a named subscriber.
// Position is the global position of the last processed message
type Checkpoint struct {
	SubscriberID string
	Position     int64
	UpdatedAt    time.Time
}

// EntityStream returns entity scoped stream name eg. identity.<id>
func EntityStream(category, id string) string {
	return category + streamSeparator + id
}

// CommandStream returns command stream name of a category eg. identity.command
func CommandStream(category string) string {
	return category + streamSeparator + CommandSuffix
}

// CategoryOf returns the category a stream belongs to.
// Entity streams belong to their prefix, command streams
// form a category of their own:
//
//	identity             -> identity
//	identity.123         -> identity
//	identity.command     -> identity.command
//	identity.command.123 -> identity.command
func CategoryOf(stream string) string {
	parts := strings.SplitN(stream, streamSeparator, 3)

	if len(parts) > 1 && parts[1] == CommandSuffix {
		return parts[0] + streamSeparator + CommandSuffix
	}

	return parts[0]
}

// EntityID returns the entity id part of an entity stream name
// or an empty string for category streams
func EntityID(stream string) string {
	category := CategoryOf(stream)

	if len(stream) <= len(category)+1 {
		return ""
	}

	return stream[len(category)+1:]
}

// IsCommandStream reports whether stream is a command stream
func IsCommandStream(stream string) bool {
	return strings.HasSuffix(CategoryOf(stream), streamSeparator+CommandSuffix)
}
