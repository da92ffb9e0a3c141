package msgstore

import (
	"encoding/base64"
	"reflect"
	"strconv"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Binary frame field numbers written by the transport
const (
	frameSequence  protowire.Number = 1
	frameSubject   protowire.Number = 2
	frameData      protowire.Number = 4
	frameTimestamp protowire.Number = 5
)

// RawMessage is a message row as returned by the log store.
// Numeric columns arrive as text and Data holds the binary frame
type RawMessage struct {
	ID             string
	Seq            string
	Timestamp      string
	Size           int
	Data           []byte
	GlobalPosition string
}

// NewJSONCodec constructs a codec that decodes payloads of the
// provided types. Message type is the payload's type name eg.
// NewJSONCodec(UserAdded{}) will decode "UserAdded" messages to UserAdded
func NewJSONCodec(payloads ...any) *JSONCodec {
	c := JSONCodec{
		types: make(map[string]reflect.Type),
	}

	for _, p := range payloads {
		t := reflect.TypeOf(p)
		c.types[t.Name()] = t
	}

	return &c
}

// JSONCodec provides the envelope codec: binary frame, base64 wrapped
// json text, typed payload
type JSONCodec struct {
	types map[string]reflect.Type
}

type envelope struct {
	ID       string              `json:"id"`
	Type     string              `json:"type"`
	Metadata Metadata            `json:"metadata"`
	Data     jsoniter.RawMessage `json:"data"`
}

type outEnvelope struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Metadata Metadata `json:"metadata"`
	Data     any      `json:"data"`
}

// Registered reports whether payload type typ can be decoded
func (c *JSONCodec) Registered(typ string) bool {
	_, ok := c.types[typ]

	return ok
}

// TypeName returns message type of a payload
func TypeName(payload any) string {
	t := reflect.TypeOf(payload)

	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	return t.Name()
}

// Encode serializes message envelope to json text handed to the transport
func (c *JSONCodec) Encode(msg Message) ([]byte, error) {
	if msg.Type == "" && msg.Data != nil {
		msg.Type = TypeName(msg.Data)
	}

	if msg.Type == "" {
		return nil, errors.New("message type must be provided")
	}

	return json.Marshal(outEnvelope{
		ID:       msg.ID,
		Type:     msg.Type,
		Metadata: msg.Metadata,
		Data:     msg.Data,
	})
}

// DecodeText parses json envelope text and decodes its payload
func (c *JSONCodec) DecodeText(text []byte) (Message, error) {
	var env envelope

	if err := json.Unmarshal(text, &env); err != nil {
		return Message{}, errors.Wrap(err, "parsing envelope json")
	}

	data, err := c.decodeData(env.Type, env.Data)
	if err != nil {
		return Message{}, err
	}

	return Message{
		ID:       env.ID,
		Type:     env.Type,
		Metadata: env.Metadata,
		Data:     data,
	}, nil
}

func (c *JSONCodec) decodeData(typ string, raw jsoniter.RawMessage) (any, error) {
	t, ok := c.types[typ]
	if !ok {
		return append(jsoniter.RawMessage(nil), raw...), nil
	}

	v := reflect.New(t)

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, v.Interface()); err != nil {
			return nil, errors.Wrapf(err, "decoding %s payload", typ)
		}
	}

	return v.Elem().Interface(), nil
}

// Decode converts a log store row to a message.
// A nil row decodes to no message
func (c *JSONCodec) Decode(row *RawMessage) (*Message, error) {
	if row == nil {
		return nil, nil
	}

	fail := func(err error) (*Message, error) {
		return nil, &DecodeError{ID: row.ID, Seq: row.Seq, Err: err}
	}

	subject, field, err := Unframe(row.Data)
	if err != nil {
		return fail(err)
	}

	text, err := base64.StdEncoding.DecodeString(string(field))
	if err != nil {
		return fail(errors.Wrap(err, "decoding base64 data"))
	}

	if !utf8.Valid(text) {
		return fail(errors.New("data is not valid text"))
	}

	msg, err := c.DecodeText(text)
	if err != nil {
		return fail(err)
	}

	if msg.Seq, err = parseInt("seq", row.Seq); err != nil {
		return fail(err)
	}

	if msg.Timestamp, err = parseInt("timestamp", row.Timestamp); err != nil {
		return fail(err)
	}

	if msg.GlobalPosition, err = parseInt("global_position", row.GlobalPosition); err != nil {
		return fail(err)
	}

	msg.StreamName = subject
	msg.Size = row.Size

	return &msg, nil
}

func parseInt(name, s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing %s", name)
	}

	return n, nil
}

// Frame builds the binary frame the log store persists: the json
// text is base64 wrapped into the frame's data field
func Frame(subject string, seq uint64, timestamp int64, text []byte) []byte {
	var b []byte

	b = protowire.AppendTag(b, frameSequence, protowire.VarintType)
	b = protowire.AppendVarint(b, seq)
	b = protowire.AppendTag(b, frameSubject, protowire.BytesType)
	b = protowire.AppendString(b, subject)
	b = protowire.AppendTag(b, frameData, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte(base64.StdEncoding.EncodeToString(text)))
	b = protowire.AppendTag(b, frameTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(timestamp))

	return b
}

// Unframe extracts the subject and the (still base64 wrapped) data field
// from a binary frame
func Unframe(b []byte) (string, []byte, error) {
	var (
		subject string
		data    []byte
		found   bool
	)

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", nil, errors.Wrap(protowire.ParseError(n), "parsing frame tag")
		}

		b = b[n:]

		switch {
		case num == frameSubject && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return "", nil, errors.Wrap(protowire.ParseError(n), "parsing frame subject")
			}

			subject = v
			b = b[n:]

		case num == frameData && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return "", nil, errors.Wrap(protowire.ParseError(n), "parsing frame data")
			}

			data = v
			found = true
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return "", nil, errors.Wrap(protowire.ParseError(n), "skipping frame field")
			}

			b = b[n:]
		}
	}

	if !found {
		return "", nil, errors.New("frame has no data field")
	}

	return subject, data, nil
}
