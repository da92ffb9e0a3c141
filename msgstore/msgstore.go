// Package msgstore provides a category partitioned message store client
// with position checkpointed polling subscriptions on top of it.
// Apart from the log store client, mechanisms for decoding message envelopes,
// publishing commands and events and building projections are provided
package msgstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// InitialStreamVersion can be used as an initial expectedVer for
	// new streams (as an argument to AppendStream)
	InitialStreamVersion int64 = 0

	// AnyVersion appends to the tail of the stream without
	// an optimistic concurrency check
	AnyVersion int64 = -1

	// DefaultMaxMessages is the read limit used when none is provided
	DefaultMaxMessages = 1000
)

// New constructs new message store client
// codec - decodes message rows (see NewJSONCodec)
func New(codec *JSONCodec, opts ...Option) (*Store, error) {
	if codec == nil {
		return nil, errors.New("codec implementation must be provided")
	}

	var cfg Cfg

	for _, opt := range opts {
		cfg = opt(cfg)
	}

	db := cfg.DB

	if db == nil {
		if cfg.PostgresDSN == "" && cfg.SQLitePath == "" {
			return nil, errors.New("either postgres dsn or sqlite path must be provided")
		}

		var dial gorm.Dialector

		if cfg.PostgresDSN != "" {
			dial = postgres.Open(cfg.PostgresDSN)
		}

		if cfg.SQLitePath != "" {
			dial = sqlite.Open(cfg.SQLitePath)
		}

		var err error

		db, err = gorm.Open(dial, &gorm.Config{TranslateError: true})
		if err != nil {
			return nil, errors.Wrap(err, "opening log store")
		}
	}

	s := Store{
		db:    db,
		codec: codec,
	}

	err := db.AutoMigrate(&gormMessage{}, &gormPosition{})
	if err != nil {
		_ = s.Close()

		return nil, errors.Wrap(err, "migrating log store")
	}

	return &s, nil
}

// Cfg represents message store configuration
type Cfg struct {
	PostgresDSN string
	SQLitePath  string
	DB          *gorm.DB
}

// Option represents message store configuration option
type Option func(Cfg) Cfg

// WithPostgresDB is a message store option that can be used to configure
// the store to use postgres as a backing storage (pgx driver)
func WithPostgresDB(dsn string) Option {
	return func(cfg Cfg) Cfg {
		cfg.PostgresDSN = dsn

		return cfg
	}
}

// WithSQLiteDB is a message store option that can be used to configure
// the store to use sqlite as a backing storage
func WithSQLiteDB(path string) Option {
	return func(cfg Cfg) Cfg {
		cfg.SQLitePath = path

		return cfg
	}
}

// WithGormDB configures the store to use an already opened connection.
// The caller owns the connection, Close will still close it
func WithGormDB(db *gorm.DB) Option {
	return func(cfg Cfg) Cfg {
		cfg.DB = db

		return cfg
	}
}

// Store is the log store client
type Store struct {
	db    *gorm.DB
	codec *JSONCodec
}

// Codec returns the codec used to decode message rows
func (s *Store) Codec() *JSONCodec { return s.codec }

// Close should be called as a part of cleanup process
// in order to close the underlying sql connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

type gormMessage struct {
	GlobalPosition uint64 `gorm:"autoIncrement;primaryKey"`
	ID             string `gorm:"unique"`
	StreamName     string `gorm:"index:idx_stream_seq,unique"`
	Seq            int64  `gorm:"index:idx_stream_seq,unique"`
	Category       string `gorm:"index"`
	Type           string
	Size           int
	Data           []byte
	Timestamp      int64
}

// TableName returns gorm table name
func (gm *gormMessage) TableName() string { return "message" }

type gormPosition struct {
	SubscriberID string `gorm:"primaryKey"`
	Position     int64
	UpdatedAt    time.Time
}

// TableName returns gorm table name
func (gp *gormPosition) TableName() string { return "subscriber_position" }

var rawColumns = []string{"id", "seq", "timestamp", "size", "data", "global_position"}

// ReadCategory returns up to maxMessages messages of a category stream
// starting at fromPosition (inclusive) ordered by global position.
// maxMessages < 1 reads DefaultMaxMessages
func (s *Store) ReadCategory(ctx context.Context, category string, fromPosition int64, maxMessages int) ([]Message, error) {
	if maxMessages < 1 {
		maxMessages = DefaultMaxMessages
	}

	var rows []RawMessage

	if err := s.db.
		WithContext(ctx).
		Model(&gormMessage{}).
		Select(rawColumns).
		Where("category = ? AND global_position >= ?", category, fromPosition).
		Order("global_position asc").
		Limit(maxMessages).
		Scan(&rows).Error; err != nil {
		return nil, logStoreErr(err, "reading category")
	}

	return s.decodeRows(rows)
}

// ReadStream will read all messages of an entity stream ordered by seq.
// If there are no messages stored for a given stream ErrStreamNotFound will be returned
func (s *Store) ReadStream(ctx context.Context, stream string) ([]Message, error) {
	if len(stream) == 0 {
		return nil, errors.New("stream name must be provided")
	}

	var rows []RawMessage

	if err := s.db.
		WithContext(ctx).
		Model(&gormMessage{}).
		Select(rawColumns).
		Where("stream_name = ?", stream).
		Order("seq asc").
		Scan(&rows).Error; err != nil {
		return nil, logStoreErr(err, "reading stream")
	}

	if len(rows) == 0 {
		return nil, ErrStreamNotFound
	}

	return s.decodeRows(rows)
}

func (s *Store) decodeRows(rows []RawMessage) ([]Message, error) {
	out := make([]Message, len(rows))

	for i := range rows {
		msg, err := s.codec.Decode(&rows[i])
		if err != nil {
			return nil, err
		}

		out[i] = *msg
	}

	return out, nil
}

// ReadLastCheckpoint returns persisted checkpoint of a subscriber or nil
// if the subscriber never wrote one
func (s *Store) ReadLastCheckpoint(ctx context.Context, subscriberID string) (*Checkpoint, error) {
	var found []gormPosition

	if err := s.db.
		WithContext(ctx).
		Where("subscriber_id = ?", subscriberID).
		Limit(1).
		Find(&found).Error; err != nil {
		return nil, logStoreErr(err, "reading checkpoint")
	}

	if len(found) == 0 {
		return nil, nil
	}

	return &Checkpoint{
		SubscriberID: found[0].SubscriberID,
		Position:     found[0].Position,
		UpdatedAt:    found[0].UpdatedAt,
	}, nil
}

// WriteCheckpoint persists subscriber position. Zero (no progress) positions
// are rejected with ErrInvalidPosition and a stored position never moves backwards
func (s *Store) WriteCheckpoint(ctx context.Context, subscriberID string, position int64) error {
	if position <= 0 {
		return ErrInvalidPosition
	}

	if subscriberID == "" {
		return errors.New("subscriber id must be provided")
	}

	err := s.db.
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subscriber_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"position", "updated_at"}),
			Where: clause.Where{Exprs: []clause.Expression{
				gorm.Expr("subscriber_position.position <= excluded.position"),
			}},
		}).
		Create(&gormPosition{
			SubscriberID: subscriberID,
			Position:     position,
			UpdatedAt:    time.Now().UTC(),
		}).Error
	if err != nil {
		return logStoreErr(err, "writing checkpoint")
	}

	return nil
}

// AppendStream will encode provided messages and try to append them to
// an indicated stream. If the stream does not exist it will be created.
// If the stream already exists an optimistic concurrency check will be performed
// using a compound key (stream-seq).
// expectedVer should be InitialStreamVersion for new streams, the latest
// stream seq for existing streams or AnyVersion to skip the check
func (s *Store) AppendStream(ctx context.Context, stream string, expectedVer int64, msgs []Message) error {
	texts := make([][]byte, len(msgs))

	for i, msg := range msgs {
		if msg.ID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}

			msg.ID = id.String()
		}

		text, err := s.codec.Encode(msg)
		if err != nil {
			return err
		}

		texts[i] = text
	}

	return s.appendTexts(ctx, stream, expectedVer, texts)
}

// Publish appends serialized message text to a stream. It lets the store
// act as the transport for single process deployments
func (s *Store) Publish(ctx context.Context, stream string, text []byte) error {
	return s.appendTexts(ctx, stream, AnyVersion, [][]byte{text})
}

func (s *Store) appendTexts(ctx context.Context, stream string, expectedVer int64, texts [][]byte) error {
	if len(stream) == 0 {
		return errors.New("stream name must be provided")
	}

	if expectedVer < AnyVersion {
		return errors.New("expected version cannot be less than -1")
	}

	if len(texts) == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ver := expectedVer

		if ver == AnyVersion {
			if err := tx.
				Model(&gormMessage{}).
				Where("stream_name = ?", stream).
				Select("COALESCE(MAX(seq), 0)").
				Scan(&ver).Error; err != nil {
				return err
			}
		}

		now := time.Now().UTC().UnixMilli()
		rows := make([]gormMessage, len(texts))

		for i, text := range texts {
			ver++

			rows[i] = gormMessage{
				ID:         jsoniter.Get(text, "id").ToString(),
				StreamName: stream,
				Seq:        ver,
				Category:   CategoryOf(stream),
				Type:       jsoniter.Get(text, "type").ToString(),
				Size:       len(text),
				Data:       Frame(stream, uint64(ver), now, text),
				Timestamp:  now,
			}

			if rows[i].ID == "" {
				return errors.New("message id must be provided")
			}
		}

		return tx.Create(&rows).Error
	})

	if e, ok := err.(sqlite3.Error); ok && e.Code == sqlite3.ErrConstraint {
		return ErrConcurrencyCheckFailed
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConcurrencyCheckFailed
	}

	if err != nil {
		return logStoreErr(err, "appending stream")
	}

	return nil
}
