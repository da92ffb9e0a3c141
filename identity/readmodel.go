package identity

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRow is a users read model row
type UserRow struct {
	ID            string `gorm:"primaryKey"`
	Auth0ID       string `gorm:"column:auth0_id;uniqueIndex"`
	Email         string
	EmailVerified bool
	FirstName     string
	LastName      string
	Picture       string
	Locale        string
	UpdatedAt     time.Time
}

// TableName sets the read model table name
func (UserRow) TableName() string {
	return "users"
}

// ReadModel is the users read model built by the Aggregator. Every write is
// an idempotent upsert, so replaying events yields the same rows
type ReadModel struct {
	db *gorm.DB
}

// NewReadModel migrates the users table
func NewReadModel(db *gorm.DB) (*ReadModel, error) {
	err := db.AutoMigrate(&UserRow{})
	if err != nil {
		return nil, errors.Wrap(err, "migrating users")
	}

	return &ReadModel{db: db}, nil
}

// AddUser inserts the user row unless it exists
func (r *ReadModel) AddUser(ctx context.Context, e UserAdded) error {
	row := UserRow{
		ID:            e.ID,
		Auth0ID:       e.Auth0ID,
		Email:         e.Email,
		EmailVerified: e.EmailVerified,
		FirstName:     e.FirstName,
		LastName:      e.LastName,
		Picture:       e.Picture,
		Locale:        e.Locale,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error

	return errors.Wrapf(err, "adding user %s", e.ID)
}

// ModifyUser overwrites the profile fields of user id
func (r *ReadModel) ModifyUser(ctx context.Context, id string, e UserModified) error {
	err := r.db.WithContext(ctx).
		Model(&UserRow{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"first_name": e.FirstName,
			"last_name":  e.LastName,
			"locale":     e.Locale,
			"picture":    e.Picture,
		}).Error

	return errors.Wrapf(err, "modifying user %s", id)
}
