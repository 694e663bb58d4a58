package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/introweave/matchmaker/internal/db"
)

// StatusRepository provides data access for user tier records.
type StatusRepository struct {
	db *gorm.DB
}

// NewStatusRepository creates a new repository bound to the given DB connection.
func NewStatusRepository(database *gorm.DB) *StatusRepository {
	return &StatusRepository{db: database}
}

func (r *StatusRepository) Get(ctx context.Context, userID string) (db.UserStatus, error) {
	var status db.UserStatus
	err := r.db.WithContext(ctx).First(&status, "user_id = ?", userID).Error
	return status, err
}

// Upsert writes a status record unconditionally. Transition validation
// lives in the status service; nothing else should call this.
//
// The OnConflict clause makes lazy initialization race-tolerant: two
// concurrent first reads both try to create the onboarding row and the
// second simply overwrites with identical values.
func (r *StatusRepository) Upsert(ctx context.Context, status *db.UserStatus) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "previous_status", "updated_at"}),
		}).
		Create(status).Error
}
