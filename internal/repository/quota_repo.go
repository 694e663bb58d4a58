package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/introweave/matchmaker/internal/db"
)

// QuotaRepository provides data access for proposal quota counters.
type QuotaRepository struct {
	db *gorm.DB
}

// NewQuotaRepository creates a new repository bound to the given DB connection.
func NewQuotaRepository(database *gorm.DB) *QuotaRepository {
	return &QuotaRepository{db: database}
}

// GetOrCreate loads the user's quota record, creating a zeroed one on
// first contact.
func (r *QuotaRepository) GetOrCreate(ctx context.Context, userID string, now time.Time) (db.Quota, error) {
	var q db.Quota
	err := r.db.WithContext(ctx).First(&q, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		q = db.Quota{UserID: userID, LastResetAt: now}
		if createErr := r.db.WithContext(ctx).Create(&q).Error; createErr != nil {
			return q, createErr
		}
		return q, nil
	}
	return q, err
}

// ResetDaily zeroes the daily counter and stamps the reset time. The
// WHERE clause re-checks the window so two lazy resets racing cannot
// both fire for the same day.
func (r *QuotaRepository) ResetDaily(ctx context.Context, userID string, now time.Time, window time.Duration) error {
	return r.db.WithContext(ctx).
		Model(&db.Quota{}).
		Where("user_id = ? AND last_reset_at <= ?", userID, now.Add(-window)).
		Updates(map[string]any{
			"daily_proposals": 0,
			"last_reset_at":   now,
		}).Error
}

// Increment charges one proposal: both counters move, LastProposalAt is
// stamped. Counters are monotonic apart from the daily reset.
func (r *QuotaRepository) Increment(ctx context.Context, userID string, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&db.Quota{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"total_proposals":  gorm.Expr("total_proposals + 1"),
			"daily_proposals":  gorm.Expr("daily_proposals + 1"),
			"last_proposal_at": now,
		}).Error
}
