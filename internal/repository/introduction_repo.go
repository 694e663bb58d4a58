package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/introweave/matchmaker/internal/db"
)

// IntroductionRepository provides data access for introduction records,
// the denormalized "who proposed to me" view of proposals.
type IntroductionRepository struct {
	db *gorm.DB
}

// NewIntroductionRepository creates a new repository bound to the given
// DB connection.
func NewIntroductionRepository(database *gorm.DB) *IntroductionRepository {
	return &IntroductionRepository{db: database}
}

func (r *IntroductionRepository) Create(ctx context.Context, intro *db.Introduction) error {
	return r.db.WithContext(ctx).Create(intro).Error
}

// InFlight reports whether a proposal is already out for the match or
// between the two users in this direction. This is the duplicate check
// that makes the auto-proposal trigger safe to fire repeatedly.
func (r *IntroductionRepository) InFlight(ctx context.Context, matchID, fromUserID, toUserID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Introduction{}).
		Where("status = ?", db.IntroStatusProposalSent).
		Where("match_id = ? OR (from_user_id = ? AND to_user_id = ?)", matchID, fromUserID, toUserID).
		Count(&count).Error
	return count > 0, err
}

// LatestPendingFor returns the newest unresolved introduction addressed
// to the user, or nil when nothing awaits them.
func (r *IntroductionRepository) LatestPendingFor(ctx context.Context, toUserID string) (*db.Introduction, error) {
	var intro db.Introduction
	err := r.db.WithContext(ctx).
		Where("to_user_id = ? AND status = ?", toUserID, db.IntroStatusProposalSent).
		Order("created_at DESC").
		First(&intro).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &intro, nil
}

// Resolve stamps the introduction with its outcome and response time,
// keeping it in sync with the owning match.
func (r *IntroductionRepository) Resolve(ctx context.Context, introID, status string, respondedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&db.Introduction{}).
		Where("id = ?", introID).
		Updates(map[string]any{
			"status":       status,
			"responded_at": respondedAt,
		}).Error
}
