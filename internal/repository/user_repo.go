package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/introweave/matchmaker/internal/collab"
	"github.com/introweave/matchmaker/internal/db"
)

// UserRepository provides data access for user profiles. It also backs
// the default collab.Directory implementation.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new repository bound to the given DB connection.
func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

func (r *UserRepository) GetByID(ctx context.Context, userID string) (db.User, error) {
	var user db.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	return user, err
}

// Candidates returns the discovery pool for a requester.
//
// Behavior:
//   - Excludes the requester themselves.
//   - Only users whose status is in eligibleTiers are returned.
//   - Excludes anyone already holding an active (non-terminal) match with
//     the requester, checked against both pair orientations.
//   - Capped at limit; similarity ranking happens in the service layer.
func (r *UserRepository) Candidates(
	ctx context.Context,
	requesterID string,
	eligibleTiers []string,
	limit int,
) ([]db.User, error) {
	var users []db.User

	err := r.db.WithContext(ctx).
		Table("users u").
		Where("u.id <> ?", requesterID).
		Where(`
			EXISTS (
				SELECT 1 FROM user_statuses s
				WHERE s.user_id = u.id
				  AND s.status IN ?
			)`, eligibleTiers).
		Where(`
			NOT EXISTS (
				SELECT 1 FROM matches m
				WHERE m.status IN ?
				  AND ((m.user_a_id = u.id AND m.user_b_id = ?)
				    OR (m.user_a_id = ? AND m.user_b_id = u.id))
			)`, db.ActiveMatchStatuses, requesterID, requesterID).
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// GetDisplayName implements collab.Directory against the users table.
func (r *UserRepository) GetDisplayName(ctx context.Context, userID string) (collab.Identity, error) {
	user, err := r.GetByID(ctx, userID)
	if err != nil {
		return collab.Identity{}, err
	}
	name := user.DisplayName
	if name == "" {
		name = user.Username
	}
	return collab.Identity{DisplayName: name, Username: user.Username}, nil
}
