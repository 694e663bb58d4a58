package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/introweave/matchmaker/internal/db"
	svcErr "github.com/introweave/matchmaker/internal/errors"
)

// MatchRepository provides data access for match records. All state
// transitions go through Transition, which is a conditional update on
// (status, version) so a stale writer loses instead of clobbering.
//
// Expiry is evaluated lazily: reads flip records past the proposal TTL
// into their expired_* terminal before returning them. There is no
// background sweeper.
type MatchRepository struct {
	db  *gorm.DB
	ttl time.Duration

	// Now is the clock used for lazy expiry. Tests override it.
	Now func() time.Time
}

// NewMatchRepository creates a new repository bound to the given DB
// connection. proposalTTL bounds match_found and proposal_sent lifetimes.
func NewMatchRepository(database *gorm.DB, proposalTTL time.Duration) *MatchRepository {
	return &MatchRepository{db: database, ttl: proposalTTL, Now: time.Now}
}

func (r *MatchRepository) Create(ctx context.Context, m *db.Match) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *MatchRepository) GetByID(ctx context.Context, id string) (db.Match, error) {
	var m db.Match
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return m, err
	}
	r.expireIfStale(ctx, &m)
	return m, nil
}

// ActiveForPair returns the single active match between two users, in
// either canonical orientation, or nil when none exists. This is the
// duplicate-suppression read: discovery re-checks it immediately before
// creating a record.
func (r *MatchRepository) ActiveForPair(ctx context.Context, x, y string) (*db.Match, error) {
	a, b := db.CanonicalPair(x, y)

	var m db.Match
	err := r.db.WithContext(ctx).
		Where("user_a_id = ? AND user_b_id = ? AND status IN ?", a, b, db.ActiveMatchStatuses).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if r.expireIfStale(ctx, &m) && !m.Active() {
		// Expired just now; the pair has no active match anymore.
		return nil, nil
	}
	return &m, nil
}

// ListForUserByStatus returns a user's matches in the given status,
// oldest first, after lazy expiry has been applied.
func (r *MatchRepository) ListForUserByStatus(ctx context.Context, userID, status string) ([]db.Match, error) {
	var matches []db.Match
	err := r.db.WithContext(ctx).
		Where("(user_a_id = ? OR user_b_id = ?) AND status = ?", userID, userID, status).
		Order("created_at ASC").
		Find(&matches).Error
	if err != nil {
		return nil, err
	}

	fresh := matches[:0]
	for i := range matches {
		r.expireIfStale(ctx, &matches[i])
		if matches[i].Status == status {
			fresh = append(fresh, matches[i])
		}
	}
	return fresh, nil
}

// Transition moves a match from its currently loaded (status, version)
// to a new status, applying any extra column updates atomically.
//
// Behavior:
//   - Conditional UPDATE on (id, status, version); version increments.
//   - Zero rows affected means another writer got there first:
//     returns errors.ErrStaleRecord, store untouched by this call.
//   - On success the in-memory record is updated to match the store.
func (r *MatchRepository) Transition(ctx context.Context, m *db.Match, to string, extra map[string]any) error {
	updates := map[string]any{
		"status":  to,
		"version": m.Version + 1,
	}
	for k, v := range extra {
		updates[k] = v
	}

	res := r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("id = ? AND status = ? AND version = ?", m.ID, m.Status, m.Version).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return svcErr.ErrStaleRecord
	}

	m.Status = to
	m.Version++
	return nil
}

// expireIfStale flips a record past its TTL into the matching expired_*
// terminal. Returns true when the in-memory record changed. A lost
// expiry race is fine: someone else advanced the record, and the caller
// sees whichever state won.
func (r *MatchRepository) expireIfStale(ctx context.Context, m *db.Match) bool {
	now := r.Now()

	switch m.Status {
	case db.MatchStatusFound:
		if now.Sub(m.CreatedAt) >= r.ttl {
			if err := r.Transition(ctx, m, db.MatchStatusExpiredNoProposal, nil); err == nil {
				return true
			}
		}
	case db.MatchStatusProposalSent:
		if m.ProposedAt != nil && now.Sub(*m.ProposedAt) >= r.ttl {
			if err := r.Transition(ctx, m, db.MatchStatusExpiredNoResponse, nil); err == nil {
				return true
			}
		}
	}
	return false
}
