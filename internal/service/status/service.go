// Package status owns the user tier lifecycle: lazy initialization at
// the lowest tier, forward-only transitions over a fixed table, and
// rank-based authorization checks.
package status

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"github.com/introweave/matchmaker/internal/app"
	"github.com/introweave/matchmaker/internal/db"
	"github.com/introweave/matchmaker/internal/repository"
)

// transitions is the allowed-edge table. Tiers only move forward, one
// verification step at a time; self-transitions are no-ops, not errors.
var transitions = map[db.Tier][]db.Tier{
	db.TierOnboarding:          {db.TierUnverifiedMember},
	db.TierUnverifiedMember:    {db.TierVerificationPending},
	db.TierVerificationPending: {db.TierGroupMember},
	db.TierGroupMember:         {},
}

// Service is the tier engine. All store failures degrade to the lowest
// tier rather than propagating: a user forced back through onboarding
// beats a crashed handler.
type Service struct {
	appCtx *app.AppContext
	repo   *repository.StatusRepository
	log    *slog.Logger

	// OnPromotion, when set, fires after a successful transition. The
	// auto-proposal trigger hangs off it. Called synchronously; wire a
	// goroutine in main if the callback blocks.
	OnPromotion func(ctx context.Context, userID string, to db.Tier)
}

// NewService creates the status service with dependencies from AppContext.
func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx: appCtx,
		repo:   repository.NewStatusRepository(appCtx.DB),
		log:    appCtx.Logger.With("service", "status"),
	}
}

// GetStatus returns the user's current tier, creating an onboarding
// record on first sight. Never fails: store trouble degrades to
// onboarding (fail-safe-low).
func (s *Service) GetStatus(ctx context.Context, userID string) db.Tier {
	record, err := s.repo.Get(ctx, userID)
	if err == nil {
		if !record.Status.Valid() {
			s.log.Warn("stored status outside enumeration, treating as onboarding", "user", userID, "status", record.Status)
			return db.TierOnboarding
		}
		return record.Status
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		if initErr := s.SetStatus(ctx, userID, db.TierOnboarding); initErr != nil {
			s.log.Error("failed to initialize status record", "user", userID, "err", initErr)
		}
		return db.TierOnboarding
	}

	s.log.Error("status lookup failed, degrading to onboarding", "user", userID, "err", err)
	return db.TierOnboarding
}

// SetStatus writes a tier unconditionally. Only initialization and
// Transition call this; intent handlers go through Transition.
func (s *Service) SetStatus(ctx context.Context, userID string, tier db.Tier) error {
	previous := tier
	if record, err := s.repo.Get(ctx, userID); err == nil {
		previous = record.Status
	}

	return s.repo.Upsert(ctx, &db.UserStatus{
		UserID:         userID,
		Status:         tier,
		PreviousStatus: previous,
	})
}

// Transition applies a validated tier change.
//
// Behavior:
//   - newTier equal to the current tier is a successful no-op.
//   - An edge absent from the transition table logs a warning and
//     returns false; the stored status is untouched.
//   - On success the record is written and OnPromotion fires.
//
// The boolean is control flow, not an error: callers branch on it to
// pick a user-facing message.
func (s *Service) Transition(ctx context.Context, userID string, newTier db.Tier) bool {
	if !newTier.Valid() {
		s.log.Warn("transition to unknown tier denied", "user", userID, "to", newTier)
		return false
	}

	current := s.GetStatus(ctx, userID)
	if current == newTier {
		return true
	}

	allowed := false
	for _, next := range transitions[current] {
		if next == newTier {
			allowed = true
			break
		}
	}
	if !allowed {
		s.log.Warn("status transition denied", "user", userID, "from", current, "to", newTier)
		return false
	}

	if err := s.repo.Upsert(ctx, &db.UserStatus{
		UserID:         userID,
		Status:         newTier,
		PreviousStatus: current,
	}); err != nil {
		s.log.Error("failed to persist status transition", "user", userID, "to", newTier, "err", err)
		return false
	}

	s.log.Info("status transition applied", "user", userID, "from", current, "to", newTier)

	if s.OnPromotion != nil {
		s.OnPromotion(ctx, userID, newTier)
	}
	return true
}

// CanPerform is the authorization check: true iff the user's tier rank
// is at least the required tier's rank. It never changes state.
func (s *Service) CanPerform(ctx context.Context, userID string, required db.Tier) bool {
	return s.GetStatus(ctx, userID).AtLeast(required)
}
