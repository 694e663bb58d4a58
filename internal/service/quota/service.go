// Package quota enforces the proposal-sending budget: a lifetime cap for
// provisional members, a rolling daily cap for full members. Resets are
// lazy, checked on read; nothing runs on a timer.
package quota

import (
	"context"
	"log/slog"
	"time"

	"github.com/introweave/matchmaker/internal/app"
	"github.com/introweave/matchmaker/internal/db"
	"github.com/introweave/matchmaker/internal/repository"
)

// dailyWindow is the rolling reset window for the member daily counter.
const dailyWindow = 24 * time.Hour

// Allowance is the outcome of a quota check, carrying the numbers the
// user-facing denial message needs.
type Allowance struct {
	Allowed   bool
	Remaining int
	Limit     int
	// Daily is true when the daily counter applied (full members),
	// false when the lifetime counter did (provisional tiers).
	Daily bool
}

// Service tracks and enforces proposal quotas.
type Service struct {
	appCtx *app.AppContext
	repo   *repository.QuotaRepository
	log    *slog.Logger

	// Now is the quota clock. Tests override it to simulate the window.
	Now func() time.Time
}

// NewService creates the quota service with dependencies from AppContext.
func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx: appCtx,
		repo:   repository.NewQuotaRepository(appCtx.DB),
		log:    appCtx.Logger.With("service", "quota"),
		Now:    time.Now,
	}
}

// CanSend checks whether the user may send one more proposal at their
// tier. Lazily resets the daily counter when the window has elapsed.
// A store error denies the send; quota must not fail open.
func (s *Service) CanSend(ctx context.Context, userID string, tier db.Tier) (Allowance, error) {
	q, err := s.loadFresh(ctx, userID)
	if err != nil {
		return Allowance{}, err
	}
	return s.allowanceFor(q, tier), nil
}

// Record charges exactly one proposal. Call it once per successfully
// sent proposal, after the proposal side effects have been persisted.
func (s *Service) Record(ctx context.Context, userID string) error {
	now := s.Now()

	// Ensure the row exists and the window is current before charging,
	// so the increment lands on the right counter.
	q, err := s.loadFresh(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.repo.Increment(ctx, userID, now); err != nil {
		return err
	}

	// Best-effort cache refresh; the store remains the source of truth.
	if cacheErr := s.appCtx.Cache.SetDailyProposalCount(ctx, userID, q.DailyProposals+1); cacheErr != nil {
		s.log.Debug("quota cache refresh failed", "user", userID, "err", cacheErr)
	}
	return nil
}

// DailyCount returns today's sent-proposal count, cache-first with DB
// fallback. Used by the quota status endpoint; enforcement always reads
// the store.
func (s *Service) DailyCount(ctx context.Context, userID string) (int, error) {
	if cached, err := s.appCtx.Cache.GetDailyProposalCount(ctx, userID); err == nil && cached >= 0 {
		return cached, nil
	} else if err != nil {
		s.log.Debug("quota cache read failed, falling back to store", "user", userID, "err", err)
	}

	q, err := s.loadFresh(ctx, userID)
	if err != nil {
		return 0, err
	}

	if cacheErr := s.appCtx.Cache.SetDailyProposalCount(ctx, userID, q.DailyProposals); cacheErr != nil {
		s.log.Debug("quota cache refresh failed", "user", userID, "err", cacheErr)
	}
	return q.DailyProposals, nil
}

// Allowance reports the user's current allowance without charging.
func (s *Service) Allowance(ctx context.Context, userID string, tier db.Tier) (Allowance, error) {
	return s.CanSend(ctx, userID, tier)
}

// loadFresh loads the quota record, creating it on first contact and
// applying the lazy daily reset.
func (s *Service) loadFresh(ctx context.Context, userID string) (db.Quota, error) {
	now := s.Now()

	q, err := s.repo.GetOrCreate(ctx, userID, now)
	if err != nil {
		return q, err
	}

	if now.Sub(q.LastResetAt) >= dailyWindow {
		if err := s.repo.ResetDaily(ctx, userID, now, dailyWindow); err != nil {
			return q, err
		}
		q.DailyProposals = 0
		q.LastResetAt = now

		if cacheErr := s.appCtx.Cache.SetDailyProposalCount(ctx, userID, 0); cacheErr != nil {
			s.log.Debug("quota cache reset failed", "user", userID, "err", cacheErr)
		}
	}
	return q, nil
}

func (s *Service) allowanceFor(q db.Quota, tier db.Tier) Allowance {
	limits := s.appCtx.Config.QuotaLimits()

	var a Allowance
	if tier == db.TierGroupMember {
		a.Daily = true
		a.Limit = limits.MemberDaily
		a.Remaining = limits.MemberDaily - q.DailyProposals
	} else {
		a.Limit = limits.ProvisionalTotal
		a.Remaining = limits.ProvisionalTotal - q.TotalProposals
	}
	if a.Remaining < 0 {
		a.Remaining = 0
	}
	a.Allowed = a.Remaining > 0
	return a
}
