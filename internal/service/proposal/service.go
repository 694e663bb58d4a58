// Package proposal drives a match from found through proposal_sent to
// connected (or a terminal decline/cancel/expiry). The user-initiated
// and auto-triggered paths share one SendProposal entry point, so the
// validation and duplicate checks cannot diverge.
package proposal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/introweave/matchmaker/internal/app"
	"github.com/introweave/matchmaker/internal/collab"
	"github.com/introweave/matchmaker/internal/db"
	svcErr "github.com/introweave/matchmaker/internal/errors"
	"github.com/introweave/matchmaker/internal/intent"
	"github.com/introweave/matchmaker/internal/pairlock"
	"github.com/introweave/matchmaker/internal/repository"
	"github.com/introweave/matchmaker/internal/service/quota"
	"github.com/introweave/matchmaker/internal/service/status"
)

// MinTier is the tier required to send proposals. Provisional members
// above it spend their lifetime allowance; group members their daily one.
const MinTier = db.TierUnverifiedMember

// Trigger records why a proposal attempt happened. The auto trigger goes
// through the exact same path a user message would.
type Trigger string

const (
	TriggerUser Trigger = "user"
	TriggerAuto Trigger = "auto"
)

// triggerGuardTTL bounds the auto-proposal SETNX guard. Long enough to
// cover a scan, short enough that a crashed holder does not block the
// user for long.
const triggerGuardTTL = 30 * time.Second

// Result is the structured outcome a handler relays to the user.
type Result struct {
	Success bool
	Text    string
	// Error names the anticipated condition when Success is false
	// ("quota_exceeded", "nothing_pending", ...); empty on success.
	Error string
}

const (
	errQuota          = "quota_exceeded"
	errNothingPending = "nothing_pending"
	errDuplicate      = "duplicate_proposal"
	errInternal       = "internal"
)

const apologyText = "Sorry, something went wrong on my end. Nothing was changed; please try again in a moment."

// Service runs the proposal/introduction workflow.
type Service struct {
	appCtx     *app.AppContext
	matches    *repository.MatchRepository
	intros     *repository.IntroductionRepository
	users      *repository.UserRepository
	statuses   *status.Service
	quotas     *quota.Service
	classifier intent.Classifier
	locks      *pairlock.Keyed
	log        *slog.Logger

	// Now stamps proposal and response times. Tests override it.
	Now func() time.Time
}

// NewService creates the proposal service. The pairlock must be shared
// with the discovery service.
func NewService(
	appCtx *app.AppContext,
	statuses *status.Service,
	quotas *quota.Service,
	classifier intent.Classifier,
	locks *pairlock.Keyed,
) *Service {
	return &Service{
		appCtx:     appCtx,
		matches:    repository.NewMatchRepository(appCtx.DB, appCtx.Config.Match.ProposalTTL),
		intros:     repository.NewIntroductionRepository(appCtx.DB),
		users:      repository.NewUserRepository(appCtx.DB),
		statuses:   statuses,
		quotas:     quotas,
		classifier: classifier,
		locks:      locks,
		log:        appCtx.Logger.With("service", "proposal"),
		Now:        time.Now,
	}
}

// SendProposal sends the introduction for a match in match_found.
//
// Behavior:
//   - Valid only when the sender is a participant and the match is still
//     in match_found; anything else is a soft denial.
//   - An in-flight introduction for the match or the (from, to) pair
//     suppresses the send (logged, no error): this is what makes the
//     auto trigger safe to fire repeatedly.
//   - The introduction row is written before the match transition, so an
//     interrupted send leaves a pending intro on a still-open match
//     rather than a proposal the recipient cannot answer; a lost
//     transition race resolves the intro right away.
//   - Quota is checked before and charged after the side effects, so a
//     failed send is never billed.
//   - Delivery to the recipient is best effort; the records are already
//     persisted and the recipient finds the proposal on their next
//     interaction either way.
func (s *Service) SendProposal(ctx context.Context, userID, matchID string, trigger Trigger) Result {
	match, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		s.log.Warn("proposal for unknown match", "user", userID, "match", matchID, "err", err)
		return Result{Text: nothingPendingText, Error: errNothingPending}
	}
	if !match.HasUser(userID) {
		s.log.Warn("proposal from non-participant denied", "user", userID, "match", matchID)
		return Result{Text: nothingPendingText, Error: errNothingPending}
	}

	recipientID := match.OtherUser(userID)

	unlock := s.locks.Lock(pairlock.Key(userID, recipientID))
	defer unlock()

	// Re-read inside the lock; discovery or a concurrent send may have
	// advanced the record while we waited.
	match, err = s.matches.GetByID(ctx, matchID)
	if err != nil || match.Status != db.MatchStatusFound {
		s.log.Warn("match not awaiting proposal", "user", userID, "match", matchID, "status", match.Status)
		return Result{Text: nothingPendingText, Error: errNothingPending}
	}

	inFlight, err := s.intros.InFlight(ctx, matchID, userID, recipientID)
	if err != nil {
		s.log.Error("introduction dedup check failed", "match", matchID, "err", err)
		return Result{Text: apologyText, Error: errInternal}
	}
	if inFlight {
		s.log.Info("introduction already in flight, skipping", "match", matchID, "trigger", trigger)
		return Result{Text: "That introduction is already on its way.", Error: errDuplicate}
	}

	tier := s.statuses.GetStatus(ctx, userID)
	if !tier.AtLeast(MinTier) {
		return Result{Text: "You'll be able to send introductions once you're verified.", Error: errNothingPending}
	}

	allowance, err := s.quotas.CanSend(ctx, userID, tier)
	if err != nil {
		s.log.Error("quota check failed", "user", userID, "err", err)
		return Result{Text: apologyText, Error: errInternal}
	}
	if !allowance.Allowed {
		return Result{Text: quotaText(allowance), Error: errQuota}
	}

	sender := s.identity(ctx, userID)
	recipient := s.identity(ctx, recipientID)

	ownPersona, ownConnection, _, _ := match.ContextsFor(userID)
	message, err := s.appCtx.Generator.Generate(ctx, introPrompt(sender.DisplayName, recipient.DisplayName, ownPersona, ownConnection, match.Reasoning))
	if err != nil {
		s.log.Error("introduction message generation failed", "match", matchID, "err", err)
		return Result{Text: apologyText, Error: errInternal}
	}

	now := s.Now()
	intro := db.Introduction{
		ID:         uuid.NewString(),
		MatchID:    match.ID,
		FromUserID: userID,
		ToUserID:   recipientID,
		Message:    message,
		Status:     db.IntroStatusProposalSent,
	}
	if err := s.intros.Create(ctx, &intro); err != nil {
		// The match is still match_found; nothing to undo.
		s.log.Error("introduction record creation failed", "match", matchID, "err", err)
		return Result{Text: apologyText, Error: errInternal}
	}

	if err := s.matches.Transition(ctx, &match, db.MatchStatusProposalSent, map[string]any{
		"proposer_id": userID,
		"proposed_at": now,
	}); err != nil {
		// The intro must not linger as a ghost the dedup scan would honor.
		if resolveErr := s.intros.Resolve(ctx, intro.ID, db.IntroStatusDeclined, s.Now()); resolveErr != nil {
			s.log.Error("failed to resolve introduction after lost transition", "intro", intro.ID, "err", resolveErr)
		}
		if svcErr.Is(err, svcErr.ErrStaleRecord) {
			s.log.Warn("lost proposal race", "match", matchID, "user", userID)
			return Result{Text: nothingPendingText, Error: errNothingPending}
		}
		s.log.Error("proposal transition failed", "match", matchID, "err", err)
		return Result{Text: apologyText, Error: errInternal}
	}

	s.deliver(ctx, recipientID, message)

	if err := s.quotas.Record(ctx, userID); err != nil {
		s.log.Error("quota charge failed after send", "user", userID, "err", err)
	}

	s.log.Info("proposal sent", "match", match.ID, "from", userID, "to", recipientID, "trigger", trigger)
	return Result{
		Success: true,
		Text:    fmt.Sprintf("Done! I've introduced you to %s. I'll let you know as soon as they respond.", displayName(recipient)),
	}
}

// Respond handles a reply to the newest pending introduction addressed
// to the user.
//
// Behavior:
//   - No pending introduction (or the responder is somehow the original
//     proposer) is a soft "nothing pending" denial.
//   - An ambiguous reply asks a clarifying question and mutates nothing.
//   - Accept walks the match through accepted to connected,
//     resolves the introduction, and notifies the proposer with the
//     responder's username when one is on file.
//   - Decline parks the match in its terminal status; only the direct
//     reply goes out.
func (s *Service) Respond(ctx context.Context, userID, message string) Result {
	intro, err := s.intros.LatestPendingFor(ctx, userID)
	if err != nil {
		s.log.Error("pending introduction lookup failed", "user", userID, "err", err)
		return Result{Text: apologyText, Error: errInternal}
	}
	if intro == nil || intro.FromUserID == userID {
		return Result{Text: nothingPendingText, Error: errNothingPending}
	}

	match, err := s.matches.GetByID(ctx, intro.MatchID)
	if err != nil {
		s.log.Error("match lookup for response failed", "match", intro.MatchID, "err", err)
		return Result{Text: apologyText, Error: errInternal}
	}
	if match.Status != db.MatchStatusProposalSent {
		// Lazy expiry (or a concurrent resolution) beat the response.
		// Resolve the dangling introduction so it stops surfacing.
		if err := s.intros.Resolve(ctx, intro.ID, db.IntroStatusDeclined, s.Now()); err != nil {
			s.log.Error("failed to resolve dangling introduction", "intro", intro.ID, "err", err)
		}
		return Result{Text: "That introduction is no longer open, sorry. Want me to look for a fresh match?", Error: errNothingPending}
	}

	verdict := s.classifier.Classify(message)
	switch verdict {
	case intent.VerdictAccept:
		return s.accept(ctx, userID, intro, match)
	case intent.VerdictDecline:
		return s.decline(ctx, userID, intro, match)
	}

	// Ambiguous: ask again, change nothing.
	return Result{
		Success: false,
		Text:    "Just to be sure: would you like me to connect you two? A simple yes or no works.",
	}
}

func (s *Service) accept(ctx context.Context, userID string, intro *db.Introduction, match db.Match) Result {
	unlock := s.locks.Lock(pairlock.Key(match.UserAID, match.UserBID))
	defer unlock()

	now := s.Now()

	if err := s.matches.Transition(ctx, &match, db.MatchStatusAccepted, nil); err != nil {
		if svcErr.Is(err, svcErr.ErrStaleRecord) {
			s.log.Warn("lost accept race", "match", match.ID, "user", userID)
			return Result{Text: nothingPendingText, Error: errNothingPending}
		}
		s.log.Error("accept transition failed", "match", match.ID, "err", err)
		return Result{Text: apologyText, Error: errInternal}
	}

	// Both parties said yes; the connection is made immediately.
	if err := s.matches.Transition(ctx, &match, db.MatchStatusConnected, nil); err != nil {
		s.log.Error("connect transition failed", "match", match.ID, "err", err)
	}

	if err := s.intros.Resolve(ctx, intro.ID, db.IntroStatusAccepted, now); err != nil {
		s.log.Error("introduction resolve failed", "intro", intro.ID, "err", err)
	}

	responder := s.identity(ctx, userID)
	proposer := s.identity(ctx, intro.FromUserID)

	// Tell the original proposer, disclosing the responder's handle when
	// one is on file.
	var note string
	if responder.Username != "" {
		note = fmt.Sprintf("Great news: %s (@%s) accepted your introduction. Say hello!", displayName(responder), responder.Username)
	} else {
		note = fmt.Sprintf("Great news: %s accepted your introduction. They don't have a public handle, so I'll pass along anything you'd like to say.", displayName(responder))
	}
	s.deliver(ctx, intro.FromUserID, note)

	s.log.Info("proposal accepted", "match", match.ID, "responder", userID)
	return Result{
		Success: true,
		Text:    fmt.Sprintf("Wonderful! You're now connected with %s.", displayName(proposer)),
	}
}

func (s *Service) decline(ctx context.Context, userID string, intro *db.Introduction, match db.Match) Result {
	unlock := s.locks.Lock(pairlock.Key(match.UserAID, match.UserBID))
	defer unlock()

	if err := s.matches.Transition(ctx, &match, db.MatchStatusDeclined, nil); err != nil {
		if svcErr.Is(err, svcErr.ErrStaleRecord) {
			s.log.Warn("lost decline race", "match", match.ID, "user", userID)
			return Result{Text: nothingPendingText, Error: errNothingPending}
		}
		s.log.Error("decline transition failed", "match", match.ID, "err", err)
		return Result{Text: apologyText, Error: errInternal}
	}

	if err := s.intros.Resolve(ctx, intro.ID, db.IntroStatusDeclined, s.Now()); err != nil {
		s.log.Error("introduction resolve failed", "intro", intro.ID, "err", err)
	}

	s.log.Info("proposal declined", "match", match.ID, "responder", userID)
	return Result{
		Success: true,
		Text:    "No problem, I won't connect you two. I'll keep looking for better matches.",
	}
}

// AutoPropose fires when a user's tier just became eligible: it scans
// their matches still awaiting a proposal and re-enters SendProposal for
// each, with the same validation a user message would get. Returns how
// many proposals went out.
//
// A Redis SETNX guard keyed per user stops two overlapping firings from
// both scanning; the in-flight dedup inside SendProposal additionally
// makes a repeat run a no-op.
func (s *Service) AutoPropose(ctx context.Context, userID string) int {
	if !s.statuses.CanPerform(ctx, userID, MinTier) {
		return 0
	}

	acquired, err := s.appCtx.Cache.AcquireTriggerGuard(ctx, userID, triggerGuardTTL)
	if err != nil {
		// Redis down: proceed anyway, the dedup check keeps repeats safe.
		s.log.Warn("trigger guard unavailable, proceeding unguarded", "user", userID, "err", err)
	} else if !acquired {
		s.log.Info("auto-proposal already running for user, backing off", "user", userID)
		return 0
	} else {
		defer func() {
			if err := s.appCtx.Cache.ReleaseTriggerGuard(ctx, userID); err != nil {
				s.log.Debug("trigger guard release failed", "user", userID, "err", err)
			}
		}()
	}

	waiting, err := s.matches.ListForUserByStatus(ctx, userID, db.MatchStatusFound)
	if err != nil {
		s.log.Error("auto-proposal scan failed", "user", userID, "err", err)
		return 0
	}

	sent := 0
	for i := range waiting {
		m := &waiting[i]
		recipientID := m.OtherUser(userID)

		inFlight, err := s.intros.InFlight(ctx, m.ID, userID, recipientID)
		if err != nil {
			s.log.Error("auto-proposal dedup check failed", "match", m.ID, "err", err)
			continue
		}
		if inFlight {
			continue
		}

		res := s.SendProposal(ctx, userID, m.ID, TriggerAuto)
		if res.Success {
			sent++
			continue
		}
		if res.Error == errQuota {
			// A real user request would have been denied too; stop here.
			s.log.Info("auto-proposal stopped by quota", "user", userID)
			break
		}
		s.log.Info("auto-proposal skipped match", "match", m.ID, "reason", res.Error)
	}

	if sent > 0 {
		s.log.Info("auto-proposal run complete", "user", userID, "sent", sent)
	}
	return sent
}

// identity resolves a display identity best-effort; a directory failure
// degrades to a generic name rather than blocking the workflow.
func (s *Service) identity(ctx context.Context, userID string) collab.Identity {
	id, err := s.appCtx.Directory.GetDisplayName(ctx, userID)
	if err != nil {
		s.log.Warn("identity lookup failed", "user", userID, "err", err)
		return collab.Identity{}
	}
	return id
}

// deliver sends a message best-effort. Failures are logged and
// swallowed; the workflow state is already persisted.
func (s *Service) deliver(ctx context.Context, recipientID, message string) {
	user, err := s.users.GetByID(ctx, recipientID)
	if err != nil {
		s.log.Warn("delivery target lookup failed", "user", recipientID, "err", err)
		return
	}
	target := collab.DeliveryTarget{ChatID: user.ChatID, RecipientID: recipientID}
	if err := s.appCtx.Notifier.Deliver(ctx, target, message); err != nil {
		s.log.Warn("delivery failed", "user", recipientID, "err", err)
	}
}

func displayName(id collab.Identity) string {
	if id.DisplayName != "" {
		return id.DisplayName
	}
	if id.Username != "" {
		return id.Username
	}
	return "your match"
}

func quotaText(a quota.Allowance) string {
	if a.Daily {
		return fmt.Sprintf("You've used all %d of today's introductions. Your allowance resets within 24 hours.", a.Limit)
	}
	return fmt.Sprintf("You've used all %d introductions available before full membership. Finish verification to unlock a daily allowance.", a.Limit)
}

const nothingPendingText = "There's nothing pending for that right now."
