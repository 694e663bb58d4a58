// Package discovery finds a compatible counterpart for a requesting
// user. Candidate filtering and record creation are deterministic code;
// compatibility judgment is delegated to the text-generation
// collaborator and re-checked against a caller-side score threshold.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/introweave/matchmaker/internal/app"
	"github.com/introweave/matchmaker/internal/collab"
	"github.com/introweave/matchmaker/internal/db"
	"github.com/introweave/matchmaker/internal/pairlock"
	"github.com/introweave/matchmaker/internal/repository"
	"github.com/introweave/matchmaker/internal/service/status"
)

// MinTier is the tier required both to run discovery and to appear in
// someone else's candidate pool.
const MinTier = db.TierUnverifiedMember

// poolFetchLimit bounds the store query; similarity ranking then trims
// the pool to the configured candidate limit for the scoring call.
const poolFetchLimit = 50

// Result is what an intent handler relays back to the user.
type Result struct {
	Success   bool
	Text      string
	MatchID   string
	Score     int
	Reasoning string
}

// Service runs match discovery.
type Service struct {
	appCtx   *app.AppContext
	users    *repository.UserRepository
	matches  *repository.MatchRepository
	statuses *status.Service
	locks    *pairlock.Keyed
	log      *slog.Logger
}

// NewService creates the discovery service with dependencies from
// AppContext. The pairlock must be the same instance the proposal
// service uses so pair mutations serialize across both.
func NewService(appCtx *app.AppContext, statuses *status.Service, locks *pairlock.Keyed) *Service {
	return &Service{
		appCtx:   appCtx,
		users:    repository.NewUserRepository(appCtx.DB),
		matches:  repository.NewMatchRepository(appCtx.DB, appCtx.Config.Match.ProposalTTL),
		statuses: statuses,
		locks:    locks,
		log:      appCtx.Logger.With("service", "discovery"),
	}
}

// FindMatch runs one discovery pass for the user.
//
// Behavior:
//   - Requesters below MinTier get an invitation to verify instead of a
//     match; nothing is written.
//   - The candidate pool excludes the requester, anyone below MinTier and
//     anyone with an active match against the requester.
//   - Up to the configured candidate limit (cosine-ranked by persona
//     embedding) go into one batched scoring call.
//   - The "none" sentinel and scores below the threshold are both
//     below-threshold results; the threshold is a hard caller-side gate.
//   - A malformed scoring response is a soft failure: apologetic text,
//     success false, zero store writes.
//   - Creation re-checks the pair under the pair lock, so two concurrent
//     discoveries cannot produce duplicate active records.
func (s *Service) FindMatch(ctx context.Context, userID string) Result {
	tier := s.statuses.GetStatus(ctx, userID)
	if !tier.AtLeast(MinTier) {
		return Result{
			Success: false,
			Text:    "Before I can introduce you to anyone, let's finish getting you verified. Say \"verify\" and I'll walk you through it.",
		}
	}

	requester, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.log.Error("requester profile lookup failed", "user", userID, "err", err)
		return Result{Success: false, Text: apologyText}
	}

	persona, connection, ok := s.requesterContexts(ctx, &requester)
	if !ok {
		return Result{
			Success: false,
			Text:    "I don't know enough about you yet to find a good match. Tell me a bit about yourself and what kind of connection you're looking for.",
		}
	}

	pool, err := s.users.Candidates(ctx, userID, eligibleTiers(), poolFetchLimit)
	if err != nil {
		s.log.Error("candidate pool query failed", "user", userID, "err", err)
		return Result{Success: false, Text: apologyText}
	}
	if len(pool) == 0 {
		return Result{
			Success: false,
			Text:    "No compatible members are available right now. I'll keep an eye out and let you know as soon as someone promising joins.",
		}
	}

	candidates := s.rankCandidates(ctx, &requester, pool)

	raw, err := s.appCtx.Generator.Generate(ctx, scoringPrompt(persona, connection, candidates, s.appCtx.Config.Match.ScoreThreshold))
	if err != nil {
		s.log.Error("scoring call failed", "user", userID, "err", err)
		return Result{Success: false, Text: apologyText}
	}

	sel, err := collab.ParseMatchSelection(raw)
	if err != nil {
		s.log.Warn("scoring response malformed", "user", userID, "err", err)
		return Result{Success: false, Text: apologyText}
	}

	threshold := s.appCtx.Config.Match.ScoreThreshold
	if sel.None || sel.Score < threshold {
		s.log.Info("no candidate above threshold", "user", userID, "none", sel.None, "score", sel.Score, "threshold", threshold)
		return Result{
			Success: false,
			Text:    "I looked through the current members but didn't find a strong enough match yet. Let's try again soon.",
		}
	}

	chosen := findCandidate(candidates, sel.CandidateID)
	if chosen == nil {
		// The model picked an id we never offered it.
		s.log.Warn("scoring response named unknown candidate", "user", userID, "candidate", sel.CandidateID)
		return Result{Success: false, Text: apologyText}
	}

	return s.createMatch(ctx, &requester, persona, connection, chosen, sel)
}

// createMatch serializes on the pair key, re-checks the pair and writes
// the match_found record.
func (s *Service) createMatch(ctx context.Context, requester *db.User, persona, connection string, chosen *db.User, sel collab.MatchSelection) Result {
	unlock := s.locks.Lock(pairlock.Key(requester.ID, chosen.ID))
	defer unlock()

	existing, err := s.matches.ActiveForPair(ctx, requester.ID, chosen.ID)
	if err != nil {
		s.log.Error("pair re-check failed", "user", requester.ID, "candidate", chosen.ID, "err", err)
		return Result{Success: false, Text: apologyText}
	}
	if existing != nil {
		s.log.Info("active match already exists for pair, suppressing duplicate", "match", existing.ID)
		return Result{
			Success:   true,
			Text:      "Good news: you already have an introduction in progress with that member. I'll nudge things along.",
			MatchID:   existing.ID,
			Score:     existing.CompatibilityScore,
			Reasoning: existing.Reasoning,
		}
	}

	a, b := db.CanonicalPair(requester.ID, chosen.ID)
	match := db.Match{
		ID:                 uuid.NewString(),
		UserAID:            a,
		UserBID:            b,
		InitiatorID:        requester.ID,
		CompatibilityScore: sel.Score,
		Reasoning:          sel.Reasoning,
		Status:             db.MatchStatusFound,
		Version:            1,
	}
	if requester.ID == a {
		match.PersonaA, match.ConnectionA = persona, connection
		match.PersonaB, match.ConnectionB = chosen.PersonaContext, chosen.ConnectionContext
	} else {
		match.PersonaB, match.ConnectionB = persona, connection
		match.PersonaA, match.ConnectionA = chosen.PersonaContext, chosen.ConnectionContext
	}

	if err := s.matches.Create(ctx, &match); err != nil {
		s.log.Error("match creation failed", "user", requester.ID, "candidate", chosen.ID, "err", err)
		return Result{Success: false, Text: apologyText}
	}

	s.log.Info("match created", "match", match.ID, "score", sel.Score, "initiator", requester.ID)

	text := fmt.Sprintf("I found someone promising (compatibility %d/100). %s Want me to introduce you?", sel.Score, sel.Reasoning)
	return Result{Success: true, Text: text, MatchID: match.ID, Score: sel.Score, Reasoning: sel.Reasoning}
}

// requesterContexts returns the requester's persona/connection
// summaries, asking the generator to distill them when the profile only
// carries raw material. Empty either way means discovery cannot proceed.
func (s *Service) requesterContexts(ctx context.Context, requester *db.User) (persona, connection string, ok bool) {
	persona = strings.TrimSpace(requester.PersonaContext)
	connection = strings.TrimSpace(requester.ConnectionContext)
	if persona != "" && connection != "" {
		return persona, connection, true
	}
	if persona == "" && connection == "" {
		return "", "", false
	}

	raw, err := s.appCtx.Generator.Generate(ctx, summarizePrompt(persona, connection))
	if err != nil {
		s.log.Warn("context summarize failed", "user", requester.ID, "err", err)
		return "", "", false
	}
	sum, err := collab.ParseContextSummary(raw)
	if err != nil {
		s.log.Warn("context summary malformed", "user", requester.ID, "err", err)
		return "", "", false
	}
	return sum.Persona, sum.Connection, true
}

// rankCandidates orders the pool by persona-embedding similarity to the
// requester and trims it for the scoring call. Embedding trouble is not
// fatal: the pool falls back to store order.
func (s *Service) rankCandidates(ctx context.Context, requester *db.User, pool []db.User) []db.User {
	limit := s.appCtx.Config.Match.CandidateLimit
	if limit <= 0 {
		limit = 10
	}

	reqVec := requester.EmbeddingVector()
	if reqVec == nil {
		vec, err := s.appCtx.Embedder.Embed(ctx, requester.PersonaContext)
		if err != nil {
			s.log.Warn("requester embedding failed, using unranked pool", "user", requester.ID, "err", err)
			if len(pool) > limit {
				pool = pool[:limit]
			}
			return pool
		}
		reqVec = vec
	}

	sort.SliceStable(pool, func(i, j int) bool {
		return cosine(reqVec, pool[i].EmbeddingVector()) > cosine(reqVec, pool[j].EmbeddingVector())
	})
	if len(pool) > limit {
		pool = pool[:limit]
	}
	return pool
}

func findCandidate(candidates []db.User, id string) *db.User {
	for i := range candidates {
		if candidates[i].ID == id {
			return &candidates[i]
		}
	}
	return nil
}

// cosine similarity; nil or mismatched vectors rank last.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return -1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return -1
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func eligibleTiers() []string {
	tiers := []db.Tier{db.TierUnverifiedMember, db.TierVerificationPending, db.TierGroupMember}
	out := make([]string, 0, len(tiers))
	for _, t := range tiers {
		if t.AtLeast(MinTier) {
			out = append(out, string(t))
		}
	}
	return out
}

const apologyText = "Sorry, I hit a snag while looking for matches. Nothing was changed; please try again in a moment."
