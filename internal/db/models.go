package db

import (
	"encoding/json"
	"time"
)

// Tier is a user's progressive access level. Users only ever move forward;
// there is no automatic demotion.
type Tier string

const (
	TierOnboarding          Tier = "onboarding"
	TierUnverifiedMember    Tier = "unverified_member"
	TierVerificationPending Tier = "verification_pending"
	TierGroupMember         Tier = "group_member"
)

// tierRanks orders the tiers for authorization checks.
var tierRanks = map[Tier]int{
	TierOnboarding:          0,
	TierUnverifiedMember:    1,
	TierVerificationPending: 2,
	TierGroupMember:         3,
}

// Rank returns the tier's position in the hierarchy, or -1 for an
// unknown value.
func (t Tier) Rank() int {
	if r, ok := tierRanks[t]; ok {
		return r
	}
	return -1
}

// Valid reports whether t is one of the declared tiers.
func (t Tier) Valid() bool { return t.Rank() >= 0 }

// AtLeast reports whether t authorizes actions requiring the given tier.
func (t Tier) AtLeast(required Tier) bool {
	return t.Rank() >= 0 && required.Rank() >= 0 && t.Rank() >= required.Rank()
}

// Match workflow statuses. declined, cancelled and the expired_* values
// are absorbing terminals.
const (
	MatchStatusFound             = "match_found"
	MatchStatusProposalSent      = "proposal_sent"
	MatchStatusAccepted          = "accepted"
	MatchStatusConnected         = "connected"
	MatchStatusDeclined          = "declined"
	MatchStatusCancelled         = "cancelled"
	MatchStatusExpiredNoProposal = "expired_no_proposal"
	MatchStatusExpiredNoResponse = "expired_no_response"
)

// ActiveMatchStatuses are the non-terminal statuses. At most one match in
// one of these statuses may exist per user pair.
var ActiveMatchStatuses = []string{
	MatchStatusFound,
	MatchStatusProposalSent,
	MatchStatusAccepted,
	MatchStatusConnected,
}

// Introduction statuses.
const (
	IntroStatusProposalSent = "proposal_sent"
	IntroStatusAccepted     = "accepted"
	IntroStatusDeclined     = "declined"
)

// User is the profile backing the candidate pool and identity lookups.
// PersonaContext/ConnectionContext are free-text summaries produced by an
// upstream persona-extraction step; Embedding is the persona vector
// serialized as JSON.
type User struct {
	ID                string `gorm:"primaryKey;size:64"`
	Username          string `gorm:"size:64;index"`
	DisplayName       string `gorm:"size:128"`
	PasswordHash      string `gorm:"size:255"`
	ChatID            string `gorm:"size:64"`
	PersonaContext    string `gorm:"type:text"`
	ConnectionContext string `gorm:"type:text"`
	Embedding         string `gorm:"type:text"`
	CreatedAt         time.Time `gorm:"autoCreateTime"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

// EmbeddingVector decodes the stored persona embedding. A missing or
// corrupt value decodes to nil, which ranks last in similarity ordering.
func (u *User) EmbeddingVector() []float32 {
	if u.Embedding == "" {
		return nil
	}
	var v []float32
	if err := json.Unmarshal([]byte(u.Embedding), &v); err != nil {
		return nil
	}
	return v
}

// UserStatus tracks a user's current tier. Created lazily at the lowest
// tier on first lookup; mutated only through the status service.
type UserStatus struct {
	UserID         string    `gorm:"primaryKey;size:64"`
	Status         Tier      `gorm:"size:32;not null;index"`
	PreviousStatus Tier      `gorm:"size:32"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// Match is the stored state of one candidate pairing. The pair is
// canonicalized so UserAID < UserBID. Terminal records accumulate as
// history, so the pair index is not unique: at most one ACTIVE record
// per pair is the invariant, guarded by the pair lock plus the
// ActiveForPair re-check before creation. Version is an optimistic
// concurrency token: every transition is a conditional update on
// (status, version).
type Match struct {
	ID         string `gorm:"primaryKey;size:64"`
	UserAID    string `gorm:"size:64;not null;index:idx_match_pair,priority:1;index:idx_match_a_status,priority:1"`
	UserBID    string `gorm:"size:64;not null;index:idx_match_pair,priority:2;index:idx_match_b_status,priority:1"`
	// InitiatorID is the user whose discovery run created the record.
	InitiatorID string `gorm:"size:64;not null"`
	// ProposerID is set when a proposal is sent; empty until then.
	ProposerID         string `gorm:"size:64"`
	CompatibilityScore int    `gorm:"not null"`
	Reasoning          string `gorm:"type:text"`
	PersonaA           string `gorm:"type:text"`
	ConnectionA        string `gorm:"type:text"`
	PersonaB           string `gorm:"type:text"`
	ConnectionB        string `gorm:"type:text"`
	Status             string `gorm:"size:32;not null;index:idx_match_a_status,priority:2;index:idx_match_b_status,priority:2"`
	Version            int64  `gorm:"not null;default:1"`
	ProposedAt         *time.Time
	CreatedAt          time.Time `gorm:"autoCreateTime"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime"`
}

// CanonicalPair orders two user ids into (UserAID, UserBID) form.
func CanonicalPair(x, y string) (string, string) {
	if x < y {
		return x, y
	}
	return y, x
}

// HasUser reports whether userID is one of the pair.
func (m *Match) HasUser(userID string) bool {
	return m.UserAID == userID || m.UserBID == userID
}

// OtherUser returns the counterpart of userID in the pair, or "" if
// userID is not part of the match.
func (m *Match) OtherUser(userID string) string {
	switch userID {
	case m.UserAID:
		return m.UserBID
	case m.UserBID:
		return m.UserAID
	}
	return ""
}

// ContextsFor returns the persona/connection snapshots viewer-relative:
// the viewer's own contexts first, the counterpart's second.
func (m *Match) ContextsFor(userID string) (ownPersona, ownConnection, otherPersona, otherConnection string) {
	if userID == m.UserBID {
		return m.PersonaB, m.ConnectionB, m.PersonaA, m.ConnectionA
	}
	return m.PersonaA, m.ConnectionA, m.PersonaB, m.ConnectionB
}

// Active reports whether the match is still in a non-terminal status.
func (m *Match) Active() bool {
	switch m.Status {
	case MatchStatusFound, MatchStatusProposalSent, MatchStatusAccepted, MatchStatusConnected:
		return true
	}
	return false
}

// Introduction is the denormalized record of one proposal, letting the
// receiving side answer "who proposed to me" without scanning matches
// from both directions. Its status shadows the owning match.
type Introduction struct {
	ID          string `gorm:"primaryKey;size:64"`
	MatchID     string `gorm:"size:64;not null;index:idx_intro_match_status,priority:1"`
	FromUserID  string `gorm:"size:64;not null;index"`
	ToUserID    string `gorm:"size:64;not null;index:idx_intro_to_status,priority:1"`
	Message     string `gorm:"type:text"`
	Status      string `gorm:"size:32;not null;index:idx_intro_match_status,priority:2;index:idx_intro_to_status,priority:2"`
	RespondedAt *time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}

// Quota counts a user's sent proposals. DailyProposals resets on a
// rolling 24h window measured from LastResetAt; both counters are
// otherwise monotonic.
type Quota struct {
	UserID         string    `gorm:"primaryKey;size:64"`
	TotalProposals int       `gorm:"not null;default:0"`
	DailyProposals int       `gorm:"not null;default:0"`
	LastResetAt    time.Time
	LastProposalAt *time.Time
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}
