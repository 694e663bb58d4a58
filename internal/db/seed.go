package db

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var seedPersonas = []struct {
	persona    string
	connection string
}{
	{"Software engineer into distributed systems and bouldering.", "Looking for collaborators on open source infrastructure."},
	{"Community organizer running local mutual-aid groups.", "Wants to meet people building cooperative tech."},
	{"Designer focused on accessibility and inclusive products.", "Hoping to find engineers to prototype with."},
	{"Researcher working on trust networks and reputation.", "Interested in peers studying decentralized identity."},
	{"Musician and weekend game developer.", "Wants playtesters and creative collaborators."},
	{"Urban gardener documenting permaculture experiments.", "Looking for people starting community gardens."},
}

// SeedDemoData resets the database and populates it with demo users,
// statuses and a few in-flight matches. Intended for development only.
//
// Behavior:
//  1. Clears all workflow tables.
//  2. Creates 12 users with hashed passwords, personas and embeddings.
//  3. Spreads users across tiers, biased toward group_member.
//  4. Creates a handful of match_found records between members.
func SeedDemoData(db *gorm.DB) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	for _, table := range []string{"introductions", "matches", "quotas", "user_statuses", "users"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	log.Println("Cleared existing data")

	tiers := []Tier{TierOnboarding, TierUnverifiedMember, TierGroupMember, TierGroupMember}

	var memberIDs []string
	for i := 1; i <= 12; i++ {
		hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}

		p := seedPersonas[i%len(seedPersonas)]
		emb, _ := json.Marshal(randomEmbedding(r, 8))

		user := User{
			ID:                uuid.NewString(),
			Username:          fmt.Sprintf("user%d", i),
			DisplayName:       fmt.Sprintf("Demo User %d", i),
			ChatID:            fmt.Sprintf("chat-%d", i),
			PasswordHash:      string(hash),
			PersonaContext:    p.persona,
			ConnectionContext: p.connection,
			Embedding:         string(emb),
		}
		if err := db.Create(&user).Error; err != nil {
			return fmt.Errorf("failed to seed user: %w", err)
		}

		tier := tiers[i%len(tiers)]
		status := UserStatus{UserID: user.ID, Status: tier, PreviousStatus: TierOnboarding}
		if err := db.Create(&status).Error; err != nil {
			return fmt.Errorf("failed to seed status: %w", err)
		}
		if tier == TierGroupMember {
			memberIDs = append(memberIDs, user.ID)
		}
	}
	log.Println("Seeded 12 users.")

	// A few discovered pairs among full members, waiting on proposals.
	created := 0
	for i := 0; i+1 < len(memberIDs) && created < 3; i += 2 {
		a, b := CanonicalPair(memberIDs[i], memberIDs[i+1])
		match := Match{
			ID:                 uuid.NewString(),
			UserAID:            a,
			UserBID:            b,
			InitiatorID:        a,
			CompatibilityScore: 60 + r.Intn(40),
			Reasoning:          "Shared interests surfaced during discovery.",
			Status:             MatchStatusFound,
			Version:            1,
		}
		if err := db.Create(&match).Error; err != nil {
			return fmt.Errorf("failed to seed match: %w", err)
		}
		created++
	}
	log.Printf("Seeded %d matches.", created)

	return nil
}

func randomEmbedding(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = r.Float32()*2 - 1
	}
	return v
}
