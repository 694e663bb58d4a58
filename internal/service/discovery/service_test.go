package discovery_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/introweave/matchmaker/internal/app"
	"github.com/introweave/matchmaker/internal/cache"
	"github.com/introweave/matchmaker/internal/config"
	"github.com/introweave/matchmaker/internal/db"
	"github.com/introweave/matchmaker/internal/pairlock"
	"github.com/introweave/matchmaker/internal/service/discovery"
	"github.com/introweave/matchmaker/internal/service/status"
)

//
// Test fakes
//

// scriptedGenerator answers every Generate call with a fixed response.
type scriptedGenerator struct {
	response string
	err      error
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.response, g.err
}

// fixedEmbedder returns the same vector for any text.
type fixedEmbedder struct{ vec []float32 }

func (e *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.vec, nil
}

func scoringResponse(candidateID string, score int) string {
	return fmt.Sprintf(`<bestMatch>%s</bestMatch>
<score>%d</score>
<reasoning>They share core interests.</reasoning>`, candidateID, score)
}

//
// Fixtures
//

func setupService(t *testing.T, gen *scriptedGenerator) (*discovery.Service, *gorm.DB) {
	t.Helper()

	dbName := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	dbase, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := dbase.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(dbase))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	appCtx := app.New(dbase, cache.NewRedisCache(cfg), log, cfg)
	appCtx.Generator = gen
	appCtx.Embedder = &fixedEmbedder{vec: []float32{1, 0, 0}}

	statusSvc := status.NewService(appCtx)
	return discovery.NewService(appCtx, statusSvc, pairlock.New()), dbase
}

func seedMember(t *testing.T, dbase *gorm.DB, id string, tier db.Tier) {
	t.Helper()

	emb, _ := json.Marshal([]float32{1, 0, 0})
	require.NoError(t, dbase.Create(&db.User{
		ID:                id,
		Username:          id,
		DisplayName:       "User " + id,
		ChatID:            "chat-" + id,
		PersonaContext:    "Persona of " + id,
		ConnectionContext: "Connection wish of " + id,
		Embedding:         string(emb),
	}).Error)
	require.NoError(t, dbase.Create(&db.UserStatus{UserID: id, Status: tier}).Error)
}

func countMatches(t *testing.T, dbase *gorm.DB) int {
	t.Helper()
	var n int64
	require.NoError(t, dbase.Model(&db.Match{}).Count(&n).Error)
	return int(n)
}

//
// Tests
//

func TestFindMatchBelowTierInvitesVerification(t *testing.T) {
	ctx := context.Background()
	svc, dbase := setupService(t, &scriptedGenerator{response: scoringResponse("bob", 90)})

	seedMember(t, dbase, "newbie", db.TierOnboarding)
	seedMember(t, dbase, "bob", db.TierGroupMember)

	res := svc.FindMatch(ctx, "newbie")

	assert.False(t, res.Success)
	assert.Contains(t, res.Text, "verified")
	assert.Equal(t, 0, countMatches(t, dbase))

	// The no-match event must not promote anyone.
	var record db.UserStatus
	require.NoError(t, dbase.First(&record, "user_id = ?", "newbie").Error)
	assert.Equal(t, db.TierOnboarding, record.Status)
}

func TestFindMatchEmptyPool(t *testing.T) {
	ctx := context.Background()
	svc, dbase := setupService(t, &scriptedGenerator{response: scoringResponse("nobody", 90)})

	seedMember(t, dbase, "alice", db.TierGroupMember)

	res := svc.FindMatch(ctx, "alice")

	assert.False(t, res.Success)
	assert.Contains(t, res.Text, "No compatible members")
	assert.Equal(t, 0, countMatches(t, dbase))
}

func TestFindMatchCreatesRecord(t *testing.T) {
	ctx := context.Background()
	svc, dbase := setupService(t, &scriptedGenerator{response: scoringResponse("bob", 85)})

	seedMember(t, dbase, "alice", db.TierGroupMember)
	seedMember(t, dbase, "bob", db.TierGroupMember)

	res := svc.FindMatch(ctx, "alice")

	require.True(t, res.Success, "text: %s", res.Text)
	assert.Equal(t, 85, res.Score)
	require.NotEmpty(t, res.MatchID)

	var m db.Match
	require.NoError(t, dbase.First(&m, "id = ?", res.MatchID).Error)
	assert.Equal(t, db.MatchStatusFound, m.Status)
	assert.Equal(t, "alice", m.InitiatorID)
	a, b := db.CanonicalPair("alice", "bob")
	assert.Equal(t, a, m.UserAID)
	assert.Equal(t, b, m.UserBID)
	assert.Equal(t, 85, m.CompatibilityScore)
}

func TestFindMatchThresholdGate(t *testing.T) {
	ctx := context.Background()
	// The collaborator nominates bob, but at 45 under the default 60 cutoff.
	svc, dbase := setupService(t, &scriptedGenerator{response: scoringResponse("bob", 45)})

	seedMember(t, dbase, "alice", db.TierGroupMember)
	seedMember(t, dbase, "bob", db.TierGroupMember)

	res := svc.FindMatch(ctx, "alice")

	assert.False(t, res.Success)
	assert.Empty(t, res.MatchID)
	assert.Equal(t, 0, countMatches(t, dbase))
}

func TestFindMatchNoneSentinel(t *testing.T) {
	ctx := context.Background()
	svc, dbase := setupService(t, &scriptedGenerator{response: "<bestMatch>none</bestMatch>"})

	seedMember(t, dbase, "alice", db.TierGroupMember)
	seedMember(t, dbase, "bob", db.TierGroupMember)

	res := svc.FindMatch(ctx, "alice")

	assert.False(t, res.Success)
	assert.Equal(t, 0, countMatches(t, dbase))
}

func TestFindMatchMalformedResponseWritesNothing(t *testing.T) {
	ctx := context.Background()
	svc, dbase := setupService(t, &scriptedGenerator{response: "I am not sure what you mean."})

	seedMember(t, dbase, "alice", db.TierGroupMember)
	seedMember(t, dbase, "bob", db.TierGroupMember)

	res := svc.FindMatch(ctx, "alice")

	assert.False(t, res.Success)
	assert.Contains(t, res.Text, "Sorry")
	assert.Equal(t, 0, countMatches(t, dbase))
}

func TestFindMatchUnknownCandidateRejected(t *testing.T) {
	ctx := context.Background()
	// The model names someone who was never in the pool.
	svc, dbase := setupService(t, &scriptedGenerator{response: scoringResponse("mallory", 99)})

	seedMember(t, dbase, "alice", db.TierGroupMember)
	seedMember(t, dbase, "bob", db.TierGroupMember)

	res := svc.FindMatch(ctx, "alice")

	assert.False(t, res.Success)
	assert.Equal(t, 0, countMatches(t, dbase))
}

func TestConcurrentDiscoveryCreatesOneMatch(t *testing.T) {
	ctx := context.Background()
	svc, dbase := setupService(t, &scriptedGenerator{response: scoringResponse("bob", 90)})

	seedMember(t, dbase, "alice", db.TierGroupMember)
	seedMember(t, dbase, "bob", db.TierGroupMember)

	var wg sync.WaitGroup
	results := make([]discovery.Result, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.FindMatch(ctx, "alice")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, countMatches(t, dbase))

	// At least one run succeeded; the rest either saw the duplicate
	// (suppressed, reported as success) or an already-matched pool.
	successes := 0
	for _, res := range results {
		if res.Success {
			successes++
		}
	}
	assert.GreaterOrEqual(t, successes, 1)
}

func TestRediscoveryAfterDeclineAllowed(t *testing.T) {
	ctx := context.Background()
	svc, dbase := setupService(t, &scriptedGenerator{response: scoringResponse("bob", 90)})

	seedMember(t, dbase, "alice", db.TierGroupMember)
	seedMember(t, dbase, "bob", db.TierGroupMember)

	first := svc.FindMatch(ctx, "alice")
	require.True(t, first.Success)

	// The pair declines; a later discovery may pair them again.
	require.NoError(t, dbase.Model(&db.Match{}).
		Where("id = ?", first.MatchID).
		Update("status", db.MatchStatusDeclined).Error)

	second := svc.FindMatch(ctx, "alice")
	require.True(t, second.Success)
	assert.NotEqual(t, first.MatchID, second.MatchID)
}
