package quota_test

import (
	"context"
	"io"
	"log/slog"
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
	"github.com/introweave/matchmaker/internal/service/quota"
)

func setupService(t *testing.T) (*quota.Service, *miniredis.Miniredis, *config.Config) {
	t.Helper()

	dbase, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(dbase))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	cfg.SetQuotaLimits(config.QuotaLimits{ProvisionalTotal: 3, MemberDaily: 1})

	redisCache := cache.NewRedisCache(cfg)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	appCtx := app.New(dbase, redisCache, log, cfg)
	return quota.NewService(appCtx), mr, cfg
}

func TestProvisionalLifetimeCap(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t)

	for i := 0; i < 3; i++ {
		a, err := svc.CanSend(ctx, "u1", db.TierUnverifiedMember)
		require.NoError(t, err)
		require.True(t, a.Allowed, "send %d should be allowed", i+1)
		require.NoError(t, svc.Record(ctx, "u1"))
	}

	// Fourth attempt is denied regardless of anything else.
	a, err := svc.CanSend(ctx, "u1", db.TierUnverifiedMember)
	require.NoError(t, err)
	assert.False(t, a.Allowed)
	assert.Equal(t, 0, a.Remaining)
	assert.Equal(t, 3, a.Limit)
	assert.False(t, a.Daily)
}

func TestMemberDailyCapResets(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t)

	base := time.Now().UTC()
	svc.Now = func() time.Time { return base }

	a, err := svc.CanSend(ctx, "u1", db.TierGroupMember)
	require.NoError(t, err)
	require.True(t, a.Allowed)
	require.NoError(t, svc.Record(ctx, "u1"))

	a, err = svc.CanSend(ctx, "u1", db.TierGroupMember)
	require.NoError(t, err)
	assert.False(t, a.Allowed)
	assert.True(t, a.Daily)

	// The window elapses; the daily counter resets lazily on read.
	svc.Now = func() time.Time { return base.Add(24*time.Hour + time.Minute) }

	a, err = svc.CanSend(ctx, "u1", db.TierGroupMember)
	require.NoError(t, err)
	assert.True(t, a.Allowed)
	assert.Equal(t, 1, a.Remaining)
}

func TestCountersMonotonicAcrossReset(t *testing.T) {
	ctx := context.Background()
	svc, _, cfg := setupService(t)
	cfg.SetQuotaLimits(config.QuotaLimits{ProvisionalTotal: 100, MemberDaily: 10})

	base := time.Now().UTC()
	svc.Now = func() time.Time { return base }

	require.NoError(t, svc.Record(ctx, "u1"))
	require.NoError(t, svc.Record(ctx, "u1"))

	svc.Now = func() time.Time { return base.Add(25 * time.Hour) }
	require.NoError(t, svc.Record(ctx, "u1"))

	// Daily reset, lifetime total untouched.
	daily, err := svc.DailyCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, daily)

	a, err := svc.CanSend(ctx, "u1", db.TierUnverifiedMember)
	require.NoError(t, err)
	assert.Equal(t, 100-3, a.Remaining)
}

func TestDailyCountCacheFallback(t *testing.T) {
	ctx := context.Background()
	svc, mr, _ := setupService(t)

	require.NoError(t, svc.Record(ctx, "u1"))

	// Cache was refreshed by Record.
	daily, err := svc.DailyCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, daily)

	// Redis down: the DB answers and nothing crashes.
	mr.Close()

	daily, err = svc.DailyCount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, daily)
}

func TestRuntimeLimitOverride(t *testing.T) {
	ctx := context.Background()
	svc, _, cfg := setupService(t)

	require.NoError(t, svc.Record(ctx, "u1"))
	a, err := svc.CanSend(ctx, "u1", db.TierGroupMember)
	require.NoError(t, err)
	require.False(t, a.Allowed)

	// Admin raises the daily limit; the pending user is unblocked.
	cfg.SetQuotaLimits(config.QuotaLimits{ProvisionalTotal: 3, MemberDaily: 5})

	a, err = svc.CanSend(ctx, "u1", db.TierGroupMember)
	require.NoError(t, err)
	assert.True(t, a.Allowed)
	assert.Equal(t, 4, a.Remaining)
}
