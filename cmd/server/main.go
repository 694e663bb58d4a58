package main

import (
	"context"

	"github.com/introweave/matchmaker/internal/app"
	"github.com/introweave/matchmaker/internal/cache"
	"github.com/introweave/matchmaker/internal/collab"
	"github.com/introweave/matchmaker/internal/config"
	"github.com/introweave/matchmaker/internal/db"
	"github.com/introweave/matchmaker/internal/intent"
	"github.com/introweave/matchmaker/internal/logger"
	"github.com/introweave/matchmaker/internal/pairlock"
	"github.com/introweave/matchmaker/internal/repository"
	"github.com/introweave/matchmaker/internal/server"
	"github.com/introweave/matchmaker/internal/service/discovery"
	"github.com/introweave/matchmaker/internal/service/proposal"
	"github.com/introweave/matchmaker/internal/service/quota"
	"github.com/introweave/matchmaker/internal/service/status"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		return
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(context.Background()); err != nil {
		log.Error("failed to connect to redis", "err", err)
		return
	}

	appCtx := app.New(database, redisCache, log, cfg)
	appCtx.Generator = collab.NewHTTPGenerator(cfg.Collab.GeneratorURL)
	appCtx.Embedder = collab.NewHTTPEmbedder(cfg.Collab.EmbedderURL)
	appCtx.Notifier = &collab.LogNotifier{Logger: log}
	appCtx.Directory = repository.NewUserRepository(database)

	locks := pairlock.New()
	statusSvc := status.NewService(appCtx)
	quotaSvc := quota.NewService(appCtx)
	discoverySvc := discovery.NewService(appCtx, statusSvc, locks)
	proposalSvc := proposal.NewService(appCtx, statusSvc, quotaSvc, intent.NewKeywordClassifier(), locks)

	// When a user reaches a proposal-eligible tier, sweep their waiting
	// matches in the background through the same path a user request
	// takes.
	statusSvc.OnPromotion = func(ctx context.Context, userID string, to db.Tier) {
		if !to.AtLeast(proposal.MinTier) {
			return
		}
		go proposalSvc.AutoPropose(context.Background(), userID)
	}

	if cfg.App.ENV == "development" {
		if err := db.SeedDemoData(database); err != nil {
			log.Error("failed to seed demo data", "err", err)
		}
	}

	srv := server.New(appCtx, statusSvc, discoverySvc, proposalSvc, quotaSvc)
	if err := srv.Start(); err != nil {
		log.Error("http server exited", "err", err)
	}
}
