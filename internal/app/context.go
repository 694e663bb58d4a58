package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/introweave/matchmaker/internal/cache"
	"github.com/introweave/matchmaker/internal/collab"
	"github.com/introweave/matchmaker/internal/config"
)

// AppContext holds shared dependencies: the store, cache, logger, config
// and the external collaborators every workflow service consumes.
type AppContext struct {
	DB     *gorm.DB
	Cache  *cache.RedisCache
	Logger *slog.Logger
	Config *config.Config

	// External collaborators, kept behind narrow interfaces so tests can
	// substitute fakes.
	Generator collab.Generator
	Embedder  collab.Embedder
	Notifier  collab.Notifier
	Directory collab.Directory
}

// New creates an AppContext. Collaborator fields are assigned by the
// caller before services are constructed.
func New(database *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger, cfg *config.Config) *AppContext {
	return &AppContext{
		DB:     database,
		Cache:  rdb,
		Logger: logger,
		Config: cfg,
	}
}
