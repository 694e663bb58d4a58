package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// QuotaLimits is the runtime-adjustable proposal budget.
// Provisional members get a lifetime cap, full members a daily one.
type QuotaLimits struct {
	ProvisionalTotal int
	MemberDaily      int
}

type Config struct {
	App struct {
		ENV string
	}

	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
	}

	DB struct {
		DSN      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	HTTP struct {
		Host string
		Port string
	}

	Collab struct {
		GeneratorURL string
		EmbedderURL  string
	}

	Match struct {
		// ScoreThreshold is the caller-side compatibility gate (0-100).
		// Scores below it are treated the same as "no match".
		ScoreThreshold int
		// ProposalTTL bounds how long a match may sit without a proposal,
		// and a proposal without a response, before lazy expiry.
		ProposalTTL time.Duration
		// CandidateLimit caps how many candidates go into a single
		// batched scoring call.
		CandidateLimit int
	}

	quotaMu sync.RWMutex
	quota   QuotaLimits
}

func New() *Config {
	cfg := &Config{}

	cfg.App.ENV = getEnvDefault("APP_ENV", "production")

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "matchmaker")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	// Database
	cfg.DB.DSN = os.Getenv("MYSQL_DSN")
	if cfg.DB.DSN == "" {
		cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
		cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
		cfg.DB.User = getEnvDefault("DB_USER", "root")
		cfg.DB.Password = getEnvDefault("DB_PASSWORD", "root")
		cfg.DB.Name = getEnvDefault("DB_NAME", "matchmaker")

		cfg.DB.DSN = fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
		)
	}

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	if dbStr := getEnvDefault("REDIS_DB", "0"); dbStr != "" {
		if dbInt, err := strconv.Atoi(dbStr); err == nil {
			cfg.Redis.DB = dbInt
		}
	}

	// HTTP
	cfg.HTTP.Host = getEnvDefault("HTTP_HOST", "0.0.0.0")
	cfg.HTTP.Port = getEnvDefault("HTTP_PORT", "8080")

	// Collaborator endpoints
	cfg.Collab.GeneratorURL = getEnvDefault("GENERATOR_URL", "http://localhost:9100/generate")
	cfg.Collab.EmbedderURL = getEnvDefault("EMBEDDER_URL", "http://localhost:9100/embed")

	// Match workflow
	cfg.Match.ScoreThreshold = getEnvInt("MATCH_SCORE_THRESHOLD", 60)
	cfg.Match.ProposalTTL = time.Duration(getEnvInt("PROPOSAL_TTL_HOURS", 24)) * time.Hour
	cfg.Match.CandidateLimit = getEnvInt("MATCH_CANDIDATE_LIMIT", 10)

	// Quota defaults; adjustable at runtime via SetQuotaLimits.
	cfg.quota = QuotaLimits{
		ProvisionalTotal: getEnvInt("QUOTA_PROVISIONAL_TOTAL", 3),
		MemberDaily:      getEnvInt("QUOTA_MEMBER_DAILY", 1),
	}

	return cfg
}

// QuotaLimits returns the current proposal limits.
func (c *Config) QuotaLimits() QuotaLimits {
	c.quotaMu.RLock()
	defer c.quotaMu.RUnlock()
	return c.quota
}

// SetQuotaLimits replaces the proposal limits. Used by the admin override;
// safe to call while handlers are in flight.
func (c *Config) SetQuotaLimits(l QuotaLimits) {
	c.quotaMu.Lock()
	defer c.quotaMu.Unlock()
	c.quota = l
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
