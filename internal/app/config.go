package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/surfsense/surfsense-backend/internal/pkg/envutil"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

type Config struct {
	Port        string
	Environment string

	JWTSecret     string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	EncryptionKey string

	FrontendURL        string
	RateLimitPerMinute int64
}

// LoadConfig reads the process environment. Secrets have no defaults;
// a missing one is a configuration error, not a degraded mode.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := Config{
		Port:               envutil.String("PORT", "8080"),
		Environment:        envutil.String("ENVIRONMENT", "development"),
		JWTSecret:          envutil.String("SECRET_KEY", ""),
		AccessTTL:          envutil.Seconds("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTTL:         envutil.Seconds("REFRESH_TOKEN_LIFETIME_SECONDS", 30*24*time.Hour),
		EncryptionKey:      envutil.String("ENCRYPTION_KEY", ""),
		FrontendURL:        envutil.String("NEXT_FRONTEND_URL", "http://localhost:3000"),
		RateLimitPerMinute: int64(envutil.Int("RATE_LIMIT_PER_MINUTE", 300)),
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return cfg, fmt.Errorf("%w: SECRET_KEY is required", ErrConfig)
	}
	if strings.TrimSpace(cfg.EncryptionKey) == "" {
		return cfg, fmt.Errorf("%w: ENCRYPTION_KEY is required", ErrConfig)
	}
	log.Info("configuration loaded",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"rate_limit_per_minute", cfg.RateLimitPerMinute,
	)
	return cfg, nil
}
