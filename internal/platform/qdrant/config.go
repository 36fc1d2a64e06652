package qdrant

import (
	"fmt"
	"strings"

	"github.com/surfsense/surfsense-backend/internal/pkg/envutil"
)

// Config describes the Qdrant endpoint and collection the chunk index
// lives in. The store is optional; when URL is empty retrieval falls back
// to SQL scoring.
type Config struct {
	URL        string
	Collection string
	VectorDim  int
}

func ConfigFromEnv() Config {
	return Config{
		URL:        strings.TrimSpace(envutil.String("QDRANT_URL", "")),
		Collection: strings.TrimSpace(envutil.String("QDRANT_COLLECTION", "surfsense_chunks")),
		VectorDim:  envutil.Int("EMBEDDING_DIMENSION", 1536),
	}
}

// Enabled reports whether a Qdrant endpoint is configured at all.
func (c Config) Enabled() bool { return strings.TrimSpace(c.URL) != "" }

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.URL) == "" {
		return fmt.Errorf("qdrant url required")
	}
	if !strings.HasPrefix(cfg.URL, "http://") && !strings.HasPrefix(cfg.URL, "https://") {
		return fmt.Errorf("qdrant url must be http(s): %q", cfg.URL)
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return fmt.Errorf("qdrant collection required")
	}
	if cfg.VectorDim <= 0 {
		return fmt.Errorf("qdrant vector dim must be positive: %d", cfg.VectorDim)
	}
	return nil
}
