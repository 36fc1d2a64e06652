package app

import (
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
	"github.com/surfsense/surfsense-backend/internal/platform/bucket"
	"github.com/surfsense/surfsense-backend/internal/platform/openai"
	"github.com/surfsense/surfsense-backend/internal/platform/qdrant"
	"github.com/surfsense/surfsense-backend/internal/platform/redisx"
	"github.com/surfsense/surfsense-backend/internal/platform/vault"
	"github.com/surfsense/surfsense-backend/internal/realtime/bus"
)

// Clients holds every external system handle. Bucket and Vectors are nil
// when their backends are not configured; callers degrade around them.
type Clients struct {
	Redis   *goredis.Client
	Locker  *redisx.Locker
	Bus     bus.Bus
	OpenAI  openai.Client
	Bucket  bucket.Service
	Vectors qdrant.VectorStore
	Vault   *vault.Vault
}

func wireClients(log *logger.Logger, cfg Config) (Clients, error) {
	var c Clients

	v, err := vault.New(cfg.EncryptionKey)
	if err != nil {
		return c, fmt.Errorf("%w: encryption key: %v", ErrConfig, err)
	}
	c.Vault = v

	ai, err := openai.NewClient(log)
	if err != nil {
		return c, fmt.Errorf("%w: openai client: %v", ErrConfig, err)
	}
	c.OpenAI = ai

	rdb, err := redisx.NewClient(log)
	if err != nil {
		return c, fmt.Errorf("%w: redis: %v", ErrDependency, err)
	}
	c.Redis = rdb
	c.Locker = redisx.NewLocker(rdb, log)

	b, err := bus.NewRedisBus(rdb, log)
	if err != nil {
		return c, fmt.Errorf("%w: redis bus: %v", ErrDependency, err)
	}
	c.Bus = b

	store, err := bucket.NewService(log)
	if err != nil {
		log.Warn("object storage disabled", "error", err)
	} else {
		c.Bucket = store
	}

	if qcfg := qdrant.ConfigFromEnv(); qcfg.Enabled() {
		vs, err := qdrant.NewVectorStore(log, qcfg)
		if err != nil {
			return c, fmt.Errorf("%w: qdrant: %v", ErrDependency, err)
		}
		c.Vectors = vs
	}

	return c, nil
}
