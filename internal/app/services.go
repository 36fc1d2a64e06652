package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/surfsense/surfsense-backend/internal/agent"
	"github.com/surfsense/surfsense-backend/internal/auth"
	"github.com/surfsense/surfsense-backend/internal/avatar"
	"github.com/surfsense/surfsense-backend/internal/chat"
	"github.com/surfsense/surfsense-backend/internal/connectors"
	"github.com/surfsense/surfsense-backend/internal/documents"
	"github.com/surfsense/surfsense-backend/internal/ingest"
	"github.com/surfsense/surfsense-backend/internal/ingestion"
	"github.com/surfsense/surfsense-backend/internal/jobs"
	"github.com/surfsense/surfsense-backend/internal/notify"
	"github.com/surfsense/surfsense-backend/internal/pkg/envutil"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
	"github.com/surfsense/surfsense-backend/internal/quota"
	"github.com/surfsense/surfsense-backend/internal/retrieval"
	"github.com/surfsense/surfsense-backend/internal/spaces"
)

type Services struct {
	Guard    *quota.Guard
	Notify   *notify.Service
	Spaces   *spaces.Service
	Chat     *chat.Service
	Auth     *auth.Service
	Avatar   *avatar.Service
	Docs     *documents.Service
	Manager  *ingestion.Manager
	Enqueuer *jobs.Enqueuer

	Registry    *connectors.Registry
	Coordinator *ingestion.Coordinator
	Processor   *ingestion.Processor

	Embedder  *ingest.Embedder
	Retriever *retrieval.Retriever
	Runner    *agent.Runner
	Scheduler *jobs.Scheduler
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r Repos, c Clients) (Services, error) {
	var s Services

	s.Guard = quota.NewGuard(db, r.Users, log)
	s.Notify = notify.NewService(r.Notifications, c.Bus, log)
	s.Spaces = spaces.NewService(db, log, r.Spaces, r.Memberships, r.Invites, s.Guard, s.Notify)
	s.Chat = chat.NewService(db, log, r.Threads, r.Messages, r.Comments, r.Mentions,
		r.Snapshots, r.Podcasts, r.Users, s.Spaces, s.Notify)

	// Avatar rendering needs a font file and object storage; without either
	// accounts simply have no generated picture.
	av, err := avatar.NewService(log, r.Users, c.Bucket)
	if err != nil {
		log.Warn("avatar generation disabled", "error", err)
	} else {
		s.Avatar = av
	}
	var avatarGen auth.AvatarGenerator
	if s.Avatar != nil {
		avatarGen = s.Avatar
	}
	s.Auth = auth.NewService(db, log, r.Users, r.RefreshTokens, avatarGen,
		cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)

	s.Enqueuer = jobs.NewEnqueuer(r.Jobs, log)

	s.Embedder = ingest.NewEmbedder(c.OpenAI, log)
	summarizer := ingest.NewSummarizer(c.OpenAI, s.Embedder, log)
	chunker := ingest.NewChunker(
		envutil.Int("CHUNK_MAX_TOKENS", 0),
		envutil.Int("CHUNK_OVERLAP_TOKENS", 0),
	)

	reranker := retrieval.NewLLMReranker(c.OpenAI, log)
	s.Retriever = retrieval.NewRetriever(r.Documents, r.Chunks, s.Embedder, c.Vectors, reranker, log)

	registry, err := connectors.NewDefaultRegistry(log)
	if err != nil {
		return s, fmt.Errorf("connector registry: %w", err)
	}
	s.Registry = registry

	s.Coordinator = ingestion.NewCoordinator(db, log, r.Connectors, r.Documents,
		registry, c.Vault, s.Guard, s.Enqueuer, s.Notify, c.Locker)
	s.Processor = ingestion.NewProcessor(db, log, r.Documents, r.Chunks,
		chunker, s.Embedder, summarizer, c.Vectors)
	s.Manager = ingestion.NewManager(log, r.Connectors, registry, c.Vault,
		s.Spaces, s.Guard, s.Enqueuer)

	s.Docs = documents.NewService(db, log, r.Documents, r.Chunks, s.Spaces,
		s.Guard, s.Enqueuer, s.Retriever, c.Bucket, c.Vectors)

	s.Runner = agent.NewRunner(db, log, r.Threads, r.Checkpoints, r.Messages,
		r.Podcasts, r.Memories, r.Spaces, s.Chat, s.Retriever, c.OpenAI,
		s.Embedder, s.Enqueuer, c.Bus)

	s.Scheduler = jobs.NewScheduler(r.Connectors, s.Enqueuer, c.Locker, log)

	return s, nil
}
