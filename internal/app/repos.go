package app

import (
	"gorm.io/gorm"

	chatrepo "github.com/surfsense/surfsense-backend/internal/data/repos/chat"
	connrepo "github.com/surfsense/surfsense-backend/internal/data/repos/connectors"
	docrepo "github.com/surfsense/surfsense-backend/internal/data/repos/documents"
	jobrepo "github.com/surfsense/surfsense-backend/internal/data/repos/jobs"
	memrepo "github.com/surfsense/surfsense-backend/internal/data/repos/memory"
	notifyrepo "github.com/surfsense/surfsense-backend/internal/data/repos/notify"
	spacerepo "github.com/surfsense/surfsense-backend/internal/data/repos/spaces"
	userrepo "github.com/surfsense/surfsense-backend/internal/data/repos/user"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

type Repos struct {
	Users         userrepo.UserRepo
	RefreshTokens userrepo.RefreshTokenRepo

	Spaces      spacerepo.SearchSpaceRepo
	Memberships spacerepo.MembershipRepo
	Invites     spacerepo.InviteCodeRepo

	Documents  docrepo.DocumentRepo
	Chunks     docrepo.ChunkRepo
	Connectors connrepo.ConnectorRepo

	Threads     chatrepo.ThreadRepo
	Messages    chatrepo.MessageRepo
	Comments    chatrepo.CommentRepo
	Mentions    chatrepo.MentionRepo
	Snapshots   chatrepo.SnapshotRepo
	Podcasts    chatrepo.PodcastRepo
	Checkpoints chatrepo.CheckpointRepo

	Notifications notifyrepo.NotificationRepo
	Memories      memrepo.MemoryRepo
	Jobs          jobrepo.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Users:         userrepo.NewUserRepo(db, log),
		RefreshTokens: userrepo.NewRefreshTokenRepo(db, log),

		Spaces:      spacerepo.NewSearchSpaceRepo(db, log),
		Memberships: spacerepo.NewMembershipRepo(db, log),
		Invites:     spacerepo.NewInviteCodeRepo(db, log),

		Documents:  docrepo.NewDocumentRepo(db, log),
		Chunks:     docrepo.NewChunkRepo(db, log),
		Connectors: connrepo.NewConnectorRepo(db, log),

		Threads:     chatrepo.NewThreadRepo(db, log),
		Messages:    chatrepo.NewMessageRepo(db, log),
		Comments:    chatrepo.NewCommentRepo(db, log),
		Mentions:    chatrepo.NewMentionRepo(db, log),
		Snapshots:   chatrepo.NewSnapshotRepo(db, log),
		Podcasts:    chatrepo.NewPodcastRepo(db, log),
		Checkpoints: chatrepo.NewCheckpointRepo(db, log),

		Notifications: notifyrepo.NewNotificationRepo(db, log),
		Memories:      memrepo.NewMemoryRepo(db, log),
		Jobs:          jobrepo.NewJobRunRepo(db, log),
	}
}
