package domain

import (
	"github.com/surfsense/surfsense-backend/internal/domain/chat"
	"github.com/surfsense/surfsense-backend/internal/domain/connectors"
	"github.com/surfsense/surfsense-backend/internal/domain/documents"
	"github.com/surfsense/surfsense-backend/internal/domain/jobs"
	"github.com/surfsense/surfsense-backend/internal/domain/memory"
	"github.com/surfsense/surfsense-backend/internal/domain/notify"
	"github.com/surfsense/surfsense-backend/internal/domain/spaces"
	"github.com/surfsense/surfsense-backend/internal/domain/user"
)

type (
	User           = user.User
	RefreshToken   = user.RefreshToken
	IncentiveGrant = user.IncentiveGrant

	SearchSpace = spaces.SearchSpace
	Membership  = spaces.Membership
	InviteCode  = spaces.InviteCode

	Document = documents.Document
	Chunk    = documents.Chunk

	Connector = connectors.Connector

	ChatThread         = chat.ChatThread
	ChatMessage        = chat.ChatMessage
	ContentPart        = chat.ContentPart
	Comment            = chat.Comment
	Mention            = chat.Mention
	PublicChatSnapshot = chat.PublicChatSnapshot
	Podcast            = chat.Podcast
	AgentCheckpoint    = chat.AgentCheckpoint

	Notification = notify.Notification

	UserMemory = memory.UserMemory

	JobRun = jobs.JobRun
)
