package spaces

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	spacerepo "github.com/surfsense/surfsense-backend/internal/data/repos/spaces"
	types "github.com/surfsense/surfsense-backend/internal/domain"
	domspaces "github.com/surfsense/surfsense-backend/internal/domain/spaces"
	"github.com/surfsense/surfsense-backend/internal/notify"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
	"github.com/surfsense/surfsense-backend/internal/pkg/randtoken"
	"github.com/surfsense/surfsense-backend/internal/platform/apierr"
	"github.com/surfsense/surfsense-backend/internal/quota"
)

const inviteCodeBytes = 16

// Service owns search-space lifecycle, memberships, and invite codes. The
// permission catalog decides what a role may do; the space owner bypasses it.
type Service struct {
	db          *gorm.DB
	log         *logger.Logger
	spaces      spacerepo.SearchSpaceRepo
	memberships spacerepo.MembershipRepo
	invites     spacerepo.InviteCodeRepo
	guard       *quota.Guard
	notifier    *notify.Service
}

func NewService(
	db *gorm.DB,
	log *logger.Logger,
	spaces spacerepo.SearchSpaceRepo,
	memberships spacerepo.MembershipRepo,
	invites spacerepo.InviteCodeRepo,
	guard *quota.Guard,
	notifier *notify.Service,
) *Service {
	return &Service{
		db:          db,
		log:         log.With("service", "SpaceService"),
		spaces:      spaces,
		memberships: memberships,
		invites:     invites,
		guard:       guard,
		notifier:    notifier,
	}
}

// CreateSpace inserts the space plus the owner membership in one
// transaction.
func (s *Service) CreateSpace(ctx context.Context, ownerID uuid.UUID, name, visibility string) (*types.SearchSpace, error) {
	if name == "" {
		return nil, apierr.Validation(fmt.Errorf("name required"))
	}
	if visibility == "" {
		visibility = domspaces.VisibilityPrivate
	}
	if visibility != domspaces.VisibilityPrivate && visibility != domspaces.VisibilityPublic {
		return nil, apierr.Validation(fmt.Errorf("invalid visibility %q", visibility))
	}

	space := &types.SearchSpace{Name: name, OwnerID: ownerID, Visibility: visibility}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := s.spaces.Create(dbc, []*types.SearchSpace{space}); err != nil {
			return err
		}
		_, err := s.memberships.Create(dbc, []*types.Membership{{
			UserID:        ownerID,
			SearchSpaceID: space.ID,
			Role:          "owner",
			IsOwner:       true,
		}})
		return err
	})
	if err != nil {
		return nil, err
	}
	return space, nil
}

func (s *Service) GetSpace(ctx context.Context, userID, spaceID uuid.UUID) (*types.SearchSpace, error) {
	space, err := s.loadSpace(ctx, spaceID)
	if err != nil {
		return nil, err
	}
	if err := s.Require(ctx, userID, spaceID, domspaces.PermDocumentsRead); err != nil {
		return nil, err
	}
	return space, nil
}

func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]*types.SearchSpace, error) {
	return s.spaces.ListForUser(dbctx.Context{Ctx: ctx}, userID)
}

func (s *Service) UpdateSpace(ctx context.Context, userID, spaceID uuid.UUID, updates map[string]interface{}) (*types.SearchSpace, error) {
	if err := s.Require(ctx, userID, spaceID, domspaces.PermSpaceManage); err != nil {
		return nil, err
	}
	allowed := map[string]bool{
		"name": true, "visibility": true, "summary_model": true,
		"answer_model": true, "qna_instructions": true, "citations_enabled": true,
	}
	filtered := map[string]interface{}{}
	for k, v := range updates {
		if allowed[k] {
			filtered[k] = v
		}
	}
	if len(filtered) == 0 {
		return nil, apierr.Validation(fmt.Errorf("no updatable fields"))
	}
	dbc := dbctx.Context{Ctx: ctx}
	if err := s.spaces.UpdateFields(dbc, spaceID, filtered); err != nil {
		return nil, err
	}
	return s.loadSpace(ctx, spaceID)
}

// DeleteSpace is owner-only; role permissions do not cover it.
func (s *Service) DeleteSpace(ctx context.Context, userID, spaceID uuid.UUID) error {
	space, err := s.loadSpace(ctx, spaceID)
	if err != nil {
		return err
	}
	if space.OwnerID != userID {
		return apierr.PermissionDenied(fmt.Errorf("only the owner can delete a space"))
	}
	return s.spaces.Delete(dbctx.Context{Ctx: ctx}, spaceID)
}

func (s *Service) ListMembers(ctx context.Context, userID, spaceID uuid.UUID) ([]*types.Membership, error) {
	if err := s.Require(ctx, userID, spaceID, domspaces.PermDocumentsRead); err != nil {
		return nil, err
	}
	return s.memberships.ListBySpace(dbctx.Context{Ctx: ctx}, spaceID)
}

// Can reports whether the user may perform perm in the space. The space
// owner bypasses the role catalog.
func (s *Service) Can(ctx context.Context, userID, spaceID uuid.UUID, perm string) (bool, error) {
	space, err := s.loadSpace(ctx, spaceID)
	if err != nil {
		return false, err
	}
	if space.OwnerID == userID {
		return true, nil
	}
	m, err := s.memberships.GetForUserSpace(dbctx.Context{Ctx: ctx}, userID, spaceID)
	if err != nil {
		return false, err
	}
	if m == nil {
		return false, nil
	}
	if m.IsOwner {
		return true, nil
	}
	return domspaces.RoleHasPermission(m.Role, perm), nil
}

// Require is Can with a permission-denied error on refusal.
func (s *Service) Require(ctx context.Context, userID, spaceID uuid.UUID, perm string) error {
	ok, err := s.Can(ctx, userID, spaceID, perm)
	if err != nil {
		return err
	}
	if !ok {
		return apierr.PermissionDenied(fmt.Errorf("missing permission %s", perm))
	}
	return nil
}

// CreateInvite mints a code granting role on acceptance.
func (s *Service) CreateInvite(ctx context.Context, userID, spaceID uuid.UUID, role string, expiresAt *time.Time, maxUses int) (*types.InviteCode, error) {
	if err := s.Require(ctx, userID, spaceID, domspaces.PermInvitesManage); err != nil {
		return nil, err
	}
	if !domspaces.KnownRole(role) || role == "owner" {
		return nil, apierr.Validation(fmt.Errorf("invalid invite role %q", role))
	}
	code, err := randtoken.New(inviteCodeBytes)
	if err != nil {
		return nil, err
	}
	invite := &types.InviteCode{
		SearchSpaceID: spaceID,
		Code:          code,
		Role:          role,
		ExpiresAt:     expiresAt,
		MaxUses:       maxUses,
	}
	if _, err := s.invites.Create(dbctx.Context{Ctx: ctx}, []*types.InviteCode{invite}); err != nil {
		return nil, err
	}
	return invite, nil
}

// AcceptInvite consumes one use and grants the membership. Accepting twice
// is a no-op for the membership but still burns a use only once.
func (s *Service) AcceptInvite(ctx context.Context, userID uuid.UUID, code string) (*types.Membership, error) {
	invite, err := s.invites.GetByCode(dbctx.Context{Ctx: ctx}, code)
	if err != nil {
		return nil, err
	}
	if invite == nil {
		return nil, apierr.NotFound(fmt.Errorf("invite not found"))
	}

	var membership *types.Membership
	joined := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		existing, err := s.memberships.GetForUserSpace(dbc, userID, invite.SearchSpaceID)
		if err != nil {
			return err
		}
		if existing != nil {
			membership = existing
			return nil
		}
		ok, err := s.invites.ConsumeUse(dbc, invite.ID, time.Now().UTC())
		if err != nil {
			return err
		}
		if !ok {
			return apierr.Validation(fmt.Errorf("invite expired or exhausted"))
		}
		rows, err := s.memberships.Create(dbc, []*types.Membership{{
			UserID:        userID,
			SearchSpaceID: invite.SearchSpaceID,
			Role:          invite.Role,
		}})
		if err != nil {
			return err
		}
		membership = rows[0]
		joined = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if joined {
		s.rewardInviter(ctx, invite.SearchSpaceID, userID)
	}
	return membership, nil
}

func (s *Service) rewardInviter(ctx context.Context, spaceID, joinedUserID uuid.UUID) {
	space, err := s.loadSpace(ctx, spaceID)
	if err != nil {
		return
	}
	if granted, err := s.guard.GrantIncentive(ctx, space.OwnerID, quota.TaskInviteAccepted); err != nil {
		s.log.Warn("invite incentive grant failed", "user_id", space.OwnerID, "error", err)
	} else if granted {
		s.log.Info("invite incentive granted", "user_id", space.OwnerID)
	}
	if _, err := s.notifier.Notify(ctx, space.OwnerID, notify.TypeSpaceInvite,
		"Invite accepted", fmt.Sprintf("A new member joined %s", space.Name), &spaceID,
		map[string]any{"joined_user_id": joinedUserID.String()}); err != nil {
		s.log.Warn("invite notification failed", "space_id", spaceID, "error", err)
	}
}

func (s *Service) loadSpace(ctx context.Context, spaceID uuid.UUID) (*types.SearchSpace, error) {
	rows, err := s.spaces.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{spaceID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apierr.NotFound(fmt.Errorf("search space %s not found", spaceID))
	}
	return rows[0], nil
}
