package handlers

import (
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/surfsense/surfsense-backend/internal/avatar"
	userrepo "github.com/surfsense/surfsense-backend/internal/data/repos/user"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/platform/apierr"
	"github.com/surfsense/surfsense-backend/internal/quota"
)

const maxAvatarUploadBytes = 5 << 20

type UserHandler struct {
	users   userrepo.UserRepo
	avatars *avatar.Service
	guard   *quota.Guard
}

func NewUserHandler(users userrepo.UserRepo, avatars *avatar.Service, guard *quota.Guard) *UserHandler {
	return &UserHandler{users: users, avatars: avatars, guard: guard}
}

func (h *UserHandler) GetMe(c *gin.Context) {
	userID := UserID(c)
	rows, err := h.users.GetByIDs(dbctx.Context{Ctx: c.Request.Context()}, []uuid.UUID{userID})
	if err != nil {
		RespondError(c, err)
		return
	}
	if len(rows) == 0 {
		RespondError(c, apierr.NotFound(fmt.Errorf("user not found")))
		return
	}
	remaining, err := h.guard.Remaining(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"user": rows[0], "pages_remaining": remaining})
}

func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req struct {
		DisplayName *string `json:"display_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondValidation(c, "invalid request body")
		return
	}
	updates := map[string]interface{}{}
	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if name == "" {
			RespondValidation(c, "display_name cannot be empty")
			return
		}
		updates["display_name"] = name
	}
	if len(updates) == 0 {
		RespondValidation(c, "nothing to update")
		return
	}
	if err := h.users.UpdateFields(dbctx.Context{Ctx: c.Request.Context()}, UserID(c), updates); err != nil {
		RespondError(c, err)
		return
	}
	h.GetMe(c)
}

// UploadAvatar replaces the user's avatar with an uploaded image.
func (h *UserHandler) UploadAvatar(c *gin.Context) {
	if h.avatars == nil {
		RespondError(c, apierr.Validation(fmt.Errorf("avatar storage not configured")))
		return
	}
	file, _, err := c.Request.FormFile("avatar")
	if err != nil {
		RespondValidation(c, "avatar file required")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, maxAvatarUploadBytes+1))
	if err != nil {
		RespondError(c, err)
		return
	}
	if len(raw) > maxAvatarUploadBytes {
		RespondValidation(c, "avatar exceeds 5 MB limit")
		return
	}
	url, err := h.avatars.StoreUploaded(c.Request.Context(), UserID(c), raw)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"avatar_url": url})
}
