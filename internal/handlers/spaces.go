package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/surfsense/surfsense-backend/internal/spaces"
)

type SpaceHandler struct {
	spaces *spaces.Service
}

func NewSpaceHandler(spacesSvc *spaces.Service) *SpaceHandler {
	return &SpaceHandler{spaces: spacesSvc}
}

func (h *SpaceHandler) Create(c *gin.Context) {
	var req struct {
		Name       string `json:"name"`
		Visibility string `json:"visibility"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondValidation(c, "invalid request body")
		return
	}
	space, err := h.spaces.CreateSpace(c.Request.Context(), UserID(c), req.Name, req.Visibility)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondCreated(c, space)
}

func (h *SpaceHandler) List(c *gin.Context) {
	rows, err := h.spaces.ListForUser(c.Request.Context(), UserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"spaces": rows})
}

func (h *SpaceHandler) Get(c *gin.Context) {
	spaceID, ok := PathUUID(c, "space_id")
	if !ok {
		return
	}
	space, err := h.spaces.GetSpace(c.Request.Context(), UserID(c), spaceID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, space)
}

func (h *SpaceHandler) Update(c *gin.Context) {
	spaceID, ok := PathUUID(c, "space_id")
	if !ok {
		return
	}
	var req map[string]interface{}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondValidation(c, "invalid request body")
		return
	}
	space, err := h.spaces.UpdateSpace(c.Request.Context(), UserID(c), spaceID, req)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, space)
}

func (h *SpaceHandler) Delete(c *gin.Context) {
	spaceID, ok := PathUUID(c, "space_id")
	if !ok {
		return
	}
	if err := h.spaces.DeleteSpace(c.Request.Context(), UserID(c), spaceID); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"success": true})
}

func (h *SpaceHandler) ListMembers(c *gin.Context) {
	spaceID, ok := PathUUID(c, "space_id")
	if !ok {
		return
	}
	rows, err := h.spaces.ListMembers(c.Request.Context(), UserID(c), spaceID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"members": rows})
}

func (h *SpaceHandler) CreateInvite(c *gin.Context) {
	spaceID, ok := PathUUID(c, "space_id")
	if !ok {
		return
	}
	var req struct {
		Role      string     `json:"role"`
		ExpiresAt *time.Time `json:"expires_at"`
		MaxUses   int        `json:"max_uses"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondValidation(c, "invalid request body")
		return
	}
	invite, err := h.spaces.CreateInvite(c.Request.Context(), UserID(c), spaceID, req.Role, req.ExpiresAt, req.MaxUses)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondCreated(c, invite)
}

func (h *SpaceHandler) AcceptInvite(c *gin.Context) {
	var req struct {
		Code string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		RespondValidation(c, "code required")
		return
	}
	membership, err := h.spaces.AcceptInvite(c.Request.Context(), UserID(c), req.Code)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, membership)
}
