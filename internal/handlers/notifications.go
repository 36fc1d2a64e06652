package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/surfsense/surfsense-backend/internal/notify"
)

type NotificationHandler struct {
	notify *notify.Service
}

func NewNotificationHandler(notifySvc *notify.Service) *NotificationHandler {
	return &NotificationHandler{notify: notifySvc}
}

func (h *NotificationHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	unreadOnly := c.Query("unread") == "true"

	rows, err := h.notify.List(c.Request.Context(), UserID(c), unreadOnly, limit, offset)
	if err != nil {
		RespondError(c, err)
		return
	}
	unread, err := h.notify.CountUnread(c.Request.Context(), UserID(c))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"notifications": rows, "unread": unread})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	var req struct {
		IDs []uuid.UUID `json:"ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
		RespondValidation(c, "ids required")
		return
	}
	if err := h.notify.MarkRead(c.Request.Context(), UserID(c), req.IDs); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"success": true})
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	if err := h.notify.MarkAllRead(c.Request.Context(), UserID(c)); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"success": true})
}

func (h *NotificationHandler) Archive(c *gin.Context) {
	var req struct {
		IDs []uuid.UUID `json:"ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
		RespondValidation(c, "ids required")
		return
	}
	if err := h.notify.Archive(c.Request.Context(), UserID(c), req.IDs); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"success": true})
}
