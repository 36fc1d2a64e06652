package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/surfsense/surfsense-backend/internal/connectors"
	"github.com/surfsense/surfsense-backend/internal/ingestion"
)

type ConnectorHandler struct {
	manager *ingestion.Manager
}

func NewConnectorHandler(manager *ingestion.Manager) *ConnectorHandler {
	return &ConnectorHandler{manager: manager}
}

type connectorRequest struct {
	ConnectorType            string                  `json:"connector_type"`
	Name                     string                  `json:"name"`
	Credentials              *connectors.Credentials `json:"credentials"`
	PeriodicIndexingEnabled  bool                    `json:"periodic_indexing_enabled"`
	IndexingFrequencyMinutes int                     `json:"indexing_frequency_minutes"`
}

func (h *ConnectorHandler) Create(c *gin.Context) {
	spaceID, ok := PathUUID(c, "space_id")
	if !ok {
		return
	}
	var req connectorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondValidation(c, "invalid request body")
		return
	}
	conn, err := h.manager.Create(c.Request.Context(), UserID(c), ingestion.CreateParams{
		SpaceID:                  spaceID,
		ConnectorType:            req.ConnectorType,
		Name:                     req.Name,
		Credentials:              req.Credentials,
		PeriodicIndexingEnabled:  req.PeriodicIndexingEnabled,
		IndexingFrequencyMinutes: req.IndexingFrequencyMinutes,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondCreated(c, conn)
}

func (h *ConnectorHandler) List(c *gin.Context) {
	spaceID, ok := PathUUID(c, "space_id")
	if !ok {
		return
	}
	rows, err := h.manager.ListBySpace(c.Request.Context(), UserID(c), spaceID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"connectors": rows})
}

func (h *ConnectorHandler) Get(c *gin.Context) {
	connectorID, ok := PathUUID(c, "connector_id")
	if !ok {
		return
	}
	conn, err := h.manager.Get(c.Request.Context(), UserID(c), connectorID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, conn)
}

func (h *ConnectorHandler) Update(c *gin.Context) {
	connectorID, ok := PathUUID(c, "connector_id")
	if !ok {
		return
	}
	var req map[string]interface{}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondValidation(c, "invalid request body")
		return
	}
	// JSON numbers decode as float64; the manager expects ints.
	if v, ok := req["indexing_frequency_minutes"].(float64); ok {
		req["indexing_frequency_minutes"] = int(v)
	}
	conn, err := h.manager.Update(c.Request.Context(), UserID(c), connectorID, req)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, conn)
}

func (h *ConnectorHandler) RotateCredentials(c *gin.Context) {
	connectorID, ok := PathUUID(c, "connector_id")
	if !ok {
		return
	}
	var req struct {
		Credentials *connectors.Credentials `json:"credentials"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondValidation(c, "invalid request body")
		return
	}
	conn, err := h.manager.RotateCredentials(c.Request.Context(), UserID(c), connectorID, req.Credentials)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, conn)
}

func (h *ConnectorHandler) Delete(c *gin.Context) {
	connectorID, ok := PathUUID(c, "connector_id")
	if !ok {
		return
	}
	if err := h.manager.Delete(c.Request.Context(), UserID(c), connectorID); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"success": true})
}

func (h *ConnectorHandler) Validate(c *gin.Context) {
	connectorID, ok := PathUUID(c, "connector_id")
	if !ok {
		return
	}
	if err := h.manager.Validate(c.Request.Context(), UserID(c), connectorID); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"valid": true})
}

// Run queues a manual indexing run and returns the job handle.
func (h *ConnectorHandler) Run(c *gin.Context) {
	connectorID, ok := PathUUID(c, "connector_id")
	if !ok {
		return
	}
	job, err := h.manager.TriggerRun(c.Request.Context(), UserID(c), connectorID)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}
