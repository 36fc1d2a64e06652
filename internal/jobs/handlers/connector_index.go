package handlers

import (
	"fmt"

	domjobs "github.com/surfsense/surfsense-backend/internal/domain/jobs"
	"github.com/surfsense/surfsense-backend/internal/ingestion"
	"github.com/surfsense/surfsense-backend/internal/jobs/runtime"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

// ConnectorIndexHandler runs one connector fetch cycle. The coordinator owns
// the distributed lock; a run skipped because another worker holds it is a
// success, not a retry.
type ConnectorIndexHandler struct {
	coordinator *ingestion.Coordinator
	log         *logger.Logger
}

func NewConnectorIndexHandler(coordinator *ingestion.Coordinator, log *logger.Logger) *ConnectorIndexHandler {
	return &ConnectorIndexHandler{
		coordinator: coordinator,
		log:         log.With("handler", domjobs.TypeConnectorIndex),
	}
}

func (h *ConnectorIndexHandler) Type() string { return domjobs.TypeConnectorIndex }

func (h *ConnectorIndexHandler) Run(jc *runtime.Context) error {
	connectorID, ok := jc.PayloadUUID("connector_id")
	if !ok {
		jc.Fail("payload", fmt.Errorf("missing connector_id"))
		return nil
	}

	jc.Progress("indexing")
	result, err := h.coordinator.RunConnector(jc.Ctx, connectorID)
	if err != nil {
		if ingestion.IsLockHeld(err) {
			jc.Succeed("skipped", map[string]any{"skipped": "lock_held"})
			return nil
		}
		jc.Fail("index", err)
		return nil
	}

	jc.Succeed("indexed", map[string]any{
		"discovered": result.Discovered,
		"ingested":   result.Ingested,
		"duplicates": result.Duplicates,
		"failed":     result.Failed,
		"held":       result.Held,
		"watermark":  result.Watermark,
	})
	return nil
}
