package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/surfsense/surfsense-backend/internal/connectors"
	connrepo "github.com/surfsense/surfsense-backend/internal/data/repos/connectors"
	types "github.com/surfsense/surfsense-backend/internal/domain"
	domjobs "github.com/surfsense/surfsense-backend/internal/domain/jobs"
	domspaces "github.com/surfsense/surfsense-backend/internal/domain/spaces"
	"github.com/surfsense/surfsense-backend/internal/jobs"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
	"github.com/surfsense/surfsense-backend/internal/platform/apierr"
	"github.com/surfsense/surfsense-backend/internal/platform/vault"
	"github.com/surfsense/surfsense-backend/internal/quota"
	"github.com/surfsense/surfsense-backend/internal/spaces"
)

const minIndexingFrequencyMinutes = 5

// Manager is the connector management surface: CRUD, credential rotation,
// validation, and manual run dispatch. Fetch cycles themselves run through
// the Coordinator on workers.
type Manager struct {
	log        *logger.Logger
	connectors connrepo.ConnectorRepo
	registry   *connectors.Registry
	vault      *vault.Vault
	spaces     *spaces.Service
	guard      *quota.Guard
	enqueuer   *jobs.Enqueuer
}

func NewManager(
	log *logger.Logger,
	connRepo connrepo.ConnectorRepo,
	registry *connectors.Registry,
	v *vault.Vault,
	spacesSvc *spaces.Service,
	guard *quota.Guard,
	enqueuer *jobs.Enqueuer,
) *Manager {
	return &Manager{
		log:        log.With("service", "ConnectorManager"),
		connectors: connRepo,
		registry:   registry,
		vault:      v,
		spaces:     spacesSvc,
		guard:      guard,
		enqueuer:   enqueuer,
	}
}

// CreateParams carries the connector creation request. Credentials arrive
// in plaintext and are encrypted before they touch the database.
type CreateParams struct {
	SpaceID                  uuid.UUID
	ConnectorType            string
	Name                     string
	Credentials              *connectors.Credentials
	PeriodicIndexingEnabled  bool
	IndexingFrequencyMinutes int
}

func (m *Manager) Create(ctx context.Context, userID uuid.UUID, p CreateParams) (*types.Connector, error) {
	if err := m.spaces.Require(ctx, userID, p.SpaceID, domspaces.PermConnectorsManage); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, apierr.Validation(fmt.Errorf("name required"))
	}
	adapter, err := m.registry.Get(p.ConnectorType)
	if err != nil {
		return nil, apierr.Validation(err)
	}
	if p.Credentials == nil {
		return nil, apierr.Validation(fmt.Errorf("credentials required"))
	}
	if err := adapter.Validate(ctx, p.Credentials); err != nil {
		return nil, apierr.Validation(fmt.Errorf("credential check failed: %w", err))
	}

	blob, err := p.Credentials.Encode()
	if err != nil {
		return nil, err
	}
	encrypted, err := m.vault.Encrypt(blob)
	if err != nil {
		return nil, err
	}

	freq := p.IndexingFrequencyMinutes
	if freq < minIndexingFrequencyMinutes {
		freq = minIndexingFrequencyMinutes
	}
	row := &types.Connector{
		SearchSpaceID:            p.SpaceID,
		UserID:                   userID,
		ConnectorType:            p.ConnectorType,
		Name:                     strings.TrimSpace(p.Name),
		Credentials:              encrypted,
		PeriodicIndexingEnabled:  p.PeriodicIndexingEnabled,
		IndexingFrequencyMinutes: freq,
		IsActive:                 true,
	}
	if p.PeriodicIndexingEnabled {
		now := time.Now().UTC()
		row.NextScheduledAt = &now
	}
	rows, err := m.connectors.Create(dbctx.Context{Ctx: ctx}, []*types.Connector{row})
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

func (m *Manager) Get(ctx context.Context, userID, connectorID uuid.UUID) (*types.Connector, error) {
	conn, err := m.load(ctx, connectorID)
	if err != nil {
		return nil, err
	}
	if err := m.spaces.Require(ctx, userID, conn.SearchSpaceID, domspaces.PermConnectorsManage); err != nil {
		return nil, err
	}
	return conn, nil
}

func (m *Manager) ListBySpace(ctx context.Context, userID, spaceID uuid.UUID) ([]*types.Connector, error) {
	if err := m.spaces.Require(ctx, userID, spaceID, domspaces.PermConnectorsManage); err != nil {
		return nil, err
	}
	return m.connectors.ListBySpace(dbctx.Context{Ctx: ctx}, spaceID)
}

// Update changes scheduling and activation settings. Credential changes go
// through RotateCredentials so they are always validated and encrypted.
func (m *Manager) Update(ctx context.Context, userID, connectorID uuid.UUID, updates map[string]interface{}) (*types.Connector, error) {
	conn, err := m.Get(ctx, userID, connectorID)
	if err != nil {
		return nil, err
	}

	allowed := map[string]bool{
		"name":                       true,
		"periodic_indexing_enabled":  true,
		"indexing_frequency_minutes": true,
		"is_active":                  true,
	}
	filtered := map[string]interface{}{}
	for k, v := range updates {
		if allowed[k] {
			filtered[k] = v
		}
	}
	if len(filtered) == 0 {
		return conn, nil
	}
	if freq, ok := filtered["indexing_frequency_minutes"].(int); ok && freq < minIndexingFrequencyMinutes {
		filtered["indexing_frequency_minutes"] = minIndexingFrequencyMinutes
	}
	// Enabling periodic indexing arms the schedule immediately.
	if enabled, ok := filtered["periodic_indexing_enabled"].(bool); ok && enabled && conn.NextScheduledAt == nil {
		filtered["next_scheduled_at"] = time.Now().UTC()
	}
	if err := m.connectors.UpdateFields(dbctx.Context{Ctx: ctx}, connectorID, filtered); err != nil {
		return nil, err
	}
	return m.load(ctx, connectorID)
}

func (m *Manager) RotateCredentials(ctx context.Context, userID, connectorID uuid.UUID, creds *connectors.Credentials) (*types.Connector, error) {
	conn, err := m.Get(ctx, userID, connectorID)
	if err != nil {
		return nil, err
	}
	adapter, err := m.registry.Get(conn.ConnectorType)
	if err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, apierr.Validation(fmt.Errorf("credentials required"))
	}
	if err := adapter.Validate(ctx, creds); err != nil {
		return nil, apierr.Validation(fmt.Errorf("credential check failed: %w", err))
	}
	blob, err := creds.Encode()
	if err != nil {
		return nil, err
	}
	encrypted, err := m.vault.Encrypt(blob)
	if err != nil {
		return nil, err
	}
	if err := m.connectors.UpdateFields(dbctx.Context{Ctx: ctx}, connectorID, map[string]interface{}{
		"credentials": encrypted,
	}); err != nil {
		return nil, err
	}
	return m.load(ctx, connectorID)
}

func (m *Manager) Delete(ctx context.Context, userID, connectorID uuid.UUID) error {
	if _, err := m.Get(ctx, userID, connectorID); err != nil {
		return err
	}
	return m.connectors.Delete(dbctx.Context{Ctx: ctx}, connectorID)
}

// Validate re-checks the stored credentials against the source.
func (m *Manager) Validate(ctx context.Context, userID, connectorID uuid.UUID) error {
	conn, err := m.Get(ctx, userID, connectorID)
	if err != nil {
		return err
	}
	adapter, err := m.registry.Get(conn.ConnectorType)
	if err != nil {
		return err
	}
	blob, err := m.vault.Decrypt(conn.Credentials)
	if err != nil {
		return err
	}
	creds, err := connectors.ParseCredentials(blob)
	if err != nil {
		return err
	}
	if err := adapter.Validate(ctx, creds); err != nil {
		return apierr.Validation(fmt.Errorf("credential check failed: %w", err))
	}
	return nil
}

// TriggerRun queues a manual indexing run. The run bypasses the schedule
// but shares the distributed lock, so it cannot overlap a periodic run.
func (m *Manager) TriggerRun(ctx context.Context, userID, connectorID uuid.UUID) (*types.JobRun, error) {
	conn, err := m.Get(ctx, userID, connectorID)
	if err != nil {
		return nil, err
	}
	if !conn.IsActive {
		return nil, apierr.Validation(fmt.Errorf("connector is disabled"))
	}
	if err := m.guard.CheckEstimate(ctx, userID, 1); err != nil {
		return nil, err
	}
	id := conn.ID
	return m.enqueuer.Enqueue(ctx, userID, domjobs.TypeConnectorIndex, "connector", &id, map[string]any{
		"connector_id": id.String(),
	})
}

func (m *Manager) load(ctx context.Context, connectorID uuid.UUID) (*types.Connector, error) {
	rows, err := m.connectors.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{connectorID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apierr.NotFound(fmt.Errorf("connector %s not found", connectorID))
	}
	return rows[0], nil
}
