package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/surfsense/surfsense-backend/internal/connectors"
	connrepo "github.com/surfsense/surfsense-backend/internal/data/repos/connectors"
	docrepo "github.com/surfsense/surfsense-backend/internal/data/repos/documents"
	types "github.com/surfsense/surfsense-backend/internal/domain"
	domdocs "github.com/surfsense/surfsense-backend/internal/domain/documents"
	domjobs "github.com/surfsense/surfsense-backend/internal/domain/jobs"
	"github.com/surfsense/surfsense-backend/internal/ingest"
	"github.com/surfsense/surfsense-backend/internal/jobs"
	"github.com/surfsense/surfsense-backend/internal/notify"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/envutil"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
	"github.com/surfsense/surfsense-backend/internal/platform/redisx"
	"github.com/surfsense/surfsense-backend/internal/platform/vault"
	"github.com/surfsense/surfsense-backend/internal/quota"
)

// failureHoldRatio: when more than half the items fail, the run is failed
// and the watermark does not advance, so the window is retried whole.
const failureHoldRatio = 0.5

// Coordinator drives one connector's fetch cycle: lock, decrypt, window,
// quota, discover/normalize/upsert, enqueue per-document processing,
// advance the watermark, notify.
type Coordinator struct {
	db         *gorm.DB
	log        *logger.Logger
	connectors connrepo.ConnectorRepo
	documents  docrepo.DocumentRepo
	registry   *connectors.Registry
	vault      *vault.Vault
	quota      *quota.Guard
	enqueuer   *jobs.Enqueuer
	notifier   *notify.Service
	locker     *redisx.Locker

	safetyWindow    time.Duration
	initialBackfill time.Duration
	lockTTL         time.Duration
}

func NewCoordinator(
	db *gorm.DB,
	log *logger.Logger,
	connRepo connrepo.ConnectorRepo,
	docRepo docrepo.DocumentRepo,
	registry *connectors.Registry,
	v *vault.Vault,
	guard *quota.Guard,
	enqueuer *jobs.Enqueuer,
	notifier *notify.Service,
	locker *redisx.Locker,
) *Coordinator {
	return &Coordinator{
		db:              db,
		log:             log.With("component", "IngestionCoordinator"),
		connectors:      connRepo,
		documents:       docRepo,
		registry:        registry,
		vault:           v,
		quota:           guard,
		enqueuer:        enqueuer,
		notifier:        notifier,
		locker:          locker,
		safetyWindow:    envutil.Seconds("INGEST_SAFETY_WINDOW_SECONDS", 10*time.Minute),
		initialBackfill: envutil.Seconds("INGEST_INITIAL_BACKFILL_SECONDS", 30*24*time.Hour),
		lockTTL:         envutil.Seconds("CONNECTOR_INDEXING_LOCK_TTL_SECONDS", 15*time.Minute),
	}
}

// fetchWindow computes the [since, until) range handed to the adapter.
// A connector that has never completed a run backfills the full initial
// horizon; afterwards the watermark governs, padded by the safety window
// to tolerate clock skew and late-arriving items.
func (c *Coordinator) fetchWindow(lastIndexedAt *time.Time, now time.Time) (time.Time, time.Time) {
	since := now.Add(-c.safetyWindow)
	if lastIndexedAt == nil {
		since = now.Add(-c.initialBackfill)
	} else if lastIndexedAt.Before(since) {
		since = *lastIndexedAt
	}
	return since, now
}

// RunResult summarizes one connector run.
type RunResult struct {
	Discovered int
	Ingested   int
	Duplicates int
	Failed     int
	Watermark  time.Time
	Held       bool
}

var errLockHeld = errors.New("connector run already in progress")

// IsLockHeld reports whether the run was skipped because another worker
// holds the connector lock.
func IsLockHeld(err error) bool { return errors.Is(err, errLockHeld) }

// RunConnector executes a full fetch cycle for the connector. Safe to call
// from any worker; the distributed lock guarantees exclusivity.
func (c *Coordinator) RunConnector(ctx context.Context, connectorID uuid.UUID) (*RunResult, error) {
	lockKey := "surfsense:connector:" + connectorID.String()
	lock, ok, err := c.locker.Acquire(ctx, lockKey, c.lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errLockHeld
	}
	defer func() { _ = lock.Release(ctx) }()

	dbc := dbctx.Context{Ctx: ctx}
	rows, err := c.connectors.GetByIDs(dbc, []uuid.UUID{connectorID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("connector %s not found", connectorID)
	}
	conn := rows[0]
	log := c.log.With("connector_id", conn.ID, "connector_type", conn.ConnectorType)

	result, runErr := c.runLocked(ctx, conn, lock, log)

	status := "success"
	errMsg := ""
	if runErr != nil {
		status, errMsg = "failed", runErr.Error()
	} else if result.Held {
		status = "failed"
		errMsg = fmt.Sprintf("%d of %d items failed, watermark held", result.Failed, result.Discovered)
	}
	if err := c.connectors.MarkRunFinished(dbc, conn.ID, status, errMsg); err != nil {
		log.Warn("mark run finished failed", "error", err)
	}

	if runErr != nil {
		return nil, runErr
	}

	c.notifyRun(ctx, conn, result, status)
	return result, nil
}

func (c *Coordinator) runLocked(ctx context.Context, conn *types.Connector, lock *redisx.Lock, log *logger.Logger) (*RunResult, error) {
	// Credentials decrypt in memory for the duration of the run only.
	blob := conn.Credentials
	if vault.IsEncrypted(blob) {
		var err error
		blob, err = c.vault.Decrypt(blob)
		if err != nil {
			return nil, fmt.Errorf("decrypt credentials: %w", err)
		}
	}
	creds, err := connectors.ParseCredentials(blob)
	if err != nil {
		return nil, err
	}

	adapter, err := c.registry.Get(conn.ConnectorType)
	if err != nil {
		return nil, err
	}

	refreshed, err := connectors.EnsureFreshToken(ctx, creds)
	if err != nil {
		return nil, err
	}
	if refreshed {
		if err := c.persistCredentials(ctx, conn.ID, creds); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	since, until := c.fetchWindow(conn.LastIndexedAt, now)

	if err := c.quota.CheckEstimate(ctx, conn.UserID, 0); err != nil {
		return nil, err
	}

	iter, err := adapter.Discover(ctx, creds, since, until)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}

	result := &RunResult{Watermark: until}
	var oldestFailed time.Time
	for {
		if err := lock.Extend(ctx, c.lockTTL); err != nil {
			return nil, fmt.Errorf("connector lock lost mid-run: %w", err)
		}
		item, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("discover next: %w", err)
		}
		result.Discovered++

		if err := c.ingestItem(ctx, conn, adapter, item, result); err != nil {
			result.Failed++
			if oldestFailed.IsZero() || item.SourceTime.Before(oldestFailed) {
				oldestFailed = item.SourceTime
			}
			log.Warn("item ingest failed", "remote_id", item.RemoteID, "error", err)
		}
	}

	c.settleWatermark(ctx, conn, result, oldestFailed, until)
	return result, nil
}

// ingestItem normalizes and upserts one discovered item, charging quota and
// enqueueing processing inside one transaction.
func (c *Coordinator) ingestItem(ctx context.Context, conn *types.Connector, adapter connectors.Adapter, item *connectors.RawItem, result *RunResult) error {
	doc, err := adapter.Normalize(item)
	if err != nil {
		return err
	}
	metaJSON := datatypes.JSON([]byte("{}"))
	if len(doc.DocumentMetadata) > 0 {
		raw, err := json.Marshal(doc.DocumentMetadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		metaJSON = datatypes.JSON(raw)
	}

	row := &types.Document{
		SearchSpaceID:        conn.SearchSpaceID,
		Title:                doc.Title,
		DocumentType:         doc.DocumentType,
		SourceMarkdown:       doc.SourceMarkdown,
		ContentHash:          ingest.ContentHash(doc.SourceMarkdown),
		UniqueIdentifierHash: doc.UniqueIdentifierHash,
		DocumentMetadata:     metaJSON,
		State:                domdocs.StatePending,
		CreatedByID:          conn.UserID,
	}

	var created, changed bool
	var persisted *types.Document
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		var err error
		persisted, created, changed, err = c.documents.UpsertByIdentity(dbc, row)
		if err != nil {
			return err
		}
		if created {
			// New page: charge quota in the same transaction so a refusal
			// rolls the insert back too.
			if err := c.quota.ConsumeTx(dbc, conn.UserID, 1); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if !changed {
		result.Duplicates++
		return nil
	}
	result.Ingested++

	id := persisted.ID
	_, err = c.enqueuer.Enqueue(ctx, conn.UserID, domjobs.TypeDocumentProcess, "document", &id, map[string]any{
		"document_id": id.String(),
	})
	return err
}

// settleWatermark advances last_indexed_at per the partial-failure policy:
// full success advances to the window end; a minority of failures advances
// only to the oldest failed item's source time so retries stay bounded; a
// majority of failures holds the watermark entirely.
func (c *Coordinator) settleWatermark(ctx context.Context, conn *types.Connector, result *RunResult, oldestFailed, until time.Time) {
	dbc := dbctx.Context{Ctx: ctx}
	if result.Discovered > 0 && float64(result.Failed) > failureHoldRatio*float64(result.Discovered) {
		result.Held = true
		return
	}
	watermark := until
	if result.Failed > 0 && !oldestFailed.IsZero() && oldestFailed.Before(until) {
		watermark = oldestFailed
	}
	result.Watermark = watermark
	if err := c.connectors.AdvanceWatermark(dbc, conn.ID, watermark); err != nil {
		c.log.Warn("advance watermark failed", "connector_id", conn.ID, "error", err)
	}
}

func (c *Coordinator) persistCredentials(ctx context.Context, connectorID uuid.UUID, creds *connectors.Credentials) error {
	encoded, err := creds.Encode()
	if err != nil {
		return err
	}
	sealed, err := c.vault.Encrypt(encoded)
	if err != nil {
		return err
	}
	return c.connectors.UpdateFields(dbctx.Context{Ctx: ctx}, connectorID, map[string]interface{}{
		"credentials": sealed,
	})
}

func (c *Coordinator) notifyRun(ctx context.Context, conn *types.Connector, result *RunResult, status string) {
	spaceID := conn.SearchSpaceID
	_, err := c.notifier.Notify(ctx, conn.UserID, notify.TypeConnectorIndexed,
		fmt.Sprintf("%s indexing %s", conn.Name, status),
		fmt.Sprintf("%d new, %d duplicates, %d failed", result.Ingested, result.Duplicates, result.Failed),
		&spaceID,
		map[string]any{
			"connector_id": conn.ID.String(),
			"status":       status,
			"discovered":   result.Discovered,
			"ingested":     result.Ingested,
			"failed":       result.Failed,
		})
	if err != nil {
		c.log.Warn("run notification failed", "connector_id", conn.ID, "error", err)
	}
}
