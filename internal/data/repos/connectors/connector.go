package connectors

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/surfsense/surfsense-backend/internal/domain"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

type ConnectorRepo interface {
	Create(dbc dbctx.Context, rows []*types.Connector) ([]*types.Connector, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Connector, error)
	ListBySpace(dbc dbctx.Context, spaceID uuid.UUID) ([]*types.Connector, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uuid.UUID) error

	// DueForIndexing returns active periodic connectors whose next_scheduled_at
	// has passed (or was never set).
	DueForIndexing(dbc dbctx.Context, now time.Time, limit int) ([]*types.Connector, error)
	// MarkRunStarted stamps the run status and advances next_scheduled_at so a
	// connector is not picked up twice while a run is in flight.
	MarkRunStarted(dbc dbctx.Context, id uuid.UUID, now time.Time) error
	// MarkRunFinished records the outcome; advancing the watermark is the
	// caller's decision and goes through AdvanceWatermark.
	MarkRunFinished(dbc dbctx.Context, id uuid.UUID, status, runError string) error
	AdvanceWatermark(dbc dbctx.Context, id uuid.UUID, watermark time.Time) error
}

type connectorRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConnectorRepo(db *gorm.DB, log *logger.Logger) ConnectorRepo {
	return &connectorRepo{db: db, log: log.With("repo", "ConnectorRepo")}
}

func (r *connectorRepo) Create(dbc dbctx.Context, rows []*types.Connector) ([]*types.Connector, error) {
	if len(rows) == 0 {
		return []*types.Connector{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *connectorRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Connector, error) {
	if len(ids) == 0 {
		return []*types.Connector{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Connector
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Connector{}).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *connectorRepo) ListBySpace(dbc dbctx.Context, spaceID uuid.UUID) ([]*types.Connector, error) {
	if spaceID == uuid.Nil {
		return nil, fmt.Errorf("missing search_space_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Connector
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Connector{}).
		Where("search_space_id = ?", spaceID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *connectorRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = time.Now().UTC()
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&types.Connector{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *connectorRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.Connector{}).Error
}

func (r *connectorRepo) DueForIndexing(dbc dbctx.Context, now time.Time, limit int) ([]*types.Connector, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if limit <= 0 {
		limit = 50
	}
	var out []*types.Connector
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Connector{}).
		Where("is_active = TRUE AND periodic_indexing_enabled = TRUE").
		Where("next_scheduled_at IS NULL OR next_scheduled_at <= ?", now).
		Order("next_scheduled_at ASC NULLS FIRST").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *connectorRepo) MarkRunStarted(dbc dbctx.Context, id uuid.UUID, now time.Time) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&types.Connector{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_run_status": "running",
			"last_run_error":  "",
			// Advance from the previous slot, not the dispatch time, so the
			// schedule stays phase-aligned regardless of tick latency.
			"next_scheduled_at": gorm.Expr("COALESCE(next_scheduled_at, ?) + make_interval(mins => indexing_frequency_minutes)", now),
			"updated_at":        now,
		}).Error
}

func (r *connectorRepo) MarkRunFinished(dbc dbctx.Context, id uuid.UUID, status, runError string) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&types.Connector{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_run_status": status,
			"last_run_error":  runError,
			"updated_at":      time.Now().UTC(),
		}).Error
}

func (r *connectorRepo) AdvanceWatermark(dbc dbctx.Context, id uuid.UUID, watermark time.Time) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	// Watermark only moves forward.
	return txx.WithContext(dbc.Ctx).
		Model(&types.Connector{}).
		Where("id = ? AND (last_indexed_at IS NULL OR last_indexed_at < ?)", id, watermark).
		Updates(map[string]interface{}{
			"last_indexed_at": watermark,
			"updated_at":      time.Now().UTC(),
		}).Error
}
