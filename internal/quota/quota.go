package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	userrepo "github.com/surfsense/surfsense-backend/internal/data/repos/user"
	types "github.com/surfsense/surfsense-backend/internal/domain"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

// ErrQuotaExceeded is returned when an ingest would push pages_used past
// pages_limit. Callers map it to a user-visible refusal, not a retry.
var ErrQuotaExceeded = errors.New("page quota exceeded")

// Incentive task grants. Idempotent per (user, task).
const (
	TaskConnectFirstSource = "connect_first_source"
	TaskInviteAccepted     = "invite_accepted"
	TaskFirstPodcast       = "first_podcast"
)

var incentivePages = map[string]int64{
	TaskConnectFirstSource: 200,
	TaskInviteAccepted:     100,
	TaskFirstPodcast:       50,
}

// Guard centralizes page-quota accounting. All mutations lock the user row
// so concurrent ingest runs cannot oversubscribe the limit.
type Guard struct {
	db    *gorm.DB
	users userrepo.UserRepo
	log   *logger.Logger
}

func NewGuard(db *gorm.DB, users userrepo.UserRepo, log *logger.Logger) *Guard {
	return &Guard{db: db, users: users, log: log.With("service", "QuotaGuard")}
}

// Remaining reports pages left; zero means the next ingest is refused.
func (g *Guard) Remaining(ctx context.Context, userID uuid.UUID) (int64, error) {
	rows, err := g.users.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{userID})
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("user %s not found", userID)
	}
	left := rows[0].PagesLimit - rows[0].PagesUsed
	if left < 0 {
		left = 0
	}
	return left, nil
}

// CheckEstimate refuses early when a planned ingest of n pages cannot fit.
// A zero estimate only checks that the user is not already at the limit.
func (g *Guard) CheckEstimate(ctx context.Context, userID uuid.UUID, estimated int64) error {
	rows, err := g.users.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{userID})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("user %s not found", userID)
	}
	u := rows[0]
	if estimated <= 0 {
		if u.PagesUsed >= u.PagesLimit {
			return ErrQuotaExceeded
		}
		return nil
	}
	if u.PagesUsed+estimated > u.PagesLimit {
		return ErrQuotaExceeded
	}
	return nil
}

// Consume charges n pages inside its own transaction, failing with
// ErrQuotaExceeded when the balance cannot cover them. At exactly
// pages_limit - 1 one more single page fits.
func (g *Guard) Consume(ctx context.Context, userID uuid.UUID, n int64) error {
	if n <= 0 {
		return nil
	}
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return g.ConsumeTx(dbctx.Context{Ctx: ctx, Tx: tx}, userID, n)
	})
}

// ConsumeTx charges n pages inside the caller's transaction, so the charge
// commits or rolls back with the document insert it pays for.
func (g *Guard) ConsumeTx(dbc dbctx.Context, userID uuid.UUID, n int64) error {
	if n <= 0 {
		return nil
	}
	if dbc.Tx == nil {
		return fmt.Errorf("ConsumeTx requires dbc.Tx")
	}
	u, err := g.users.LockByID(dbc, userID)
	if err != nil {
		return err
	}
	if u.PagesUsed+n > u.PagesLimit {
		return ErrQuotaExceeded
	}
	return g.users.UpdateFields(dbc, userID, map[string]interface{}{
		"pages_used": gorm.Expr("pages_used + ?", n),
	})
}

// GrantIncentive applies a one-shot pages_limit bump. Re-claims of the same
// task are a no-op thanks to the (user_id, task_type) unique index.
func (g *Guard) GrantIncentive(ctx context.Context, userID uuid.UUID, taskType string) (granted bool, err error) {
	pages, ok := incentivePages[taskType]
	if !ok {
		return false, fmt.Errorf("unknown incentive task %q", taskType)
	}
	err = g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&types.IncentiveGrant{
			UserID:   userID,
			TaskType: taskType,
			Pages:    pages,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		granted = true
		return tx.Model(&types.User{}).
			Where("id = ?", userID).
			Update("pages_limit", gorm.Expr("pages_limit + ?", pages)).Error
	})
	if err != nil {
		return false, err
	}
	if granted {
		g.log.Info("incentive granted", "user_id", userID, "task", taskType, "pages", pages)
	}
	return granted, nil
}
