package quota

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/surfsense/surfsense-backend/internal/data/repos/testutil"
	userrepo "github.com/surfsense/surfsense-backend/internal/data/repos/user"
	types "github.com/surfsense/surfsense-backend/internal/domain"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
)

// newGuard builds a guard bound to the test transaction; inner Transaction
// calls become savepoints, so every test rolls back cleanly.
func newGuard(t *testing.T, tx *gorm.DB) *Guard {
	t.Helper()
	return NewGuard(tx, userrepo.NewUserRepo(tx, testutil.Logger(t)), testutil.Logger(t))
}

func TestConsumeAtBoundary(t *testing.T) {
	ctx := context.Background()
	tx := testutil.Tx(t, testutil.DB(t))
	g := newGuard(t, tx)
	u := testutil.SeedUser(t, ctx, tx, "quota-boundary@test.local")

	if err := tx.Model(&types.User{}).Where("id = ?", u.ID).
		Updates(map[string]interface{}{"pages_limit": 5, "pages_used": 4}).Error; err != nil {
		t.Fatalf("seed quota: %v", err)
	}

	// One page left admits exactly one more.
	if err := g.Consume(ctx, u.ID, 1); err != nil {
		t.Fatalf("consume last page: %v", err)
	}
	if err := g.Consume(ctx, u.ID, 1); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded at limit, got %v", err)
	}
	left, err := g.Remaining(ctx, u.ID)
	if err != nil || left != 0 {
		t.Fatalf("remaining = %d, err %v", left, err)
	}
}

func TestConsumeTxRollsBackWithCaller(t *testing.T) {
	ctx := context.Background()
	tx := testutil.Tx(t, testutil.DB(t))
	g := newGuard(t, tx)
	u := testutil.SeedUser(t, ctx, tx, "quota-rollback@test.local")

	err := tx.Transaction(func(inner *gorm.DB) error {
		if err := g.ConsumeTx(dbctx.Context{Ctx: ctx, Tx: inner}, u.ID, 3); err != nil {
			return err
		}
		return errors.New("force rollback")
	})
	if err == nil {
		t.Fatal("expected forced rollback error")
	}
	var after types.User
	if err := tx.Where("id = ?", u.ID).Take(&after).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if after.PagesUsed != 0 {
		t.Fatalf("charge survived rollback: pages_used=%d", after.PagesUsed)
	}
}

func TestCheckEstimate(t *testing.T) {
	ctx := context.Background()
	tx := testutil.Tx(t, testutil.DB(t))
	g := newGuard(t, tx)
	u := testutil.SeedUser(t, ctx, tx, "quota-estimate@test.local")

	if err := tx.Model(&types.User{}).Where("id = ?", u.ID).
		Updates(map[string]interface{}{"pages_limit": 10, "pages_used": 8}).Error; err != nil {
		t.Fatalf("seed quota: %v", err)
	}
	if err := g.CheckEstimate(ctx, u.ID, 2); err != nil {
		t.Fatalf("estimate that fits rejected: %v", err)
	}
	if err := g.CheckEstimate(ctx, u.ID, 3); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected refusal, got %v", err)
	}
}

func TestGrantIncentiveIdempotent(t *testing.T) {
	ctx := context.Background()
	tx := testutil.Tx(t, testutil.DB(t))
	g := newGuard(t, tx)
	u := testutil.SeedUser(t, ctx, tx, "quota-incentive@test.local")

	var before types.User
	if err := tx.Where("id = ?", u.ID).Take(&before).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}

	granted, err := g.GrantIncentive(ctx, u.ID, TaskConnectFirstSource)
	if err != nil || !granted {
		t.Fatalf("first grant: granted=%v err=%v", granted, err)
	}
	granted, err = g.GrantIncentive(ctx, u.ID, TaskConnectFirstSource)
	if err != nil {
		t.Fatalf("repeat grant errored: %v", err)
	}
	if granted {
		t.Fatal("repeat grant was not a no-op")
	}

	var after types.User
	if err := tx.Where("id = ?", u.ID).Take(&after).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if after.PagesLimit != before.PagesLimit+incentivePages[TaskConnectFirstSource] {
		t.Fatalf("limit bumped %d -> %d, want one grant", before.PagesLimit, after.PagesLimit)
	}

	if _, err := g.GrantIncentive(ctx, u.ID, "no_such_task"); err == nil {
		t.Fatal("unknown task accepted")
	}
}
