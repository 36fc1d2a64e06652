package chat

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/surfsense/surfsense-backend/internal/data/repos/testutil"
	types "github.com/surfsense/surfsense-backend/internal/domain"
	"github.com/surfsense/surfsense-backend/internal/pkg/dbctx"
)

func TestAllocateSeq(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	u := testutil.SeedUser(t, ctx, tx, "seq@example.com")
	sp := testutil.SeedSearchSpace(t, ctx, tx, u.ID)
	th := testutil.SeedThread(t, ctx, tx, sp.ID, u.ID)

	repo := NewThreadRepo(db, log)
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	first, err := repo.AllocateSeq(dbc, th.ID, 2)
	if err != nil {
		t.Fatalf("allocate 2: %v", err)
	}
	if first != 0 {
		t.Fatalf("expected first allocation to start at 0, got %d", first)
	}

	second, err := repo.AllocateSeq(dbc, th.ID, 1)
	if err != nil {
		t.Fatalf("allocate 1: %v", err)
	}
	if second != 2 {
		t.Fatalf("expected next allocation at 2, got %d", second)
	}

	got, err := repo.GetByIDs(dbc, []uuid.UUID{th.ID})
	if err != nil || len(got) != 1 {
		t.Fatalf("reload thread: %v (%d rows)", err, len(got))
	}
	if got[0].NextSeq != 3 {
		t.Fatalf("next_seq = %d, want 3", got[0].NextSeq)
	}
	if got[0].StateVersion != 2 {
		t.Fatalf("state_version = %d, want 2 (one bump per allocation)", got[0].StateVersion)
	}
}

func TestRunSlot(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	u := testutil.SeedUser(t, ctx, tx, "run@example.com")
	sp := testutil.SeedSearchSpace(t, ctx, tx, u.ID)
	th := testutil.SeedThread(t, ctx, tx, sp.ID, u.ID)

	repo := NewThreadRepo(db, log)
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	now := time.Now().UTC()
	staleAfter := 2 * time.Minute

	ok, err := repo.AcquireRunSlot(dbc, th.ID, now, staleAfter)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if !ok {
		t.Fatalf("expected the free slot to be acquired")
	}

	ok, err = repo.AcquireRunSlot(dbc, th.ID, now.Add(time.Second), staleAfter)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatalf("expected a live run to block the slot")
	}

	// Past the heartbeat window the run counts as abandoned.
	ok, err = repo.AcquireRunSlot(dbc, th.ID, now.Add(staleAfter+time.Second), staleAfter)
	if err != nil {
		t.Fatalf("takeover acquire: %v", err)
	}
	if !ok {
		t.Fatalf("expected a stale run to be taken over")
	}

	if err := repo.ReleaseRunSlot(dbc, th.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = repo.AcquireRunSlot(dbc, th.ID, now.Add(staleAfter+2*time.Second), staleAfter)
	if err != nil || !ok {
		t.Fatalf("expected released slot to be acquirable, ok=%v err=%v", ok, err)
	}
}

func TestCheckpointLog(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)

	u := testutil.SeedUser(t, ctx, tx, "cp@example.com")
	sp := testutil.SeedSearchSpace(t, ctx, tx, u.ID)
	th := testutil.SeedThread(t, ctx, tx, sp.ID, u.ID)

	repo := NewCheckpointRepo(db, log)
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	empty, err := repo.Latest(dbc, th.ID)
	if err != nil {
		t.Fatalf("latest on empty log: %v", err)
	}
	if empty != nil {
		t.Fatalf("expected nil on empty log, got %+v", empty)
	}

	for step, node := range map[int64]string{0: "plan", 1: "retrieve"} {
		_, err := repo.Append(dbc, &types.AgentCheckpoint{
			ThreadID:  th.ID,
			StepNo:    step,
			Node:      node,
			StateBlob: datatypes.JSON([]byte(`{"k":"v"}`)),
		})
		if err != nil {
			t.Fatalf("append step %d: %v", step, err)
		}
	}

	// Duplicate step must be rejected by the unique index. Savepoint keeps
	// the surrounding test transaction usable after the expected failure.
	if err := tx.SavePoint("dup_step").Error; err != nil {
		t.Fatalf("savepoint: %v", err)
	}
	if _, err := repo.Append(dbc, &types.AgentCheckpoint{
		ThreadID:  th.ID,
		StepNo:    1,
		Node:      "retrieve",
		StateBlob: datatypes.JSON([]byte(`{}`)),
	}); err == nil {
		t.Fatalf("expected duplicate (thread_id, step_no) to fail")
	}
	if err := tx.RollbackTo("dup_step").Error; err != nil {
		t.Fatalf("rollback to savepoint: %v", err)
	}

	latest, err := repo.Latest(dbc, th.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.StepNo != 1 || latest.Node != "retrieve" {
		t.Fatalf("unexpected latest checkpoint: %+v", latest)
	}

	if err := repo.DeleteByThread(dbc, th.ID); err != nil {
		t.Fatalf("clear log: %v", err)
	}
	gone, err := repo.Latest(dbc, th.ID)
	if err != nil {
		t.Fatalf("latest after clear: %v", err)
	}
	if gone != nil {
		t.Fatalf("expected empty log after clear")
	}
}
