package jobs

import (
	"context"
	"testing"
	"time"

	connrepo "github.com/surfsense/surfsense-backend/internal/data/repos/connectors"
	jobrepo "github.com/surfsense/surfsense-backend/internal/data/repos/jobs"
	"github.com/surfsense/surfsense-backend/internal/data/repos/testutil"
	types "github.com/surfsense/surfsense-backend/internal/domain"
	domjobs "github.com/surfsense/surfsense-backend/internal/domain/jobs"
)

func TestSchedulerDispatchDue(t *testing.T) {
	ctx := context.Background()
	tx := testutil.Tx(t, testutil.DB(t))
	log := testutil.Logger(t)

	u := testutil.SeedUser(t, ctx, tx, "scheduler@test.local")
	sp := testutil.SeedSearchSpace(t, ctx, tx, u.ID)
	conn := testutil.SeedConnector(t, ctx, tx, sp.ID, u.ID, "slack")

	past := time.Now().Add(-90 * time.Minute)
	if err := tx.Model(&types.Connector{}).Where("id = ?", conn.ID).
		Updates(map[string]interface{}{
			"periodic_indexing_enabled": true,
			"next_scheduled_at":         past,
		}).Error; err != nil {
		t.Fatalf("seed schedule: %v", err)
	}

	s := NewScheduler(
		connrepo.NewConnectorRepo(tx, log),
		NewEnqueuer(jobrepo.NewJobRunRepo(tx, log), log),
		nil,
		log,
	)

	now := time.Now()
	if err := s.dispatchDue(ctx, now); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	var jobs []*types.JobRun
	if err := tx.Where("job_type = ? AND entity_id = ?", domjobs.TypeConnectorIndex, conn.ID).
		Find(&jobs).Error; err != nil {
		t.Fatalf("load jobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 queued job, got %d", len(jobs))
	}
	if jobs[0].Status != domjobs.StatusQueued {
		t.Fatalf("job status %q", jobs[0].Status)
	}

	var after types.Connector
	if err := tx.Where("id = ?", conn.ID).Take(&after).Error; err != nil {
		t.Fatalf("reload connector: %v", err)
	}
	if after.NextScheduledAt == nil {
		t.Fatal("next_scheduled_at not advanced")
	}
	// The slot advances from the previous slot by exactly the frequency,
	// not from the dispatch time; otherwise the schedule drifts by up to
	// a tick per run.
	wantNext := past.Add(time.Duration(conn.IndexingFrequencyMinutes) * time.Minute)
	if delta := after.NextScheduledAt.Sub(wantNext); delta < -time.Second || delta > time.Second {
		t.Fatalf("next_scheduled_at = %v, want %v (delta %v)", after.NextScheduledAt, wantNext, delta)
	}

	// Second pass: connector no longer due, and even a due one would
	// collapse into the runnable job.
	if err := s.dispatchDue(ctx, time.Now()); err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	var count int64
	if err := tx.Model(&types.JobRun{}).
		Where("job_type = ? AND entity_id = ?", domjobs.TypeConnectorIndex, conn.ID).
		Count(&count).Error; err != nil {
		t.Fatalf("count jobs: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected dispatch to stay collapsed, got %d jobs", count)
	}
}

func TestEnqueueCollapsesDuplicates(t *testing.T) {
	ctx := context.Background()
	tx := testutil.Tx(t, testutil.DB(t))
	log := testutil.Logger(t)

	u := testutil.SeedUser(t, ctx, tx, "enqueue@test.local")
	sp := testutil.SeedSearchSpace(t, ctx, tx, u.ID)
	doc := testutil.SeedDocument(t, ctx, tx, sp.ID, u.ID, "doc", "content")

	e := NewEnqueuer(jobrepo.NewJobRunRepo(tx, log), log)

	id := doc.ID
	first, err := e.Enqueue(ctx, u.ID, domjobs.TypeDocumentProcess, "document", &id, map[string]any{"document_id": id.String()})
	if err != nil || first == nil {
		t.Fatalf("first enqueue: job=%v err=%v", first, err)
	}
	second, err := e.Enqueue(ctx, u.ID, domjobs.TypeDocumentProcess, "document", &id, nil)
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if second != nil {
		t.Fatal("duplicate enqueue was not collapsed")
	}
}
