package ingestion

import (
	"testing"
	"time"
)

func TestFetchWindow(t *testing.T) {
	c := &Coordinator{
		safetyWindow:    10 * time.Minute,
		initialBackfill: 30 * 24 * time.Hour,
	}
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	// First run: the full backfill horizon, not just the safety window.
	since, until := c.fetchWindow(nil, now)
	if want := now.Add(-30 * 24 * time.Hour); !since.Equal(want) {
		t.Fatalf("first-run since = %v, want %v", since, want)
	}
	if !until.Equal(now) {
		t.Fatalf("until = %v, want %v", until, now)
	}

	// Watermark older than the safety window wins.
	wm := now.Add(-2 * time.Hour)
	since, _ = c.fetchWindow(&wm, now)
	if !since.Equal(wm) {
		t.Fatalf("stale-watermark since = %v, want %v", since, wm)
	}

	// Recent watermark: safety window pads the range backwards so
	// late-arriving items near the boundary are not missed.
	wm = now.Add(-time.Minute)
	since, _ = c.fetchWindow(&wm, now)
	if want := now.Add(-10 * time.Minute); !since.Equal(want) {
		t.Fatalf("recent-watermark since = %v, want %v", since, want)
	}
}
