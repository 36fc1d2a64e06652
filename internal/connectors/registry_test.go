package connectors

import (
	"testing"
	"time"

	"github.com/surfsense/surfsense-backend/internal/ingest"
	"github.com/surfsense/surfsense-backend/internal/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	return logger.NewNop()
}

func TestDefaultRegistryCoversAllSources(t *testing.T) {
	r, err := NewDefaultRegistry(testLogger(t))
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	want := []string{
		"airtable", "clickup", "confluence", "discord", "file", "github",
		"gmail", "google_calendar", "google_drive", "jira", "linear",
		"notion", "slack", "webcrawler", "zulip",
	}
	got := r.Types()
	if len(got) != len(want) {
		t.Fatalf("expected %d adapters, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("adapter set mismatch at %d: got %q want %q", i, got[i], want[i])
		}
	}
	for _, typ := range want {
		a, err := r.Get(typ)
		if err != nil {
			t.Fatalf("get %q: %v", typ, err)
		}
		if a.Type() != typ {
			t.Fatalf("adapter for %q reports type %q", typ, a.Type())
		}
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(NewSlackAdapter(testLogger(t))); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(NewSlackAdapter(testLogger(t))); err == nil {
		t.Fatal("duplicate register accepted")
	}
}

func TestRegistryUnknownType(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("telex"); err == nil {
		t.Fatal("expected error for unregistered type")
	}
}

func TestNormalizeDerivesIdentityAndTitle(t *testing.T) {
	a := NewSlackAdapter(testLogger(t))
	when := time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC)
	doc, err := a.Normalize(&RawItem{
		RemoteID:   "C042/2026-02-03",
		Body:       "# Daily digest\n\nTwo messages today.",
		SourceTime: when,
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if doc.DocumentType != "slack" {
		t.Fatalf("document type %q", doc.DocumentType)
	}
	if doc.Title != "Daily digest" {
		t.Fatalf("title fallback failed: %q", doc.Title)
	}
	if doc.UniqueIdentifierHash != ingest.UniqueIdentifierHash("slack", "C042/2026-02-03") {
		t.Fatal("identifier hash does not match the shared derivation")
	}
	if !doc.SourceTime.Equal(when) {
		t.Fatalf("source time changed: %v", doc.SourceTime)
	}
	if doc.DocumentMetadata["remote_id"] != "C042/2026-02-03" {
		t.Fatal("remote id not recorded in metadata")
	}
}

func TestNormalizeConvertsHTML(t *testing.T) {
	a := NewWebcrawlerAdapter(testLogger(t))
	doc, err := a.Normalize(&RawItem{
		RemoteID:   "https://example.com/post",
		Title:      "A post",
		Body:       "<html><body><p>Hello <strong>world</strong></p></body></html>",
		BodyIsHTML: true,
		SourceTime: time.Now(),
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if doc.SourceMarkdown == "" || doc.SourceMarkdown[0] == '<' {
		t.Fatalf("body still looks like html: %q", doc.SourceMarkdown)
	}
}

func TestNormalizeRejectsEmpty(t *testing.T) {
	a := NewSlackAdapter(testLogger(t))
	if _, err := a.Normalize(&RawItem{RemoteID: "x", Body: "   \n  "}); err == nil {
		t.Fatal("empty body accepted")
	}
	if _, err := a.Normalize(&RawItem{Body: "content"}); err == nil {
		t.Fatal("missing remote id accepted")
	}
}
