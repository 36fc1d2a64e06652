package handlers

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/surfsense/surfsense-backend/internal/realtime"
)

func TestParseByteRangeFull(t *testing.T) {
	start, end, err := parseByteRange("bytes=0-99", 1000)
	if err != nil {
		t.Fatalf("parseByteRange: %v", err)
	}
	if start != 0 || end != 99 {
		t.Fatalf("got %d-%d, want 0-99", start, end)
	}
}

func TestParseByteRangeOpenEnded(t *testing.T) {
	start, end, err := parseByteRange("bytes=500-", 1000)
	if err != nil {
		t.Fatalf("parseByteRange: %v", err)
	}
	if start != 500 || end != 999 {
		t.Fatalf("got %d-%d, want 500-999", start, end)
	}
}

func TestParseByteRangeSuffix(t *testing.T) {
	start, end, err := parseByteRange("bytes=-100", 1000)
	if err != nil {
		t.Fatalf("parseByteRange: %v", err)
	}
	if start != 900 || end != 999 {
		t.Fatalf("got %d-%d, want 900-999", start, end)
	}
	// Suffix longer than the object clamps to the whole object.
	start, end, err = parseByteRange("bytes=-5000", 1000)
	if err != nil {
		t.Fatalf("parseByteRange: %v", err)
	}
	if start != 0 || end != 999 {
		t.Fatalf("got %d-%d, want 0-999", start, end)
	}
}

func TestParseByteRangeClampsEnd(t *testing.T) {
	start, end, err := parseByteRange("bytes=900-5000", 1000)
	if err != nil {
		t.Fatalf("parseByteRange: %v", err)
	}
	if start != 900 || end != 999 {
		t.Fatalf("got %d-%d, want 900-999", start, end)
	}
}

func TestParseByteRangeRejectsBad(t *testing.T) {
	for _, header := range []string{
		"bytes=1000-",      // start at size
		"bytes=-0",         // empty suffix
		"bytes=5-2",        // inverted
		"bytes=0-10,20-30", // multi-range unsupported
		"items=0-10",       // wrong unit
		"bytes=abc-def",
	} {
		if _, _, err := parseByteRange(header, 1000); err == nil {
			t.Fatalf("expected error for %q", header)
		}
	}
}

func TestWriteSSEFrame(t *testing.T) {
	rec := httptest.NewRecorder()
	err := writeSSEFrame(rec, realtime.SSEMessage{
		Channel: "thread:abc",
		Event:   realtime.SSEEventTextDelta,
		Data:    map[string]any{"delta": "hi"},
	})
	if err != nil {
		t.Fatalf("writeSSEFrame: %v", err)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "event: text-delta\ndata: ") {
		t.Fatalf("unexpected frame prefix: %q", body)
	}
	if !strings.HasSuffix(body, "\n\n") {
		t.Fatalf("frame missing blank-line terminator: %q", body)
	}
	if !strings.Contains(body, `"delta":"hi"`) {
		t.Fatalf("frame missing payload: %q", body)
	}
}
