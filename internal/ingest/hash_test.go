package ingest

import "testing"

func TestNormalizeContent(t *testing.T) {
	in := "Line one  \r\nLine two\t\r\n\r\n  Line three\r\n"
	want := "Line one\nLine two\n\n  Line three"
	if got := NormalizeContent(in); got != want {
		t.Fatalf("normalize mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestContentHashStableAcrossLineEndings(t *testing.T) {
	a := ContentHash("hello\r\nworld\r\n")
	b := ContentHash("hello\nworld")
	if a != b {
		t.Fatalf("CRLF and LF renditions hashed differently: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestContentHashDistinct(t *testing.T) {
	if ContentHash("alpha") == ContentHash("beta") {
		t.Fatal("different content produced the same hash")
	}
}

func TestUniqueIdentifierHash(t *testing.T) {
	a := UniqueIdentifierHash("slack", "C123/1700000000.000100")
	b := UniqueIdentifierHash("slack", "C123/1700000000.000100")
	if a != b {
		t.Fatal("same remote id hashed differently")
	}
	if a == UniqueIdentifierHash("discord", "C123/1700000000.000100") {
		t.Fatal("connector type does not separate the key space")
	}
	// Separator prevents ambiguous concatenation.
	if UniqueIdentifierHash("ab", "c") == UniqueIdentifierHash("a", "bc") {
		t.Fatal("ambiguous concatenation in identifier hash")
	}
}
