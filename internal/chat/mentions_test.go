package chat

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
)

func TestExtractMentions(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	content := fmt.Sprintf("hey @[%s] can you look at this with @[%s]? thanks @[%s]", a, b, a)
	got := ExtractMentions(content)
	if len(got) != 2 {
		t.Fatalf("expected 2 unique mentions, got %d", len(got))
	}
	if got[0] != a || got[1] != b {
		t.Fatalf("mention order wrong: %v", got)
	}
}

func TestExtractMentionsIgnoresMalformed(t *testing.T) {
	cases := []string{
		"no mentions here",
		"@[not-a-uuid]",
		"@[12345]",
		"plain @someone",
		"@[]",
	}
	for _, c := range cases {
		if got := ExtractMentions(c); len(got) != 0 {
			t.Fatalf("%q: expected no mentions, got %v", c, got)
		}
	}
}
