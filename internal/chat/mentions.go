package chat

import (
	"regexp"

	"github.com/google/uuid"
)

var mentionPattern = regexp.MustCompile(`@\[([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})\]`)

// ExtractMentions returns the user ids referenced as @[uuid] tokens, in
// first-occurrence order with duplicates removed. Malformed tokens are
// ignored.
func ExtractMentions(content string) []uuid.UUID {
	matches := mentionPattern.FindAllStringSubmatch(content, -1)
	seen := make(map[uuid.UUID]bool, len(matches))
	out := make([]uuid.UUID, 0, len(matches))
	for _, m := range matches {
		id, err := uuid.Parse(m[1])
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
