package stages

import (
	"strings"

	"github.com/pdiddy/visibility-engine/internal/state"
	"github.com/pdiddy/visibility-engine/pkg/types"
)

// CountMentions returns how many responses mention brand and each competitor,
// matching names as case-insensitive substrings. A response counts once per
// name however often the name appears. Empty names never match.
func CountMentions(brand string, competitors []types.Competitor, responses []types.Response) state.Counters {
	texts := make([]string, len(responses))
	for i, r := range responses {
		texts[i] = strings.ToLower(r.Response)
	}

	c := state.Counters{
		Brand:       countIn(texts, brand),
		Competitors: make([]int, len(competitors)),
	}
	for i, comp := range competitors {
		c.Competitors[i] = countIn(texts, comp.Name)
	}
	return c
}

func countIn(texts []string, name string) int {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return 0
	}
	n := 0
	for _, t := range texts {
		if strings.Contains(t, name) {
			n++
		}
	}
	return n
}
