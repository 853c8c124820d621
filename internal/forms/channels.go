// internal/forms/channels.go
package forms

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// ChannelMatcher resolves free-form complaint channel names to checkbox
// choices.
type ChannelMatcher struct {
	group ChannelGroup
	// threshold enables a Jaro-Winkler fallback for names that match no key
	// by substring. Zero disables it.
	threshold float64
}

func NewChannelMatcher(group ChannelGroup, threshold float64) *ChannelMatcher {
	return &ChannelMatcher{group: group, threshold: threshold}
}

// Match returns the first choice whose key contains the normalized name or is
// contained by it. Empty names never match.
func (m *ChannelMatcher) Match(name string) (ChannelChoice, bool) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return ChannelChoice{}, false
	}
	for _, c := range m.group.Choices {
		if strings.Contains(normalized, c.Key) || strings.Contains(c.Key, normalized) {
			return c, true
		}
	}
	if m.threshold <= 0 {
		return ChannelChoice{}, false
	}

	var best ChannelChoice
	bestScore := 0.0
	for _, c := range m.group.Choices {
		if score := matchr.JaroWinkler(normalized, c.Key, false); score > bestScore {
			best, bestScore = c, score
		}
	}
	if bestScore >= m.threshold {
		return best, true
	}
	return ChannelChoice{}, false
}

// Resolve maps names to distinct choices in first-seen order and returns the
// names that matched nothing. A checkbox clicked twice would be unticked, so
// repeated choices are dropped.
func (m *ChannelMatcher) Resolve(names []string) (choices []ChannelChoice, unmatched []string) {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		c, ok := m.Match(name)
		if !ok {
			unmatched = append(unmatched, name)
			continue
		}
		if seen[c.ChoiceID] {
			continue
		}
		seen[c.ChoiceID] = true
		choices = append(choices, c)
	}
	return choices, unmatched
}
