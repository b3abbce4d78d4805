package dispatch

import (
	"regexp"
	"sort"
)

// ReferenceExtractor detects directed references to other agents in free-text
// agent output. It is a pluggable strategy so detection can evolve without
// touching the scheduler.
type ReferenceExtractor interface {
	// Extract returns the set of referenced agent ids, deduplicated.
	Extract(text string) []string
}

// MentionExtractor finds @agent-id style mentions.
type MentionExtractor struct {
	pattern *regexp.Regexp
}

// NewMentionExtractor creates the default @mention extractor.
func NewMentionExtractor() *MentionExtractor {
	return &MentionExtractor{
		pattern: regexp.MustCompile(`@([A-Za-z0-9][\w-]*)`),
	}
}

// Extract returns the mentioned agent ids in sorted order.
func (m *MentionExtractor) Extract(text string) []string {
	matches := m.pattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	for _, match := range matches {
		seen[match[1]] = true
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// KnownAgentExtractor only reports mentions of agents from a known roster,
// filtering out stray @handles in prose.
type KnownAgentExtractor struct {
	inner ReferenceExtractor
	known map[string]bool
}

// NewKnownAgentExtractor wraps an extractor with a roster filter.
func NewKnownAgentExtractor(inner ReferenceExtractor, agentIDs []string) *KnownAgentExtractor {
	known := make(map[string]bool, len(agentIDs))
	for _, id := range agentIDs {
		known[id] = true
	}
	return &KnownAgentExtractor{inner: inner, known: known}
}

// Extract returns only references to agents in the roster.
func (k *KnownAgentExtractor) Extract(text string) []string {
	var out []string
	for _, id := range k.inner.Extract(text) {
		if k.known[id] {
			out = append(out, id)
		}
	}
	return out
}
