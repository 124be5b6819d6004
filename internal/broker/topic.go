package broker

import "strings"

// matchTopic reports whether topic matches pattern under the grammar
// from spec.md §4.1: segments are split on "/"; "+" matches exactly one
// segment; "#" matches one or more trailing segments and must be the
// last segment of the pattern. This is ported 1:1 from the original
// rtaspi broker's _topic_matches_pattern (core/mcp.py), which MQTT's own
// grammar also follows.
func matchTopic(topic, pattern string) bool {
	topicParts := strings.Split(topic, "/")
	patternParts := strings.Split(pattern, "/")

	for i, part := range patternParts {
		if part == "#" {
			// '#' matches the rest of the topic; topic must have at
			// least one segment remaining at this position (an empty
			// topic has no segments).
			return i < len(topicParts) && topic != ""
		}
		if i >= len(topicParts) {
			return false
		}
		if part == "+" {
			continue
		}
		if part != topicParts[i] {
			return false
		}
	}

	// No trailing '#': segment counts must match exactly.
	return len(patternParts) == len(topicParts)
}

// MatchTopic is the exported form of matchTopic, used by busclient to
// replicate the broker's own wildcard-fallback dispatch rule locally.
func MatchTopic(topic, pattern string) bool {
	return matchTopic(topic, pattern)
}
