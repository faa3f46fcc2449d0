package events

import "strings"

// MatchPattern reports whether eventType (a dotted path, e.g.
// "agent.execution.completed") matches pattern, where pattern may use "*" to
// match exactly one dotted segment and "**" to match zero or more remaining
// segments (consuming the rest of the path). "**" is only meaningful as the
// final pattern segment; a "**" elsewhere is treated as matching exactly one
// segment, same as "*", to keep matching well-defined.
func MatchPattern(pattern, eventType string) bool {
	patternSegs := strings.Split(pattern, ".")
	eventSegs := strings.Split(eventType, ".")
	return matchSegments(patternSegs, eventSegs)
}

func matchSegments(pattern, event []string) bool {
	for i := 0; i < len(pattern); i++ {
		seg := pattern[i]

		if seg == "**" && i == len(pattern)-1 {
			// Final "**" swallows all remaining segments, including zero.
			return true
		}

		if i >= len(event) {
			return false
		}

		if seg == "*" || seg == "**" {
			continue
		}

		if seg != event[i] {
			return false
		}
	}

	return len(pattern) == len(event)
}
