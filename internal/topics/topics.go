package topics

import "strings"

const (
	separator = "/"

	// singleWildcard matches exactly one topic segment.
	singleWildcard = "+"

	// multiWildcard matches zero or more trailing segments.
	multiWildcard = "#"
)

// ValidatePattern reports whether pattern is a well-formed subscription
// pattern.
//
// A pattern is rejected when it is empty or blank, contains characters
// outside [A-Za-z0-9/#+], uses `+` as part of a longer segment, or uses
// `#` anywhere other than the final segment. The bare patterns "+" and
// "#" are both valid.
func ValidatePattern(pattern string) bool {
	if strings.TrimSpace(pattern) == "" {
		return false
	}

	for _, r := range pattern {
		if !isPatternRune(r) {
			return false
		}
	}

	segments := strings.Split(pattern, separator)
	for i, seg := range segments {
		if strings.Contains(seg, singleWildcard) && seg != singleWildcard {
			return false
		}
		if strings.Contains(seg, multiWildcard) {
			if seg != multiWildcard || i != len(segments)-1 {
				return false
			}
		}
	}

	return true
}

// Matches reports whether topic matches the subscription pattern.
//
// Exact string equality always matches. Otherwise the two strings are
// compared segment by segment: `+` absorbs exactly one non-empty topic
// segment, and a trailing `#` absorbs any remaining segments (including
// none). Without a trailing `#`, the segment counts must be equal.
func Matches(pattern, topic string) bool {
	if pattern == topic {
		return true
	}

	patSegs := strings.Split(pattern, separator)
	topSegs := strings.Split(topic, separator)

	if patSegs[len(patSegs)-1] == multiWildcard {
		prefix := patSegs[:len(patSegs)-1]
		if len(topSegs) < len(prefix) {
			return false
		}
		return segmentsMatch(prefix, topSegs[:len(prefix)])
	}

	if len(patSegs) != len(topSegs) {
		return false
	}
	return segmentsMatch(patSegs, topSegs)
}

// HasWildcards reports whether s contains a wildcard character anywhere.
// Useful for distinguishing literal topics from subscription patterns.
func HasWildcards(s string) bool {
	return strings.ContainsAny(s, singleWildcard+multiWildcard)
}

// segmentsMatch compares pattern segments against topic segments of the
// same length. `+` matches any single non-empty segment.
func segmentsMatch(patSegs, topSegs []string) bool {
	for i, ps := range patSegs {
		if ps == singleWildcard {
			if topSegs[i] == "" {
				return false
			}
			continue
		}
		if ps != topSegs[i] {
			return false
		}
	}
	return true
}

// isPatternRune reports whether r is allowed in a pattern.
func isPatternRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '/' || r == '+' || r == '#':
		return true
	}
	return false
}
