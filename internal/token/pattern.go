package token

import "strings"

// MatchPath reports whether path satisfies pattern. Patterns are '/'-
// segmented: a plain segment matches itself literally, "*" matches any
// single segment, and "**" as the final segment matches any suffix
// (including zero further segments) from that position on.
func MatchPath(pattern, path string) bool {
	patternSegs := strings.Split(pattern, "/")
	pathSegs := strings.Split(path, "/")

	for i, ps := range patternSegs {
		if ps == "**" {
			return true
		}
		if i >= len(pathSegs) {
			return false
		}
		if ps == "*" {
			continue
		}
		if ps != pathSegs[i] {
			return false
		}
	}
	return len(patternSegs) == len(pathSegs)
}
