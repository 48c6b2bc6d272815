package utils

import "strings"

// MatchPermission checks whether a granted permission id satisfies a wanted
// one. Permission ids are dot-separated ("orders.delete"); a granted id may
// end with a '*' segment that covers any suffix, so "orders.*" grants every
// action on orders and a bare "*" grants everything.
func MatchPermission(granted, wanted string) bool {
	if granted == wanted || granted == "*" {
		return true
	}
	if strings.HasSuffix(granted, ".*") {
		return strings.HasPrefix(wanted, strings.TrimSuffix(granted, "*"))
	}
	return matchSegments(wanted, granted)
}

// MatchResource checks whether a resource identifier matches a pattern.
// Identifiers are ':'-separated ("document:report-42"); patterns may use a
// '*' segment to match any single segment and may end with '*' to match any
// remaining suffix.
func MatchResource(value, pattern string) bool {
	if pattern == "*" || pattern == value {
		return true
	}
	return matchParts(strings.Split(value, ":"), strings.Split(pattern, ":"))
}

func matchSegments(value, pattern string) bool {
	return matchParts(strings.Split(value, "."), strings.Split(pattern, "."))
}

func matchParts(vals, pats []string) bool {
	for i, pat := range pats {
		if i >= len(vals) {
			return false
		}
		if pat == "*" && i == len(pats)-1 {
			return true
		}
		if pat != "*" && pat != vals[i] {
			return false
		}
	}
	return len(vals) == len(pats)
}
