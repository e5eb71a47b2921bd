package application

import (
	"strings"

	"github.com/ericfisherdev/giteamirror/internal/domain/model"
)

// MatchPattern reports whether subject matches pattern in full. A "*" matches
// any run of characters, including "/" and the empty run. Every other
// character is literal.
func MatchPattern(subject, pattern string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return subject == pattern
	}

	first, last := parts[0], parts[len(parts)-1]
	if !strings.HasPrefix(subject, first) {
		return false
	}
	subject = subject[len(first):]

	// Middle segments are matched greedily left to right; the leftmost match
	// leaves the most room for the rest.
	for _, mid := range parts[1 : len(parts)-1] {
		idx := strings.Index(subject, mid)
		if idx < 0 {
			return false
		}
		subject = subject[idx+len(mid):]
	}

	return strings.HasSuffix(subject, last)
}

// matchAny reports whether subject matches at least one pattern.
func matchAny(subject string, patterns []string) bool {
	for _, p := range patterns {
		if MatchPattern(subject, p) {
			return true
		}
	}
	return false
}

// includesAll reports whether an include list applies no filtering: empty,
// or made only of the wildcard.
func includesAll(include []string) bool {
	for _, p := range include {
		if p != model.WildcardPattern {
			return false
		}
	}
	return true
}

// Selected reports whether a repository full name survives the include and
// exclude lists. Exclude always wins.
func Selected(fullName string, include, exclude []string) bool {
	if matchAny(fullName, exclude) {
		return false
	}
	return includesAll(include) || matchAny(fullName, include)
}

// FilterRepositories returns the repositories whose FullName is Selected,
// preserving order.
func FilterRepositories(repos []model.Repository, include, exclude []string) []model.Repository {
	kept := make([]model.Repository, 0, len(repos))
	for _, r := range repos {
		if Selected(r.FullName, include, exclude) {
			kept = append(kept, r)
		}
	}
	return kept
}
