// Package strings provides string set helpers.
package strings

import (
	"strings"
)

// NormalizeSet trims, lowercases and de-duplicates values, dropping empties.
// Order of first occurrence is preserved. Returns nil for an empty result so
// "no restriction" has a single representation.
//
//	NormalizeSet([]string{"  GitHub ", "amazon", "github", ""})
//	// Returns: []string{"github", "amazon"}
func NormalizeSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		n := strings.ToLower(strings.TrimSpace(v))
		if n == "" {
			continue
		}
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			result = append(result, n)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// ContainsFold reports whether set contains v, ignoring case and surrounding space.
func ContainsFold(set []string, v string) bool {
	v = strings.TrimSpace(v)
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
