// Package normalize folds user supplied text for case-insensitive
// comparison of usernames, emails, promo codes and search terms.
package normalize

import (
	"strings"

	"golang.org/x/text/cases"
)

// Fold trims s and applies Unicode case folding.
func Fold(s string) string {
	// A Caser keeps state between calls, so each call gets its own.
	return cases.Fold().String(strings.TrimSpace(s))
}

// Contains reports whether needle occurs in haystack ignoring case.
// An empty needle matches everything.
func Contains(haystack, needle string) bool {
	n := Fold(needle)
	if n == "" {
		return true
	}
	return strings.Contains(Fold(haystack), n)
}

// Equal reports whether a and b are equal after folding.
func Equal(a, b string) bool {
	return Fold(a) == Fold(b)
}
