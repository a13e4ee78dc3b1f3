// Package hostname implements the two syntactic hostname predicates used
// to decide whether an SNI value is usable: a generic hostname form (for
// names like "localhost") and a stricter public-domain form (requiring a
// TLD-shaped suffix).
package hostname

import "regexp"

const maxLen = 253

// label = [A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?
const labelPattern = `[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?`

var (
	genericRE = regexp.MustCompile(
		`^` + labelPattern + `(?:\.` + labelPattern + `)*(?:\.[A-Za-z]{1,63})?$`)

	publicRE = regexp.MustCompile(
		`^` + labelPattern + `(?:\.` + labelPattern + `)*\.[A-Za-z]{2,63}$`)

	hasLetterRE = regexp.MustCompile(`[A-Za-z]`)
)

// IsGeneric reports whether s is a syntactically valid hostname: one or
// more dot-separated labels, an optional trailing bare-letters TLD label,
// non-empty, at most 253 characters, and containing at least one letter
// (purely numeric strings, including IPv4 literals, are rejected).
func IsGeneric(s string) bool {
	if s == "" || len(s) > maxLen {
		return false
	}
	if !hasLetterRE.MatchString(s) {
		return false
	}
	return genericRE.MatchString(s)
}

// IsPublicDomain reports whether s additionally has a TLD-shaped suffix
// of at least two letters (so "localhost" and "a.x" pass IsGeneric but
// fail IsPublicDomain, while "example.com" passes both). Every string
// IsPublicDomain accepts, IsGeneric accepts too.
func IsPublicDomain(s string) bool {
	if s == "" || len(s) > maxLen {
		return false
	}
	if !hasLetterRE.MatchString(s) {
		return false
	}
	return publicRE.MatchString(s)
}
