// Package matcher decides whether a host name falls under a blocked domain.
package matcher

import (
	"strings"
)

// IsBlocked reports whether candidate equals blocked or is a subdomain of it.
// Comparison is case-insensitive.
func IsBlocked(candidate, blocked string) bool {
	c := strings.ToLower(candidate)
	b := strings.ToLower(blocked)
	if b == "" {
		return false
	}
	return c == b || strings.HasSuffix(c, "."+b)
}

// Set is an immutable set of blocked domains.
type Set struct {
	domains map[string]struct{}
}

// NewSet builds a set from raw domain strings. Entries are lower-cased,
// trimmed and stripped of a trailing dot; empty entries are ignored.
func NewSet(domains []string) *Set {
	s := &Set{domains: make(map[string]struct{}, len(domains))}
	for _, d := range domains {
		if d = Normalize(d); d != "" {
			s.domains[d] = struct{}{}
		}
	}
	return s
}

// Normalize canonicalizes a domain name for comparison.
func Normalize(name string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
}

// Len returns the number of domains in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.domains)
}

// Match returns the blocked domain covering name, walking parent suffixes.
func (s *Set) Match(name string) (string, bool) {
	if s.Len() == 0 {
		return "", false
	}
	name = Normalize(name)
	for name != "" {
		if _, ok := s.domains[name]; ok {
			return name, true
		}
		i := strings.IndexByte(name, '.')
		if i < 0 {
			break
		}
		name = name[i+1:]
	}
	return "", false
}
