package domain

import (
	"slices"
	"strings"
)

// Snapshot is the blocked-traffic view consumed by the enforcer and the filter.
// The zero value is the empty snapshot.
type Snapshot struct {
	BlockedApps    []string
	BlockedDomains []string
}

// NewSnapshot returns a normalized snapshot: sorted, deduplicated, domains lower-cased.
func NewSnapshot(apps, domains []string) Snapshot {
	return Snapshot{
		BlockedApps:    normalize(apps, strings.TrimSpace),
		BlockedDomains: normalize(domains, func(s string) string {
			return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ".")
		}),
	}
}

// SnapshotFor derives the snapshot a session should publish.
func SnapshotFor(s *Session) Snapshot {
	if s == nil || !s.IsActive() || s.IsPaused() {
		return Snapshot{}
	}
	var domains []string
	if s.WebBlockingEnabled {
		domains = s.BlockedDomains
	}
	return NewSnapshot(s.BlockedApps, domains)
}

// IsEmpty reports whether nothing is blocked.
func (s Snapshot) IsEmpty() bool {
	return len(s.BlockedApps) == 0 && len(s.BlockedDomains) == 0
}

// Equal compares two normalized snapshots.
func (s Snapshot) Equal(o Snapshot) bool {
	return slices.Equal(s.BlockedApps, o.BlockedApps) && slices.Equal(s.BlockedDomains, o.BlockedDomains)
}

func normalize(in []string, clean func(string) string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = clean(v); v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
