// Package preset provides named bundles of blocked apps and domains that
// can be merged into a profile at creation time.
package preset

import (
	"sort"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	apperrors "github.com/eliteGoblin/focusd/focuslock/internal/errors"
)

// Preset is one bundle of blocking rules.
type Preset interface {
	// ID returns the identifier used on the command line, e.g. "steam".
	ID() string

	// Name returns a human-readable name for display.
	Name() string

	// Apps returns process name patterns, matched case-insensitively.
	Apps() []string

	// Domains returns registrable domains; subdomains are covered implicitly.
	Domains() []string
}

// Registry holds the known presets.
type Registry struct {
	presets map[string]Preset
}

// NewRegistry creates a registry with the built-in presets.
func NewRegistry() *Registry {
	return NewRegistryWith(
		NewSteamPreset(),
		NewDota2Preset(),
		NewSocialPreset(),
	)
}

// NewRegistryWith creates a registry with the given presets only.
func NewRegistryWith(presets ...Preset) *Registry {
	r := &Registry{presets: make(map[string]Preset)}
	for _, p := range presets {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a preset.
func (r *Registry) Register(p Preset) {
	r.presets[p.ID()] = p
}

// Get returns a preset by ID.
func (r *Registry) Get(id string) (Preset, bool) {
	p, ok := r.presets[id]
	return p, ok
}

// List returns all presets ordered by ID.
func (r *Registry) List() []Preset {
	out := make([]Preset, 0, len(r.presets))
	for _, p := range r.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Apply merges the named presets into p. Unknown IDs fail with a
// validation error and leave p untouched.
func (r *Registry) Apply(p *domain.Profile, ids ...string) error {
	selected := make([]Preset, 0, len(ids))
	for _, id := range ids {
		pr, ok := r.Get(id)
		if !ok {
			return apperrors.Attr(apperrors.New(apperrors.KindValidation, "unknown preset"), "preset", id)
		}
		selected = append(selected, pr)
	}

	apps := append([]string(nil), p.BlockedApps...)
	domains := append([]string(nil), p.BlockedDomains...)
	for _, pr := range selected {
		apps = append(apps, pr.Apps()...)
		domains = append(domains, pr.Domains()...)
	}
	merged := domain.NewSnapshot(apps, domains)
	p.BlockedApps = merged.BlockedApps
	p.BlockedDomains = merged.BlockedDomains
	if len(p.BlockedDomains) > 0 {
		p.WebBlockingEnabled = true
	}
	return nil
}
