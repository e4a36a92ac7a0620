package domain

import (
	"strings"

	apperrors "github.com/eliteGoblin/focusd/focuslock/internal/errors"
)

// DefaultBreakMinutes is used when a profile leaves BreakMinutes unset.
const DefaultBreakMinutes = 15

// Validate checks the profile before it is saved.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return apperrors.New(apperrors.KindValidation, "profile name is required")
	}
	if _, ok := LookupStrategy(p.StrategyID); !ok {
		return apperrors.Errorf(apperrors.KindValidation, "unknown strategy %q", p.StrategyID)
	}
	if p.BreakMinutes < 0 {
		return apperrors.New(apperrors.KindValidation, "break minutes must not be negative")
	}
	if p.Emergency.MaxAttempts < 0 || p.Emergency.CooldownMinutes < 0 {
		return apperrors.New(apperrors.KindValidation, "emergency limits must not be negative")
	}

	seen := make(map[string]struct{}, len(p.Tokens))
	for _, t := range p.Tokens {
		if t.TokenID == "" {
			return apperrors.New(apperrors.KindValidation, "token id must not be empty")
		}
		if !t.Mode.Valid() {
			return apperrors.Errorf(apperrors.KindValidation, "token %q has unknown mode %q", t.TokenID, t.Mode)
		}
		if _, dup := seen[t.TokenID]; dup {
			return apperrors.Errorf(apperrors.KindValidation, "duplicate token id %q", t.TokenID)
		}
		seen[t.TokenID] = struct{}{}
	}

	if p.Schedule != nil {
		if err := p.Schedule.Validate(); err != nil {
			return apperrors.Wrap(err, apperrors.KindValidation, "invalid schedule")
		}
	}
	return nil
}

// EffectiveBreakMinutes returns the break length, defaulting when unset.
func (p *Profile) EffectiveBreakMinutes() int {
	if p.BreakMinutes <= 0 {
		return DefaultBreakMinutes
	}
	return p.BreakMinutes
}

// TokenByID returns the registered token with the given id.
func (p *Profile) TokenByID(id string) (PhysicalToken, bool) {
	for _, t := range p.Tokens {
		if t.TokenID == id {
			return t, true
		}
	}
	return PhysicalToken{}, false
}
