package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	apperrors "github.com/eliteGoblin/focusd/focuslock/internal/errors"
)

// EmergencyState is the availability of the emergency unlock.
type EmergencyState string

const (
	EmergencyNoActiveSession EmergencyState = "no_active_session"
	EmergencyDisabled        EmergencyState = "disabled"
	EmergencyOnCooldown      EmergencyState = "on_cooldown"
	EmergencyNoAttemptsLeft  EmergencyState = "no_attempts_left"
	EmergencyAvailable       EmergencyState = "available"
)

// EmergencyStatus is the result of CheckEmergency. Remaining and Max are
// set for EmergencyAvailable, CooldownUntil for EmergencyOnCooldown.
type EmergencyStatus struct {
	State         EmergencyState
	Remaining     int
	Max           int
	CooldownUntil time.Time
}

// CheckEmergency reports whether the emergency unlock can be used now.
func (e *SessionEngine) CheckEmergency(ctx context.Context) (EmergencyStatus, error) {
	s, err := e.sessions.Active(ctx)
	if apperrors.Is(err, domain.ErrNoActiveSession) {
		return EmergencyStatus{State: EmergencyNoActiveSession}, nil
	}
	if err != nil {
		return EmergencyStatus{}, err
	}
	profile, err := e.profiles.GetProfile(ctx, s.ProfileID)
	if err != nil {
		return EmergencyStatus{}, err
	}
	return emergencyStatus(s, profile, e.now()), nil
}

func emergencyStatus(s *domain.Session, p *domain.Profile, now time.Time) EmergencyStatus {
	switch {
	case !p.Emergency.Enabled:
		return EmergencyStatus{State: EmergencyDisabled}
	case s.EmergencyCooldownUntil != nil && now.Before(*s.EmergencyCooldownUntil):
		return EmergencyStatus{State: EmergencyOnCooldown, CooldownUntil: *s.EmergencyCooldownUntil}
	case s.EmergencyAttemptsUsed >= p.Emergency.MaxAttempts:
		return EmergencyStatus{State: EmergencyNoAttemptsLeft}
	default:
		return EmergencyStatus{
			State:     EmergencyAvailable,
			Remaining: p.Emergency.MaxAttempts - s.EmergencyAttemptsUsed,
			Max:       p.Emergency.MaxAttempts,
		}
	}
}

// UseEmergencyUnlock spends one attempt and ends the session, remote lock included.
func (e *SessionEngine) UseEmergencyUnlock(ctx context.Context) error {
	s, err := e.mutateActive(ctx, func(s *domain.Session) error {
		profile, err := e.profiles.GetProfile(ctx, s.ProfileID)
		if err != nil {
			return err
		}
		return e.emergencyUnlock(s, profile)
	})
	if err != nil {
		return err
	}
	e.logger.Warn("emergency unlock used",
		zap.String("session", s.ID),
		zap.Int("attempts_used", s.EmergencyAttemptsUsed))
	return nil
}

// emergencyUnlock applies the unlock to s. Callers hold the session lock.
func (e *SessionEngine) emergencyUnlock(s *domain.Session, p *domain.Profile) error {
	now := e.now()
	switch status := emergencyStatus(s, p, now); status.State {
	case EmergencyDisabled:
		return domain.ErrEmergencyDisabled
	case EmergencyOnCooldown:
		return apperrors.Attr(domain.ErrEmergencyOnCooldown, "until", status.CooldownUntil)
	case EmergencyNoAttemptsLeft:
		return domain.ErrNoAttemptsLeft
	}

	s.EmergencyAttemptsUsed++
	if s.EmergencyAttemptsUsed >= p.Emergency.MaxAttempts {
		until := now.Add(time.Duration(p.Emergency.CooldownMinutes) * time.Minute)
		s.EmergencyCooldownUntil = &until
	}
	e.end(s, domain.EndEmergency)
	return nil
}
