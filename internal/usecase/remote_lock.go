package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	apperrors "github.com/eliteGoblin/focusd/focuslock/internal/errors"
	"github.com/eliteGoblin/focusd/focuslock/internal/token"
)

// ActivateRemoteLock engages remote lock on the active session. Once engaged,
// only a physical token or the emergency unlock can end the session.
func (e *SessionEngine) ActivateRemoteLock(ctx context.Context, activatedBy string) error {
	s, err := e.mutateActive(ctx, func(s *domain.Session) error {
		profile, err := e.profiles.GetProfile(ctx, s.ProfileID)
		if err != nil {
			return err
		}
		return e.lock(s, profile, activatedBy)
	})
	if err != nil {
		return err
	}
	e.logger.Info("remote lock activated",
		zap.String("session", s.ID),
		zap.String("by", activatedBy))
	return nil
}

// DeactivateRemoteLock lifts remote lock. It takes a resolved token match,
// which only token.Resolve can produce.
func (e *SessionEngine) DeactivateRemoteLock(ctx context.Context, m token.Match) error {
	if !m.Valid() {
		return domain.ErrTokenUnrecognized
	}
	s, err := e.mutateActive(ctx, func(s *domain.Session) error {
		if s.ProfileID != m.ProfileID() {
			return domain.ErrTokenUnrecognized
		}
		clearRemoteLock(s)
		return nil
	})
	if err != nil {
		return err
	}
	e.logger.Info("remote lock deactivated",
		zap.String("session", s.ID),
		zap.String("token", m.TokenID()))
	return nil
}

// IsRemoteLockActive reports whether the active session is remote-locked.
func (e *SessionEngine) IsRemoteLockActive(ctx context.Context) (bool, error) {
	s, err := e.sessions.Active(ctx)
	if apperrors.Is(err, domain.ErrNoActiveSession) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.IsRemoteLocked(), nil
}

// IsRemoteLockSupported reports whether a profile can be remote-locked.
func (e *SessionEngine) IsRemoteLockSupported(ctx context.Context, profileID string) (bool, error) {
	p, err := e.profiles.GetProfile(ctx, profileID)
	if err != nil {
		return false, err
	}
	return remoteLockSupported(p), nil
}

func remoteLockSupported(p *domain.Profile) bool {
	return p.RemoteLockEnabled && p.HasTokens()
}

func (e *SessionEngine) lock(s *domain.Session, p *domain.Profile, by string) error {
	if !remoteLockSupported(p) {
		return domain.ErrRemoteLockUnavailable
	}
	if s.IsRemoteLocked() {
		return nil
	}
	now := e.now()
	s.RemoteLockActivatedTime = &now
	s.RemoteLockActivatedBy = &by
	return nil
}

func clearRemoteLock(s *domain.Session) {
	s.RemoteLockActivatedTime = nil
	s.RemoteLockActivatedBy = nil
}
