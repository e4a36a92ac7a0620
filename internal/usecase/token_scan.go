package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	apperrors "github.com/eliteGoblin/focusd/focuslock/internal/errors"
	"github.com/eliteGoblin/focusd/focuslock/internal/token"
)

// TokenAction is what a scan did to the active session.
type TokenAction string

const (
	ActionEnded             TokenAction = "ended"
	ActionPaused            TokenAction = "paused"
	ActionResumed           TokenAction = "resumed"
	ActionEmergencyUnlocked TokenAction = "emergency_unlocked"
	ActionRemoteLocked      TokenAction = "remote_locked"
	ActionRemoteUnlocked    TokenAction = "remote_unlocked"
	ActionNone              TokenAction = "none"
	ActionStarted           TokenAction = "started"
)

// TokenOutcome describes the effect of a resolved scan.
type TokenOutcome struct {
	Mode      domain.TokenMode
	Action    TokenAction
	SessionID string
}

// ResolveToken applies a scan to the active session according to the matched token's mode.
func (e *SessionEngine) ResolveToken(ctx context.Context, scannedID string, source domain.TokenSource) (TokenOutcome, error) {
	var out TokenOutcome
	s, err := e.mutateActive(ctx, func(s *domain.Session) error {
		profile, err := e.profiles.GetProfile(ctx, s.ProfileID)
		if err != nil {
			return err
		}
		m, err := e.resolve(profile, scannedID, source)
		if err != nil {
			return err
		}
		out.Mode = m.Mode()

		switch m.Mode() {
		case domain.TokenUnlock:
			e.end(s, domain.EndToken)
			out.Action = ActionEnded
		case domain.TokenPause:
			if err := e.openPause(s, profile, 0); err != nil {
				return err
			}
			out.Action = ActionPaused
		case domain.TokenResume:
			if !s.IsPaused() {
				return domain.ErrNotPaused
			}
			closePause(s, e.now())
			out.Action = ActionResumed
		case domain.TokenEmergency:
			if err := e.emergencyUnlock(s, profile); err != nil {
				return err
			}
			out.Action = ActionEmergencyUnlocked
		case domain.TokenRemoteLockToggle:
			if s.IsRemoteLocked() {
				clearRemoteLock(s)
				out.Action = ActionRemoteUnlocked
				return nil
			}
			if err := e.lock(s, profile, "token:"+m.TokenID()); err != nil {
				return err
			}
			out.Action = ActionRemoteLocked
		default:
			// CUSTOM tokens are recognized but carry no built-in transition.
			out.Action = ActionNone
			return errNoChange
		}
		return nil
	})
	if apperrors.Is(err, errNoChange) {
		active, aerr := e.sessions.Active(ctx)
		if aerr == nil {
			out.SessionID = active.ID
		}
		return out, nil
	}
	if err != nil {
		return TokenOutcome{}, err
	}

	out.SessionID = s.ID
	e.logger.Info("token applied",
		zap.String("session", s.ID),
		zap.String("source", string(source)),
		zap.String("mode", string(out.Mode)),
		zap.String("action", string(out.Action)))
	return out, nil
}

// resolve matches a scan against profile. QR deep links are also tried by their trailing id.
func (e *SessionEngine) resolve(profile *domain.Profile, scannedID string, source domain.TokenSource) (token.Match, error) {
	m, err := token.Resolve(profile, scannedID)
	if err == nil || source != domain.SourceQR {
		return m, err
	}
	if id := token.ParseQR(scannedID, e.prefixes); id != scannedID {
		return token.Resolve(profile, id)
	}
	return m, err
}

// MatchToken resolves a scan against the active session's profile without
// applying it. The match can be passed to DeactivateRemoteLock.
func (e *SessionEngine) MatchToken(ctx context.Context, scannedID string, source domain.TokenSource) (token.Match, error) {
	s, err := e.sessions.Active(ctx)
	if err != nil {
		return token.Match{}, err
	}
	profile, err := e.profiles.GetProfile(ctx, s.ProfileID)
	if err != nil {
		return token.Match{}, err
	}
	return e.resolve(profile, scannedID, source)
}

// StartFromScan starts a session from a scan when none is active. The scan
// must be a profile deep link or match a token on exactly one profile whose
// strategy accepts the scan source.
func (e *SessionEngine) StartFromScan(ctx context.Context, scannedID string, source domain.TokenSource) (TokenOutcome, error) {
	if _, err := e.sessions.Active(ctx); err == nil {
		return TokenOutcome{}, domain.ErrSessionAlreadyActive
	} else if !apperrors.Is(err, domain.ErrNoActiveSession) {
		return TokenOutcome{}, err
	}

	profileID, err := e.profileForScan(ctx, scannedID, source)
	if err != nil {
		return TokenOutcome{}, err
	}

	id, err := e.StartSessionWith(ctx, profileID, StartOptions{TriggerData: scannedID})
	if err != nil {
		return TokenOutcome{}, err
	}
	return TokenOutcome{Action: ActionStarted, SessionID: id}, nil
}

func (e *SessionEngine) profileForScan(ctx context.Context, scannedID string, source domain.TokenSource) (string, error) {
	if source == domain.SourceQR && token.IsDeepLink(scannedID, e.prefixes) {
		return token.ParseQR(scannedID, e.prefixes), nil
	}

	profiles, err := e.profiles.ListProfiles(ctx)
	if err != nil {
		return "", err
	}

	var candidates []string
	for _, p := range profiles {
		if !p.Strategy().Accepts(source) {
			continue
		}
		if _, err := e.resolve(p, scannedID, source); err == nil {
			candidates = append(candidates, p.ID)
		}
	}

	switch len(candidates) {
	case 0:
		return "", domain.ErrTokenUnrecognized
	case 1:
		return candidates[0], nil
	default:
		return "", apperrors.Attr(
			apperrors.Errorf(apperrors.KindConflict, "token registered on %d profiles", len(candidates)),
			"profiles", candidates)
	}
}
