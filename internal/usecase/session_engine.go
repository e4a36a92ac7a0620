// Package usecase contains application business logic.
package usecase

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	apperrors "github.com/eliteGoblin/focusd/focuslock/internal/errors"
	"github.com/eliteGoblin/focusd/focuslock/internal/token"
)

// SnapshotPublisher receives every snapshot the engine derives.
// Implementation: broadcast.Hub.
type SnapshotPublisher interface {
	Publish(s domain.Snapshot) bool
}

// StartOptions carries optional inputs to StartSessionWith.
type StartOptions struct {
	// TriggerData is the scanned token id or QR payload that started the session.
	TriggerData string
	// Timer overrides the profile's default timer. Zero means none.
	Timer time.Duration
}

// SessionEngine owns the session lifecycle. At most one session is active
// at any time; mutations of the active session run under a per-session lock
// and re-read the session inside it.
type SessionEngine struct {
	profiles  domain.ProfileRepository
	sessions  domain.SessionRepository
	publisher SnapshotPublisher
	clock     domain.Clock
	notifier  domain.Notifier
	logger    *zap.Logger

	newID    func() string
	prefixes []string

	startMu sync.Mutex
	locks   *keyedMutex
}

// EngineOption customizes a SessionEngine.
type EngineOption func(*SessionEngine)

// WithIDGenerator replaces uuid-based session ids.
func WithIDGenerator(fn func() string) EngineOption {
	return func(e *SessionEngine) { e.newID = fn }
}

// WithDeepLinkPrefixes sets the QR deep-link prefixes recognized by scans.
func WithDeepLinkPrefixes(prefixes []string) EngineOption {
	return func(e *SessionEngine) { e.prefixes = prefixes }
}

// NewSessionEngine creates a session engine.
func NewSessionEngine(
	profiles domain.ProfileRepository,
	sessions domain.SessionRepository,
	publisher SnapshotPublisher,
	clock domain.Clock,
	notifier domain.Notifier,
	logger *zap.Logger,
	opts ...EngineOption,
) *SessionEngine {
	e := &SessionEngine{
		profiles:  profiles,
		sessions:  sessions,
		publisher: publisher,
		clock:     clock,
		notifier:  notifier,
		logger:    logger,
		newID:     uuid.NewString,
		prefixes:  token.DefaultPrefixes,
		locks:     newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// now returns the clock time truncated to the millisecond precision sessions are stored with.
func (e *SessionEngine) now() time.Time {
	return e.clock.Now().Truncate(time.Millisecond)
}

// StartSession starts a session for profileID and returns its id.
func (e *SessionEngine) StartSession(ctx context.Context, profileID string) (string, error) {
	return e.StartSessionWith(ctx, profileID, StartOptions{})
}

// StartSessionWith starts a session carrying a start trigger and an optional timer.
func (e *SessionEngine) StartSessionWith(ctx context.Context, profileID string, opts StartOptions) (string, error) {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	if _, err := e.sessions.Active(ctx); err == nil {
		return "", domain.ErrSessionAlreadyActive
	} else if !apperrors.Is(err, domain.ErrNoActiveSession) {
		return "", err
	}

	profile, err := e.profiles.GetProfile(ctx, profileID)
	if err != nil {
		return "", err
	}

	timer, err := sessionTimer(profile, opts.Timer)
	if err != nil {
		return "", err
	}

	now := e.now()
	s := &domain.Session{
		ID:                 e.newID(),
		ProfileID:          profile.ID,
		StartTime:          now,
		StrategyID:         profile.StrategyID,
		StrategyStartData:  opts.TriggerData,
		BlockedApps:        append([]string(nil), profile.BlockedApps...),
		BlockedDomains:     append([]string(nil), profile.BlockedDomains...),
		WebBlockingEnabled: profile.WebBlockingEnabled,
		TimerDuration:      timer,
	}

	latest, err := e.sessions.LatestByProfile(ctx, profile.ID)
	if err != nil {
		return "", err
	}
	if latest != nil && latest.EmergencyCooldownUntil != nil && latest.EmergencyCooldownUntil.After(now) {
		until := *latest.EmergencyCooldownUntil
		s.EmergencyCooldownUntil = &until
	}

	if err := e.sessions.CreateIfNoneActive(ctx, s); err != nil {
		return "", err
	}

	e.publish(s)
	e.notifier.Notify(ctx, "Focus session started", profile.Name)
	e.logger.Info("session started",
		zap.String("session", s.ID),
		zap.String("profile", profile.ID),
		zap.String("strategy", s.StrategyID),
		zap.Int("apps", len(s.BlockedApps)),
		zap.Int("domains", len(s.BlockedDomains)))
	return s.ID, nil
}

// sessionTimer picks the timer for a new session. Timer strategies must end up with one.
func sessionTimer(p *domain.Profile, override time.Duration) (*time.Duration, error) {
	if override > 0 {
		return &override, nil
	}
	if !p.Strategy().RequiresTimer {
		return nil, nil
	}
	minutes, err := strconv.Atoi(strings.TrimSpace(p.StrategyData))
	if err != nil || minutes <= 0 {
		return nil, apperrors.Errorf(apperrors.KindValidation,
			"strategy %q requires a timer: pass one or set the profile's default minutes", p.StrategyID)
	}
	d := time.Duration(minutes) * time.Minute
	return &d, nil
}

// StopSession ends the active session unless remote lock is engaged.
func (e *SessionEngine) StopSession(ctx context.Context) error {
	_, err := e.mutateActive(ctx, func(s *domain.Session) error {
		if s.IsRemoteLocked() {
			return domain.ErrRemoteLockActive
		}
		e.end(s, domain.EndManual)
		return nil
	})
	return err
}

// StartBreak opens a break of the given length. minutes <= 0 uses the profile's break length.
// Remote lock stays engaged across the break.
func (e *SessionEngine) StartBreak(ctx context.Context, minutes int) error {
	_, err := e.mutateActive(ctx, func(s *domain.Session) error {
		profile, err := e.profiles.GetProfile(ctx, s.ProfileID)
		if err != nil {
			return err
		}
		if !profile.BreaksEnabled {
			return domain.ErrBreaksDisabled
		}
		return e.openPause(s, profile, minutes)
	})
	return err
}

// EndBreak closes the open break and resumes blocking.
func (e *SessionEngine) EndBreak(ctx context.Context) error {
	_, err := e.mutateActive(ctx, func(s *domain.Session) error {
		if !s.IsPaused() {
			return domain.ErrNotPaused
		}
		closePause(s, e.now())
		return nil
	})
	return err
}

// ExpireBreak closes the open break once its end time has passed.
// It reports whether a break was closed.
func (e *SessionEngine) ExpireBreak(ctx context.Context) (bool, error) {
	s, err := e.mutateActive(ctx, func(s *domain.Session) error {
		if !s.IsPaused() || s.BreakEndsAt == nil || e.now().Before(*s.BreakEndsAt) {
			return errNoChange
		}
		closePause(s, e.now())
		return nil
	})
	if apperrors.Is(err, errNoChange) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	e.logger.Info("break ended", zap.String("session", s.ID))
	return true, nil
}

// ExpireTimer ends a timed session whose active duration reached its timer.
// It reports whether the session was ended. Remote lock holds the session open.
func (e *SessionEngine) ExpireTimer(ctx context.Context) (bool, error) {
	_, err := e.mutateActive(ctx, func(s *domain.Session) error {
		if !s.TimerExpired(e.now()) {
			return errNoChange
		}
		if s.IsRemoteLocked() {
			return domain.ErrRemoteLockActive
		}
		e.end(s, domain.EndTimer)
		return nil
	})
	if apperrors.Is(err, errNoChange) {
		return false, nil
	}
	return err == nil, err
}

// ActiveSession returns the active session or ErrNoActiveSession.
func (e *SessionEngine) ActiveSession(ctx context.Context) (*domain.Session, error) {
	return e.sessions.Active(ctx)
}

// Snapshot derives the blocked-traffic snapshot from the stored active session.
func (e *SessionEngine) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	s, err := e.sessions.Active(ctx)
	if apperrors.Is(err, domain.ErrNoActiveSession) {
		return domain.Snapshot{}, nil
	}
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.SnapshotFor(s), nil
}

// Resync republishes the snapshot from the store. Another process may have
// changed the active session; an unchanged snapshot is not re-delivered.
func (e *SessionEngine) Resync(ctx context.Context) (bool, error) {
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	return e.publisher.Publish(snap), nil
}

// PurgeProfile deletes a profile together with all of its sessions.
func (e *SessionEngine) PurgeProfile(ctx context.Context, profileID string) error {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	if _, err := e.profiles.GetProfile(ctx, profileID); err != nil {
		return err
	}
	active, err := e.sessions.Active(ctx)
	if err != nil && !apperrors.Is(err, domain.ErrNoActiveSession) {
		return err
	}
	if active != nil && active.ProfileID == profileID {
		return domain.ErrProfileInUse
	}

	if err := e.sessions.DeleteByProfile(ctx, profileID); err != nil {
		return err
	}
	if err := e.profiles.DeleteProfile(ctx, profileID); err != nil {
		return err
	}
	e.logger.Info("profile purged", zap.String("profile", profileID))
	return nil
}

// errNoChange aborts a mutation without persisting anything.
var errNoChange = apperrors.New(apperrors.KindInvalidState, "no change")

// maxWriteAttempts bounds how often mutateActive re-reads after another
// process wrote the session first.
const maxWriteAttempts = 3

// mutateActive applies fn to a copy of the active session under its lock,
// then persists and publishes the result. fn errors leave the store untouched.
// The lock only covers this process; a write from another process since the
// read is detected by the store and the mutation is replayed on fresh state.
func (e *SessionEngine) mutateActive(ctx context.Context, fn func(s *domain.Session) error) (*domain.Session, error) {
	active, err := e.sessions.Active(ctx)
	if err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(active.ID)
	defer unlock()

	for attempt := 1; ; attempt++ {
		next, err := e.applyOnce(ctx, active.ID, fn)
		if apperrors.Is(err, domain.ErrSessionModified) && attempt < maxWriteAttempts {
			e.logger.Debug("session changed underneath, retrying",
				zap.String("session", active.ID), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, err
		}

		e.publish(next)
		if !next.IsActive() {
			e.sessionEnded(ctx, next)
		}
		return next, nil
	}
}

func (e *SessionEngine) applyOnce(ctx context.Context, id string, fn func(s *domain.Session) error) (*domain.Session, error) {
	current, err := e.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.IsActive() {
		return nil, domain.ErrNoActiveSession
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := e.sessions.UpdateSession(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}

func (e *SessionEngine) publish(s *domain.Session) {
	e.publisher.Publish(domain.SnapshotFor(s))
}

func (e *SessionEngine) end(s *domain.Session, reason domain.EndReason) {
	now := e.now()
	closePause(s, now)
	s.EndTime = &now
	s.EndReason = reason
	clearRemoteLock(s)
}

func (e *SessionEngine) sessionEnded(ctx context.Context, s *domain.Session) {
	active := s.TotalActiveDuration(*s.EndTime)
	e.notifier.Notify(ctx, "Focus session ended", "Focused for "+FormatDuration(active))
	e.logger.Info("session ended",
		zap.String("session", s.ID),
		zap.String("reason", string(s.EndReason)),
		zap.Duration("active", active))
}

func (e *SessionEngine) openPause(s *domain.Session, p *domain.Profile, minutes int) error {
	if s.IsPaused() {
		return domain.ErrAlreadyPaused
	}
	if minutes <= 0 {
		minutes = p.EffectiveBreakMinutes()
	}
	now := e.now()
	ends := now.Add(time.Duration(minutes) * time.Minute)
	s.PauseStartedAt = &now
	s.BreakEndsAt = &ends
	return nil
}

func closePause(s *domain.Session, now time.Time) {
	if s.PauseStartedAt == nil {
		return
	}
	s.PausedDurations = append(s.PausedDurations, domain.PausedDuration{
		StartTime: s.PauseStartedAt.UnixMilli(),
		EndTime:   now.UnixMilli(),
	})
	s.PauseStartedAt = nil
	s.BreakEndsAt = nil
}
