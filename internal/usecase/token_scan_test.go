package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	apperrors "github.com/eliteGoblin/focusd/focuslock/internal/errors"
	"github.com/eliteGoblin/focusd/focuslock/internal/token"
)

func TestCheckEmergency_Order(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)

	tests := []struct {
		name    string
		session domain.Session
		profile domain.Profile
		want    EmergencyStatus
	}{
		{
			name:    "disabled wins over cooldown",
			session: domain.Session{EmergencyCooldownUntil: &later},
			profile: domain.Profile{Emergency: domain.EmergencySettings{MaxAttempts: 3}},
			want:    EmergencyStatus{State: EmergencyDisabled},
		},
		{
			name:    "cooldown wins over exhausted attempts",
			session: domain.Session{EmergencyCooldownUntil: &later, EmergencyAttemptsUsed: 3},
			profile: domain.Profile{Emergency: domain.EmergencySettings{Enabled: true, MaxAttempts: 3}},
			want:    EmergencyStatus{State: EmergencyOnCooldown, CooldownUntil: later},
		},
		{
			name:    "expired cooldown is ignored",
			session: domain.Session{EmergencyCooldownUntil: &now, EmergencyAttemptsUsed: 1},
			profile: domain.Profile{Emergency: domain.EmergencySettings{Enabled: true, MaxAttempts: 3}},
			want:    EmergencyStatus{State: EmergencyAvailable, Remaining: 2, Max: 3},
		},
		{
			name:    "no attempts left",
			session: domain.Session{EmergencyAttemptsUsed: 2},
			profile: domain.Profile{Emergency: domain.EmergencySettings{Enabled: true, MaxAttempts: 2}},
			want:    EmergencyStatus{State: EmergencyNoAttemptsLeft},
		},
		{
			name:    "zero max attempts",
			profile: domain.Profile{Emergency: domain.EmergencySettings{Enabled: true}},
			want:    EmergencyStatus{State: EmergencyNoAttemptsLeft},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, emergencyStatus(&tt.session, &tt.profile, now))
		})
	}
}

func TestUseEmergencyUnlock(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.addProfile(t, socialProfile())

	status, err := f.engine.CheckEmergency(ctx)
	require.NoError(t, err)
	assert.Equal(t, EmergencyNoActiveSession, status.State)
	assert.ErrorIs(t, f.engine.UseEmergencyUnlock(ctx), domain.ErrNoActiveSession)

	id, err := f.engine.StartSession(ctx, "social")
	require.NoError(t, err)
	require.NoError(t, f.engine.ActivateRemoteLock(ctx, "cli"))

	status, err = f.engine.CheckEmergency(ctx)
	require.NoError(t, err)
	assert.Equal(t, EmergencyStatus{State: EmergencyAvailable, Remaining: 1, Max: 1}, status)

	require.NoError(t, f.engine.UseEmergencyUnlock(ctx))
	assert.True(t, f.hub.Current().IsEmpty())

	ended, err := f.store.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.EndEmergency, ended.EndReason)
	assert.Equal(t, 1, ended.EmergencyAttemptsUsed)
	assert.False(t, ended.IsRemoteLocked(), "emergency unlock clears remote lock")
	require.NotNil(t, ended.EmergencyCooldownUntil)
	assert.Equal(t, f.clock.Now().Add(time.Hour), *ended.EmergencyCooldownUntil)

	// The next session of the profile inherits the cooldown.
	f.clock.Advance(10 * time.Minute)
	_, err = f.engine.StartSession(ctx, "social")
	require.NoError(t, err)

	status, err = f.engine.CheckEmergency(ctx)
	require.NoError(t, err)
	assert.Equal(t, EmergencyOnCooldown, status.State)

	err = f.engine.UseEmergencyUnlock(ctx)
	assert.ErrorIs(t, err, domain.ErrEmergencyOnCooldown)
	assert.Equal(t, apperrors.KindInvalidState, apperrors.GetKind(err))
	assert.Contains(t, apperrors.GetAttributes(err), "until")

	// After the cooldown the attempts are available again.
	f.clock.Advance(time.Hour)
	status, err = f.engine.CheckEmergency(ctx)
	require.NoError(t, err)
	assert.Equal(t, EmergencyAvailable, status.State)
}

func TestUseEmergencyUnlock_AttemptsBelowMax(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	p := socialProfile()
	p.Emergency = domain.EmergencySettings{Enabled: true, MaxAttempts: 2, CooldownMinutes: 10}
	f.addProfile(t, p)

	first, err := f.engine.StartSession(ctx, "social")
	require.NoError(t, err)
	status, err := f.engine.CheckEmergency(ctx)
	require.NoError(t, err)
	assert.Equal(t, EmergencyStatus{State: EmergencyAvailable, Remaining: 2, Max: 2}, status)

	require.NoError(t, f.engine.UseEmergencyUnlock(ctx))
	ended, err := f.store.GetSession(ctx, first)
	require.NoError(t, err)
	assert.False(t, ended.IsActive())
	assert.Equal(t, domain.EndEmergency, ended.EndReason)
	assert.Equal(t, 1, ended.EmergencyAttemptsUsed)
	assert.Nil(t, ended.EmergencyCooldownUntil, "cooldown starts only at the last attempt")

	// Attempts are counted per session, and there is no cooldown to inherit.
	f.clock.Advance(time.Minute)
	second, err := f.engine.StartSession(ctx, "social")
	require.NoError(t, err)
	status, err = f.engine.CheckEmergency(ctx)
	require.NoError(t, err)
	assert.Equal(t, EmergencyStatus{State: EmergencyAvailable, Remaining: 2, Max: 2}, status)

	require.NoError(t, f.engine.UseEmergencyUnlock(ctx))
	ended, err = f.store.GetSession(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 1, ended.EmergencyAttemptsUsed)
	assert.Nil(t, ended.EmergencyCooldownUntil)
}

func TestUseEmergencyUnlock_Disabled(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	p := socialProfile()
	p.Emergency.Enabled = false
	f.addProfile(t, p)

	_, err := f.engine.StartSession(ctx, "social")
	require.NoError(t, err)
	assert.ErrorIs(t, f.engine.UseEmergencyUnlock(ctx), domain.ErrEmergencyDisabled)

	_, err = f.engine.ActiveSession(ctx)
	assert.NoError(t, err, "refused unlock leaves the session running")
}

func TestEmergencyScan_ConcurrentOnlyOneSucceeds(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	p := socialProfile()
	p.Emergency.MaxAttempts = 5
	f.addProfile(t, p)

	id, err := f.engine.StartSession(ctx, "social")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var ok atomic.Int32
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			out, err := f.engine.ResolveToken(ctx, "SOS1", domain.SourceNFC)
			if err == nil {
				assert.Equal(t, ActionEmergencyUnlocked, out.Action)
				ok.Add(1)
				return
			}
			assert.ErrorIs(t, err, domain.ErrNoActiveSession)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	s, err := f.store.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, s.EmergencyAttemptsUsed)
}

func TestRemoteLock(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.addProfile(t, socialProfile())
	f.addProfile(t, &domain.Profile{ID: "plain", Name: "Plain", RemoteLockEnabled: true})

	supported, err := f.engine.IsRemoteLockSupported(ctx, "plain")
	require.NoError(t, err)
	assert.False(t, supported, "no tokens means no way back out")

	_, err = f.engine.StartSession(ctx, "plain")
	require.NoError(t, err)
	assert.ErrorIs(t, f.engine.ActivateRemoteLock(ctx, "cli"), domain.ErrRemoteLockUnavailable)
	require.NoError(t, f.engine.StopSession(ctx))

	_, err = f.engine.StartSession(ctx, "social")
	require.NoError(t, err)
	require.NoError(t, f.engine.ActivateRemoteLock(ctx, "cli"))

	locked, err := f.engine.IsRemoteLockActive(ctx)
	require.NoError(t, err)
	assert.True(t, locked)

	s, err := f.engine.ActiveSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, s.RemoteLockActivatedBy)
	assert.Equal(t, "cli", *s.RemoteLockActivatedBy)

	assert.ErrorIs(t, f.engine.StopSession(ctx), domain.ErrRemoteLockActive)
	require.NoError(t, f.engine.StartBreak(ctx, 5))
	require.NoError(t, f.engine.EndBreak(ctx))
	locked, err = f.engine.IsRemoteLockActive(ctx)
	require.NoError(t, err)
	assert.True(t, locked, "a break keeps the lock")
	assert.ErrorIs(t, f.engine.DeactivateRemoteLock(ctx, token.Match{}), domain.ErrTokenUnrecognized)

	// A token from another profile cannot lift the lock.
	other, err := token.Resolve(&domain.Profile{ID: "other", Tokens: []domain.PhysicalToken{{TokenID: "X", Mode: domain.TokenUnlock}}}, "X")
	require.NoError(t, err)
	assert.ErrorIs(t, f.engine.DeactivateRemoteLock(ctx, other), domain.ErrTokenUnrecognized)

	m, err := f.engine.MatchToken(ctx, "UNLOCK1", domain.SourceNFC)
	require.NoError(t, err)
	require.NoError(t, f.engine.DeactivateRemoteLock(ctx, m))

	locked, err = f.engine.IsRemoteLockActive(ctx)
	require.NoError(t, err)
	assert.False(t, locked)
	require.NoError(t, f.engine.StopSession(ctx))
}

func TestResolveToken_Modes(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.addProfile(t, socialProfile())

	_, err := f.engine.ResolveToken(ctx, "UNLOCK1", domain.SourceNFC)
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)

	id, err := f.engine.StartSession(ctx, "social")
	require.NoError(t, err)

	_, err = f.engine.ResolveToken(ctx, "NOPE", domain.SourceNFC)
	assert.ErrorIs(t, err, domain.ErrTokenUnrecognized)
	assert.Equal(t, apperrors.KindInvalidState, apperrors.GetKind(err))

	steps := []struct {
		scan   string
		action TokenAction
		err    error
	}{
		{"RESUME1", "", domain.ErrNotPaused},
		{"PAUSE1", ActionPaused, nil},
		{"PAUSE1", "", domain.ErrAlreadyPaused},
		{"RESUME1", ActionResumed, nil},
		{"CUSTOM1", ActionNone, nil},
		{"LOCK1", ActionRemoteLocked, nil},
		{"LOCK1", ActionRemoteUnlocked, nil},
		{"LOCK1", ActionRemoteLocked, nil},
		{"UNLOCK1", ActionEnded, nil}, // unlock ends even while remote-locked
	}
	for _, st := range steps {
		out, err := f.engine.ResolveToken(ctx, st.scan, domain.SourceNFC)
		if st.err != nil {
			assert.ErrorIs(t, err, st.err, st.scan)
			continue
		}
		require.NoError(t, err, st.scan)
		assert.Equal(t, st.action, out.Action, st.scan)
		assert.Equal(t, id, out.SessionID, st.scan)
	}

	s, err := f.store.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.EndToken, s.EndReason)
	assert.False(t, s.IsRemoteLocked())
	assert.Len(t, s.PausedDurations, 1)
}

func TestResolveToken_QRDeepLink(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	p := socialProfile()
	p.StrategyID = domain.StrategyQR
	p.Tokens = []domain.PhysicalToken{{TokenID: "desk-code", Mode: domain.TokenUnlock}}
	f.addProfile(t, p)

	_, err := f.engine.StartSession(ctx, "social")
	require.NoError(t, err)

	out, err := f.engine.ResolveToken(ctx, "foqos://profile/desk-code", domain.SourceQR)
	require.NoError(t, err)
	assert.Equal(t, ActionEnded, out.Action)
}

func TestStartFromScan(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(t)
	f.addProfile(t, socialProfile())
	f.addProfile(t, &domain.Profile{
		ID:         "manual",
		Name:       "Manual",
		StrategyID: domain.StrategyManual,
		Tokens:     []domain.PhysicalToken{{TokenID: "UNLOCK1", Mode: domain.TokenUnlock}},
	})
	f.addProfile(t, &domain.Profile{
		ID:         "qr",
		Name:       "QR",
		StrategyID: domain.StrategyQRManual,
		Tokens:     []domain.PhysicalToken{{TokenID: "shared", Mode: domain.TokenUnlock}},
	})
	f.addProfile(t, &domain.Profile{
		ID:         "qr2",
		Name:       "QR 2",
		StrategyID: domain.StrategyQR,
		Tokens:     []domain.PhysicalToken{{TokenID: "shared", Mode: domain.TokenUnlock}},
	})

	_, err := f.engine.StartFromScan(ctx, "UNKNOWN", domain.SourceNFC)
	assert.ErrorIs(t, err, domain.ErrTokenUnrecognized)

	// Only the NFC profile counts; the manual profile's strategy takes no token.
	out, err := f.engine.StartFromScan(ctx, "UNLOCK1", domain.SourceNFC)
	require.NoError(t, err)
	assert.Equal(t, ActionStarted, out.Action)

	s, err := f.engine.ActiveSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "social", s.ProfileID)
	assert.Equal(t, "UNLOCK1", s.StrategyStartData)

	_, err = f.engine.StartFromScan(ctx, "UNLOCK1", domain.SourceNFC)
	assert.ErrorIs(t, err, domain.ErrSessionAlreadyActive)
	_, err = f.engine.ResolveToken(ctx, "UNLOCK1", domain.SourceNFC)
	require.NoError(t, err)

	_, err = f.engine.StartFromScan(ctx, "shared", domain.SourceQR)
	assert.Equal(t, apperrors.KindConflict, apperrors.GetKind(err))

	out, err = f.engine.StartFromScan(ctx, token.ProfileLink("qr2"), domain.SourceQR)
	require.NoError(t, err)
	s, err = f.engine.ActiveSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "qr2", s.ProfileID)
	assert.Equal(t, out.SessionID, s.ID)
}
