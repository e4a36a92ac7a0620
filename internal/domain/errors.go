package domain

import (
	apperrors "github.com/eliteGoblin/focusd/focuslock/internal/errors"
)

// Sentinel errors returned by the session engine and stores.
var (
	ErrProfileNotFound = apperrors.New(apperrors.KindNotFound, "profile not found")
	ErrSessionNotFound = apperrors.New(apperrors.KindNotFound, "session not found")
	ErrNoActiveSession = apperrors.New(apperrors.KindNotFound, "no active session")

	ErrSessionAlreadyActive = apperrors.New(apperrors.KindConflict, "session already active")
	ErrRemoteLockActive     = apperrors.New(apperrors.KindConflict, "remote lock active")
	ErrSessionModified      = apperrors.New(apperrors.KindConflict, "session modified concurrently")

	ErrTokenUnrecognized     = apperrors.New(apperrors.KindInvalidState, "token unrecognized")
	ErrNoAttemptsLeft        = apperrors.New(apperrors.KindInvalidState, "no emergency attempts left")
	ErrEmergencyOnCooldown   = apperrors.New(apperrors.KindInvalidState, "emergency unlock on cooldown")
	ErrEmergencyDisabled     = apperrors.New(apperrors.KindInvalidState, "emergency unlock disabled")
	ErrRemoteLockUnavailable = apperrors.New(apperrors.KindInvalidState, "remote lock not supported by profile")
	ErrBreaksDisabled        = apperrors.New(apperrors.KindInvalidState, "breaks disabled for profile")
	ErrAlreadyPaused         = apperrors.New(apperrors.KindInvalidState, "session already paused")
	ErrNotPaused             = apperrors.New(apperrors.KindInvalidState, "session not paused")
	ErrProfileInUse          = apperrors.New(apperrors.KindInvalidState, "profile owns the active session")

	ErrInterfaceUnavailable = apperrors.New(apperrors.KindUnavailable, "virtual interface unavailable")
)
