// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no infrastructure dependencies.
package domain

import (
	"time"
)

// TokenMode is the action bound to a physical token.
type TokenMode string

const (
	TokenUnlock           TokenMode = "UNLOCK"
	TokenPause            TokenMode = "PAUSE"
	TokenResume           TokenMode = "RESUME"
	TokenEmergency        TokenMode = "EMERGENCY"
	TokenRemoteLockToggle TokenMode = "REMOTE_LOCK_TOGGLE"
	TokenCustom           TokenMode = "CUSTOM"
)

// Valid reports whether m is one of the known modes.
func (m TokenMode) Valid() bool {
	switch m {
	case TokenUnlock, TokenPause, TokenResume, TokenEmergency, TokenRemoteLockToggle, TokenCustom:
		return true
	}
	return false
}

// TokenSource identifies the hardware a scan came from.
type TokenSource string

const (
	SourceNFC TokenSource = "nfc"
	SourceQR  TokenSource = "qr"
)

// EndReason records why a session ended.
type EndReason string

const (
	EndManual    EndReason = "manual"
	EndToken     EndReason = "token"
	EndEmergency EndReason = "emergency"
	EndTimer     EndReason = "timer"
)

// PhysicalToken is an NFC tag or QR payload registered on a profile.
type PhysicalToken struct {
	TokenID string    `json:"tokenId"`
	Mode    TokenMode `json:"mode"`
	Label   string    `json:"label,omitempty"` // e.g. "Desk Tag"
}

// EmergencySettings controls the emergency unlock bypass.
type EmergencySettings struct {
	Enabled         bool `json:"enabled"`
	MaxAttempts     int  `json:"maxAttempts"`
	CooldownMinutes int  `json:"cooldownMinutes"`
}

// Profile is a named, reusable blocking configuration.
type Profile struct {
	ID                 string
	Name               string
	BlockedApps        []string
	BlockedDomains     []string
	StrategyID         string
	StrategyData       string // strategy specific, e.g. default timer minutes
	BreaksEnabled      bool
	BreakMinutes       int
	StrictMode         bool
	AllowMode          bool
	WebBlockingEnabled bool
	Tokens             []PhysicalToken
	Emergency          EmergencySettings
	RemoteLockEnabled  bool
	Schedule           *Schedule
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Strategy returns the blocking strategy referenced by the profile.
func (p *Profile) Strategy() BlockingStrategy {
	return StrategyByID(p.StrategyID)
}

// HasTokens reports whether any physical token is configured.
func (p *Profile) HasTokens() bool {
	return len(p.Tokens) > 0
}

// PausedDuration is one closed break interval, stored as millisecond epochs.
type PausedDuration struct {
	StartTime int64 `json:"startTime"`
	EndTime   int64 `json:"endTime"`
}

// Duration returns the length of the interval.
func (d PausedDuration) Duration() time.Duration {
	return time.Duration(d.EndTime-d.StartTime) * time.Millisecond
}

// Session is one commitment instance. EndTime == nil means the session is active.
type Session struct {
	ID                 string
	ProfileID          string
	StartTime          time.Time
	EndTime            *time.Time
	EndReason          EndReason
	PausedDurations    []PausedDuration
	PauseStartedAt     *time.Time // open break, not yet in PausedDurations
	BreakEndsAt        *time.Time
	StrategyID         string
	StrategyStartData  string // scanned token id or QR payload used to start
	BlockedApps        []string
	BlockedDomains     []string
	WebBlockingEnabled bool
	TimerDuration      *time.Duration

	EmergencyAttemptsUsed  int
	EmergencyCooldownUntil *time.Time

	RemoteLockActivatedTime *time.Time
	RemoteLockActivatedBy   *string

	// Version counts stored writes. UpdateSession only applies to the
	// version the session was read at.
	Version int64
}

// IsActive reports whether the session has not ended.
func (s *Session) IsActive() bool {
	return s.EndTime == nil
}

// IsPaused reports whether a break is currently open.
func (s *Session) IsPaused() bool {
	return s.PauseStartedAt != nil
}

// IsRemoteLocked reports whether remote lock is engaged.
func (s *Session) IsRemoteLocked() bool {
	return s.RemoteLockActivatedTime != nil
}

// TotalActiveDuration is elapsed time minus every break, including an open one.
func (s *Session) TotalActiveDuration(now time.Time) time.Duration {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}

	total := end.Sub(s.StartTime)
	for _, p := range s.PausedDurations {
		total -= p.Duration()
	}
	if s.PauseStartedAt != nil && s.EndTime == nil {
		total -= now.Sub(*s.PauseStartedAt)
	}
	if total < 0 {
		return 0
	}
	return total
}

// TimerExpired reports whether a timed session has used up its active time.
func (s *Session) TimerExpired(now time.Time) bool {
	if s.TimerDuration == nil || !s.IsActive() {
		return false
	}
	return s.TotalActiveDuration(now) >= *s.TimerDuration
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (s *Session) Clone() *Session {
	c := *s
	c.EndTime = cloneTime(s.EndTime)
	c.PauseStartedAt = cloneTime(s.PauseStartedAt)
	c.BreakEndsAt = cloneTime(s.BreakEndsAt)
	c.EmergencyCooldownUntil = cloneTime(s.EmergencyCooldownUntil)
	c.RemoteLockActivatedTime = cloneTime(s.RemoteLockActivatedTime)
	if s.RemoteLockActivatedBy != nil {
		by := *s.RemoteLockActivatedBy
		c.RemoteLockActivatedBy = &by
	}
	if s.TimerDuration != nil {
		d := *s.TimerDuration
		c.TimerDuration = &d
	}
	c.PausedDurations = append([]PausedDuration(nil), s.PausedDurations...)
	c.BlockedApps = append([]string(nil), s.BlockedApps...)
	c.BlockedDomains = append([]string(nil), s.BlockedDomains...)
	return &c
}

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	c := *p
	c.BlockedApps = append([]string(nil), p.BlockedApps...)
	c.BlockedDomains = append([]string(nil), p.BlockedDomains...)
	c.Tokens = append([]PhysicalToken(nil), p.Tokens...)
	if p.Schedule != nil {
		sc := *p.Schedule
		sc.Days = append([]time.Weekday(nil), p.Schedule.Days...)
		c.Schedule = &sc
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// BlockEvent is a single dropped packet recorded by the traffic filter.
type BlockEvent struct {
	Domain string // blocked entry that matched
	Name   string // queried name or SNI as seen on the wire
	Layer  string // "dns" or "tls"
	DestIP string
	At     time.Time
}
