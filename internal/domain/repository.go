package domain

import (
	"context"
	"time"
)

// ProfileRepository stores blocking profiles.
// Implementations: infra.EncryptedStore (SQLCipher), infra.MemoryStore.
type ProfileRepository interface {
	// SaveProfile creates or replaces a profile. The profile is validated first.
	SaveProfile(ctx context.Context, p *Profile) error

	// GetProfile returns ErrProfileNotFound for unknown ids.
	GetProfile(ctx context.Context, id string) (*Profile, error)

	// ListProfiles returns all profiles ordered by name.
	ListProfiles(ctx context.Context) ([]*Profile, error)

	// DeleteProfile removes a profile. Sessions are removed by SessionRepository.DeleteByProfile.
	DeleteProfile(ctx context.Context, id string) error
}

// SessionRepository stores sessions and guards the single-active invariant.
type SessionRepository interface {
	// CreateIfNoneActive atomically inserts s unless an active session exists,
	// in which case it returns ErrSessionAlreadyActive.
	CreateIfNoneActive(ctx context.Context, s *Session) error

	// Active returns the active session or ErrNoActiveSession.
	Active(ctx context.Context) (*Session, error)

	// GetSession returns ErrSessionNotFound for unknown ids.
	GetSession(ctx context.Context, id string) (*Session, error)

	// UpdateSession persists every mutable field of s and bumps s.Version.
	// It returns ErrSessionModified when the stored version is no longer
	// s.Version.
	UpdateSession(ctx context.Context, s *Session) error

	// LatestByProfile returns the most recently started session of a profile, or nil.
	LatestByProfile(ctx context.Context, profileID string) (*Session, error)

	// ListSessions returns sessions started at or after since, newest first.
	ListSessions(ctx context.Context, since time.Time) ([]*Session, error)

	// DeleteByProfile removes every session of a profile.
	DeleteByProfile(ctx context.Context, profileID string) error
}

// BlockRecorder persists packets dropped by the traffic filter.
type BlockRecorder interface {
	RecordBlock(ctx context.Context, ev BlockEvent) error
}

// BlockEventRepository adds read access to recorded blocks.
type BlockEventRepository interface {
	BlockRecorder

	// CountBlocks returns the number of recorded blocks per domain since the given time.
	CountBlocks(ctx context.Context, since time.Time) (map[string]int, error)
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// FindByName returns PIDs of processes matching the pattern.
	FindByName(pattern string) ([]int, error)

	// Kill terminates a process by PID (SIGKILL).
	Kill(pid int) error

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// KeyProvider abstracts the source of the store encryption key.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}

// Clock is the engine's time source.
type Clock interface {
	Now() time.Time
}

// Notifier surfaces session events to the user.
type Notifier interface {
	Notify(ctx context.Context, title, message string)
}

// EnforcementResult holds the outcome of one app enforcement pass.
type EnforcementResult struct {
	KilledPIDs []int
	Errors     []error
	ExecutedAt time.Time
	DurationMs int64
}
