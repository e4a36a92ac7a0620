package infra

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

// MemoryStore is an in-process implementation of the profile, session and
// block-event repositories. Values are copied on the way in and out.
type MemoryStore struct {
	mu       sync.Mutex
	profiles map[string]*domain.Profile
	sessions map[string]*domain.Session
	blocks   []domain.BlockEvent
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]*domain.Profile),
		sessions: make(map[string]*domain.Session),
	}
}

// --- domain.ProfileRepository implementation ---

// SaveProfile validates and stores a copy of p.
func (m *MemoryStore) SaveProfile(_ context.Context, p *domain.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p.Clone()
	return nil
}

// GetProfile returns a copy of the profile.
func (m *MemoryStore) GetProfile(_ context.Context, id string) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return p.Clone(), nil
}

// ListProfiles returns copies of all profiles ordered by name.
func (m *MemoryStore) ListProfiles(_ context.Context) ([]*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteProfile removes a profile.
func (m *MemoryStore) DeleteProfile(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[id]; !ok {
		return domain.ErrProfileNotFound
	}
	delete(m.profiles, id)
	return nil
}

// --- domain.SessionRepository implementation ---

// CreateIfNoneActive stores s unless an active session exists.
func (m *MemoryStore) CreateIfNoneActive(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeLocked() != nil {
		return domain.ErrSessionAlreadyActive
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

// Active returns the active session.
func (m *MemoryStore) Active(_ context.Context) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.activeLocked(); s != nil {
		return s.Clone(), nil
	}
	return nil, domain.ErrNoActiveSession
}

func (m *MemoryStore) activeLocked() *domain.Session {
	for _, s := range m.sessions {
		if s.IsActive() {
			return s
		}
	}
	return nil
}

// GetSession returns a copy of the session.
func (m *MemoryStore) GetSession(_ context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return s.Clone(), nil
}

// UpdateSession replaces the stored session when s carries the stored
// version. Reopening an ended session while another is active is refused.
func (m *MemoryStore) UpdateSession(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.sessions[s.ID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if stored.Version != s.Version {
		return domain.ErrSessionModified
	}
	if s.IsActive() {
		if a := m.activeLocked(); a != nil && a.ID != s.ID {
			return domain.ErrSessionAlreadyActive
		}
	}
	s.Version++
	m.sessions[s.ID] = s.Clone()
	return nil
}

// LatestByProfile returns the most recently started session of a profile.
func (m *MemoryStore) LatestByProfile(_ context.Context, profileID string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *domain.Session
	for _, s := range m.sessions {
		if s.ProfileID != profileID {
			continue
		}
		if latest == nil || s.StartTime.After(latest.StartTime) {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}
	return latest.Clone(), nil
}

// ListSessions returns sessions started at or after since, newest first.
func (m *MemoryStore) ListSessions(_ context.Context, since time.Time) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Session
	for _, s := range m.sessions {
		if !s.StartTime.Before(since) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

// DeleteByProfile removes every session of a profile.
func (m *MemoryStore) DeleteByProfile(_ context.Context, profileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.ProfileID == profileID {
			delete(m.sessions, id)
		}
	}
	return nil
}

// --- domain.BlockEventRepository implementation ---

// RecordBlock appends a block event.
func (m *MemoryStore) RecordBlock(_ context.Context, ev domain.BlockEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks = append(m.blocks, ev)
	return nil
}

// CountBlocks counts recorded blocks per domain since the given time.
func (m *MemoryStore) CountBlocks(_ context.Context, since time.Time) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for _, ev := range m.blocks {
		if !ev.At.Before(since) {
			counts[ev.Domain]++
		}
	}
	return counts, nil
}

// Ensure MemoryStore implements the repositories.
var (
	_ domain.ProfileRepository    = (*MemoryStore)(nil)
	_ domain.SessionRepository    = (*MemoryStore)(nil)
	_ domain.BlockEventRepository = (*MemoryStore)(nil)
)
