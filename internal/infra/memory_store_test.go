package infra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

func TestMemoryStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	p := testProfile("p1", "Work")
	require.NoError(t, m.SaveProfile(ctx, p))
	p.BlockedApps[0] = "mutated"

	got, err := m.GetProfile(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "steam", got.BlockedApps[0])

	got.Name = "changed"
	again, err := m.GetProfile(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Work", again.Name)
}

func TestMemoryStore_SingleActiveSession(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	first := &domain.Session{ID: "s1", ProfileID: "p1", StartTime: storeNow, StrategyID: domain.StrategyManual}
	require.NoError(t, m.CreateIfNoneActive(ctx, first))
	second := &domain.Session{ID: "s2", ProfileID: "p1", StartTime: storeNow.Add(time.Hour), StrategyID: domain.StrategyManual}
	assert.ErrorIs(t, m.CreateIfNoneActive(ctx, second), domain.ErrSessionAlreadyActive)

	first.EndTime = ptrTime(storeNow.Add(30 * time.Minute))
	require.NoError(t, m.UpdateSession(ctx, first))
	require.NoError(t, m.CreateIfNoneActive(ctx, second))

	active, err := m.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s2", active.ID)

	latest, err := m.LatestByProfile(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "s2", latest.ID)

	list, err := m.ListSessions(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "s2", list[0].ID)

	require.NoError(t, m.DeleteByProfile(ctx, "p1"))
	_, err = m.Active(ctx)
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)
}

func TestMemoryStore_CountBlocks(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	require.NoError(t, m.RecordBlock(ctx, domain.BlockEvent{Domain: "youtube.com", At: storeNow.Add(-2 * time.Hour)}))
	require.NoError(t, m.RecordBlock(ctx, domain.BlockEvent{Domain: "youtube.com", At: storeNow}))
	require.NoError(t, m.RecordBlock(ctx, domain.BlockEvent{Domain: "reddit.com", At: storeNow}))

	counts, err := m.CountBlocks(ctx, storeNow.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"youtube.com": 1, "reddit.com": 1}, counts)
}

func TestMemoryStore_StaleUpdate(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	require.NoError(t, m.CreateIfNoneActive(ctx, &domain.Session{ID: "s1", ProfileID: "p1", StartTime: storeNow, StrategyID: domain.StrategyManual}))
	a, err := m.GetSession(ctx, "s1")
	require.NoError(t, err)
	b, err := m.GetSession(ctx, "s1")
	require.NoError(t, err)

	a.EmergencyAttemptsUsed = 1
	require.NoError(t, m.UpdateSession(ctx, a))
	b.EndTime = ptrTime(storeNow.Add(time.Minute))
	assert.ErrorIs(t, m.UpdateSession(ctx, b), domain.ErrSessionModified)

	stored, err := m.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, stored.IsActive())
	assert.Equal(t, 1, stored.EmergencyAttemptsUsed)
	assert.Equal(t, int64(1), stored.Version)
}
