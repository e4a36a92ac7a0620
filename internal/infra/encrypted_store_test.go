package infra

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

var storeNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// newTestStore creates an encrypted store in a temp directory for testing.
func newTestStore(t *testing.T) (*EncryptedStore, string) {
	t.Helper()
	dataDir := t.TempDir()
	key, err := GenerateKey()
	require.NoError(t, err)

	store, err := NewEncryptedStore(dataDir, key)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, dataDir
}

func testProfile(id, name string) *domain.Profile {
	return &domain.Profile{
		ID:                 id,
		Name:               name,
		BlockedApps:        []string{"steam"},
		BlockedDomains:     []string{"youtube.com"},
		StrategyID:         domain.StrategyNFCTimer,
		StrategyData:       "45",
		BreaksEnabled:      true,
		BreakMinutes:       10,
		WebBlockingEnabled: true,
		Tokens: []domain.PhysicalToken{
			{TokenID: "04A1B2", Mode: domain.TokenUnlock, Label: "Desk Tag"},
		},
		Emergency:         domain.EmergencySettings{Enabled: true, MaxAttempts: 2, CooldownMinutes: 30},
		RemoteLockEnabled: true,
		Schedule:          &domain.Schedule{Days: []time.Weekday{time.Monday}, Start: "09:00", End: "17:00"},
		CreatedAt:         storeNow,
		UpdatedAt:         storeNow,
	}
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestEncryptedStore_Profiles(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	p := testProfile("p1", "Work")
	require.NoError(t, store.SaveProfile(ctx, p))
	require.NoError(t, store.SaveProfile(ctx, testProfile("p2", "Evening")))

	got, err := store.GetProfile(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, p, got)

	p.Name = "Deep Work"
	p.UpdatedAt = storeNow.Add(time.Hour)
	require.NoError(t, store.SaveProfile(ctx, p))
	got, err = store.GetProfile(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Deep Work", got.Name)
	assert.Equal(t, storeNow.Add(time.Hour), got.UpdatedAt)
	assert.Equal(t, storeNow, got.CreatedAt, "upsert keeps creation time")

	list, err := store.ListProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Deep Work", list[0].Name)
	assert.Equal(t, "Evening", list[1].Name)

	require.NoError(t, store.DeleteProfile(ctx, "p2"))
	assert.ErrorIs(t, store.DeleteProfile(ctx, "p2"), domain.ErrProfileNotFound)
	_, err = store.GetProfile(ctx, "p2")
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func TestEncryptedStore_SaveProfileValidates(t *testing.T) {
	store, _ := newTestStore(t)
	p := testProfile("p1", "")
	assert.Error(t, store.SaveProfile(context.Background(), p))
}

func TestEncryptedStore_SessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	timer := 45 * time.Minute
	by := "token:LOCK1"
	s := &domain.Session{
		ID:                 "s1",
		ProfileID:          "p1",
		StartTime:          storeNow,
		StrategyID:         domain.StrategyNFCTimer,
		StrategyStartData:  "04A1B2",
		BlockedApps:        []string{"steam"},
		BlockedDomains:     []string{"youtube.com"},
		WebBlockingEnabled: true,
		TimerDuration:      &timer,
		PausedDurations: []domain.PausedDuration{
			{StartTime: storeNow.Add(time.Minute).UnixMilli(), EndTime: storeNow.Add(2 * time.Minute).UnixMilli()},
		},
		PauseStartedAt:          ptrTime(storeNow.Add(5 * time.Minute)),
		BreakEndsAt:             ptrTime(storeNow.Add(20 * time.Minute)),
		EmergencyAttemptsUsed:   1,
		EmergencyCooldownUntil:  ptrTime(storeNow.Add(time.Hour)),
		RemoteLockActivatedTime: ptrTime(storeNow.Add(3 * time.Minute)),
		RemoteLockActivatedBy:   &by,
	}
	require.NoError(t, store.CreateIfNoneActive(ctx, s))

	active, err := store.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, s, active)

	byID, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, s, byID)
}

func TestEncryptedStore_SingleActiveSession(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.Active(ctx)
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)

	first := &domain.Session{ID: "s1", ProfileID: "p1", StartTime: storeNow, StrategyID: domain.StrategyManual}
	require.NoError(t, store.CreateIfNoneActive(ctx, first))

	second := &domain.Session{ID: "s2", ProfileID: "p1", StartTime: storeNow.Add(time.Minute), StrategyID: domain.StrategyManual}
	assert.ErrorIs(t, store.CreateIfNoneActive(ctx, second), domain.ErrSessionAlreadyActive)

	first.EndTime = ptrTime(storeNow.Add(30 * time.Minute))
	first.EndReason = domain.EndManual
	require.NoError(t, store.UpdateSession(ctx, first))
	require.NoError(t, store.CreateIfNoneActive(ctx, second))

	// Reopening the ended session would create a second active row.
	first.EndTime = nil
	assert.ErrorIs(t, store.UpdateSession(ctx, first), domain.ErrSessionAlreadyActive)

	missing := &domain.Session{ID: "nope", ProfileID: "p1", StartTime: storeNow, StrategyID: domain.StrategyManual}
	assert.ErrorIs(t, store.UpdateSession(ctx, missing), domain.ErrSessionNotFound)
}

func TestEncryptedStore_ConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.CreateIfNoneActive(ctx, &domain.Session{
				ID:         string(rune('a' + i)),
				ProfileID:  "p1",
				StartTime:  storeNow,
				StrategyID: domain.StrategyManual,
			})
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrSessionAlreadyActive)
	}
	assert.Equal(t, 1, created)
}

func TestEncryptedStore_HistoryQueries(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	for i, id := range []string{"s1", "s2", "s3"} {
		start := storeNow.Add(time.Duration(i) * 24 * time.Hour)
		s := &domain.Session{
			ID:         id,
			ProfileID:  "p1",
			StartTime:  start,
			EndTime:    ptrTime(start.Add(time.Hour)),
			EndReason:  domain.EndManual,
			StrategyID: domain.StrategyManual,
		}
		require.NoError(t, store.CreateIfNoneActive(ctx, s))
	}
	other := &domain.Session{ID: "o1", ProfileID: "p2", StartTime: storeNow, EndTime: ptrTime(storeNow), StrategyID: domain.StrategyManual}
	require.NoError(t, store.CreateIfNoneActive(ctx, other))

	latest, err := store.LatestByProfile(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "s3", latest.ID)

	none, err := store.LatestByProfile(ctx, "p9")
	require.NoError(t, err)
	assert.Nil(t, none)

	recent, err := store.ListSessions(ctx, storeNow.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "s3", recent[0].ID)
	assert.Equal(t, "s2", recent[1].ID)

	require.NoError(t, store.DeleteByProfile(ctx, "p1"))
	all, err := store.ListSessions(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "o1", all[0].ID)
}

func TestEncryptedStore_BlockEvents(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	events := []domain.BlockEvent{
		{Domain: "youtube.com", Name: "www.youtube.com", Layer: "dns", DestIP: "1.1.1.1", At: storeNow.Add(-2 * time.Hour)},
		{Domain: "youtube.com", Name: "m.youtube.com", Layer: "tls", DestIP: "93.184.216.34", At: storeNow},
		{Domain: "youtube.com", Name: "youtube.com", Layer: "dns", DestIP: "1.1.1.1", At: storeNow},
		{Domain: "reddit.com", Name: "reddit.com", Layer: "tls", DestIP: "93.184.216.34", At: storeNow},
	}
	for _, ev := range events {
		require.NoError(t, store.RecordBlock(ctx, ev))
	}

	counts, err := store.CountBlocks(ctx, storeNow.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"youtube.com": 2, "reddit.com": 1}, counts)
}

func TestEncryptedStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()

	store, err := OpenStore(dataDir)
	require.NoError(t, err)
	require.NoError(t, store.SaveProfile(ctx, testProfile("p1", "Work")))
	require.NoError(t, store.Close())

	reopened, err := OpenStore(dataDir)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.GetProfile(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Work", got.Name)
}

func TestEncryptedStore_WrongKey(t *testing.T) {
	ctx := context.Background()
	store, dataDir := newTestStore(t)
	require.NoError(t, store.SaveProfile(ctx, testProfile("p1", "Work")))
	require.NoError(t, store.Close())

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "youtube.com", "database file is encrypted")

	other, err := GenerateKey()
	require.NoError(t, err)
	_, err = NewEncryptedStore(dataDir, other)
	assert.Error(t, err)
}

func TestEncryptedStore_StaleUpdateAcrossHandles(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()

	cli, err := OpenStore(dataDir)
	require.NoError(t, err)
	defer cli.Close()
	daemon, err := OpenStore(dataDir)
	require.NoError(t, err)
	defer daemon.Close()

	s := &domain.Session{ID: "s1", ProfileID: "p1", StartTime: storeNow, StrategyID: domain.StrategyNFC}
	require.NoError(t, cli.CreateIfNoneActive(ctx, s))

	// Both processes hold version 0.
	fromCLI, err := cli.GetSession(ctx, "s1")
	require.NoError(t, err)
	fromDaemon, err := daemon.GetSession(ctx, "s1")
	require.NoError(t, err)

	by := "cli"
	fromCLI.RemoteLockActivatedTime = ptrTime(storeNow.Add(time.Minute))
	fromCLI.RemoteLockActivatedBy = &by
	require.NoError(t, cli.UpdateSession(ctx, fromCLI))
	assert.Equal(t, int64(1), fromCLI.Version)

	fromDaemon.PausedDurations = []domain.PausedDuration{{StartTime: 1, EndTime: 2}}
	err = daemon.UpdateSession(ctx, fromDaemon)
	assert.ErrorIs(t, err, domain.ErrSessionModified)
	assert.Equal(t, int64(0), fromDaemon.Version)

	stored, err := daemon.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, stored.IsRemoteLocked(), "stale write must not clear the lock")
	assert.Empty(t, stored.PausedDurations)
	assert.Equal(t, int64(1), stored.Version)

	// A fresh read from the daemon goes through.
	stored.PausedDurations = []domain.PausedDuration{{StartTime: 1, EndTime: 2}}
	require.NoError(t, daemon.UpdateSession(ctx, stored))
	again, err := cli.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, again.IsRemoteLocked())
	assert.Len(t, again.PausedDurations, 1)
	assert.Equal(t, int64(2), again.Version)
}
