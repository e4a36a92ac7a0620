package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

// mockProcessManager implements domain.ProcessManager for testing
type mockProcessManager struct {
	mu         sync.Mutex
	findResult map[string][]int
	findErr    error
	killErr    error
	killedPIDs []int
	selfPID    int
}

func (m *mockProcessManager) FindByName(pattern string) ([]int, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	if m.findResult != nil {
		return m.findResult[pattern], nil
	}
	return nil, nil
}

func (m *mockProcessManager) Kill(pid int) error {
	if m.killErr != nil {
		return m.killErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.killedPIDs = append(m.killedPIDs, pid)
	return nil
}

func (m *mockProcessManager) GetCurrentPID() int {
	return m.selfPID
}

func (m *mockProcessManager) killed() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.killedPIDs...)
}

// TestEnforce_NoApps verifies behavior with nothing blocked
func TestEnforce_NoApps(t *testing.T) {
	pm := &mockProcessManager{findResult: map[string][]int{"steam": {1001}}}
	enforcer := NewAppEnforcer(pm, zap.NewNop())

	result := enforcer.Enforce(context.Background())

	assert.Empty(t, result.KilledPIDs)
	assert.Empty(t, result.Errors)
	assert.Empty(t, pm.killed())
}

// TestEnforce_KillsProcesses verifies process killing
func TestEnforce_KillsProcesses(t *testing.T) {
	pm := &mockProcessManager{
		findResult: map[string][]int{
			"steam":   {1001, 1002},
			"discord": {2001},
		},
	}
	enforcer := NewAppEnforcer(pm, zap.NewNop())
	enforcer.SetApps([]string{"steam", "discord"})

	result := enforcer.Enforce(context.Background())

	assert.ElementsMatch(t, []int{1001, 1002, 2001}, result.KilledPIDs)
	assert.ElementsMatch(t, []int{1001, 1002, 2001}, pm.killed())
	assert.False(t, result.ExecutedAt.IsZero())
}

// TestEnforce_SkipsSelf verifies the daemon never kills itself
func TestEnforce_SkipsSelf(t *testing.T) {
	pm := &mockProcessManager{
		findResult: map[string][]int{"focus": {42, 43}},
		selfPID:    42,
	}
	enforcer := NewAppEnforcer(pm, zap.NewNop())
	enforcer.SetApps([]string{"focus"})

	result := enforcer.Enforce(context.Background())

	assert.Equal(t, []int{43}, result.KilledPIDs)
}

// TestEnforce_HandlesFindError verifies error handling for process finding
func TestEnforce_HandlesFindError(t *testing.T) {
	pm := &mockProcessManager{findErr: errors.New("find failed")}
	enforcer := NewAppEnforcer(pm, zap.NewNop())
	enforcer.SetApps([]string{"process"})

	result := enforcer.Enforce(context.Background())

	assert.NotEmpty(t, result.Errors)
}

// TestEnforce_HandlesKillError verifies error handling for process killing
func TestEnforce_HandlesKillError(t *testing.T) {
	pm := &mockProcessManager{
		findResult: map[string][]int{"process": {1001}},
		killErr:    errors.New("kill failed"),
	}
	enforcer := NewAppEnforcer(pm, zap.NewNop())
	enforcer.SetApps([]string{"process"})

	result := enforcer.Enforce(context.Background())

	assert.Empty(t, result.KilledPIDs)
	assert.NotEmpty(t, result.Errors)
}

// TestWatch_FollowsSnapshots verifies snapshot changes drive enforcement
func TestWatch_FollowsSnapshots(t *testing.T) {
	pm := &mockProcessManager{findResult: map[string][]int{"steam": {1001}}}
	enforcer := NewAppEnforcer(pm, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	snapshots := make(chan domain.Snapshot, 1)
	done := make(chan struct{})
	go func() {
		enforcer.Watch(ctx, snapshots)
		close(done)
	}()

	snapshots <- domain.NewSnapshot([]string{"steam"}, nil)
	require.Eventually(t, func() bool { return len(pm.killed()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"steam"}, enforcer.Apps())

	snapshots <- domain.Snapshot{}
	require.Eventually(t, func() bool { return len(enforcer.Apps()) == 0 }, time.Second, 5*time.Millisecond)

	close(snapshots)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after channel close")
	}
}
