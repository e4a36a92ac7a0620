package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

// AppEnforcer kills processes of the apps blocked by the current snapshot.
type AppEnforcer struct {
	processManager domain.ProcessManager
	logger         *zap.Logger

	mu   sync.Mutex
	apps []string
}

// NewAppEnforcer creates an app enforcer with nothing blocked.
func NewAppEnforcer(pm domain.ProcessManager, logger *zap.Logger) *AppEnforcer {
	return &AppEnforcer{
		processManager: pm,
		logger:         logger,
	}
}

// SetApps replaces the blocked app patterns.
func (e *AppEnforcer) SetApps(apps []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.apps = append([]string(nil), apps...)
}

// Apps returns the blocked app patterns.
func (e *AppEnforcer) Apps() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.apps...)
}

// Watch follows snapshots until the channel closes or ctx is done,
// enforcing right away whenever the app list changes.
func (e *AppEnforcer) Watch(ctx context.Context, snapshots <-chan domain.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			e.SetApps(snap.BlockedApps)
			if len(snap.BlockedApps) > 0 {
				e.Enforce(ctx)
			}
		}
	}
}

// Enforce runs one pass over the blocked apps.
func (e *AppEnforcer) Enforce(ctx context.Context) *domain.EnforcementResult {
	start := time.Now()
	result := &domain.EnforcementResult{
		KilledPIDs: make([]int, 0),
		Errors:     make([]error, 0),
		ExecutedAt: start,
	}
	self := e.processManager.GetCurrentPID()

	for _, pattern := range e.Apps() {
		if ctx.Err() != nil {
			break
		}
		pids, err := e.processManager.FindByName(pattern)
		if err != nil {
			e.logger.Warn("failed to find processes",
				zap.String("pattern", pattern),
				zap.Error(err))
			result.Errors = append(result.Errors, err)
			continue
		}

		for _, pid := range pids {
			if pid == self {
				continue
			}
			if err := e.processManager.Kill(pid); err != nil {
				e.logger.Warn("failed to kill process",
					zap.Int("pid", pid),
					zap.Error(err))
				result.Errors = append(result.Errors, err)
			} else {
				e.logger.Info("killed blocked app",
					zap.Int("pid", pid),
					zap.String("pattern", pattern))
				result.KilledPIDs = append(result.KilledPIDs, pid)
			}
		}
	}

	result.DurationMs = time.Since(start).Milliseconds()
	return result
}
