// Package daemon runs the long-lived process that keeps blocking in step
// with the stored session: it expires timers and breaks, starts scheduled
// sessions, kills blocked apps and drives the traffic filter.
package daemon

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	apperrors "github.com/eliteGoblin/focusd/focuslock/internal/errors"
	"github.com/eliteGoblin/focusd/focuslock/internal/usecase"
)

// scheduleTrigger is stored as the start data of scheduled sessions.
const scheduleTrigger = "schedule"

// Engine is the part of the session engine the watcher drives.
type Engine interface {
	StartSessionWith(ctx context.Context, profileID string, opts usecase.StartOptions) (string, error)
	ExpireTimer(ctx context.Context) (bool, error)
	ExpireBreak(ctx context.Context) (bool, error)
	Resync(ctx context.Context) (bool, error)
}

// Subscriber hands out snapshot subscriptions.
type Subscriber interface {
	Subscribe(ctx context.Context) <-chan domain.Snapshot
}

// AppEnforcer kills blocked apps.
type AppEnforcer interface {
	Watch(ctx context.Context, snapshots <-chan domain.Snapshot)
	Enforce(ctx context.Context) *domain.EnforcementResult
}

// TrafficFilter follows snapshots with the virtual interface.
type TrafficFilter interface {
	Run(ctx context.Context, snapshots <-chan domain.Snapshot)
}

// WatcherConfig holds watcher daemon configuration.
type WatcherConfig struct {
	TickInterval        time.Duration // timers, breaks and schedules
	EnforcementInterval time.Duration // blocked app sweep
	ResyncInterval      time.Duration // fallback when file events are missed
	StorePath           string        // database file written by the CLI
}

// DefaultWatcherConfig returns default watcher configuration.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		TickInterval:        5 * time.Second,
		EnforcementInterval: 10 * time.Second,
		ResyncInterval:      30 * time.Second,
	}
}

// Watcher is the main daemon loop.
type Watcher struct {
	config   WatcherConfig
	engine   Engine
	profiles domain.ProfileRepository
	sessions domain.SessionRepository
	hub      Subscriber
	enforcer AppEnforcer
	filter   TrafficFilter // nil when web filtering is disabled
	clock    domain.Clock
	logger   *zap.Logger
}

// NewWatcher creates a new watcher daemon. filter may be nil.
func NewWatcher(
	config WatcherConfig,
	engine Engine,
	profiles domain.ProfileRepository,
	sessions domain.SessionRepository,
	hub Subscriber,
	enforcer AppEnforcer,
	filter TrafficFilter,
	clock domain.Clock,
	logger *zap.Logger,
) *Watcher {
	def := DefaultWatcherConfig()
	if config.TickInterval <= 0 {
		config.TickInterval = def.TickInterval
	}
	if config.EnforcementInterval <= 0 {
		config.EnforcementInterval = def.EnforcementInterval
	}
	if config.ResyncInterval <= 0 {
		config.ResyncInterval = def.ResyncInterval
	}
	return &Watcher{
		config:   config,
		engine:   engine,
		profiles: profiles,
		sessions: sessions,
		hub:      hub,
		enforcer: enforcer,
		filter:   filter,
		clock:    clock,
		logger:   logger,
	}
}

// Run starts the watcher daemon loop.
// This blocks until context is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		w.enforcer.Watch(ctx, w.hub.Subscribe(ctx))
	}()
	if w.filter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.filter.Run(ctx, w.hub.Subscribe(ctx))
		}()
	}

	events := w.watchStore()
	if events != nil {
		defer events.Close()
	}

	w.logger.Info("watcher daemon started",
		zap.Duration("tick", w.config.TickInterval),
		zap.Duration("enforcement", w.config.EnforcementInterval),
		zap.Bool("filter", w.filter != nil))

	w.resync(ctx)
	w.tick(ctx)

	tickTicker := time.NewTicker(w.config.TickInterval)
	enforceTicker := time.NewTicker(w.config.EnforcementInterval)
	resyncTicker := time.NewTicker(w.config.ResyncInterval)
	defer func() {
		tickTicker.Stop()
		enforceTicker.Stop()
		resyncTicker.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher daemon stopping")
			return ctx.Err()

		case <-tickTicker.C:
			w.tick(ctx)

		case <-enforceTicker.C:
			w.runEnforcement(ctx)

		case <-resyncTicker.C:
			w.resync(ctx)

		case ev, ok := <-fileEvents(events):
			if !ok {
				events = nil
				continue
			}
			if w.isStoreEvent(ev) {
				w.logger.Debug("store changed", zap.String("file", ev.Name), zap.String("op", ev.Op.String()))
				w.resync(ctx)
			}

		case err, ok := <-fileErrors(events):
			if ok {
				w.logger.Warn("store watch error", zap.Error(err))
			}
		}
	}
}

// watchStore watches the store's directory; a nil watcher leaves only the resync ticker.
func (w *Watcher) watchStore() *fsnotify.Watcher {
	if w.config.StorePath == "" {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("file watch unavailable, polling only", zap.Error(err))
		return nil
	}
	if err := fsw.Add(filepath.Dir(w.config.StorePath)); err != nil {
		w.logger.Warn("failed to watch data directory, polling only", zap.Error(err))
		fsw.Close()
		return nil
	}
	return fsw
}

// isStoreEvent matches writes to the database and its journal files.
func (w *Watcher) isStoreEvent(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	return strings.HasPrefix(filepath.Base(ev.Name), filepath.Base(w.config.StorePath))
}

func fileEvents(fsw *fsnotify.Watcher) <-chan fsnotify.Event {
	if fsw == nil {
		return nil
	}
	return fsw.Events
}

func fileErrors(fsw *fsnotify.Watcher) <-chan error {
	if fsw == nil {
		return nil
	}
	return fsw.Errors
}

// tick expires timers and breaks, then starts any scheduled session that is due.
func (w *Watcher) tick(ctx context.Context) {
	if ended, err := w.engine.ExpireTimer(ctx); err != nil {
		w.logUnlessIdle("timer check failed", err)
	} else if ended {
		w.logger.Info("session timer elapsed")
	}

	if closed, err := w.engine.ExpireBreak(ctx); err != nil {
		w.logUnlessIdle("break check failed", err)
	} else if closed {
		w.logger.Info("break elapsed")
	}

	w.startScheduled(ctx)
}

func (w *Watcher) logUnlessIdle(msg string, err error) {
	switch {
	case apperrors.Is(err, domain.ErrNoActiveSession):
	case apperrors.Is(err, domain.ErrRemoteLockActive):
		w.logger.Debug(msg, zap.Error(err))
	default:
		w.logger.Warn(msg, zap.Error(err))
	}
}

// startScheduled starts at most one scheduled session per window. A window
// counts as used once any session of the profile started inside it, so a
// session stopped early is not restarted.
func (w *Watcher) startScheduled(ctx context.Context) {
	if _, err := w.sessions.Active(ctx); err == nil {
		return
	} else if !apperrors.Is(err, domain.ErrNoActiveSession) {
		w.logger.Warn("failed to read active session", zap.Error(err))
		return
	}

	profiles, err := w.profiles.ListProfiles(ctx)
	if err != nil {
		w.logger.Warn("failed to list profiles", zap.Error(err))
		return
	}

	now := w.clock.Now()
	for _, p := range profiles {
		if p.Schedule == nil {
			continue
		}
		start, end, ok := p.Schedule.Window(now)
		if !ok {
			continue
		}
		latest, err := w.sessions.LatestByProfile(ctx, p.ID)
		if err != nil {
			w.logger.Warn("failed to read profile history", zap.String("profile", p.ID), zap.Error(err))
			continue
		}
		if latest != nil && !latest.StartTime.Before(start) {
			continue
		}

		id, err := w.engine.StartSessionWith(ctx, p.ID, usecase.StartOptions{
			TriggerData: scheduleTrigger,
			Timer:       end.Sub(now),
		})
		if err != nil {
			w.logger.Warn("failed to start scheduled session", zap.String("profile", p.ID), zap.Error(err))
			continue
		}
		w.logger.Info("scheduled session started",
			zap.String("session", id),
			zap.String("profile", p.ID),
			zap.Time("until", end))
		return
	}
}

func (w *Watcher) resync(ctx context.Context) {
	changed, err := w.engine.Resync(ctx)
	if err != nil {
		w.logger.Warn("resync failed", zap.Error(err))
		return
	}
	if changed {
		w.logger.Info("blocking state reloaded from store")
	}
}

// runEnforcement kills blocked apps that were started since the last sweep.
func (w *Watcher) runEnforcement(ctx context.Context) {
	result := w.enforcer.Enforce(ctx)
	if len(result.KilledPIDs) > 0 || len(result.Errors) > 0 {
		w.logger.Info("enforcement completed",
			zap.Int("processes_killed", len(result.KilledPIDs)),
			zap.Int("errors", len(result.Errors)),
			zap.Int64("duration_ms", result.DurationMs))
	}
}
