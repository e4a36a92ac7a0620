package filter

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	apperrors "github.com/eliteGoblin/focusd/focuslock/internal/errors"
)

// Controller starts, updates and stops a Loop to follow the published
// blocking snapshot. A non-empty domain list brings the interface up;
// an empty one tears it down.
type Controller struct {
	factory  DeviceFactory
	metrics  *Metrics
	recorder domain.BlockRecorder
	clock    domain.Clock
	logger   *zap.Logger

	mu   sync.Mutex
	loop *Loop
	done chan struct{}
}

// NewController creates a controller. recorder and clock may be nil.
func NewController(factory DeviceFactory, metrics *Metrics, recorder domain.BlockRecorder, clock domain.Clock, logger *zap.Logger) *Controller {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Controller{
		factory:  factory,
		metrics:  metrics,
		recorder: recorder,
		clock:    clock,
		logger:   logger,
	}
}

// Run applies every snapshot received until ctx is done or the channel
// closes, then stops any running loop.
func (c *Controller) Run(ctx context.Context, snapshots <-chan domain.Snapshot) {
	defer c.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			c.Apply(ctx, snap)
		}
	}
}

// Apply reconciles the running loop with snap.
func (c *Controller) Apply(ctx context.Context, snap domain.Snapshot) {
	if len(snap.BlockedDomains) == 0 {
		c.Stop()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loop != nil && !closed(c.done) {
		c.loop.SetDomains(snap.BlockedDomains)
		c.logger.Info("Updated web filter", zap.Int("domains", len(snap.BlockedDomains)))
		return
	}

	dev, err := c.factory()
	if err != nil {
		// Filtering stays off until the next snapshot change.
		c.logger.Error("Web filtering disabled",
			zap.Error(apperrors.Wrap(err, apperrors.KindUnavailable, domain.ErrInterfaceUnavailable.Error())),
		)
		c.loop, c.done = nil, nil
		return
	}

	loop := NewLoop(dev, c.metrics, c.recorder, c.clock, c.logger)
	loop.SetDomains(snap.BlockedDomains)
	done := make(chan struct{})
	c.loop, c.done = loop, done

	go func() {
		defer close(done)
		if err := loop.Run(ctx); err != nil {
			c.logger.Error("Web filter stopped", zap.Error(err))
		}
	}()
	c.logger.Info("Started web filter", zap.Int("domains", len(snap.BlockedDomains)))
}

// Stop tears down the running loop, if any, and waits for it to exit.
func (c *Controller) Stop() {
	c.mu.Lock()
	loop, done := c.loop, c.done
	c.loop, c.done = nil, nil
	c.mu.Unlock()

	if loop == nil {
		return
	}
	loop.Stop()
	<-done
	c.logger.Info("Stopped web filter")
}

// Running reports whether a loop is currently processing packets.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loop != nil && !closed(c.done)
}

func closed(ch chan struct{}) bool {
	if ch == nil {
		return true
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
