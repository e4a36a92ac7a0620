// Package broadcast fans the current blocked-traffic snapshot out to its consumers.
package broadcast

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

// Hub holds the latest snapshot. Subscribers get the current value on
// subscribe and then only the newest value; slow readers skip stale ones.
type Hub struct {
	mu      sync.Mutex
	current domain.Snapshot
	subs    map[chan domain.Snapshot]struct{}
	logger  *zap.Logger
}

// NewHub creates a hub whose current value is the empty snapshot.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[chan domain.Snapshot]struct{}),
		logger: logger,
	}
}

// Publish replaces the current snapshot. Publishing a value equal to the
// current one is a no-op and returns false.
func (h *Hub) Publish(s domain.Snapshot) bool {
	s = domain.NewSnapshot(s.BlockedApps, s.BlockedDomains)

	h.mu.Lock()
	defer h.mu.Unlock()

	if s.Equal(h.current) {
		return false
	}
	h.current = s
	for ch := range h.subs {
		offer(ch, s)
	}

	h.logger.Debug("snapshot published",
		zap.Int("apps", len(s.BlockedApps)),
		zap.Int("domains", len(s.BlockedDomains)),
		zap.Int("subscribers", len(h.subs)))
	return true
}

// Current returns the latest published snapshot.
func (h *Hub) Current() domain.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Subscribe returns a channel that receives the current snapshot immediately
// and every change after it. The channel is closed when ctx is done.
func (h *Hub) Subscribe(ctx context.Context) <-chan domain.Snapshot {
	ch := make(chan domain.Snapshot, 1)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	ch <- h.current
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs, ch)
		close(ch)
		h.mu.Unlock()
	}()
	return ch
}

// offer replaces any unread value in ch with s. Callers hold h.mu, so
// the send after draining cannot block.
func offer(ch chan domain.Snapshot, s domain.Snapshot) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- s
}
