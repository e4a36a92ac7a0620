// Package filter drops DNS queries and TLS handshakes for blocked domains
// on a virtual network interface and forwards everything else untouched.
package filter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
	apperrors "github.com/eliteGoblin/focusd/focuslock/internal/errors"
	"github.com/eliteGoblin/focusd/focuslock/internal/matcher"
	"github.com/eliteGoblin/focusd/focuslock/internal/packet"
)

const (
	maxPacketSize = 65535
	eventBuffer   = 64

	minReadBackoff = 10 * time.Millisecond
	maxReadBackoff = time.Second
)

// Device is a packet-oriented virtual interface. Read returns one IPv4
// packet per call; Write injects one packet back into the network stack.
type Device interface {
	Read(buf []byte) (int, error)
	Write(pkt []byte) (int, error)
	Close() error
}

// DeviceFactory opens the virtual interface.
type DeviceFactory func() (Device, error)

type inspection struct {
	drop   bool
	failed bool
	domain string
	name   string
	layer  string
	destIP string
}

// Loop reads packets from a Device and decides, per packet, to forward or drop.
type Loop struct {
	dev      Device
	domains  atomic.Pointer[matcher.Set]
	metrics  *Metrics
	recorder domain.BlockRecorder
	clock    domain.Clock
	logger   *zap.Logger

	stopped   atomic.Bool
	closeOnce sync.Once
	events    chan domain.BlockEvent

	inspect func(pkt []byte) inspection
}

// NewLoop creates a loop over dev. recorder may be nil.
func NewLoop(dev Device, metrics *Metrics, recorder domain.BlockRecorder, clock domain.Clock, logger *zap.Logger) *Loop {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	l := &Loop{
		dev:      dev,
		metrics:  metrics,
		recorder: recorder,
		clock:    clock,
		logger:   logger,
		events:   make(chan domain.BlockEvent, eventBuffer),
	}
	l.inspect = l.inspectPacket
	l.domains.Store(matcher.NewSet(nil))
	return l
}

// SetDomains replaces the blocked set. Packets read after the call use the new set.
func (l *Loop) SetDomains(domains []string) {
	l.domains.Store(matcher.NewSet(domains))
}

// Domains returns the number of domains currently blocked.
func (l *Loop) Domains() int {
	return l.domains.Load().Len()
}

// Stop asks the loop to exit. It never blocks; a pending Read is
// interrupted by closing the device.
func (l *Loop) Stop() {
	l.stopped.Store(true)
	l.closeDevice()
}

func (l *Loop) closeDevice() {
	l.closeOnce.Do(func() {
		if err := l.dev.Close(); err != nil {
			l.logger.Debug("Failed to close virtual interface", zap.Error(err))
		}
	})
}

// Run processes packets until Stop is called, ctx is done, or the device is
// closed underneath it. Other read errors are counted and retried with
// backoff. The device is always closed on return.
func (l *Loop) Run(ctx context.Context) error {
	defer l.closeDevice()
	stop := context.AfterFunc(ctx, l.Stop)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.drainEvents()
	}()
	defer func() {
		close(l.events)
		wg.Wait()
	}()

	buf := make([]byte, maxPacketSize)
	backoff := time.Duration(0)
	for !l.stopped.Load() {
		n, err := l.dev.Read(buf)
		if err != nil {
			if l.stopped.Load() {
				return nil
			}
			if errors.Is(err, os.ErrClosed) {
				return apperrors.Wrap(err, apperrors.KindUnavailable, "read from virtual interface")
			}
			backoff = nextBackoff(backoff)
			l.metrics.ReadErrors.Inc()
			l.logger.Warn("Failed to read from virtual interface, retrying",
				zap.Duration("backoff", backoff), zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0
		if n == 0 {
			continue
		}
		pkt := buf[:n]

		res := l.inspect(pkt)
		if res.drop {
			l.metrics.Packets.WithLabelValues(verdictDrop).Inc()
			l.logger.Debug("Dropped packet for blocked domain",
				zap.String("domain", res.domain),
				zap.String("name", res.name),
				zap.String("layer", res.layer),
			)
			l.record(res)
			continue
		}
		if res.failed {
			l.metrics.ParseFailures.Inc()
		}
		l.metrics.Packets.WithLabelValues(verdictForward).Inc()
		if _, err := l.dev.Write(pkt); err != nil {
			if l.stopped.Load() {
				return nil
			}
			l.logger.Debug("Failed to forward packet", zap.Error(err))
		}
	}
	return nil
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return minReadBackoff
	}
	return min(2*d, maxReadBackoff)
}

// inspectPacket never panics; anything it cannot understand is forwarded.
func (l *Loop) inspectPacket(pkt []byte) (res inspection) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Warn("Packet inspection panicked", zap.String("panic", fmt.Sprint(r)))
			res = inspection{failed: true}
		}
	}()

	info, err := packet.ParseIPv4(pkt)
	if err != nil {
		return inspection{failed: !errors.Is(err, packet.ErrNotIPv4)}
	}

	name, layer := "", ""
	if n, ok := packet.DNSQueryName(pkt, info); ok {
		name, layer = n, "dns"
	} else if n, ok := packet.ServerName(pkt, info); ok {
		name, layer = n, "tls"
	} else {
		return inspection{}
	}

	blocked, ok := l.domains.Load().Match(name)
	if !ok {
		return inspection{}
	}
	return inspection{
		drop:   true,
		domain: blocked,
		name:   name,
		layer:  layer,
		destIP: info.Dst.String(),
	}
}

func (l *Loop) record(res inspection) {
	if l.recorder == nil {
		return
	}
	ev := domain.BlockEvent{
		Domain: res.domain,
		Name:   res.name,
		Layer:  res.layer,
		DestIP: res.destIP,
		At:     l.now(),
	}
	select {
	case l.events <- ev:
	default:
		l.logger.Debug("Block event buffer full, dropping event", zap.String("domain", res.domain))
	}
}

func (l *Loop) drainEvents() {
	for ev := range l.events {
		if l.recorder == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := l.recorder.RecordBlock(ctx, ev); err != nil {
			l.logger.Warn("Failed to record block event", zap.Error(err))
		}
		cancel()
	}
}

func (l *Loop) now() time.Time {
	if l.clock == nil {
		return time.Now()
	}
	return l.clock.Now()
}
