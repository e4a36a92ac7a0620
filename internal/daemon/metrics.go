package daemon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

// SnapshotSource exposes the latest published snapshot.
type SnapshotSource interface {
	Current() domain.Snapshot
}

// RegisterSnapshotGauges exports the size of the current blocking snapshot.
func RegisterSnapshotGauges(reg prometheus.Registerer, src SnapshotSource) {
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "focuslock_blocking_active",
			Help: "1 while a session is blocking anything",
		}, func() float64 {
			if src.Current().IsEmpty() {
				return 0
			}
			return 1
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "focuslock_blocked_domains",
			Help: "Domains in the current blocking snapshot",
		}, func() float64 {
			return float64(len(src.Current().BlockedDomains))
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "focuslock_blocked_apps",
			Help: "Apps in the current blocking snapshot",
		}, func() float64 {
			return float64(len(src.Current().BlockedApps))
		}),
	)
}

// ServeMetrics serves /metrics on addr until ctx is done.
func ServeMetrics(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("metrics endpoint listening", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
