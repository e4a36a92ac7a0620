package daemon

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focuslock/internal/broadcast"
	"github.com/eliteGoblin/focusd/focuslock/internal/domain"
)

func TestRegisterSnapshotGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	hub := broadcast.NewHub(zap.NewNop())
	RegisterSnapshotGauges(reg, hub)

	expected := `
# HELP focuslock_blocking_active 1 while a session is blocking anything
# TYPE focuslock_blocking_active gauge
focuslock_blocking_active 0
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "focuslock_blocking_active"))

	hub.Publish(domain.NewSnapshot([]string{"steam"}, []string{"youtube.com", "reddit.com"}))

	expected = `
# HELP focuslock_blocked_apps Apps in the current blocking snapshot
# TYPE focuslock_blocked_apps gauge
focuslock_blocked_apps 1
# HELP focuslock_blocked_domains Domains in the current blocking snapshot
# TYPE focuslock_blocked_domains gauge
focuslock_blocked_domains 2
# HELP focuslock_blocking_active 1 while a session is blocking anything
# TYPE focuslock_blocking_active gauge
focuslock_blocking_active 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected)))
}

func TestServeMetrics(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	reg := prometheus.NewRegistry()
	RegisterSnapshotGauges(reg, broadcast.NewHub(zap.NewNop()))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- ServeMetrics(ctx, addr, reg, zap.NewNop()) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/metrics", addr))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		body = string(data)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	assert.Contains(t, body, "focuslock_blocked_domains 0")

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ServeMetrics did not return")
	}
}
