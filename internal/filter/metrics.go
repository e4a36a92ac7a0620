package filter

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Verdict labels.
const (
	verdictForward = "forward"
	verdictDrop    = "drop"
)

// Metrics counts what the filter loop did with each packet.
type Metrics struct {
	Packets       *prometheus.CounterVec
	ParseFailures prometheus.Counter
	ReadErrors    prometheus.Counter
}

// NewMetrics creates the filter metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Packets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "focuslock_filter_packets_total",
				Help: "Packets read from the virtual interface, by verdict",
			},
			[]string{"verdict"},
		),
		ParseFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "focuslock_filter_parse_failures_total",
				Help: "Packets forwarded because inspection failed",
			},
		),
		ReadErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "focuslock_filter_read_errors_total",
				Help: "Failed reads from the virtual interface",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Packets, m.ParseFailures, m.ReadErrors)
	}
	return m
}
