// Package metrics collects wallet and chain-source counters on a private
// Prometheus registry. Counters can be dumped to a textfile for the
// node_exporter textfile collector.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

const namespace = "satchel"

// Metrics holds application counters. Totals are mirrored into atomics so
// the CLI can print a snapshot without a gatherer round trip.
type Metrics struct {
	registry *prometheus.Registry

	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	walletOps  *prometheus.CounterVec
	syncs      *prometheus.CounterVec
	broadcasts *prometheus.CounterVec
	breaker    *prometheus.GaugeVec

	rpcCallsTotal   atomic.Int64
	rpcErrorsTotal  atomic.Int64
	rpcLatencyNanos atomic.Int64
	walletOpsTotal  atomic.Int64
	walletOpsErrors atomic.Int64
	syncsTotal      atomic.Int64
	syncsFailed     atomic.Int64
	broadcastsTotal atomic.Int64
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "requests_total",
			Help:      "Chain source requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "request_duration_seconds",
			Help:      "Chain source request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		walletOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "operations_total",
			Help:      "Wallet operations by name and error class.",
		}, []string{"op", "class"}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "syncs_total",
			Help:      "UTXO tracker syncs by outcome.",
		}, []string{"outcome"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tx",
			Name:      "broadcasts_total",
			Help:      "Transaction broadcasts by outcome.",
		}, []string{"outcome"}),
		breaker: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "breaker_open",
			Help:      "1 while the chain source circuit breaker is open.",
		}, []string{"name"}),
	}
	m.registry.MustRegister(m.requests, m.latency, m.walletOps, m.syncs, m.broadcasts, m.breaker)
	return m
}

// Global is the process-wide metrics instance.
//
//nolint:gochecknoglobals // Intentional global for metrics access
var Global = New()

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordRPCCall records a chain source request.
func (m *Metrics) RecordRPCCall(endpoint string, duration time.Duration, err error) {
	m.rpcCallsTotal.Add(1)
	m.rpcLatencyNanos.Add(duration.Nanoseconds())
	if err != nil {
		m.rpcErrorsTotal.Add(1)
	}
	m.requests.WithLabelValues(endpoint, outcome(err)).Inc()
	m.latency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordWalletOp records a wallet operation. Failures are labelled with
// their error class.
func (m *Metrics) RecordWalletOp(op string, err error) {
	m.walletOpsTotal.Add(1)
	class := "none"
	if err != nil {
		m.walletOpsErrors.Add(1)
		class = string(walleterr.ClassOf(err))
	}
	m.walletOps.WithLabelValues(op, class).Inc()
}

// RecordSync records a tracker sync.
func (m *Metrics) RecordSync(err error) {
	m.syncsTotal.Add(1)
	if err != nil {
		m.syncsFailed.Add(1)
	}
	m.syncs.WithLabelValues(outcome(err)).Inc()
}

// RecordBroadcast records a broadcast attempt.
func (m *Metrics) RecordBroadcast(err error) {
	m.broadcastsTotal.Add(1)
	label := outcome(err)
	if walleterr.Is(err, walleterr.ErrBroadcastRejected) {
		label = "rejected"
	}
	m.broadcasts.WithLabelValues(label).Inc()
}

// SetBreakerOpen records the circuit breaker state.
func (m *Metrics) SetBreakerOpen(name string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.breaker.WithLabelValues(name).Set(v)
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes all metrics in the Prometheus text format to path.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// Snapshot is a point-in-time copy of the totals.
type Snapshot struct {
	RPCCallsTotal   int64
	RPCErrorsTotal  int64
	RPCLatencyNanos int64
	WalletOpsTotal  int64
	WalletOpsErrors int64
	SyncsTotal      int64
	SyncsFailed     int64
	BroadcastsTotal int64
}

// Snapshot returns a point-in-time copy of all totals.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		RPCCallsTotal:   m.rpcCallsTotal.Load(),
		RPCErrorsTotal:  m.rpcErrorsTotal.Load(),
		RPCLatencyNanos: m.rpcLatencyNanos.Load(),
		WalletOpsTotal:  m.walletOpsTotal.Load(),
		WalletOpsErrors: m.walletOpsErrors.Load(),
		SyncsTotal:      m.syncsTotal.Load(),
		SyncsFailed:     m.syncsFailed.Load(),
		BroadcastsTotal: m.broadcastsTotal.Load(),
	}
}

// RPCLatencyAvgMs returns the average request latency in milliseconds,
// or 0 before the first call.
func (m *Metrics) RPCLatencyAvgMs() float64 {
	calls := m.rpcCallsTotal.Load()
	if calls == 0 {
		return 0
	}
	return float64(m.rpcLatencyNanos.Load()) / float64(calls) / 1e6
}
