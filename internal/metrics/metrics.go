// Package metrics exposes sweeper counters and gauges in Prometheus format.
package metrics

import (
	"math/big"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vadiminshakov/sweepguard/internal/domain"
)

const namespace = "sweepguard"

// Metrics groups every collector of the process. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry *prometheus.Registry

	ticks           prometheus.Counter
	ticksSkipped    prometheus.Counter
	sweeps          prometheus.Counter
	sweepFailures   prometheus.Counter
	insufficient    prometheus.Counter
	failovers       *prometheus.CounterVec
	networkErrors   *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	balance         prometheus.Gauge
	activeEndpoint  prometheus.Gauge
	lastSweepAmount prometheus.Gauge
	lastSweepTime   prometheus.Gauge
}

// New creates the collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sweeper", Name: "ticks_total",
			Help: "Sweep cycles started.",
		}),
		ticksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sweeper", Name: "ticks_skipped_total",
			Help: "Sweep cycles skipped because a previous cycle was still in flight.",
		}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sweeper", Name: "sweeps_total",
			Help: "Transfers broadcast to the safe account.",
		}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sweeper", Name: "sweep_failures_total",
			Help: "Transfers that failed during nonce lookup, signing or broadcast.",
		}),
		insufficient: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sweeper", Name: "insufficient_for_gas_total",
			Help: "Cycles where the balance passed the threshold but nothing remained after gas.",
		}),
		failovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rpc", Name: "failovers_total",
			Help: "Endpoint switches, labelled by the endpoint that was abandoned.",
		}, []string{"endpoint"}),
		networkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rpc", Name: "errors_total",
			Help: "Failed RPC calls by operation.",
		}, []string{"op"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "notify", Name: "messages_total",
			Help: "Notifications by delivery result.",
		}, []string{"result"}),
		balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "wallet", Name: "balance_eth",
			Help: "Last observed balance of the monitored account.",
		}),
		activeEndpoint: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "rpc", Name: "active_endpoint_index",
			Help: "Index of the endpoint currently used for RPC calls.",
		}),
		lastSweepAmount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "sweeper", Name: "last_sweep_amount_eth",
			Help: "Amount moved by the most recent sweep.",
		}),
		lastSweepTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "sweeper", Name: "last_sweep_timestamp_seconds",
			Help: "Unix time of the most recent sweep.",
		}),
	}

	m.registry.MustRegister(
		m.ticks, m.ticksSkipped, m.sweeps, m.sweepFailures, m.insufficient,
		m.failovers, m.networkErrors, m.notifications,
		m.balance, m.activeEndpoint, m.lastSweepAmount, m.lastSweepTime,
	)
	return m
}

// Registry returns the registry backing the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) TickStarted() {
	if m != nil {
		m.ticks.Inc()
	}
}

func (m *Metrics) TickSkipped() {
	if m != nil {
		m.ticksSkipped.Inc()
	}
}

func (m *Metrics) InsufficientForGas() {
	if m != nil {
		m.insufficient.Inc()
	}
}

// SweepSucceeded records a broadcast transfer.
func (m *Metrics) SweepSucceeded(record domain.SweepRecord) {
	if m == nil {
		return
	}
	m.sweeps.Inc()
	m.lastSweepAmount.Set(domain.EtherFloat(record.Amount))
	m.lastSweepTime.Set(float64(record.Timestamp.Unix()))
}

func (m *Metrics) SweepFailed() {
	if m != nil {
		m.sweepFailures.Inc()
	}
}

// Failover records a switch away from endpoint (already redacted) to index next.
func (m *Metrics) Failover(endpoint string, next int) {
	if m == nil {
		return
	}
	m.failovers.WithLabelValues(endpoint).Inc()
	m.activeEndpoint.Set(float64(next))
}

func (m *Metrics) NetworkError(op string) {
	if m != nil {
		m.networkErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) SetActiveEndpoint(index int) {
	if m != nil {
		m.activeEndpoint.Set(float64(index))
	}
}

func (m *Metrics) SetBalance(wei *big.Int) {
	if m != nil && wei != nil {
		m.balance.Set(domain.EtherFloat(wei))
	}
}

// Notification records a delivery attempt.
func (m *Metrics) Notification(delivered bool) {
	if m != nil {
		m.notifications.WithLabelValues(strconv.FormatBool(delivered)).Inc()
	}
}
