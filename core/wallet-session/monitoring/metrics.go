package monitoring

import (
	"math/big"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fundme"

// Metrics collects controller metrics. All methods are safe on a nil receiver.
type Metrics struct {
	contractBalance prometheus.Gauge
	lastRefresh     prometheus.Gauge
	refreshes       *prometheus.CounterVec
	writes          *prometheus.CounterVec
	writeDuration   *prometheus.HistogramVec
	walletConnected prometheus.Gauge
	walletEvents    *prometheus.CounterVec
	fundedEvents    prometheus.Counter
}

// NewMetrics registers the controller metrics with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		contractBalance: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "contract_balance_ether",
			Help:      "Last observed contract balance in display units.",
		}),
		lastRefresh: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "balance_last_refresh_timestamp_seconds",
			Help:      "Unix time of the last successful balance refresh.",
		}),
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "balance_refreshes_total",
			Help:      "Balance refresh attempts by trigger and result.",
		}, []string{"source", "result"}),
		writes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_actions_total",
			Help:      "Fund and withdraw attempts by outcome.",
		}, []string{"op", "outcome"}),
		writeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_action_duration_seconds",
			Help:      "Time from submission to confirmation of write actions.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}, []string{"op"}),
		walletConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wallet_connected",
			Help:      "1 while a wallet account is connected.",
		}),
		walletEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallet_events_total",
			Help:      "Account and chain change notifications from the wallet.",
		}, []string{"type"}),
		fundedEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "funded_events_total",
			Help:      "Funded events received from the contract.",
		}),
	}
}

// SetBalance records a refreshed contract balance
func (m *Metrics) SetBalance(wei *big.Int, at time.Time) {
	if m == nil || wei == nil {
		return
	}
	ether, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18)).Float64()
	m.contractBalance.Set(ether)
	m.lastRefresh.Set(float64(at.Unix()))
}

// ObserveRefresh counts a refresh attempt
func (m *Metrics) ObserveRefresh(source string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "stale"
	}
	m.refreshes.WithLabelValues(source, result).Inc()
}

// ObserveWrite counts a write attempt. outcome is "confirmed" or an error kind.
func (m *Metrics) ObserveWrite(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(op, outcome).Inc()
	if outcome == "confirmed" {
		m.writeDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	}
}

// SetConnected records whether a wallet account is connected
func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.walletConnected.Set(1)
	} else {
		m.walletConnected.Set(0)
	}
}

// WalletEvent counts a wallet notification ("accounts" or "chain")
func (m *Metrics) WalletEvent(kind string) {
	if m == nil {
		return
	}
	m.walletEvents.WithLabelValues(kind).Inc()
}

// FundedEvent counts a Funded contract event
func (m *Metrics) FundedEvent() {
	if m == nil {
		return
	}
	m.fundedEvents.Inc()
}
