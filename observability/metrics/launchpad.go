package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"launchpad/core/events"
	"launchpad/native/launch"
)

type LaunchpadMetrics struct {
	salesCreated  prometheus.Counter
	trades        *prometheus.CounterVec
	tradeVolume   *prometheus.CounterVec
	feesCollected prometheus.Counter
	migrations    prometheus.Counter
	rpcRequests   *prometheus.CounterVec
	rpcDuration   *prometheus.HistogramVec
}

var (
	launchpadOnce     sync.Once
	launchpadRegistry *LaunchpadMetrics
)

// Launchpad returns the process-wide sale metrics, registering them on first
// use.
func Launchpad() *LaunchpadMetrics {
	launchpadOnce.Do(func() {
		launchpadRegistry = &LaunchpadMetrics{
			salesCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "launchpad_sales_created_total",
				Help: "Count of bonding-curve sales opened.",
			}),
			trades: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "launchpad_trades_total",
				Help: "Count of executed trades by side.",
			}, []string{"side"}),
			tradeVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "launchpad_trade_volume_base_units",
				Help: "Reserve volume traded through the curve by side.",
			}, []string{"side"}),
			feesCollected: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "launchpad_fees_collected_base_units",
				Help: "Reserve fees routed to the platform vault.",
			}),
			migrations: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "launchpad_migrations_total",
				Help: "Count of sales graduated to a liquidity pool.",
			}),
			rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "launchpad_rpc_requests_total",
				Help: "Count of JSON-RPC requests by method and outcome.",
			}, []string{"method", "outcome"}),
			rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "launchpad_rpc_duration_seconds",
				Help:    "JSON-RPC handler latency by method.",
				Buckets: prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(
			launchpadRegistry.salesCreated,
			launchpadRegistry.trades,
			launchpadRegistry.tradeVolume,
			launchpadRegistry.feesCollected,
			launchpadRegistry.migrations,
			launchpadRegistry.rpcRequests,
			launchpadRegistry.rpcDuration,
		)
	})
	return launchpadRegistry
}

func (m *LaunchpadMetrics) ObserveRPC(method, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(method, outcome).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(seconds)
}

// Emitter adapts the metrics registry to the engine event stream so trading
// activity is observable without touching the engine itself.
type Emitter struct {
	metrics *LaunchpadMetrics
}

// NewEmitter returns an events.Emitter feeding the launchpad metrics.
func NewEmitter() *Emitter {
	return &Emitter{metrics: Launchpad()}
}

var _ events.Emitter = (*Emitter)(nil)

// Emit implements events.Emitter.
func (e *Emitter) Emit(evt events.Event) {
	if e == nil || e.metrics == nil {
		return
	}
	switch evt.Type {
	case launch.EventTypeSaleCreated:
		e.metrics.salesCreated.Inc()
	case launch.EventTypeSalePurchased:
		e.metrics.trades.WithLabelValues("buy").Inc()
		e.metrics.tradeVolume.WithLabelValues("buy").Add(attrFloat(evt, "cost"))
		e.metrics.feesCollected.Add(attrFloat(evt, "fee"))
	case launch.EventTypeSaleSold:
		e.metrics.trades.WithLabelValues("sell").Inc()
		e.metrics.tradeVolume.WithLabelValues("sell").Add(attrFloat(evt, "gross"))
		e.metrics.feesCollected.Add(attrFloat(evt, "fee"))
	case launch.EventTypeSaleMigrated:
		e.metrics.migrations.Inc()
		e.metrics.feesCollected.Add(attrFloat(evt, "feePaid"))
	}
}

func attrFloat(evt events.Event, key string) float64 {
	raw, ok := evt.Attributes[key]
	if !ok {
		return 0
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return float64(v)
}
