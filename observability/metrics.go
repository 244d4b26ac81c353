package observability

import (
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	nativecommon "campusfi/native/common"
	"campusfi/native/fixed"
)

// EngineMetrics records engine operations and the HTTP surface in front of
// them.
type EngineMetrics struct {
	operations  *prometheus.CounterVec
	opLatency   *prometheus.HistogramVec
	requests    *prometheus.CounterVec
	reqLatency  *prometheus.HistogramVec
	throttles   *prometheus.CounterVec
	utilization *prometheus.GaugeVec
	reserves    *prometheus.GaugeVec
	outstanding *prometheus.GaugeVec
}

var (
	engineMetricsOnce sync.Once
	engineRegistry    *EngineMetrics
)

// Engine returns the lazily registered engine metrics.
func Engine() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "campusfi",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Engine operations segmented by module, operation and error kind.",
			}, []string{"module", "op", "kind"}),
			opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "campusfi",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency of engine operations including the resource lock.",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
			}, []string{"module", "op"}),
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "campusfi",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests segmented by route and status code.",
			}, []string{"route", "status"}),
			reqLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "campusfi",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "campusfi",
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Requests rejected by rate limiting.",
			}, []string{"route", "reason"}),
			utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "campusfi",
				Subsystem: "lending",
				Name:      "utilization_ratio",
				Help:      "Current borrowed/supplied ratio per lending pool.",
			}, []string{"pool"}),
			reserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "campusfi",
				Subsystem: "amm",
				Name:      "reserve_tokens",
				Help:      "Current AMM reserves per pool and side.",
			}, []string{"pool", "side"}),
			outstanding: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "campusfi",
				Subsystem: "tranche",
				Name:      "outstanding_tokens",
				Help:      "Sold but unrepaid principal per series and tranche class.",
			}, []string{"series", "class"}),
		}
		prometheus.MustRegister(
			engineRegistry.operations,
			engineRegistry.opLatency,
			engineRegistry.requests,
			engineRegistry.reqLatency,
			engineRegistry.throttles,
			engineRegistry.utilization,
			engineRegistry.reserves,
			engineRegistry.outstanding,
		)
	})
	return engineRegistry
}

// RecordOperation counts an engine call. Successful calls are labelled
// kind="ok"; failures carry the error kind name.
func (m *EngineMetrics) RecordOperation(module, op string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	module = labelOrUnknown(module)
	op = labelOrUnknown(op)
	kind := nativecommon.Kind(err)
	if kind == "" {
		kind = "ok"
	}
	m.operations.WithLabelValues(module, op, kind).Inc()
	m.opLatency.WithLabelValues(module, op).Observe(duration.Seconds())
}

// ObserveRequest records the status ultimately written for route.
func (m *EngineMetrics) ObserveRequest(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	route = labelOrUnknown(route)
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.reqLatency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit".
func (m *EngineMetrics) RecordThrottle(route, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(labelOrUnknown(route), reason).Inc()
}

// SetUtilization publishes a lending pool's wad utilisation.
func (m *EngineMetrics) SetUtilization(pool string, ratio *big.Int) {
	if m == nil {
		return
	}
	m.utilization.WithLabelValues(labelOrUnknown(pool)).Set(wadToFloat(ratio))
}

// SetReserves publishes both AMM reserves of a pool in whole tokens.
func (m *EngineMetrics) SetReserves(pool string, reserveA, reserveB *big.Int) {
	if m == nil {
		return
	}
	pool = labelOrUnknown(pool)
	m.reserves.WithLabelValues(pool, "a").Set(wadToFloat(reserveA))
	m.reserves.WithLabelValues(pool, "b").Set(wadToFloat(reserveB))
}

// SetOutstanding publishes a tranche's unrepaid principal in whole tokens.
func (m *EngineMetrics) SetOutstanding(series, class string, amount *big.Int) {
	if m == nil {
		return
	}
	m.outstanding.WithLabelValues(labelOrUnknown(series), labelOrUnknown(class)).Set(wadToFloat(amount))
}

func wadToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), new(big.Float).SetInt(fixed.Wad)).Float64()
	return f
}

func labelOrUnknown(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return "unknown"
	}
	return v
}
