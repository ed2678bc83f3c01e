package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics

	oracleMetricsOnce sync.Once
	oracleRegistry    *OracleMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "colend",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "colend",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "colend",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "colend",
				Subsystem: "module",
				Name:      "throttles_total",
				Help:      "Count of module requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" or
// "quota_exceeded" so dashboards and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// LedgerMetrics wraps collectors tracking ledger health per asset.
type LedgerMetrics struct {
	operations    *prometheus.CounterVec
	liquidations  *prometheus.CounterVec
	rebalances    *prometheus.CounterVec
	totalDeposits *prometheus.GaugeVec
	totalBorrows  *prometheus.GaugeVec
	totalReserves *prometheus.GaugeVec
}

// Ledger exposes the metrics registry for ledger operations.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "colend",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Count of ledger operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "colend",
				Subsystem: "ledger",
				Name:      "liquidations_total",
				Help:      "Count of completed liquidations segmented by debt asset.",
			}, []string{"asset"}),
			rebalances: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "colend",
				Subsystem: "ledger",
				Name:      "rebalances_total",
				Help:      "Count of auto-rebalance runs segmented by result.",
			}, []string{"result"}),
			totalDeposits: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "colend",
				Subsystem: "ledger",
				Name:      "pool_deposits",
				Help:      "Pool deposits per asset in the asset's smallest unit.",
			}, []string{"asset"}),
			totalBorrows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "colend",
				Subsystem: "ledger",
				Name:      "pool_borrows",
				Help:      "Outstanding pool borrows per asset in the asset's smallest unit.",
			}, []string{"asset"}),
			totalReserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "colend",
				Subsystem: "ledger",
				Name:      "pool_reserves",
				Help:      "Accrued protocol reserves per asset in the asset's smallest unit.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.operations,
			ledgerRegistry.liquidations,
			ledgerRegistry.rebalances,
			ledgerRegistry.totalDeposits,
			ledgerRegistry.totalBorrows,
			ledgerRegistry.totalReserves,
		)
	})
	return ledgerRegistry
}

// RecordOperation counts one ledger operation outcome.
func (m *LedgerMetrics) RecordOperation(operation string, err error) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

// RecordLiquidation counts one completed liquidation against the debt asset.
func (m *LedgerMetrics) RecordLiquidation(asset string) {
	if m == nil {
		return
	}
	m.liquidations.WithLabelValues(labelAsset(asset)).Inc()
}

// RecordRebalance counts one auto-rebalance run. Result should be a stable
// string such as "applied", "skipped", or "error".
func (m *LedgerMetrics) RecordRebalance(result string) {
	if m == nil {
		return
	}
	if result = strings.TrimSpace(result); result == "" {
		result = "unknown"
	}
	m.rebalances.WithLabelValues(result).Inc()
}

// RecordPool updates the per-asset pool gauges.
func (m *LedgerMetrics) RecordPool(asset string, deposits, borrows, reserves *big.Int) {
	if m == nil {
		return
	}
	label := labelAsset(asset)
	m.totalDeposits.WithLabelValues(label).Set(bigToFloat(deposits))
	m.totalBorrows.WithLabelValues(label).Set(bigToFloat(borrows))
	m.totalReserves.WithLabelValues(label).Set(bigToFloat(reserves))
}

// OracleMetrics bundles collectors for quote acceptance and freshness.
type OracleMetrics struct {
	updates   *prometheus.CounterVec
	rejects   *prometheus.CounterVec
	freshness *prometheus.GaugeVec
}

// Oracle returns the metrics registry for the price feed.
func Oracle() *OracleMetrics {
	oracleMetricsOnce.Do(func() {
		oracleRegistry = &OracleMetrics{
			updates: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "colend",
				Subsystem: "oracle",
				Name:      "updates_total",
				Help:      "Count of accepted quotes segmented by asset and provider.",
			}, []string{"asset", "provider"}),
			rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "colend",
				Subsystem: "oracle",
				Name:      "rejects_total",
				Help:      "Count of rejected quote submissions segmented by asset and reason.",
			}, []string{"asset", "reason"}),
			freshness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "colend",
				Subsystem: "oracle",
				Name:      "quote_age_seconds",
				Help:      "Age in seconds of the last accepted quote per asset.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(oracleRegistry.updates, oracleRegistry.rejects, oracleRegistry.freshness)
	})
	return oracleRegistry
}

// RecordUpdate counts one accepted quote.
func (m *OracleMetrics) RecordUpdate(asset, provider string) {
	if m == nil {
		return
	}
	if provider = strings.TrimSpace(provider); provider == "" {
		provider = "unknown"
	}
	m.updates.WithLabelValues(labelAsset(asset), provider).Inc()
}

// RecordReject counts one rejected quote submission.
func (m *OracleMetrics) RecordReject(asset, reason string) {
	if m == nil {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.rejects.WithLabelValues(labelAsset(asset), reason).Inc()
}

// RecordFreshness records the age of the newest accepted quote.
func (m *OracleMetrics) RecordFreshness(asset string, age time.Duration) {
	if m == nil {
		return
	}
	m.freshness.WithLabelValues(labelAsset(asset)).Set(age.Seconds())
}

func labelAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(trimmed)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
