// Package metrics exports swap outcomes and fee figures to Prometheus.
package metrics

import (
	"math/big"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/universalswapper/relayer/fees"
)

const (
	namespace = "swapper"
	subsystem = "relayer"
)

// SwapMetrics implements the orchestrator's Recorder on a Prometheus registry.
type SwapMetrics struct {
	gatherer prometheus.Gatherer

	swaps        *prometheus.CounterVec
	swapDuration *prometheus.HistogramVec
	gasUnits     prometheus.Histogram
	gasCost      prometheus.Histogram
	tokenPrice   *prometheus.GaugeVec
	fee          *prometheus.GaugeVec
	overcharge   *prometheus.GaugeVec
	reconciled   *prometheus.CounterVec
}

// New registers the swap collectors with a fresh registry.
func New() *SwapMetrics {
	reg := prometheus.NewRegistry()
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors with reg and serves gatherer on Handler.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *SwapMetrics {
	m := &SwapMetrics{
		gatherer: gatherer,
		swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "swaps_total",
			Help:      "Swap attempts by final state and failing phase.",
		}, []string{"state", "phase"}),
		swapDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "swap_duration_seconds",
			Help:      "Wall time from request to confirmation or failure.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"state"}),
		gasUnits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "estimated_gas_units",
			Help:      "Gas estimated for execute calls.",
			Buckets:   prometheus.ExponentialBuckets(50_000, 1.5, 10),
		}),
		gasCost: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "estimated_gas_cost_gwei",
			Help:      "Estimated execute cost in gwei.",
			Buckets:   prometheus.ExponentialBuckets(10_000, 2, 14),
		}),
		tokenPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "token_price_wei",
			Help:      "Last quoted price of one whole token in wei.",
		}, []string{"token"}),
		fee: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fee_token_units",
			Help:      "Last gas fee charged, in the token's smallest unit.",
		}, []string{"token"}),
		overcharge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fee_overcharge_token_units",
			Help:      "Charged minus actual gas fee of the last confirmed swap. Negative when undercharged.",
		}, []string{"token"}),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fee_reconciliations_total",
			Help:      "Confirmed swaps whose fee was reconciled, by direction.",
		}, []string{"token", "direction"}),
	}
	reg.MustRegister(
		m.swaps,
		m.swapDuration,
		m.gasUnits,
		m.gasCost,
		m.tokenPrice,
		m.fee,
		m.overcharge,
		m.reconciled,
	)
	return m
}

// SwapFinished counts a finished attempt; phase is empty for confirmed swaps.
func (m *SwapMetrics) SwapFinished(state string, phase string, duration time.Duration) {
	m.swaps.WithLabelValues(state, phase).Inc()
	m.swapDuration.WithLabelValues(state).Observe(duration.Seconds())
}

// FeeResolved records the estimate, price and fee of one resolution.
func (m *SwapMetrics) FeeResolved(token string, resolution *fees.Resolution) {
	if resolution == nil {
		return
	}
	if resolution.Estimate != nil {
		m.gasUnits.Observe(float64(resolution.Estimate.GasUnits))
		m.gasCost.Observe(gwei(resolution.Estimate.CostWei))
	}
	m.tokenPrice.WithLabelValues(token).Set(toFloat(resolution.PriceWei))
	m.fee.WithLabelValues(token).Set(toFloat(resolution.FeeInToken))
}

// Reconciled records how far the charged fee was from the receipt.
func (m *SwapMetrics) Reconciled(token string, reconciliation *fees.Reconciliation) {
	if reconciliation == nil {
		return
	}
	over := reconciliation.OverchargeInToken
	m.overcharge.WithLabelValues(token).Set(toFloat(over))

	direction := "exact"
	switch {
	case over == nil:
	case over.Sign() > 0:
		direction = "over"
	case over.Sign() < 0:
		direction = "under"
	}
	m.reconciled.WithLabelValues(token, direction).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *SwapMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

func gwei(wei *big.Int) float64 {
	return toFloat(wei) / 1e9
}
