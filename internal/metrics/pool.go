package metrics

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolMetrics exposes per-pair operation outcomes and reserve levels.
type PoolMetrics struct {
	operations *prometheus.CounterVec
	reserves   *prometheus.GaugeVec
	shares     *prometheus.GaugeVec
}

// NewPoolMetrics builds a metrics set and registers it with reg.
func NewPoolMetrics(reg prometheus.Registerer) *PoolMetrics {
	m := &PoolMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pair_operations_total",
			Help: "Count of pair operations by name and result.",
		}, []string{"pair", "operation", "result"}),
		reserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pair_reserve",
			Help: "Committed reserve per asset side, in base units.",
		}, []string{"pair", "side"}),
		shares: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pair_total_shares",
			Help: "Total liquidity share supply.",
		}, []string{"pair"}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.reserves, m.shares)
	}
	return m
}

// ObserveOperation counts one operation outcome. A nil err is a commit.
func (m *PoolMetrics) ObserveOperation(pair, operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	m.operations.WithLabelValues(pair, operation, result).Inc()
}

// RecordReserves sets the reserve gauges after a sync point.
func (m *PoolMetrics) RecordReserves(pair string, reserveA, reserveB *uint256.Int) {
	if m == nil {
		return
	}
	m.reserves.WithLabelValues(pair, "a").Set(toFloat(reserveA))
	m.reserves.WithLabelValues(pair, "b").Set(toFloat(reserveB))
}

func (m *PoolMetrics) RecordTotalShares(pair string, total *uint256.Int) {
	if m == nil {
		return
	}
	m.shares.WithLabelValues(pair).Set(toFloat(total))
}

func toFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
