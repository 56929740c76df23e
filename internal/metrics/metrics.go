// Package metrics provides Prometheus instrumentation for the liquidity manager.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RebalancesTotal counts completed position rebalances by outcome.
	RebalancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alm_rebalances_total",
		Help: "Total number of position rebalances",
	}, []string{"outcome"})

	// MigrationsTotal counts migration state transitions by resulting status.
	MigrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alm_migrations_total",
		Help: "Total number of migration transitions",
	}, []string{"status"})

	// YieldUpdatesTotal counts accepted yield oracle updates.
	YieldUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alm_yield_updates_total",
		Help: "Total number of accepted yield observations",
	})

	// PositionsTracked is the number of positions the range manager owns.
	PositionsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alm_positions_tracked",
		Help: "Number of tracked positions",
	})

	// EscrowedMigrations is the number of migrations currently holding escrow.
	EscrowedMigrations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alm_escrowed_migrations",
		Help: "Number of migrations in Pending or InProgress",
	})

	// CyclesTotal counts completed keeper cycles.
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alm_cycles_total",
		Help: "Total number of keeper cycles run",
	})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
