package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	startTime = time.Now()

	// UptimeSeconds tracks the marketplace service uptime in seconds
	UptimeSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskmesh",
		Subsystem: "marketplace",
		Name:      "uptime_seconds",
		Help:      "Time passed since the marketplace started in seconds",
	})

	// Lifecycle operation metrics
	JobOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskmesh",
		Subsystem: "marketplace",
		Name:      "job_operations_total",
		Help:      "Lifecycle operations served (operation=post/accept/submit/validate/cancel/timeout, status=ok/rejected/error)",
	}, []string{"operation", "status"})

	// Ledger transaction metrics
	LedgerTransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskmesh",
		Subsystem: "marketplace",
		Name:      "ledger_transactions_total",
		Help:      "Ledger transactions submitted (action, status=pending/confirmed/failed)",
	}, []string{"action", "status"})

	// Event indexing metrics
	EventsIndexedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskmesh",
		Subsystem: "marketplace",
		Name:      "events_indexed_total",
		Help:      "Escrow contract events folded into the transaction log",
	}, []string{"event_type"})

	// Current block number metrics
	CurrentBlockNumber = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskmesh",
		Subsystem: "marketplace",
		Name:      "current_block_number",
		Help:      "Last ledger block processed by the indexer",
	})

	// Reconciliation metrics
	SweepCorrectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskmesh",
		Subsystem: "marketplace",
		Name:      "sweep_corrections_total",
		Help:      "Jobs corrected to a ledger-terminal status by the sweeper",
	})

	SweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskmesh",
		Subsystem: "marketplace",
		Name:      "sweep_runs_total",
		Help:      "Reconciliation sweeps executed (status=ok/error)",
	}, []string{"status"})
)

// StartMetricsCollection starts collecting metrics
func StartMetricsCollection() {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			UptimeSeconds.Set(time.Since(startTime).Seconds())
		}
	}()
}
