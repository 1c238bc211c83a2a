// Package metrics provides the centralized Prometheus metrics registry for
// the platform.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	TasksStartedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arbihawk",
		Name:      "tasks_started_total",
		Help:      "Total number of scheduler tasks started",
	}, []string{"task", "domain"})
	TasksFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arbihawk",
		Name:      "tasks_failed_total",
		Help:      "Total number of scheduler tasks that failed",
	}, []string{"task", "domain"})
	TasksSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arbihawk",
		Name:      "tasks_skipped_total",
		Help:      "Total number of scheduler tasks skipped because another task was running",
	}, []string{"task", "domain"})
	PayloadsIngestedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arbihawk",
		Name:      "payloads_ingested_total",
		Help:      "Total number of scraper payloads ingested, by validation status",
	}, []string{"source", "status"})
	BetsPlacedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "arbihawk",
		Name:      "bets_placed_total",
		Help:      "Total number of value bets placed",
	})
	BetsSettledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arbihawk",
		Name:      "bets_settled_total",
		Help:      "Total number of bets settled, by result",
	}, []string{"result"})
	TradesExecutedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "arbihawk",
		Name:      "trades_executed_total",
		Help:      "Total number of paper trades executed, by trade type",
	}, []string{"trade_type"})
	ModelRollbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "arbihawk",
		Name:      "model_rollbacks_total",
		Help:      "Total number of automatic model rollbacks",
	})
	ScoresMatchedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "arbihawk",
		Name:      "scores_matched_total",
		Help:      "Total number of synthetic scores matched to fixtures",
	})
)

// Gauge metrics
var (
	PendingBets = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "arbihawk",
		Name:      "pending_bets",
		Help:      "Number of unsettled bets",
	})
	OpenPositions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "arbihawk",
		Name:      "open_positions",
		Help:      "Number of open paper positions",
	})
	PortfolioValue = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "arbihawk",
		Name:      "portfolio_value",
		Help:      "Total paper portfolio value",
	})
	BankrollROI = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "arbihawk",
		Name:      "bankroll_roi",
		Help:      "Return on investment of settled bets per model market",
	}, []string{"model_market"})
)

// Histogram metrics
var (
	TaskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "arbihawk",
		Name:      "task_duration_seconds",
		Help:      "Duration of scheduler tasks in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 300, 600, 1800},
	}, []string{"task"})
	ScraperDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "arbihawk",
		Name:      "scraper_duration_seconds",
		Help:      "Duration of scraper subprocess runs in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"source"})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(TasksStartedTotal)
		registry.MustRegister(TasksFailedTotal)
		registry.MustRegister(TasksSkippedTotal)
		registry.MustRegister(PayloadsIngestedTotal)
		registry.MustRegister(BetsPlacedTotal)
		registry.MustRegister(BetsSettledTotal)
		registry.MustRegister(TradesExecutedTotal)
		registry.MustRegister(ModelRollbacksTotal)
		registry.MustRegister(ScoresMatchedTotal)

		registry.MustRegister(PendingBets)
		registry.MustRegister(OpenPositions)
		registry.MustRegister(PortfolioValue)
		registry.MustRegister(BankrollROI)

		registry.MustRegister(TaskDuration)
		registry.MustRegister(ScraperDuration)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}

// RecordTaskStarted records a scheduler task start.
func RecordTaskStarted(task, domain string) {
	TasksStartedTotal.WithLabelValues(task, domain).Inc()
}

// RecordTaskFailed records a scheduler task failure.
func RecordTaskFailed(task, domain string) {
	TasksFailedTotal.WithLabelValues(task, domain).Inc()
}

// RecordTaskSkipped records a scheduler task skipped by the single-task rule.
func RecordTaskSkipped(task, domain string) {
	TasksSkippedTotal.WithLabelValues(task, domain).Inc()
}

// RecordTaskDuration records a completed task's duration.
func RecordTaskDuration(task string, durationSeconds float64) {
	TaskDuration.WithLabelValues(task).Observe(durationSeconds)
}

// RecordPayloadIngested records one ingested payload and its outcome.
func RecordPayloadIngested(source, status string) {
	PayloadsIngestedTotal.WithLabelValues(source, status).Inc()
}

// RecordScraperDuration records a scraper subprocess duration.
func RecordScraperDuration(source string, durationSeconds float64) {
	ScraperDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordBetPlaced records a bet placement.
func RecordBetPlaced() {
	BetsPlacedTotal.Inc()
}

// RecordBetSettled records a settled bet.
func RecordBetSettled(result string) {
	BetsSettledTotal.WithLabelValues(result).Inc()
}

// RecordTradeExecuted records an executed paper trade.
func RecordTradeExecuted(tradeType string) {
	TradesExecutedTotal.WithLabelValues(tradeType).Inc()
}

// RecordModelRollback records an automatic model rollback.
func RecordModelRollback() {
	ModelRollbacksTotal.Inc()
}

// RecordScoreMatched records a synthetic score resolved to a fixture.
func RecordScoreMatched() {
	ScoresMatchedTotal.Inc()
}

// UpdatePendingBets updates the pending-bets gauge.
func UpdatePendingBets(count float64) {
	PendingBets.Set(count)
}

// UpdateOpenPositions updates the open-positions gauge.
func UpdateOpenPositions(count float64) {
	OpenPositions.Set(count)
}

// UpdatePortfolioValue updates the portfolio-value gauge.
func UpdatePortfolioValue(value float64) {
	PortfolioValue.Set(value)
}

// UpdateBankrollROI updates the per-market ROI gauge.
func UpdateBankrollROI(modelMarket string, roi float64) {
	BankrollROI.WithLabelValues(modelMarket).Set(roi)
}
