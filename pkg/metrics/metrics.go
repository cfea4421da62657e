// Package metrics exposes Prometheus counters for batch execution.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steer_tasks_completed_total",
		Help: "Total number of tasks that reached completed status",
	})
	TasksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steer_tasks_failed_total",
		Help: "Total number of tasks that reached failed status",
	})
	TasksStopped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steer_tasks_stopped_total",
		Help: "Total number of tasks stopped by user request",
	})
	TaskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "steer_task_duration_seconds",
		Help:    "Task execution duration in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})
	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steer_webhook_deliveries_total",
		Help: "Webhook delivery attempts by outcome",
	}, []string{"outcome"})
	ContextTrims = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steer_context_trims_total",
		Help: "Total number of context trim passes that collapsed tool results",
	})
	ModelCalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "steer_model_calls_total",
		Help: "Total number of model provider round-trips",
	})
)

// RecordTaskOutcome increments the counter matching a task's terminal
// status and observes its duration.
func RecordTaskOutcome(status string, duration time.Duration) {
	switch status {
	case "completed":
		TasksCompleted.Inc()
	case "failed":
		TasksFailed.Inc()
	case "stopped":
		TasksStopped.Inc()
	}
	TaskDuration.Observe(duration.Seconds())
}

// RecordWebhookDelivery counts one delivery attempt. Outcome is
// "delivered", "failed", or "blocked".
func RecordWebhookDelivery(outcome string) {
	WebhookDeliveries.WithLabelValues(outcome).Inc()
}
