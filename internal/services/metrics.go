package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// Queue metrics
	JobsProcessed *prometheus.CounterVec

	// Delivery metrics
	RemindersSent   prometheus.Counter
	DailyFanoutSize prometheus.Histogram

	// Conversation metrics
	ChatTurns       prometheus.Counter
	ChatTurnLatency prometheus.Histogram
	ChatErrors      *prometheus.CounterVec
}

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	return &Metrics{
		// Job outcomes per lane (counter - only goes up)
		JobsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "talkasaurus_jobs_processed_total",
			Help: "Total number of queue jobs by lane and outcome",
		}, []string{"lane", "outcome"}), // outcome: "succeeded", "retried", "exhausted"

		RemindersSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "talkasaurus_reminders_sent_total",
			Help: "Total number of reminder notifications delivered",
		}),

		DailyFanoutSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "talkasaurus_daily_fanout_recipients",
			Help:    "Recipients targeted per daily message fan-out",
			Buckets: []float64{0, 1, 10, 50, 100, 500, 1000, 5000},
		}),

		ChatTurns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "talkasaurus_chat_turns_total",
			Help: "Total number of conversation turns processed",
		}),

		ChatTurnLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "talkasaurus_chat_turn_duration_seconds",
			Help:    "Conversation turn latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}, // up to 2 minutes for LLM responses
		}),

		ChatErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "talkasaurus_chat_errors_total",
			Help: "Total number of chat errors by type",
		}, []string{"error_type"}),
	}
}

// JobDone records a queue job outcome. Implements the queue's Observer.
func (m *Metrics) JobDone(lane, outcome string) {
	m.JobsProcessed.WithLabelValues(lane, outcome).Inc()
}

// RecordReminderSent records a delivered reminder
func (m *Metrics) RecordReminderSent() {
	m.RemindersSent.Inc()
}

// RecordDailyFanout records the recipient count of one fan-out run
func (m *Metrics) RecordDailyFanout(recipients int) {
	m.DailyFanoutSize.Observe(float64(recipients))
}

// RecordChatTurn records a processed conversation turn
func (m *Metrics) RecordChatTurn(seconds float64) {
	m.ChatTurns.Inc()
	m.ChatTurnLatency.Observe(seconds)
}

// RecordChatError records a chat error
func (m *Metrics) RecordChatError(errorType string) {
	m.ChatErrors.WithLabelValues(errorType).Inc()
}
