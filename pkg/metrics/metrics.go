// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// ConversationsTotal tracks conversations opened.
	ConversationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "support_conversations_total",
			Help: "Total support conversations opened",
		},
	)

	// MessagesTotal tracks accepted messages by sender type.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_messages_total",
			Help: "Total messages appended",
		},
		[]string{"sender_type"},
	)

	// MessagesRejected tracks appends refused before touching the log.
	MessagesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_messages_rejected_total",
			Help: "Total message appends rejected",
		},
		[]string{"reason"},
	)

	// StatusTransitions tracks conversation status changes.
	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_status_transitions_total",
			Help: "Conversation status transitions",
		},
		[]string{"from", "to"},
	)

	// HandoffsTotal tracks handoff requests by outcome.
	HandoffsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_handoffs_total",
			Help: "Handoff requests by outcome",
		},
		[]string{"outcome"},
	)

	// NotificationsTotal tracks persisted notifications.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notifications persisted",
		},
		[]string{"type", "recipient_type"},
	)

	// EmailDeliveries tracks email channel attempts.
	EmailDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_email_deliveries_total",
			Help: "Email channel delivery attempts",
		},
		[]string{"status"},
	)

	// BroadcastRecipients tracks per-recipient broadcast outcomes.
	BroadcastRecipients = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_broadcast_recipients_total",
			Help: "Broadcast deliveries per recipient outcome",
		},
		[]string{"group", "status"},
	)

	// PollErrors tracks failed reconciliation polls.
	PollErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_poll_errors_total",
			Help: "Failed reconciliation polls",
		},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// LLMDuration tracks assistant completion latency.
	LLMDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_completion_duration_seconds",
			Help:    "Assistant completion duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"model", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// EventsPublished tracks conversation events mirrored to the bus.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "support_events_published_total",
			Help: "Conversation events published",
		},
		[]string{"type", "status"},
	)

	// DomainEventsConsumed tracks inbound domain events.
	DomainEventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domain_events_consumed_total",
			Help: "Domain events routed to triggers",
		},
		[]string{"type", "status"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordTransition records a conversation status change.
func RecordTransition(from, to string) {
	StatusTransitions.WithLabelValues(from, to).Inc()
}

// RecordLLM records metrics for an assistant completion.
func RecordLLM(model, status string, seconds float64, tokensIn, tokensOut int) {
	LLMDuration.WithLabelValues(model, status).Observe(seconds)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
