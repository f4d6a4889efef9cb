package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tutor_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_messages_stored_total",
			Help: "Total chat messages persisted",
		},
		[]string{"role"},
	)

	ChatCompletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_chat_completions_total",
			Help: "Chat completions by provider and outcome",
		},
		[]string{"provider", "outcome"}, // outcome: "ok", "error" or "fallback"
	)

	ChatLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tutor_chat_latency_seconds",
			Help:    "Chat completion latency",
			Buckets: []float64{.25, .5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"provider"},
	)

	SpeechSyntheses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_speech_syntheses_total",
			Help: "Speech synthesis requests by outcome",
		},
		[]string{"outcome"},
	)

	SpeechTruncations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tutor_speech_truncations_total",
			Help: "Speech inputs truncated to the provider limit",
		},
	)

	// Infrastructure metrics
	EventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tutor_event_subscribers",
			Help: "Open session event subscriptions",
		},
	)
)
