package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsWritten counts notification rows upserted by the dispatcher.
	NotificationsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pickup_notifications_written_total",
			Help: "Total number of notification rows upserted",
		},
	)

	// GuestsSkipped counts participants dropped from a recipient set because they are guests.
	GuestsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pickup_notification_guests_skipped_total",
			Help: "Total number of guest participants excluded from dispatch",
		},
	)

	// RelayAttempts records relay POST outcomes (success|failure|skipped|empty).
	RelayAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pickup_relay_attempts_total",
			Help: "Push relay attempts by outcome",
		},
		[]string{"result"},
	)

	// PushDeliveries records web push sends by outcome (sent|failed|expired).
	PushDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pickup_push_deliveries_total",
			Help: "Web push deliveries by outcome",
		},
		[]string{"result"},
	)

	// LocalFallbacks counts in-page fallback displays sent to the caller's open pages.
	LocalFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pickup_local_fallbacks_total",
			Help: "Total number of in-page notification fallbacks",
		},
	)

	// RealtimeDropped counts change-feed events dropped because a subscriber queue was full.
	RealtimeDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pickup_realtime_dropped_total",
			Help: "Change feed events dropped for slow subscribers",
		},
	)
)
