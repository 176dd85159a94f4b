// Package metrics holds the Prometheus instruments for the tracking
// pipeline. Instruments are registered on the default registry at init.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Tracking endpoint
	TrackingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docbeacon_tracking_requests_total",
			Help: "Tracking endpoint invocations",
		},
		[]string{"mode"}, // "pixel", "gps"
	)

	TrackingJobsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docbeacon_tracking_jobs_dropped_total",
			Help: "Tracking jobs dropped because the pipeline queue stayed full",
		},
	)

	TrackingQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "docbeacon_tracking_queue_depth",
			Help: "Tracking jobs waiting for a worker",
		},
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docbeacon_pipeline_duration_seconds",
			Help:    "Time from job pickup to final status update",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60},
		},
	)

	// Persistence
	AccessEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docbeacon_access_events_total",
			Help: "Access event inserts by result",
		},
		[]string{"result"}, // "inserted", "error"
	)

	EventsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docbeacon_access_events_pruned_total",
			Help: "Access events deleted by the retention pruner",
		},
	)

	// Location resolution
	GeoLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docbeacon_geo_lookups_total",
			Help: "IP geolocation provider calls by result",
		},
		[]string{"provider", "result"}, // "coordinates", "text", "empty", "error", "breaker_open"
	)

	LocationSources = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docbeacon_location_source_total",
			Help: "Resolved locations by source",
		},
		[]string{"source"},
	)

	GeoBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "docbeacon_geo_breaker_state",
			Help: "Circuit breaker state per provider (0=closed, 1=half-open, 2=open)",
		},
		[]string{"provider"},
	)

	// Notifications
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docbeacon_notifications_total",
			Help: "Notification attempts by channel and terminal status",
		},
		[]string{"channel", "status"},
	)

	NotificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docbeacon_notification_duration_seconds",
			Help:    "Duration of one notification channel call",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	// HTTP
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docbeacon_http_requests_total",
			Help: "HTTP requests by route pattern and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docbeacon_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordNotification records one channel attempt. status is the kind of the
// terminal channel status.
func RecordNotification(channel, status string, duration time.Duration) {
	Notifications.WithLabelValues(channel, status).Inc()
	NotificationDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

func RecordGeoLookup(provider, result string) {
	GeoLookups.WithLabelValues(provider, result).Inc()
}

func RecordLocationSource(source string) {
	LocationSources.WithLabelValues(source).Inc()
}

func RecordAccessEvent(err error) {
	if err != nil {
		AccessEvents.WithLabelValues("error").Inc()
		return
	}
	AccessEvents.WithLabelValues("inserted").Inc()
}

func RecordHTTPRequest(method, route, status string, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
