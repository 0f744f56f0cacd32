// Package metrics defines Vega's Prometheus collectors.
//
// Collectors are registered on the default registry at init and exposed by
// the API server at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubscriptionState tracks the lifecycle state of each collection's push subscription.
	// Values: 0 idle, 1 subscribing, 2 connected, 3 closed, 4 failed.
	SubscriptionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vega_subscription_state",
			Help: "Push subscription state per collection (0 idle, 1 subscribing, 2 connected, 3 closed, 4 failed)",
		},
		[]string{"collection"},
	)

	// SubscriptionReconnectsTotal counts scheduled reconnect attempts per collection
	SubscriptionReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vega_subscription_reconnects_total",
			Help: "Total number of scheduled push subscription reconnects",
		},
		[]string{"collection"},
	)

	// GrainChangesTotal counts reconciled record changes by collection and change type
	GrainChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vega_grain_changes_total",
			Help: "Total number of record changes applied from registry grains",
		},
		[]string{"collection", "change_type"},
	)

	// GrainMalformedTotal counts dropped grain messages or entries
	GrainMalformedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vega_grain_malformed_total",
			Help: "Total number of malformed grain messages or entries dropped",
		},
		[]string{"collection"},
	)

	// ResourcesTotal tracks the number of records held per collection
	ResourcesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vega_resources",
			Help: "Number of registry records held in the local store",
		},
		[]string{"collection"},
	)

	// DiscoverRunsTotal counts discover runs by outcome
	DiscoverRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vega_discover_runs_total",
			Help: "Total number of discover runs",
		},
		[]string{"outcome"},
	)

	// ConnectionOperationsTotal counts connect, disconnect and query calls by outcome
	ConnectionOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vega_connection_operations_total",
			Help: "Total number of receiver connection operations",
		},
		[]string{"operation", "outcome"},
	)

	// UpstreamRequestDuration tracks registry and device request latency in seconds
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vega_upstream_request_duration_seconds",
			Help:    "Duration of registry and device HTTP requests in seconds",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 1, 2.5, 5},
		},
		[]string{"target", "method", "status"},
	)

	// HeartbeatsTotal counts registration heartbeats by outcome
	HeartbeatsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vega_registration_heartbeats_total",
			Help: "Total number of node heartbeats sent to the registration API",
		},
		[]string{"outcome"},
	)
)

// SetSubscriptionState records the current state of a collection's subscription.
func SetSubscriptionState(collection string, state int) {
	SubscriptionState.WithLabelValues(collection).Set(float64(state))
}

// RecordReconnect records a scheduled reconnect for a collection.
func RecordReconnect(collection string) {
	SubscriptionReconnectsTotal.WithLabelValues(collection).Inc()
}

// RecordGrainChange records one applied record change.
func RecordGrainChange(collection, changeType string) {
	GrainChangesTotal.WithLabelValues(collection, changeType).Inc()
}

// RecordGrainMalformed records a dropped grain message or entry.
func RecordGrainMalformed(collection string) {
	GrainMalformedTotal.WithLabelValues(collection).Inc()
}

// SetResourceCount records how many records a collection holds.
func SetResourceCount(collection string, count int) {
	ResourcesTotal.WithLabelValues(collection).Set(float64(count))
}

// RecordDiscover records a discover run. outcome is "success" or an error kind.
func RecordDiscover(outcome string) {
	DiscoverRunsTotal.WithLabelValues(outcome).Inc()
}

// RecordConnectionOperation records a connect, disconnect or query outcome.
func RecordConnectionOperation(operation, outcome string) {
	ConnectionOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordHeartbeat records a heartbeat outcome.
func RecordHeartbeat(outcome string) {
	HeartbeatsTotal.WithLabelValues(outcome).Inc()
}

// HTTPObserver feeds UpstreamRequestDuration. Target names the remote
// side, e.g. "registry" or "device".
type HTTPObserver struct {
	Target string
}

// ObserveRequest records one request. A zero status is recorded as "error".
func (o HTTPObserver) ObserveRequest(method string, status int, elapsed time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	UpstreamRequestDuration.WithLabelValues(o.Target, method, label).Observe(elapsed.Seconds())
}
