package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	realtimeSessions     prometheus.Gauge
	realtimeEventsTotal  *prometheus.CounterVec
	forcedDisconnects    *prometheus.CounterVec
	chatMessagesSent     *prometheus.CounterVec
	historyPagesTotal    *prometheus.CounterVec
	fastLogFallbacks     *prometheus.CounterVec
	cacheLookupsTotal    *prometheus.CounterVec
	writeBehindTaskTotal *prometheus.CounterVec
	swipesTotal          *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used across the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		realtimeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_sessions_active",
			Help: "Authenticated realtime sessions held by this instance.",
		})

		realtimeEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_events_total",
			Help: "Inbound realtime events by name and outcome.",
		}, []string{"event", "outcome"})

		forcedDisconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_forced_disconnects_total",
			Help: "Sessions closed because a newer session of the same user won.",
		}, []string{"scope"})

		chatMessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Chat messages delivered, by origin.",
		}, []string{"origin"})

		historyPagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_history_pages_total",
			Help: "History pages served, by source store.",
		}, []string{"source"})

		fastLogFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_fast_log_fallbacks_total",
			Help: "History reads that fell back to the durable log.",
		}, []string{"reason"})

		cacheLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_lookups_total",
			Help: "Cache lookups by cache and result.",
		}, []string{"cache", "result"})

		writeBehindTaskTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "write_behind_tasks_total",
			Help: "Background persistence tasks by name and result.",
		}, []string{"task", "result"})

		swipesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swipes_total",
			Help: "Recorded swipes by action and whether they produced a match.",
		}, []string{"action", "match"})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			realtimeSessions, realtimeEventsTotal, forcedDisconnects,
			chatMessagesSent, historyPagesTotal, fastLogFallbacks,
			cacheLookupsTotal, writeBehindTaskTotal, swipesTotal,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// RealtimeSessions exposes the active session gauge.
func RealtimeSessions() prometheus.Gauge {
	RegisterMetrics()
	return realtimeSessions
}

// RealtimeEvents exposes the inbound event counter.
func RealtimeEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return realtimeEventsTotal
}

// ForcedDisconnects exposes the displaced session counter.
func ForcedDisconnects() *prometheus.CounterVec {
	RegisterMetrics()
	return forcedDisconnects
}

// ChatMessagesSent exposes the delivered message counter.
func ChatMessagesSent() *prometheus.CounterVec {
	RegisterMetrics()
	return chatMessagesSent
}

// HistoryPages exposes the history page counter.
func HistoryPages() *prometheus.CounterVec {
	RegisterMetrics()
	return historyPagesTotal
}

// FastLogFallbacks exposes the fallback counter.
func FastLogFallbacks() *prometheus.CounterVec {
	RegisterMetrics()
	return fastLogFallbacks
}

// CacheLookups exposes the cache hit/miss counter.
func CacheLookups() *prometheus.CounterVec {
	RegisterMetrics()
	return cacheLookupsTotal
}

// WriteBehindTasks exposes the background task counter.
func WriteBehindTasks() *prometheus.CounterVec {
	RegisterMetrics()
	return writeBehindTaskTotal
}

// Swipes exposes the swipe counter.
func Swipes() *prometheus.CounterVec {
	RegisterMetrics()
	return swipesTotal
}
