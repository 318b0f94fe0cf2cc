package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequestsTotal   *prometheus.CounterVec
	httpLatencySeconds  *prometheus.HistogramVec
	httpErrorsTotal     *prometheus.CounterVec
	messagesSentTotal   *prometheus.CounterVec
	realtimeSubscribers prometheus.Gauge
	realtimeDropped     prometheus.Counter
	wsConnectionsTotal  prometheus.Counter
	communityJoinsTotal prometheus.Counter
	channelsCreated     prometheus.Counter
	assistantRequests   *prometheus.CounterVec
	uploadsTotal        *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boh_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "boh_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boh_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		messagesSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boh_channel_messages_total",
			Help: "Channel messages appended, by content kind.",
		}, []string{"kind"})

		realtimeSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "boh_realtime_subscribers",
			Help: "Live realtime subscriptions on this node.",
		})

		realtimeDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boh_realtime_dropped_subscribers_total",
			Help: "Subscriptions closed because they fell behind.",
		})

		wsConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boh_websocket_connections_total",
			Help: "Channel websocket connections accepted.",
		})

		communityJoinsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boh_community_joins_total",
			Help: "Successful community joins.",
		})

		channelsCreated = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "boh_channels_created_total",
			Help: "Channels created inside communities.",
		})

		assistantRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boh_assistant_requests_total",
			Help: "Assistant calls by operation and outcome.",
		}, []string{"operation", "outcome"})

		uploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boh_attachment_uploads_total",
			Help: "Attachment uploads by type and outcome.",
		}, []string{"type", "outcome"})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			messagesSentTotal, realtimeSubscribers, realtimeDropped, wsConnectionsTotal,
			communityJoinsTotal, channelsCreated,
			assistantRequests, uploadsTotal,
		)
	})
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the request latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

func MessagesSent() *prometheus.CounterVec {
	RegisterMetrics()
	return messagesSentTotal
}

func RealtimeSubscribers() prometheus.Gauge {
	RegisterMetrics()
	return realtimeSubscribers
}

func RealtimeDroppedSubscribers() prometheus.Counter {
	RegisterMetrics()
	return realtimeDropped
}

func WebSocketConnections() prometheus.Counter {
	RegisterMetrics()
	return wsConnectionsTotal
}

func CommunityJoins() prometheus.Counter {
	RegisterMetrics()
	return communityJoinsTotal
}

func ChannelsCreated() prometheus.Counter {
	RegisterMetrics()
	return channelsCreated
}

// AssistantRequests exposes the assistant call counter labelled by operation and outcome.
func AssistantRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return assistantRequests
}

func Uploads() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadsTotal
}
