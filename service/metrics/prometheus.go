package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/khaledhikmat/vs-console/model"
)

type prometheusService struct {
	registry *prometheus.Registry

	sessionsOpened prometheus.Counter
	sessionsClosed *prometheus.CounterVec
	sessionsActive prometheus.Gauge
	sessionUptime  prometheus.Histogram
	payloads       *prometheus.CounterVec
	staleUpdates   prometheus.Counter
	refreshes      *prometheus.CounterVec
	resourceCalls  *prometheus.HistogramVec
}

// NewPrometheus creates a metrics service backed by its own registry so that
// several instances (one per test) never collide.
func NewPrometheus() IService {
	svc := &prometheusService{
		registry: prometheus.NewRegistry(),
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "console_stream_sessions_opened_total",
			Help: "Total live stream sessions opened",
		}),
		sessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_stream_sessions_closed_total",
			Help: "Total live stream sessions closed by reason",
		}, []string{"reason"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "console_stream_sessions_active",
			Help: "Live stream sessions currently open",
		}),
		sessionUptime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "console_stream_session_uptime_seconds",
			Help:    "Live stream session durations",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 3600},
		}),
		payloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_stream_payloads_total",
			Help: "Live stream payloads received by kind",
		}, []string{"kind"}),
		staleUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "console_stream_stale_updates_total",
			Help: "Callbacks from detached sessions that were dropped",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_event_refreshes_total",
			Help: "Background event list refreshes by result",
		}, []string{"result"}),
		resourceCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "console_resource_request_duration_seconds",
			Help:    "Resource API request durations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "code"}),
	}

	svc.registry.MustRegister(
		svc.sessionsOpened,
		svc.sessionsClosed,
		svc.sessionsActive,
		svc.sessionUptime,
		svc.payloads,
		svc.staleUpdates,
		svc.refreshes,
		svc.resourceCalls,
	)

	return svc
}

func (svc *prometheusService) SessionOpened() {
	svc.sessionsOpened.Inc()
	svc.sessionsActive.Inc()
}

func (svc *prometheusService) SessionClosed(stats model.SessionStats) {
	svc.sessionsActive.Dec()
	svc.sessionsClosed.WithLabelValues(stats.Reason).Inc()
	svc.sessionUptime.Observe(float64(stats.Uptime))
}

func (svc *prometheusService) PayloadReceived(kind string) {
	svc.payloads.WithLabelValues(kind).Inc()
}

func (svc *prometheusService) StaleUpdateDropped() {
	svc.staleUpdates.Inc()
}

func (svc *prometheusService) RefreshIssued(ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	svc.refreshes.WithLabelValues(result).Inc()
}

// A zero statusCode means the request never got a response.
func (svc *prometheusService) ResourceCall(operation string, statusCode int, seconds float64) {
	code := "none"
	if statusCode > 0 {
		code = strconv.Itoa(statusCode)
	}
	svc.resourceCalls.WithLabelValues(operation, code).Observe(seconds)
}

func (svc *prometheusService) Handler() http.Handler {
	return promhttp.HandlerFor(svc.registry, promhttp.HandlerOpts{})
}
