package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mailroute"

// PrometheusRecorder exports metrics through a dedicated registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	sends           *prometheus.CounterVec
	sendDuration    *prometheus.HistogramVec
	smtpDuration    prometheus.Histogram
	quotaDecisions  *prometheus.CounterVec
	authCache       *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	eventsPublished *prometheus.CounterVec
	eventsProcessed *prometheus.CounterVec
	batchSize       prometheus.Histogram
	batchDuration   prometheus.Histogram
	queueDepth      prometheus.Gauge
	ingestLag       prometheus.Histogram
}

// NewPrometheus registers all collectors, plus the Go and process
// collectors, on a fresh registry.
func NewPrometheus() *PrometheusRecorder {
	p := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "Personal endpoint calls by outcome.",
		}, []string{"outcome"}),
		sendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "End-to-end dispatch latency by outcome.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),
		smtpDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "smtp_duration_seconds",
			Help:      "Time spent in the SMTP exchange.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		quotaDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_decisions_total",
			Help:      "Quota checks by result.",
		}, []string{"result"}),
		authCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_cache_lookups_total",
			Help:      "Verified-key cache lookups by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_events_published_total",
			Help:      "Send events published to the stream.",
		}, []string{"status"}),
		eventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_events_processed_total",
			Help:      "Send events consumed by the worker.",
		}, []string{"status"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analytics_batch_size",
			Help:      "Events per worker batch.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250},
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analytics_batch_duration_seconds",
			Help:      "Worker batch processing time.",
			Buckets:   prometheus.DefBuckets,
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "analytics_queue_depth",
			Help:      "Pending entries in the send event stream.",
		}),
		ingestLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analytics_ingest_lag_seconds",
			Help:      "Delay between a send and its persistence.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
	}

	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.sends, p.sendDuration, p.smtpDuration, p.quotaDecisions, p.authCache,
		p.httpRequests, p.httpDuration,
		p.eventsPublished, p.eventsProcessed, p.batchSize, p.batchDuration, p.queueDepth, p.ingestLag,
	)
	return p
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Registry exposes the registry for additional collectors.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusRecorder) IncSend(outcome string) {
	p.sends.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObserveSendDuration(outcome string, d time.Duration) {
	p.sendDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveSMTPDuration(d time.Duration) {
	p.smtpDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncQuotaDecision(allowed bool) {
	p.quotaDecisions.WithLabelValues(result(allowed, "allowed", "denied")).Inc()
}

func (p *PrometheusRecorder) IncAuthCache(hit bool) {
	p.authCache.WithLabelValues(result(hit, "hit", "miss")).Inc()
}

func (p *PrometheusRecorder) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncAnalyticsEventPublished(status string) {
	p.eventsPublished.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) IncAnalyticsEventProcessed(status string) {
	p.eventsProcessed.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) ObserveAnalyticsBatchSize(size int) {
	p.batchSize.Observe(float64(size))
}

func (p *PrometheusRecorder) ObserveAnalyticsBatchDuration(d time.Duration) {
	p.batchDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetAnalyticsQueueDepth(depth int64) {
	p.queueDepth.Set(float64(depth))
}

func (p *PrometheusRecorder) ObserveAnalyticsIngestLag(lag time.Duration) {
	p.ingestLag.Observe(lag.Seconds())
}

func result(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
