package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// PromRegistry mirrors CacheMetrics plus ambient HTTP/process metrics as a
// private Prometheus registry, exposed at GET /internal/prometheus. It does
// not replace the spec-mandated GET /metrics JSON snapshot — this is an
// ambient addition for operators who scrape instead of polling the
// dashboard.
type PromRegistry struct {
	reg *prometheus.Registry

	inFlight          prometheus.Gauge
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	cacheExactHits    prometheus.Gauge
	cacheSemanticHits prometheus.Gauge
	cacheMisses       prometheus.Gauge
	costSpentUSD      prometheus.Gauge
	costSavedUSD      prometheus.Gauge

	serviceHealth *prometheus.GaugeVec
	buildInfo     *prometheus.GaugeVec

	metricsHandler fasthttp.RequestHandler
}

// NewPromRegistry builds the ambient Prometheus registry.
func NewPromRegistry() *PromRegistry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	r := &PromRegistry{
		reg: reg,

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_inflight_requests",
			Help: "Current number of in-flight HTTP requests handled by the gateway",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "Total number of HTTP requests handled by the gateway",
			},
			[]string{"route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds (end-to-end, includes cache + upstream)",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"route"},
		),
		cacheExactHits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_cache_exact_hits",
			Help: "Mirror of the core exact_hits counter",
		}),
		cacheSemanticHits: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_cache_semantic_hits",
			Help: "Mirror of the core semantic_hits counter",
		}),
		cacheMisses: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_cache_misses",
			Help: "Mirror of the core misses counter",
		}),
		costSpentUSD: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_cost_spent_usd",
			Help: "Mirror of the core cost_spent_usd counter",
		}),
		costSavedUSD: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_cost_saved_usd",
			Help: "Mirror of the core cost_saved_usd counter",
		}),
		serviceHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_service_health",
				Help: "Dependency health (1=up, 0=down)",
			},
			[]string{"service"},
		),
		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_build_info",
				Help: "Build information",
			},
			[]string{"version"},
		),
	}

	reg.MustRegister(
		r.inFlight,
		r.httpRequestsTotal,
		r.httpDuration,
		r.cacheExactHits,
		r.cacheSemanticHits,
		r.cacheMisses,
		r.costSpentUSD,
		r.costSavedUSD,
		r.serviceHealth,
		r.buildInfo,
	)

	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	r.metricsHandler = fasthttpadaptor.NewFastHTTPHandler(h)

	return r
}

func (r *PromRegistry) IncInFlight() { r.inFlight.Inc() }
func (r *PromRegistry) DecInFlight() { r.inFlight.Dec() }

// ObserveHTTP records one completed HTTP request.
func (r *PromRegistry) ObserveHTTP(route string, statusCode int, dur time.Duration) {
	status := strconv.Itoa(statusCode)
	r.httpRequestsTotal.WithLabelValues(route, status).Inc()
	r.httpDuration.WithLabelValues(route).Observe(dur.Seconds())
}

// MirrorSnapshot copies the latest CacheMetrics snapshot into the
// Prometheus gauges so scrapers see the same numbers as GET /metrics.
func (r *PromRegistry) MirrorSnapshot(s Snapshot) {
	r.cacheExactHits.Set(float64(s.ExactHits))
	r.cacheSemanticHits.Set(float64(s.SemanticHits))
	r.cacheMisses.Set(float64(s.Misses))
	r.costSpentUSD.Set(s.CostSpentUSD)
	r.costSavedUSD.Set(s.CostSavedUSD)
}

// SetServiceHealth records one dependency's up/down status.
func (r *PromRegistry) SetServiceHealth(service string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	r.serviceHealth.WithLabelValues(service).Set(v)
}

// SetBuildInfo records the running build's version as an always-present
// gauge (value fixed at 1; the version appears in the label).
func (r *PromRegistry) SetBuildInfo(version string) {
	r.buildInfo.WithLabelValues(version).Set(1)
}

// Handler returns the fasthttp handler serving Prometheus exposition format.
func (r *PromRegistry) Handler() fasthttp.RequestHandler {
	return r.metricsHandler
}
