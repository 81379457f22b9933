// Package metrics owns the Prometheus registry served on the ops listener.
//
// Labels are limited to bounded values (method, route pattern, status,
// backend, result) so request paths never become label values.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/sitecontent-web/internal/version"
)

type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	// http
	inflight    prometheus.Gauge
	reqTotal    *prometheus.CounterVec
	reqDur      *prometheus.HistogramVec
	respBytes   *prometheus.HistogramVec
	errorsTotal *prometheus.CounterVec
	panicTotal  prometheus.Counter

	buildInfo       *prometheus.GaugeVec
	profilingActive prometheus.Gauge

	rateLimitDenied   prometheus.Counter
	rateLimitCapacity prometheus.Counter

	// object store
	fetchTotal *prometheus.CounterVec
	fetchDur   *prometheus.HistogramVec

	// markdown
	renderTotal *prometheus.CounterVec
	renderDur   prometheus.Histogram

	// mapping table
	mappingSource   *prometheus.GaugeVec
	mappingVersion  *prometheus.GaugeVec
	mappingLoadedTs prometheus.Gauge
	mappingEntries  prometheus.Gauge

	// watcher
	watcherPolls       prometheus.Counter
	watcherSwaps       prometheus.Counter
	watcherErrors      *prometheus.CounterVec
	mappingLoadDur     prometheus.Histogram
	watcherLastSuccess prometheus.Gauge
	watcherStale       prometheus.Gauge

	// preferences
	prefsUpdates *prometheus.CounterVec
}

var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "In-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route",
			Buckets: latencyBuckets,
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size by method and route",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		}, []string{"method", "route"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "5xx responses by method and route",
		}, []string{"method", "route"}),
		panicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Recovered handler panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata, always 1",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "1 when continuous profiling is running",
		}),
		rateLimitDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Requests rejected by the per-IP rate limiter",
		}),
		rateLimitCapacity: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Times the rate limiter client table was full",
		}),
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "objectstore_get_total",
			Help: "Object store reads by backend and result (hit, not_found, error)",
		}, []string{"backend", "result"}),
		fetchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "objectstore_get_duration_seconds",
			Help:    "Object store read latency by backend",
			Buckets: latencyBuckets,
		}, []string{"backend"}),
		renderTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "markdown_render_total",
			Help: "Markdown renders by result",
		}, []string{"result"}),
		renderDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "markdown_render_duration_seconds",
			Help:    "Markdown render latency",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		mappingSource: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mapping_source_info",
			Help: "Active mapping source, always 1",
		}, []string{"source"}),
		mappingVersion: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mapping_version_info",
			Help: "Active mapping table digest, always 1",
		}, []string{"version"}),
		mappingLoadedTs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mapping_loaded_timestamp_seconds",
			Help: "Unix time the active mapping table was loaded",
		}),
		mappingEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mapping_entries",
			Help: "Entries in the active mapping table",
		}),
		watcherPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mapping_watcher_polls_total",
			Help: "Mapping watcher poll cycles",
		}),
		watcherSwaps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mapping_watcher_swaps_total",
			Help: "Mapping table swaps",
		}),
		watcherErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mapping_watcher_errors_total",
			Help: "Mapping watcher errors by type",
		}, []string{"type"}),
		mappingLoadDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mapping_load_duration_seconds",
			Help:    "Time to read the mapping table from its source",
			Buckets: latencyBuckets,
		}),
		watcherLastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mapping_watcher_last_success_timestamp_seconds",
			Help: "Unix time of the last successful poll",
		}),
		watcherStale: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mapping_watcher_stale",
			Help: "1 when the watcher has not polled successfully within its threshold",
		}),
		prefsUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "preferences_updates_total",
			Help: "Notification preference submissions by result",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.inflight, m.reqTotal, m.reqDur, m.respBytes, m.errorsTotal, m.panicTotal,
		m.buildInfo, m.profilingActive,
		m.rateLimitDenied, m.rateLimitCapacity,
		m.fetchTotal, m.fetchDur,
		m.renderTotal, m.renderDur,
		m.mappingSource, m.mappingVersion, m.mappingLoadedTs, m.mappingEntries,
		m.watcherPolls, m.watcherSwaps, m.watcherErrors, m.mappingLoadDur,
		m.watcherLastSuccess, m.watcherStale,
		m.prefsUpdates,
	)

	m.reg = reg
	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	return m
}

func (m *ServerMetrics) Handler() http.Handler { return m.handler }

func (m *ServerMetrics) Registry() *prometheus.Registry { return m.reg }

func (m *ServerMetrics) IncHttpPanic() { m.panicTotal.Inc() }

// SetBuildInfoFromVersion is called once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi *version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) SetProfilingActive(active bool) { m.profilingActive.Set(boolGauge(active)) }

func (m *ServerMetrics) IncRateLimitDenied()   { m.rateLimitDenied.Inc() }
func (m *ServerMetrics) IncRateLimitCapacity() { m.rateLimitCapacity.Inc() }

// ObserveObjectFetch records one object store read.
func (m *ServerMetrics) ObserveObjectFetch(backend, result string, d time.Duration) {
	m.fetchTotal.WithLabelValues(backend, result).Inc()
	m.fetchDur.WithLabelValues(backend).Observe(d.Seconds())
}

func (m *ServerMetrics) ObserveMarkdownRender(err error, d time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.renderTotal.WithLabelValues(result).Inc()
	m.renderDur.Observe(d.Seconds())
}

// SetMapping publishes the identity of the active mapping table.
func (m *ServerMetrics) SetMapping(source, version string, entries int, loadedAt time.Time) {
	m.mappingSource.Reset()
	m.mappingSource.WithLabelValues(source).Set(1)
	m.mappingVersion.Reset()
	m.mappingVersion.WithLabelValues(version).Set(1)
	m.mappingEntries.Set(float64(entries))
	m.mappingLoadedTs.Set(float64(loadedAt.Unix()))
}

func (m *ServerMetrics) IncWatcherPolls()                     { m.watcherPolls.Inc() }
func (m *ServerMetrics) IncWatcherSwaps()                     { m.watcherSwaps.Inc() }
func (m *ServerMetrics) IncWatcherError(errType string)       { m.watcherErrors.WithLabelValues(errType).Inc() }
func (m *ServerMetrics) ObserveMappingLoadDuration(s float64) { m.mappingLoadDur.Observe(s) }
func (m *ServerMetrics) SetWatcherLastSuccess(unix float64)   { m.watcherLastSuccess.Set(unix) }
func (m *ServerMetrics) SetWatcherStale(stale bool)           { m.watcherStale.Set(boolGauge(stale)) }

func (m *ServerMetrics) IncPreferencesUpdate(result string) {
	m.prefsUpdates.WithLabelValues(result).Inc()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
