// internal/infra/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "zvit_agent"

// Metrics records agent activity on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	cacheResults   *prometheus.CounterVec
	syncReplays    *prometheus.CounterVec
	pendingReports prometheus.Gauge
	pushes         *prometheus.CounterVec
	clicks         *prometheus.CounterVec
	reports        *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_router_results_total",
			Help:      "GET requests answered by the cache router, by strategy and source.",
		}, []string{"strategy", "source"}),
		syncReplays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_replays_total",
			Help:      "Pending report replays, by outcome.",
		}, []string{"outcome"}),
		pendingReports: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_reports",
			Help:      "Reports waiting in the offline queue after the last drain.",
		}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushes_total",
			Help:      "Push messages presented, by message type.",
		}, []string{"type"}),
		clicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_clicks_total",
			Help:      "Notification interactions, by action.",
		}, []string{"action"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_submissions_total",
			Help:      "Report submissions, by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.cacheResults, m.syncReplays, m.pendingReports, m.pushes, m.clicks, m.reports,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) CacheResult(strategy, source string) {
	m.cacheResults.WithLabelValues(strategy, source).Inc()
}

func (m *Metrics) SyncReplay(outcome string) {
	m.syncReplays.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PendingReports(n int) {
	m.pendingReports.Set(float64(n))
}

func (m *Metrics) PushPresented(pushType string) {
	if pushType == "" {
		pushType = "generic"
	}
	m.pushes.WithLabelValues(pushType).Inc()
}

func (m *Metrics) NotificationClick(action string) {
	if action == "" {
		action = "body"
	}
	m.clicks.WithLabelValues(action).Inc()
}

func (m *Metrics) ReportSubmitted(outcome string) {
	m.reports.WithLabelValues(outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
