package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bin-dates/models"
)

// Metrics holds the Prometheus collectors for the poller on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	RefreshTotal      prometheus.Counter
	RefreshFailures   prometheus.Counter
	RefreshDuration   prometheus.Histogram
	LastSuccess       prometheus.Gauge
	NextCollection    *prometheus.GaugeVec
	CollectionIsToday *prometheus.GaugeVec
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RefreshTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "bin_dates_refresh_total",
			Help: "Total number of collection date refreshes attempted",
		}),
		RefreshFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "bin_dates_refresh_failures_total",
			Help: "Total number of collection date refreshes that failed",
		}),
		RefreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bin_dates_refresh_duration_seconds",
			Help:    "Time spent fetching collection dates from the council",
			Buckets: prometheus.DefBuckets,
		}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bin_dates_last_success_timestamp_seconds",
			Help: "Unix time of the last successful refresh",
		}),
		NextCollection: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bin_dates_next_collection_timestamp_seconds",
			Help: "Unix time of the next scheduled collection per waste stream",
		}, []string{"stream"}),
		CollectionIsToday: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bin_dates_collection_today",
			Help: "1 when the waste stream is collected today, 0 otherwise",
		}, []string{"stream"}),
	}
}

// ObserveRefresh records one refresh attempt and how long it took.
func (m *Metrics) ObserveRefresh(d time.Duration, err error) {
	m.RefreshTotal.Inc()
	m.RefreshDuration.Observe(d.Seconds())
	if err != nil {
		m.RefreshFailures.Inc()
	}
}

// SetSnapshot mirrors the published state into the gauges.
func (m *Metrics) SetSnapshot(s models.Snapshot) {
	m.LastSuccess.Set(float64(s.RefreshedAt.Unix()))
	for _, stream := range models.WasteStreams {
		m.NextCollection.WithLabelValues(string(stream)).Set(float64(s.Result.Date(stream).Unix()))
		today := 0.0
		if s.IsToday[stream] {
			today = 1
		}
		m.CollectionIsToday.WithLabelValues(string(stream)).Set(today)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
