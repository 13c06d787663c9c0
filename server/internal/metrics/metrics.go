package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// HubStats is the subset of *hub.Hub the collectors read.
type HubStats interface {
	Count() int
	Dropped() uint64
}

// Metrics holds the server's collectors. It implements ingest.Observer.
type Metrics struct {
	reg *prometheus.Registry

	ingested      *prometheus.CounterVec
	storeFailures prometheus.Counter
	latency       prometheus.Histogram
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalstream_records_ingested_total",
			Help: "Records stored, by rule outcome.",
		}, []string{"result"}),
		storeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vitalstream_store_failures_total",
			Help: "Ingest attempts rejected by the record store.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vitalstream_ingest_duration_seconds",
			Help:    "Time from reading receipt to publish.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
	m.reg.MustRegister(m.ingested, m.storeFailures, m.latency)
	return m
}

// WatchHub registers gauges that read live subscriber and drop counts from h.
func (m *Metrics) WatchHub(h HubStats) {
	m.reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "vitalstream_stream_subscribers",
			Help: "Live stream subscribers attached to the hub.",
		}, func() float64 { return float64(h.Count()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "vitalstream_stream_dropped_total",
			Help: "Subscribers removed by the hub because their event buffer was full.",
		}, func() float64 { return float64(h.Dropped()) }),
	)
}

// Ingested records one stored reading.
func (m *Metrics) Ingested(alerted bool, elapsed time.Duration) {
	result := "normal"
	if alerted {
		result = "alert"
	}
	m.ingested.WithLabelValues(result).Inc()
	m.latency.Observe(elapsed.Seconds())
}

// StoreFailed records one rejected insert.
func (m *Metrics) StoreFailed() {
	m.storeFailures.Inc()
}

// Gather returns the current metric families, sorted by name.
func (m *Metrics) Gather() ([]*dto.MetricFamily, error) {
	return m.reg.Gather()
}

// Handler serves the registry in the Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	format := expfmt.NewFormat(expfmt.TypeTextPlain)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		families, err := m.Gather()
		if err != nil {
			slog.Error("metrics: gather", "err", err)
			http.Error(w, "gather failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", string(format))
		enc := expfmt.NewEncoder(w, format)
		for _, mf := range families {
			if err := enc.Encode(mf); err != nil {
				slog.Warn("metrics: encode", "family", mf.GetName(), "err", err)
				return
			}
		}
	})
}
