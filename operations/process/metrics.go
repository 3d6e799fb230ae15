package process

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sfomuseum/go-media-clone/photo"
)

// Metrics are the Prometheus collectors updated by ProcessPhotos.
type Metrics struct {
	Jobs     *prometheus.CounterVec
	GPSAdded prometheus.Counter
	InFlight prometheus.Gauge
	Duration prometheus.Histogram
}

// NewMetrics creates and registers a new set of Metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {

	f := promauto.With(reg)

	m := &Metrics{
		Jobs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "media_clone_jobs_total",
			Help: "Photos processed, by final status",
		}, []string{"status"}),
		GPSAdded: f.NewCounter(prometheus.CounterOpts{
			Name: "media_clone_gps_added_total",
			Help: "Photos written with a GPS position from the track log",
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "media_clone_jobs_in_flight",
			Help: "Photos currently being processed",
		}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "media_clone_job_duration_seconds",
			Help:    "Time taken to process a single photo",
			Buckets: prometheus.DefBuckets,
		}),
	}

	return m
}

func (m *Metrics) jobStarted() {

	if m == nil {
		return
	}

	m.InFlight.Inc()
}

func (m *Metrics) jobFinished(o *photo.Outcome, start time.Time) {

	if m == nil {
		return
	}

	m.InFlight.Dec()
	m.Duration.Observe(time.Since(start).Seconds())
	m.Jobs.WithLabelValues(string(o.Status)).Inc()

	if o.Result != nil && o.Result.GPSAdded {
		m.GPSAdded.Inc()
	}
}

func (m *Metrics) jobSkipped() {

	if m == nil {
		return
	}

	m.Jobs.WithLabelValues(string(photo.StatusSkipped)).Inc()
}
