// Package metrics holds the Prometheus collectors for the service.
// All methods are safe on a nil *Metrics so components can run without them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ppe"

// Metrics collects ingestion and live status counters
type Metrics struct {
	ingestTotal      *prometheus.CounterVec
	ingestDuration   prometheus.Histogram
	analysisTotal    *prometheus.CounterVec
	storageFailures  prometheus.Counter
	cameraResolution *prometheus.CounterVec
	eventsPublished  *prometheus.CounterVec
	liveTransitions  *prometheus.CounterVec
	liveAlerts       prometheus.Counter
	liveViewers      prometheus.Gauge
}

// New registers the collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ingestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_ingested_total",
			Help:      "Ingestion requests by outcome (violation, clear, or error kind)",
		}, []string{"outcome"}),
		ingestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "End to end ingestion latency",
			Buckets:   prometheus.DefBuckets,
		}),
		analysisTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_results_total",
			Help:      "Analysis results by producing strategy",
		}, []string{"strategy"}),
		storageFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_storage_failures_total",
			Help:      "Images that fell back to the placeholder URL",
		}),
		cameraResolution: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "camera_resolutions_total",
			Help:      "Camera lookups by result (cached, found, created, failed)",
		}, []string{"result"}),
		eventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detection_events_total",
			Help:      "Detection insert events by publish result",
		}, []string{"result"}),
		liveTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_status_transitions_total",
			Help:      "Live status state changes by target state",
		}, []string{"state"}),
		liveAlerts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_alerts_total",
			Help:      "Alerts raised on transitions into violation",
		}),
		liveViewers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_viewers",
			Help:      "Connected live status websocket clients",
		}),
	}
}

func (m *Metrics) ObserveIngest(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(outcome).Inc()
	m.ingestDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveAnalysis(strategy string) {
	if m == nil {
		return
	}
	m.analysisTotal.WithLabelValues(strategy).Inc()
}

func (m *Metrics) StorageFailed() {
	if m == nil {
		return
	}
	m.storageFailures.Inc()
}

func (m *Metrics) CameraResolved(result string) {
	if m == nil {
		return
	}
	m.cameraResolution.WithLabelValues(result).Inc()
}

func (m *Metrics) EventPublished(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.eventsPublished.WithLabelValues(result).Inc()
}

func (m *Metrics) LiveTransition(state string) {
	if m == nil {
		return
	}
	m.liveTransitions.WithLabelValues(state).Inc()
}

func (m *Metrics) LiveAlert() {
	if m == nil {
		return
	}
	m.liveAlerts.Inc()
}

func (m *Metrics) SetLiveViewers(n int) {
	if m == nil {
		return
	}
	m.liveViewers.Set(float64(n))
}
