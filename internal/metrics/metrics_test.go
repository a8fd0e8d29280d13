package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveIngest("violation", 20*time.Millisecond)
	m.ObserveIngest("violation", 30*time.Millisecond)
	m.ObserveAnalysis("placeholder")
	m.CameraResolved("created")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ingestTotal.WithLabelValues("violation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.analysisTotal.WithLabelValues("placeholder")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cameraResolution.WithLabelValues("created")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveIngest("clear", time.Second)
		m.StorageFailed()
		m.LiveAlert()
		m.SetLiveViewers(3)
	})
}
