// Package observability provides Prometheus metrics for the detection pipeline.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry

	FramesRead       prometheus.Counter
	FrameReadErrors  prometheus.Counter
	InferenceErrors  prometheus.Counter
	DetectionsTotal  *prometheus.CounterVec
	AlertsTotal      *prometheus.CounterVec
	Reconnects       prometheus.Counter
	StoreErrors      prometheus.Counter
	PrunedDetections prometheus.Counter
	LoopState        prometheus.Gauge
}

// NewMetrics creates the metric collectors and registers them with a fresh
// registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		FramesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skywatch_frames_read_total",
			Help: "Total number of frames successfully read from the camera",
		}),
		FrameReadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skywatch_frame_read_errors_total",
			Help: "Total number of frame read errors, timeouts included",
		}),
		InferenceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skywatch_inference_errors_total",
			Help: "Total number of failed inference calls",
		}),
		DetectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skywatch_detections_total",
			Help: "Total number of accepted detections by class",
		}, []string{"class"}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skywatch_alerts_total",
			Help: "Total number of alert deliveries by channel and outcome",
		}, []string{"channel", "outcome"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skywatch_camera_reconnect_attempts_total",
			Help: "Total number of camera reconnect attempts",
		}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skywatch_store_errors_total",
			Help: "Total number of detection store failures",
		}),
		PrunedDetections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skywatch_pruned_detections_total",
			Help: "Total number of detections removed by retention pruning",
		}),
		LoopState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skywatch_loop_state",
			Help: "Current orchestrator state (0=idle 1=connecting 2=warmup 3=running 4=recovering 5=stopped)",
		}),
	}

	collectors := []prometheus.Collector{
		m.FramesRead, m.FrameReadErrors, m.InferenceErrors, m.DetectionsTotal,
		m.AlertsTotal, m.Reconnects, m.StoreErrors, m.PrunedDetections, m.LoopState,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

// Registry returns the underlying Prometheus registry for the HTTP endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
