// Package metrics holds the Prometheus collectors of one check-in device.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "face_checkin"

// Recognition results.
const (
	ResultMatch   = "match"
	ResultNoMatch = "no_match"
	ResultError   = "error"
)

// Session transitions.
const (
	TransitionCheckIn  = "check_in"
	TransitionSwitch   = "switch"
	TransitionTimeout  = "timeout"
	TransitionShutdown = "shutdown"
	TransitionFailed   = "failed"
)

// Remote calls.
const (
	CallLogin    = "login"
	CallCheckIn  = "check_in"
	CallCheckOut = "check_out"
)

// Metrics is registered on its own registry so tests and multiple instances
// never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	FramesCaptured prometheus.Counter
	FrameFailures  prometheus.Counter
	Recognitions   *prometheus.CounterVec
	Transitions    *prometheus.CounterVec
	RemoteFailures *prometheus.CounterVec
	SessionActive  prometheus.Gauge
}

// New creates and registers all collectors, plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		FramesCaptured: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_captured_total",
			Help:      "Frames successfully read from the camera.",
		}),
		FrameFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_failures_total",
			Help:      "Failed frame reads.",
		}),
		Recognitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognitions_total",
			Help:      "Recognition runs by result.",
		}, []string{"result"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session state transitions by kind.",
		}, []string{"kind"}),
		RemoteFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_failures_total",
			Help:      "Failed calls to the session service by call.",
		}, []string{"call"}),
		SessionActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_active",
			Help:      "1 while someone is checked in.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// The helpers below accept a nil receiver so components can run without metrics.

func (m *Metrics) FrameCaptured() {
	if m != nil {
		m.FramesCaptured.Inc()
	}
}

func (m *Metrics) FrameFailed() {
	if m != nil {
		m.FrameFailures.Inc()
	}
}

func (m *Metrics) Recognized(result string) {
	if m != nil {
		m.Recognitions.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Transition(kind string) {
	if m != nil {
		m.Transitions.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) RemoteFailed(call string) {
	if m != nil {
		m.RemoteFailures.WithLabelValues(call).Inc()
	}
}

func (m *Metrics) SetActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.SessionActive.Set(1)
	} else {
		m.SessionActive.Set(0)
	}
}
