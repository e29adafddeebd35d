// Package metrics exposes companion connection metrics in Prometheus format.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once     sync.Once
	registry *Registry
)

// phases lists every supervisor phase so the phase gauge is one-hot
var phases = []string{"idle", "probing", "connected", "escalating"}

// Registry holds all lookbridge metrics.
type Registry struct {
	reg *prometheus.Registry

	// Supervisor metrics
	Phase        *prometheus.GaugeVec
	Polls        *prometheus.CounterVec
	Escalations  *prometheus.CounterVec
	OpcodesSent  *prometheus.CounterVec
	OpcodeErrors *prometheus.CounterVec

	// Protocol metrics
	FramesDecoded *prometheus.CounterVec
	DecodeErrors  *prometheus.CounterVec
	RepliesSent   *prometheus.CounterVec

	// Handoff metrics
	Handoffs *prometheus.CounterVec

	// Segmentation server HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Host metrics
	Commands      *prometheus.CounterVec
	Notifications *prometheus.CounterVec
}

// Get returns the process-wide registry, creating it if necessary.
func Get() *Registry {
	once.Do(func() {
		registry = New()
	})
	return registry
}

// New creates a registry backed by its own prometheus.Registry
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	r := &Registry{reg: reg}

	r.Phase = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lookbridge_supervisor_phase",
		Help: "Current supervisor phase (1 for the active phase)",
	}, []string{"extension", "phase"})

	r.Polls = f.NewCounterVec(prometheus.CounterOpts{
		Name: "lookbridge_supervisor_polls_total",
		Help: "Connection checks by outcome",
	}, []string{"extension", "connected"})

	r.Escalations = f.NewCounterVec(prometheus.CounterOpts{
		Name: "lookbridge_supervisor_escalations_total",
		Help: "Escalation steps by outcome",
	}, []string{"extension", "outcome"})

	r.OpcodesSent = f.NewCounterVec(prometheus.CounterOpts{
		Name: "lookbridge_opcodes_sent_total",
		Help: "Outbound opcodes written to the companion",
	}, []string{"extension", "opcode"})

	r.OpcodeErrors = f.NewCounterVec(prometheus.CounterOpts{
		Name: "lookbridge_opcode_errors_total",
		Help: "Outbound opcodes that could not be written",
	}, []string{"extension", "opcode"})

	r.FramesDecoded = f.NewCounterVec(prometheus.CounterOpts{
		Name: "lookbridge_frames_decoded_total",
		Help: "Inbound frames decoded by command kind",
	}, []string{"extension", "codec", "kind"})

	r.DecodeErrors = f.NewCounterVec(prometheus.CounterOpts{
		Name: "lookbridge_decode_errors_total",
		Help: "Inbound frames dropped because they could not be decoded",
	}, []string{"extension", "codec"})

	r.RepliesSent = f.NewCounterVec(prometheus.CounterOpts{
		Name: "lookbridge_replies_sent_total",
		Help: "Binary replies written to the companion by command kind",
	}, []string{"extension", "kind"})

	r.Handoffs = f.NewCounterVec(prometheus.CounterOpts{
		Name: "lookbridge_handoff_total",
		Help: "Pointer control handoff transitions",
	}, []string{"extension", "action"})

	r.HTTPRequests = f.NewCounterVec(prometheus.CounterOpts{
		Name: "lookbridge_http_requests_total",
		Help: "HTTP requests to a companion by endpoint and status",
	}, []string{"extension", "endpoint", "status"})

	r.HTTPDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lookbridge_http_request_duration_seconds",
		Help:    "Duration of HTTP requests to a companion",
		Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 300},
	}, []string{"extension", "endpoint"})

	r.Commands = f.NewCounterVec(prometheus.CounterOpts{
		Name: "lookbridge_commands_total",
		Help: "Extension commands run through the host",
	}, []string{"command", "status"})

	r.Notifications = f.NewCounterVec(prometheus.CounterOpts{
		Name: "lookbridge_notifications_total",
		Help: "User notifications by type and whether they were shown or rate limited",
	}, []string{"type", "result"})

	return r
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry for tests and custom exporters
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// PhaseChanged sets the phase gauge one-hot
func (r *Registry) PhaseChanged(extension, phase string) {
	for _, p := range phases {
		v := 0.0
		if p == phase {
			v = 1
		}
		r.Phase.WithLabelValues(extension, p).Set(v)
	}
}

func (r *Registry) PollCompleted(extension string, connected bool) {
	label := "false"
	if connected {
		label = "true"
	}
	r.Polls.WithLabelValues(extension, label).Inc()
}

func (r *Registry) Escalated(extension, outcome string) {
	r.Escalations.WithLabelValues(extension, outcome).Inc()
}

func (r *Registry) OpcodeSent(extension, opcode string, err error) {
	if err != nil {
		r.OpcodeErrors.WithLabelValues(extension, opcode).Inc()
		return
	}
	r.OpcodesSent.WithLabelValues(extension, opcode).Inc()
}

func (r *Registry) FrameDecoded(extension, codec, kind string) {
	r.FramesDecoded.WithLabelValues(extension, codec, kind).Inc()
}

func (r *Registry) DecodeFailed(extension, codec string) {
	r.DecodeErrors.WithLabelValues(extension, codec).Inc()
}

func (r *Registry) ReplySent(extension, kind string) {
	r.RepliesSent.WithLabelValues(extension, kind).Inc()
}

func (r *Registry) HandoffChanged(extension, action string) {
	r.Handoffs.WithLabelValues(extension, action).Inc()
}

// HTTPRequestDone records one completed companion HTTP request
func (r *Registry) HTTPRequestDone(extension, endpoint string, seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.HTTPRequests.WithLabelValues(extension, endpoint, status).Inc()
	r.HTTPDuration.WithLabelValues(extension, endpoint).Observe(seconds)
}

func (r *Registry) CommandRun(command string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.Commands.WithLabelValues(command, status).Inc()
}

func (r *Registry) NotificationShown(kind string, shown bool) {
	result := "shown"
	if !shown {
		result = "limited"
	}
	r.Notifications.WithLabelValues(kind, result).Inc()
}
