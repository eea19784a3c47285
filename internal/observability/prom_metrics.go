package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"powerwatch-backend/internal/pipeline"
	"powerwatch-backend/internal/rules"
)

// PromObs exports poll outcomes and metric samples to Prometheus.
type PromObs struct {
	gatherer     prometheus.Gatherer
	polls        *prometheus.CounterVec
	verdicts     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	serviceState *prometheus.GaugeVec
	samples      *prometheus.GaugeVec
}

// NewPromObs registers the collectors with reg. A nil reg uses the default
// registry.
func NewPromObs(reg *prometheus.Registry) *PromObs {
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	polls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "powerwatch_polls_total",
		Help: "Poll cycles per check and resulting aggregate state.",
	}, []string{"check", "state"})
	verdicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "powerwatch_verdicts_total",
		Help: "Verdicts emitted per check and severity.",
	}, []string{"check", "severity"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "powerwatch_poll_duration_seconds",
		Help:    "Time from fetch start to evaluated reports.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"check"})
	serviceState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "powerwatch_service_state",
		Help: "Last state per service: 0 OK, 1 WARN, 2 CRIT, 3 UNKNOWN.",
	}, []string{"device", "service"})
	samples := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "powerwatch_metric_value",
		Help: "Last value of each emitted metric sample.",
	}, []string{"device", "service", "metric"})

	registerer.MustRegister(polls, verdicts, latency, serviceState, samples)

	return &PromObs{
		gatherer:     gatherer,
		polls:        polls,
		verdicts:     verdicts,
		latency:      latency,
		serviceState: serviceState,
		samples:      samples,
	}
}

// RecordPoll records the reports of one poll cycle.
func (p *PromObs) RecordPoll(check string, reports []pipeline.Report, took time.Duration) {
	p.latency.WithLabelValues(check).Observe(took.Seconds())
	worst := rules.OK
	for _, rep := range reports {
		if rep.State == rules.Unknown || (worst != rules.Unknown && rep.State > worst) {
			worst = rep.State
		}
		p.serviceState.WithLabelValues(rep.Device, rep.Service).Set(float64(rep.State))
		for _, v := range rep.Verdicts {
			p.verdicts.WithLabelValues(check, v.Severity.String()).Inc()
		}
		for _, s := range rep.Metrics {
			p.samples.WithLabelValues(rep.Device, rep.Service, s.Name).Set(s.Value)
		}
	}
	p.polls.WithLabelValues(check, worst.String()).Inc()
}

// ForgetDevice drops the per-service series of a device that is no longer
// polled.
func (p *PromObs) ForgetDevice(device string) {
	p.serviceState.DeletePartialMatch(prometheus.Labels{"device": device})
	p.samples.DeletePartialMatch(prometheus.Labels{"device": device})
}

func (p *PromObs) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}
