// Package metrics exposes controller state to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/hydroponics/internal/actuator"
	"github.com/sweeney/hydroponics/internal/control"
	"github.com/sweeney/hydroponics/internal/env"
)

const namespace = "hydroponics"

// Metrics owns a private registry. It observes actuators and loops and reads
// the environment at scrape time.
type Metrics struct {
	registry *prometheus.Registry

	actuations *prometheus.CounterVec
	phase      *prometheus.GaugeVec
	ticks      *prometheus.CounterVec
}

// New registers every collector. e may be nil, in which case no environment
// gauges are exported.
func New(e *env.Environment) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		actuations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actuations_total",
			Help:      "Actuator activations by group and action label.",
		}, []string{"group", "label"}),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "actuator_phase",
			Help:      "Debounce phase per group (0 idle, 1 active, 2 cooldown).",
		}, []string{"group"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loop_ticks_total",
			Help:      "Control loop ticks by loop and outcome.",
		}, []string{"loop", "outcome"}),
	}
	m.registry.MustRegister(m.actuations, m.phase, m.ticks)
	if e != nil {
		m.registry.MustRegister(newEnvCollector(e))
	}
	return m
}

// Activated implements actuator.Observer.
func (m *Metrics) Activated(group, label string) {
	m.actuations.WithLabelValues(group, label).Inc()
}

// PhaseChanged implements actuator.Observer.
func (m *Metrics) PhaseChanged(group string, phase actuator.Phase) {
	m.phase.WithLabelValues(group).Set(float64(phase))
}

// ObserveTick implements control.Observer.
func (m *Metrics) ObserveTick(loop string, outcome control.Outcome) {
	m.ticks.WithLabelValues(loop, outcome.String()).Inc()
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// envCollector reads one environment snapshot per scrape.
type envCollector struct {
	env *env.Environment

	reading  *prometheus.Desc
	bandMin  *prometheus.Desc
	bandMax  *prometheus.Desc
	offset   *prometheus.Desc
	days     *prometheus.Desc
	cycleSet *prometheus.Desc
}

func newEnvCollector(e *env.Environment) *envCollector {
	return &envCollector{
		env:      e,
		reading:  prometheus.NewDesc(namespace+"_reading", "Latest measured value; absent until first measured.", []string{"quantity"}, nil),
		bandMin:  prometheus.NewDesc(namespace+"_band_min", "Lower bound of the target band.", []string{"quantity"}, nil),
		bandMax:  prometheus.NewDesc(namespace+"_band_max", "Upper bound of the target band.", []string{"quantity"}, nil),
		offset:   prometheus.NewDesc(namespace+"_acidity_offset", "Operator acidity trim.", nil, nil),
		days:     prometheus.NewDesc(namespace+"_cycle_elapsed_days", "Days since the growth cycle started.", nil, nil),
		cycleSet: prometheus.NewDesc(namespace+"_cycle_initialized", "1 once a growth cycle is running.", nil, nil),
	}
}

func (c *envCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.reading
	ch <- c.bandMin
	ch <- c.bandMax
	ch <- c.offset
	ch <- c.days
	ch <- c.cycleSet
}

func (c *envCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.env.Snapshot()
	for _, q := range env.Quantities {
		if r := snap.Reading(q); r.Valid {
			ch <- prometheus.MustNewConstMetric(c.reading, prometheus.GaugeValue, r.Value, q.String())
		}
		if b := snap.Band(q); b.Set {
			ch <- prometheus.MustNewConstMetric(c.bandMin, prometheus.GaugeValue, b.Min, q.String())
			ch <- prometheus.MustNewConstMetric(c.bandMax, prometheus.GaugeValue, b.Max, q.String())
		}
	}
	ch <- prometheus.MustNewConstMetric(c.offset, prometheus.GaugeValue, snap.AcidityOffset)
	ch <- prometheus.MustNewConstMetric(c.days, prometheus.GaugeValue, float64(snap.Cycle.ElapsedDays))
	initialized := 0.0
	if snap.Cycle.Initialized {
		initialized = 1
	}
	ch <- prometheus.MustNewConstMetric(c.cycleSet, prometheus.GaugeValue, initialized)
}
