// Package metrics instruments an engine with Prometheus collectors.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/andrej220/ansirun/pkg/engine"
)

const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
	OutcomeError  = "error"
)

// Collector holds the engine metrics.
type Collector struct {
	Runs     *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewCollector creates the collectors and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ansirun",
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Engine runs by module and outcome.",
		}, []string{"module", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ansirun",
			Subsystem: "engine",
			Name:      "run_duration_seconds",
			Help:      "Wall time of engine runs.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"module"}),
	}
	for _, col := range []prometheus.Collector{c.Runs, c.Duration} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Instrument wraps next so every run is counted and timed.
func (c *Collector) Instrument(next engine.Engine) engine.Engine {
	return &instrumented{next: next, c: c}
}

type instrumented struct {
	next engine.Engine
	c    *Collector
}

func (i *instrumented) Run(ctx context.Context, inv engine.Invocation) (*engine.Outcome, error) {
	start := time.Now()
	out, err := i.next.Run(ctx, inv)
	i.c.Duration.WithLabelValues(inv.Module).Observe(time.Since(start).Seconds())

	outcome := OutcomeOK
	switch {
	case err != nil:
		outcome = OutcomeError
	case out != nil && out.RC != 0:
		outcome = OutcomeFailed
	}
	i.c.Runs.WithLabelValues(inv.Module, outcome).Inc()
	return out, err
}

// RegisterActiveWorkers exports the value of active as the number of busy
// workers.
func RegisterActiveWorkers(reg prometheus.Registerer, active func() int32) error {
	return reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "ansirun",
		Subsystem: "workers",
		Name:      "active",
		Help:      "Workers currently running a request.",
	}, func() float64 { return float64(active()) }))
}
