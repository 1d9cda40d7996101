package server

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks provisioning outcomes for monitoring.
type Metrics struct {
	provisionTotal *prometheus.CounterVec
}

// NewMetrics creates the provisioning counters and registers them on reg.
// A nil registerer leaves the metrics unregistered. When an identical counter
// is already registered on reg, it is reused, so the serving registry can be
// shared across components.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		provisionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kubegrant_provision_requests_total",
				Help: "Provisioning requests by workflow and outcome.",
			},
			[]string{"workflow", "outcome"},
		),
	}
	if reg != nil {
		m.provisionTotal = registerCounterVec(reg, m.provisionTotal)
	}
	return m
}

// registerCounterVec registers c on reg, reusing the existing collector when
// one with the same descriptor is already registered.
func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector.(*prometheus.CounterVec)
		}
		panic(err)
	}
	return c
}

// RecordProvision records one provisioning request outcome.
func (m *Metrics) RecordProvision(workflow string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.provisionTotal.WithLabelValues(workflow, outcome).Inc()
}
