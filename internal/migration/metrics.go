package migration

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what a run did. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	records *prometheus.CounterVec
	deletes *prometheus.CounterVec
	lookups *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "accfix",
				Name:      "records_total",
				Help:      "Accession records processed, by outcome.",
			},
			[]string{"variant", "outcome"},
		),
		deletes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "accfix",
				Name:      "deletes_total",
				Help:      "Delete calls issued for consumed or orphaned records.",
			},
			[]string{"kind", "result"},
		),
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "accfix",
				Name:      "lookups_total",
				Help:      "Backend reference lookups, cache misses only.",
			},
			[]string{"kind", "result"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.records, m.deletes, m.lookups)
	}
	return m
}

func (m *Metrics) record(variant, outcome string) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(variant, outcome).Inc()
}

func (m *Metrics) delete(kind string, err error) {
	if m == nil {
		return
	}
	m.deletes.WithLabelValues(kind, result(err)).Inc()
}

func (m *Metrics) lookup(kind string, err error) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(kind, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
