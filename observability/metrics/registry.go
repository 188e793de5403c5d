package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type RegistryMetrics struct {
	opsAccepted    *prometheus.CounterVec
	opsRejected    *prometheus.CounterVec
	recalculations prometheus.Counter
	compositeScore *prometheus.GaugeVec
	priority       *prometheus.GaugeVec
}

var (
	registryOnce    sync.Once
	registryMetrics *RegistryMetrics
)

// Registry returns the process-wide instrument set for the processor
// registry, registering it on first use.
func Registry() *RegistryMetrics {
	registryOnce.Do(func() {
		registryMetrics = &RegistryMetrics{
			opsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "payflow_ops_accepted_total",
				Help: "Count of accepted operations by selector.",
			}, []string{"selector"}),
			opsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "payflow_ops_rejected_total",
				Help: "Count of rejected operations by selector and reason.",
			}, []string{"selector", "reason"}),
			recalculations: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "payflow_priority_recalculations_total",
				Help: "Number of priority recalculations committed.",
			}),
			compositeScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "payflow_processor_composite_score",
				Help: "Latest composite score per processor index.",
			}, []string{"index"}),
			priority: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "payflow_processor_priority",
				Help: "Latest calculated priority per processor index.",
			}, []string{"index"}),
		}
		prometheus.MustRegister(
			registryMetrics.opsAccepted,
			registryMetrics.opsRejected,
			registryMetrics.recalculations,
			registryMetrics.compositeScore,
			registryMetrics.priority,
		)
	})
	return registryMetrics
}

func (m *RegistryMetrics) OpAccepted(selector string) {
	if m == nil {
		return
	}
	m.opsAccepted.WithLabelValues(normalizeSelector(selector)).Inc()
}

func (m *RegistryMetrics) OpRejected(selector, reason string) {
	if m == nil {
		return
	}
	m.opsRejected.WithLabelValues(normalizeSelector(selector), reason).Inc()
}

func (m *RegistryMetrics) RecalculationCommitted() {
	if m == nil {
		return
	}
	m.recalculations.Inc()
}

func (m *RegistryMetrics) SetProcessorScore(index uint64, score uint64) {
	if m == nil {
		return
	}
	m.compositeScore.WithLabelValues(strconv.FormatUint(index, 10)).Set(float64(score))
}

func (m *RegistryMetrics) SetProcessorPriority(index uint64, priority uint64) {
	if m == nil {
		return
	}
	m.priority.WithLabelValues(strconv.FormatUint(index, 10)).Set(float64(priority))
}

func normalizeSelector(selector string) string {
	if selector == "" {
		return "read"
	}
	return selector
}
