package compaction

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks compaction activity.
type Metrics struct {
	PassesTotal  prometheus.Counter
	DroppedTotal prometheus.Counter
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics returns the process-wide compaction metrics.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			PassesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "aide_compaction_passes_total",
				Help: "Total number of compaction passes",
			}),
			DroppedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "aide_compaction_dropped_messages_total",
				Help: "Total number of messages dropped or folded by compaction",
			}),
		}
	})
	return metricsInstance
}

// RecordPass counts one pass and the messages it removed.
func (m *Metrics) RecordPass(dropped int) {
	if m == nil {
		return
	}
	m.PassesTotal.Inc()
	if dropped > 0 {
		m.DroppedTotal.Add(float64(dropped))
	}
}
