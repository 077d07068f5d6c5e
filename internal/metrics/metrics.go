package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	NAMESPACE = "flowfeat"
)

var (
	PacketsProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:      "packets_processed_total",
			Help:      "Packets read from the packet source, malformed ones included.",
			Namespace: NAMESPACE,
		},
	)
	PacketsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "packets_skipped_total",
			Help:      "Packets read but not folded into any flow.",
			Namespace: NAMESPACE,
		},
		[]string{"reason"},
	)
	FlowTableSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:      "flow_table_size",
			Help:      "Flows held by the flow table (active and retired).",
			Namespace: NAMESPACE,
		},
	)
	FlowsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:      "flows_expired_total",
			Help:      "Flows retired by the idle timeout.",
			Namespace: NAMESPACE,
		},
	)
	RunState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:      "run_state",
			Help:      "1 for the current state of the run controller, 0 otherwise.",
			Namespace: NAMESPACE,
		},
		[]string{"state"},
	)
	RowsExported = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "rows_exported_total",
			Help:      "Feature rows handed to each writer.",
			Namespace: NAMESPACE,
		},
		[]string{"writer"},
	)
	WriterErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "writer_errors_total",
			Help:      "Failed writer exports.",
			Namespace: NAMESPACE,
		},
		[]string{"writer"},
	)
)

func init() {
	prometheus.MustRegister(PacketsProcessed)
	prometheus.MustRegister(PacketsSkipped)
	prometheus.MustRegister(FlowTableSize)
	prometheus.MustRegister(FlowsExpired)
	prometheus.MustRegister(RunState)
	prometheus.MustRegister(RowsExported)
	prometheus.MustRegister(WriterErrors)
}

// SetRunState marks state as the only active run state.
func SetRunState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		RunState.WithLabelValues(s).Set(v)
	}
}
