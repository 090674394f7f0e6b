package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"drillx/pkg/hashing/core"
)

var (
	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drillx_batches_total",
		Help: "Total number of batches by outcome",
	}, []string{"engine", "outcome"})

	lanesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drillx_lanes_total",
		Help: "Total number of lanes computed in successful batches",
	}, []string{"engine"})

	lanesSolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drillx_lanes_solved_total",
		Help: "Total number of lanes whose digest carries a solution",
	}, []string{"engine"})

	heapOverflows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drillx_heap_overflows_total",
		Help: "Total number of lanes whose solver heap overflowed",
	}, []string{"engine"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "drillx_stage_duration_seconds",
		Help:    "Duration of each pipeline stage over a whole batch",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
	}, []string{"engine", "stage"})

	arenaBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "drillx_arena_bytes",
		Help: "Arena pool memory",
	}, []string{"kind"})
)

// outcomeLabel maps a batch error to a metric label
func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if t, ok := core.ErrorTypeOf(err); ok {
		return t.String()
	}
	return "other"
}
