// Package metrics 定义搜索相关性引擎的 Prometheus 指标。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InteractionsTotal 统计交互事件处理结果。
	// Labels:
	//   - type: 交互类型
	//   - outcome: applied / noop / invalid / failed
	InteractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchkit_interactions_total",
			Help: "Total number of interaction events processed by the preference collector",
		},
		[]string{"type", "outcome"},
	)

	// DecayUsersTotal 统计衰减处理的用户数。
	// Labels:
	//   - mode: user / immediate / sweep
	//   - outcome: decayed / unchanged / failed
	DecayUsersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchkit_decay_users_total",
			Help: "Total number of profiles visited by the decay engine",
		},
		[]string{"mode", "outcome"},
	)

	// DecaySweepDuration 记录一次全量 sweep 的耗时。
	DecaySweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "searchkit_decay_sweep_duration_seconds",
			Help:    "Duration of full decay sweeps in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		},
	)

	// ExperimentAssignmentsTotal 统计实验分配。
	ExperimentAssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchkit_experiment_assignments_total",
			Help: "Total number of experiment variant assignments",
		},
		[]string{"experiment", "variant"},
	)

	// ExperimentRecordDropped 统计因缓冲区满而丢弃的分配/结果记录。
	ExperimentRecordDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchkit_experiment_records_dropped_total",
			Help: "Experiment records dropped because the recorder buffer was full",
		},
		[]string{"kind"},
	)

	// NLPStageFailures 统计查询理解各阶段的失败（已降级）。
	NLPStageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchkit_nlp_stage_failures_total",
			Help: "Query understanding stages that failed and degraded to pass-through",
		},
		[]string{"stage"},
	)

	// ScoringProfileApplied 统计评分 profile 的使用。
	ScoringProfileApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchkit_scoring_profile_applied_total",
			Help: "Scoring profiles applied to search queries",
		},
		[]string{"profile"},
	)

	// PipelineNodeErrors 统计搜索流程节点失败（已降级）。
	PipelineNodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchkit_pipeline_node_errors_total",
			Help: "Search pipeline nodes that failed and were skipped",
		},
		[]string{"node"},
	)

	// PipelineNodeDuration 记录节点耗时。
	PipelineNodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "searchkit_pipeline_node_duration_seconds",
			Help:    "Duration of search pipeline nodes in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"node"},
	)

	// CollabFanoutErrors 统计协同过滤拉取相似用户日志时的失败。
	CollabFanoutErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "searchkit_collab_fanout_errors_total",
			Help: "Similar-user interaction log reads that failed or timed out",
		},
	)

	// BreakerState 记录熔断器状态（0 closed, 1 half-open, 2 open）。
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "searchkit_circuit_breaker_state",
			Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
		[]string{"name"},
	)

	// CacheLookups 统计画像缓存命中。
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchkit_profile_cache_lookups_total",
			Help: "Profile cache lookups by result",
		},
		[]string{"result"},
	)

	// StreamEventsTotal 统计交互事件流的收发。
	// Labels:
	//   - direction: publish / consume
	//   - outcome: sent / failed / applied / rejected / invalid
	StreamEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchkit_stream_events_total",
			Help: "Interaction events published to or consumed from the event stream",
		},
		[]string{"direction", "outcome"},
	)
)

// ObserveNode 记录节点耗时。
func ObserveNode(node string, start time.Time) {
	PipelineNodeDuration.WithLabelValues(node).Observe(time.Since(start).Seconds())
}
