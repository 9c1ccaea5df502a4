// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 调度器指标收集器
type Collector struct {
	// 任务指标
	assignmentsTotal   *prometheus.CounterVec
	completionsTotal   *prometheus.CounterVec
	completionDuration *prometheus.HistogramVec

	// 选择指标
	selectionDuration prometheus.Histogram

	// 池指标
	poolAgents *prometheus.GaugeVec
	queueDepth prometheus.Gauge

	// 再平衡与状态指标
	rebalanceMoves   prometheus.Counter
	stateTransitions *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 任务指标
	c.assignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_assignments_total",
			Help:      "Total number of task assignments",
		},
		[]string{"agent_type", "mode"}, // mode: direct, queued
	)

	c.completionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_completions_total",
			Help:      "Total number of task completions",
		},
		[]string{"agent_type", "status"}, // status: success, failure
	)

	c.completionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_execution_duration_seconds",
			Help:      "Task execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"agent_type"},
	)

	// 选择指标
	c.selectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_selection_duration_seconds",
			Help:      "Best-agent selection duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 10, 7),
		},
	)

	// 池指标
	c.poolAgents = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_agents",
			Help:      "Number of agents in the pool by status",
		},
		[]string{"status"},
	)

	c.queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_queue_depth",
			Help:      "Total number of queued (not started) tasks",
		},
	)

	// 再平衡与状态指标
	c.rebalanceMoves = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rebalance_moves_total",
			Help:      "Total number of tasks moved by rebalancing",
		},
	)

	c.stateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_state_transitions_total",
			Help:      "Total number of agent state transitions",
		},
		[]string{"agent_type", "from_state", "to_state"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 任务指标记录
// =============================================================================

// RecordAssignment 记录任务分配
func (c *Collector) RecordAssignment(agentType, mode string) {
	c.assignmentsTotal.WithLabelValues(agentType, mode).Inc()
}

// RecordCompletion 记录任务完成
func (c *Collector) RecordCompletion(agentType, status string, duration time.Duration) {
	c.completionsTotal.WithLabelValues(agentType, status).Inc()
	c.completionDuration.WithLabelValues(agentType).Observe(duration.Seconds())
}

// =============================================================================
// 🔍 选择指标记录
// =============================================================================

// ObserveSelection 记录选择耗时
func (c *Collector) ObserveSelection(duration time.Duration) {
	c.selectionDuration.Observe(duration.Seconds())
}

// =============================================================================
// 🏊 池指标记录
// =============================================================================

// SetPoolGauges 记录各状态的 Agent 数量
func (c *Collector) SetPoolGauges(byStatus map[string]int) {
	for status, count := range byStatus {
		c.poolAgents.WithLabelValues(status).Set(float64(count))
	}
}

// SetQueueDepth 记录排队任务总数
func (c *Collector) SetQueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}

// =============================================================================
// ⚖️ 再平衡与状态指标记录
// =============================================================================

// RecordRebalance 记录再平衡移动数
func (c *Collector) RecordRebalance(moves int) {
	if moves > 0 {
		c.rebalanceMoves.Add(float64(moves))
	}
}

// RecordStateTransition 记录状态转换
func (c *Collector) RecordStateTransition(agentType, fromState, toState string) {
	c.stateTransitions.WithLabelValues(agentType, fromState, toState).Inc()
}
