package capability

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Trend labels the direction of an agent's recent outcome quality.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDegrading Trend = "degrading"
)

// trendDelta is the minimum half-window mean difference that counts as a
// real trend rather than noise.
const trendDelta = 0.05

// WindowStats summarizes the rolling execution history.
type WindowStats struct {
	Samples          int           `json:"samples"`
	SuccessRate      float64       `json:"success_rate"`
	AvgExecutionTime time.Duration `json:"avg_execution_time"`
}

// PerformanceReport is a point-in-time view of one agent's health:
// lifetime counters, memory pressure, rolling-window quality, and trend.
type PerformanceReport struct {
	AgentID     string    `json:"agent_id"`
	AgentType   string    `json:"agent_type"`
	Status      Status    `json:"status"`
	GeneratedAt time.Time `json:"generated_at"`

	Metrics        PerformanceMetrics `json:"metrics"`
	Memory         MemoryUsage        `json:"memory"`
	MaxContexts    int                `json:"max_contexts"`
	QueueDepth     int                `json:"queue_depth"`
	CumulativeBusy time.Duration      `json:"cumulative_busy"`

	Window WindowStats `json:"window"`
	Trend  Trend       `json:"trend"`
}

// Optimization is one concrete adjustment to an agent. Only the field
// matching the action is read.
type Optimization struct {
	Action string `json:"action"`

	QueueDepth   int   `json:"queue_depth,omitempty"`
	KeepContexts int   `json:"keep_contexts,omitempty"`
	MemorySize   int64 `json:"memory_size,omitempty"`
}

// Optimization actions accepted by ApplyOptimization.
const (
	ActionReset            = "reset"
	ActionReduceQueueDepth = "reduce_queue_depth"
	ActionPruneContexts    = "prune_contexts"
	ActionSetMemory        = "set_memory"
)

// Recommendation pairs a suggested optimization with the observation that
// motivated it, ready to pass to ApplyOptimization.
type Recommendation struct {
	AgentID      string       `json:"agent_id"`
	Reason       string       `json:"reason"`
	Optimization Optimization `json:"optimization"`
}

// PerformanceReport builds the health report for one agent.
func (m *Manager) PerformanceReport(agentID string) (*PerformanceReport, error) {
	agent, err := m.Agent(agentID)
	if err != nil {
		return nil, err
	}

	history := agent.historyCopy()
	report := &PerformanceReport{
		AgentID:        agent.ID(),
		AgentType:      agent.TypeName(),
		Status:         agent.Status(),
		GeneratedAt:    time.Now(),
		Metrics:        agent.Metrics(),
		Memory:         agent.Memory(),
		MaxContexts:    agent.MaxContexts(),
		QueueDepth:     agent.QueueDepth(),
		CumulativeBusy: agent.snapshot().CumulativeBusy,
		Window:         windowStats(history),
		Trend:          historyTrend(history),
	}
	return report, nil
}

// PerformanceReports builds reports for the whole pool, sorted by agent ID.
func (m *Manager) PerformanceReports() []*PerformanceReport {
	agents := m.Agents()
	reports := make([]*PerformanceReport, 0, len(agents))
	for _, a := range agents {
		if r, err := m.PerformanceReport(a.ID()); err == nil {
			reports = append(reports, r)
		}
	}
	return reports
}

// OptimizationRecommendations inspects the pool and suggests adjustments:
// error-state agents get a reset, low success rates get a tighter queue,
// slow agents get more memory, and agents at their context cap get pruned.
func (m *Manager) OptimizationRecommendations() []Recommendation {
	sched := m.cfg.Scheduler()
	var recs []Recommendation

	for _, agent := range m.Agents() {
		snap := agent.snapshot()
		metrics := agent.Metrics()
		memory := agent.Memory()

		if snap.Status == StatusError {
			recs = append(recs, Recommendation{
				AgentID:      snap.ID,
				Reason:       "agent is in error state and accepts no work",
				Optimization: Optimization{Action: ActionReset},
			})
		}

		if snap.HasHistory && metrics.SuccessRate < sched.SuccessRateFloor {
			depth := snap.MaxQueueDepth / 2
			if depth < 1 {
				depth = 1
			}
			recs = append(recs, Recommendation{
				AgentID: snap.ID,
				Reason: fmt.Sprintf("success rate %.2f below floor %.2f",
					metrics.SuccessRate, sched.SuccessRateFloor),
				Optimization: Optimization{Action: ActionReduceQueueDepth, QueueDepth: depth},
			})
		}

		expected := sched.ExpectedDuration(snap.Category)
		if snap.HasHistory && expected > 0 &&
			metrics.AvgExecutionTime > time.Duration(sched.SlowExecutionFactor*float64(expected)) {
			recs = append(recs, Recommendation{
				AgentID: snap.ID,
				Reason: fmt.Sprintf("average execution time %s exceeds %.1fx the expected %s",
					metrics.AvgExecutionTime, sched.SlowExecutionFactor, expected),
				Optimization: Optimization{Action: ActionSetMemory, MemorySize: memory.MemorySize * 2},
			})
		}

		if limit := agent.MaxContexts(); limit > 0 && memory.ContextsActive >= limit {
			keep := limit / 2
			recs = append(recs, Recommendation{
				AgentID: snap.ID,
				Reason: fmt.Sprintf("active contexts %d at cap %d",
					memory.ContextsActive, limit),
				Optimization: Optimization{Action: ActionPruneContexts, KeepContexts: keep},
			})
		}
	}
	return recs
}

// ApplyOptimization applies one adjustment to one agent. Unknown actions
// fail with ErrUnknownAction.
func (m *Manager) ApplyOptimization(agentID string, opt Optimization) error {
	agent, err := m.Agent(agentID)
	if err != nil {
		return err
	}

	switch opt.Action {
	case ActionReset:
		err = agent.ResetError()
	case ActionReduceQueueDepth:
		err = agent.SetMaxQueueDepth(opt.QueueDepth)
	case ActionPruneContexts:
		pruned := agent.PruneContexts(opt.KeepContexts)
		m.logger.Info("contexts pruned",
			zap.String("agent_id", agentID),
			zap.Int("pruned", pruned))
	case ActionSetMemory:
		err = agent.SetMemorySize(opt.MemorySize)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, opt.Action)
	}
	if err != nil {
		return fmt.Errorf("apply %s to agent %s: %w", opt.Action, agentID, err)
	}

	m.logger.Info("optimization applied",
		zap.String("agent_id", agentID),
		zap.String("action", opt.Action))
	return nil
}

// windowStats aggregates the rolling history.
func windowStats(history []executionRecord) WindowStats {
	stats := WindowStats{Samples: len(history)}
	if len(history) == 0 {
		return stats
	}
	var sampleSum float64
	var durSum time.Duration
	for _, rec := range history {
		sampleSum += rec.Sample
		durSum += rec.Duration
	}
	stats.SuccessRate = sampleSum / float64(len(history))
	stats.AvgExecutionTime = durSum / time.Duration(len(history))
	return stats
}

// historyTrend compares the two halves of the rolling window. Fewer than
// four records is not enough signal to call a direction.
func historyTrend(history []executionRecord) Trend {
	if len(history) < 4 {
		return TrendStable
	}
	mid := len(history) / 2
	older := meanSample(history[:mid])
	newer := meanSample(history[mid:])
	switch {
	case newer-older > trendDelta:
		return TrendImproving
	case older-newer > trendDelta:
		return TrendDegrading
	default:
		return TrendStable
	}
}

func meanSample(records []executionRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	var sum float64
	for _, rec := range records {
		sum += rec.Sample
	}
	return sum / float64(len(records))
}
