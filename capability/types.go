package capability

import (
	"fmt"
	"time"
)

// Complexity is the declared difficulty tier of a task.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// complexityRank orders the tiers for adjacency scoring.
var complexityRank = map[Complexity]int{
	ComplexityLow:    0,
	ComplexityMedium: 1,
	ComplexityHigh:   2,
}

// ParseComplexity validates a complexity tier. The empty string is accepted
// and means "unspecified".
func ParseComplexity(s string) (Complexity, error) {
	switch c := Complexity(s); c {
	case "", ComplexityLow, ComplexityMedium, ComplexityHigh:
		return c, nil
	default:
		return "", fmt.Errorf("invalid complexity %q", s)
	}
}

// Requirements describes what a task needs from an agent.
type Requirements struct {
	// RequiredCapabilities must all be present on the agent (hard filter).
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`

	// PreferredCapabilities improve the match score when present.
	PreferredCapabilities []string `json:"preferred_capabilities,omitempty"`

	// Complexity is the declared difficulty tier (optional).
	Complexity Complexity `json:"complexity,omitempty"`

	// Category is the task category, used for expected-duration lookup (optional).
	Category string `json:"category,omitempty"`
}

// Task is a transient unit of work, owned by the caller and referenced by
// ID while in flight.
type Task struct {
	ID                string        `json:"id"`
	Requirements      Requirements  `json:"requirements"`
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`
}

// ActiveTask is the task currently executing on an agent.
type ActiveTask struct {
	Task       *Task     `json:"task"`
	AssignedAt time.Time `json:"assigned_at"`
}

// Outcome reports the result of a completed task.
type Outcome struct {
	// Success indicates whether the task completed successfully.
	Success bool `json:"success"`

	// Rating is an optional quality rating on the configured rating scale.
	// Zero means "not rated"; a rated outcome contributes its mapped value
	// to the agent's success-rate sample stream instead of 0/1.
	Rating float64 `json:"rating,omitempty"`
}

// PerformanceMetrics are the per-agent rolling counters.
type PerformanceMetrics struct {
	TotalCompleted   int64         `yaml:"total_completed" json:"total_completed"`
	TotalFailed      int64         `yaml:"total_failed" json:"total_failed"`
	SuccessRate      float64       `yaml:"success_rate" json:"success_rate"`
	AvgExecutionTime time.Duration `yaml:"avg_execution_time" json:"avg_execution_time"`
}

// MemoryUsage describes an agent's memory footprint.
type MemoryUsage struct {
	MemorySize     int64 `json:"memory_size"`
	ContextsActive int   `json:"contexts_active"`
}

// ScoreBreakdown lists the six sub-scores, each in [0,1].
type ScoreBreakdown struct {
	CapabilityMatch     float64 `json:"capability_match"`
	SpecializationMatch float64 `json:"specialization_match"`
	SuccessRate         float64 `json:"success_rate"`
	AverageTime         float64 `json:"average_time"`
	Complexity          float64 `json:"complexity"`
	Workload            float64 `json:"workload"`
}

// MatchResult is the scored outcome of matching one agent against one task.
type MatchResult struct {
	AgentID    string         `json:"agent_id"`
	Score      float64        `json:"score"`
	Confidence float64        `json:"confidence"`
	Breakdown  ScoreBreakdown `json:"breakdown"`
}

// FindOptions narrows or biases agent selection.
type FindOptions struct {
	// Strategy names the weight profile to use; empty means the configured
	// default strategy.
	Strategy string `json:"strategy,omitempty"`

	// ExcludeAgents removes agents from consideration entirely.
	ExcludeAgents []string `json:"exclude_agents,omitempty"`

	// PreferredAgents receive a bounded additive score bonus.
	PreferredAgents []string `json:"preferred_agents,omitempty"`
}

// SelectionResult is the outcome of a best-agent search. A failed search is
// a normal result, not an error: Success is false and Suggestions lists the
// capabilities no live agent satisfies.
type SelectionResult struct {
	Success     bool         `json:"success"`
	BestMatch   *MatchResult `json:"best_match,omitempty"`
	Message     string       `json:"message,omitempty"`
	Suggestions []string     `json:"suggestions,omitempty"`
}

// AssignOptions controls task assignment.
type AssignOptions struct {
	// AgentID targets a specific agent. Mutually exclusive with AutoSelect.
	AgentID string `json:"agent_id,omitempty"`

	// AutoSelect delegates agent choice to the matcher.
	AutoSelect bool `json:"auto_select,omitempty"`

	// Find options applied during auto-selection.
	Find FindOptions `json:"find,omitempty"`
}

// Assignment records a successful task assignment.
type Assignment struct {
	TaskID     string    `json:"task_id"`
	AgentID    string    `json:"agent_id"`
	AssignedAt time.Time `json:"assigned_at"`

	// Queued is true when the task went to the agent's pending queue
	// instead of starting immediately.
	Queued bool `json:"queued,omitempty"`
}

// Completion records a finished task.
type Completion struct {
	TaskID        string             `json:"task_id"`
	AgentID       string             `json:"agent_id"`
	ExecutionTime time.Duration      `json:"execution_time"`
	Performance   PerformanceMetrics `json:"performance"`
}

// LoadStatistics is a point-in-time aggregate over the pool.
type LoadStatistics struct {
	TotalAgents   int     `json:"total_agents"`
	IdleAgents    int     `json:"idle_agents"`
	ActiveAgents  int     `json:"active_agents"`
	BusyAgents    int     `json:"busy_agents"`
	ErrorAgents   int     `json:"error_agents"`
	StoppedAgents int     `json:"stopped_agents"`
	QueueDepth    int     `json:"queue_depth"`
	InFlightTasks int     `json:"in_flight_tasks"`
	Utilization   float64 `json:"utilization"`
}

// RebalanceMove records one pending task moved between agents.
type RebalanceMove struct {
	TaskID    string `json:"task_id"`
	FromAgent string `json:"from_agent"`
	ToAgent   string `json:"to_agent"`
}

// RebalanceResult reports the outcome of a rebalancing pass.
type RebalanceResult struct {
	Success bool            `json:"success"`
	Moves   []RebalanceMove `json:"moves"`
}
