package capability

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// historyWindow bounds the per-agent rolling execution history.
const historyWindow = 50

// executionRecord is one entry in an agent's rolling history.
type executionRecord struct {
	FinishedAt time.Time
	Duration   time.Duration
	Success    bool
	Complexity Complexity
	Sample     float64
}

// Agent is the mutable per-instance record: lifecycle status, current task,
// pending queue, and performance counters. All reads and read-modify-write
// sequences go through the agent's own mutex, so operations on different
// agents proceed independently.
type Agent struct {
	mu sync.Mutex

	id  string
	def *AgentTypeDefinition

	status           Status
	lastStatusChange time.Time
	stopRequested    bool

	// capabilities starts as a copy of the type definition and may be
	// extended per instance.
	capabilities map[string]struct{}

	current *ActiveTask
	pending []*Task

	// maxQueueDepth and maxContexts may be adjusted per agent by the
	// optimizer.
	maxQueueDepth int
	maxContexts   int

	metrics PerformanceMetrics
	memory  MemoryUsage

	// sampleCount/sampleMean is the success-rate sample stream: 1.0 for a
	// success, 0.0 for a failure, or the rating-mapped value for a rated
	// outcome. SuccessRate is the running mean.
	sampleCount int64
	sampleMean  float64

	history        []executionRecord
	cumulativeBusy time.Duration

	logger *zap.Logger

	// transitionHook is invoked after every status change (metrics wiring).
	transitionHook func(agentType string, from, to Status)
}

// newAgent creates an agent instance for the given type definition.
func newAgent(id string, def *AgentTypeDefinition, extraCapabilities []string, maxQueueDepth int, logger *zap.Logger) *Agent {
	caps := make(map[string]struct{}, len(def.Capabilities)+len(extraCapabilities))
	for c := range def.Capabilities {
		caps[c] = struct{}{}
	}
	for _, c := range extraCapabilities {
		if c != "" {
			caps[c] = struct{}{}
		}
	}

	return &Agent{
		id:               id,
		def:              def,
		status:           StatusIdle,
		lastStatusChange: time.Now(),
		capabilities:     caps,
		maxQueueDepth:    maxQueueDepth,
		maxContexts:      def.MaxContexts,
		metrics:          PerformanceMetrics{SuccessRate: 1.0},
		memory: MemoryUsage{
			MemorySize:     def.MemorySize,
			ContextsActive: 0,
		},
		logger: logger.With(zap.String("agent_id", id), zap.String("agent_type", def.TypeName)),
	}
}

// ID returns the agent's unique identifier.
func (a *Agent) ID() string { return a.id }

// TypeName returns the agent's type name.
func (a *Agent) TypeName() string { return a.def.TypeName }

// Category returns the agent type's category.
func (a *Agent) Category() string { return a.def.Category }

// Status returns the current lifecycle status.
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Metrics returns a copy of the performance counters.
func (a *Agent) Metrics() PerformanceMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.metrics
}

// Memory returns a copy of the memory usage record.
func (a *Agent) Memory() MemoryUsage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.memory
}

// CurrentTask returns the in-flight task, or nil.
func (a *Agent) CurrentTask() *ActiveTask {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return nil
	}
	cp := *a.current
	return &cp
}

// QueueDepth returns the number of pending (not yet started) tasks.
func (a *Agent) QueueDepth() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// CapabilityList returns the agent's capabilities, sorted.
func (a *Agent) CapabilityList() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return capabilitySetToList(a.capabilities)
}

// MaxContexts returns the agent's context cap.
func (a *Agent) MaxContexts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxContexts
}

// MaxQueueDepth returns the agent's pending-queue bound.
func (a *Agent) MaxQueueDepth() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxQueueDepth
}

// SetMaxQueueDepth adjusts the pending-queue bound. Tasks already queued
// beyond a lowered bound stay queued; only new admissions are rejected.
func (a *Agent) SetMaxQueueDepth(depth int) error {
	if depth < 0 {
		return fmt.Errorf("queue depth must be non-negative, got %d", depth)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.maxQueueDepth = depth
	return nil
}

// SetMemorySize adjusts the agent's memory allotment.
func (a *Agent) SetMemorySize(size int64) error {
	if size <= 0 {
		return fmt.Errorf("memory size must be positive, got %d", size)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.memory.MemorySize = size
	return nil
}

// PruneContexts releases contexts down to the given count, never touching
// the one backing an in-flight task.
func (a *Agent) PruneContexts(keep int) int {
	if keep < 0 {
		keep = 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	floor := 0
	if a.current != nil {
		floor = 1
	}
	if keep < floor {
		keep = floor
	}
	pruned := a.memory.ContextsActive - keep
	if pruned <= 0 {
		return 0
	}
	a.memory.ContextsActive = keep
	return pruned
}

// ExtendCapabilities adds instance-level capability tags beyond the type's
// declared set.
func (a *Agent) ExtendCapabilities(capabilities ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range capabilities {
		if c != "" {
			a.capabilities[c] = struct{}{}
		}
	}
}

// setStatus performs a validated transition and updates lastStatusChange.
// Callers must hold a.mu.
func (a *Agent) setStatus(to Status) error {
	if a.status == to {
		return nil
	}
	if !CanTransition(a.status, to) {
		return InvalidTransitionError{From: a.status, To: to}
	}
	from := a.status
	a.status = to
	a.lastStatusChange = time.Now()
	if a.transitionHook != nil {
		a.transitionHook(a.def.TypeName, from, to)
	}
	return nil
}

// Assign hands a task to the agent. Idle and active agents start it
// immediately and become busy. A busy agent accepts the task onto its
// pending queue only when allowQueue is set and the queue has room;
// otherwise the call fails with ErrAgentBusy. The returned flag reports
// whether the task was queued rather than started.
func (a *Agent) Assign(task *Task, allowQueue bool) (queued bool, err error) {
	if task == nil || task.ID == "" {
		return false, fmt.Errorf("task is nil or has empty id")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopRequested || a.status == StatusStopping || a.status == StatusStopped || a.status == StatusError {
		return false, fmt.Errorf("%w: agent %s is %s", ErrAgentUnavailable, a.id, a.status)
	}

	if a.status == StatusBusy {
		if !allowQueue {
			return false, fmt.Errorf("%w: agent %s", ErrAgentBusy, a.id)
		}
		if len(a.pending) >= a.maxQueueDepth {
			return false, fmt.Errorf("%w: agent %s (depth %d)", ErrQueueFull, a.id, a.maxQueueDepth)
		}
		a.pending = append(a.pending, task)
		a.logger.Debug("task queued",
			zap.String("task_id", task.ID),
			zap.Int("queue_depth", len(a.pending)))
		return true, nil
	}

	if err := a.setStatus(StatusBusy); err != nil {
		return false, err
	}
	a.current = &ActiveTask{Task: task, AssignedAt: time.Now()}
	a.memory.ContextsActive++
	a.logger.Debug("task assigned", zap.String("task_id", task.ID))
	return false, nil
}

// completionEffect reports what happened inside Complete so the manager can
// update its own bookkeeping without holding the agent lock.
type completionEffect struct {
	TaskID        string
	ExecutionTime time.Duration
	Metrics       PerformanceMetrics

	// Started is the pending task promoted to current, if any.
	Started *Task
	// StartedAt is the promotion timestamp, valid when Started != nil.
	StartedAt time.Time

	// Dropped lists pending tasks abandoned because the agent stopped.
	Dropped []*Task
}

// Complete resolves the in-flight task. sample is the success-rate sample
// for this outcome (0/1 or the rating-mapped value). On success the agent
// moves to active, on failure to error; if a pending task is waiting and
// the agent is healthy, it is promoted immediately and the agent stays
// busy. A stop requested while the task was running takes effect now.
func (a *Agent) Complete(outcome Outcome, sample float64) (completionEffect, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status != StatusBusy || a.current == nil {
		return completionEffect{}, fmt.Errorf("%w: agent %s has no task in flight", ErrTaskNotFound, a.id)
	}

	now := time.Now()
	task := a.current.Task
	execTime := now.Sub(a.current.AssignedAt)
	a.current = nil
	a.cumulativeBusy += execTime
	if a.memory.ContextsActive > 0 {
		a.memory.ContextsActive--
	}

	// Update counters. successRate is always recomputed from the sample
	// stream, never set directly.
	if outcome.Success {
		a.metrics.TotalCompleted++
	} else {
		a.metrics.TotalFailed++
	}
	total := a.metrics.TotalCompleted + a.metrics.TotalFailed
	a.metrics.AvgExecutionTime += (execTime - a.metrics.AvgExecutionTime) / time.Duration(total)
	a.sampleCount++
	a.sampleMean += (sample - a.sampleMean) / float64(a.sampleCount)
	a.metrics.SuccessRate = a.sampleMean

	a.history = append(a.history, executionRecord{
		FinishedAt: now,
		Duration:   execTime,
		Success:    outcome.Success,
		Complexity: task.Requirements.Complexity,
		Sample:     sample,
	})
	if len(a.history) > historyWindow {
		a.history = a.history[len(a.history)-historyWindow:]
	}

	effect := completionEffect{
		TaskID:        task.ID,
		ExecutionTime: execTime,
		Metrics:       a.metrics,
	}

	// Stop requested mid-flight: wind down now that the task is resolved.
	if a.stopRequested {
		effect.Dropped = a.pending
		a.pending = nil
		if err := a.setStatus(StatusStopping); err != nil {
			return effect, err
		}
		if err := a.setStatus(StatusStopped); err != nil {
			return effect, err
		}
		a.logger.Info("agent stopped after in-flight task resolved",
			zap.String("task_id", task.ID))
		return effect, nil
	}

	next := StatusActive
	if !outcome.Success {
		next = StatusError
	}
	if err := a.setStatus(next); err != nil {
		return effect, err
	}

	// Promote the next pending task, keeping the agent busy. A failed
	// agent keeps its queue; rebalancing or a reset drains it.
	if next == StatusActive && len(a.pending) > 0 {
		started := a.pending[0]
		a.pending = a.pending[1:]
		if err := a.setStatus(StatusBusy); err != nil {
			return effect, err
		}
		a.current = &ActiveTask{Task: started, AssignedAt: now}
		a.memory.ContextsActive++
		effect.Started = started
		effect.StartedAt = now
	}

	a.logger.Debug("task completed",
		zap.String("task_id", task.ID),
		zap.Bool("success", outcome.Success),
		zap.Duration("execution_time", execTime),
		zap.Float64("success_rate", a.metrics.SuccessRate))

	return effect, nil
}

// Stop requests shutdown. Idle agents stop immediately; a busy agent keeps
// its busy status until the in-flight task is resolved, then winds down.
// Returns any pending tasks dropped by an immediate stop.
func (a *Agent) Stop() []*Task {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status == StatusStopped || a.status == StatusStopping {
		return nil
	}
	if a.status == StatusBusy {
		a.stopRequested = true
		return nil
	}

	dropped := a.pending
	a.pending = nil
	a.stopRequested = true
	// Transition errors cannot occur here: every non-terminal, non-busy
	// status may enter stopping.
	_ = a.setStatus(StatusStopping)
	_ = a.setStatus(StatusStopped)
	return dropped
}

// ResetError returns a failed agent to idle.
func (a *Agent) ResetError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status != StatusError {
		return fmt.Errorf("agent %s is %s, not %s", a.id, a.status, StatusError)
	}
	return a.setStatus(StatusIdle)
}

// TakePending removes and returns up to n pending tasks from the tail of
// the queue, so the oldest queued work keeps its position.
func (a *Agent) TakePending(n int) []*Task {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n <= 0 || len(a.pending) == 0 {
		return nil
	}
	if n > len(a.pending) {
		n = len(a.pending)
	}
	cut := len(a.pending) - n
	taken := append([]*Task(nil), a.pending[cut:]...)
	a.pending = a.pending[:cut]
	return taken
}

// matchSnapshot is an immutable copy of the signals the scorer needs, taken
// under the agent lock so scoring can run lock-free over the pool.
type matchSnapshot struct {
	ID                  string
	TypeName            string
	Category            string
	Status              Status
	Capabilities        map[string]struct{}
	SuccessRate         float64
	AvgExecutionTime    time.Duration
	HasHistory          bool
	DominantComplexity  Complexity
	PreferredComplexity Complexity
	Busy                bool
	QueueLen            int
	MaxQueueDepth       int
	CumulativeBusy      time.Duration
}

// snapshot captures the scoring signals.
func (a *Agent) snapshot() matchSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	caps := make(map[string]struct{}, len(a.capabilities))
	for c := range a.capabilities {
		caps[c] = struct{}{}
	}

	return matchSnapshot{
		ID:                  a.id,
		TypeName:            a.def.TypeName,
		Category:            a.def.Category,
		Status:              a.status,
		Capabilities:        caps,
		SuccessRate:         a.metrics.SuccessRate,
		AvgExecutionTime:    a.metrics.AvgExecutionTime,
		HasHistory:          len(a.history) > 0,
		DominantComplexity:  a.dominantComplexityLocked(),
		PreferredComplexity: a.def.PreferredComplexity,
		Busy:                a.status == StatusBusy,
		QueueLen:            len(a.pending),
		MaxQueueDepth:       a.maxQueueDepth,
		CumulativeBusy:      a.cumulativeBusy,
	}
}

// dominantComplexityLocked returns the most frequent complexity tier in the
// rolling history, falling back to the type's preferred tier. Callers must
// hold a.mu.
func (a *Agent) dominantComplexityLocked() Complexity {
	counts := make(map[Complexity]int, 3)
	for _, rec := range a.history {
		if rec.Complexity != "" {
			counts[rec.Complexity]++
		}
	}
	best := a.def.PreferredComplexity
	bestCount := 0
	for _, tier := range []Complexity{ComplexityLow, ComplexityMedium, ComplexityHigh} {
		if counts[tier] > bestCount {
			best = tier
			bestCount = counts[tier]
		}
	}
	return best
}

// historyCopy returns the rolling execution history, oldest first.
func (a *Agent) historyCopy() []executionRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]executionRecord(nil), a.history...)
}

// checkInvariant verifies status == busy ⇔ currentTask != nil. Used by tests.
func (a *Agent) checkInvariant() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	busy := a.status == StatusBusy
	hasTask := a.current != nil
	if busy != hasTask {
		return fmt.Errorf("agent %s: status=%s but currentTask present=%v", a.id, a.status, hasTask)
	}
	return nil
}

func capabilitySetToList(set map[string]struct{}) []string {
	list := make([]string, 0, len(set))
	for c := range set {
		list = append(list, c)
	}
	sort.Strings(list)
	return list
}
