package capability

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentpool/config"
	"github.com/BaSui01/agentpool/internal/metrics"
)

// AgentConfig overrides type defaults at agent creation. Zero-valued fields
// keep the catalog defaults.
type AgentConfig struct {
	// ID sets an explicit agent ID instead of a generated one.
	ID string `json:"id,omitempty"`

	// ExtraCapabilities extends the type's declared capability set.
	ExtraCapabilities []string `json:"extra_capabilities,omitempty"`

	// MemorySize overrides the type's default memory size.
	MemorySize int64 `json:"memory_size,omitempty"`

	// MaxContexts overrides the type's default context cap.
	MaxContexts int `json:"max_contexts,omitempty"`

	// MaxQueueDepth overrides the scheduler's default pending-queue bound.
	MaxQueueDepth int `json:"max_queue_depth,omitempty"`
}

// Manager owns the agent pool. It exposes agent creation and removal, task
// assignment and completion, best-match selection, load statistics,
// rebalancing, benchmarking, and pool snapshot/restore.
//
// The manager-level maps are guarded by their own RWMutex; per-agent state
// is guarded by each agent's mutex. Lock order is always manager before
// agent, and scoring iterates over lock-free snapshots.
type Manager struct {
	mu sync.RWMutex

	cfg      *config.Provider
	registry *TypeRegistry
	matcher  *Matcher

	agents map[string]*Agent

	// inFlight maps a started task ID to its owning agent.
	inFlight map[string]string

	// pendingIndex maps a queued (not yet started) task ID to its agent.
	pendingIndex map[string]string

	closed bool

	collector *metrics.Collector
	logger    *zap.Logger
}

// ManagerOption configures optional manager wiring.
type ManagerOption func(*Manager)

// WithCollector attaches a Prometheus collector for scheduler metrics.
func WithCollector(c *metrics.Collector) ManagerOption {
	return func(m *Manager) { m.collector = c }
}

// NewManager creates a manager for the catalog and options held by the
// config provider.
func NewManager(cfg *config.Provider, logger *zap.Logger, opts ...ManagerOption) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config provider is nil", ErrInvalidConfiguration)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	registry, err := NewTypeRegistry(cfg.Scheduler().Catalog, logger)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:          cfg,
		registry:     registry,
		matcher:      NewMatcher(cfg, logger),
		agents:       make(map[string]*Agent),
		inFlight:     make(map[string]string),
		pendingIndex: make(map[string]string),
		logger:       logger.With(zap.String("component", "capability_manager")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Registry exposes the static type catalog.
func (m *Manager) Registry() *TypeRegistry { return m.registry }

// CreateAgent instantiates an agent of the given type, merging the optional
// overrides over the catalog defaults.
func (m *Manager) CreateAgent(typeName string, override *AgentConfig) (*Agent, error) {
	def, err := m.registry.Definition(typeName)
	if err != nil {
		return nil, err
	}

	sched := m.cfg.Scheduler()
	maxQueue := sched.MaxQueueDepth
	var extra []string
	id := ""
	if override != nil {
		id = override.ID
		extra = override.ExtraCapabilities
		if override.MaxQueueDepth > 0 {
			maxQueue = override.MaxQueueDepth
		}
	}
	if id == "" {
		id = fmt.Sprintf("%s-%s", typeName, uuid.New().String()[:8])
	}

	agent := newAgent(id, def, extra, maxQueue, m.logger)
	if override != nil {
		if override.MemorySize > 0 {
			agent.memory.MemorySize = override.MemorySize
		}
		if override.MaxContexts > 0 {
			agent.maxContexts = override.MaxContexts
		}
	}
	if m.collector != nil {
		agent.transitionHook = func(agentType string, from, to Status) {
			m.collector.RecordStateTransition(agentType, from.String(), to.String())
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	if _, exists := m.agents[id]; exists {
		return nil, fmt.Errorf("agent %q already exists", id)
	}
	m.agents[id] = agent

	m.logger.Info("agent created",
		zap.String("agent_id", id),
		zap.String("agent_type", typeName),
		zap.Int("pool_size", len(m.agents)))
	return agent, nil
}

// Agent returns the agent with the given ID.
func (m *Manager) Agent(agentID string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agent, ok := m.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	return agent, nil
}

// Agents returns a snapshot of the pool.
func (m *Manager) Agents() []*Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agents := make([]*Agent, 0, len(m.agents))
	for _, a := range m.agents {
		agents = append(agents, a)
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].id < agents[j].id })
	return agents
}

// RemoveAgent removes an agent from the pool. It returns false when the
// agent does not exist. Removing a busy agent fails with ErrAgentBusy
// unless the force_remove_busy option is set, in which case the in-flight
// task is recorded as failed and abandoned before removal.
func (m *Manager) RemoveAgent(agentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, ok := m.agents[agentID]
	if !ok {
		return false, nil
	}

	if current := agent.CurrentTask(); current != nil {
		if !m.cfg.Scheduler().ForceRemoveBusy {
			return false, fmt.Errorf("%w: cannot remove agent %s with task %s in flight",
				ErrAgentBusy, agentID, current.Task.ID)
		}
		// Force-abandon: complete the in-flight task as failed, then stop.
		delete(m.inFlight, current.Task.ID)
		dropped := agent.Stop() // busy: marks stop requested
		effect, err := agent.Complete(Outcome{Success: false}, 0)
		if err != nil {
			// The task resolved concurrently; the agent stops on its own.
			m.logger.Warn("force removal raced with completion",
				zap.String("agent_id", agentID), zap.Error(err))
		}
		for _, t := range append(dropped, effect.Dropped...) {
			delete(m.pendingIndex, t.ID)
		}
		m.logger.Warn("busy agent force-removed, in-flight task abandoned",
			zap.String("agent_id", agentID),
			zap.String("task_id", current.Task.ID))
	} else {
		for _, t := range agent.Stop() {
			delete(m.pendingIndex, t.ID)
		}
	}

	delete(m.agents, agentID)
	m.logger.Info("agent removed",
		zap.String("agent_id", agentID),
		zap.Int("pool_size", len(m.agents)))
	return true, nil
}

// FindBestAgent scores every eligible agent against the requirements and
// returns the top-ranked match. An empty candidate set is a normal outcome:
// Success is false and Suggestions names the capabilities no live agent
// provides.
func (m *Manager) FindBestAgent(ctx context.Context, req Requirements, opts FindOptions) (*SelectionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	profile, err := m.cfg.Strategy(opts.Strategy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	snaps := m.poolSnapshots(opts.ExcludeAgents)

	preferred := make(map[string]bool, len(opts.PreferredAgents))
	for _, id := range opts.PreferredAgents {
		preferred[id] = true
	}
	sched := m.cfg.Scheduler()
	bonus := sched.PreferredAgentBonus

	// Busy agents are only viable answers when queueing is on; with it off
	// a busy "best match" would be an agent AssignTask must refuse.
	allowBusy := sched.QueueWhenBusy

	var best *scoredCandidate
	for _, snap := range snaps {
		if snap.Status == StatusBusy {
			if !allowBusy {
				continue
			}
		} else if !snap.Status.Assignable() {
			continue
		}
		result, eligible := m.matcher.Score(snap, req, profile)
		if !eligible {
			continue
		}
		if preferred[snap.ID] {
			// Additive and bounded: a preferred agent never beats a
			// higher raw score by more than the configured bonus.
			result.Score = clamp01(result.Score + bonus)
		}
		candidate := scoredCandidate{MatchResult: result, cumulativeBusy: snap.CumulativeBusy}
		if best == nil || better(candidate, *best) {
			c := candidate
			best = &c
		}
	}

	if m.collector != nil {
		m.collector.ObserveSelection(time.Since(start))
	}

	if best == nil {
		missing := m.missingCapabilities(req.RequiredCapabilities, snaps)
		msg := "no eligible agent"
		if len(missing) > 0 {
			msg = fmt.Sprintf("no live agent provides: %s", strings.Join(missing, ", "))
		}
		m.logger.Debug("selection failed", zap.Strings("missing_capabilities", missing))
		return &SelectionResult{Success: false, Message: msg, Suggestions: missing}, nil
	}

	result := best.MatchResult
	return &SelectionResult{Success: true, BestMatch: &result}, nil
}

// AssignTask assigns a task either to an explicitly targeted agent or to
// the best automatically selected one. Auto-selection re-checks under the
// winning agent's lock and retries with that agent excluded when it lost a
// race, so concurrent calls never double-assign an agent.
func (m *Manager) AssignTask(ctx context.Context, task *Task, opts AssignOptions) (*Assignment, error) {
	if task == nil || task.ID == "" {
		return nil, fmt.Errorf("task is nil or has empty id")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	closed := m.closed
	_, inFlight := m.inFlight[task.ID]
	_, queued := m.pendingIndex[task.ID]
	m.mu.RUnlock()
	if closed {
		return nil, ErrManagerClosed
	}
	if inFlight || queued {
		return nil, fmt.Errorf("task %s is already assigned", task.ID)
	}

	allowQueue := m.cfg.Scheduler().QueueWhenBusy

	if opts.AgentID != "" {
		agent, err := m.Agent(opts.AgentID)
		if err != nil {
			return nil, err
		}
		return m.assignTo(agent, task, allowQueue)
	}
	if !opts.AutoSelect {
		return nil, fmt.Errorf("either agent_id or auto_select must be set")
	}

	exclude := append([]string(nil), opts.Find.ExcludeAgents...)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sel, err := m.FindBestAgent(ctx, task.Requirements, FindOptions{
			Strategy:        opts.Find.Strategy,
			ExcludeAgents:   exclude,
			PreferredAgents: opts.Find.PreferredAgents,
		})
		if err != nil {
			return nil, err
		}
		if !sel.Success {
			return nil, fmt.Errorf("%w: %s", ErrNoEligibleAgent, sel.Message)
		}

		agent, err := m.Agent(sel.BestMatch.AgentID)
		if err != nil {
			// Removed between scoring and assignment; try the next one.
			exclude = append(exclude, sel.BestMatch.AgentID)
			continue
		}
		assignment, err := m.assignTo(agent, task, allowQueue)
		if err == nil {
			return assignment, nil
		}
		// Lost a race for this agent: exclude it and re-select.
		exclude = append(exclude, agent.ID())
	}
}

// assignTo performs the assignment on one agent and records the task in the
// manager maps.
func (m *Manager) assignTo(agent *Agent, task *Task, allowQueue bool) (*Assignment, error) {
	queued, err := agent.Assign(task, allowQueue)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if queued {
		// The agent may already have promoted the task to its current
		// slot; in that case CompleteTask's bookkeeping won.
		if _, started := m.inFlight[task.ID]; !started {
			m.pendingIndex[task.ID] = agent.ID()
		}
	} else {
		m.inFlight[task.ID] = agent.ID()
	}
	m.mu.Unlock()

	if m.collector != nil {
		mode := "direct"
		if queued {
			mode = "queued"
		}
		m.collector.RecordAssignment(agent.TypeName(), mode)
	}

	m.logger.Info("task assigned",
		zap.String("task_id", task.ID),
		zap.String("agent_id", agent.ID()),
		zap.Bool("queued", queued))

	return &Assignment{
		TaskID:     task.ID,
		AgentID:    agent.ID(),
		AssignedAt: time.Now(),
		Queued:     queued,
	}, nil
}

// CompleteTask resolves a started task with the given outcome, updating the
// owning agent's performance metrics and freeing it for new work.
func (m *Manager) CompleteTask(ctx context.Context, taskID string, outcome Outcome) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	agentID, ok := m.inFlight[taskID]
	if !ok {
		if _, isQueued := m.pendingIndex[taskID]; isQueued {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: task %s is queued and has not started", ErrTaskNotFound, taskID)
		}
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	delete(m.inFlight, taskID)
	agent := m.agents[agentID]
	m.mu.Unlock()

	if agent == nil {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}

	sample := 0.0
	if outcome.Success {
		sample = 1.0
	}
	if outcome.Rating > 0 {
		sample = m.cfg.Scheduler().Rating.Map(outcome.Rating)
	}

	effect, err := agent.Complete(outcome, sample)
	if err != nil {
		return nil, err
	}

	// Record promotion of a queued task, and drop any abandoned queue
	// entries if the agent stopped.
	if effect.Started != nil || len(effect.Dropped) > 0 {
		m.mu.Lock()
		if effect.Started != nil {
			delete(m.pendingIndex, effect.Started.ID)
			if !m.closed {
				m.inFlight[effect.Started.ID] = agentID
			}
		}
		for _, t := range effect.Dropped {
			delete(m.pendingIndex, t.ID)
		}
		m.mu.Unlock()
	}

	if m.collector != nil {
		status := "success"
		if !outcome.Success {
			status = "failure"
		}
		m.collector.RecordCompletion(agent.TypeName(), status, effect.ExecutionTime)
	}

	return &Completion{
		TaskID:        taskID,
		AgentID:       agentID,
		ExecutionTime: effect.ExecutionTime,
		Performance:   effect.Metrics,
	}, nil
}

// LoadStatistics aggregates pool status in one O(n) pass.
func (m *Manager) LoadStatistics() LoadStatistics {
	m.mu.RLock()
	agents := make([]*Agent, 0, len(m.agents))
	for _, a := range m.agents {
		agents = append(agents, a)
	}
	inFlight := len(m.inFlight)
	m.mu.RUnlock()

	stats := LoadStatistics{TotalAgents: len(agents), InFlightTasks: inFlight}
	for _, a := range agents {
		snap := a.snapshot()
		stats.QueueDepth += snap.QueueLen
		switch snap.Status {
		case StatusIdle:
			stats.IdleAgents++
		case StatusActive:
			stats.ActiveAgents++
		case StatusBusy:
			stats.BusyAgents++
		case StatusError:
			stats.ErrorAgents++
		case StatusStopping, StatusStopped:
			stats.StoppedAgents++
		}
	}
	if live := stats.TotalAgents - stats.StoppedAgents; live > 0 {
		stats.Utilization = float64(stats.BusyAgents) / float64(live)
	}

	if m.collector != nil {
		m.collector.SetPoolGauges(map[string]int{
			"idle":    stats.IdleAgents,
			"active":  stats.ActiveAgents,
			"busy":    stats.BusyAgents,
			"error":   stats.ErrorAgents,
			"stopped": stats.StoppedAgents,
		})
		m.collector.SetQueueDepth(stats.QueueDepth)
	}
	return stats
}

// RebalanceLoad moves up to maxMoves pending (not yet started) tasks from
// agents whose queue depth exceeds the configured threshold onto idle
// agents of the same type. Agents mid-execution are never preempted.
func (m *Manager) RebalanceLoad(maxMoves int) (*RebalanceResult, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrManagerClosed
	}
	agents := make([]*Agent, 0, len(m.agents))
	for _, a := range m.agents {
		agents = append(agents, a)
	}
	m.mu.RUnlock()

	threshold := m.cfg.Scheduler().RebalanceThreshold

	type loaded struct {
		agent *Agent
		snap  matchSnapshot
	}
	var overloaded []loaded
	idleByType := make(map[string][]*Agent)
	for _, a := range agents {
		snap := a.snapshot()
		switch {
		case snap.QueueLen > threshold:
			overloaded = append(overloaded, loaded{agent: a, snap: snap})
		case snap.Status.Assignable():
			idleByType[snap.TypeName] = append(idleByType[snap.TypeName], a)
		}
	}
	// Heaviest queues first; targets with the least cumulative busy time first.
	sort.Slice(overloaded, func(i, j int) bool {
		if overloaded[i].snap.QueueLen != overloaded[j].snap.QueueLen {
			return overloaded[i].snap.QueueLen > overloaded[j].snap.QueueLen
		}
		return overloaded[i].snap.ID < overloaded[j].snap.ID
	})
	for _, targets := range idleByType {
		sort.Slice(targets, func(i, j int) bool { return targets[i].id < targets[j].id })
	}

	result := &RebalanceResult{Success: true, Moves: []RebalanceMove{}}
	for _, src := range overloaded {
		if maxMoves >= 0 && len(result.Moves) >= maxMoves {
			break
		}
		targets := idleByType[src.snap.TypeName]
		if len(targets) == 0 {
			continue
		}

		excess := src.snap.QueueLen - threshold
		if maxMoves >= 0 && excess > maxMoves-len(result.Moves) {
			excess = maxMoves - len(result.Moves)
		}
		if excess > len(targets) {
			excess = len(targets)
		}
		tasks := src.agent.TakePending(excess)

		for _, task := range tasks {
			placed := false
			for len(targets) > 0 {
				target := targets[0]
				targets = targets[1:]
				if _, err := target.Assign(task, false); err != nil {
					continue // target raced into busy; try the next one
				}
				m.mu.Lock()
				delete(m.pendingIndex, task.ID)
				m.inFlight[task.ID] = target.ID()
				m.mu.Unlock()
				result.Moves = append(result.Moves, RebalanceMove{
					TaskID:    task.ID,
					FromAgent: src.agent.ID(),
					ToAgent:   target.ID(),
				})
				placed = true
				break
			}
			if !placed {
				// No idle peer left: put the task back on the source queue.
				if _, err := src.agent.Assign(task, true); err != nil {
					m.mu.Lock()
					delete(m.pendingIndex, task.ID)
					m.mu.Unlock()
					m.logger.Warn("rebalance dropped task: source no longer queueable",
						zap.String("task_id", task.ID),
						zap.String("agent_id", src.agent.ID()),
						zap.Error(err))
				}
			}
		}
		idleByType[src.snap.TypeName] = targets
	}

	if m.collector != nil {
		m.collector.RecordRebalance(len(result.Moves))
	}
	m.logger.Info("rebalance pass finished", zap.Int("moves", len(result.Moves)))
	return result, nil
}

// Shutdown stops every agent and clears the pool and task maps. It is
// idempotent.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	agents := make([]*Agent, 0, len(m.agents))
	for _, a := range m.agents {
		agents = append(agents, a)
	}
	m.agents = make(map[string]*Agent)
	m.inFlight = make(map[string]string)
	m.pendingIndex = make(map[string]string)
	m.mu.Unlock()

	// A busy agent stays busy through Stop until its task resolves, and no
	// CompleteTask can arrive once the manager is closed. Abandon in-flight
	// work as failed so every agent settles into the stopped state.
	abandoned := 0
	for _, a := range agents {
		a.Stop()
		if a.CurrentTask() != nil {
			if _, err := a.Complete(Outcome{Success: false}, 0); err == nil {
				abandoned++
			}
		}
	}
	m.logger.Info("manager shut down",
		zap.Int("agents_stopped", len(agents)),
		zap.Int("tasks_abandoned", abandoned))
}

// poolSnapshots captures scoring snapshots for all agents not excluded.
func (m *Manager) poolSnapshots(exclude []string) []matchSnapshot {
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	m.mu.RLock()
	agents := make([]*Agent, 0, len(m.agents))
	for id, a := range m.agents {
		if !excluded[id] {
			agents = append(agents, a)
		}
	}
	m.mu.RUnlock()

	snaps := make([]matchSnapshot, 0, len(agents))
	for _, a := range agents {
		snaps = append(snaps, a.snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })
	return snaps
}

// missingCapabilities lists the required capabilities no live agent
// provides, as selection-failure suggestions.
func (m *Manager) missingCapabilities(required []string, snaps []matchSnapshot) []string {
	var missing []string
	for _, c := range required {
		found := false
		for _, snap := range snaps {
			if snap.Status.IsTerminal() {
				continue
			}
			if _, ok := snap.Capabilities[c]; ok {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, c)
		}
	}
	return missing
}
