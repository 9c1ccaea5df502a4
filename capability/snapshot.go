package capability

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// snapshotVersion tags the pool snapshot format.
const snapshotVersion = 1

// AgentSnapshot is the portable record of one agent: identity, type,
// instance overrides, lifetime performance counters, and a normalized
// status. Transient runtime state (in-flight task, queue contents, the
// rolling history window) is deliberately not part of a snapshot.
type AgentSnapshot struct {
	ID                string              `yaml:"id" json:"id"`
	TypeName          string              `yaml:"type_name" json:"type_name"`
	Status            string              `yaml:"status" json:"status"`
	ExtraCapabilities []string            `yaml:"extra_capabilities,omitempty" json:"extra_capabilities,omitempty"`
	MemorySize        int64               `yaml:"memory_size,omitempty" json:"memory_size,omitempty"`
	MaxContexts       int                 `yaml:"max_contexts,omitempty" json:"max_contexts,omitempty"`
	MaxQueueDepth     int                 `yaml:"max_queue_depth,omitempty" json:"max_queue_depth,omitempty"`
	Metrics           *PerformanceMetrics `yaml:"metrics,omitempty" json:"metrics,omitempty"`
}

// SchedulingOptions are the manager-level options carried in a snapshot so
// a restored pool schedules the way the exported one did.
type SchedulingOptions struct {
	DefaultStrategy     string  `yaml:"default_strategy" json:"default_strategy"`
	QueueWhenBusy       bool    `yaml:"queue_when_busy" json:"queue_when_busy"`
	ForceRemoveBusy     bool    `yaml:"force_remove_busy" json:"force_remove_busy"`
	MaxQueueDepth       int     `yaml:"max_queue_depth" json:"max_queue_depth"`
	RebalanceThreshold  int     `yaml:"rebalance_threshold" json:"rebalance_threshold"`
	PreferredAgentBonus float64 `yaml:"preferred_agent_bonus" json:"preferred_agent_bonus"`
}

// PoolSnapshot is a serializable snapshot of the agent pool: scheduling
// options plus every agent's configuration and lifetime counters.
type PoolSnapshot struct {
	Version    int                `yaml:"version" json:"version"`
	ExportedAt time.Time          `yaml:"exported_at" json:"exported_at"`
	Options    *SchedulingOptions `yaml:"options,omitempty" json:"options,omitempty"`
	Agents     []AgentSnapshot    `yaml:"agents" json:"agents"`
}

// ImportReport accumulates the outcome of an import: entries are applied
// independently, so one bad entry never aborts the rest.
type ImportReport struct {
	AgentsCreated int      `json:"agents_created"`
	Skipped       int      `json:"skipped"`
	Errors        []string `json:"errors,omitempty"`
}

// ExportConfiguration captures the pool as a snapshot. Transient statuses
// are normalized: busy and active agents export as idle, stopping as
// stopped.
func (m *Manager) ExportConfiguration() *PoolSnapshot {
	agents := m.Agents()
	sched := m.cfg.Scheduler()
	snap := &PoolSnapshot{
		Version:    snapshotVersion,
		ExportedAt: time.Now(),
		Options: &SchedulingOptions{
			DefaultStrategy:     sched.DefaultStrategy,
			QueueWhenBusy:       sched.QueueWhenBusy,
			ForceRemoveBusy:     sched.ForceRemoveBusy,
			MaxQueueDepth:       sched.MaxQueueDepth,
			RebalanceThreshold:  sched.RebalanceThreshold,
			PreferredAgentBonus: sched.PreferredAgentBonus,
		},
		Agents: make([]AgentSnapshot, 0, len(agents)),
	}

	for _, agent := range agents {
		memory := agent.Memory()
		entry := AgentSnapshot{
			ID:                agent.ID(),
			TypeName:          agent.TypeName(),
			Status:            exportStatus(agent.Status()).String(),
			ExtraCapabilities: agent.extraCapabilities(),
			MemorySize:        memory.MemorySize,
			MaxContexts:       agent.MaxContexts(),
			MaxQueueDepth:     agent.MaxQueueDepth(),
		}
		if metrics := agent.Metrics(); metrics.TotalCompleted+metrics.TotalFailed > 0 {
			entry.Metrics = &metrics
		}
		snap.Agents = append(snap.Agents, entry)
	}
	return snap
}

// ImportConfiguration restores a snapshot: scheduling options are applied
// to the live configuration first (the whole import fails if they do not
// validate), then agents are recreated one by one. Entry-level failures —
// unknown types, duplicate IDs, stopped entries — do not stop the import,
// they are recorded in the report. The pool is not cleared first.
func (m *Manager) ImportConfiguration(snap *PoolSnapshot) (*ImportReport, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: snapshot is nil", ErrInvalidConfiguration)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported snapshot version %d", ErrInvalidConfiguration, snap.Version)
	}

	if snap.Options != nil {
		next := m.cfg.Config().Clone()
		next.Scheduler.DefaultStrategy = snap.Options.DefaultStrategy
		next.Scheduler.QueueWhenBusy = snap.Options.QueueWhenBusy
		next.Scheduler.ForceRemoveBusy = snap.Options.ForceRemoveBusy
		next.Scheduler.MaxQueueDepth = snap.Options.MaxQueueDepth
		next.Scheduler.RebalanceThreshold = snap.Options.RebalanceThreshold
		next.Scheduler.PreferredAgentBonus = snap.Options.PreferredAgentBonus
		if err := m.cfg.Swap(next); err != nil {
			return nil, fmt.Errorf("%w: snapshot options: %v", ErrInvalidConfiguration, err)
		}
	}

	report := &ImportReport{}
	for _, entry := range snap.Agents {
		if entry.Status == StatusStopped.String() || entry.Status == StatusStopping.String() {
			report.Skipped++
			continue
		}
		agent, err := m.CreateAgent(entry.TypeName, &AgentConfig{
			ID:                entry.ID,
			ExtraCapabilities: entry.ExtraCapabilities,
			MemorySize:        entry.MemorySize,
			MaxContexts:       entry.MaxContexts,
			MaxQueueDepth:     entry.MaxQueueDepth,
		})
		if err != nil {
			report.Errors = append(report.Errors,
				fmt.Sprintf("agent %q: %v", entry.ID, err))
			continue
		}
		if entry.Metrics != nil {
			agent.restoreMetrics(*entry.Metrics)
		}
		report.AgentsCreated++
	}

	m.logger.Info("configuration imported",
		zap.Int("agents_created", report.AgentsCreated),
		zap.Int("skipped", report.Skipped),
		zap.Int("errors", len(report.Errors)))
	return report, nil
}

// EncodeSnapshot serializes a snapshot to YAML.
func EncodeSnapshot(snap *PoolSnapshot) ([]byte, error) {
	if snap == nil {
		return nil, fmt.Errorf("%w: snapshot is nil", ErrInvalidConfiguration)
	}
	return yaml.Marshal(snap)
}

// DecodeSnapshot parses a YAML snapshot.
func DecodeSnapshot(data []byte) (*PoolSnapshot, error) {
	var snap PoolSnapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return &snap, nil
}

// exportStatus normalizes a live status for export.
func exportStatus(s Status) Status {
	switch s {
	case StatusBusy, StatusActive:
		return StatusIdle
	case StatusStopping:
		return StatusStopped
	default:
		return s
	}
}

// restoreMetrics seeds the lifetime counters from a snapshot and re-bases
// the success-rate sample stream on them, so post-import completions move
// the mean from the restored value instead of restarting at 1.0.
func (a *Agent) restoreMetrics(m PerformanceMetrics) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metrics = m
	a.sampleCount = m.TotalCompleted + m.TotalFailed
	a.sampleMean = m.SuccessRate
}

// extraCapabilities lists the agent's instance-level capability tags beyond
// the type's declared set, sorted.
func (a *Agent) extraCapabilities() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	extra := make(map[string]struct{})
	for c := range a.capabilities {
		if _, declared := a.def.Capabilities[c]; !declared {
			extra[c] = struct{}{}
		}
	}
	if len(extra) == 0 {
		return nil
	}
	return capabilitySetToList(extra)
}
