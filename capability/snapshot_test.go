package capability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentpool/config"
)

func TestExportConfiguration_NormalizesStatus(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateAgent("backend-developer", &AgentConfig{ID: "be-busy"})
	require.NoError(t, err)
	_, err = m.CreateAgent("backend-developer", &AgentConfig{ID: "be-idle"})
	require.NoError(t, err)

	_, err = m.AssignTask(ctx, backendTask("t1"), AssignOptions{AgentID: "be-busy"})
	require.NoError(t, err)

	snap := m.ExportConfiguration()
	assert.Equal(t, 1, snap.Version)
	assert.WithinDuration(t, time.Now(), snap.ExportedAt, time.Minute)
	require.Len(t, snap.Agents, 2)

	// a busy agent exports as idle: in-flight work is runtime state, not
	// configuration
	byID := make(map[string]AgentSnapshot, len(snap.Agents))
	for _, entry := range snap.Agents {
		byID[entry.ID] = entry
	}
	assert.Equal(t, StatusIdle.String(), byID["be-busy"].Status)
	assert.Equal(t, StatusIdle.String(), byID["be-idle"].Status)
}

func TestExportImport_RoundTrip(t *testing.T) {
	source := newTestManager(t, func(cfg *config.Config) {
		cfg.Scheduler.QueueWhenBusy = true
		cfg.Scheduler.ForceRemoveBusy = true
		cfg.Scheduler.DefaultStrategy = config.StrategyPerformance
	})

	_, err := source.CreateAgent("backend-developer", &AgentConfig{
		ID:                "be-1",
		ExtraCapabilities: []string{"graphql-federation"},
		MemorySize:        256 << 20,
		MaxContexts:       6,
		MaxQueueDepth:     2,
	})
	require.NoError(t, err)
	_, err = source.CreateAgent("qa-engineer", &AgentConfig{ID: "qa-1"})
	require.NoError(t, err)

	// give be-1 a track record worth carrying over
	runTask(t, source, "be-1", "t1", Outcome{Success: true})
	runTask(t, source, "be-1", "t2", Outcome{Success: true, Rating: 3})

	encoded, err := EncodeSnapshot(source.ExportConfiguration())
	require.NoError(t, err)
	decoded, err := DecodeSnapshot(encoded)
	require.NoError(t, err)

	target := newTestManager(t)
	report, err := target.ImportConfiguration(decoded)
	require.NoError(t, err)
	assert.Equal(t, 2, report.AgentsCreated)
	assert.Zero(t, report.Skipped)
	assert.Empty(t, report.Errors)

	// scheduling options travel with the pool
	sched := target.cfg.Scheduler()
	assert.True(t, sched.QueueWhenBusy)
	assert.True(t, sched.ForceRemoveBusy)
	assert.Equal(t, config.StrategyPerformance, sched.DefaultStrategy)

	restored, err := target.Agent("be-1")
	require.NoError(t, err)
	assert.Equal(t, "backend-developer", restored.TypeName())
	assert.Equal(t, StatusIdle, restored.Status())
	assert.Contains(t, restored.CapabilityList(), "graphql-federation")
	assert.Equal(t, int64(256<<20), restored.Memory().MemorySize)
	assert.Equal(t, 6, restored.MaxContexts())
	assert.Equal(t, 2, restored.MaxQueueDepth())

	// lifetime counters survive; the rolling history window does not
	metrics := restored.Metrics()
	assert.Equal(t, int64(2), metrics.TotalCompleted)
	assert.InDelta(t, 0.75, metrics.SuccessRate, 1e-9)
	report2, err := target.PerformanceReport("be-1")
	require.NoError(t, err)
	assert.Zero(t, report2.Window.Samples)
}

func TestImportConfiguration_RejectsInvalidOptions(t *testing.T) {
	m := newTestManager(t)

	_, err := m.ImportConfiguration(&PoolSnapshot{
		Version: 1,
		Options: &SchedulingOptions{DefaultStrategy: "warp-speed", MaxQueueDepth: 4},
	})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	// the live configuration is untouched by a rejected import
	assert.NotEqual(t, "warp-speed", m.cfg.Scheduler().DefaultStrategy)
}

func TestImportConfiguration_PartialFailure(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CreateAgent("backend-developer", &AgentConfig{ID: "be-1"})
	require.NoError(t, err)

	snap := &PoolSnapshot{
		Version: 1,
		Agents: []AgentSnapshot{
			{ID: "be-1", TypeName: "backend-developer", Status: "idle"},   // duplicate ID
			{ID: "gh-1", TypeName: "ghost-writer", Status: "idle"},        // unknown type
			{ID: "be-2", TypeName: "backend-developer", Status: "idle"},   // fine
			{ID: "be-3", TypeName: "backend-developer", Status: "stopped"}, // skipped
		},
	}

	report, err := m.ImportConfiguration(snap)
	require.NoError(t, err, "entry-level failures must not abort the import")

	assert.Equal(t, 1, report.AgentsCreated)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Errors, 2)
	assert.Contains(t, report.Errors[0], "be-1")
	assert.Contains(t, report.Errors[1], "ghost-writer")

	// the good entry landed and the existing pool is untouched
	_, err = m.Agent("be-2")
	assert.NoError(t, err)
	_, err = m.Agent("be-1")
	assert.NoError(t, err)
}

func TestImportConfiguration_Validation(t *testing.T) {
	m := newTestManager(t)

	_, err := m.ImportConfiguration(nil)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = m.ImportConfiguration(&PoolSnapshot{Version: 99})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestDecodeSnapshot_Invalid(t *testing.T) {
	_, err := DecodeSnapshot([]byte("{not yaml"))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = EncodeSnapshot(nil)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}
