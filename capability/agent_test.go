package capability

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAgent(t *testing.T, maxQueueDepth int) *Agent {
	t.Helper()
	r, err := NewTypeRegistry(testCatalog(), zap.NewNop())
	require.NoError(t, err)
	def, err := r.Definition("backend-developer")
	require.NoError(t, err)
	return newAgent("backend-developer-1", def, nil, maxQueueDepth, zap.NewNop())
}

func task(id string) *Task {
	return &Task{ID: id, Requirements: Requirements{RequiredCapabilities: []string{"api-design"}}}
}

func TestAgent_InitialState(t *testing.T) {
	a := newTestAgent(t, 4)

	assert.Equal(t, StatusIdle, a.Status())
	assert.Nil(t, a.CurrentTask())
	assert.Equal(t, 1.0, a.Metrics().SuccessRate)
	assert.Zero(t, a.Metrics().TotalCompleted)
	assert.NoError(t, a.checkInvariant())
}

func TestAgent_AssignStartsImmediately(t *testing.T) {
	a := newTestAgent(t, 4)

	queued, err := a.Assign(task("t1"), false)
	require.NoError(t, err)
	assert.False(t, queued)
	assert.Equal(t, StatusBusy, a.Status())
	require.NotNil(t, a.CurrentTask())
	assert.Equal(t, "t1", a.CurrentTask().Task.ID)
	assert.Equal(t, 1, a.Memory().ContextsActive)
	assert.NoError(t, a.checkInvariant())
}

func TestAgent_AssignWhileBusy(t *testing.T) {
	a := newTestAgent(t, 2)
	_, err := a.Assign(task("t1"), false)
	require.NoError(t, err)

	// queueing disabled: busy agent rejects
	_, err = a.Assign(task("t2"), false)
	assert.ErrorIs(t, err, ErrAgentBusy)

	// queueing enabled: goes to the pending queue
	queued, err := a.Assign(task("t2"), true)
	require.NoError(t, err)
	assert.True(t, queued)
	assert.Equal(t, 1, a.QueueDepth())

	// still busy with the original task
	assert.Equal(t, "t1", a.CurrentTask().Task.ID)
	assert.NoError(t, a.checkInvariant())

	// queue bound enforced
	_, err = a.Assign(task("t3"), true)
	require.NoError(t, err)
	_, err = a.Assign(task("t4"), true)
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestAgent_AssignValidation(t *testing.T) {
	a := newTestAgent(t, 4)
	_, err := a.Assign(nil, false)
	assert.Error(t, err)
	_, err = a.Assign(&Task{}, false)
	assert.Error(t, err)
}

func TestAgent_CompleteSuccess(t *testing.T) {
	a := newTestAgent(t, 4)
	_, err := a.Assign(task("t1"), false)
	require.NoError(t, err)

	effect, err := a.Complete(Outcome{Success: true}, 1.0)
	require.NoError(t, err)

	assert.Equal(t, "t1", effect.TaskID)
	assert.Equal(t, StatusActive, a.Status())
	assert.Nil(t, a.CurrentTask())
	assert.Equal(t, int64(1), a.Metrics().TotalCompleted)
	assert.Equal(t, 1.0, a.Metrics().SuccessRate)
	assert.Equal(t, 0, a.Memory().ContextsActive)
	assert.NoError(t, a.checkInvariant())
}

func TestAgent_CompleteFailureDecreasesSuccessRate(t *testing.T) {
	a := newTestAgent(t, 4)

	_, err := a.Assign(task("t1"), false)
	require.NoError(t, err)
	_, err = a.Complete(Outcome{Success: true}, 1.0)
	require.NoError(t, err)
	before := a.Metrics().SuccessRate

	_, err = a.Assign(task("t2"), false)
	require.NoError(t, err)
	_, err = a.Complete(Outcome{Success: false}, 0.0)
	require.NoError(t, err)
	after := a.Metrics().SuccessRate

	assert.Less(t, after, before)
	assert.InDelta(t, 0.5, after, 1e-9) // mean of {1.0, 0.0}
	assert.Equal(t, int64(1), a.Metrics().TotalFailed)
	assert.Equal(t, StatusError, a.Status())
	assert.NoError(t, a.checkInvariant())
}

func TestAgent_CompleteRatedOutcome(t *testing.T) {
	a := newTestAgent(t, 4)

	// a rated outcome contributes its mapped sample, not a bare 0/1
	_, err := a.Assign(task("t1"), false)
	require.NoError(t, err)
	_, err = a.Complete(Outcome{Success: true, Rating: 4}, 0.75)
	require.NoError(t, err)

	assert.InDelta(t, 0.75, a.Metrics().SuccessRate, 1e-9)
}

func TestAgent_CompletePromotesPending(t *testing.T) {
	a := newTestAgent(t, 4)
	_, err := a.Assign(task("t1"), false)
	require.NoError(t, err)
	_, err = a.Assign(task("t2"), true)
	require.NoError(t, err)

	effect, err := a.Complete(Outcome{Success: true}, 1.0)
	require.NoError(t, err)

	// the queued task starts immediately, agent stays busy
	require.NotNil(t, effect.Started)
	assert.Equal(t, "t2", effect.Started.ID)
	assert.Equal(t, StatusBusy, a.Status())
	assert.Equal(t, "t2", a.CurrentTask().Task.ID)
	assert.Equal(t, 0, a.QueueDepth())
	assert.NoError(t, a.checkInvariant())
}

func TestAgent_FailureKeepsQueue(t *testing.T) {
	a := newTestAgent(t, 4)
	_, err := a.Assign(task("t1"), false)
	require.NoError(t, err)
	_, err = a.Assign(task("t2"), true)
	require.NoError(t, err)

	effect, err := a.Complete(Outcome{Success: false}, 0.0)
	require.NoError(t, err)

	// no promotion into an error-state agent
	assert.Nil(t, effect.Started)
	assert.Equal(t, StatusError, a.Status())
	assert.Equal(t, 1, a.QueueDepth())
	assert.NoError(t, a.checkInvariant())
}

func TestAgent_CompleteWithoutTask(t *testing.T) {
	a := newTestAgent(t, 4)
	_, err := a.Complete(Outcome{Success: true}, 1.0)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestAgent_StopIdle(t *testing.T) {
	a := newTestAgent(t, 4)
	dropped := a.Stop()
	assert.Empty(t, dropped)
	assert.Equal(t, StatusStopped, a.Status())

	// stopped agent rejects work
	_, err := a.Assign(task("t1"), false)
	assert.ErrorIs(t, err, ErrAgentUnavailable)

	// idempotent
	assert.Empty(t, a.Stop())
}

func TestAgent_StopWhileBusy(t *testing.T) {
	a := newTestAgent(t, 4)
	_, err := a.Assign(task("t1"), false)
	require.NoError(t, err)
	_, err = a.Assign(task("t2"), true)
	require.NoError(t, err)

	dropped := a.Stop()
	assert.Empty(t, dropped)

	// status stays busy until the in-flight task resolves
	assert.Equal(t, StatusBusy, a.Status())
	assert.NoError(t, a.checkInvariant())

	// no new work after a stop request
	_, err = a.Assign(task("t3"), true)
	assert.ErrorIs(t, err, ErrAgentUnavailable)

	effect, err := a.Complete(Outcome{Success: true}, 1.0)
	require.NoError(t, err)
	assert.Equal(t, StatusStopped, a.Status())
	require.Len(t, effect.Dropped, 1)
	assert.Equal(t, "t2", effect.Dropped[0].ID)
	assert.NoError(t, a.checkInvariant())
}

func TestAgent_ResetError(t *testing.T) {
	a := newTestAgent(t, 4)
	_, err := a.Assign(task("t1"), false)
	require.NoError(t, err)
	_, err = a.Complete(Outcome{Success: false}, 0.0)
	require.NoError(t, err)
	require.Equal(t, StatusError, a.Status())

	// error state needs an explicit reset before new work
	_, err = a.Assign(task("t2"), false)
	assert.ErrorIs(t, err, ErrAgentUnavailable)

	require.NoError(t, a.ResetError())
	assert.Equal(t, StatusIdle, a.Status())

	_, err = a.Assign(task("t2"), false)
	assert.NoError(t, err)

	assert.Error(t, a.ResetError()) // only valid from error
}

func TestAgent_TakePending(t *testing.T) {
	a := newTestAgent(t, 8)
	_, err := a.Assign(task("t0"), false)
	require.NoError(t, err)
	for i := 1; i <= 4; i++ {
		_, err = a.Assign(task(fmt.Sprintf("t%d", i)), true)
		require.NoError(t, err)
	}

	taken := a.TakePending(2)
	require.Len(t, taken, 2)
	// taken from the tail: the oldest queued tasks keep their position
	assert.Equal(t, "t3", taken[0].ID)
	assert.Equal(t, "t4", taken[1].ID)
	assert.Equal(t, 2, a.QueueDepth())

	assert.Nil(t, a.TakePending(0))
	assert.Len(t, a.TakePending(10), 2)
	assert.Nil(t, a.TakePending(1))
}

func TestAgent_ExtendCapabilities(t *testing.T) {
	a := newTestAgent(t, 4)
	base := a.CapabilityList()

	a.ExtendCapabilities("protocol-design", "")
	extended := a.CapabilityList()

	assert.Len(t, extended, len(base)+1)
	assert.Contains(t, extended, "protocol-design")

	// instance extension does not leak into the type definition
	assert.False(t, a.def.HasCapability("protocol-design"))
}

func TestAgent_OptimizerMutators(t *testing.T) {
	a := newTestAgent(t, 4)

	require.NoError(t, a.SetMaxQueueDepth(1))
	assert.Equal(t, 1, a.MaxQueueDepth())
	assert.Error(t, a.SetMaxQueueDepth(-1))

	require.NoError(t, a.SetMemorySize(2<<20))
	assert.Equal(t, int64(2<<20), a.Memory().MemorySize)
	assert.Error(t, a.SetMemorySize(0))

	// pruning never releases the context backing the in-flight task
	_, err := a.Assign(task("t1"), false)
	require.NoError(t, err)
	assert.Equal(t, 0, a.PruneContexts(0))
	assert.Equal(t, 1, a.Memory().ContextsActive)
}

func TestAgent_TransitionHook(t *testing.T) {
	a := newTestAgent(t, 4)
	var transitions []string
	a.transitionHook = func(agentType string, from, to Status) {
		transitions = append(transitions, fmt.Sprintf("%s->%s", from, to))
	}

	_, err := a.Assign(task("t1"), false)
	require.NoError(t, err)
	_, err = a.Complete(Outcome{Success: true}, 1.0)
	require.NoError(t, err)

	assert.Equal(t, []string{"idle->busy", "busy->active"}, transitions)
}
