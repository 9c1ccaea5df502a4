package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.assignmentsTotal)
	assert.NotNil(t, collector.completionsTotal)
	assert.NotNil(t, collector.completionDuration)
	assert.NotNil(t, collector.selectionDuration)
	assert.NotNil(t, collector.poolAgents)
	assert.NotNil(t, collector.stateTransitions)
}

func TestCollector_RecordAssignment(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 记录分配
	collector.RecordAssignment("backend-developer", "direct")
	collector.RecordAssignment("backend-developer", "queued")

	// 验证指标
	count := testutil.CollectAndCount(collector.assignmentsTotal)
	assert.Greater(t, count, 0)
}

func TestCollector_RecordCompletion(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 记录完成
	collector.RecordCompletion("qa-engineer", "success", 500*time.Millisecond)
	collector.RecordCompletion("qa-engineer", "failure", 2*time.Second)

	// 验证指标
	count := testutil.CollectAndCount(collector.completionsTotal)
	assert.Greater(t, count, 0)

	durCount := testutil.CollectAndCount(collector.completionDuration)
	assert.Greater(t, durCount, 0)
}

func TestCollector_PoolGauges(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 更新池状态
	collector.SetPoolGauges(map[string]int{"idle": 3, "busy": 2})
	collector.SetQueueDepth(5)

	// 验证指标
	count := testutil.CollectAndCount(collector.poolAgents)
	assert.Greater(t, count, 0)

	assert.Equal(t, 5.0, testutil.ToFloat64(collector.queueDepth))
}

func TestCollector_RecordRebalance(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordRebalance(3)
	collector.RecordRebalance(0) // 无移动不应计数

	assert.Equal(t, 3.0, testutil.ToFloat64(collector.rebalanceMoves))
}

func TestCollector_RecordStateTransition(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 记录状态转换
	collector.RecordStateTransition("devops-engineer", "idle", "busy")
	collector.RecordStateTransition("devops-engineer", "busy", "active")

	// 验证指标
	count := testutil.CollectAndCount(collector.stateTransitions)
	assert.Greater(t, count, 0)
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 并发记录多个指标
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			collector.RecordAssignment("backend-developer", "direct")
			collector.RecordCompletion("backend-developer", "success", 100*time.Millisecond)
			collector.ObserveSelection(50 * time.Microsecond)
			done <- true
		}()
	}

	// 等待所有 goroutine 完成
	for i := 0; i < 10; i++ {
		<-done
	}

	// 验证指标被正确记录
	assignCount := testutil.CollectAndCount(collector.assignmentsTotal)
	assert.Greater(t, assignCount, 0)

	completeCount := testutil.CollectAndCount(collector.completionsTotal)
	assert.Greater(t, completeCount, 0)
}
