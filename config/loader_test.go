package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// 🧪 加载器测试
// =============================================================================

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentpool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, StrategyBalanced, cfg.Scheduler.DefaultStrategy)
	assert.Equal(t, 4, cfg.Scheduler.MaxQueueDepth)
}

func TestLoader_FromFile(t *testing.T) {
	path := writeTempConfig(t, `
scheduler:
  default_strategy: speed
  max_queue_depth: 8
  queue_when_busy: true
log:
  level: debug
`)

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	// 文件覆盖默认值，未提及的字段保持默认
	assert.Equal(t, StrategySpeed, cfg.Scheduler.DefaultStrategy)
	assert.Equal(t, 8, cfg.Scheduler.MaxQueueDepth)
	assert.True(t, cfg.Scheduler.QueueWhenBusy)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 0.05, cfg.Scheduler.PreferredAgentBonus)
}

func TestLoader_FileMissing(t *testing.T) {
	// 文件不存在时静默回退默认值
	cfg, err := NewLoader().WithConfigPath("/nonexistent/agentpool.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, StrategyBalanced, cfg.Scheduler.DefaultStrategy)
}

func TestLoader_FileInvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "scheduler: [not a map")
	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("AGENTPOOL_SCHEDULER_DEFAULT_STRATEGY", "accuracy")
	t.Setenv("AGENTPOOL_SCHEDULER_MAX_QUEUE_DEPTH", "16")
	t.Setenv("AGENTPOOL_SCHEDULER_PREFERRED_AGENT_BONUS", "0.08")
	t.Setenv("AGENTPOOL_SCHEDULER_DEFAULT_EXPECTED_DURATION", "30m")
	t.Setenv("AGENTPOOL_LOG_OUTPUT_PATHS", "stdout, /tmp/agentpool.log")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, StrategyAccuracy, cfg.Scheduler.DefaultStrategy)
	assert.Equal(t, 16, cfg.Scheduler.MaxQueueDepth)
	assert.Equal(t, 0.08, cfg.Scheduler.PreferredAgentBonus)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.DefaultExpectedDuration)
	assert.Equal(t, []string{"stdout", "/tmp/agentpool.log"}, cfg.Log.OutputPaths)
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	path := writeTempConfig(t, `
scheduler:
  default_strategy: speed
`)
	t.Setenv("AGENTPOOL_SCHEDULER_DEFAULT_STRATEGY", "performance")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	// 环境变量优先于文件
	assert.Equal(t, StrategyPerformance, cfg.Scheduler.DefaultStrategy)
}

func TestLoader_ValidationFailure(t *testing.T) {
	t.Setenv("AGENTPOOL_SCHEDULER_DEFAULT_STRATEGY", "no-such-strategy")
	_, err := NewLoader().Load()
	assert.ErrorContains(t, err, "default_strategy")
}

func TestLoader_CustomValidator(t *testing.T) {
	called := false
	_, err := NewLoader().WithValidator(func(cfg *Config) error {
		called = true
		return nil
	}).Load()
	require.NoError(t, err)
	assert.True(t, called)
}

func TestLoader_InvalidStrategyWeightsInFile(t *testing.T) {
	// 文件中的权重表在加载时校验
	path := writeTempConfig(t, `
scheduler:
  strategies:
    balanced:
      capability_match: 0.9
      success_rate: 0.5
`)
	_, err := NewLoader().WithConfigPath(path).Load()
	assert.ErrorContains(t, err, "sum to 1.0")
}

func TestMustLoad_PanicsOnError(t *testing.T) {
	t.Setenv("AGENTPOOL_SCHEDULER_SLOW_EXECUTION_FACTOR", "-1")
	assert.Panics(t, func() { MustLoad("") })
}
