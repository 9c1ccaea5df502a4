// =============================================================================
// 📦 AgentPool 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// 内置策略名
const (
	StrategyBalanced    = "balanced"
	StrategyPerformance = "performance"
	StrategySpeed       = "speed"
	StrategyAccuracy    = "accuracy"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Scheduler: DefaultSchedulerConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultSchedulerConfig 返回默认调度器配置
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Catalog:         DefaultCatalog(),
		Strategies:      BuiltinStrategies(),
		DefaultStrategy: StrategyBalanced,
		Rating: RatingMapping{
			MinRating: 1,
			MaxRating: 5,
			MinRate:   0.0,
			MaxRate:   1.0,
		},
		ExpectedDurations: map[string]time.Duration{
			"engineering":   20 * time.Minute,
			"quality":       15 * time.Minute,
			"operations":    10 * time.Minute,
			"documentation": 8 * time.Minute,
		},
		DefaultExpectedDuration: 15 * time.Minute,
		PreferredAgentBonus:     0.05,
		QueueWhenBusy:           false,
		ForceRemoveBusy:         false,
		MaxQueueDepth:           4,
		RebalanceThreshold:      1,
		SuccessRateFloor:        0.6,
		SlowExecutionFactor:     1.5,
	}
}

// BuiltinStrategies 返回内置的四组评分权重表
func BuiltinStrategies() map[string]WeightProfile {
	return map[string]WeightProfile{
		// 均衡：各因子并重
		StrategyBalanced: {
			CapabilityMatch:     0.30,
			SpecializationMatch: 0.15,
			SuccessRate:         0.20,
			AverageTime:         0.10,
			Complexity:          0.10,
			Workload:            0.15,
		},
		// 性能优先：历史成功率与复杂度匹配为主
		StrategyPerformance: {
			CapabilityMatch:     0.25,
			SpecializationMatch: 0.10,
			SuccessRate:         0.35,
			AverageTime:         0.10,
			Complexity:          0.15,
			Workload:            0.05,
		},
		// 速度优先：平均耗时与当前负载为主
		StrategySpeed: {
			CapabilityMatch:     0.25,
			SpecializationMatch: 0.05,
			SuccessRate:         0.10,
			AverageTime:         0.30,
			Complexity:          0.05,
			Workload:            0.25,
		},
		// 准确优先：能力与专长覆盖为主
		StrategyAccuracy: {
			CapabilityMatch:     0.35,
			SpecializationMatch: 0.25,
			SuccessRate:         0.20,
			AverageTime:         0.05,
			Complexity:          0.10,
			Workload:            0.05,
		},
	}
}

// DefaultCatalog 返回内置能力目录
func DefaultCatalog() []CatalogEntry {
	return []CatalogEntry{
		{
			TypeName: "backend-developer",
			Category: "engineering",
			Capabilities: []string{
				"api-design", "database-modeling", "service-implementation",
				"code-review", "debugging",
			},
			Resources: ResourceProfile{MemorySize: 256 << 20, MaxContexts: 8, PreferredComplexity: "high"},
		},
		{
			TypeName: "frontend-developer",
			Category: "engineering",
			Capabilities: []string{
				"ui-implementation", "component-design", "state-management",
				"code-review", "debugging",
			},
			Resources: ResourceProfile{MemorySize: 192 << 20, MaxContexts: 8, PreferredComplexity: "medium"},
		},
		{
			TypeName: "qa-engineer",
			Category: "quality",
			Capabilities: []string{
				"test-planning", "test-automation", "regression-testing", "bug-triage",
			},
			Resources: ResourceProfile{MemorySize: 128 << 20, MaxContexts: 6, PreferredComplexity: "medium"},
		},
		{
			TypeName: "devops-engineer",
			Category: "operations",
			Capabilities: []string{
				"ci-pipeline", "deployment", "monitoring", "incident-response",
			},
			Resources: ResourceProfile{MemorySize: 128 << 20, MaxContexts: 6, PreferredComplexity: "high"},
		},
		{
			TypeName: "technical-writer",
			Category: "documentation",
			Capabilities: []string{
				"api-documentation", "user-guides", "changelog-curation",
			},
			Resources: ResourceProfile{MemorySize: 64 << 20, MaxContexts: 4, PreferredComplexity: "low"},
		},
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "console",
		OutputPaths: []string{"stdout"},
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentpool",
		SampleRate:   1.0,
	}
}
