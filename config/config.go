// =============================================================================
// 📦 AgentPool 配置结构
// =============================================================================
// 调度核心的全部配置：能力目录、评分策略权重、评分映射、调度器选项。
// 配置在加载时完成校验，运行时只读；策略权重支持热更新（见 provider.go）。
// =============================================================================
package config

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// 权重归一化允许的浮点误差
const weightSumEpsilon = 1e-6

// Config 是调度核心的完整配置结构
type Config struct {
	// Scheduler 调度器配置
	Scheduler SchedulerConfig `yaml:"scheduler" env:"SCHEDULER"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// SchedulerConfig 调度器配置
type SchedulerConfig struct {
	// Catalog 静态能力目录（每个 Agent 类型一条）
	Catalog []CatalogEntry `yaml:"catalog" env:"-"`

	// Strategies 策略名 → 评分权重表
	Strategies map[string]WeightProfile `yaml:"strategies" env:"-"`

	// 默认策略名
	DefaultStrategy string `yaml:"default_strategy" env:"DEFAULT_STRATEGY"`

	// Rating 评分 → 成功率的线性映射
	Rating RatingMapping `yaml:"rating" env:"RATING"`

	// ExpectedDurations 各任务类别的期望时长
	ExpectedDurations map[string]time.Duration `yaml:"expected_durations" env:"-"`

	// 类别缺省的期望时长
	DefaultExpectedDuration time.Duration `yaml:"default_expected_duration" env:"DEFAULT_EXPECTED_DURATION"`

	// PreferredAgentBonus 偏好 Agent 的附加得分（加性，上限 0.1）
	PreferredAgentBonus float64 `yaml:"preferred_agent_bonus" env:"PREFERRED_AGENT_BONUS"`

	// QueueWhenBusy 目标 Agent 忙碌时是否排队（false 则直接拒绝）
	QueueWhenBusy bool `yaml:"queue_when_busy" env:"QUEUE_WHEN_BUSY"`

	// ForceRemoveBusy 允许移除忙碌 Agent（在途任务记为失败后放弃）
	ForceRemoveBusy bool `yaml:"force_remove_busy" env:"FORCE_REMOVE_BUSY"`

	// MaxQueueDepth 每个 Agent 的最大等待队列长度
	MaxQueueDepth int `yaml:"max_queue_depth" env:"MAX_QUEUE_DEPTH"`

	// RebalanceThreshold 触发再均衡的队列深度阈值
	RebalanceThreshold int `yaml:"rebalance_threshold" env:"REBALANCE_THRESHOLD"`

	// SuccessRateFloor 成功率下限（低于则给出优化建议）
	SuccessRateFloor float64 `yaml:"success_rate_floor" env:"SUCCESS_RATE_FLOOR"`

	// SlowExecutionFactor 平均耗时超过期望的倍数阈值
	SlowExecutionFactor float64 `yaml:"slow_execution_factor" env:"SLOW_EXECUTION_FACTOR"`
}

// CatalogEntry 能力目录条目（不可变，进程启动时加载一次）
type CatalogEntry struct {
	// TypeName Agent 类型名，目录内唯一
	TypeName string `yaml:"type_name"`

	// Category 类别（engineering / quality / operations / ...）
	Category string `yaml:"category"`

	// Capabilities 该类型声明支持的能力标签
	Capabilities []string `yaml:"capabilities"`

	// Resources 默认资源画像
	Resources ResourceProfile `yaml:"resources"`
}

// ResourceProfile Agent 类型的默认资源画像
type ResourceProfile struct {
	// MemorySize 初始记忆大小（字节）
	MemorySize int64 `yaml:"memory_size"`

	// MaxContexts 最大活跃上下文数
	MaxContexts int `yaml:"max_contexts"`

	// PreferredComplexity 擅长的复杂度档位: low / medium / high
	PreferredComplexity string `yaml:"preferred_complexity"`
}

// WeightProfile 单个策略的六因子权重，权重之和必须为 1.0 ± epsilon
type WeightProfile struct {
	CapabilityMatch     float64 `yaml:"capability_match" json:"capability_match"`
	SpecializationMatch float64 `yaml:"specialization_match" json:"specialization_match"`
	SuccessRate         float64 `yaml:"success_rate" json:"success_rate"`
	AverageTime         float64 `yaml:"average_time" json:"average_time"`
	Complexity          float64 `yaml:"complexity" json:"complexity"`
	Workload            float64 `yaml:"workload" json:"workload"`
}

// Sum 返回权重之和
func (w WeightProfile) Sum() float64 {
	return w.CapabilityMatch + w.SpecializationMatch + w.SuccessRate +
		w.AverageTime + w.Complexity + w.Workload
}

// Validate 校验权重表：各权重非负且总和为 1.0 ± epsilon
func (w WeightProfile) Validate() error {
	for name, v := range map[string]float64{
		"capability_match":     w.CapabilityMatch,
		"specialization_match": w.SpecializationMatch,
		"success_rate":         w.SuccessRate,
		"average_time":         w.AverageTime,
		"complexity":           w.Complexity,
		"workload":             w.Workload,
	} {
		if v < 0 {
			return fmt.Errorf("weight %s must be non-negative, got %v", name, v)
		}
	}
	if diff := math.Abs(w.Sum() - 1.0); diff > weightSumEpsilon {
		return fmt.Errorf("weights must sum to 1.0 (±%g), got %v", weightSumEpsilon, w.Sum())
	}
	return nil
}

// RatingMapping 质量评分到成功率样本的线性插值参数
type RatingMapping struct {
	// MinRating 最低评分（映射到 MinRate）
	MinRating float64 `yaml:"min_rating" env:"MIN_RATING"`

	// MaxRating 最高评分（映射到 MaxRate）
	MaxRating float64 `yaml:"max_rating" env:"MAX_RATING"`

	// MinRate 最低评分对应的成功率样本
	MinRate float64 `yaml:"min_rate" env:"MIN_RATE"`

	// MaxRate 最高评分对应的成功率样本
	MaxRate float64 `yaml:"max_rate" env:"MAX_RATE"`
}

// Validate 校验映射参数单调且取值在 [0,1]
func (r RatingMapping) Validate() error {
	if r.MaxRating <= r.MinRating {
		return fmt.Errorf("max_rating (%v) must be greater than min_rating (%v)", r.MaxRating, r.MinRating)
	}
	if r.MinRate < 0 || r.MinRate > 1 || r.MaxRate < 0 || r.MaxRate > 1 {
		return fmt.Errorf("rates must be within [0,1], got min=%v max=%v", r.MinRate, r.MaxRate)
	}
	if r.MaxRate < r.MinRate {
		return fmt.Errorf("max_rate (%v) must not be less than min_rate (%v)", r.MaxRate, r.MinRate)
	}
	return nil
}

// Map 将评分线性映射为成功率样本，输入超界时截断
func (r RatingMapping) Map(rating float64) float64 {
	if rating <= r.MinRating {
		return r.MinRate
	}
	if rating >= r.MaxRating {
		return r.MaxRate
	}
	frac := (rating - r.MinRating) / (r.MaxRating - r.MinRating)
	return r.MinRate + frac*(r.MaxRate-r.MinRate)
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// 合法的复杂度档位
var validComplexities = map[string]bool{"": true, "low": true, "medium": true, "high": true}

// Validate 校验完整配置
func (c *Config) Validate() error {
	var errs []string

	s := &c.Scheduler

	// 目录：类型名唯一且非空
	seen := make(map[string]bool, len(s.Catalog))
	for i, entry := range s.Catalog {
		if entry.TypeName == "" {
			errs = append(errs, fmt.Sprintf("catalog[%d]: type_name is empty", i))
			continue
		}
		if seen[entry.TypeName] {
			errs = append(errs, fmt.Sprintf("catalog[%d]: duplicate type_name %q", i, entry.TypeName))
		}
		seen[entry.TypeName] = true
		if len(entry.Capabilities) == 0 {
			errs = append(errs, fmt.Sprintf("catalog[%d] (%s): capabilities is empty", i, entry.TypeName))
		}
		if !validComplexities[entry.Resources.PreferredComplexity] {
			errs = append(errs, fmt.Sprintf("catalog[%d] (%s): invalid preferred_complexity %q",
				i, entry.TypeName, entry.Resources.PreferredComplexity))
		}
	}

	// 策略权重表
	if len(s.Strategies) == 0 {
		errs = append(errs, "at least one strategy is required")
	}
	names := make([]string, 0, len(s.Strategies))
	for name := range s.Strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.Strategies[name].Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("strategy %q: %v", name, err))
		}
	}
	if s.DefaultStrategy == "" {
		errs = append(errs, "default_strategy is empty")
	} else if _, ok := s.Strategies[s.DefaultStrategy]; !ok {
		errs = append(errs, fmt.Sprintf("default_strategy %q not found in strategies", s.DefaultStrategy))
	}

	// 评分映射
	if err := s.Rating.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("rating: %v", err))
	}

	// 调度器参数
	if s.PreferredAgentBonus < 0 || s.PreferredAgentBonus > 0.1 {
		errs = append(errs, fmt.Sprintf("preferred_agent_bonus must be within [0, 0.1], got %v", s.PreferredAgentBonus))
	}
	if s.MaxQueueDepth < 0 {
		errs = append(errs, "max_queue_depth must be non-negative")
	}
	if s.RebalanceThreshold < 0 {
		errs = append(errs, "rebalance_threshold must be non-negative")
	}
	if s.SuccessRateFloor < 0 || s.SuccessRateFloor > 1 {
		errs = append(errs, "success_rate_floor must be within [0,1]")
	}
	if s.SlowExecutionFactor <= 0 {
		errs = append(errs, "slow_execution_factor must be positive")
	}
	if s.DefaultExpectedDuration <= 0 {
		errs = append(errs, "default_expected_duration must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ExpectedDuration 返回某任务类别的期望时长，未配置时返回缺省值
func (s *SchedulerConfig) ExpectedDuration(category string) time.Duration {
	if d, ok := s.ExpectedDurations[category]; ok && d > 0 {
		return d
	}
	return s.DefaultExpectedDuration
}

// Clone 返回配置的深拷贝（热更新时写时复制）
func (c *Config) Clone() *Config {
	cp := *c
	cp.Scheduler.Catalog = make([]CatalogEntry, len(c.Scheduler.Catalog))
	for i, e := range c.Scheduler.Catalog {
		ce := e
		ce.Capabilities = append([]string(nil), e.Capabilities...)
		cp.Scheduler.Catalog[i] = ce
	}
	cp.Scheduler.Strategies = make(map[string]WeightProfile, len(c.Scheduler.Strategies))
	for k, v := range c.Scheduler.Strategies {
		cp.Scheduler.Strategies[k] = v
	}
	cp.Scheduler.ExpectedDurations = make(map[string]time.Duration, len(c.Scheduler.ExpectedDurations))
	for k, v := range c.Scheduler.ExpectedDurations {
		cp.Scheduler.ExpectedDurations[k] = v
	}
	cp.Log.OutputPaths = append([]string(nil), c.Log.OutputPaths...)
	return &cp
}
