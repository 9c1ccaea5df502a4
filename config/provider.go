// 配置提供者：调度核心的只读配置入口，支持策略权重热更新。
//
// 管理器和打分器持有 *Provider 并在每次选择时读取当前配置指针，
// 因此对权重表的 Swap 对后续的选择立即生效，无需重启。
package config

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ChangeCallback 配置替换后调用
type ChangeCallback func(oldConfig, newConfig *Config)

// Provider 持有当前配置并支持原子替换
type Provider struct {
	mu  sync.RWMutex
	cfg *Config

	// 变更回调
	callbacks []ChangeCallback

	// 最近一次替换时间
	swappedAt time.Time

	logger *zap.Logger
}

// NewProvider 创建配置提供者，配置须已通过校验
func NewProvider(cfg *Config, logger *zap.Logger) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "config_provider")),
	}, nil
}

// Config 返回当前配置指针（调用方只读）
func (p *Provider) Config() *Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Scheduler 返回当前调度器配置
func (p *Provider) Scheduler() *SchedulerConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &p.cfg.Scheduler
}

// Strategy 按名称返回权重表，名称为空时返回默认策略
func (p *Provider) Strategy(name string) (WeightProfile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if name == "" {
		name = p.cfg.Scheduler.DefaultStrategy
	}
	profile, ok := p.cfg.Scheduler.Strategies[name]
	if !ok {
		return WeightProfile{}, fmt.Errorf("unknown strategy %q", name)
	}
	return profile, nil
}

// Swap 校验并整体替换配置
func (p *Provider) Swap(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	old := p.cfg
	p.cfg = cfg
	p.swappedAt = time.Now()
	callbacks := append([]ChangeCallback(nil), p.callbacks...)
	p.mu.Unlock()

	p.logger.Info("config swapped",
		zap.Int("strategies", len(cfg.Scheduler.Strategies)),
		zap.Int("catalog_entries", len(cfg.Scheduler.Catalog)))

	for _, cb := range callbacks {
		cb(old, cfg)
	}
	return nil
}

// UpdateStrategies 热更新权重表（写时复制，先校验后替换）
func (p *Provider) UpdateStrategies(strategies map[string]WeightProfile) error {
	if len(strategies) == 0 {
		return fmt.Errorf("strategies is empty")
	}

	p.mu.RLock()
	next := p.cfg.Clone()
	p.mu.RUnlock()

	for name, profile := range strategies {
		next.Scheduler.Strategies[name] = profile
	}
	return p.Swap(next)
}

// OnChange 注册配置变更回调
func (p *Provider) OnChange(cb ChangeCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks = append(p.callbacks, cb)
}
