// 配置热重载管理器实现。
//
// 基于修改时间轮询监测配置文件；重载或校验失败时保留当前配置，
// 并在有界历史中记录每次重载结果。
package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// 默认轮询间隔与历史上限
const (
	defaultPollInterval  = 5 * time.Second
	defaultReloadHistory = 10
)

// ReloadEvent 一次重载尝试的记录
type ReloadEvent struct {
	Path    string    `json:"path"`
	At      time.Time `json:"at"`
	Applied bool      `json:"applied"`
	Error   string    `json:"error,omitempty"`
}

// ReloadManager 轮询配置文件并在变更时通过 Provider.Swap 应用新配置。
// 失败的重载不影响当前配置。
type ReloadManager struct {
	mu sync.Mutex

	provider *Provider
	loader   *Loader
	path     string
	interval time.Duration

	lastModTime time.Time
	running     bool
	stopChan    chan struct{}

	// 重载历史（环形，最多 defaultReloadHistory 条）
	history []ReloadEvent

	logger *zap.Logger
}

// NewReloadManager 创建热重载管理器。interval <= 0 时使用默认轮询间隔。
func NewReloadManager(provider *Provider, loader *Loader, path string, interval time.Duration, logger *zap.Logger) (*ReloadManager, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is nil")
	}
	if loader == nil {
		return nil, fmt.Errorf("loader is nil")
	}
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReloadManager{
		provider: provider,
		loader:   loader.WithConfigPath(path),
		path:     path,
		interval: interval,
		logger:   logger.With(zap.String("component", "config_reload")),
	}, nil
}

// Start 启动轮询。重复调用返回错误。
func (m *ReloadManager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("reload manager already running")
	}
	m.running = true
	m.stopChan = make(chan struct{})
	stopChan := m.stopChan
	m.mu.Unlock()

	// 记录初始修改时间，避免启动时立即触发一次重载
	if info, err := os.Stat(m.path); err == nil {
		m.mu.Lock()
		m.lastModTime = info.ModTime()
		m.mu.Unlock()
	}

	go m.pollLoop(ctx, stopChan)
	m.logger.Info("config hot reload started",
		zap.String("path", m.path),
		zap.Duration("interval", m.interval))
	return nil
}

// Stop 停止轮询，可重复调用。
func (m *ReloadManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stopChan)
	m.logger.Info("config hot reload stopped")
}

// Reload 立即执行一次重载（不依赖文件修改时间）。
func (m *ReloadManager) Reload() error {
	cfg, err := m.loader.Load()
	event := ReloadEvent{Path: m.path, At: time.Now()}
	if err == nil {
		err = m.provider.Swap(cfg)
	}
	if err != nil {
		event.Error = err.Error()
		m.record(event)
		m.logger.Warn("config reload failed, keeping current config",
			zap.String("path", m.path), zap.Error(err))
		return err
	}
	event.Applied = true
	m.record(event)
	return nil
}

// History 返回最近的重载记录，最新在前。
func (m *ReloadManager) History() []ReloadEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ReloadEvent, len(m.history))
	for i, e := range m.history {
		out[len(m.history)-1-i] = e
	}
	return out
}

func (m *ReloadManager) pollLoop(ctx context.Context, stopChan chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.reloadIfChanged()
		case <-stopChan:
			return
		case <-ctx.Done():
			m.Stop()
			return
		}
	}
}

// reloadIfChanged 比较修改时间，仅在文件变更后重载。
func (m *ReloadManager) reloadIfChanged() {
	info, err := os.Stat(m.path)
	if err != nil {
		// 文件暂时不可见（编辑器原子替换），下个周期重试
		return
	}

	m.mu.Lock()
	changed := info.ModTime().After(m.lastModTime)
	if changed {
		m.lastModTime = info.ModTime()
	}
	m.mu.Unlock()

	if changed {
		_ = m.Reload()
	}
}

func (m *ReloadManager) record(event ReloadEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, event)
	if len(m.history) > defaultReloadHistory {
		m.history = m.history[len(m.history)-defaultReloadHistory:]
	}
}
