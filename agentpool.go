// Package agentpool provides a top-level convenience entry point for
// creating a capability manager with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/agentpool"
//
//	mgr, err := agentpool.New()
//	mgr, err := agentpool.New(agentpool.WithConfigPath("agentpool.yaml"))
//	mgr, err := agentpool.New(agentpool.WithConfig(cfg), agentpool.WithMetrics("agentpool"))
//
// This is a thin wrapper around [config.NewProvider] and
// [capability.NewManager]; use those directly when you need the provider
// for hot strategy swaps.
package agentpool

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/agentpool/capability"
	"github.com/BaSui01/agentpool/config"
	"github.com/BaSui01/agentpool/internal/metrics"
	"github.com/BaSui01/agentpool/internal/telemetry"
)

type options struct {
	cfg              *config.Config
	configPath       string
	logger           *zap.Logger
	metricsNamespace string
}

// Option configures the manager created by [New].
type Option func(*options)

// WithConfig uses a pre-built configuration instead of loading one.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithConfigPath loads configuration from a YAML file, with environment
// overrides applied on top.
func WithConfigPath(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics enables Prometheus metrics under the given namespace.
func WithMetrics(namespace string) Option {
	return func(o *options) { o.metricsNamespace = namespace }
}

// New creates a [capability.Manager]. Without options it uses the built-in
// catalog and strategies with environment overrides applied.
func New(opts ...Option) (*capability.Manager, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := o.cfg
	if cfg == nil {
		loader := config.NewLoader()
		if o.configPath != "" {
			loader = loader.WithConfigPath(o.configPath)
		}
		loaded, err := loader.Load()
		if err != nil {
			return nil, fmt.Errorf("load configuration: %w", err)
		}
		cfg = loaded
	}

	logger := o.logger
	if logger == nil {
		built, err := newLogger(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
		logger = built
	}

	provider, err := config.NewProvider(cfg, logger)
	if err != nil {
		return nil, err
	}

	var mgrOpts []capability.ManagerOption
	if o.metricsNamespace != "" {
		mgrOpts = append(mgrOpts, capability.WithCollector(
			metrics.NewCollector(o.metricsNamespace, logger)))
	}

	return capability.NewManager(provider, logger, mgrOpts...)
}

// StartTelemetry initializes the OpenTelemetry SDK from the telemetry
// section of the configuration and returns a shutdown function that flushes
// pending spans and metrics. When telemetry is disabled the returned
// function is a no-op; no exporter is created and no connection is opened.
func StartTelemetry(cfg config.TelemetryConfig, logger *zap.Logger) (func(context.Context) error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	providers, err := telemetry.Init(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	return providers.Shutdown, nil
}

// newLogger builds a zap logger from the log configuration.
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	if len(cfg.OutputPaths) > 0 {
		zcfg.OutputPaths = cfg.OutputPaths
	}
	zcfg.DisableCaller = !cfg.EnableCaller

	return zcfg.Build()
}
