package bridge

import (
	"context"

	"go.uber.org/zap"

	"github.com/agentfs/agentfs/internal/cache"
	"github.com/agentfs/agentfs/internal/config"
	"github.com/agentfs/agentfs/internal/location"
	"github.com/agentfs/agentfs/internal/metrics"
	"github.com/agentfs/agentfs/pkg/errors"
	"github.com/agentfs/agentfs/pkg/utils"
)

// Runtime is a bridge assembled from a configuration together with the
// collector its calls report to.
type Runtime struct {
	*Bridge
	Collector *metrics.Collector
}

// NewRuntime installs logging, builds the metrics collector (serving it when
// enabled) and creates a bridge using alloc for caller-owned memory.
func NewRuntime(ctx context.Context, cfg *config.Configuration, alloc Allocator) (*Runtime, error) {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if err := utils.SetupLogging(cfg.Global.LogConfig()); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "failed to set up logging").
			WithComponent("bridge")
	}

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   cfg.Metrics.Enabled,
		Port:      cfg.Metrics.Port,
		Namespace: cfg.Metrics.Namespace,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to create metrics collector").
			WithComponent("bridge")
	}
	if err := collector.Start(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to start metrics endpoint").
			WithComponent("bridge")
	}

	opts := Options{
		Dirs: location.Dirs{
			AgentFS: cfg.Paths.AgentFSDir,
			Run:     cfg.Paths.RunDir,
		},
		Metrics:   collector,
		Allocator: alloc,
	}
	if sc := cfg.Bridge.StatCache; sc.Enabled {
		opts.StatCache = &cache.Config{MaxEntries: sc.MaxEntries, TTL: sc.TTL}
	}

	utils.Logger().Debug("bridge runtime ready",
		zap.Bool("stat_cache", opts.StatCache != nil),
		zap.Bool("metrics_endpoint", cfg.Metrics.Enabled && cfg.Metrics.Port > 0))
	return &Runtime{Bridge: New(opts), Collector: collector}, nil
}

// Shutdown closes every handle and stops the metrics endpoint.
func (r *Runtime) Shutdown(ctx context.Context) error {
	err := r.Bridge.Shutdown()
	if stopErr := r.Collector.Stop(ctx); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}
