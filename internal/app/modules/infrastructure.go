package modules

import (
	"context"
	"fmt"

	"elevate.dev/elevate/internal/config"
	"elevate.dev/elevate/internal/domain"
	"elevate.dev/elevate/internal/pkg/worker"
)

// Infrastructure holds shared cross-cutting dependencies for all modules.
// It is a provider, not a Module.
type Infrastructure struct {
	Config *config.Config
	Pools  *worker.Pools
	Events *domain.EventDispatcher
}

// NewInfrastructure initializes the worker pools and the event dispatcher.
func NewInfrastructure(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize:   cfg.Worker.GeneralPoolSize,
		DirectoryPoolSize: cfg.Worker.DirectoryPoolSize,
		StreamPoolSize:    cfg.Worker.StreamPoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	return &Infrastructure{
		Config: cfg,
		Pools:  pools,
		Events: domain.NewEventDispatcher(),
	}, nil
}

// Close releases the worker pools.
func (i *Infrastructure) Close() {
	if i == nil || i.Pools == nil {
		return
	}
	i.Pools.Shutdown()
}
