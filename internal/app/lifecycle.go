package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"elevate.dev/elevate/internal/pkg/logger"
)

// Start starts all background services: the initial refresh and the scheduler.
func (a *Application) Start(ctx context.Context) error {
	for _, mod := range a.Modules {
		if mod == nil {
			continue
		}
		if err := mod.Start(ctx); err != nil {
			return fmt.Errorf("start module %s: %w", mod.Name(), err)
		}
		logger.Debug("module started", zap.String("module", mod.Name()))
	}
	return nil
}

// Shutdown gracefully shuts down all application components. Call it after
// the HTTP server has stopped accepting requests.
func (a *Application) Shutdown(ctx context.Context) {
	if a.Server != nil {
		a.Server.Close()
	}

	for i := len(a.Modules) - 1; i >= 0; i-- {
		mod := a.Modules[i]
		if mod == nil {
			continue
		}
		if err := mod.Shutdown(ctx); err != nil {
			logger.Warn("module shutdown returned error",
				zap.String("module", mod.Name()),
				zap.Error(err),
			)
		}
	}

	if a.Pools != nil {
		logger.Info("Draining worker pools", zap.Any("pools", a.Pools.Metrics()))
		a.Pools.Shutdown()
	}
}
