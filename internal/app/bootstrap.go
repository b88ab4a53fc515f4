// Package app is the composition root: it wires modules, the router and
// their lifecycle. It holds no domain logic.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"elevate.dev/elevate/internal/api/handlers"
	"elevate.dev/elevate/internal/app/modules"
	"elevate.dev/elevate/internal/config"
	"elevate.dev/elevate/internal/pim"
	"elevate.dev/elevate/internal/pkg/worker"
)

// Application holds composed application dependencies.
type Application struct {
	Config  *config.Config
	Router  *gin.Engine
	Server  *handlers.Server
	Manager pim.Manager
	Pools   *worker.Pools
	Modules []modules.Module
}

// Bootstrap initializes all dependencies using module-oriented manual DI.
// Nothing runs in the background until Start.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	infra, err := modules.NewInfrastructure(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	// Governance subscribes to the dispatcher before any manager can emit.
	governance := modules.NewGovernanceModule(infra)

	dir, err := modules.NewDirectoryModule(infra)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init directory module: %w", err)
	}

	allModules := []modules.Module{governance, dir}

	sched, err := modules.NewSchedulerModule(infra, dir)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("init scheduler module: %w", err)
	}
	if sched != nil {
		allModules = append(allModules, sched)
	}

	server := handlers.NewServer(modules.NewServerDeps(infra, allModules))

	return &Application{
		Config:  cfg,
		Router:  newRouter(cfg, server),
		Server:  server,
		Manager: dir.Manager,
		Pools:   infra.Pools,
		Modules: allModules,
	}, nil
}
