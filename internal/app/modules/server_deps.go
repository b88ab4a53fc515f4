package modules

import (
	"elevate.dev/elevate/internal/api/handlers"
)

// NewServerDeps builds base server deps then lets each module contribute explicit wiring.
func NewServerDeps(infra *Infrastructure, mods []Module) handlers.ServerDeps {
	cfg := infra.Config
	deps := handlers.ServerDeps{
		Streams:         infra.Pools.Streams,
		Mode:            cfg.Directory.Mode,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		AllowAllOrigins: cfg.Server.UnsafeAllowAllOrigins,
	}
	for _, mod := range mods {
		if mod == nil {
			continue
		}
		contributor, ok := mod.(ServerDepsContributor)
		if !ok {
			continue
		}
		contributor.ContributeServerDeps(&deps)
	}
	return deps
}
