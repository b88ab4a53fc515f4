// Package modules contains the dependency modules composed by internal/app.
package modules

import (
	"context"

	"elevate.dev/elevate/internal/api/handlers"
)

// Module represents a dependency unit in the composition root.
type Module interface {
	// Name returns a stable module identifier for logging/debugging.
	Name() string

	// Start launches module-owned background work.
	Start(context.Context) error

	// Shutdown performs module-local graceful cleanup.
	Shutdown(context.Context) error
}

// ServerDepsContributor is implemented by modules that expose dependencies
// to the HTTP handlers.
type ServerDepsContributor interface {
	ContributeServerDeps(*handlers.ServerDeps)
}
