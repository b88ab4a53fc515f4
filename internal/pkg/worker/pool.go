// Package worker runs background work on bounded ants pools. Production
// code submits here instead of starting bare goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"elevate.dev/elevate/internal/pkg/logger"
)

var (
	// ErrPoolClosed is returned when submitting to a closed pool.
	ErrPoolClosed = errors.New("worker pool is closed")
	// ErrPoolFull is returned by non-blocking pools with no free worker.
	ErrPoolFull = errors.New("worker pool is full")
)

// Task is a context-aware task function.
type Task func(ctx context.Context)

// ErrTask is a context-aware task that can fail.
type ErrTask func(ctx context.Context) error

// Pool wraps ants.Pool with context-aware submission.
type Pool struct {
	pool *ants.Pool
	name string
}

// Pools is the Worker pool collection.
type Pools struct {
	General   *Pool
	Directory *Pool
	// Streams runs the long-lived loops of WebSocket state streams. It
	// never blocks: a full pool rejects the connection.
	Streams *Pool

	// serviceCtx is the service lifecycle context for detached tasks
	serviceCtx    context.Context
	serviceCancel context.CancelFunc
}

// PoolConfig contains Worker Pool configuration.
type PoolConfig struct {
	GeneralPoolSize   int
	DirectoryPoolSize int
	// StreamPoolSize counts loops, two per open stream.
	StreamPoolSize int
}

// DefaultPoolConfig returns default configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		GeneralPoolSize:   16,
		DirectoryPoolSize: 8,
		StreamPoolSize:    128,
	}
}

// NewPools creates Worker pool collection.
func NewPools(ctx context.Context, cfg PoolConfig) (*Pools, error) {
	// Create service lifecycle context for detached tasks
	serviceCtx, serviceCancel := context.WithCancel(ctx)

	// Unified panic recovery
	panicHandler := func(p interface{}) {
		logger.Error("Worker panic recovered",
			zap.Any("panic", p),
			zap.Stack("stack"),
		)
	}

	generalAnts, err := ants.NewPool(cfg.GeneralPoolSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(10*time.Second),
	)
	if err != nil {
		serviceCancel()
		return nil, err
	}

	directoryAnts, err := ants.NewPool(cfg.DirectoryPoolSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(30*time.Second), // directory round trips are slower
	)
	if err != nil {
		generalAnts.Release()
		serviceCancel()
		return nil, err
	}

	streamSize := cfg.StreamPoolSize
	if streamSize <= 0 {
		streamSize = DefaultPoolConfig().StreamPoolSize
	}
	streamAnts, err := ants.NewPool(streamSize,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(true),
	)
	if err != nil {
		generalAnts.Release()
		directoryAnts.Release()
		serviceCancel()
		return nil, err
	}

	return &Pools{
		General:       &Pool{pool: generalAnts, name: "general"},
		Directory:     &Pool{pool: directoryAnts, name: "directory"},
		Streams:       &Pool{pool: streamAnts, name: "streams"},
		serviceCtx:    serviceCtx,
		serviceCancel: serviceCancel,
	}, nil
}

// Submit submits a context-aware task.
// The task receives the caller's context and SHOULD check ctx.Done() at blocking points.
// If context is already cancelled, returns ctx.Err() immediately without submitting.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	err := p.pool.Submit(func() {
		// Check context again inside worker (may have been cancelled while queued)
		select {
		case <-ctx.Done():
			logger.Debug("Task skipped: context cancelled",
				zap.String("pool", p.name),
				zap.Error(ctx.Err()),
			)
			return
		default:
		}
		task(ctx)
	})
	return poolError(err)
}

func poolError(err error) error {
	switch {
	case errors.Is(err, ants.ErrPoolClosed):
		return ErrPoolClosed
	case errors.Is(err, ants.ErrPoolOverload):
		return ErrPoolFull
	}
	return err
}

// RunAll runs every task on the pool and waits for all of them. The first
// failure cancels the context seen by the remaining tasks and is returned;
// later failures are dropped. A panicking task counts as a failure.
func (p *Pool) RunAll(ctx context.Context, tasks ...ErrTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for _, task := range tasks {
		task := task
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer func() {
				if r := recover(); r != nil {
					fail(fmt.Errorf("%s pool task panic: %v", p.name, r))
				}
				wg.Done()
			}()
			if err := runCtx.Err(); err != nil {
				fail(err)
				return
			}
			if err := task(runCtx); err != nil {
				fail(err)
			}
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submit to %s pool: %w", p.name, poolError(err)))
			break
		}
	}

	wg.Wait()
	return firstErr
}

// SubmitDetached submits a detached background task.
// Detached tasks use the service lifecycle context instead of a request context.
// Use this for background work that should survive request cancellation
// but still respect graceful shutdown.
func (p *Pools) SubmitDetached(poolName string, task Task) error {
	var pool *Pool
	switch poolName {
	case "general":
		pool = p.General
	case "directory":
		pool = p.Directory
	default:
		pool = p.General
	}

	return pool.pool.Submit(func() {
		select {
		case <-p.serviceCtx.Done():
			logger.Debug("Detached task skipped: service shutting down",
				zap.String("pool", poolName),
			)
			return
		default:
		}
		task(p.serviceCtx)
	})
}

// Shutdown gracefully shuts down all pools with a timeout.
// Cancels service context first, then waits for running tasks (max 30s).
func (p *Pools) Shutdown() {
	p.serviceCancel()

	const shutdownTimeout = 30 * time.Second
	if err := p.General.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		logger.Warn("General pool shutdown timeout", zap.Error(err))
	}
	if err := p.Directory.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		logger.Warn("Directory pool shutdown timeout", zap.Error(err))
	}
	if err := p.Streams.pool.ReleaseTimeout(shutdownTimeout); err != nil {
		logger.Warn("Streams pool shutdown timeout", zap.Error(err))
	}
}

// Metrics returns pool metrics for observability.
func (p *Pools) Metrics() map[string]interface{} {
	return map[string]interface{}{
		"general":   poolMetrics(p.General),
		"directory": poolMetrics(p.Directory),
		"streams":   poolMetrics(p.Streams),
	}
}

func poolMetrics(p *Pool) map[string]int {
	return map[string]int{
		"running": p.pool.Running(),
		"free":    p.pool.Free(),
		"cap":     p.pool.Cap(),
	}
}
