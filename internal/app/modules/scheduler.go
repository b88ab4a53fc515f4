package modules

import (
	"context"
	"fmt"

	"elevate.dev/elevate/internal/scheduler"
)

// SchedulerModule runs the periodic refresh and the expiry watch.
type SchedulerModule struct {
	scheduler *scheduler.Scheduler
}

// NewSchedulerModule registers the cron jobs for dir's manager. It returns
// nil when background refresh is disabled.
func NewSchedulerModule(infra *Infrastructure, dir *DirectoryModule) (*SchedulerModule, error) {
	cfg := infra.Config.Refresh
	if !cfg.Enabled {
		return nil, nil
	}
	s, err := scheduler.New(scheduler.Config{
		RefreshSchedule: cfg.Schedule,
		ExpirySchedule:  cfg.ExpirySchedule,
		ExpiryWarning:   cfg.ExpiryWarning,
		JobTimeout:      infra.Config.Directory.RequestTimeout * 4,
	}, dir.Manager, infra.Events)
	if err != nil {
		return nil, fmt.Errorf("init scheduler: %w", err)
	}
	return &SchedulerModule{scheduler: s}, nil
}

func (m *SchedulerModule) Name() string { return "scheduler" }

func (m *SchedulerModule) Start(context.Context) error {
	m.scheduler.Start()
	return nil
}

func (m *SchedulerModule) Shutdown(ctx context.Context) error {
	m.scheduler.Stop(ctx)
	return nil
}
