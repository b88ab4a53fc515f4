// Package scheduler runs the periodic role refresh and the expiry watch.
//
// Import Path: elevate.dev/elevate/internal/scheduler
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"elevate.dev/elevate/internal/domain"
	"elevate.dev/elevate/internal/pim"
	"elevate.dev/elevate/internal/pkg/logger"
)

// Config controls the scheduled jobs.
type Config struct {
	// RefreshSchedule is a cron expression ("@every 5m", "*/5 * * * *"). Empty disables the job.
	RefreshSchedule string
	// ExpirySchedule is a cron expression for the expiry watch. Empty disables the job.
	ExpirySchedule string
	// ExpiryWarning is how long before the end of an activation to warn.
	ExpiryWarning time.Duration
	// JobTimeout bounds a single job run.
	JobTimeout time.Duration
}

// Scheduler owns the cron runner. Jobs never overlap with themselves.
type Scheduler struct {
	cron    *cron.Cron
	manager pim.Manager
	events  *domain.EventDispatcher
	warning time.Duration
	timeout time.Duration
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	warned  map[string]time.Time // assignment id -> end instant already warned about
	expired map[string]bool      // assignment ids already reported expired
}

// New registers the configured jobs. Nothing runs until Start.
func New(cfg Config, manager pim.Manager, events *domain.EventDispatcher) (*Scheduler, error) {
	cronLog := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	ctx, cancel := context.WithCancel(context.Background())

	timeout := cfg.JobTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLog),
			cron.SkipIfStillRunning(cronLog),
		)),
		manager: manager,
		events:  events,
		warning: cfg.ExpiryWarning,
		timeout: timeout,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		warned:  make(map[string]time.Time),
		expired: make(map[string]bool),
	}

	if cfg.RefreshSchedule != "" {
		if _, err := s.cron.AddFunc(cfg.RefreshSchedule, s.job("refresh", s.RefreshNow)); err != nil {
			cancel()
			return nil, fmt.Errorf("refresh schedule %q: %w", cfg.RefreshSchedule, err)
		}
	}
	if cfg.ExpirySchedule != "" {
		if _, err := s.cron.AddFunc(cfg.ExpirySchedule, s.job("expiry_watch", s.CheckExpiry)); err != nil {
			cancel()
			return nil, fmt.Errorf("expiry schedule %q: %w", cfg.ExpirySchedule, err)
		}
	}
	return s, nil
}

func (s *Scheduler) job(name string, run func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()

		start := time.Now()
		if err := run(ctx); err != nil {
			logger.Warn("Scheduled job failed",
				zap.String("job", name),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
			return
		}
		logger.Debug("Scheduled job completed",
			zap.String("job", name),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

// Start starts the cron runner.
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("Scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop cancels running jobs and waits for them until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		logger.Info("Scheduler stopped")
	case <-ctx.Done():
		logger.Warn("Scheduler stop timed out, jobs still running")
	}
}

// RefreshNow refetches the role schedules.
func (s *Scheduler) RefreshNow(ctx context.Context) error {
	return s.manager.Refresh(ctx)
}

// CheckExpiry emits ROLE_EXPIRING once per activation entering the warning
// window and ROLE_EXPIRED once per activation past its end. Any expiry
// triggers a refresh so the collections catch up.
func (s *Scheduler) CheckExpiry(ctx context.Context) error {
	now := s.now()
	st := s.manager.State()

	var expiring, expired []domain.AssignmentSchedule

	s.mu.Lock()
	seen := make(map[string]bool, len(st.ActiveRoles))
	for _, a := range st.ActiveRoles {
		if a.AssignmentType != domain.AssignmentActivated {
			continue
		}
		end, ok := a.EndDateTime()
		if !ok {
			continue
		}
		seen[a.ID] = true

		switch {
		case !now.Before(end):
			if !s.expired[a.ID] {
				s.expired[a.ID] = true
				expired = append(expired, a)
			}
		case s.warning > 0 && end.Sub(now) <= s.warning:
			if prev, ok := s.warned[a.ID]; !ok || !prev.Equal(end) {
				s.warned[a.ID] = end
				expiring = append(expiring, a)
			}
		}
	}
	// Forget assignments that are gone so ids can be reused safely.
	for id := range s.warned {
		if !seen[id] {
			delete(s.warned, id)
		}
	}
	for id := range s.expired {
		if !seen[id] {
			delete(s.expired, id)
		}
	}
	s.mu.Unlock()

	for _, a := range expiring {
		s.emit(ctx, domain.EventRoleExpiring, a)
	}
	for _, a := range expired {
		s.emit(ctx, domain.EventRoleExpired, a)
	}

	if len(expired) > 0 {
		if err := s.manager.Refresh(ctx); err != nil {
			return fmt.Errorf("refresh after expiry: %w", err)
		}
	}
	return nil
}

func (s *Scheduler) emit(ctx context.Context, eventType domain.EventType, a domain.AssignmentSchedule) {
	end, _ := a.EndDateTime()
	payload := domain.ExpiryPayload{EndDateTime: end}
	if a.RoleDefinition != nil {
		payload.RoleName = a.RoleDefinition.DisplayName
	}
	raw, err := payload.ToJSON()
	if err != nil {
		logger.Error("Encode expiry payload", zap.Error(err))
		return
	}

	ev := &domain.RoleEvent{
		EventID:     uuid.NewString(),
		EventType:   eventType,
		Key:         a.Key(),
		PrincipalID: a.PrincipalID,
		OccurredAt:  s.now().UTC(),
		Payload:     raw,
	}
	if err := s.events.Dispatch(ctx, ev); err != nil {
		logger.Warn("Expiry event delivery incomplete",
			zap.String("event_type", string(eventType)),
			zap.String("event_id", ev.EventID),
			zap.Error(err),
		)
	}
}
