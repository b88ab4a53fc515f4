package pim

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"elevate.dev/elevate/internal/directory"
	"elevate.dev/elevate/internal/domain"
	"elevate.dev/elevate/internal/duration"
	apperrors "elevate.dev/elevate/internal/pkg/errors"
	"elevate.dev/elevate/internal/pkg/logger"
	"elevate.dev/elevate/internal/pkg/worker"
)

// LiveOptions wires a LiveManager.
type LiveOptions struct {
	Client   directory.Client
	Accounts directory.AccountSource
	// Pool runs the two schedule fetches concurrently.
	Pool   *worker.Pool
	Events *domain.EventDispatcher
	// Now defaults to time.Now.
	Now func() time.Time
}

// LiveManager implements Manager against the directory. It never updates
// collections optimistically: every successful mutation is followed by a
// full refetch.
type LiveManager struct {
	client   directory.Client
	accounts directory.AccountSource
	pool     *worker.Pool
	now      func() time.Time
	emitter  emitter
	store    *store

	principalMu  sync.Mutex
	principal    *domain.Principal
	principalFor string // account object id the cached principal belongs to
}

var _ Manager = (*LiveManager)(nil)

// NewLiveManager creates a LiveManager with empty state.
func NewLiveManager(opts LiveOptions) *LiveManager {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &LiveManager{
		client:   opts.Client,
		accounts: opts.Accounts,
		pool:     opts.Pool,
		now:      now,
		emitter:  emitter{events: opts.Events, now: now},
		store:    newStore(),
	}
}

// State implements Manager.
func (m *LiveManager) State() State { return m.store.snapshot() }

// Subscribe implements Manager.
func (m *LiveManager) Subscribe(fn func(State)) func() { return m.store.subscribe(fn) }

// Refresh implements Manager.
func (m *LiveManager) Refresh(ctx context.Context) error {
	if _, ok := m.accounts.Account(); !ok {
		m.store.reset()
		return nil
	}

	seq := m.store.beginRefresh()
	log := logger.With(zap.Uint64("refresh_seq", seq))

	var (
		eligible []domain.EligibilitySchedule
		active   []domain.AssignmentSchedule
	)
	err := m.fetch(ctx,
		func(ctx context.Context) error {
			var err error
			eligible, err = m.client.ListEligibleRoles(ctx)
			return err
		},
		func(ctx context.Context) error {
			var err error
			active, err = m.client.ListActiveRoles(ctx)
			return err
		},
	)

	fetchedAt := m.now()
	if err != nil {
		err = refreshError(err)
		if m.store.finishRefresh(seq, nil, nil, err, fetchedAt) {
			log.Warn("Role refresh failed, keeping previous state", zap.Error(err))
		}
		return err
	}

	active = normalizeActive(active, fetchedAt)
	eligible = withoutActivated(eligible, active)

	if m.store.finishRefresh(seq, eligible, active, nil, fetchedAt) {
		log.Debug("Role refresh committed",
			zap.Int("eligible", len(eligible)),
			zap.Int("active", len(active)),
		)
	}
	return nil
}

func (m *LiveManager) fetch(ctx context.Context, tasks ...worker.ErrTask) error {
	if m.pool != nil {
		return m.pool.RunAll(ctx, tasks...)
	}
	for _, task := range tasks {
		if err := task(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Activate implements Manager.
func (m *LiveManager) Activate(ctx context.Context, in ActivateInput) (err error) {
	if err := validateActivate(in); err != nil {
		return err
	}
	acct, ok := m.accounts.Account()
	if !ok {
		return nil
	}
	if err := m.store.beginMutation(); err != nil {
		return err
	}
	defer func() { m.store.endMutation(err) }()

	key := in.Key()
	log := logger.With(keyFields(key)...)

	principalID, err := m.principalID(ctx, acct)
	if err != nil {
		err = mutationError(err, apperrors.CodeActivationFailed, "role activation failed")
		m.emitter.emit(ctx, domain.EventRoleActivationFailed, key, "", activationPayload(in, err))
		return err
	}

	req := domain.NewActivationRequest(key, principalID, in.Justification, in.Duration,
		strings.TrimSpace(in.TicketNumber), strings.TrimSpace(in.TicketSystem), m.now())
	m.emitter.emit(ctx, domain.EventRoleActivationRequested, key, principalID, activationPayload(in, nil))

	if err = m.client.Activate(ctx, req); err != nil {
		err = mutationError(err, apperrors.CodeActivationFailed, "role activation failed")
		log.Warn("Role activation failed", zap.Error(err))
		m.emitter.emit(ctx, domain.EventRoleActivationFailed, key, principalID, activationPayload(in, err))
		return err
	}

	log.Info("Role activated", zap.String("duration", in.Duration))
	m.emitter.emit(ctx, domain.EventRoleActivated, key, principalID, activationPayload(in, nil))

	if rerr := m.Refresh(ctx); rerr != nil {
		log.Warn("Refresh after activation failed", zap.Error(rerr))
	}
	return nil
}

// Deactivate implements Manager.
func (m *LiveManager) Deactivate(ctx context.Context, roleDefinitionID, directoryScopeID string) (err error) {
	key := domain.RoleKey{RoleDefinitionID: roleDefinitionID, DirectoryScopeID: directoryScopeID}
	if err := validateKey(key); err != nil {
		return err
	}
	acct, ok := m.accounts.Account()
	if !ok {
		return nil
	}
	if err := m.store.beginMutation(); err != nil {
		return err
	}
	defer func() { m.store.endMutation(err) }()

	log := logger.With(keyFields(key)...)

	principalID, err := m.principalID(ctx, acct)
	if err != nil {
		err = mutationError(err, apperrors.CodeDeactivationFailed, "role deactivation failed")
		m.emitter.emit(ctx, domain.EventRoleDeactivationFailed, key, "", domain.ActivationPayload{Error: apperrors.Message(err)})
		return err
	}

	m.emitter.emit(ctx, domain.EventRoleDeactivationRequested, key, principalID, nil)

	if err = m.client.Deactivate(ctx, key.RoleDefinitionID, principalID, key.DirectoryScopeID); err != nil {
		err = mutationError(err, apperrors.CodeDeactivationFailed, "role deactivation failed")
		log.Warn("Role deactivation failed", zap.Error(err))
		m.emitter.emit(ctx, domain.EventRoleDeactivationFailed, key, principalID, domain.ActivationPayload{Error: apperrors.Message(err)})
		return err
	}

	log.Info("Role deactivated")
	m.emitter.emit(ctx, domain.EventRoleDeactivated, key, principalID, nil)

	if rerr := m.Refresh(ctx); rerr != nil {
		log.Warn("Refresh after deactivation failed", zap.Error(rerr))
	}
	return nil
}

// principalID resolves the directory object id of the signed-in principal,
// caching it for as long as the same account stays signed in.
func (m *LiveManager) principalID(ctx context.Context, acct domain.Account) (string, error) {
	m.principalMu.Lock()
	defer m.principalMu.Unlock()

	if m.principal != nil && m.principalFor == acct.ObjectID {
		return m.principal.ID, nil
	}

	p, err := m.client.GetCurrentPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve principal: %w", err)
	}
	if p == nil || p.ID == "" {
		return "", apperrors.BadGateway(nil, apperrors.CodePrincipalUnresolved, "directory returned no principal id")
	}
	m.principal = p
	m.principalFor = acct.ObjectID
	return p.ID, nil
}

// normalizeActive guarantees every Activated assignment carries an
// AfterDuration expiration with a resolved end instant.
func normalizeActive(items []domain.AssignmentSchedule, fetchedAt time.Time) []domain.AssignmentSchedule {
	out := domain.CloneActive(items)
	for i := range out {
		a := &out[i]
		if a.AssignmentType != domain.AssignmentActivated {
			continue
		}
		if a.ScheduleInfo == nil {
			a.ScheduleInfo = &domain.ScheduleInfo{}
		}
		if a.ScheduleInfo.Expiration == nil {
			a.ScheduleInfo.Expiration = &domain.Expiration{}
		}
		exp := a.ScheduleInfo.Expiration
		start := a.ScheduleInfo.StartDateTime

		if exp.EndDateTime == nil {
			var end time.Time
			switch {
			case start == nil:
				end = fetchedAt
			default:
				if d, ok := duration.ToDuration(exp.Duration); ok {
					end = start.Add(d)
				} else {
					end = start.Add(duration.DefaultHours * time.Hour)
				}
			}
			exp.EndDateTime = &end
			logger.Warn("Activated assignment without end instant, derived one",
				zap.String("assignment_id", a.ID),
				zap.String("role_definition_id", a.RoleDefinitionID),
				zap.Time("end_date_time", end),
			)
		}

		exp.Type = domain.ExpirationAfterDuration
		if exp.Duration == "" && start != nil && exp.EndDateTime.After(*start) {
			exp.Duration = duration.FromDuration(exp.EndDateTime.Sub(*start))
		}
	}
	return out
}

// withoutActivated drops eligibilities consumed by an activated assignment.
func withoutActivated(eligible []domain.EligibilitySchedule, active []domain.AssignmentSchedule) []domain.EligibilitySchedule {
	consumed := make(map[domain.RoleKey]struct{}, len(active))
	for _, a := range active {
		if a.AssignmentType == domain.AssignmentActivated {
			consumed[a.Key()] = struct{}{}
		}
	}
	out := make([]domain.EligibilitySchedule, 0, len(eligible))
	for _, e := range eligible {
		if _, ok := consumed[e.Key()]; ok {
			continue
		}
		out = append(out, e)
	}
	return out
}
