package pim

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"elevate.dev/elevate/internal/directory"
	"elevate.dev/elevate/internal/domain"
	"elevate.dev/elevate/internal/pkg/logger"
)

// Latencies are the simulated round-trip delays.
type Latencies struct {
	Refresh    time.Duration
	Activate   time.Duration
	Deactivate time.Duration
}

// DefaultLatencies mirror a typical directory round trip.
func DefaultLatencies() Latencies {
	return Latencies{
		Refresh:    500 * time.Millisecond,
		Activate:   time.Second,
		Deactivate: 500 * time.Millisecond,
	}
}

// SimulatedOptions wires a SimulatedManager.
type SimulatedOptions struct {
	// Fixtures defaults to the embedded demo directory.
	Fixtures  *Fixtures
	Latencies Latencies
	Events    *domain.EventDispatcher
	Now       func() time.Time
}

// SimulatedManager implements Manager entirely in memory. It never touches
// the network and only fails on input guards or context cancellation.
type SimulatedManager struct {
	account   domain.Account
	latencies Latencies
	now       func() time.Time
	emitter   emitter
	store     *store

	// simulated directory contents
	mu       sync.Mutex
	eligible []domain.EligibilitySchedule
	active   []domain.AssignmentSchedule
	consumed map[domain.RoleKey]domain.EligibilitySchedule
}

var (
	_ Manager                 = (*SimulatedManager)(nil)
	_ directory.AccountSource = (*SimulatedManager)(nil)
)

// NewSimulatedManager seeds a simulated directory and publishes it as the
// initial state.
func NewSimulatedManager(opts SimulatedOptions) (*SimulatedManager, error) {
	fixtures := opts.Fixtures
	if fixtures == nil {
		var err error
		if fixtures, err = DefaultFixtures(); err != nil {
			return nil, err
		}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	m := &SimulatedManager{
		account:   fixtures.Account(),
		latencies: opts.Latencies,
		now:       now,
		emitter:   emitter{events: opts.Events, now: now},
		store:     newStore(),
	}
	m.eligible, m.active, m.consumed = fixtures.seed(now())
	m.store.replace(m.eligible, m.active)
	return m, nil
}

// Account implements directory.AccountSource. The simulated user is always signed in.
func (m *SimulatedManager) Account() (domain.Account, bool) { return m.account, true }

// State implements Manager.
func (m *SimulatedManager) State() State { return m.store.snapshot() }

// Subscribe implements Manager.
func (m *SimulatedManager) Subscribe(fn func(State)) func() { return m.store.subscribe(fn) }

// Refresh implements Manager. Activations past their end are moved back to
// the eligible collection.
func (m *SimulatedManager) Refresh(ctx context.Context) error {
	seq := m.store.beginRefresh()

	if err := sleep(ctx, m.latencies.Refresh); err != nil {
		m.store.finishRefresh(seq, nil, nil, err, m.now())
		return err
	}

	now := m.now()
	m.mu.Lock()
	m.restoreExpiredLocked(now)
	eligible, active := domain.CloneEligible(m.eligible), domain.CloneActive(m.active)
	m.mu.Unlock()

	m.store.finishRefresh(seq, eligible, active, nil, now)
	return nil
}

// Activate implements Manager. Unknown keys are ignored.
func (m *SimulatedManager) Activate(ctx context.Context, in ActivateInput) (err error) {
	if err := validateActivate(in); err != nil {
		return err
	}
	if err := m.store.beginMutation(); err != nil {
		return err
	}
	defer func() { m.store.endMutation(err) }()

	key := in.Key()
	m.emitter.emit(ctx, domain.EventRoleActivationRequested, key, m.account.ObjectID, activationPayload(in, nil))

	if err = sleep(ctx, m.latencies.Activate); err != nil {
		m.emitter.emit(ctx, domain.EventRoleActivationFailed, key, m.account.ObjectID, activationPayload(in, err))
		return err
	}

	m.mu.Lock()
	idx := -1
	for i, e := range m.eligible {
		if e.Key() == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		logger.Debug("Simulated activation of unknown role ignored", keyFields(key)...)
		return nil
	}

	e := m.eligible[idx]
	m.eligible = append(m.eligible[:idx:idx], m.eligible[idx+1:]...)
	m.consumed[key] = e
	m.active = append(m.active, newActivation(uuid.NewString(), e, in.Duration, m.now()))
	eligible, active := domain.CloneEligible(m.eligible), domain.CloneActive(m.active)
	m.mu.Unlock()

	m.store.replace(eligible, active)
	logger.Info("Simulated role activated", append(keyFields(key), zap.String("duration", in.Duration))...)
	m.emitter.emit(ctx, domain.EventRoleActivated, key, m.account.ObjectID, activationPayload(in, nil))
	return nil
}

// Deactivate implements Manager. Unknown keys are ignored.
func (m *SimulatedManager) Deactivate(ctx context.Context, roleDefinitionID, directoryScopeID string) (err error) {
	key := domain.RoleKey{RoleDefinitionID: roleDefinitionID, DirectoryScopeID: directoryScopeID}
	if err := validateKey(key); err != nil {
		return err
	}
	if err := m.store.beginMutation(); err != nil {
		return err
	}
	defer func() { m.store.endMutation(err) }()

	m.emitter.emit(ctx, domain.EventRoleDeactivationRequested, key, m.account.ObjectID, nil)

	if err = sleep(ctx, m.latencies.Deactivate); err != nil {
		m.emitter.emit(ctx, domain.EventRoleDeactivationFailed, key, m.account.ObjectID, domain.ActivationPayload{Error: err.Error()})
		return err
	}

	m.mu.Lock()
	if !m.removeActiveLocked(key) {
		m.mu.Unlock()
		logger.Debug("Simulated deactivation of unknown role ignored", keyFields(key)...)
		return nil
	}
	eligible, active := domain.CloneEligible(m.eligible), domain.CloneActive(m.active)
	m.mu.Unlock()

	m.store.replace(eligible, active)
	logger.Info("Simulated role deactivated", keyFields(key)...)
	m.emitter.emit(ctx, domain.EventRoleDeactivated, key, m.account.ObjectID, nil)
	return nil
}

// removeActiveLocked drops the activated assignment for key and restores
// its eligibility record.
func (m *SimulatedManager) removeActiveLocked(key domain.RoleKey) bool {
	idx := -1
	for i, a := range m.active {
		if a.Key() == key && a.AssignmentType == domain.AssignmentActivated {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	a := m.active[idx]
	m.active = append(m.active[:idx:idx], m.active[idx+1:]...)

	e, ok := m.consumed[key]
	if !ok {
		e = domain.EligibilitySchedule{
			ID:               "eligibility-" + key.RoleDefinitionID,
			PrincipalID:      a.PrincipalID,
			RoleDefinitionID: a.RoleDefinitionID,
			DirectoryScopeID: a.DirectoryScopeID,
			Status:           domain.StatusProvisioned,
			RoleDefinition:   a.RoleDefinition,
		}
	}
	delete(m.consumed, key)
	m.eligible = append(m.eligible, e)
	return true
}

func (m *SimulatedManager) restoreExpiredLocked(now time.Time) {
	var expired []domain.RoleKey
	for _, a := range m.active {
		if a.Expired(now) {
			expired = append(expired, a.Key())
		}
	}
	for _, key := range expired {
		m.removeActiveLocked(key)
		logger.Debug("Simulated activation expired", keyFields(key)...)
	}
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
