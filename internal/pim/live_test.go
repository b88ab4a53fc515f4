package pim

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elevate.dev/elevate/internal/directory"
	"elevate.dev/elevate/internal/domain"
	apperrors "elevate.dev/elevate/internal/pkg/errors"
	"elevate.dev/elevate/internal/pkg/logger"
	"elevate.dev/elevate/internal/pkg/worker"
)

func init() {
	_ = logger.Init("error", "json")
}

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeAccounts struct {
	acct domain.Account
	ok   bool
}

func (f fakeAccounts) Account() (domain.Account, bool) { return f.acct, f.ok }

var signedIn = fakeAccounts{acct: domain.Account{ObjectID: "user-1", Username: "ada@contoso.com"}, ok: true}

// fakeDirectory behaves like the directory: activations add an assignment
// (without an end instant) and keep the eligibility.
type fakeDirectory struct {
	mu sync.Mutex

	eligible  []domain.EligibilitySchedule
	active    []domain.AssignmentSchedule
	principal *domain.Principal

	listErr       error
	principalErr  error
	activateErr   error
	deactivateErr error

	listEligibleFn func(ctx context.Context) ([]domain.EligibilitySchedule, error)
	activateFn     func(ctx context.Context) error

	activations    []*domain.ActivationRequest
	deactivations  []domain.RoleKey
	principalCalls int
	listCalls      int32
}

var _ directory.Client = (*fakeDirectory)(nil)

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		eligible: []domain.EligibilitySchedule{
			eligibility("role-def-1", "Global Administrator"),
			eligibility("role-def-3", "User Administrator"),
		},
		active:    []domain.AssignmentSchedule{},
		principal: &domain.Principal{ID: "principal-1", DisplayName: "Ada"},
	}
}

func eligibility(roleID, name string) domain.EligibilitySchedule {
	return domain.EligibilitySchedule{
		ID:               "elig-" + roleID,
		PrincipalID:      "principal-1",
		RoleDefinitionID: roleID,
		DirectoryScopeID: "/",
		Status:           domain.StatusProvisioned,
		RoleDefinition:   &domain.RoleDefinition{ID: roleID, DisplayName: name, IsBuiltIn: true},
	}
}

func (f *fakeDirectory) ListEligibleRoles(ctx context.Context) ([]domain.EligibilitySchedule, error) {
	atomic.AddInt32(&f.listCalls, 1)
	if f.listEligibleFn != nil {
		return f.listEligibleFn(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return domain.CloneEligible(f.eligible), nil
}

func (f *fakeDirectory) ListActiveRoles(context.Context) ([]domain.AssignmentSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return domain.CloneActive(f.active), nil
}

func (f *fakeDirectory) GetCurrentPrincipal(context.Context) (*domain.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.principalCalls++
	if f.principalErr != nil {
		return nil, f.principalErr
	}
	p := *f.principal
	return &p, nil
}

func (f *fakeDirectory) Activate(ctx context.Context, req *domain.ActivationRequest) error {
	if f.activateFn != nil {
		if err := f.activateFn(ctx); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activations = append(f.activations, req)
	if f.activateErr != nil {
		return f.activateErr
	}
	start, err := time.Parse(domain.ISO8601Millis, req.ScheduleInfo.StartDateTime)
	if err != nil {
		return err
	}
	var def *domain.RoleDefinition
	for _, e := range f.eligible {
		if e.RoleDefinitionID == req.RoleDefinitionID {
			def = e.RoleDefinition
		}
	}
	f.active = append(f.active, domain.AssignmentSchedule{
		ID:               "assignment-" + req.RoleDefinitionID,
		PrincipalID:      req.PrincipalID,
		RoleDefinitionID: req.RoleDefinitionID,
		DirectoryScopeID: req.DirectoryScopeID,
		Status:           domain.StatusProvisioned,
		AssignmentType:   domain.AssignmentActivated,
		ScheduleInfo: &domain.ScheduleInfo{
			StartDateTime: &start,
			Expiration:    &domain.Expiration{Type: "afterDuration", Duration: req.ScheduleInfo.Expiration.Duration},
		},
		RoleDefinition: def,
	})
	return nil
}

func (f *fakeDirectory) Deactivate(_ context.Context, roleDefinitionID, principalID, directoryScopeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := domain.RoleKey{RoleDefinitionID: roleDefinitionID, DirectoryScopeID: directoryScopeID}
	f.deactivations = append(f.deactivations, key)
	if f.deactivateErr != nil {
		return f.deactivateErr
	}
	kept := f.active[:0]
	for _, a := range f.active {
		if a.Key() != key {
			kept = append(kept, a)
		}
	}
	f.active = kept
	return nil
}

func (f *fakeDirectory) setListErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

func newTestPool(t *testing.T) *worker.Pool {
	t.Helper()
	pools, err := worker.NewPools(context.Background(), worker.DefaultPoolConfig())
	require.NoError(t, err)
	t.Cleanup(pools.Shutdown)
	return pools.Directory
}

func newLive(t *testing.T, dir *fakeDirectory, accounts directory.AccountSource, events *domain.EventDispatcher) *LiveManager {
	t.Helper()
	return NewLiveManager(LiveOptions{
		Client:   dir,
		Accounts: accounts,
		Pool:     newTestPool(t),
		Events:   events,
		Now:      func() time.Time { return testNow },
	})
}

func keysOfEligible(items []domain.EligibilitySchedule) []domain.RoleKey {
	keys := make([]domain.RoleKey, 0, len(items))
	for _, e := range items {
		keys = append(keys, e.Key())
	}
	return keys
}

func keysOfActive(items []domain.AssignmentSchedule) []domain.RoleKey {
	keys := make([]domain.RoleKey, 0, len(items))
	for _, a := range items {
		keys = append(keys, a.Key())
	}
	return keys
}

var (
	keyGlobal = domain.RoleKey{RoleDefinitionID: "role-def-1", DirectoryScopeID: "/"}
	keyUser   = domain.RoleKey{RoleDefinitionID: "role-def-3", DirectoryScopeID: "/"}
)

func incidentInput() ActivateInput {
	return ActivateInput{
		RoleDefinitionID: "role-def-1",
		DirectoryScopeID: "/",
		Justification:    "needed for incident X",
		Duration:         "PT1H",
	}
}

func TestLiveManager_RefreshWithoutAccount(t *testing.T) {
	dir := newFakeDirectory()
	m := newLive(t, dir, fakeAccounts{}, nil)

	require.NoError(t, m.Refresh(context.Background()))

	st := m.State()
	assert.False(t, st.IsLoading)
	assert.Empty(t, st.EligibleRoles)
	assert.Empty(t, st.ActiveRoles)
	assert.Empty(t, st.LastError)
	assert.Zero(t, atomic.LoadInt32(&dir.listCalls))
}

func TestLiveManager_RefreshCommitsBothCollections(t *testing.T) {
	dir := newFakeDirectory()
	m := newLive(t, dir, signedIn, nil)

	require.NoError(t, m.Refresh(context.Background()))

	st := m.State()
	assert.False(t, st.IsLoading)
	assert.Equal(t, []domain.RoleKey{keyGlobal, keyUser}, keysOfEligible(st.EligibleRoles))
	assert.Empty(t, st.ActiveRoles)
	require.NotNil(t, st.RefreshedAt)
	assert.Equal(t, testNow, *st.RefreshedAt)
}

func TestLiveManager_RefreshFailureKeepsPopulatedState(t *testing.T) {
	dir := newFakeDirectory()
	m := newLive(t, dir, signedIn, nil)
	require.NoError(t, m.Refresh(context.Background()))
	before := m.State()

	dir.setListErr(apperrors.BadGateway(errors.New("connection reset"), apperrors.CodeDirectoryUnavailable, "directory request failed"))
	err := m.Refresh(context.Background())
	require.Error(t, err)

	st := m.State()
	assert.False(t, st.IsLoading)
	assert.Contains(t, st.LastError, "connection reset")
	assert.Equal(t, before.EligibleRoles, st.EligibleRoles)
	assert.Equal(t, before.ActiveRoles, st.ActiveRoles)

	// The next good refresh clears the error.
	dir.setListErr(nil)
	require.NoError(t, m.Refresh(context.Background()))
	assert.Empty(t, m.State().LastError)
}

func TestLiveManager_RefreshFailureCancelsSiblingFetch(t *testing.T) {
	dir := newFakeDirectory()
	dir.listEligibleFn = func(ctx context.Context) ([]domain.EligibilitySchedule, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	dir.listErr = errors.New("active list unavailable")
	m := newLive(t, dir, signedIn, nil)

	err := m.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "active list unavailable")

	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeDirectoryUnavailable, appErr.Code)
	assert.Equal(t, http.StatusBadGateway, appErr.HTTPStatus)
}

func TestLiveManager_StaleRefreshDiscarded(t *testing.T) {
	dir := newFakeDirectory()
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	dir.listEligibleFn = func(ctx context.Context) ([]domain.EligibilitySchedule, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
			<-release
			return []domain.EligibilitySchedule{eligibility("role-def-stale", "Stale")}, nil
		}
		return []domain.EligibilitySchedule{eligibility("role-def-fresh", "Fresh")}, nil
	}
	m := newLive(t, dir, signedIn, nil)

	first := make(chan error, 1)
	go func() { first <- m.Refresh(context.Background()) }()
	<-started

	require.NoError(t, m.Refresh(context.Background()))
	close(release)
	require.NoError(t, <-first)

	st := m.State()
	assert.False(t, st.IsLoading)
	require.Len(t, st.EligibleRoles, 1)
	assert.Equal(t, "role-def-fresh", st.EligibleRoles[0].RoleDefinitionID)
}

func TestLiveManager_ActivateIncidentScenario(t *testing.T) {
	dir := newFakeDirectory()
	m := newLive(t, dir, signedIn, nil)
	require.NoError(t, m.Refresh(context.Background()))

	require.NoError(t, m.Activate(context.Background(), incidentInput()))

	st := m.State()
	assert.False(t, st.IsMutating)
	assert.Empty(t, st.MutationError)
	require.Len(t, st.ActiveRoles, 1)

	a := st.ActiveRoles[0]
	assert.Equal(t, keyGlobal, a.Key())
	assert.Equal(t, domain.AssignmentActivated, a.AssignmentType)
	assert.Equal(t, domain.ExpirationAfterDuration, a.ScheduleInfo.Expiration.Type)
	end, ok := a.EndDateTime()
	require.True(t, ok)
	assert.WithinDuration(t, testNow.Add(time.Hour), end, time.Second)
	assert.NotContains(t, keysOfEligible(st.EligibleRoles), keyGlobal)
	assert.Contains(t, keysOfEligible(st.EligibleRoles), keyUser)

	require.Len(t, dir.activations, 1)
	req := dir.activations[0]
	assert.Equal(t, domain.ActionSelfActivate, req.Action)
	assert.Equal(t, "principal-1", req.PrincipalID)
	assert.Equal(t, "needed for incident X", req.Justification)
	assert.Equal(t, "2026-03-01T09:00:00.000Z", req.ScheduleInfo.StartDateTime)
	assert.Equal(t, "PT1H", req.ScheduleInfo.Expiration.Duration)
	assert.Nil(t, req.TicketInfo)

	// Still holds after another refetch.
	require.NoError(t, m.Refresh(context.Background()))
	assert.Equal(t, []domain.RoleKey{keyGlobal}, keysOfActive(m.State().ActiveRoles))
	assert.NotContains(t, keysOfEligible(m.State().EligibleRoles), keyGlobal)
}

func TestLiveManager_ActivateTicketInfo(t *testing.T) {
	tests := []struct {
		name         string
		number       string
		system       string
		wantTicketed bool
	}{
		{name: "both present", number: "INC-42", system: "ServiceNow", wantTicketed: true},
		{name: "number only", number: "INC-42"},
		{name: "system only", system: "ServiceNow"},
		{name: "blank number", number: "  ", system: "ServiceNow"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := newFakeDirectory()
			m := newLive(t, dir, signedIn, nil)
			in := incidentInput()
			in.TicketNumber, in.TicketSystem = tt.number, tt.system

			require.NoError(t, m.Activate(context.Background(), in))
			require.Len(t, dir.activations, 1)
			if tt.wantTicketed {
				require.NotNil(t, dir.activations[0].TicketInfo)
				assert.Equal(t, "INC-42", dir.activations[0].TicketInfo.TicketNumber)
			} else {
				assert.Nil(t, dir.activations[0].TicketInfo)
			}
		})
	}
}

func TestLiveManager_ActivateGuards(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*ActivateInput)
		wantCode string
	}{
		{name: "empty justification", mutate: func(in *ActivateInput) { in.Justification = "" }, wantCode: apperrors.CodeJustificationRequired},
		{name: "whitespace justification", mutate: func(in *ActivateInput) { in.Justification = " \t\n" }, wantCode: apperrors.CodeJustificationRequired},
		{name: "malformed duration", mutate: func(in *ActivateInput) { in.Duration = "bogus" }, wantCode: apperrors.CodeInvalidDuration},
		{name: "empty duration components", mutate: func(in *ActivateInput) { in.Duration = "PT" }, wantCode: apperrors.CodeInvalidDuration},
		{name: "missing role", mutate: func(in *ActivateInput) { in.RoleDefinitionID = "" }, wantCode: apperrors.CodeRoleKeyRequired},
		{name: "missing scope", mutate: func(in *ActivateInput) { in.DirectoryScopeID = "" }, wantCode: apperrors.CodeRoleKeyRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := newFakeDirectory()
			m := newLive(t, dir, signedIn, nil)
			require.NoError(t, m.Refresh(context.Background()))
			before := m.State()
			calls := atomic.LoadInt32(&dir.listCalls)

			in := incidentInput()
			tt.mutate(&in)
			err := m.Activate(context.Background(), in)

			appErr, ok := apperrors.IsAppError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, appErr.Code)
			assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
			assert.Empty(t, dir.activations)
			assert.Zero(t, dir.principalCalls)
			assert.Equal(t, calls, atomic.LoadInt32(&dir.listCalls))
			assert.Equal(t, before, m.State())
		})
	}
}

func TestLiveManager_ActivateAuthorizationFailure(t *testing.T) {
	dir := newFakeDirectory()
	dir.activateErr = apperrors.Wrap(&directory.APIError{StatusCode: http.StatusForbidden, Code: "Authorization_RequestDenied", Message: "Insufficient privileges"},
		apperrors.CodeDirectoryForbidden, "directory denied the request", http.StatusForbidden)
	m := newLive(t, dir, signedIn, nil)
	require.NoError(t, m.Refresh(context.Background()))
	before := m.State()

	err := m.Activate(context.Background(), incidentInput())
	require.Error(t, err)

	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeActivationFailed, appErr.Code)
	assert.Equal(t, http.StatusForbidden, appErr.HTTPStatus)
	var apiErr *directory.APIError
	assert.True(t, errors.As(err, &apiErr))

	st := m.State()
	assert.False(t, st.IsMutating)
	assert.Contains(t, st.MutationError, "Insufficient privileges")
	assert.Equal(t, before.EligibleRoles, st.EligibleRoles)
	assert.Equal(t, before.ActiveRoles, st.ActiveRoles)
}

func TestLiveManager_MutationErrorClearedByNextMutation(t *testing.T) {
	dir := newFakeDirectory()
	dir.activateErr = errors.New("boom")
	m := newLive(t, dir, signedIn, nil)

	require.Error(t, m.Activate(context.Background(), incidentInput()))
	assert.NotEmpty(t, m.State().MutationError)

	dir.mu.Lock()
	dir.activateErr = nil
	dir.mu.Unlock()
	require.NoError(t, m.Activate(context.Background(), incidentInput()))
	assert.Empty(t, m.State().MutationError)
}

func TestLiveManager_UnauthenticatedMutationsAreNoOps(t *testing.T) {
	dir := newFakeDirectory()
	m := newLive(t, dir, fakeAccounts{}, nil)

	require.NoError(t, m.Activate(context.Background(), incidentInput()))
	require.NoError(t, m.Deactivate(context.Background(), "role-def-1", "/"))

	assert.Empty(t, dir.activations)
	assert.Empty(t, dir.deactivations)
	assert.Zero(t, dir.principalCalls)
	assert.False(t, m.State().IsMutating)
}

func TestLiveManager_SecondConcurrentMutationRejected(t *testing.T) {
	dir := newFakeDirectory()
	entered := make(chan struct{})
	release := make(chan struct{})
	dir.activateFn = func(context.Context) error {
		close(entered)
		<-release
		return nil
	}
	m := newLive(t, dir, signedIn, nil)

	first := make(chan error, 1)
	go func() { first <- m.Activate(context.Background(), incidentInput()) }()
	<-entered

	assert.True(t, m.State().IsMutating)
	err := m.Deactivate(context.Background(), "role-def-3", "/")
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeMutationInFlight, appErr.Code)
	assert.Equal(t, http.StatusConflict, appErr.HTTPStatus)
	assert.Empty(t, dir.deactivations)

	close(release)
	require.NoError(t, <-first)
	st := m.State()
	assert.False(t, st.IsMutating)
	assert.Empty(t, st.MutationError)
}

func TestLiveManager_PrincipalResolvedOnce(t *testing.T) {
	dir := newFakeDirectory()
	m := newLive(t, dir, signedIn, nil)

	require.NoError(t, m.Activate(context.Background(), incidentInput()))
	require.NoError(t, m.Deactivate(context.Background(), "role-def-1", "/"))

	assert.Equal(t, 1, dir.principalCalls)
	require.Len(t, dir.deactivations, 1)
}

func TestLiveManager_PrincipalFailureFailsMutation(t *testing.T) {
	dir := newFakeDirectory()
	dir.principalErr = errors.New("me endpoint down")
	m := newLive(t, dir, signedIn, nil)

	err := m.Activate(context.Background(), incidentInput())
	require.Error(t, err)
	assert.Empty(t, dir.activations)
	assert.Contains(t, m.State().MutationError, "me endpoint down")
}

func TestLiveManager_RefreshFailureAfterActivationStillSucceeds(t *testing.T) {
	dir := newFakeDirectory()
	m := newLive(t, dir, signedIn, nil)
	dir.activateFn = func(context.Context) error {
		dir.setListErr(errors.New("list throttled"))
		return nil
	}

	require.NoError(t, m.Activate(context.Background(), incidentInput()))

	st := m.State()
	assert.Empty(t, st.MutationError)
	assert.Contains(t, st.LastError, "list throttled")
}

func TestLiveManager_DeactivateRestoresEligibility(t *testing.T) {
	dir := newFakeDirectory()
	m := newLive(t, dir, signedIn, nil)
	require.NoError(t, m.Activate(context.Background(), incidentInput()))
	require.Contains(t, keysOfActive(m.State().ActiveRoles), keyGlobal)

	require.NoError(t, m.Deactivate(context.Background(), "role-def-1", "/"))

	st := m.State()
	assert.NotContains(t, keysOfActive(st.ActiveRoles), keyGlobal)
	assert.Contains(t, keysOfEligible(st.EligibleRoles), keyGlobal)
	assert.Equal(t, []domain.RoleKey{keyGlobal}, dir.deactivations)
}

func TestLiveManager_DeactivateFailure(t *testing.T) {
	dir := newFakeDirectory()
	m := newLive(t, dir, signedIn, nil)
	require.NoError(t, m.Activate(context.Background(), incidentInput()))
	before := m.State()

	dir.mu.Lock()
	dir.deactivateErr = errors.New("policy requires approval")
	dir.mu.Unlock()

	err := m.Deactivate(context.Background(), "role-def-1", "/")
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeDeactivationFailed, appErr.Code)

	st := m.State()
	assert.Contains(t, st.MutationError, "policy requires approval")
	assert.Equal(t, before.ActiveRoles, st.ActiveRoles)
}

func TestLiveManager_DeactivateRequiresKey(t *testing.T) {
	dir := newFakeDirectory()
	m := newLive(t, dir, signedIn, nil)

	err := m.Deactivate(context.Background(), "role-def-1", "")
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeRoleKeyRequired, appErr.Code)
	assert.Empty(t, dir.deactivations)
}

func TestLiveManager_EmitsRoleEvents(t *testing.T) {
	events := domain.NewEventDispatcher()
	var mu sync.Mutex
	var seen []domain.EventType
	record := func(_ context.Context, ev *domain.RoleEvent) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ev.EventType)
		assert.NotEmpty(t, ev.EventID)
		return nil
	}
	events.Register(record,
		domain.EventRoleActivationRequested, domain.EventRoleActivated, domain.EventRoleActivationFailed,
		domain.EventRoleDeactivationRequested, domain.EventRoleDeactivated)

	dir := newFakeDirectory()
	m := newLive(t, dir, signedIn, events)
	require.NoError(t, m.Activate(context.Background(), incidentInput()))
	require.NoError(t, m.Deactivate(context.Background(), "role-def-1", "/"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []domain.EventType{
		domain.EventRoleActivationRequested,
		domain.EventRoleActivated,
		domain.EventRoleDeactivationRequested,
		domain.EventRoleDeactivated,
	}, seen)
}

func TestLiveManager_SubscribeReceivesSnapshots(t *testing.T) {
	dir := newFakeDirectory()
	m := newLive(t, dir, signedIn, nil)

	var mu sync.Mutex
	var states []State
	unsubscribe := m.Subscribe(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	})

	require.NoError(t, m.Refresh(context.Background()))

	mu.Lock()
	require.Len(t, states, 2)
	assert.True(t, states[0].IsLoading)
	assert.False(t, states[1].IsLoading)
	assert.Len(t, states[1].EligibleRoles, 2)
	// Snapshots are copies.
	states[1].EligibleRoles[0].RoleDefinition.DisplayName = "mutated"
	mu.Unlock()
	assert.Equal(t, "Global Administrator", m.State().EligibleRoles[0].RoleDefinition.DisplayName)

	unsubscribe()
	unsubscribe()
	require.NoError(t, m.Refresh(context.Background()))
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, states, 2)
}

func TestNormalizeActive(t *testing.T) {
	start := testNow.Add(-30 * time.Minute)
	fetchedAt := testNow

	withSchedule := func(info *domain.ScheduleInfo) domain.AssignmentSchedule {
		return domain.AssignmentSchedule{
			ID: "a", RoleDefinitionID: "rd", DirectoryScopeID: "/",
			AssignmentType: domain.AssignmentActivated, ScheduleInfo: info,
		}
	}

	tests := []struct {
		name     string
		in       domain.AssignmentSchedule
		wantEnd  time.Time
		wantSpan string
	}{
		{
			name:     "end from duration",
			in:       withSchedule(&domain.ScheduleInfo{StartDateTime: &start, Expiration: &domain.Expiration{Duration: "PT2H30M"}}),
			wantEnd:  start.Add(2*time.Hour + 30*time.Minute),
			wantSpan: "PT2H30M",
		},
		{
			name:     "unusable duration falls back to eight hours",
			in:       withSchedule(&domain.ScheduleInfo{StartDateTime: &start, Expiration: &domain.Expiration{Duration: "P1D"}}),
			wantEnd:  start.Add(8 * time.Hour),
			wantSpan: "P1D",
		},
		{
			name:     "missing duration derived from end",
			in:       withSchedule(&domain.ScheduleInfo{StartDateTime: &start, Expiration: &domain.Expiration{}}),
			wantEnd:  start.Add(8 * time.Hour),
			wantSpan: "PT8H",
		},
		{
			name:    "missing start uses fetch time",
			in:      withSchedule(nil),
			wantEnd: fetchedAt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := normalizeActive([]domain.AssignmentSchedule{tt.in}, fetchedAt)
			require.Len(t, out, 1)
			exp := out[0].ScheduleInfo.Expiration
			assert.Equal(t, domain.ExpirationAfterDuration, exp.Type)
			require.NotNil(t, exp.EndDateTime)
			assert.Equal(t, tt.wantEnd, *exp.EndDateTime)
			assert.Equal(t, tt.wantSpan, exp.Duration)
		})
	}

	t.Run("assigned roles untouched", func(t *testing.T) {
		in := domain.AssignmentSchedule{ID: "p", AssignmentType: domain.AssignmentAssigned}
		out := normalizeActive([]domain.AssignmentSchedule{in}, fetchedAt)
		assert.Nil(t, out[0].ScheduleInfo)
	})

	t.Run("input not modified", func(t *testing.T) {
		in := withSchedule(&domain.ScheduleInfo{StartDateTime: &start, Expiration: &domain.Expiration{}})
		normalizeActive([]domain.AssignmentSchedule{in}, fetchedAt)
		assert.Nil(t, in.ScheduleInfo.Expiration.EndDateTime)
	})
}
