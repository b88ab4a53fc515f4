package pim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elevate.dev/elevate/internal/domain"
	apperrors "elevate.dev/elevate/internal/pkg/errors"
)

var keySecurity = domain.RoleKey{RoleDefinitionID: "role-def-2", DirectoryScopeID: "/"}

func newSimulated(t *testing.T, clock *fakeClock, latencies Latencies) *SimulatedManager {
	t.Helper()
	m, err := NewSimulatedManager(SimulatedOptions{Latencies: latencies, Now: clock.Now})
	require.NoError(t, err)
	return m
}

func TestDefaultFixtures(t *testing.T) {
	f, err := DefaultFixtures()
	require.NoError(t, err)
	assert.Equal(t, "demo-user", f.Principal.ID)
	require.Len(t, f.Roles, 5)
	for _, r := range f.Roles {
		assert.Equal(t, domain.DirectoryScopeRoot, r.Scope)
	}
	require.NotNil(t, f.Roles[1].Active)
	assert.Equal(t, time.Hour, f.Roles[1].Active.StartedAgo)
	assert.Equal(t, "PT8H", f.Roles[1].Active.Duration)
}

func TestParseFixtures_Rejects(t *testing.T) {
	tests := map[string]string{
		"no principal":     "roles: []",
		"role without id":  "principal: {id: u}\nroles:\n  - displayName: X",
		"duplicate role":   "principal: {id: u}\nroles:\n  - id: a\n  - id: a\n    scope: /",
		"invalid duration": "principal: {id: u}\nroles:\n  - id: a\n    active: {startedAgo: 1h, duration: 8h}",
		"not yaml":         "principal: [",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFixtures([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestSimulatedManager_InitialState(t *testing.T) {
	clock := newClock(testNow)
	m := newSimulated(t, clock, Latencies{})

	st := m.State()
	assert.Equal(t, []domain.RoleKey{
		{RoleDefinitionID: "role-def-1", DirectoryScopeID: "/"},
		{RoleDefinitionID: "role-def-3", DirectoryScopeID: "/"},
		{RoleDefinitionID: "role-def-4", DirectoryScopeID: "/"},
		{RoleDefinitionID: "role-def-5", DirectoryScopeID: "/"},
	}, keysOfEligible(st.EligibleRoles))

	require.Len(t, st.ActiveRoles, 1)
	a := st.ActiveRoles[0]
	assert.Equal(t, keySecurity, a.Key())
	assert.Equal(t, "Security Administrator", a.RoleDefinition.DisplayName)
	assert.Equal(t, domain.AssignmentActivated, a.AssignmentType)
	end, ok := a.EndDateTime()
	require.True(t, ok)
	assert.Equal(t, testNow.Add(7*time.Hour), end)

	acct, ok := m.Account()
	require.True(t, ok)
	assert.Equal(t, "demo-user", acct.ObjectID)
}

func TestSimulatedManager_ActivateIncidentScenario(t *testing.T) {
	clock := newClock(testNow)
	m := newSimulated(t, clock, Latencies{})

	require.NoError(t, m.Activate(context.Background(), incidentInput()))

	st := m.State()
	assert.NotContains(t, keysOfEligible(st.EligibleRoles), keyGlobal)
	require.Len(t, st.ActiveRoles, 2)

	a := st.ActiveRoles[1]
	assert.Equal(t, keyGlobal, a.Key())
	assert.Equal(t, domain.AssignmentActivated, a.AssignmentType)
	assert.Equal(t, domain.ExpirationAfterDuration, a.ScheduleInfo.Expiration.Type)
	assert.Equal(t, "PT1H", a.ScheduleInfo.Expiration.Duration)
	end, _ := a.EndDateTime()
	assert.Equal(t, testNow.Add(time.Hour), end)
	_, err := uuid.Parse(a.ID)
	assert.NoError(t, err)

	// Still holds after refresh.
	require.NoError(t, m.Refresh(context.Background()))
	assert.Contains(t, keysOfActive(m.State().ActiveRoles), keyGlobal)
	assert.NotContains(t, keysOfEligible(m.State().EligibleRoles), keyGlobal)
}

func TestSimulatedManager_MinuteOnlyDurationUsesDefaultHours(t *testing.T) {
	clock := newClock(testNow)
	m := newSimulated(t, clock, Latencies{})

	in := incidentInput()
	in.Duration = "PT30M"
	require.NoError(t, m.Activate(context.Background(), in))

	for _, a := range m.State().ActiveRoles {
		if a.Key() == keyGlobal {
			end, _ := a.EndDateTime()
			assert.Equal(t, testNow.Add(8*time.Hour), end)
			return
		}
	}
	t.Fatal("activation not found")
}

func TestSimulatedManager_DeactivateRestoresOriginalEligibility(t *testing.T) {
	clock := newClock(testNow)
	m := newSimulated(t, clock, Latencies{})

	require.NoError(t, m.Deactivate(context.Background(), "role-def-2", "/"))

	st := m.State()
	assert.Empty(t, st.ActiveRoles)
	require.Contains(t, keysOfEligible(st.EligibleRoles), keySecurity)
	for _, e := range st.EligibleRoles {
		if e.Key() == keySecurity {
			assert.Equal(t, "eligibility-role-def-2", e.ID)
			assert.Equal(t, "Security Administrator", e.RoleDefinition.DisplayName)
		}
	}
}

func TestSimulatedManager_ActivateThenDeactivateRoundTrip(t *testing.T) {
	clock := newClock(testNow)
	m := newSimulated(t, clock, Latencies{})
	initial := m.State()

	require.NoError(t, m.Activate(context.Background(), incidentInput()))
	require.NoError(t, m.Deactivate(context.Background(), "role-def-1", "/"))

	st := m.State()
	assert.ElementsMatch(t, keysOfEligible(initial.EligibleRoles), keysOfEligible(st.EligibleRoles))
	assert.Equal(t, keysOfActive(initial.ActiveRoles), keysOfActive(st.ActiveRoles))
}

func TestSimulatedManager_UnknownKeysAreNoOps(t *testing.T) {
	clock := newClock(testNow)
	m := newSimulated(t, clock, Latencies{})
	before := m.State()

	in := incidentInput()
	in.RoleDefinitionID = "role-def-404"
	require.NoError(t, m.Activate(context.Background(), in))
	require.NoError(t, m.Deactivate(context.Background(), "role-def-404", "/"))
	// Eligible but not active.
	require.NoError(t, m.Deactivate(context.Background(), "role-def-1", "/"))

	st := m.State()
	assert.Equal(t, before.EligibleRoles, st.EligibleRoles)
	assert.Equal(t, before.ActiveRoles, st.ActiveRoles)
	assert.Empty(t, st.MutationError)
}

func TestSimulatedManager_RefreshRestoresExpiredActivations(t *testing.T) {
	clock := newClock(testNow)
	m := newSimulated(t, clock, Latencies{})

	clock.Advance(7 * time.Hour)
	require.NoError(t, m.Refresh(context.Background()))

	st := m.State()
	assert.Empty(t, st.ActiveRoles)
	assert.Contains(t, keysOfEligible(st.EligibleRoles), keySecurity)
	require.NotNil(t, st.RefreshedAt)
	assert.Equal(t, testNow.Add(7*time.Hour), *st.RefreshedAt)
}

func TestSimulatedManager_Guards(t *testing.T) {
	clock := newClock(testNow)
	m := newSimulated(t, clock, Latencies{})
	before := m.State()

	in := incidentInput()
	in.Justification = "   "
	err := m.Activate(context.Background(), in)
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeJustificationRequired, appErr.Code)

	in = incidentInput()
	in.Duration = "bogus"
	err = m.Activate(context.Background(), in)
	appErr, ok = apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInvalidDuration, appErr.Code)

	// Too long to express as an expiry; must not land in the past.
	in = incidentInput()
	in.Duration = "PT3000000H"
	err = m.Activate(context.Background(), in)
	appErr, ok = apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInvalidDuration, appErr.Code)

	assert.Equal(t, before, m.State())
	require.NoError(t, m.Refresh(context.Background()))
	assert.Equal(t, before.ActiveRoles, m.State().ActiveRoles)
}

func TestSimulatedManager_LatencyHonoursCancellation(t *testing.T) {
	clock := newClock(testNow)
	m := newSimulated(t, clock, Latencies{Refresh: time.Hour, Activate: time.Hour, Deactivate: time.Hour})
	before := m.State()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, m.Activate(ctx, incidentInput()), context.Canceled)
	st := m.State()
	assert.False(t, st.IsMutating)
	assert.NotEmpty(t, st.MutationError)
	assert.Equal(t, before.ActiveRoles, st.ActiveRoles)

	assert.ErrorIs(t, m.Refresh(ctx), context.Canceled)
	st = m.State()
	assert.False(t, st.IsLoading)
	assert.NotEmpty(t, st.LastError)
	assert.Equal(t, before.EligibleRoles, st.EligibleRoles)
}

func TestSimulatedManager_SecondConcurrentMutationRejected(t *testing.T) {
	clock := newClock(testNow)
	m := newSimulated(t, clock, Latencies{Activate: 200 * time.Millisecond})

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		firstErr = m.Activate(context.Background(), incidentInput())
	}()

	require.Eventually(t, func() bool { return m.State().IsMutating }, time.Second, 5*time.Millisecond)

	err := m.Deactivate(context.Background(), "role-def-2", "/")
	appErr, ok := apperrors.IsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeMutationInFlight, appErr.Code)

	wg.Wait()
	require.NoError(t, firstErr)
	assert.Contains(t, keysOfActive(m.State().ActiveRoles), keySecurity)
	assert.Contains(t, keysOfActive(m.State().ActiveRoles), keyGlobal)
}
