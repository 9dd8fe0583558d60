/*
scenarios_test.go - Tests for the demo scenario loaders

PURPOSE:

	Each scenario must load cleanly through the service on a fresh store and
	leave the state its description promises. Scenario dates are relative
	to the real clock, so these tests run the service without a fixed one.
*/
package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/memory"
)

func setupScenarioHandler(t *testing.T) (*Handler, *memory.Store) {
	t.Helper()
	store := memory.New()
	cal := calendar.NewProvider(store)
	svc := leave.NewService(store,
		leave.WithLedger(generic.NewLedger(store)),
		leave.WithCalendar(cal),
	)
	return NewHandler(svc, cal, NewJobs(svc, store, nil), nil), store
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func TestScenario_AnnualLeave_AccruedAndPending(t *testing.T) {
	h, _ := setupScenarioHandler(t)
	ctx := context.Background()

	// WHEN: Loading the annual leave scenario
	result, err := h.loadScenario(ctx, "annual-leave")

	// THEN: Three employees hold six months of accrual and one request is pending
	require.NoError(t, err)
	assert.Len(t, result.EmployeeIDs, 3)
	require.Len(t, result.LeaveTypeIDs, 1)
	require.Len(t, result.RequestIDs, 1)

	for _, empID := range result.EmployeeIDs {
		ents, err := h.Service.ListEntitlements(ctx, empID)
		require.NoError(t, err)
		require.Len(t, ents, 1)
		assert.Equal(t, "10.5", ents[0].AccruedActual.String())
		assert.Equal(t, "10", ents[0].AccruedRounded.String())
	}

	req, err := h.Service.GetRequest(ctx, result.RequestIDs[0])
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, req.Status)
	assert.True(t, req.DurationDays.IsPositive())
}

func TestScenario_SickLeave_FinalizedUnpaidAndCalendar(t *testing.T) {
	h, store := setupScenarioHandler(t)
	ctx := context.Background()

	result, err := h.loadScenario(ctx, "sick-leave")

	require.NoError(t, err)
	assert.Len(t, result.LeaveTypeIDs, 2)
	require.Len(t, result.RequestIDs, 1)

	req, err := h.Service.GetRequest(ctx, result.RequestIDs[0])
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, req.Status)
	assert.True(t, req.IsFinalized())

	holidays, err := store.ListHolidays(ctx)
	require.NoError(t, err)
	assert.Len(t, holidays, 2)
	blocked, err := store.ListBlockedPeriods(ctx)
	require.NoError(t, err)
	assert.Len(t, blocked, 1)
}

func TestScenario_Delegation_DelegateApproves(t *testing.T) {
	h, _ := setupScenarioHandler(t)
	ctx := context.Background()

	result, err := h.loadScenario(ctx, "delegation")

	// THEN: The manager step was decided by the delegate, then HR finalized
	require.NoError(t, err)
	require.Len(t, result.EmployeeIDs, 3)
	require.Len(t, result.RequestIDs, 1)
	delegate := result.EmployeeIDs[1]

	req, err := h.Service.GetRequest(ctx, result.RequestIDs[0])
	require.NoError(t, err)
	assert.True(t, req.IsFinalized())
	require.NotEmpty(t, req.ApprovalFlow)
	assert.Equal(t, leave.RoleManager, req.ApprovalFlow[0].Role)
	assert.Equal(t, delegate, req.ApprovalFlow[0].DecidedBy)

	ents, err := h.Service.ListEntitlements(ctx, result.EmployeeIDs[2])
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.True(t, ents[0].Taken.Equal(req.DurationDays))
}

func TestScenario_LoadedTwice_Additive(t *testing.T) {
	h, store := setupScenarioHandler(t)
	ctx := context.Background()

	_, err := h.loadScenario(ctx, "annual-leave")
	require.NoError(t, err)
	_, err = h.loadScenario(ctx, "annual-leave")
	require.NoError(t, err)

	employees, err := store.ListEmployees(ctx, leave.EmployeeFilter{})
	require.NoError(t, err)
	assert.Len(t, employees, 6)
}

// =============================================================================
// HTTP
// =============================================================================

func TestLoadScenario_Unknown_NotFound(t *testing.T) {
	h, _ := setupScenarioHandler(t)
	router := NewRouter(h, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/scenarios/load", strings.NewReader(`{"scenario_id":"nope"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoadScenario_OverHTTP_Created(t *testing.T) {
	h, _ := setupScenarioHandler(t)
	router := NewRouter(h, nil)

	list := httptest.NewRecorder()
	router.ServeHTTP(list, httptest.NewRequest(http.MethodGet, "/api/scenarios", nil))
	require.Equal(t, http.StatusOK, list.Code)
	assert.Len(t, decodeAs[[]ScenarioDTO](t, list), len(scenarios))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/scenarios/load", strings.NewReader(`{"scenario_id":"delegation"}`)))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decodeAs[ScenarioResult](t, rec)
	assert.Equal(t, "delegation", result.ScenarioID)
	assert.Len(t, result.EmployeeIDs, 3)
}
