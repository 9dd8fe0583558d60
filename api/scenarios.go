/*
scenarios.go - Demo scenario loaders

PURPOSE:

	Seeds realistic data through the leave service so the API can be
	explored without hand-building employees and policies. Every record is
	created through the same operations the API exposes, so a scenario
	also exercises the validation and balance rules.

AVAILABLE SCENARIOS:

	annual-leave: Manager and two engineers, monthly accrual, one pending request
	sick-leave:   Sick and unpaid leave, recurring holidays, a blocked period
	delegation:   A manager away, their delegate approving a request

HOW SCENARIOS WORK:
 1. Create leave types from factory presets
 2. Create employees
 3. Ensure entitlements and run accruals
 4. Submit and move requests through the lifecycle

NOTE:

	Scenarios add to the current store; they never delete. Request dates
	are relative to today so notice periods hold.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "annual-leave"}

SEE ALSO:
  - factory/presets.go: Leave type JSON definitions
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "annual-leave",
		Name:        "Annual Leave",
		Description: "Monthly accrual rounded down, carry-forward cap, one pending request",
	},
	{
		ID:          "sick-leave",
		Name:        "Sick Leave",
		Description: "Sick leave with yearly limits, finalized unpaid leave, recurring holidays and a blocked period",
	},
	{
		ID:          "delegation",
		Name:        "Delegated Approval",
		Description: "A manager delegates approval authority; the delegate approves and HR finalizes",
	},
}

// ScenarioResult lists what a scenario created.
type ScenarioResult struct {
	ScenarioID   string   `json:"scenario_id"`
	EmployeeIDs  []string `json:"employee_ids"`
	LeaveTypeIDs []string `json:"leave_type_ids"`
	RequestIDs   []string `json:"request_ids,omitempty"`
}

func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.loadScenario(r.Context(), req.ScenarioID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) loadScenario(ctx context.Context, id string) (*ScenarioResult, error) {
	s := &seeder{svc: h.Service, ctx: ctx, result: &ScenarioResult{ScenarioID: id}, today: generic.Today()}
	var err error
	switch id {
	case "annual-leave":
		err = h.loadAnnualLeaveScenario(s)
	case "sick-leave":
		err = h.loadSickLeaveScenario(s)
	case "delegation":
		err = h.loadDelegationScenario(s)
	default:
		return nil, &generic.NotFoundError{Kind: "scenario", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("load scenario %s: %w", id, err)
	}
	return s.result, nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadAnnualLeaveScenario(s *seeder) error {
	annual := s.leaveType(factory.AnnualLeaveJSON("AL", "Annual Leave", 21, 5))
	manager := s.employee("Grace Hopper", "", "Engineering Manager", s.today.AddDate(-6, 0, 0))
	ada := s.employee("Ada Lovelace", manager, "Engineer", s.today.AddDate(-3, 0, 0))
	alan := s.employee("Alan Turing", manager, "Engineer", s.today.AddDate(0, -4, 0))

	for _, emp := range []string{manager, ada, alan} {
		ent := s.entitlement(emp, annual, "21")
		for month := 0; month < 6; month++ {
			s.accrue(ent)
		}
	}

	start := nextWeekday(s.today.AddDate(0, 0, 14))
	s.request(ada, annual, start, start.AddDate(0, 0, 4), "Summer holiday")
	return s.err
}

func (h *Handler) loadSickLeaveScenario(s *seeder) error {
	sick := s.leaveType(factory.SickLeaveJSON("SL", "Sick Leave"))
	unpaid := s.leaveType(factory.UnpaidLeaveJSON("UL", "Unpaid Leave", 14))
	manager := s.employee("Margaret Hamilton", "", "Director", s.today.AddDate(-8, 0, 0))
	emp := s.employee("Katherine Johnson", manager, "Analyst", s.today.AddDate(-2, 0, 0))
	s.entitlement(emp, sick, "0")
	s.entitlement(emp, unpaid, "0")

	// Sick leave needs a supporting document, so the walked-through
	// request is unpaid leave, past its 14 days of notice.
	start := nextWeekday(s.today.AddDate(0, 0, 21))
	id := s.request(emp, unpaid, start, start.AddDate(0, 0, 2), "Family matters")
	s.approve(id, manager)
	s.finalize(id)
	if s.err != nil || h.Calendar == nil {
		return s.err
	}

	year := s.today.Year()
	holidays := []*leave.Holiday{
		{Name: "New Year's Day", Date: generic.Date(year, time.January, 1), Recurrence: "FREQ=YEARLY"},
		{Name: "Christmas Day", Date: generic.Date(year, time.December, 25), Recurrence: "FREQ=YEARLY"},
	}
	for _, hol := range holidays {
		if err := h.Calendar.AddHoliday(s.ctx, hol); err != nil {
			return err
		}
	}
	return h.Calendar.AddBlockedPeriod(s.ctx, &leave.BlockedPeriod{
		Name:   "Inventory freeze",
		From:   s.today.AddDate(0, 0, 60),
		To:     s.today.AddDate(0, 0, 64),
		Reason: "All hands for the yearly inventory",
	})
}

func (h *Handler) loadDelegationScenario(s *seeder) error {
	annual := s.leaveType(factory.AnnualLeaveJSON("AL-D", "Annual Leave (delegation demo)", 24, 0))
	manager := s.employee("Barbara Liskov", "", "Head of Platform", s.today.AddDate(-10, 0, 0))
	delegate := s.employee("Frances Allen", manager, "Staff Engineer", s.today.AddDate(-7, 0, 0))
	emp := s.employee("Edsger Dijkstra", manager, "Engineer", s.today.AddDate(-1, 0, 0))

	ent := s.entitlement(emp, annual, "24")
	for month := 0; month < 3; month++ {
		s.accrue(ent)
	}

	if s.err == nil {
		_, s.err = s.svc.CreateDelegation(s.ctx, leave.CreateDelegationInput{
			ManagerID:  manager,
			DelegateID: delegate,
			From:       s.today,
			To:         s.today.AddDate(0, 0, 30),
		})
	}

	start := nextWeekday(s.today.AddDate(0, 0, 10))
	id := s.request(emp, annual, start, start.AddDate(0, 0, 1), "Conference")
	s.approve(id, delegate)
	s.finalize(id)
	return s.err
}

// =============================================================================
// SEEDER - Stops at the first error; later calls become no-ops
// =============================================================================

type seeder struct {
	svc    *leave.Service
	ctx    context.Context
	result *ScenarioResult
	today  time.Time
	err    error
}

func (s *seeder) leaveType(jsonStr string) string {
	if s.err != nil {
		return ""
	}
	lt, err := factory.ParseLeaveType(jsonStr)
	if err != nil {
		s.err = err
		return ""
	}
	if s.err = s.svc.CreateLeaveType(s.ctx, lt); s.err != nil {
		return ""
	}
	s.result.LeaveTypeIDs = append(s.result.LeaveTypeIDs, lt.ID)
	return lt.ID
}

func (s *seeder) employee(name, managerID, position string, hired time.Time) string {
	if s.err != nil {
		return ""
	}
	e := &leave.Employee{
		Name:         name,
		DepartmentID: "engineering",
		ManagerID:    managerID,
		Position:     position,
		ContractType: "permanent",
		HireDate:     generic.TruncateDay(hired),
	}
	if s.err = s.svc.SaveEmployee(s.ctx, e); s.err != nil {
		return ""
	}
	s.result.EmployeeIDs = append(s.result.EmployeeIDs, e.ID)
	return e.ID
}

func (s *seeder) entitlement(employeeID, leaveTypeID, yearly string) string {
	if s.err != nil {
		return ""
	}
	ent, err := s.svc.EnsureEntitlement(s.ctx, employeeID, leaveTypeID, decimal.RequireFromString(yearly))
	if err != nil {
		s.err = err
		return ""
	}
	return ent.ID
}

// accrue adds one policy-rate accrual.
func (s *seeder) accrue(entitlementID string) {
	if s.err != nil {
		return
	}
	_, s.err = s.svc.Accrue(s.ctx, entitlementID, decimal.Zero, "scenario")
}

func (s *seeder) request(employeeID, leaveTypeID string, from, to time.Time, reason string) string {
	if s.err != nil {
		return ""
	}
	req, err := s.svc.CreateRequest(s.ctx, leave.CreateRequestInput{
		EmployeeID:  employeeID,
		LeaveTypeID: leaveTypeID,
		From:        from,
		To:          to,
		Reason:      reason,
	})
	if err != nil {
		s.err = err
		return ""
	}
	s.result.RequestIDs = append(s.result.RequestIDs, req.ID)
	return req.ID
}

func (s *seeder) approve(requestID, actor string) {
	if s.err != nil {
		return
	}
	_, s.err = s.svc.Approve(s.ctx, requestID, actor, "")
}

func (s *seeder) finalize(requestID string) {
	if s.err != nil {
		return
	}
	_, s.err = s.svc.Finalize(s.ctx, requestID, "hr-scenario")
}

// nextWeekday returns t, or the following Monday when t is a weekend day.
func nextWeekday(t time.Time) time.Time {
	for generic.IsWeekend(t) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}
