package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

func notFound(kind, id string) error { return &generic.NotFoundError{Kind: kind, ID: id} }

// =============================================================================
// EMPLOYEES
// =============================================================================

func (m *Store) SaveEmployee(_ context.Context, e *leave.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[e.ID] = *e
	return nil
}

func (m *Store) GetEmployee(_ context.Context, id string) (*leave.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.employees[id]
	if !ok {
		return nil, notFound("employee", id)
	}
	return &e, nil
}

func (m *Store) ListEmployees(_ context.Context, f leave.EmployeeFilter) ([]leave.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []leave.Employee
	for _, e := range m.employees {
		if f.DepartmentID != "" && e.DepartmentID != f.DepartmentID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

func (m *Store) SaveLeaveType(_ context.Context, lt *leave.LeaveType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveTypes[lt.ID] = cloneLeaveType(*lt)
	return nil
}

func (m *Store) GetLeaveType(_ context.Context, id string) (*leave.LeaveType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lt, ok := m.leaveTypes[id]
	if !ok {
		return nil, notFound("leave type", id)
	}
	lt = cloneLeaveType(lt)
	return &lt, nil
}

func (m *Store) ListLeaveTypes(_ context.Context) ([]leave.LeaveType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]leave.LeaveType, 0, len(m.leaveTypes))
	for _, lt := range m.leaveTypes {
		result = append(result, cloneLeaveType(lt))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func cloneLeaveType(lt leave.LeaveType) leave.LeaveType {
	lt.Attachments.AllowedTypes = slices.Clone(lt.Attachments.AllowedTypes)
	lt.Policy.Eligibility.AllowedPositions = slices.Clone(lt.Policy.Eligibility.AllowedPositions)
	lt.Policy.Eligibility.AllowedContractTypes = slices.Clone(lt.Policy.Eligibility.AllowedContractTypes)
	return lt
}

// =============================================================================
// ENTITLEMENTS
// =============================================================================

func (m *Store) CreateEntitlement(_ context.Context, e *leave.Entitlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.entitlements {
		if existing.EmployeeID == e.EmployeeID && existing.LeaveTypeID == e.LeaveTypeID {
			return generic.NewValidationError("leave_type_id", "entitlement already exists for employee %s", e.EmployeeID)
		}
	}
	m.entitlements[e.ID] = cloneEntitlement(*e)
	return nil
}

func (m *Store) GetEntitlement(_ context.Context, id string) (*leave.Entitlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entitlements[id]
	if !ok {
		return nil, notFound("entitlement", id)
	}
	e = cloneEntitlement(e)
	return &e, nil
}

func (m *Store) FindEntitlement(_ context.Context, employeeID, leaveTypeID string) (*leave.Entitlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entitlements {
		if string(e.EmployeeID) == employeeID && string(e.LeaveTypeID) == leaveTypeID {
			e = cloneEntitlement(e)
			return &e, nil
		}
	}
	return nil, notFound("entitlement", employeeID+"/"+leaveTypeID)
}

func (m *Store) ListEntitlements(_ context.Context, f leave.EntitlementFilter) ([]leave.Entitlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []leave.Entitlement
	for _, e := range m.entitlements {
		if f.EmployeeID != "" && string(e.EmployeeID) != f.EmployeeID {
			continue
		}
		if f.LeaveTypeID != "" && string(e.LeaveTypeID) != f.LeaveTypeID {
			continue
		}
		result = append(result, cloneEntitlement(e))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Store) IncrementEntitlement(_ context.Context, id string, d leave.EntitlementDelta, at time.Time) (*leave.Entitlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entitlements[id]
	if !ok {
		return nil, notFound("entitlement", id)
	}
	e.AccruedActual = e.AccruedActual.Add(d.AccruedActual)
	e.CarryForward = e.CarryForward.Add(d.CarryForward)
	e.Taken = e.Taken.Add(d.Taken)
	e.Pending = e.Pending.Add(d.Pending)
	e.UpdatedAt = at
	m.entitlements[id] = e

	e = cloneEntitlement(e)
	return &e, nil
}

// SetEntitlementDerived leaves the counters to IncrementEntitlement.
func (m *Store) SetEntitlementDerived(_ context.Context, id string, f leave.DerivedFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entitlements[id]
	if !ok {
		return notFound("entitlement", id)
	}
	e.AccruedRounded = f.AccruedRounded
	e.Remaining = f.Remaining
	if f.LastAccrualDate != nil {
		e.LastAccrualDate = cloneTime(f.LastAccrualDate)
	}
	if f.NextResetDate != nil {
		e.NextResetDate = cloneTime(f.NextResetDate)
	}
	e.Pending = generic.ClampZero(e.Pending)
	e.UpdatedAt = f.UpdatedAt
	m.entitlements[id] = e
	return nil
}

func (m *Store) UpdateEntitlement(_ context.Context, e *leave.Entitlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entitlements[e.ID]; !ok {
		return notFound("entitlement", e.ID)
	}
	m.entitlements[e.ID] = cloneEntitlement(*e)
	return nil
}

func cloneEntitlement(e leave.Entitlement) leave.Entitlement {
	e.LastAccrualDate = cloneTime(e.LastAccrualDate)
	e.NextResetDate = cloneTime(e.NextResetDate)
	return e
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// =============================================================================
// REQUESTS
// =============================================================================

func (m *Store) CreateRequest(_ context.Context, r *leave.LeaveRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[r.ID] = cloneRequest(*r)
	return nil
}

func (m *Store) GetRequest(_ context.Context, id string) (*leave.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, notFound("leave request", id)
	}
	r = cloneRequest(r)
	return &r, nil
}

func (m *Store) UpdateRequest(_ context.Context, r *leave.LeaveRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[r.ID]; !ok {
		return notFound("leave request", r.ID)
	}
	m.requests[r.ID] = cloneRequest(*r)
	return nil
}

func (m *Store) ListRequests(_ context.Context, f leave.RequestFilter) ([]leave.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []leave.LeaveRequest
	for _, r := range m.requests {
		if matchRequest(&r, f) {
			result = append(result, cloneRequest(r))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].From.Equal(result[j].From) {
			return result[i].ID < result[j].ID
		}
		return result[i].From.Before(result[j].From)
	})
	return result, nil
}

// matchRequest reports whether r passes every set field of f.
func matchRequest(r *leave.LeaveRequest, f leave.RequestFilter) bool {
	if f.EmployeeID != "" && string(r.EmployeeID) != f.EmployeeID {
		return false
	}
	if f.LeaveTypeID != "" && string(r.LeaveTypeID) != f.LeaveTypeID {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, r.Status) {
		return false
	}
	if f.Overlapping != nil && !r.Period().Overlaps(*f.Overlapping) {
		return false
	}
	if f.CreatedBefore != nil && !r.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	return true
}

func cloneRequest(r leave.LeaveRequest) leave.LeaveRequest {
	flow := make([]leave.ApprovalStep, len(r.ApprovalFlow))
	for i, step := range r.ApprovalFlow {
		step.DecidedAt = cloneTime(step.DecidedAt)
		flow[i] = step
	}
	r.ApprovalFlow = flow
	return r
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

func (m *Store) SaveAdjustment(_ context.Context, a *leave.Adjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adjustments[a.EntitlementID] = append(m.adjustments[a.EntitlementID], *a)
	return nil
}

func (m *Store) ListAdjustments(_ context.Context, entitlementID string) ([]leave.Adjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.adjustments[entitlementID]), nil
}

// =============================================================================
// DELEGATIONS
// =============================================================================

func (m *Store) SaveDelegation(_ context.Context, d *leave.Delegation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delegations[d.ID] = *d
	return nil
}

func (m *Store) ListDelegations(_ context.Context, f leave.DelegationFilter) ([]leave.Delegation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []leave.Delegation
	for _, d := range m.delegations {
		if f.ManagerID != "" && d.ManagerID != f.ManagerID {
			continue
		}
		if f.DelegateID != "" && d.DelegateID != f.DelegateID {
			continue
		}
		if f.ActiveAt != nil && !d.Period().Contains(*f.ActiveAt) {
			continue
		}
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].From.Before(result[j].From) })
	return result, nil
}

func (m *Store) DeleteDelegation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.delegations[id]; !ok {
		return notFound("delegation", id)
	}
	delete(m.delegations, id)
	return nil
}

// =============================================================================
// CALENDAR
// =============================================================================

func (m *Store) SaveHoliday(_ context.Context, h *leave.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holidays[h.ID] = *h
	return nil
}

func (m *Store) ListHolidays(_ context.Context) ([]leave.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]leave.Holiday, 0, len(m.holidays))
	for _, h := range m.holidays {
		result = append(result, h)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (m *Store) DeleteHoliday(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.holidays[id]; !ok {
		return notFound("holiday", id)
	}
	delete(m.holidays, id)
	return nil
}

func (m *Store) SaveBlockedPeriod(_ context.Context, b *leave.BlockedPeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocked[b.ID] = *b
	return nil
}

func (m *Store) ListBlockedPeriods(_ context.Context) ([]leave.BlockedPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]leave.BlockedPeriod, 0, len(m.blocked))
	for _, b := range m.blocked {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].From.Before(result[j].From) })
	return result, nil
}

func (m *Store) DeleteBlockedPeriod(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blocked[id]; !ok {
		return notFound("blocked period", id)
	}
	delete(m.blocked, id)
	return nil
}

// Compile-time interface checks.
var (
	_ leave.Store         = (*Store)(nil)
	_ leave.CalendarStore = (*Store)(nil)
	_ generic.Store       = (*Store)(nil)
	_ generic.RunStore    = (*Store)(nil)
)
