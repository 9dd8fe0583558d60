package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// EMPLOYEES
// =============================================================================

const employeeColumns = `id, name, email, department_id, manager_id, position, contract_type,
	status, hire_date, contract_start_date, first_vacation_date`

func (s *Store) SaveEmployee(ctx context.Context, e *leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (`+employeeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			department_id = excluded.department_id,
			manager_id = excluded.manager_id,
			position = excluded.position,
			contract_type = excluded.contract_type,
			status = excluded.status,
			hire_date = excluded.hire_date,
			contract_start_date = excluded.contract_start_date,
			first_vacation_date = excluded.first_vacation_date`,
		e.ID, e.Name, nullString(e.Email), nullString(e.DepartmentID), nullString(e.ManagerID),
		nullString(e.Position), nullString(e.ContractType), e.Status, formatDate(e.HireDate),
		nullDate(e.ContractStartDate), nullDate(e.FirstVacationDate),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (s *Store) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id)
	e, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("employee", id)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) ListEmployees(ctx context.Context, f leave.EmployeeFilter) ([]leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+employeeColumns+` FROM employees
		WHERE (? = '' OR department_id = ?) AND (? = '' OR status = ?)
		ORDER BY id`,
		f.DepartmentID, f.DepartmentID, f.Status, f.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var result []leave.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

func scanEmployee(r rowScanner) (*leave.Employee, error) {
	var e leave.Employee
	var hireDate string
	var email, dept, manager, position, contract, contractStart, firstVacation sql.NullString
	if err := r.Scan(&e.ID, &e.Name, &email, &dept, &manager, &position, &contract,
		&e.Status, &hireDate, &contractStart, &firstVacation); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan employee: %w", err)
	}
	e.Email, e.DepartmentID, e.ManagerID = email.String, dept.String, manager.String
	e.Position, e.ContractType = position.String, contract.String

	var err error
	if e.HireDate, err = parseDate(hireDate); err != nil {
		return nil, fmt.Errorf("employee %s hire_date: %w", e.ID, err)
	}
	if e.ContractStartDate, err = scanNullDate(contractStart); err != nil {
		return nil, err
	}
	if e.FirstVacationDate, err = scanNullDate(firstVacation); err != nil {
		return nil, err
	}
	return &e, nil
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

const leaveTypeColumns = `id, code, name, category, deductible, requires_attachment,
	policy_json, limits_json, attachments_json, created_at, updated_at`

func (s *Store) SaveLeaveType(ctx context.Context, lt *leave.LeaveType) error {
	policyJSON, err := json.Marshal(lt.Policy)
	if err != nil {
		return fmt.Errorf("marshal policy: %w", err)
	}
	limitsJSON, err := json.Marshal(lt.Limits)
	if err != nil {
		return fmt.Errorf("marshal limits: %w", err)
	}
	attachmentsJSON, err := json.Marshal(lt.Attachments)
	if err != nil {
		return fmt.Errorf("marshal attachment rules: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO leave_types (`+leaveTypeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			category = excluded.category,
			deductible = excluded.deductible,
			requires_attachment = excluded.requires_attachment,
			policy_json = excluded.policy_json,
			limits_json = excluded.limits_json,
			attachments_json = excluded.attachments_json,
			updated_at = excluded.updated_at`,
		lt.ID, nullString(lt.Code), lt.Name, lt.Category, lt.Deductible, lt.RequiresAttachment,
		string(policyJSON), string(limitsJSON), string(attachmentsJSON),
		formatTime(lt.CreatedAt), formatTime(lt.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save leave type: %w", err)
	}
	return nil
}

func (s *Store) GetLeaveType(ctx context.Context, id string) (*leave.LeaveType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+leaveTypeColumns+` FROM leave_types WHERE id = ?`, id)
	lt, err := scanLeaveType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("leave type", id)
	}
	return lt, err
}

func (s *Store) ListLeaveTypes(ctx context.Context) ([]leave.LeaveType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+leaveTypeColumns+` FROM leave_types ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave types: %w", err)
	}
	defer rows.Close()

	var result []leave.LeaveType
	for rows.Next() {
		lt, err := scanLeaveType(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *lt)
	}
	return result, rows.Err()
}

func scanLeaveType(r rowScanner) (*leave.LeaveType, error) {
	var lt leave.LeaveType
	var code sql.NullString
	var policyJSON, limitsJSON, attJSON, createdAt, updatedAt string
	if err := r.Scan(&lt.ID, &code, &lt.Name, &lt.Category, &lt.Deductible, &lt.RequiresAttachment,
		&policyJSON, &limitsJSON, &attJSON, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan leave type: %w", err)
	}
	lt.Code = code.String

	if err := json.Unmarshal([]byte(policyJSON), &lt.Policy); err != nil {
		return nil, fmt.Errorf("leave type %s policy: %w", lt.ID, err)
	}
	if err := json.Unmarshal([]byte(limitsJSON), &lt.Limits); err != nil {
		return nil, fmt.Errorf("leave type %s limits: %w", lt.ID, err)
	}
	if err := json.Unmarshal([]byte(attJSON), &lt.Attachments); err != nil {
		return nil, fmt.Errorf("leave type %s attachment rules: %w", lt.ID, err)
	}

	var err error
	if lt.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if lt.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &lt, nil
}

// =============================================================================
// ENTITLEMENTS
// =============================================================================

const entitlementColumns = `id, employee_id, leave_type_id, yearly_entitlement, accrued_actual,
	accrued_rounded, carry_forward, taken, pending, remaining, last_accrual_date, next_reset_date,
	created_at, updated_at`

func (s *Store) CreateEntitlement(ctx context.Context, e *leave.Entitlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entitlements (`+entitlementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.EmployeeID, e.LeaveTypeID, e.YearlyEntitlement.String(), e.AccruedActual.String(),
		e.AccruedRounded.String(), e.CarryForward.String(), e.Taken.String(), e.Pending.String(),
		e.Remaining.String(), nullDate(e.LastAccrualDate), nullDate(e.NextResetDate),
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.NewValidationError("leave_type_id", "entitlement already exists for employee %s", e.EmployeeID)
		}
		return fmt.Errorf("failed to create entitlement: %w", err)
	}
	return nil
}

func (s *Store) GetEntitlement(ctx context.Context, id string) (*leave.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEntitlement(ctx, s.db, id)
}

func getEntitlement(ctx context.Context, q querier, id string) (*leave.Entitlement, error) {
	row := q.QueryRowContext(ctx, `SELECT `+entitlementColumns+` FROM entitlements WHERE id = ?`, id)
	e, err := scanEntitlement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("entitlement", id)
	}
	return e, err
}

func (s *Store) FindEntitlement(ctx context.Context, employeeID, leaveTypeID string) (*leave.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+entitlementColumns+` FROM entitlements
		WHERE employee_id = ? AND leave_type_id = ?`, employeeID, leaveTypeID)
	e, err := scanEntitlement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("entitlement", employeeID+"/"+leaveTypeID)
	}
	return e, err
}

func (s *Store) ListEntitlements(ctx context.Context, f leave.EntitlementFilter) ([]leave.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+entitlementColumns+` FROM entitlements
		WHERE (? = '' OR employee_id = ?) AND (? = '' OR leave_type_id = ?)
		ORDER BY id`,
		f.EmployeeID, f.EmployeeID, f.LeaveTypeID, f.LeaveTypeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entitlements: %w", err)
	}
	defer rows.Close()

	var result []leave.Entitlement
	for rows.Next() {
		e, err := scanEntitlement(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

// IncrementEntitlement adds d to the counters inside one SQL transaction.
func (s *Store) IncrementEntitlement(ctx context.Context, id string, d leave.EntitlementDelta, at time.Time) (*leave.Entitlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	e, err := getEntitlement(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	e.AccruedActual = e.AccruedActual.Add(d.AccruedActual)
	e.CarryForward = e.CarryForward.Add(d.CarryForward)
	e.Taken = e.Taken.Add(d.Taken)
	e.Pending = e.Pending.Add(d.Pending)
	e.UpdatedAt = at

	_, err = tx.ExecContext(ctx, `
		UPDATE entitlements
		SET accrued_actual = ?, carry_forward = ?, taken = ?, pending = ?, updated_at = ?
		WHERE id = ?`,
		e.AccruedActual.String(), e.CarryForward.String(), e.Taken.String(), e.Pending.String(),
		formatTime(at), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to increment entitlement: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit increment: %w", err)
	}
	return e, nil
}

// SetEntitlementDerived writes the derived fields and clamps a negative
// pending in one transaction. Counter columns are not in the SET list.
func (s *Store) SetEntitlementDerived(ctx context.Context, id string, f leave.DerivedFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE entitlements SET
			accrued_rounded = ?, remaining = ?,
			last_accrual_date = COALESCE(?, last_accrual_date),
			next_reset_date = COALESCE(?, next_reset_date),
			updated_at = ?
		WHERE id = ?`,
		f.AccruedRounded.String(), f.Remaining.String(),
		nullDate(f.LastAccrualDate), nullDate(f.NextResetDate), formatTime(f.UpdatedAt), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update derived fields: %w", err)
	}
	if err := requireRow(res, "entitlement", id); err != nil {
		return err
	}

	// Decimals are TEXT, so the sign is the first character.
	if _, err := tx.ExecContext(ctx,
		`UPDATE entitlements SET pending = '0' WHERE id = ? AND pending LIKE '-%'`, id); err != nil {
		return fmt.Errorf("failed to clamp pending: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit derived fields: %w", err)
	}
	return nil
}

func (s *Store) UpdateEntitlement(ctx context.Context, e *leave.Entitlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE entitlements SET
			yearly_entitlement = ?, accrued_actual = ?, accrued_rounded = ?, carry_forward = ?,
			taken = ?, pending = ?, remaining = ?, last_accrual_date = ?, next_reset_date = ?,
			updated_at = ?
		WHERE id = ?`,
		e.YearlyEntitlement.String(), e.AccruedActual.String(), e.AccruedRounded.String(),
		e.CarryForward.String(), e.Taken.String(), e.Pending.String(), e.Remaining.String(),
		nullDate(e.LastAccrualDate), nullDate(e.NextResetDate), formatTime(e.UpdatedAt), e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update entitlement: %w", err)
	}
	return requireRow(res, "entitlement", e.ID)
}

func scanEntitlement(r rowScanner) (*leave.Entitlement, error) {
	var e leave.Entitlement
	var yearly, accrued, rounded, carry, taken, pending, remain, createdAt, updatedAt string
	var lastAccrual, nextReset sql.NullString
	if err := r.Scan(&e.ID, &e.EmployeeID, &e.LeaveTypeID, &yearly, &accrued, &rounded, &carry,
		&taken, &pending, &remain, &lastAccrual, &nextReset, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan entitlement: %w", err)
	}

	err := parseDecimals(
		decimalColumn{"yearly_entitlement", yearly, &e.YearlyEntitlement},
		decimalColumn{"accrued_actual", accrued, &e.AccruedActual},
		decimalColumn{"accrued_rounded", rounded, &e.AccruedRounded},
		decimalColumn{"carry_forward", carry, &e.CarryForward},
		decimalColumn{"taken", taken, &e.Taken},
		decimalColumn{"pending", pending, &e.Pending},
		decimalColumn{"remaining", remain, &e.Remaining},
	)
	if err != nil {
		return nil, fmt.Errorf("entitlement %s: %w", e.ID, err)
	}
	if e.LastAccrualDate, err = scanNullDate(lastAccrual); err != nil {
		return nil, err
	}
	if e.NextResetDate, err = scanNullDate(nextReset); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

// =============================================================================
// REQUESTS
// =============================================================================

const requestColumns = `id, employee_id, leave_type_id, from_date, to_date, duration_days, status,
	approval_flow_json, attachment_id, reason, irregular_pattern, created_at, updated_at`

func (s *Store) CreateRequest(ctx context.Context, r *leave.LeaveRequest) error {
	flow, err := marshalFlow(r.ApprovalFlow)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO leave_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.EmployeeID, r.LeaveTypeID, formatDate(r.From), formatDate(r.To),
		r.DurationDays.String(), r.Status, flow, nullString(r.AttachmentID), nullString(r.Reason),
		r.IrregularPatternFlag, formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (*leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM leave_requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("leave request", id)
	}
	return r, err
}

func (s *Store) UpdateRequest(ctx context.Context, r *leave.LeaveRequest) error {
	flow, err := marshalFlow(r.ApprovalFlow)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE leave_requests SET
			from_date = ?, to_date = ?, duration_days = ?, status = ?, approval_flow_json = ?,
			attachment_id = ?, reason = ?, irregular_pattern = ?, updated_at = ?
		WHERE id = ?`,
		formatDate(r.From), formatDate(r.To), r.DurationDays.String(), r.Status, flow,
		nullString(r.AttachmentID), nullString(r.Reason), r.IrregularPatternFlag,
		formatTime(r.UpdatedAt), r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	return requireRow(res, "leave request", r.ID)
}

func (s *Store) ListRequests(ctx context.Context, f leave.RequestFilter) ([]leave.LeaveRequest, error) {
	var (
		where []string
		args  []any
	)
	if f.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, f.EmployeeID)
	}
	if f.LeaveTypeID != "" {
		where = append(where, "leave_type_id = ?")
		args = append(args, f.LeaveTypeID)
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN (?"+strings.Repeat(", ?", len(f.Statuses)-1)+")")
		for _, st := range f.Statuses {
			args = append(args, st)
		}
	}
	if f.Overlapping != nil {
		where = append(where, "from_date <= ? AND to_date >= ?")
		args = append(args, formatDate(f.Overlapping.End), formatDate(f.Overlapping.Start))
	}
	if f.CreatedBefore != nil {
		where = append(where, "created_at < ?")
		args = append(args, formatTime(*f.CreatedBefore))
	}

	query := `SELECT ` + requestColumns + ` FROM leave_requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY from_date, id"

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var result []leave.LeaveRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

func marshalFlow(flow []leave.ApprovalStep) (string, error) {
	if flow == nil {
		flow = []leave.ApprovalStep{}
	}
	b, err := json.Marshal(flow)
	if err != nil {
		return "", fmt.Errorf("marshal approval flow: %w", err)
	}
	return string(b), nil
}

func scanRequest(r rowScanner) (*leave.LeaveRequest, error) {
	var req leave.LeaveRequest
	var from, to, duration, flow, createdAt, updatedAt string
	var attachmentID, reason sql.NullString
	if err := r.Scan(&req.ID, &req.EmployeeID, &req.LeaveTypeID, &from, &to, &duration, &req.Status,
		&flow, &attachmentID, &reason, &req.IrregularPatternFlag, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan request: %w", err)
	}
	req.AttachmentID, req.Reason = attachmentID.String, reason.String

	if err := json.Unmarshal([]byte(flow), &req.ApprovalFlow); err != nil {
		return nil, fmt.Errorf("request %s approval flow: %w", req.ID, err)
	}
	if err := parseDecimals(decimalColumn{"duration_days", duration, &req.DurationDays}); err != nil {
		return nil, fmt.Errorf("request %s: %w", req.ID, err)
	}

	var err error
	if req.From, err = parseDate(from); err != nil {
		return nil, err
	}
	if req.To, err = parseDate(to); err != nil {
		return nil, err
	}
	if req.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if req.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &req, nil
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

func (s *Store) SaveAdjustment(ctx context.Context, a *leave.Adjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO adjustments
		(id, entitlement_id, employee_id, leave_type_id, adjustment_type, amount, reason, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.EntitlementID, a.EmployeeID, a.LeaveTypeID, a.Type, a.Amount.String(),
		a.Reason, a.CreatedBy, formatTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save adjustment: %w", err)
	}
	return nil
}

func (s *Store) ListAdjustments(ctx context.Context, entitlementID string) ([]leave.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entitlement_id, employee_id, leave_type_id, adjustment_type, amount, reason, created_by, created_at
		FROM adjustments WHERE entitlement_id = ?
		ORDER BY created_at, rowid`, entitlementID)
	if err != nil {
		return nil, fmt.Errorf("failed to query adjustments: %w", err)
	}
	defer rows.Close()

	var result []leave.Adjustment
	for rows.Next() {
		var a leave.Adjustment
		var amount, createdAt string
		if err := rows.Scan(&a.ID, &a.EntitlementID, &a.EmployeeID, &a.LeaveTypeID, &a.Type,
			&amount, &a.Reason, &a.CreatedBy, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan adjustment: %w", err)
		}
		if err := parseDecimals(decimalColumn{"amount", amount, &a.Amount}); err != nil {
			return nil, fmt.Errorf("adjustment %s: %w", a.ID, err)
		}
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// =============================================================================
// DELEGATIONS
// =============================================================================

func (s *Store) SaveDelegation(ctx context.Context, d *leave.Delegation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delegations (id, manager_id, delegate_id, from_date, to_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			manager_id = excluded.manager_id,
			delegate_id = excluded.delegate_id,
			from_date = excluded.from_date,
			to_date = excluded.to_date`,
		d.ID, d.ManagerID, d.DelegateID, formatDate(d.From), formatDate(d.To), formatTime(d.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save delegation: %w", err)
	}
	return nil
}

func (s *Store) ListDelegations(ctx context.Context, f leave.DelegationFilter) ([]leave.Delegation, error) {
	activeAt := ""
	if f.ActiveAt != nil {
		activeAt = formatDate(generic.TruncateDay(*f.ActiveAt))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, manager_id, delegate_id, from_date, to_date, created_at
		FROM delegations
		WHERE (? = '' OR manager_id = ?)
		  AND (? = '' OR delegate_id = ?)
		  AND (? = '' OR (from_date <= ? AND to_date >= ?))
		ORDER BY from_date, id`,
		f.ManagerID, f.ManagerID, f.DelegateID, f.DelegateID, activeAt, activeAt, activeAt)
	if err != nil {
		return nil, fmt.Errorf("failed to query delegations: %w", err)
	}
	defer rows.Close()

	var result []leave.Delegation
	for rows.Next() {
		var d leave.Delegation
		var from, to, createdAt string
		if err := rows.Scan(&d.ID, &d.ManagerID, &d.DelegateID, &from, &to, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan delegation: %w", err)
		}
		if d.From, err = parseDate(from); err != nil {
			return nil, err
		}
		if d.To, err = parseDate(to); err != nil {
			return nil, err
		}
		if d.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (s *Store) DeleteDelegation(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "delegations", "delegation", id)
}

// =============================================================================
// CALENDAR
// =============================================================================

func (s *Store) SaveHoliday(ctx context.Context, h *leave.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO holidays (id, name, date, recurrence) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, date = excluded.date, recurrence = excluded.recurrence`,
		h.ID, h.Name, formatDate(h.Date), nullString(h.Recurrence),
	)
	if err != nil {
		return fmt.Errorf("failed to save holiday: %w", err)
	}
	return nil
}

func (s *Store) ListHolidays(ctx context.Context) ([]leave.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, date, recurrence FROM holidays ORDER BY date, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var result []leave.Holiday
	for rows.Next() {
		var h leave.Holiday
		var date string
		var recurrence sql.NullString
		if err := rows.Scan(&h.ID, &h.Name, &date, &recurrence); err != nil {
			return nil, fmt.Errorf("failed to scan holiday: %w", err)
		}
		if h.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		h.Recurrence = recurrence.String
		result = append(result, h)
	}
	return result, rows.Err()
}

func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "holidays", "holiday", id)
}

func (s *Store) SaveBlockedPeriod(ctx context.Context, b *leave.BlockedPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blocked_periods (id, name, from_date, to_date, reason) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, from_date = excluded.from_date, to_date = excluded.to_date, reason = excluded.reason`,
		b.ID, b.Name, formatDate(b.From), formatDate(b.To), nullString(b.Reason),
	)
	if err != nil {
		return fmt.Errorf("failed to save blocked period: %w", err)
	}
	return nil
}

func (s *Store) ListBlockedPeriods(ctx context.Context) ([]leave.BlockedPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, from_date, to_date, reason FROM blocked_periods ORDER BY from_date, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocked periods: %w", err)
	}
	defer rows.Close()

	var result []leave.BlockedPeriod
	for rows.Next() {
		var b leave.BlockedPeriod
		var from, to string
		var reason sql.NullString
		if err := rows.Scan(&b.ID, &b.Name, &from, &to, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan blocked period: %w", err)
		}
		if b.From, err = parseDate(from); err != nil {
			return nil, err
		}
		if b.To, err = parseDate(to); err != nil {
			return nil, err
		}
		b.Reason = reason.String
		result = append(result, b)
	}
	return result, rows.Err()
}

func (s *Store) DeleteBlockedPeriod(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "blocked_periods", "blocked period", id)
}

// deleteByID is only called with constant table names.
func (s *Store) deleteByID(ctx context.Context, table, kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	return requireRow(res, kind, id)
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound(kind, id)
	}
	return nil
}
