package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

type employeeDoc struct {
	ID                string     `bson:"_id"`
	Name              string     `bson:"name"`
	Email             string     `bson:"email,omitempty"`
	DepartmentID      string     `bson:"department_id,omitempty"`
	ManagerID         string     `bson:"manager_id,omitempty"`
	Position          string     `bson:"position,omitempty"`
	ContractType      string     `bson:"contract_type,omitempty"`
	Status            string     `bson:"status"`
	HireDate          time.Time  `bson:"hire_date"`
	ContractStartDate *time.Time `bson:"contract_start_date,omitempty"`
	FirstVacationDate *time.Time `bson:"first_vacation_date,omitempty"`
}

func (d employeeDoc) employee() leave.Employee {
	return leave.Employee{
		ID:                d.ID,
		Name:              d.Name,
		Email:             d.Email,
		DepartmentID:      d.DepartmentID,
		ManagerID:         d.ManagerID,
		Position:          d.Position,
		ContractType:      d.ContractType,
		Status:            leave.EmployeeStatus(d.Status),
		HireDate:          d.HireDate.UTC(),
		ContractStartDate: utcPtr(d.ContractStartDate),
		FirstVacationDate: utcPtr(d.FirstVacationDate),
	}
}

func (s *Store) SaveEmployee(ctx context.Context, e *leave.Employee) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	doc := employeeDoc{
		ID:                e.ID,
		Name:              e.Name,
		Email:             e.Email,
		DepartmentID:      e.DepartmentID,
		ManagerID:         e.ManagerID,
		Position:          e.Position,
		ContractType:      e.ContractType,
		Status:            string(e.Status),
		HireDate:          e.HireDate.UTC(),
		ContractStartDate: utcPtr(e.ContractStartDate),
		FirstVacationDate: utcPtr(e.FirstVacationDate),
	}
	return upsert(ctx, s.col(colEmployees), e.ID, doc, "employee")
}

func (s *Store) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var doc employeeDoc
	if err := findOne(ctx, s.col(colEmployees), bson.M{"_id": id}, "employee", id, &doc); err != nil {
		return nil, err
	}
	e := doc.employee()
	return &e, nil
}

func (s *Store) ListEmployees(ctx context.Context, f leave.EmployeeFilter) ([]leave.Employee, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	filter := bson.M{}
	if f.DepartmentID != "" {
		filter["department_id"] = f.DepartmentID
	}
	if f.Status != "" {
		filter["status"] = string(f.Status)
	}
	var docs []employeeDoc
	if err := findAll(ctx, s.col(colEmployees), filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}), &docs); err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	result := make([]leave.Employee, 0, len(docs))
	for _, d := range docs {
		result = append(result, d.employee())
	}
	return result, nil
}

// =============================================================================
// LEAVE TYPES
// =============================================================================

type leaveTypeDoc struct {
	ID                 string         `bson:"_id"`
	Code               string         `bson:"code,omitempty"`
	Name               string         `bson:"name"`
	Category           string         `bson:"category"`
	Deductible         bool           `bson:"deductible"`
	RequiresAttachment bool           `bson:"requires_attachment"`
	Policy             policyDoc      `bson:"policy"`
	Limits             limitsDoc      `bson:"limits"`
	Attachments        attachmentsDoc `bson:"attachments"`
	CreatedAt          time.Time      `bson:"created_at"`
	UpdatedAt          time.Time      `bson:"updated_at"`
}

type policyDoc struct {
	AccrualMethod        string               `bson:"accrual_method"`
	MonthlyRate          primitive.Decimal128 `bson:"monthly_rate"`
	YearlyRate           primitive.Decimal128 `bson:"yearly_rate"`
	RoundingRule         string               `bson:"rounding_rule"`
	MaxCarryForward      primitive.Decimal128 `bson:"max_carry_forward"`
	AllowCarryForward    bool                 `bson:"allow_carry_forward"`
	MinNoticeDays        int                  `bson:"min_notice_days"`
	MinTenureMonths      int                  `bson:"min_tenure_months"`
	AllowedPositions     []string             `bson:"allowed_positions,omitempty"`
	AllowedContractTypes []string             `bson:"allowed_contract_types,omitempty"`
}

type limitsDoc struct {
	MaxDaysPerYear   primitive.Decimal128 `bson:"max_days_per_year"`
	MaxDaysPerWindow primitive.Decimal128 `bson:"max_days_per_window"`
	WindowYears      int                  `bson:"window_years"`
}

type attachmentsDoc struct {
	MaxBytes     int64    `bson:"max_bytes"`
	AllowedTypes []string `bson:"allowed_types,omitempty"`
}

func toLeaveTypeDoc(lt *leave.LeaveType) (leaveTypeDoc, error) {
	var c decimalConverter
	p := lt.Policy
	doc := leaveTypeDoc{
		ID:                 lt.ID,
		Code:               lt.Code,
		Name:               lt.Name,
		Category:           string(lt.Category),
		Deductible:         lt.Deductible,
		RequiresAttachment: lt.RequiresAttachment,
		Policy: policyDoc{
			AccrualMethod:        string(p.AccrualMethod),
			MonthlyRate:          c.to(p.MonthlyRate),
			YearlyRate:           c.to(p.YearlyRate),
			RoundingRule:         string(p.RoundingRule),
			MaxCarryForward:      c.to(p.MaxCarryForward),
			AllowCarryForward:    p.AllowCarryForward,
			MinNoticeDays:        p.MinNoticeDays,
			MinTenureMonths:      p.Eligibility.MinTenureMonths,
			AllowedPositions:     p.Eligibility.AllowedPositions,
			AllowedContractTypes: p.Eligibility.AllowedContractTypes,
		},
		Limits: limitsDoc{
			MaxDaysPerYear:   c.to(lt.Limits.MaxDaysPerYear),
			MaxDaysPerWindow: c.to(lt.Limits.MaxDaysPerWindow),
			WindowYears:      lt.Limits.WindowYears,
		},
		Attachments: attachmentsDoc{MaxBytes: lt.Attachments.MaxBytes, AllowedTypes: lt.Attachments.AllowedTypes},
		CreatedAt:   lt.CreatedAt.UTC(),
		UpdatedAt:   lt.UpdatedAt.UTC(),
	}
	return doc, c.err
}

func (d leaveTypeDoc) leaveType() (leave.LeaveType, error) {
	var c decimalConverter
	lt := leave.LeaveType{
		ID:                 d.ID,
		Code:               d.Code,
		Name:               d.Name,
		Category:           leave.Category(d.Category),
		Deductible:         d.Deductible,
		RequiresAttachment: d.RequiresAttachment,
		Policy: leave.Policy{
			AccrualMethod:     leave.AccrualMethod(d.Policy.AccrualMethod),
			MonthlyRate:       c.from(d.Policy.MonthlyRate),
			YearlyRate:        c.from(d.Policy.YearlyRate),
			RoundingRule:      generic.RoundingRule(d.Policy.RoundingRule),
			MaxCarryForward:   c.from(d.Policy.MaxCarryForward),
			AllowCarryForward: d.Policy.AllowCarryForward,
			MinNoticeDays:     d.Policy.MinNoticeDays,
			Eligibility: leave.Eligibility{
				MinTenureMonths:      d.Policy.MinTenureMonths,
				AllowedPositions:     d.Policy.AllowedPositions,
				AllowedContractTypes: d.Policy.AllowedContractTypes,
			},
		},
		Limits: leave.CumulativeLimits{
			MaxDaysPerYear:   c.from(d.Limits.MaxDaysPerYear),
			MaxDaysPerWindow: c.from(d.Limits.MaxDaysPerWindow),
			WindowYears:      d.Limits.WindowYears,
		},
		Attachments: leave.AttachmentRules{MaxBytes: d.Attachments.MaxBytes, AllowedTypes: d.Attachments.AllowedTypes},
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
	if c.err != nil {
		return leave.LeaveType{}, fmt.Errorf("leave type %s: %w", d.ID, c.err)
	}
	return lt, nil
}

func (s *Store) SaveLeaveType(ctx context.Context, lt *leave.LeaveType) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	doc, err := toLeaveTypeDoc(lt)
	if err != nil {
		return err
	}
	return upsert(ctx, s.col(colLeaveTypes), lt.ID, doc, "leave type")
}

func (s *Store) GetLeaveType(ctx context.Context, id string) (*leave.LeaveType, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var doc leaveTypeDoc
	if err := findOne(ctx, s.col(colLeaveTypes), bson.M{"_id": id}, "leave type", id, &doc); err != nil {
		return nil, err
	}
	lt, err := doc.leaveType()
	if err != nil {
		return nil, err
	}
	return &lt, nil
}

func (s *Store) ListLeaveTypes(ctx context.Context) ([]leave.LeaveType, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var docs []leaveTypeDoc
	if err := findAll(ctx, s.col(colLeaveTypes), bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}), &docs); err != nil {
		return nil, fmt.Errorf("failed to query leave types: %w", err)
	}
	result := make([]leave.LeaveType, 0, len(docs))
	for _, d := range docs {
		lt, err := d.leaveType()
		if err != nil {
			return nil, err
		}
		result = append(result, lt)
	}
	return result, nil
}

// =============================================================================
// ENTITLEMENTS
// =============================================================================

type entitlementDoc struct {
	ID                string               `bson:"_id"`
	EmployeeID        string               `bson:"employee_id"`
	LeaveTypeID       string               `bson:"leave_type_id"`
	YearlyEntitlement primitive.Decimal128 `bson:"yearly_entitlement"`
	AccruedActual     primitive.Decimal128 `bson:"accrued_actual"`
	AccruedRounded    primitive.Decimal128 `bson:"accrued_rounded"`
	CarryForward      primitive.Decimal128 `bson:"carry_forward"`
	Taken             primitive.Decimal128 `bson:"taken"`
	Pending           primitive.Decimal128 `bson:"pending"`
	Remaining         primitive.Decimal128 `bson:"remaining"`
	LastAccrualDate   *time.Time           `bson:"last_accrual_date,omitempty"`
	NextResetDate     *time.Time           `bson:"next_reset_date,omitempty"`
	CreatedAt         time.Time            `bson:"created_at"`
	UpdatedAt         time.Time            `bson:"updated_at"`
}

func toEntitlementDoc(e *leave.Entitlement) (entitlementDoc, error) {
	var c decimalConverter
	doc := entitlementDoc{
		ID:                e.ID,
		EmployeeID:        string(e.EmployeeID),
		LeaveTypeID:       string(e.LeaveTypeID),
		YearlyEntitlement: c.to(e.YearlyEntitlement),
		AccruedActual:     c.to(e.AccruedActual),
		AccruedRounded:    c.to(e.AccruedRounded),
		CarryForward:      c.to(e.CarryForward),
		Taken:             c.to(e.Taken),
		Pending:           c.to(e.Pending),
		Remaining:         c.to(e.Remaining),
		LastAccrualDate:   utcPtr(e.LastAccrualDate),
		NextResetDate:     utcPtr(e.NextResetDate),
		CreatedAt:         e.CreatedAt.UTC(),
		UpdatedAt:         e.UpdatedAt.UTC(),
	}
	return doc, c.err
}

func (d entitlementDoc) entitlement() (*leave.Entitlement, error) {
	var c decimalConverter
	e := &leave.Entitlement{
		ID:                d.ID,
		EmployeeID:        generic.EntityID(d.EmployeeID),
		LeaveTypeID:       generic.PolicyID(d.LeaveTypeID),
		YearlyEntitlement: c.from(d.YearlyEntitlement),
		AccruedActual:     c.from(d.AccruedActual),
		AccruedRounded:    c.from(d.AccruedRounded),
		CarryForward:      c.from(d.CarryForward),
		Taken:             c.from(d.Taken),
		Pending:           c.from(d.Pending),
		Remaining:         c.from(d.Remaining),
		LastAccrualDate:   utcPtr(d.LastAccrualDate),
		NextResetDate:     utcPtr(d.NextResetDate),
		CreatedAt:         d.CreatedAt.UTC(),
		UpdatedAt:         d.UpdatedAt.UTC(),
	}
	if c.err != nil {
		return nil, fmt.Errorf("entitlement %s: %w", d.ID, c.err)
	}
	return e, nil
}

func (s *Store) CreateEntitlement(ctx context.Context, e *leave.Entitlement) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	doc, err := toEntitlementDoc(e)
	if err != nil {
		return err
	}
	if _, err := s.col(colEntitlements).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return generic.NewValidationError("leave_type_id", "entitlement already exists for employee %s", e.EmployeeID)
		}
		return fmt.Errorf("failed to create entitlement: %w", err)
	}
	return nil
}

func (s *Store) GetEntitlement(ctx context.Context, id string) (*leave.Entitlement, error) {
	return s.findEntitlement(ctx, bson.M{"_id": id}, id)
}

func (s *Store) FindEntitlement(ctx context.Context, employeeID, leaveTypeID string) (*leave.Entitlement, error) {
	return s.findEntitlement(ctx, bson.M{"employee_id": employeeID, "leave_type_id": leaveTypeID}, employeeID+"/"+leaveTypeID)
}

func (s *Store) findEntitlement(ctx context.Context, filter bson.M, ref string) (*leave.Entitlement, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var doc entitlementDoc
	if err := findOne(ctx, s.col(colEntitlements), filter, "entitlement", ref, &doc); err != nil {
		return nil, err
	}
	return doc.entitlement()
}

func (s *Store) ListEntitlements(ctx context.Context, f leave.EntitlementFilter) ([]leave.Entitlement, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	filter := bson.M{}
	if f.EmployeeID != "" {
		filter["employee_id"] = f.EmployeeID
	}
	if f.LeaveTypeID != "" {
		filter["leave_type_id"] = f.LeaveTypeID
	}
	var docs []entitlementDoc
	if err := findAll(ctx, s.col(colEntitlements), filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}), &docs); err != nil {
		return nil, fmt.Errorf("failed to query entitlements: %w", err)
	}
	result := make([]leave.Entitlement, 0, len(docs))
	for _, d := range docs {
		e, err := d.entitlement()
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, nil
}

// IncrementEntitlement applies d with one $inc and returns the document
// as it is after the update.
func (s *Store) IncrementEntitlement(ctx context.Context, id string, d leave.EntitlementDelta, at time.Time) (*leave.Entitlement, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var c decimalConverter
	inc := bson.D{
		{Key: "accrued_actual", Value: c.to(d.AccruedActual)},
		{Key: "carry_forward", Value: c.to(d.CarryForward)},
		{Key: "taken", Value: c.to(d.Taken)},
		{Key: "pending", Value: c.to(d.Pending)},
	}
	if c.err != nil {
		return nil, c.err
	}
	update := bson.D{
		{Key: "$inc", Value: inc},
		{Key: "$set", Value: bson.D{{Key: "updated_at", Value: at.UTC()}}},
	}

	var doc entitlementDoc
	err := s.col(colEntitlements).FindOneAndUpdate(ctx, bson.M{"_id": id}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound("entitlement", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to increment entitlement: %w", err)
	}
	return doc.entitlement()
}

// SetEntitlementDerived $sets the derived fields, then raises a negative
// pending to zero with a filtered update so a concurrent $inc survives.
func (s *Store) SetEntitlementDerived(ctx context.Context, id string, f leave.DerivedFields) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var c decimalConverter
	set := bson.D{
		{Key: "accrued_rounded", Value: c.to(f.AccruedRounded)},
		{Key: "remaining", Value: c.to(f.Remaining)},
		{Key: "updated_at", Value: f.UpdatedAt.UTC()},
	}
	if f.LastAccrualDate != nil {
		set = append(set, bson.E{Key: "last_accrual_date", Value: f.LastAccrualDate.UTC()})
	}
	if f.NextResetDate != nil {
		set = append(set, bson.E{Key: "next_reset_date", Value: f.NextResetDate.UTC()})
	}
	zero := c.to(decimal.Zero)
	if c.err != nil {
		return c.err
	}

	col := s.col(colEntitlements)
	res, err := col.UpdateOne(ctx, bson.M{"_id": id}, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return fmt.Errorf("failed to update derived fields: %w", err)
	}
	if res.MatchedCount == 0 {
		return notFound("entitlement", id)
	}

	_, err = col.UpdateOne(ctx,
		bson.M{"_id": id, "pending": bson.M{"$lt": zero}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "pending", Value: zero}}}},
	)
	if err != nil {
		return fmt.Errorf("failed to clamp pending: %w", err)
	}
	return nil
}

func (s *Store) UpdateEntitlement(ctx context.Context, e *leave.Entitlement) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	doc, err := toEntitlementDoc(e)
	if err != nil {
		return err
	}
	return replace(ctx, s.col(colEntitlements), e.ID, doc, "entitlement")
}

// =============================================================================
// REQUESTS
// =============================================================================

type stepDoc struct {
	Role      string     `bson:"role"`
	Status    string     `bson:"status"`
	DecidedBy string     `bson:"decided_by,omitempty"`
	DecidedAt *time.Time `bson:"decided_at,omitempty"`
	Comment   string     `bson:"comment,omitempty"`
}

type requestDoc struct {
	ID                   string               `bson:"_id"`
	EmployeeID           string               `bson:"employee_id"`
	LeaveTypeID          string               `bson:"leave_type_id"`
	From                 time.Time            `bson:"from"`
	To                   time.Time            `bson:"to"`
	DurationDays         primitive.Decimal128 `bson:"duration_days"`
	Status               string               `bson:"status"`
	ApprovalFlow         []stepDoc            `bson:"approval_flow"`
	AttachmentID         string               `bson:"attachment_id,omitempty"`
	Reason               string               `bson:"reason,omitempty"`
	IrregularPatternFlag bool                 `bson:"irregular_pattern_flag"`
	CreatedAt            time.Time            `bson:"created_at"`
	UpdatedAt            time.Time            `bson:"updated_at"`
}

func toRequestDoc(r *leave.LeaveRequest) (requestDoc, error) {
	duration, err := toDecimal128(r.DurationDays)
	if err != nil {
		return requestDoc{}, err
	}
	flow := make([]stepDoc, len(r.ApprovalFlow))
	for i, st := range r.ApprovalFlow {
		flow[i] = stepDoc{
			Role:      string(st.Role),
			Status:    string(st.Status),
			DecidedBy: st.DecidedBy,
			DecidedAt: utcPtr(st.DecidedAt),
			Comment:   st.Comment,
		}
	}
	return requestDoc{
		ID:                   r.ID,
		EmployeeID:           string(r.EmployeeID),
		LeaveTypeID:          string(r.LeaveTypeID),
		From:                 r.From.UTC(),
		To:                   r.To.UTC(),
		DurationDays:         duration,
		Status:               string(r.Status),
		ApprovalFlow:         flow,
		AttachmentID:         r.AttachmentID,
		Reason:               r.Reason,
		IrregularPatternFlag: r.IrregularPatternFlag,
		CreatedAt:            r.CreatedAt.UTC(),
		UpdatedAt:            r.UpdatedAt.UTC(),
	}, nil
}

func (d requestDoc) request() (leave.LeaveRequest, error) {
	duration, err := fromDecimal128(d.DurationDays)
	if err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("leave request %s: %w", d.ID, err)
	}
	flow := make([]leave.ApprovalStep, len(d.ApprovalFlow))
	for i, st := range d.ApprovalFlow {
		flow[i] = leave.ApprovalStep{
			Role:      leave.Role(st.Role),
			Status:    leave.StepStatus(st.Status),
			DecidedBy: st.DecidedBy,
			DecidedAt: utcPtr(st.DecidedAt),
			Comment:   st.Comment,
		}
	}
	return leave.LeaveRequest{
		ID:                   d.ID,
		EmployeeID:           generic.EntityID(d.EmployeeID),
		LeaveTypeID:          generic.PolicyID(d.LeaveTypeID),
		From:                 d.From.UTC(),
		To:                   d.To.UTC(),
		DurationDays:         duration,
		Status:               leave.RequestStatus(d.Status),
		ApprovalFlow:         flow,
		AttachmentID:         d.AttachmentID,
		Reason:               d.Reason,
		IrregularPatternFlag: d.IrregularPatternFlag,
		CreatedAt:            d.CreatedAt.UTC(),
		UpdatedAt:            d.UpdatedAt.UTC(),
	}, nil
}

func (s *Store) CreateRequest(ctx context.Context, r *leave.LeaveRequest) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	doc, err := toRequestDoc(r)
	if err != nil {
		return err
	}
	if _, err := s.col(colRequests).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (*leave.LeaveRequest, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var doc requestDoc
	if err := findOne(ctx, s.col(colRequests), bson.M{"_id": id}, "leave request", id, &doc); err != nil {
		return nil, err
	}
	r, err := doc.request()
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) UpdateRequest(ctx context.Context, r *leave.LeaveRequest) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	doc, err := toRequestDoc(r)
	if err != nil {
		return err
	}
	return replace(ctx, s.col(colRequests), r.ID, doc, "leave request")
}

func (s *Store) ListRequests(ctx context.Context, f leave.RequestFilter) ([]leave.LeaveRequest, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var docs []requestDoc
	opts := options.Find().SetSort(bson.D{{Key: "from", Value: 1}, {Key: "_id", Value: 1}})
	if err := findAll(ctx, s.col(colRequests), requestFilter(f), opts, &docs); err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	result := make([]leave.LeaveRequest, 0, len(docs))
	for _, d := range docs {
		r, err := d.request()
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, nil
}

func requestFilter(f leave.RequestFilter) bson.M {
	filter := bson.M{}
	if f.EmployeeID != "" {
		filter["employee_id"] = f.EmployeeID
	}
	if f.LeaveTypeID != "" {
		filter["leave_type_id"] = f.LeaveTypeID
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		filter["status"] = bson.M{"$in": statuses}
	}
	if f.Overlapping != nil {
		filter["from"] = bson.M{"$lte": f.Overlapping.End.UTC()}
		filter["to"] = bson.M{"$gte": f.Overlapping.Start.UTC()}
	}
	if f.CreatedBefore != nil {
		filter["created_at"] = bson.M{"$lt": f.CreatedBefore.UTC()}
	}
	return filter
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

type adjustmentDoc struct {
	ID            string               `bson:"_id"`
	EntitlementID string               `bson:"entitlement_id"`
	EmployeeID    string               `bson:"employee_id"`
	LeaveTypeID   string               `bson:"leave_type_id"`
	Type          string               `bson:"type"`
	Amount        primitive.Decimal128 `bson:"amount"`
	Reason        string               `bson:"reason"`
	CreatedBy     string               `bson:"created_by"`
	CreatedAt     time.Time            `bson:"created_at"`
}

func (s *Store) SaveAdjustment(ctx context.Context, a *leave.Adjustment) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	amount, err := toDecimal128(a.Amount)
	if err != nil {
		return err
	}
	doc := adjustmentDoc{
		ID:            a.ID,
		EntitlementID: a.EntitlementID,
		EmployeeID:    string(a.EmployeeID),
		LeaveTypeID:   string(a.LeaveTypeID),
		Type:          string(a.Type),
		Amount:        amount,
		Reason:        a.Reason,
		CreatedBy:     a.CreatedBy,
		CreatedAt:     a.CreatedAt.UTC(),
	}
	if _, err := s.col(colAdjustments).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to save adjustment: %w", err)
	}
	return nil
}

func (s *Store) ListAdjustments(ctx context.Context, entitlementID string) ([]leave.Adjustment, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var docs []adjustmentDoc
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if err := findAll(ctx, s.col(colAdjustments), bson.M{"entitlement_id": entitlementID}, opts, &docs); err != nil {
		return nil, fmt.Errorf("failed to query adjustments: %w", err)
	}
	result := make([]leave.Adjustment, 0, len(docs))
	for _, d := range docs {
		amount, err := fromDecimal128(d.Amount)
		if err != nil {
			return nil, fmt.Errorf("adjustment %s: %w", d.ID, err)
		}
		result = append(result, leave.Adjustment{
			ID:            d.ID,
			EntitlementID: d.EntitlementID,
			EmployeeID:    generic.EntityID(d.EmployeeID),
			LeaveTypeID:   generic.PolicyID(d.LeaveTypeID),
			Type:          leave.AdjustmentType(d.Type),
			Amount:        amount,
			Reason:        d.Reason,
			CreatedBy:     d.CreatedBy,
			CreatedAt:     d.CreatedAt.UTC(),
		})
	}
	return result, nil
}

// =============================================================================
// DELEGATIONS
// =============================================================================

type delegationDoc struct {
	ID         string    `bson:"_id"`
	ManagerID  string    `bson:"manager_id"`
	DelegateID string    `bson:"delegate_id"`
	From       time.Time `bson:"from"`
	To         time.Time `bson:"to"`
	CreatedAt  time.Time `bson:"created_at"`
}

func (s *Store) SaveDelegation(ctx context.Context, d *leave.Delegation) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	doc := delegationDoc{
		ID:         d.ID,
		ManagerID:  d.ManagerID,
		DelegateID: d.DelegateID,
		From:       d.From.UTC(),
		To:         d.To.UTC(),
		CreatedAt:  d.CreatedAt.UTC(),
	}
	return upsert(ctx, s.col(colDelegations), d.ID, doc, "delegation")
}

// ListDelegations matches ActiveAt by calendar day; both ends are inclusive.
func (s *Store) ListDelegations(ctx context.Context, f leave.DelegationFilter) ([]leave.Delegation, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	filter := bson.M{}
	if f.ManagerID != "" {
		filter["manager_id"] = f.ManagerID
	}
	if f.DelegateID != "" {
		filter["delegate_id"] = f.DelegateID
	}
	if f.ActiveAt != nil {
		day := generic.TruncateDay(*f.ActiveAt)
		filter["from"] = bson.M{"$lte": day}
		filter["to"] = bson.M{"$gte": day}
	}
	var docs []delegationDoc
	opts := options.Find().SetSort(bson.D{{Key: "from", Value: 1}, {Key: "_id", Value: 1}})
	if err := findAll(ctx, s.col(colDelegations), filter, opts, &docs); err != nil {
		return nil, fmt.Errorf("failed to query delegations: %w", err)
	}
	result := make([]leave.Delegation, 0, len(docs))
	for _, d := range docs {
		result = append(result, leave.Delegation{
			ID:         d.ID,
			ManagerID:  d.ManagerID,
			DelegateID: d.DelegateID,
			From:       d.From.UTC(),
			To:         d.To.UTC(),
			CreatedAt:  d.CreatedAt.UTC(),
		})
	}
	return result, nil
}

func (s *Store) DeleteDelegation(ctx context.Context, id string) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	return deleteByID(ctx, s.col(colDelegations), id, "delegation")
}

// =============================================================================
// CALENDAR
// =============================================================================

type holidayDoc struct {
	ID         string    `bson:"_id"`
	Name       string    `bson:"name"`
	Date       time.Time `bson:"date"`
	Recurrence string    `bson:"recurrence,omitempty"`
}

type blockedDoc struct {
	ID     string    `bson:"_id"`
	Name   string    `bson:"name"`
	From   time.Time `bson:"from"`
	To     time.Time `bson:"to"`
	Reason string    `bson:"reason,omitempty"`
}

func (s *Store) SaveHoliday(ctx context.Context, h *leave.Holiday) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	doc := holidayDoc{ID: h.ID, Name: h.Name, Date: h.Date.UTC(), Recurrence: h.Recurrence}
	return upsert(ctx, s.col(colHolidays), h.ID, doc, "holiday")
}

func (s *Store) ListHolidays(ctx context.Context) ([]leave.Holiday, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var docs []holidayDoc
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}})
	if err := findAll(ctx, s.col(colHolidays), bson.M{}, opts, &docs); err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	result := make([]leave.Holiday, 0, len(docs))
	for _, d := range docs {
		result = append(result, leave.Holiday{ID: d.ID, Name: d.Name, Date: d.Date.UTC(), Recurrence: d.Recurrence})
	}
	return result, nil
}

func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	return deleteByID(ctx, s.col(colHolidays), id, "holiday")
}

func (s *Store) SaveBlockedPeriod(ctx context.Context, b *leave.BlockedPeriod) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	doc := blockedDoc{ID: b.ID, Name: b.Name, From: b.From.UTC(), To: b.To.UTC(), Reason: b.Reason}
	return upsert(ctx, s.col(colBlocked), b.ID, doc, "blocked period")
}

func (s *Store) ListBlockedPeriods(ctx context.Context) ([]leave.BlockedPeriod, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var docs []blockedDoc
	opts := options.Find().SetSort(bson.D{{Key: "from", Value: 1}, {Key: "_id", Value: 1}})
	if err := findAll(ctx, s.col(colBlocked), bson.M{}, opts, &docs); err != nil {
		return nil, fmt.Errorf("failed to query blocked periods: %w", err)
	}
	result := make([]leave.BlockedPeriod, 0, len(docs))
	for _, d := range docs {
		result = append(result, leave.BlockedPeriod{ID: d.ID, Name: d.Name, From: d.From.UTC(), To: d.To.UTC(), Reason: d.Reason})
	}
	return result, nil
}

func (s *Store) DeleteBlockedPeriod(ctx context.Context, id string) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	return deleteByID(ctx, s.col(colBlocked), id, "blocked period")
}

// =============================================================================
// DECIMALS
// =============================================================================

// decimalConverter keeps the first conversion error so document mapping
// stays a flat struct literal.
type decimalConverter struct{ err error }

func (c *decimalConverter) to(d decimal.Decimal) primitive.Decimal128 {
	v, err := toDecimal128(d)
	if err != nil && c.err == nil {
		c.err = err
	}
	return v
}

func (c *decimalConverter) from(v primitive.Decimal128) decimal.Decimal {
	d, err := fromDecimal128(v)
	if err != nil && c.err == nil {
		c.err = err
	}
	return d
}
