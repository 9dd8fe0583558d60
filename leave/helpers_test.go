package leave_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// Monday 2 June 2025, 09:00 UTC.
var testNow = time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(month time.Month, d int) time.Time { return generic.Date(2025, month, d) }

type fixture struct {
	ctx      context.Context
	t        *testing.T
	store    *memory.Store
	svc      *leave.Service
	notifier *recordingNotifier
	calendar *staticCalendar

	manager  *leave.Employee
	employee *leave.Employee
	annual   *leave.LeaveType
	ent      *leave.Entitlement
}

type fixtureOption func(*fixture, *[]leave.Option)

func withLogger(l *zap.Logger) fixtureOption {
	return func(_ *fixture, opts *[]leave.Option) { *opts = append(*opts, leave.WithLogger(l)) }
}

func withOption(o leave.Option) fixtureOption {
	return func(_ *fixture, opts *[]leave.Option) { *opts = append(*opts, o) }
}

func withStore(wrap func(*memory.Store) leave.Store) fixtureOption {
	return func(f *fixture, opts *[]leave.Option) {
		*opts = append(*opts, func(s *leave.Service) { s.Store = wrap(f.store) })
	}
}

// newFixture builds a service over the memory store with one manager, one
// employee reporting to them, an annual leave type and an entitlement.
func newFixture(t *testing.T, options ...fixtureOption) *fixture {
	t.Helper()
	f := &fixture{
		ctx:      context.Background(),
		t:        t,
		store:    memory.New(),
		notifier: &recordingNotifier{},
		calendar: &staticCalendar{},
	}

	opts := []leave.Option{
		leave.WithLedger(generic.NewLedger(f.store)),
		leave.WithCalendar(f.calendar),
		leave.WithNotifier(f.notifier),
		leave.WithClock(func() time.Time { return testNow }),
	}
	for _, o := range options {
		o(f, &opts)
	}
	f.svc = leave.NewService(f.store, opts...)

	f.manager = f.addEmployee("Grace Manager", "", func(e *leave.Employee) {})
	f.employee = f.addEmployee("Ada Employee", f.manager.ID, func(e *leave.Employee) {})

	f.annual = f.addLeaveType(&leave.LeaveType{
		Name:       "Annual Leave",
		Code:       "AL",
		Category:   leave.CategoryAnnual,
		Deductible: true,
		Policy: leave.Policy{
			AccrualMethod:     leave.AccrualMonthly,
			MonthlyRate:       dec("1.75"),
			YearlyRate:        dec("21"),
			RoundingRule:      generic.RoundDown,
			MaxCarryForward:   dec("5"),
			AllowCarryForward: true,
		},
	})

	ent, err := f.svc.EnsureEntitlement(f.ctx, f.employee.ID, f.annual.ID, dec("21"))
	require.NoError(t, err)
	f.ent = ent
	return f
}

func (f *fixture) addEmployee(name, managerID string, edit func(*leave.Employee)) *leave.Employee {
	f.t.Helper()
	e := &leave.Employee{
		Name:         name,
		DepartmentID: "engineering",
		ManagerID:    managerID,
		Position:     "Engineer",
		ContractType: "permanent",
		Status:       leave.EmployeeActive,
		HireDate:     generic.Date(2020, time.March, 15),
	}
	edit(e)
	require.NoError(f.t, f.svc.SaveEmployee(f.ctx, e))
	return e
}

func (f *fixture) addLeaveType(lt *leave.LeaveType) *leave.LeaveType {
	f.t.Helper()
	require.NoError(f.t, f.svc.CreateLeaveType(f.ctx, lt))
	return lt
}

// seed overwrites the counters of an entitlement and recomputes it.
func (f *fixture) seed(ent *leave.Entitlement, accrued, carry, taken, pending string) {
	f.t.Helper()
	stored, err := f.store.GetEntitlement(f.ctx, ent.ID)
	require.NoError(f.t, err)
	lt, err := f.store.GetLeaveType(f.ctx, string(stored.LeaveTypeID))
	require.NoError(f.t, err)

	stored.AccruedActual = dec(accrued)
	stored.CarryForward = dec(carry)
	stored.Taken = dec(taken)
	stored.Pending = dec(pending)
	stored.Recompute(lt.Policy.RoundingRule)
	require.NoError(f.t, f.store.UpdateEntitlement(f.ctx, stored))
}

func (f *fixture) reload(ent *leave.Entitlement) *leave.Entitlement {
	f.t.Helper()
	got, err := f.store.GetEntitlement(f.ctx, ent.ID)
	require.NoError(f.t, err)
	return got
}

// create files a request for the fixture employee's annual leave.
func (f *fixture) create(from, to time.Time) (*leave.LeaveRequest, error) {
	return f.svc.CreateRequest(f.ctx, leave.CreateRequestInput{
		EmployeeID:  f.employee.ID,
		LeaveTypeID: f.annual.ID,
		From:        from,
		To:          to,
	})
}

// requireInvariant checks remaining == accruedRounded + carryForward - taken - pending.
func requireInvariant(t *testing.T, e *leave.Entitlement, rule generic.RoundingRule) {
	t.Helper()
	require.True(t, e.AccruedRounded.Equal(generic.ApplyRounding(e.AccruedActual, rule)),
		"accruedRounded %s does not match rounding of %s", e.AccruedRounded, e.AccruedActual)
	want := e.AccruedRounded.Add(e.CarryForward).Sub(e.Taken).Sub(e.Pending)
	require.True(t, e.Remaining.Equal(want), "remaining %s, want %s", e.Remaining, want)
	require.False(t, e.Pending.IsNegative(), "pending went negative")
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	require.True(t, dec(want).Equal(got), "%s: want %s, got %s", field, want, got)
}

// =============================================================================
// COLLABORATOR FAKES
// =============================================================================

type recordingNotifier struct {
	events []leave.Event
	err    error
	panics bool
}

func (n *recordingNotifier) Notify(_ context.Context, e leave.Event) error {
	if n.panics {
		panic("notifier exploded")
	}
	n.events = append(n.events, e)
	return n.err
}

func (n *recordingNotifier) types() []leave.EventType {
	var out []leave.EventType
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

type staticCalendar struct {
	holidays []time.Time
	blocked  []generic.Period
}

func (c *staticCalendar) Holidays(_ context.Context, year int) ([]time.Time, error) {
	var out []time.Time
	for _, h := range c.holidays {
		if h.Year() == year {
			out = append(out, h)
		}
	}
	return out, nil
}

func (c *staticCalendar) BlockedPeriods(_ context.Context, year int) ([]generic.Period, error) {
	var out []generic.Period
	for _, b := range c.blocked {
		if b.Start.Year() <= year && b.End.Year() >= year {
			out = append(out, b)
		}
	}
	return out, nil
}

type staticAttachments map[string]leave.Attachment

func (a staticAttachments) GetAttachment(_ context.Context, id string) (*leave.Attachment, error) {
	att, ok := a[id]
	if !ok {
		return nil, &generic.NotFoundError{Kind: "attachment", ID: id}
	}
	return &att, nil
}

var errStoreDown = errors.New("store unavailable")

// failingStore fails selected writes after the memory store is set up.
type failingStore struct {
	*memory.Store
	failCreateRequest bool
	failAdjustment    bool
}

func (s *failingStore) CreateRequest(ctx context.Context, r *leave.LeaveRequest) error {
	if s.failCreateRequest {
		return errStoreDown
	}
	return s.Store.CreateRequest(ctx, r)
}

func (s *failingStore) SaveAdjustment(ctx context.Context, a *leave.Adjustment) error {
	if s.failAdjustment {
		return errStoreDown
	}
	return s.Store.SaveAdjustment(ctx, a)
}

// interleavingStore runs between once, right after the next counter
// increment and before the derived fields are written back.
type interleavingStore struct {
	*memory.Store
	between func()
}

func (s *interleavingStore) IncrementEntitlement(ctx context.Context, id string, d leave.EntitlementDelta, at time.Time) (*leave.Entitlement, error) {
	e, err := s.Store.IncrementEntitlement(ctx, id, d, at)
	if err == nil && s.between != nil {
		run := s.between
		s.between = nil
		run()
	}
	return e, err
}

func withInterleaving(target **interleavingStore) fixtureOption {
	return withStore(func(m *memory.Store) leave.Store {
		*target = &interleavingStore{Store: m}
		return *target
	})
}
