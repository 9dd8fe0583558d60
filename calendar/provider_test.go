package calendar_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/memory"
)

func newProvider(t *testing.T) (*calendar.Provider, context.Context) {
	t.Helper()
	return calendar.NewProvider(memory.New()), context.Background()
}

func TestHolidays_YearlyRule_ExpandedIntoEachYear(t *testing.T) {
	// GIVEN: Christmas stored once in 2020 with a yearly rule
	// WHEN: Asking for 2025 holidays
	// THEN: 25 December 2025 is returned

	p, ctx := newProvider(t)
	require.NoError(t, p.AddHoliday(ctx, &leave.Holiday{
		Name:       "Christmas",
		Date:       generic.Date(2020, time.December, 25),
		Recurrence: "FREQ=YEARLY;BYMONTH=12;BYMONTHDAY=25",
	}))

	days, err := p.Holidays(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{generic.Date(2025, time.December, 25)}, days)
}

func TestHolidays_LastMondayRule_ResolvesWeekday(t *testing.T) {
	p, ctx := newProvider(t)
	require.NoError(t, p.AddHoliday(ctx, &leave.Holiday{
		Name:       "Memorial Day",
		Date:       generic.Date(2020, time.May, 25),
		Recurrence: "FREQ=YEARLY;BYMONTH=5;BYDAY=-1MO",
	}))

	days, err := p.Holidays(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{generic.Date(2025, time.May, 26)}, days)
}

func TestHolidays_SingleDate_OnlyInItsYear(t *testing.T) {
	p, ctx := newProvider(t)
	require.NoError(t, p.AddHoliday(ctx, &leave.Holiday{Name: "Jubilee", Date: generic.Date(2025, time.June, 3)}))

	days2025, err := p.Holidays(ctx, 2025)
	require.NoError(t, err)
	assert.Len(t, days2025, 1)

	days2026, err := p.Holidays(ctx, 2026)
	require.NoError(t, err)
	assert.Empty(t, days2026)
}

func TestAddHoliday_BadRule_ValidationError(t *testing.T) {
	p, ctx := newProvider(t)

	err := p.AddHoliday(ctx, &leave.Holiday{Name: "Broken", Date: generic.Date(2025, time.January, 1), Recurrence: "FREQ=SOMETIMES"})
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestBlockedPeriods_SpanningNewYear_InBothYears(t *testing.T) {
	p, ctx := newProvider(t)
	require.NoError(t, p.AddBlockedPeriod(ctx, &leave.BlockedPeriod{
		Name: "Year-end freeze",
		From: generic.Date(2025, time.December, 20),
		To:   generic.Date(2026, time.January, 5),
	}))

	b2025, err := p.BlockedPeriods(ctx, 2025)
	require.NoError(t, err)
	b2026, err := p.BlockedPeriods(ctx, 2026)
	require.NoError(t, err)
	b2027, err := p.BlockedPeriods(ctx, 2027)
	require.NoError(t, err)

	assert.Len(t, b2025, 1)
	assert.Len(t, b2026, 1)
	assert.Empty(t, b2027)
}

func TestWorkingDays_AcrossYearBoundary(t *testing.T) {
	// GIVEN: New Year's Day recurring, request Mon 29 Dec 2025 - Fri 2 Jan 2026
	// WHEN: Counting working days
	// THEN: 4 (Mon, Tue, Wed, Fri)

	p, ctx := newProvider(t)
	require.NoError(t, p.AddHoliday(ctx, &leave.Holiday{
		Name:       "New Year",
		Date:       generic.Date(2020, time.January, 1),
		Recurrence: "FREQ=YEARLY",
	}))

	n, err := p.WorkingDays(ctx, generic.NewPeriod(generic.Date(2025, time.December, 29), generic.Date(2026, time.January, 2)))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}
