package factory_test

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// PRESETS
// =============================================================================

func TestAnnualLeavePreset_Parses(t *testing.T) {
	lt, err := factory.ParseLeaveType(factory.AnnualLeaveJSON("AL", "Annual Leave", 21, 5))
	require.NoError(t, err)

	assert.Equal(t, leave.CategoryAnnual, lt.Category)
	assert.True(t, lt.Deductible)
	assert.Equal(t, leave.AccrualMonthly, lt.Policy.AccrualMethod)
	assert.True(t, lt.Policy.MonthlyRate.Equal(decimal.RequireFromString("1.75")))
	assert.Equal(t, generic.RoundDown, lt.Policy.RoundingRule)
	assert.True(t, lt.Policy.AllowCarryForward)
	assert.True(t, lt.Policy.MaxCarryForward.Equal(decimal.NewFromInt(5)))
}

func TestSickLeavePreset_LimitsAndAttachment(t *testing.T) {
	lt, err := factory.ParseLeaveType(factory.SickLeaveJSON("SL", "Sick Leave"))
	require.NoError(t, err)

	assert.Equal(t, leave.CategorySick, lt.Category)
	assert.False(t, lt.Deductible)
	assert.True(t, lt.RequiresAttachment)
	assert.True(t, lt.Limits.MaxDaysPerYear.Equal(decimal.NewFromInt(30)))
	assert.True(t, lt.Limits.MaxDaysPerWindow.Equal(decimal.NewFromInt(360)))
	assert.Equal(t, 3, lt.Limits.WindowYears)
}

func TestUnpaidLeavePreset_NotDeductible(t *testing.T) {
	lt, err := factory.ParseLeaveType(factory.UnpaidLeaveJSON("UL", "Unpaid Leave", 14))
	require.NoError(t, err)

	assert.False(t, lt.Deductible)
	assert.Equal(t, 14, lt.Policy.MinNoticeDays)
	assert.Equal(t, generic.RoundNone, lt.Policy.RoundingRule)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestParseLeaveType_Invalid_ValidationError(t *testing.T) {
	cases := map[string]struct {
		json  string
		field string
	}{
		"malformed":         {json: `{"name":`, field: ""},
		"missing name":      {json: `{"category":"annual","policy":{"accrual_method":"none"}}`, field: "name"},
		"unknown category":  {json: `{"name":"X","category":"bonus","policy":{"accrual_method":"none"}}`, field: "category"},
		"bad rounding":      {json: `{"name":"X","category":"annual","policy":{"accrual_method":"none","rounding_rule":"BANKERS"}}`, field: "policy.rounding_rule"},
		"negative rate":     {json: `{"name":"X","category":"annual","policy":{"accrual_method":"monthly","monthly_rate":-1}}`, field: "policy.monthly_rate"},
		"missing method":    {json: `{"name":"X","category":"annual","policy":{}}`, field: "policy.accrual_method"},
		"blank position":    {json: `{"name":"X","category":"annual","policy":{"accrual_method":"none","eligibility":{"allowed_positions":[""]}}}`, field: "policy.eligibility.allowed_positions[0]"},
		"negative tenure":   {json: `{"name":"X","category":"annual","policy":{"accrual_method":"none","eligibility":{"min_tenure_months":-2}}}`, field: "policy.eligibility.min_tenure_months"},
		"negative window":   {json: `{"name":"X","category":"sick","policy":{"accrual_method":"none"},"limits":{"window_years":-1}}`, field: "limits.window_years"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := factory.ParseLeaveType(tc.json)
			require.ErrorIs(t, err, generic.ErrValidation)

			var ve *generic.ValidationError
			require.ErrorAs(t, err, &ve)
			if tc.field != "" {
				assert.Equal(t, tc.field, ve.Field)
			}
		})
	}
}

func TestParseLeaveType_DuplicatePositions_RejectedByDomain(t *testing.T) {
	// GIVEN: An eligibility list that passes tag checks but repeats a value
	// WHEN: Parsing
	// THEN: The domain validation rejects it

	_, err := factory.ParseLeaveType(`{"name":"X","category":"annual","policy":{"accrual_method":"none",
		"eligibility":{"allowed_positions":["Engineer","engineer"]}}}`)
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestToJSON_RoundTripsThroughParse(t *testing.T) {
	lt, err := factory.ParseLeaveType(factory.SickLeaveJSON("SL", "Sick Leave"))
	require.NoError(t, err)

	data, err := json.Marshal(factory.ToJSON(lt))
	require.NoError(t, err)

	again, err := factory.ParseLeaveType(string(data))
	require.NoError(t, err)
	assert.Equal(t, lt.Limits.WindowYears, again.Limits.WindowYears)
	assert.Equal(t, lt.RequiresAttachment, again.RequiresAttachment)
	assert.Equal(t, lt.Deductible, again.Deductible)
}
