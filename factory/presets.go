package factory

import "encoding/json"

// AnnualLeaveJSON returns JSON for a deductible annual leave type accruing
// yearlyDays/12 per month, rounded down, with a carry-forward cap.
func AnnualLeaveJSON(code, name string, yearlyDays, maxCarryForward float64) string {
	lj := map[string]any{
		"code":       code,
		"name":       name,
		"category":   "annual",
		"deductible": true,
		"policy": map[string]any{
			"accrual_method":      "monthly",
			"monthly_rate":        yearlyDays / 12,
			"yearly_rate":         yearlyDays,
			"rounding_rule":       "ROUND_DOWN",
			"allow_carry_forward": maxCarryForward > 0,
			"max_carry_forward":   maxCarryForward,
			"min_notice_days":     7,
		},
	}
	b, _ := json.MarshalIndent(lj, "", "  ")
	return string(b)
}

// SickLeaveJSON returns JSON for sick leave: a supporting document over one
// day, at most 30 days per year and 360 per rolling three years.
func SickLeaveJSON(code, name string) string {
	lj := map[string]any{
		"code":                code,
		"name":                name,
		"category":            "sick",
		"deductible":          false,
		"requires_attachment": true,
		"policy": map[string]any{
			"accrual_method": "none",
			"rounding_rule":  "NONE",
		},
		"limits": map[string]any{
			"max_days_per_year":   30,
			"max_days_per_window": 360,
			"window_years":        3,
		},
	}
	b, _ := json.MarshalIndent(lj, "", "  ")
	return string(b)
}

// UnpaidLeaveJSON returns JSON for unpaid leave, which never touches a balance.
func UnpaidLeaveJSON(code, name string, minNoticeDays int) string {
	lj := map[string]any{
		"code":       code,
		"name":       name,
		"category":   "unpaid",
		"deductible": false,
		"policy": map[string]any{
			"accrual_method":  "none",
			"min_notice_days": minNoticeDays,
		},
	}
	b, _ := json.MarshalIndent(lj, "", "  ")
	return string(b)
}
