/*
Package factory provides JSON to Go leave type conversion.

PURPOSE:
  Converts JSON leave type definitions into leave.LeaveType values so HR
  can configure policies without code changes. Input is checked twice:
  validator tags on the JSON shape, then LeaveType.Validate on the result
  (rounding rule, eligibility lists).

JSON SCHEMA:
  {
    "code": "AL",
    "name": "Annual Leave",
    "category": "annual",
    "deductible": true,
    "policy": {
      "accrual_method": "monthly",
      "monthly_rate": 1.75,
      "yearly_rate": 21,
      "rounding_rule": "ROUND_DOWN",
      "allow_carry_forward": true,
      "max_carry_forward": 5,
      "min_notice_days": 7,
      "eligibility": {"min_tenure_months": 3, "allowed_contract_types": ["permanent"]}
    },
    "limits": {"max_days_per_year": 30, "max_days_per_window": 360, "window_years": 3},
    "attachments": {"max_bytes": 5242880, "allowed_types": ["application/pdf"]}
  }

USAGE:
  lt, err := factory.ParseLeaveType(factory.AnnualLeaveJSON("AL", "Annual Leave", 21, 5))
  err = svc.CreateLeaveType(ctx, lt)

SEE ALSO:
  - leave/catalog.go: LeaveType.Validate and CreateLeaveType
  - api/handlers.go: POST /leave-types accepts this schema
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type LeaveTypeJSON struct {
	ID                 string           `json:"id,omitempty"`
	Code               string           `json:"code,omitempty" validate:"max=32"`
	Name               string           `json:"name" validate:"required,max=100"`
	Category           string           `json:"category" validate:"required,oneof=annual sick unpaid other"`
	Deductible         *bool            `json:"deductible,omitempty"` // default true
	RequiresAttachment bool             `json:"requires_attachment,omitempty"`
	Policy             PolicyJSON       `json:"policy"`
	Limits             *LimitsJSON      `json:"limits,omitempty"`
	Attachments        *AttachmentsJSON `json:"attachments,omitempty"`
}

type PolicyJSON struct {
	AccrualMethod     string           `json:"accrual_method" validate:"required,oneof=monthly yearly none"`
	MonthlyRate       float64          `json:"monthly_rate,omitempty" validate:"gte=0"`
	YearlyRate        float64          `json:"yearly_rate,omitempty" validate:"gte=0"`
	RoundingRule      string           `json:"rounding_rule,omitempty" validate:"omitempty,oneof=NONE ROUND ROUND_UP ROUND_DOWN"`
	AllowCarryForward bool             `json:"allow_carry_forward,omitempty"`
	MaxCarryForward   float64          `json:"max_carry_forward,omitempty" validate:"gte=0"`
	MinNoticeDays     int              `json:"min_notice_days,omitempty" validate:"gte=0"`
	Eligibility       *EligibilityJSON `json:"eligibility,omitempty"`
}

type EligibilityJSON struct {
	MinTenureMonths      int      `json:"min_tenure_months,omitempty" validate:"gte=0"`
	AllowedPositions     []string `json:"allowed_positions,omitempty" validate:"dive,required"`
	AllowedContractTypes []string `json:"allowed_contract_types,omitempty" validate:"dive,required"`
}

type LimitsJSON struct {
	MaxDaysPerYear   float64 `json:"max_days_per_year,omitempty" validate:"gte=0"`
	MaxDaysPerWindow float64 `json:"max_days_per_window,omitempty" validate:"gte=0"`
	WindowYears      int     `json:"window_years,omitempty" validate:"gte=0"`
}

type AttachmentsJSON struct {
	MaxBytes     int64    `json:"max_bytes,omitempty" validate:"gte=0"`
	AllowedTypes []string `json:"allowed_types,omitempty" validate:"dive,required"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseLeaveType parses and validates a JSON leave type definition.
func ParseLeaveType(jsonStr string) (*leave.LeaveType, error) {
	var lj LeaveTypeJSON
	if err := json.Unmarshal([]byte(jsonStr), &lj); err != nil {
		return nil, generic.NewValidationError("", "malformed leave type JSON: %v", err)
	}
	return FromJSON(lj)
}

// FromJSON converts a decoded definition. The result is fully validated.
func FromJSON(lj LeaveTypeJSON) (*leave.LeaveType, error) {
	if err := ValidateStruct(lj); err != nil {
		return nil, err
	}

	deductible := true
	if lj.Deductible != nil {
		deductible = *lj.Deductible
	}

	lt := &leave.LeaveType{
		ID:                 lj.ID,
		Code:               lj.Code,
		Name:               lj.Name,
		Category:           leave.Category(lj.Category),
		Deductible:         deductible,
		RequiresAttachment: lj.RequiresAttachment,
		Policy: leave.Policy{
			AccrualMethod:     leave.AccrualMethod(lj.Policy.AccrualMethod),
			MonthlyRate:       decimal.NewFromFloat(lj.Policy.MonthlyRate),
			YearlyRate:        decimal.NewFromFloat(lj.Policy.YearlyRate),
			RoundingRule:      generic.RoundingRule(lj.Policy.RoundingRule),
			AllowCarryForward: lj.Policy.AllowCarryForward,
			MaxCarryForward:   decimal.NewFromFloat(lj.Policy.MaxCarryForward),
			MinNoticeDays:     lj.Policy.MinNoticeDays,
		},
	}
	if lt.Policy.RoundingRule == "" {
		lt.Policy.RoundingRule = generic.RoundNone
	}
	if e := lj.Policy.Eligibility; e != nil {
		lt.Policy.Eligibility = leave.Eligibility{
			MinTenureMonths:      e.MinTenureMonths,
			AllowedPositions:     e.AllowedPositions,
			AllowedContractTypes: e.AllowedContractTypes,
		}
	}
	if l := lj.Limits; l != nil {
		lt.Limits = leave.CumulativeLimits{
			MaxDaysPerYear:   decimal.NewFromFloat(l.MaxDaysPerYear),
			MaxDaysPerWindow: decimal.NewFromFloat(l.MaxDaysPerWindow),
			WindowYears:      l.WindowYears,
		}
	}
	if a := lj.Attachments; a != nil {
		lt.Attachments = leave.AttachmentRules{MaxBytes: a.MaxBytes, AllowedTypes: a.AllowedTypes}
	}

	if err := lt.Validate(); err != nil {
		return nil, fmt.Errorf("leave type %q: %w", lj.Name, err)
	}
	return lt, nil
}

// ToJSON converts a LeaveType back to its JSON definition.
func ToJSON(lt *leave.LeaveType) LeaveTypeJSON {
	deductible := lt.Deductible
	lj := LeaveTypeJSON{
		ID:                 lt.ID,
		Code:               lt.Code,
		Name:               lt.Name,
		Category:           string(lt.Category),
		Deductible:         &deductible,
		RequiresAttachment: lt.RequiresAttachment,
		Policy: PolicyJSON{
			AccrualMethod:     string(lt.Policy.AccrualMethod),
			MonthlyRate:       lt.Policy.MonthlyRate.InexactFloat64(),
			YearlyRate:        lt.Policy.YearlyRate.InexactFloat64(),
			RoundingRule:      string(lt.Policy.RoundingRule),
			AllowCarryForward: lt.Policy.AllowCarryForward,
			MaxCarryForward:   lt.Policy.MaxCarryForward.InexactFloat64(),
			MinNoticeDays:     lt.Policy.MinNoticeDays,
		},
	}
	if e := lt.Policy.Eligibility; e.MinTenureMonths > 0 || len(e.AllowedPositions) > 0 || len(e.AllowedContractTypes) > 0 {
		lj.Policy.Eligibility = &EligibilityJSON{
			MinTenureMonths:      e.MinTenureMonths,
			AllowedPositions:     e.AllowedPositions,
			AllowedContractTypes: e.AllowedContractTypes,
		}
	}
	if l := lt.Limits; !l.MaxDaysPerYear.IsZero() || !l.MaxDaysPerWindow.IsZero() {
		lj.Limits = &LimitsJSON{
			MaxDaysPerYear:   l.MaxDaysPerYear.InexactFloat64(),
			MaxDaysPerWindow: l.MaxDaysPerWindow.InexactFloat64(),
			WindowYears:      l.WindowYears,
		}
	}
	if a := lt.Attachments; a.MaxBytes > 0 || len(a.AllowedTypes) > 0 {
		lj.Attachments = &AttachmentsJSON{MaxBytes: a.MaxBytes, AllowedTypes: a.AllowedTypes}
	}
	return lj
}
