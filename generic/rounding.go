package generic

import (
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ROUNDING - Applied to cumulative raw accrual, never to single increments
// =============================================================================

// RoundingRule turns a raw accrued amount into the usable one.
type RoundingRule string

const (
	RoundNone RoundingRule = "NONE"       // identity
	RoundHalf RoundingRule = "ROUND"      // nearest integer, halves away from zero
	RoundUp   RoundingRule = "ROUND_UP"   // ceiling
	RoundDown RoundingRule = "ROUND_DOWN" // floor
)

// ApplyRounding is a pure function of amount and rule.
// An unknown rule behaves like NONE.
func ApplyRounding(amount decimal.Decimal, rule RoundingRule) decimal.Decimal {
	switch rule {
	case RoundHalf:
		return amount.Round(0)
	case RoundUp:
		return amount.Ceil()
	case RoundDown:
		return amount.Floor()
	default:
		return amount
	}
}

// ParseRoundingRule accepts the rule names case-insensitively; empty means NONE.
func ParseRoundingRule(s string) (RoundingRule, error) {
	switch RoundingRule(strings.ToUpper(strings.TrimSpace(s))) {
	case "", RoundNone:
		return RoundNone, nil
	case RoundHalf:
		return RoundHalf, nil
	case RoundUp:
		return RoundUp, nil
	case RoundDown:
		return RoundDown, nil
	}
	return "", NewValidationError("rounding_rule", "unknown rounding rule %q", s)
}
