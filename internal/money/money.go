// Package money provides the numeric coercion and rounding rules applied to
// every monetary field before persistence.
package money

import (
	"math"

	"github.com/shopspring/decimal"
)

// epsilon compensates for binary float representation before rounding so
// values like 32.395 land on 32.40 instead of 32.39.
const epsilon = 1e-9

// SafeNumber coerces an arbitrary input to a finite float64. Nil, empty and
// malformed values (including concatenation artifacts like "12.50.30") fall
// back to zero instead of poisoning an entire invoice.
func SafeNumber(value any) float64 {
	return SafeNumberOr(value, 0)
}

// SafeNumberOr coerces value to a finite float64, returning fallback when the
// input is nil, empty, non-finite or not numeric.
func SafeNumberOr(value any, fallback float64) float64 {
	switch typed := value.(type) {
	case nil:
		return fallback
	case float64:
		return finiteOr(typed, fallback)
	case float32:
		return finiteOr(float64(typed), fallback)
	case int:
		return float64(typed)
	case int32:
		return float64(typed)
	case int64:
		return float64(typed)
	case uint:
		return float64(typed)
	case uint64:
		return float64(typed)
	case decimal.Decimal:
		return typed.InexactFloat64()
	case *float64:
		if typed == nil {
			return fallback
		}
		return finiteOr(*typed, fallback)
	case string:
		if typed == "" {
			return fallback
		}
		parsed, err := decimal.NewFromString(typed)
		if err != nil {
			return fallback
		}
		return finiteOr(parsed.InexactFloat64(), fallback)
	default:
		return fallback
	}
}

// Round2 rounds to two decimal places, half away from zero.
func Round2(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	if value < 0 {
		return -Round2(-value)
	}
	return math.Round((value+epsilon)*100) / 100
}

func finiteOr(value, fallback float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fallback
	}
	return value
}
