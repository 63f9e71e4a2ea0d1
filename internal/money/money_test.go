package money

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSafeNumber_Coercion(t *testing.T) {
	cases := []struct {
		name  string
		input any
		want  float64
	}{
		{"nil", nil, 0},
		{"float64", 12.5, 12.5},
		{"int", 7, 7},
		{"int64", int64(-3), -3},
		{"numeric string", "12.50", 12.5},
		{"negative string", "-4.25", -4.25},
		{"empty string", "", 0},
		{"concatenated string", "12.50.30", 0},
		{"garbage string", "abc", 0},
		{"nan", math.NaN(), 0},
		{"positive inf", math.Inf(1), 0},
		{"decimal", decimal.NewFromFloat(9.99), 9.99},
		{"unsupported type", struct{}{}, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SafeNumber(tc.input))
		})
	}
}

func TestSafeNumberOr_Fallback(t *testing.T) {
	assert.Equal(t, 42.0, SafeNumberOr(nil, 42))
	assert.Equal(t, 42.0, SafeNumberOr("not-a-number", 42))
	assert.Equal(t, 1.5, SafeNumberOr("1.5", 42))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 32.4, Round2(32.395))
	assert.Equal(t, 212.4, Round2(212.40000000001))
	assert.Equal(t, 0.0, Round2(math.NaN()))
	assert.Equal(t, -10.57, Round2(-10.565))
	assert.Equal(t, 100.0, Round2(99.999))
	assert.Equal(t, 0.1, Round2(0.1))
}
