package models

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// maxAmountDigits is the integer part of decimal(18,4).
const maxAmountDigits = 14

var amountLimit = decimal.New(1, maxAmountDigits)

// ValidateAmount rejects values that do not fit a decimal(18,4) column once
// rounded to money scale.
func ValidateAmount(field string, d decimal.Decimal) error {
	if RoundMoney(d).Abs().GreaterThanOrEqual(amountLimit) {
		return NewValidationError(field, "amount exceeds 14 integer digits")
	}
	return nil
}

// AmountFromFloat converts a float amount, rejecting NaN and infinities.
func AmountFromFloat(field string, f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, NewValidationError(field, "amount must be a finite number")
	}
	d := decimal.NewFromFloat(f)
	if err := ValidateAmount(field, d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ParseAmount accepts user-formatted amounts such as "1,250.50", "₱ 450" or "PHP -20".
func ParseAmount(field string, s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	for _, sym := range []string{"₱", "PHP", "php", "Php"} {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	if s == "" || strings.Contains(lower, "nan") || strings.Contains(lower, "inf") {
		return decimal.Zero, NewValidationError(field, "amount must be a finite number")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = strings.TrimSpace(strings.TrimPrefix(s, "-"))
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, NewValidationError(field, "invalid amount "+s)
	}
	if neg {
		d = d.Neg()
	}
	if err := ValidateAmount(field, d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}
