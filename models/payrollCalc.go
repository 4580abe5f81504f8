package models

import (
	"github.com/shopspring/decimal"
)

// DriftTolerance is the largest |stored - expected| treated as consistent.
var DriftTolerance = decimal.New(1, -2)

// moneyScale is the number of decimal places persisted for amounts.
const moneyScale = 4

func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyScale)
}

// EffectiveTerms collapses a non-positive installment count to 1.
func EffectiveTerms(terms int) int {
	if terms < 1 {
		return 1
	}
	return terms
}

// WeeklyShort is the installment of the cash shortage charged to this period.
func WeeklyShort(short decimal.Decimal, terms int) decimal.Decimal {
	return short.Div(decimal.NewFromInt(int64(EffectiveTerms(terms))))
}

// BaseTotal is the pay before ledger adjustments:
// base + over - short/terms - deduction.
func BaseTotal(p *PayrollRecord) decimal.Decimal {
	return p.BaseSalary.
		Add(p.Over).
		Sub(WeeklyShort(p.Short, p.ShortPaymentTerms)).
		Sub(p.Deduction)
}

func LedgerTotal(p *PayrollRecord) decimal.Decimal {
	total := decimal.Zero
	for _, a := range p.Adjustments {
		total = total.Add(a.Delta)
	}
	return total
}

func ExpectedTotal(p *PayrollRecord) decimal.Decimal {
	return BaseTotal(p).Add(LedgerTotal(p))
}

// Drift is stored total minus expected total.
func Drift(p *PayrollRecord) decimal.Decimal {
	return p.TotalSalary.Sub(ExpectedTotal(p))
}

func WithinTolerance(drift decimal.Decimal) bool {
	return drift.Abs().LessThanOrEqual(DriftTolerance)
}
