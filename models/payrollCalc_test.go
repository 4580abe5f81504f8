package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestExpectedTotal(t *testing.T) {
	cases := []struct {
		name        string
		rec         PayrollRecord
		adjustments []string
		expected    string
	}{
		{
			name:     "short spread over three terms",
			rec:      PayrollRecord{BaseSalary: d("450"), Short: d("150"), ShortPaymentTerms: 3},
			expected: "400",
		},
		{
			name:        "ledger adds on top",
			rec:         PayrollRecord{BaseSalary: d("450"), Short: d("150"), ShortPaymentTerms: 3},
			adjustments: []string{"50"},
			expected:    "450",
		},
		{
			name:     "over and short in one period",
			rec:      PayrollRecord{BaseSalary: d("450"), Over: d("20"), Short: d("10"), ShortPaymentTerms: 1},
			expected: "460",
		},
		{
			name:     "over with a deduction and no short",
			rec:      PayrollRecord{BaseSalary: d("450"), Over: d("20"), Short: d("0"), Deduction: d("10"), ShortPaymentTerms: 1},
			expected: "460",
		},
		{
			name:     "zero terms behave as one",
			rec:      PayrollRecord{BaseSalary: d("450"), Short: d("100"), ShortPaymentTerms: 0},
			expected: "350",
		},
		{
			name:     "negative terms behave as one",
			rec:      PayrollRecord{BaseSalary: d("450"), Short: d("100"), ShortPaymentTerms: -4},
			expected: "350",
		},
		{
			name:     "deduction subtracts, withdrawal does not",
			rec:      PayrollRecord{BaseSalary: d("450"), Deduction: d("25"), Withdrawal: d("100"), ShortPaymentTerms: 1},
			expected: "425",
		},
		{
			name:        "mixed-sign ledger",
			rec:         PayrollRecord{BaseSalary: d("500"), ShortPaymentTerms: 1},
			adjustments: []string{"30", "-12.5", "0.25"},
			expected:    "517.75",
		},
	}
	for _, tc := range cases {
		rec := tc.rec
		for _, a := range tc.adjustments {
			rec.Adjustments = append(rec.Adjustments, &Adjustment{Delta: d(a)})
		}
		if got := ExpectedTotal(&rec); !got.Equal(d(tc.expected)) {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.expected, got)
		}
	}
}

func TestWithinTolerance(t *testing.T) {
	for _, tc := range []struct {
		drift string
		ok    bool
	}{
		{"0", true},
		{"0.01", true},
		{"-0.01", true},
		{"0.0100", true},
		{"0.0101", false},
		{"-5", false},
	} {
		if got := WithinTolerance(d(tc.drift)); got != tc.ok {
			t.Fatalf("WithinTolerance(%s) = %v, want %v", tc.drift, got, tc.ok)
		}
	}
}

func TestDrift(t *testing.T) {
	rec := &PayrollRecord{BaseSalary: d("450"), Short: d("150"), ShortPaymentTerms: 3, TotalSalary: d("390")}
	if got := Drift(rec); !got.Equal(d("-10")) {
		t.Fatalf("expected drift -10, got %s", got)
	}
}

func TestApplySourceFields(t *testing.T) {
	rec := NewPayrollRecordFromSource("EMP-1", "2024-05-01", SourceFields{
		Role: RoleTeller, BaseSalary: d("450"), Over: d("20"), Short: d("10"),
	})
	if !rec.TotalSalary.Equal(d("460")) {
		t.Fatalf("expected initial total 460, got %s", rec.TotalSalary)
	}
	rec.Adjustments = []*Adjustment{{ID: 1, Delta: d("40")}}
	rec.Deduction = d("5")

	if rec.ApplySourceFields(SourceFields{Role: RoleTeller, BaseSalary: d("450"), Over: d("20"), Short: d("10")}) {
		t.Fatalf("identical source fields must report no change")
	}
	if !rec.ApplySourceFields(SourceFields{Role: RoleTeller, BaseSalary: d("450"), Over: d("30"), Short: d("10")}) {
		t.Fatalf("changed over must report a change")
	}
	// 450 + 30 - 10 - 5 + 40
	if !rec.TotalSalary.Equal(d("505")) {
		t.Fatalf("expected total 505, got %s", rec.TotalSalary)
	}
	if len(rec.Adjustments) != 1 || !rec.Deduction.Equal(d("5")) {
		t.Fatalf("sync must not touch ledger or deduction")
	}

	rec.BaseSalaryOverridden = true
	rec.BaseSalary = d("700")
	rec.ApplySourceFields(SourceFields{Role: RoleTeller, BaseSalary: d("450"), Over: d("30"), Short: d("10")})
	if !rec.BaseSalary.Equal(d("700")) {
		t.Fatalf("overridden base salary was replaced by the role default")
	}
}

func TestState(t *testing.T) {
	rec := &PayrollRecord{}
	if rec.State() != LockStateDraft {
		t.Fatalf("expected draft, got %s", rec.State())
	}
	rec.Approved = true
	if rec.State() != LockStateApproved {
		t.Fatalf("expected approved, got %s", rec.State())
	}
	rec.Locked = true
	if rec.State() != LockStateLocked {
		t.Fatalf("expected locked, got %s", rec.State())
	}
}
