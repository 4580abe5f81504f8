package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ShiftReport is a teller's end-of-shift cash count. Read-only to payroll.
type ShiftReport struct {
	ID            int             `gorm:"primary_key" json:"id"`
	EmployeeId    string          `gorm:"size:64;not null;index:idx_shift_employee_date,priority:1" json:"employee_id"`
	BusinessDate  string          `gorm:"size:10;not null;index:idx_shift_employee_date,priority:2;index" json:"business_date"`
	SystemBalance decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"system_balance"`
	CashOnHand    decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"cash_on_hand"`
	Over          decimal.Decimal `gorm:"column:over_amount;type:decimal(18,4);not null;default:0" json:"over"`
	Short         decimal.Decimal `gorm:"column:short_amount;type:decimal(18,4);not null;default:0" json:"short"`
	Remarks       string          `gorm:"type:text" json:"remarks"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// NewShiftReport derives over/short from cash - system balance:
// a positive difference is over, a negative one is stored as the short magnitude.
func NewShiftReport(employeeId, businessDate string, systemBalance, cashOnHand decimal.Decimal) *ShiftReport {
	r := &ShiftReport{
		EmployeeId:    employeeId,
		BusinessDate:  businessDate,
		SystemBalance: systemBalance,
		CashOnHand:    cashOnHand,
		Over:          decimal.Zero,
		Short:         decimal.Zero,
	}
	diff := cashOnHand.Sub(systemBalance)
	if diff.IsPositive() {
		r.Over = diff
	} else if diff.IsNegative() {
		r.Short = diff.Abs()
	}
	return r
}

// DayAggregate is the over/short attributed to one employee-day.
type DayAggregate struct {
	EmployeeId   string
	BusinessDate string
	Over         decimal.Decimal
	Short        decimal.Decimal
	ReportCount  int
	// Ambiguous is set when several reports exist and the policy refuses to choose.
	Ambiguous bool
}

// AggregateDay folds one employee-day's reports under policy.
func AggregateDay(employeeId, businessDate string, reports []*ShiftReport, policy SameDayPolicy) DayAggregate {
	agg := DayAggregate{
		EmployeeId:   employeeId,
		BusinessDate: businessDate,
		Over:         decimal.Zero,
		Short:        decimal.Zero,
		ReportCount:  len(reports),
	}
	if len(reports) == 0 {
		return agg
	}
	if len(reports) == 1 {
		agg.Over = reports[0].Over
		agg.Short = reports[0].Short
		return agg
	}
	switch policy {
	case SameDayPolicySum:
		for _, r := range reports {
			agg.Over = agg.Over.Add(r.Over)
			agg.Short = agg.Short.Add(r.Short)
		}
	case SameDayPolicyLatest:
		latest := reports[0]
		for _, r := range reports[1:] {
			if r.CreatedAt.After(latest.CreatedAt) || (r.CreatedAt.Equal(latest.CreatedAt) && r.ID > latest.ID) {
				latest = r
			}
		}
		agg.Over = latest.Over
		agg.Short = latest.Short
	default:
		agg.Ambiguous = true
	}
	return agg
}

// GroupReportsByDate buckets reports by business date; dates are returned sorted.
func GroupReportsByDate(reports []*ShiftReport) ([]string, map[string][]*ShiftReport) {
	byDate := make(map[string][]*ShiftReport)
	var dates []string
	for _, r := range reports {
		if _, ok := byDate[r.BusinessDate]; !ok {
			dates = append(dates, r.BusinessDate)
		}
		byDate[r.BusinessDate] = append(byDate[r.BusinessDate], r)
	}
	sort.Strings(dates)
	return dates, byDate
}
