package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CheckTypePayrollTotal = "PAYROLL_TOTAL"
	EntityTypePayroll     = "PayrollRecord"
)

// ReconciliationReport is a drift that could not be corrected automatically
// (the record is locked) and needs manual review.
type ReconciliationReport struct {
	ID            int             `gorm:"primary_key" json:"id"`
	CheckType     string          `gorm:"size:50;index;not null" json:"check_type"`
	EntityType    string          `gorm:"size:50;index;not null" json:"entity_type"`
	EntityId      int             `gorm:"index;not null" json:"entity_id"`
	EmployeeId    string          `gorm:"size:64;index" json:"employee_id"`
	BusinessDate  string          `gorm:"size:10;index" json:"business_date"`
	StoredTotal   decimal.Decimal `gorm:"type:decimal(18,4)" json:"stored_total"`
	ExpectedTotal decimal.Decimal `gorm:"type:decimal(18,4)" json:"expected_total"`
	Drift         decimal.Decimal `gorm:"type:decimal(18,4)" json:"drift"`
	Details       string          `gorm:"type:text" json:"details"`
	CorrelationId string          `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
