package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayrollAuditLog records privileged edits that are not ledger entries:
// base salary changes, role default changes, manual entries, legacy imports.
type PayrollAuditLog struct {
	ID              int             `gorm:"primary_key" json:"id"`
	ActionType      AuditActionType `gorm:"size:40;not null;index:idx_audit_action_created,priority:1" json:"action_type"`
	PerformedBy     string          `gorm:"size:64;not null;index" json:"performed_by"`
	PayrollRecordId *int            `gorm:"index" json:"payroll_record_id"`
	EmployeeId      string          `gorm:"size:64;index" json:"employee_id"`
	Role            Role            `gorm:"size:32" json:"role"`
	ValueBefore     decimal.Decimal `gorm:"type:decimal(18,4)" json:"value_before"`
	ValueAfter      decimal.Decimal `gorm:"type:decimal(18,4)" json:"value_after"`
	Reason          string          `gorm:"type:text" json:"reason"`
	CorrelationId   string          `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt       time.Time       `gorm:"autoCreateTime;index:idx_audit_action_created,priority:2" json:"created_at"`
}
