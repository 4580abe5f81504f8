package models

import (
	"time"

	"github.com/mmdatafocus/payroll_backend/utils"
	"github.com/shopspring/decimal"
)

// PayrollRecordSchemaVersion is the shape written by this codebase.
// Version 1 is the schema-less legacy document (see legacyPayroll.go).
const PayrollRecordSchemaVersion = 2

// PayrollRecord is one employee's pay for one business date.
// Unique constraint: (employee_id, business_date).
type PayrollRecord struct {
	ID                   int             `gorm:"primary_key" json:"id"`
	SchemaVersion        int             `gorm:"not null;default:2" json:"schema_version"`
	EmployeeId           string          `gorm:"size:64;not null;index:uniq_payroll_employee_date,unique" json:"employee_id"`
	BusinessDate         string          `gorm:"size:10;not null;index:uniq_payroll_employee_date,unique;index" json:"business_date"`
	Role                 Role            `gorm:"size:32" json:"role"`
	BaseSalary           decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"base_salary"`
	BaseSalaryOverridden bool            `gorm:"not null;default:false" json:"base_salary_overridden"`
	Over                 decimal.Decimal `gorm:"column:over_amount;type:decimal(18,4);not null;default:0" json:"over"`
	Short                decimal.Decimal `gorm:"column:short_amount;type:decimal(18,4);not null;default:0" json:"short"`
	Deduction            decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"deduction"`
	Withdrawal           decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"withdrawal"`
	ShortPaymentTerms    int             `gorm:"not null;default:1" json:"short_payment_terms"`
	TotalSalary          decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"total_salary"`
	Approved             bool            `gorm:"not null;default:false" json:"approved"`
	ApprovedBy           *string         `gorm:"size:64" json:"approved_by"`
	ApprovedAt           *time.Time      `json:"approved_at"`
	Locked               bool            `gorm:"not null;default:false;index" json:"locked"`
	LockedBy             *string         `gorm:"size:64" json:"locked_by"`
	LockedAt             *time.Time      `json:"locked_at"`
	// Version is bumped on every write; saves are conditional on it.
	Version     int           `gorm:"not null;default:1" json:"version"`
	Adjustments []*Adjustment `gorm:"foreignKey:PayrollRecordId" json:"adjustments"`
	CreatedAt   time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"autoUpdateTime" json:"updated_at"`

	pendingEvents []*PayrollEvent
	pendingAudit  []*PayrollAuditLog
}

// Adjustment is an append-only signed delta on a payroll record's total.
// Rows are inserted once and never updated or deleted.
type Adjustment struct {
	ID              int             `gorm:"primary_key" json:"id"`
	PayrollRecordId int             `gorm:"not null;index" json:"payroll_record_id"`
	Delta           decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"delta"`
	Reason          string          `gorm:"type:text;not null" json:"reason"`
	Actor           string          `gorm:"size:64;not null" json:"actor"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
}

func (Adjustment) TableName() string {
	return "payroll_adjustments"
}

// SourceFields are the values a sync derives from shift reports and settings.
type SourceFields struct {
	Role       Role
	BaseSalary decimal.Decimal
	Over       decimal.Decimal
	Short      decimal.Decimal
}

// ManualFields are the values an authorized actor supplies for a manual entry.
type ManualFields struct {
	// Role defaults to the employee's role.
	Role              Role            `validate:"-"`
	BaseSalary        decimal.Decimal `validate:"-"`
	Over              decimal.Decimal `validate:"-"`
	Short             decimal.Decimal `validate:"-"`
	Deduction         decimal.Decimal `validate:"-"`
	Withdrawal        decimal.Decimal `validate:"-"`
	ShortPaymentTerms int             `validate:"-"`
}

// NewPayrollRecordFromSource builds an unsaved record for a sync-created row.
func NewPayrollRecordFromSource(employeeId, businessDate string, fields SourceFields) *PayrollRecord {
	rec := &PayrollRecord{
		SchemaVersion:     PayrollRecordSchemaVersion,
		EmployeeId:        employeeId,
		BusinessDate:      businessDate,
		Role:              fields.Role,
		BaseSalary:        RoundMoney(fields.BaseSalary),
		Over:              RoundMoney(fields.Over),
		Short:             RoundMoney(fields.Short),
		ShortPaymentTerms: 1,
		Version:           1,
	}
	rec.TotalSalary = RoundMoney(ExpectedTotal(rec))
	return rec
}

// ApplySourceFields refreshes the sync-owned fields. Adjustments, deduction and
// the approval state are never touched. Returns false when nothing changed.
func (p *PayrollRecord) ApplySourceFields(fields SourceFields) bool {
	over := RoundMoney(fields.Over)
	short := RoundMoney(fields.Short)
	base := RoundMoney(fields.BaseSalary)

	changed := false
	if !p.Over.Equal(over) {
		p.Over = over
		changed = true
	}
	if !p.Short.Equal(short) {
		p.Short = short
		changed = true
	}
	if !p.BaseSalaryOverridden && !p.BaseSalary.Equal(base) {
		p.BaseSalary = base
		changed = true
	}
	if p.Role == "" && fields.Role != "" {
		p.Role = fields.Role
		changed = true
	}
	if changed {
		p.TotalSalary = RoundMoney(ExpectedTotal(p))
	}
	return changed
}

func (p *PayrollRecord) State() LockState {
	switch {
	case p.Locked:
		return LockStateLocked
	case p.Approved:
		return LockStateApproved
	}
	return LockStateDraft
}

// Withdrawable is the part of the total not yet paid out, never negative.
func (p *PayrollRecord) Withdrawable() decimal.Decimal {
	open := p.TotalSalary.Sub(p.Withdrawal)
	if open.IsNegative() {
		return decimal.Zero
	}
	return open
}

// RecordEvent queues an outbox event that the store writes in the same
// transaction as the record itself.
func (p *PayrollRecord) RecordEvent(eventType PayrollEventType, payload any) error {
	data, err := utils.MarshalToJSON(payload)
	if err != nil {
		return err
	}
	p.pendingEvents = append(p.pendingEvents, &PayrollEvent{
		EventType:    eventType,
		EmployeeId:   p.EmployeeId,
		BusinessDate: p.BusinessDate,
		Payload:      data,
	})
	return nil
}

// RecordAudit queues an audit log row written with the record.
func (p *PayrollRecord) RecordAudit(entry *PayrollAuditLog) {
	p.pendingAudit = append(p.pendingAudit, entry)
}

func (p *PayrollRecord) DiscardPending() {
	p.pendingEvents = nil
	p.pendingAudit = nil
}

func (p *PayrollRecord) PendingEvents() []*PayrollEvent {
	return p.pendingEvents
}

// UnsavedAdjustments are ledger entries appended in memory but not yet persisted.
func (p *PayrollRecord) UnsavedAdjustments() []*Adjustment {
	var out []*Adjustment
	for _, a := range p.Adjustments {
		if a.ID == 0 {
			out = append(out, a)
		}
	}
	return out
}
