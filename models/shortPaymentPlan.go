package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ShortPaymentPlan spreads a record's short over weekly installments. It
// tracks repayment only; record totals already carry short/terms.
// Unique constraint: origin_record_id.
type ShortPaymentPlan struct {
	ID                int                        `gorm:"primary_key" json:"id"`
	EmployeeId        string                     `gorm:"size:64;not null;index:idx_short_plan_employee_status,priority:1" json:"employee_id"`
	OriginRecordId    int                        `gorm:"not null;uniqueIndex" json:"origin_record_id"`
	TotalAmount       decimal.Decimal            `gorm:"type:decimal(18,4);not null" json:"total_amount"`
	InstallmentAmount decimal.Decimal            `gorm:"type:decimal(18,4);not null" json:"installment_amount"`
	Terms             int                        `gorm:"not null" json:"terms"`
	TermsPaid         int                        `gorm:"not null;default:0" json:"terms_paid"`
	PaidAmount        decimal.Decimal            `gorm:"type:decimal(18,4);not null;default:0" json:"paid_amount"`
	Status            ShortPlanStatus            `gorm:"size:20;not null;default:'active';index:idx_short_plan_employee_status,priority:2" json:"status"`
	StartDate         string                     `gorm:"size:10;not null" json:"start_date"`
	Note              string                     `gorm:"type:text" json:"note"`
	CreatedBy         string                     `gorm:"size:64;not null" json:"created_by"`
	Installments      []*ShortPaymentInstallment `gorm:"foreignKey:PlanId" json:"installments"`
	CreatedAt         time.Time                  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time                  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Remaining is the unpaid part of the plan, never negative.
func (p *ShortPaymentPlan) Remaining() decimal.Decimal {
	left := p.TotalAmount.Sub(p.PaidAmount)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}

// ShortPaymentInstallment is one repayment against a plan. Number is
// 1-based and unique per plan.
type ShortPaymentInstallment struct {
	ID              int             `gorm:"primary_key" json:"id"`
	PlanId          int             `gorm:"not null;index:uniq_short_installment,unique" json:"plan_id"`
	Number          int             `gorm:"not null;index:uniq_short_installment,unique" json:"number"`
	PayrollRecordId *int            `gorm:"index" json:"payroll_record_id"`
	Amount          decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	RecordedBy      string          `gorm:"size:64;not null" json:"recorded_by"`
	PaidAt          time.Time       `gorm:"not null" json:"paid_at"`
}

// CreateShortPlan opens a plan over the short of originId. Locked records
// may still get a plan since the record itself is not written. A second
// plan for the same record is ErrUniqueConstraintConflict.
func (s *PayrollStore) CreateShortPlan(ctx context.Context, originId, terms int, startDate, note, actor string) (*ShortPaymentPlan, error) {
	var plan *ShortPaymentPlan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := loadForUpdate(tx, "id = ?", originId)
		if err != nil {
			return fmt.Errorf("payroll record %d: %w", originId, err)
		}
		if !rec.Short.IsPositive() {
			return NewValidationError("origin_record_id", fmt.Sprintf("record %d has no short to repay", rec.ID))
		}
		if terms < 1 {
			terms = EffectiveTerms(rec.ShortPaymentTerms)
		}
		if startDate == "" {
			startDate = rec.BusinessDate
		}
		plan = &ShortPaymentPlan{
			EmployeeId:        rec.EmployeeId,
			OriginRecordId:    rec.ID,
			TotalAmount:       rec.Short,
			InstallmentAmount: RoundMoney(WeeklyShort(rec.Short, terms)),
			Terms:             terms,
			PaidAmount:        decimal.Zero,
			Status:            ShortPlanStatusActive,
			StartDate:         startDate,
			Note:              note,
			CreatedBy:         actor,
		}
		if err := tx.Omit(clause.Associations).Create(plan).Error; err != nil {
			if isDuplicateKeyErr(err) {
				return fmt.Errorf("%w: record %d already has a short payment plan", ErrUniqueConstraintConflict, rec.ID)
			}
			return err
		}
		if err := rec.RecordEvent(PayrollEventShortPlanCreated, plan); err != nil {
			return err
		}
		return flushPending(ctx, tx, rec)
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// RecordShortInstallment books one installment on an active plan. A zero
// amount books the scheduled installment, capped at what is left. The plan
// completes once every term is paid or nothing is left.
func (s *PayrollStore) RecordShortInstallment(ctx context.Context, planId int, amount decimal.Decimal, payrollRecordId *int, actor string, at time.Time) (*ShortPaymentPlan, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := loadActivePlan(tx, planId)
		if err != nil {
			return err
		}
		left := plan.Remaining()
		amount = RoundMoney(amount)
		if amount.IsZero() {
			amount = decimal.Min(plan.InstallmentAmount, left)
		}
		if !amount.IsPositive() {
			return NewValidationError("amount", "installment must be positive")
		}
		if amount.GreaterThan(left) {
			return NewValidationError("amount", fmt.Sprintf("%s exceeds remaining %s", amount, left))
		}
		if payrollRecordId != nil {
			var owners []string
			if err := tx.Model(&PayrollRecord{}).Where("id = ?", *payrollRecordId).Pluck("employee_id", &owners).Error; err != nil {
				return err
			}
			if len(owners) == 0 {
				return fmt.Errorf("payroll record %d: %w", *payrollRecordId, ErrRecordNotFound)
			}
			if owner := owners[0]; owner != plan.EmployeeId {
				return NewValidationError("payroll_record_id", fmt.Sprintf("record %d belongs to %s", *payrollRecordId, owner))
			}
		}

		plan.TermsPaid++
		plan.PaidAmount = RoundMoney(plan.PaidAmount.Add(amount))
		if plan.TermsPaid >= plan.Terms || !plan.Remaining().IsPositive() {
			plan.Status = ShortPlanStatusCompleted
		}
		inst := &ShortPaymentInstallment{
			PlanId:          plan.ID,
			Number:          plan.TermsPaid,
			PayrollRecordId: payrollRecordId,
			Amount:          amount,
			RecordedBy:      actor,
			PaidAt:          at.UTC(),
		}
		if err := tx.Create(inst).Error; err != nil {
			return err
		}
		if err := tx.Model(&ShortPaymentPlan{}).Where("id = ?", plan.ID).Updates(map[string]any{
			"terms_paid":  plan.TermsPaid,
			"paid_amount": plan.PaidAmount,
			"status":      plan.Status,
		}).Error; err != nil {
			return err
		}
		return planEvent(ctx, tx, plan, PayrollEventShortInstallment, map[string]any{
			"plan_id":   plan.ID,
			"number":    inst.Number,
			"amount":    amount,
			"remaining": plan.Remaining(),
			"status":    plan.Status,
			"actor":     actor,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.FindShortPlan(ctx, planId)
}

// CancelShortPlan stops an active plan. Booked installments stay.
func (s *PayrollStore) CancelShortPlan(ctx context.Context, planId int, actor, reason string) (*ShortPaymentPlan, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := loadActivePlan(tx, planId)
		if err != nil {
			return err
		}
		if err := tx.Model(&ShortPaymentPlan{}).Where("id = ?", plan.ID).Update("status", ShortPlanStatusCancelled).Error; err != nil {
			return err
		}
		plan.Status = ShortPlanStatusCancelled
		return planEvent(ctx, tx, plan, PayrollEventShortPlanCancelled, map[string]any{
			"plan_id":   plan.ID,
			"remaining": plan.Remaining(),
			"reason":    reason,
			"actor":     actor,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.FindShortPlan(ctx, planId)
}

// planEvent writes an outbox event against the plan's origin record.
func planEvent(ctx context.Context, tx *gorm.DB, plan *ShortPaymentPlan, eventType PayrollEventType, payload any) error {
	var rec PayrollRecord
	if err := tx.Take(&rec, plan.OriginRecordId).Error; err != nil {
		return fmt.Errorf("payroll record %d: %w", plan.OriginRecordId, err)
	}
	if err := rec.RecordEvent(eventType, payload); err != nil {
		return err
	}
	return flushPending(ctx, tx, &rec)
}

func loadActivePlan(tx *gorm.DB, id int) (*ShortPaymentPlan, error) {
	var plan ShortPaymentPlan
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&plan, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("short payment plan %d: %w", id, ErrRecordNotFound)
	}
	if err != nil {
		return nil, err
	}
	if plan.Status != ShortPlanStatusActive {
		return nil, fmt.Errorf("short payment plan %d is %s: %w", id, plan.Status, ErrShortPlanClosed)
	}
	return &plan, nil
}

func orderInstallments(db *gorm.DB) *gorm.DB {
	return db.Order("number ASC")
}

func (s *PayrollStore) FindShortPlan(ctx context.Context, id int) (*ShortPaymentPlan, error) {
	var plan ShortPaymentPlan
	err := s.db.WithContext(ctx).Preload("Installments", orderInstallments).Take(&plan, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("short payment plan %d: %w", id, ErrRecordNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// ListShortPlans returns plans oldest first. Empty filters match all.
func (s *PayrollStore) ListShortPlans(ctx context.Context, employeeId string, status ShortPlanStatus) ([]*ShortPaymentPlan, error) {
	q := s.db.WithContext(ctx).Preload("Installments", orderInstallments)
	if employeeId != "" {
		q = q.Where("employee_id = ?", employeeId)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	out := []*ShortPaymentPlan{}
	err := q.Order("start_date ASC, id ASC").Find(&out).Error
	return out, err
}
