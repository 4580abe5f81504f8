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

// Withdrawal is an employee's request to be paid out one or more payroll
// records. It stays pending until an admin approves or rejects it.
type Withdrawal struct {
	ID              int               `gorm:"primary_key" json:"id"`
	EmployeeId      string            `gorm:"size:64;not null;index:idx_withdrawal_employee_status,priority:1" json:"employee_id"`
	Amount          decimal.Decimal   `gorm:"type:decimal(18,4);not null" json:"amount"`
	Remaining       decimal.Decimal   `gorm:"type:decimal(18,4);not null;default:0" json:"remaining"`
	WeekRange       string            `gorm:"size:32" json:"week_range"`
	Status          WithdrawalStatus  `gorm:"size:20;not null;default:'pending';index:idx_withdrawal_employee_status,priority:2" json:"status"`
	RequestedBy     string            `gorm:"size:64;not null" json:"requested_by"`
	DecidedBy       *string           `gorm:"size:64" json:"decided_by"`
	DecidedAt       *time.Time        `json:"decided_at"`
	RejectionReason string            `gorm:"type:text" json:"rejection_reason,omitempty"`
	Items           []*WithdrawalItem `gorm:"foreignKey:WithdrawalId" json:"items"`
	CreatedAt       time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// WithdrawalItem is one payroll record inside a withdrawal. HoldRecordId
// equals PayrollRecordId while the withdrawal is pending or approved and is
// cleared on rejection; its unique index keeps a record in at most one
// live withdrawal.
type WithdrawalItem struct {
	ID              int             `gorm:"primary_key" json:"id"`
	WithdrawalId    int             `gorm:"not null;index" json:"withdrawal_id"`
	PayrollRecordId int             `gorm:"not null;index" json:"payroll_record_id"`
	Amount          decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	HoldRecordId    *int            `gorm:"uniqueIndex:uniq_withdrawal_hold" json:"-"`
}

// WithdrawalLine asks for amount from one record. A zero amount means
// everything still withdrawable on it.
type WithdrawalLine struct {
	RecordID int
	Amount   decimal.Decimal
}

// CreateWithdrawal stores a pending withdrawal over lines. Every record must
// belong to employeeId, be unlocked and not already be in a live
// withdrawal; each line amount must be positive and at most what is still
// withdrawable on the record. Records are row-locked for the duration of the insert.
func (s *PayrollStore) CreateWithdrawal(ctx context.Context, employeeId, requestedBy, weekRange string, lines []WithdrawalLine) (*Withdrawal, error) {
	w := &Withdrawal{
		EmployeeId:  employeeId,
		Amount:      decimal.Zero,
		WeekRange:   weekRange,
		Status:      WithdrawalStatusPending,
		RequestedBy: requestedBy,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		recs := make([]*PayrollRecord, 0, len(lines))
		for _, line := range lines {
			rec, err := loadForUpdate(tx, "id = ?", line.RecordID)
			if err != nil {
				return fmt.Errorf("payroll record %d: %w", line.RecordID, err)
			}
			if rec.EmployeeId != employeeId {
				return NewValidationError("record_ids", fmt.Sprintf("record %d belongs to %s", rec.ID, rec.EmployeeId))
			}
			if rec.Locked {
				return &LockedRecordError{RecordId: rec.ID}
			}
			open := rec.Withdrawable()
			amount := RoundMoney(line.Amount)
			if amount.IsZero() {
				amount = open
			}
			if !amount.IsPositive() {
				return NewValidationError("amount", fmt.Sprintf("record %d has nothing to withdraw", rec.ID))
			}
			if amount.GreaterThan(open) {
				return NewValidationError("amount", fmt.Sprintf("record %d: %s exceeds withdrawable %s", rec.ID, amount, open))
			}
			id := rec.ID
			w.Items = append(w.Items, &WithdrawalItem{PayrollRecordId: rec.ID, Amount: amount, HoldRecordId: &id})
			w.Amount = w.Amount.Add(amount)
			recs = append(recs, rec)
		}

		available, err := unheldBalance(tx, employeeId)
		if err != nil {
			return err
		}
		// The requested records are still unheld here.
		w.Remaining = RoundMoney(available.Sub(w.Amount))

		if err := tx.Omit(clause.Associations).Create(w).Error; err != nil {
			return err
		}
		for _, item := range w.Items {
			item.WithdrawalId = w.ID
			if err := tx.Create(item).Error; err != nil {
				if isDuplicateKeyErr(err) {
					return fmt.Errorf("%w: record %d is already in a pending or approved withdrawal", ErrUniqueConstraintConflict, item.PayrollRecordId)
				}
				return err
			}
		}
		for i, rec := range recs {
			if err := rec.RecordEvent(PayrollEventWithdrawalRequested, map[string]any{
				"withdrawal_id": w.ID,
				"amount":        w.Items[i].Amount,
				"requested_by":  requestedBy,
			}); err != nil {
				return err
			}
			if err := flushPending(ctx, tx, rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// unheldBalance sums what is still withdrawable on employeeId's records that
// are not part of a pending or approved withdrawal.
func unheldBalance(tx *gorm.DB, employeeId string) (decimal.Decimal, error) {
	var rows []struct {
		TotalSalary decimal.Decimal
		Withdrawal  decimal.Decimal
	}
	held := tx.Model(&WithdrawalItem{}).Select("hold_record_id").Where("hold_record_id IS NOT NULL")
	err := tx.Model(&PayrollRecord{}).
		Select("total_salary", "withdrawal").
		Where("employee_id = ?", employeeId).
		Where("id NOT IN (?)", held).
		Find(&rows).Error
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, r := range rows {
		if open := r.TotalSalary.Sub(r.Withdrawal); open.IsPositive() {
			sum = sum.Add(open)
		}
	}
	return sum, nil
}

// ApproveWithdrawal marks a pending withdrawal approved and adds each item's
// amount to its record's withdrawal field. Any locked record rolls the whole
// approval back.
func (s *PayrollStore) ApproveWithdrawal(ctx context.Context, id int, actor string, at time.Time) (*Withdrawal, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := loadPendingWithdrawal(tx, id)
		if err != nil {
			return err
		}
		for _, item := range w.Items {
			rec, err := loadForUpdate(tx, "id = ?", item.PayrollRecordId)
			if err != nil {
				return fmt.Errorf("payroll record %d: %w", item.PayrollRecordId, err)
			}
			if rec.Locked {
				return &LockedRecordError{RecordId: rec.ID}
			}
			before := rec.Withdrawal
			rec.Withdrawal = RoundMoney(rec.Withdrawal.Add(item.Amount))
			rec.RecordAudit(&PayrollAuditLog{
				ActionType:  AuditActionWithdrawal,
				PerformedBy: actor,
				Role:        rec.Role,
				ValueBefore: before,
				ValueAfter:  rec.Withdrawal,
				Reason:      fmt.Sprintf("withdrawal %d", w.ID),
			})
			if err := rec.RecordEvent(PayrollEventWithdrawalApproved, map[string]any{
				"withdrawal_id":     w.ID,
				"amount":            item.Amount,
				"withdrawal_before": before,
				"withdrawal_after":  rec.Withdrawal,
				"actor":             actor,
			}); err != nil {
				return err
			}
			if err := saveTx(ctx, tx, rec); err != nil {
				return err
			}
		}
		return decideWithdrawal(tx, w, WithdrawalStatusApproved, actor, "", at)
	})
	if err != nil {
		return nil, err
	}
	return s.FindWithdrawal(ctx, id)
}

// RejectWithdrawal marks a pending withdrawal rejected and releases its
// records for another request. Records are not written, so locked records
// can be released too.
func (s *PayrollStore) RejectWithdrawal(ctx context.Context, id int, actor, reason string, at time.Time) (*Withdrawal, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := loadPendingWithdrawal(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Model(&WithdrawalItem{}).Where("withdrawal_id = ?", w.ID).Update("hold_record_id", nil).Error; err != nil {
			return err
		}
		for _, item := range w.Items {
			var rec PayrollRecord
			if err := tx.Take(&rec, item.PayrollRecordId).Error; err != nil {
				return fmt.Errorf("payroll record %d: %w", item.PayrollRecordId, err)
			}
			if err := rec.RecordEvent(PayrollEventWithdrawalRejected, map[string]any{
				"withdrawal_id": w.ID,
				"reason":        reason,
				"actor":         actor,
			}); err != nil {
				return err
			}
			if err := flushPending(ctx, tx, &rec); err != nil {
				return err
			}
		}
		return decideWithdrawal(tx, w, WithdrawalStatusRejected, actor, reason, at)
	})
	if err != nil {
		return nil, err
	}
	return s.FindWithdrawal(ctx, id)
}

func loadPendingWithdrawal(tx *gorm.DB, id int) (*Withdrawal, error) {
	var w Withdrawal
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&w, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("withdrawal %d: %w", id, ErrRecordNotFound)
	}
	if err != nil {
		return nil, err
	}
	if w.Status != WithdrawalStatusPending {
		return nil, fmt.Errorf("withdrawal %d is %s: %w", id, w.Status, ErrWithdrawalDecided)
	}
	if err := tx.Where("withdrawal_id = ?", w.ID).Order("id ASC").Find(&w.Items).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func decideWithdrawal(tx *gorm.DB, w *Withdrawal, status WithdrawalStatus, actor, reason string, at time.Time) error {
	at = at.UTC()
	return tx.Model(&Withdrawal{}).
		Where("id = ? AND status = ?", w.ID, WithdrawalStatusPending).
		Updates(map[string]any{
			"status":           status,
			"decided_by":       actor,
			"decided_at":       &at,
			"rejection_reason": reason,
		}).Error
}

func orderWithdrawalItems(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}

func (s *PayrollStore) FindWithdrawal(ctx context.Context, id int) (*Withdrawal, error) {
	var w Withdrawal
	err := s.db.WithContext(ctx).Preload("Items", orderWithdrawalItems).Take(&w, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("withdrawal %d: %w", id, ErrRecordNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWithdrawals returns withdrawals newest first. Empty filters match all.
func (s *PayrollStore) ListWithdrawals(ctx context.Context, employeeId string, status WithdrawalStatus) ([]*Withdrawal, error) {
	q := s.db.WithContext(ctx).Preload("Items", orderWithdrawalItems)
	if employeeId != "" {
		q = q.Where("employee_id = ?", employeeId)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	out := []*Withdrawal{}
	err := q.Order("created_at DESC, id DESC").Find(&out).Error
	return out, err
}
