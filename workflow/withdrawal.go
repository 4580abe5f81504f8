package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmdatafocus/payroll_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	withdrawalRequestRole  = models.RoleSupervisor
	withdrawalDecisionRole = models.RoleAdmin
)

const defaultRejectionReason = "No reason provided"

type WithdrawalInput struct {
	EmployeeId string `validate:"required,max=64"`
	RecordIDs  []int  `validate:"required,min=1,max=100,dive,gt=0"`
	// Amount is a partial payout and only applies to a single record.
	// Zero withdraws everything still open on each record.
	Amount    decimal.Decimal `validate:"-"`
	WeekRange string          `validate:"max=32"`
	Actor     string          `validate:"required,max=64"`
}

// RequestWithdrawal opens a pending withdrawal over one or more unlocked
// records of one employee. Employees may request their own; anyone else
// needs the supervisor role. A record already held by a pending or approved
// withdrawal is a UniqueConstraintConflict.
func (e *Engine) RequestWithdrawal(ctx context.Context, in WithdrawalInput) (w *models.Withdrawal, err error) {
	ctx, span := startSpan(ctx, "payroll.withdrawal.request", attribute.String("payroll.employee_id", in.EmployeeId))
	defer func() { endSpan(span, err) }()

	in.WeekRange = strings.TrimSpace(in.WeekRange)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	seen := make(map[int]bool, len(in.RecordIDs))
	for _, id := range in.RecordIDs {
		if seen[id] {
			return nil, models.NewValidationError("record_ids", fmt.Sprintf("record %d listed twice", id))
		}
		seen[id] = true
	}
	if !in.Amount.IsZero() {
		if len(in.RecordIDs) != 1 {
			return nil, models.NewValidationError("amount", "a custom amount needs exactly one record")
		}
		if !in.Amount.IsPositive() {
			return nil, models.NewValidationError("amount", "must be positive")
		}
		if err := models.ValidateAmount("amount", in.Amount); err != nil {
			return nil, err
		}
	}

	required := withdrawalRequestRole
	if in.Actor == in.EmployeeId {
		required = models.RoleTeller
	}
	if err := e.authorize(ctx, in.Actor, required); err != nil {
		return nil, err
	}

	lines := make([]models.WithdrawalLine, 0, len(in.RecordIDs))
	for _, id := range in.RecordIDs {
		lines = append(lines, models.WithdrawalLine{RecordID: id, Amount: in.Amount})
	}
	w, err = e.store.CreateWithdrawal(ctx, in.EmployeeId, in.Actor, in.WeekRange, lines)
	if err != nil {
		return nil, err
	}
	e.logger.WithFields(logrus.Fields{
		"field":         "Withdrawal",
		"withdrawal_id": w.ID,
		"employee_id":   w.EmployeeId,
		"records":       len(w.Items),
		"amount":        w.Amount.String(),
		"actor":         in.Actor,
	}).Info("payroll withdrawal requested")
	return w, nil
}

// ApproveWithdrawal pays a pending withdrawal out: each item's amount is
// added to its record's withdrawal field in one transaction. A record
// locked since the request fails the whole approval.
func (e *Engine) ApproveWithdrawal(ctx context.Context, id int, actor string) (w *models.Withdrawal, err error) {
	ctx, span := startSpan(ctx, "payroll.withdrawal.approve", attribute.Int("payroll.withdrawal_id", id))
	defer func() { endSpan(span, err) }()

	if err := e.authorize(ctx, actor, withdrawalDecisionRole); err != nil {
		return nil, err
	}
	w, err = e.store.ApproveWithdrawal(ctx, id, actor, e.now())
	if err != nil {
		return nil, err
	}
	e.logWithdrawalDecision(w, actor)
	return w, nil
}

// RejectWithdrawal closes a pending withdrawal without touching its records,
// which become available for another request.
func (e *Engine) RejectWithdrawal(ctx context.Context, id int, reason, actor string) (w *models.Withdrawal, err error) {
	ctx, span := startSpan(ctx, "payroll.withdrawal.reject", attribute.Int("payroll.withdrawal_id", id))
	defer func() { endSpan(span, err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultRejectionReason
	}
	if len(reason) > 500 {
		return nil, models.NewValidationError("reason", "must be at most 500 characters")
	}
	if err := e.authorize(ctx, actor, withdrawalDecisionRole); err != nil {
		return nil, err
	}
	w, err = e.store.RejectWithdrawal(ctx, id, actor, reason, e.now())
	if err != nil {
		return nil, err
	}
	e.logWithdrawalDecision(w, actor)
	return w, nil
}

func (e *Engine) logWithdrawalDecision(w *models.Withdrawal, actor string) {
	e.logger.WithFields(logrus.Fields{
		"field":         "Withdrawal",
		"withdrawal_id": w.ID,
		"employee_id":   w.EmployeeId,
		"status":        w.Status,
		"amount":        w.Amount.String(),
		"actor":         actor,
	}).Info("payroll withdrawal decided")
}

func (e *Engine) GetWithdrawal(ctx context.Context, id int) (*models.Withdrawal, error) {
	return e.store.FindWithdrawal(ctx, id)
}

func (e *Engine) ListWithdrawals(ctx context.Context, employeeId string, status models.WithdrawalStatus) ([]*models.Withdrawal, error) {
	if status != "" && !status.IsValid() {
		return nil, models.NewValidationError("status", "unknown withdrawal status "+string(status))
	}
	return e.store.ListWithdrawals(ctx, employeeId, status)
}
