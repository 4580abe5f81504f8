package workflow

import (
	"context"
	"strings"

	"github.com/mmdatafocus/payroll_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// adjustmentRole is the least privileged role allowed to append to the ledger.
const adjustmentRole = models.RoleSupervisor

type AdjustmentInput struct {
	Reason string `validate:"required,max=500"`
	Actor  string `validate:"required,max=64"`
}

// AppendAdjustment appends a signed delta to rec's ledger and persists it
// together with the recomputed total. rec is refreshed with the stored state.
func (e *Engine) AppendAdjustment(ctx context.Context, rec *models.PayrollRecord, delta decimal.Decimal, reason, actor string) (*models.Adjustment, error) {
	if rec == nil {
		return nil, models.NewValidationError("record", "record is required")
	}
	adj, updated, err := e.AppendAdjustmentByID(ctx, rec.ID, delta, reason, actor)
	if err != nil {
		return nil, err
	}
	*rec = *updated
	return adj, nil
}

// AppendAdjustmentByID is AppendAdjustment for callers holding only the id.
func (e *Engine) AppendAdjustmentByID(ctx context.Context, recordID int, delta decimal.Decimal, reason, actor string) (adj *models.Adjustment, rec *models.PayrollRecord, err error) {
	ctx, span := startSpan(ctx, "payroll.ledger.append", attribute.Int("payroll.record_id", recordID))
	defer func() {
		endSpan(span, err)
		LedgerAppends.WithLabelValues(ledgerResult(err)).Inc()
	}()

	reason = strings.TrimSpace(reason)
	if err := validateInput(AdjustmentInput{Reason: reason, Actor: actor}); err != nil {
		return nil, nil, err
	}
	delta = models.RoundMoney(delta)
	if delta.IsZero() {
		return nil, nil, models.NewValidationError("delta", "delta must be non-zero")
	}
	if err := models.ValidateAmount("delta", delta); err != nil {
		return nil, nil, err
	}
	if err := e.authorize(ctx, actor, adjustmentRole); err != nil {
		return nil, nil, err
	}

	release := e.acquireRecordLock(ctx, recordID)
	defer release()

	rec, err = e.store.Mutate(ctx, recordID, func(r *models.PayrollRecord) (bool, error) {
		if r.Locked {
			return false, &models.LockedRecordError{RecordId: r.ID}
		}
		before := r.TotalSalary
		adj = &models.Adjustment{
			PayrollRecordId: r.ID,
			Delta:           delta,
			Reason:          reason,
			Actor:           actor,
			CreatedAt:       e.now(),
		}
		r.Adjustments = append(r.Adjustments, adj)
		r.TotalSalary = models.RoundMoney(models.ExpectedTotal(r))
		if err := models.ValidateAmount("total_salary", r.TotalSalary); err != nil {
			return false, err
		}
		return true, r.RecordEvent(models.PayrollEventAdjusted, map[string]any{
			"delta":        delta,
			"reason":       reason,
			"actor":        actor,
			"total_before": before,
			"total_after":  r.TotalSalary,
		})
	})
	if err != nil {
		return nil, nil, err
	}
	e.logger.WithFields(logrus.Fields{
		"field":       "AppendAdjustment",
		"record_id":   rec.ID,
		"employee_id": rec.EmployeeId,
		"delta":       delta.String(),
		"actor":       actor,
	}).Info("payroll adjustment appended")
	return adj, rec, nil
}

func ledgerResult(err error) string {
	if err == nil {
		return "appended"
	}
	return string(models.KindOf(err))
}
