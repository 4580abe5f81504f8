package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mmdatafocus/payroll_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	baseSalaryRole  = models.RoleAdmin
	manualEntryRole = models.RoleSupervisor
)

type BaseSalaryInput struct {
	Reason string `validate:"required,max=500"`
	Actor  string `validate:"required,max=64"`
}

// SetBaseSalary overrides a record's base salary. The record stops taking
// the role default on later syncs. The change is audited and the total is
// recomputed in the same write.
func (e *Engine) SetBaseSalary(ctx context.Context, recordID int, amount decimal.Decimal, reason, actor string) (*models.PayrollRecord, error) {
	reason = strings.TrimSpace(reason)
	if err := validateInput(BaseSalaryInput{Reason: reason, Actor: actor}); err != nil {
		return nil, err
	}
	if amount.IsNegative() {
		return nil, models.NewValidationError("base_salary", "must not be negative")
	}
	if err := models.ValidateAmount("base_salary", amount); err != nil {
		return nil, err
	}
	amount = models.RoundMoney(amount)
	if err := e.authorize(ctx, actor, baseSalaryRole); err != nil {
		return nil, err
	}

	release := e.acquireRecordLock(ctx, recordID)
	defer release()

	return e.store.Mutate(ctx, recordID, func(r *models.PayrollRecord) (bool, error) {
		if r.Locked {
			return false, &models.LockedRecordError{RecordId: r.ID}
		}
		if r.BaseSalaryOverridden && r.BaseSalary.Equal(amount) {
			return false, nil
		}
		before := r.BaseSalary
		totalBefore := r.TotalSalary
		r.BaseSalary = amount
		r.BaseSalaryOverridden = true
		r.TotalSalary = models.RoundMoney(models.ExpectedTotal(r))
		if err := models.ValidateAmount("total_salary", r.TotalSalary); err != nil {
			return false, err
		}
		r.RecordAudit(&models.PayrollAuditLog{
			ActionType:  models.AuditActionUpdateBaseSalary,
			PerformedBy: actor,
			EmployeeId:  r.EmployeeId,
			Role:        r.Role,
			ValueBefore: before,
			ValueAfter:  amount,
			Reason:      reason,
		})
		return true, r.RecordEvent(models.PayrollEventBaseSalarySet, map[string]any{
			"base_before":  before,
			"base_after":   amount,
			"total_before": totalBefore,
			"total_after":  r.TotalSalary,
			"actor":        actor,
		})
	})
}

type ManualEntryInput struct {
	EmployeeId   string `validate:"required,max=64"`
	BusinessDate string `validate:"required"`
	Actor        string `validate:"required,max=64"`
	Reason       string `validate:"required,max=500"`
	Fields       models.ManualFields
}

// CreateManual inserts a payroll row entered by hand. It goes through the
// same unique key as sync, so an existing (employee, date) row is a
// UniqueConstraintConflict rather than a second row.
func (e *Engine) CreateManual(ctx context.Context, in ManualEntryInput) (*models.PayrollRecord, error) {
	in.Reason = strings.TrimSpace(in.Reason)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	date, err := models.ParseBusinessDate(in.BusinessDate)
	if err != nil {
		return nil, err
	}
	f := in.Fields
	if f.Role != "" && !f.Role.IsValid() {
		return nil, models.NewValidationError("role", "unknown role "+string(f.Role))
	}
	for _, amt := range []struct {
		name  string
		value decimal.Decimal
	}{
		{"base_salary", f.BaseSalary},
		{"over", f.Over},
		{"short", f.Short},
		{"deduction", f.Deduction},
		{"withdrawal", f.Withdrawal},
	} {
		if amt.value.IsNegative() {
			return nil, models.NewValidationError(amt.name, "must not be negative")
		}
		if err := models.ValidateAmount(amt.name, amt.value); err != nil {
			return nil, err
		}
	}
	if err := e.authorize(ctx, in.Actor, manualEntryRole); err != nil {
		return nil, err
	}
	var emp *models.Employee
	err = e.callExternal(ctx, "employees", in.EmployeeId, func(ctx context.Context) error {
		found, err := e.employees.FindEmployee(ctx, in.EmployeeId)
		if err == nil {
			emp = found
		}
		return err
	})
	if errors.Is(err, models.ErrRecordNotFound) {
		return nil, models.NewValidationError("employee_id", "unknown employee "+in.EmployeeId)
	}
	if err != nil {
		return nil, err
	}
	if !emp.Active {
		return nil, models.NewValidationError("employee_id", "employee "+in.EmployeeId+" is inactive")
	}
	// The employee's own role decides the salary default; entering a row
	// under another role is an admin decision.
	if f.Role == "" {
		f.Role = emp.Role
	}
	if f.Role != emp.Role {
		if err := e.authorize(ctx, in.Actor, models.RoleAdmin); err != nil {
			return nil, fmt.Errorf("entry as %s for a %s: %w", f.Role, emp.Role, err)
		}
	}

	base := f.BaseSalary
	overridden := !base.IsZero()
	if !overridden {
		err = e.callExternal(ctx, "settings", in.EmployeeId, func(ctx context.Context) error {
			amount, err := e.settings.DefaultBaseSalary(ctx, f.Role)
			if err == nil {
				base = amount
			}
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	rec := &models.PayrollRecord{
		SchemaVersion:        models.PayrollRecordSchemaVersion,
		EmployeeId:           in.EmployeeId,
		BusinessDate:         date,
		Role:                 f.Role,
		BaseSalary:           models.RoundMoney(base),
		BaseSalaryOverridden: overridden,
		Over:                 models.RoundMoney(f.Over),
		Short:                models.RoundMoney(f.Short),
		Deduction:            models.RoundMoney(f.Deduction),
		Withdrawal:           models.RoundMoney(f.Withdrawal),
		ShortPaymentTerms:    models.EffectiveTerms(f.ShortPaymentTerms),
		Version:              1,
	}
	rec.TotalSalary = models.RoundMoney(models.ExpectedTotal(rec))
	if err := models.ValidateAmount("total_salary", rec.TotalSalary); err != nil {
		return nil, err
	}
	rec.RecordAudit(&models.PayrollAuditLog{
		ActionType:  models.AuditActionManualEntry,
		PerformedBy: in.Actor,
		EmployeeId:  in.EmployeeId,
		Role:        f.Role,
		ValueBefore: decimal.Zero,
		ValueAfter:  rec.TotalSalary,
		Reason:      in.Reason,
	})
	if err := rec.RecordEvent(models.PayrollEventCreated, map[string]any{
		"source":      "manual",
		"actor":       in.Actor,
		"base_salary": rec.BaseSalary,
		"total":       rec.TotalSalary,
	}); err != nil {
		return nil, err
	}
	if err := e.store.CreateManual(ctx, rec); err != nil {
		return nil, err
	}
	e.logger.WithFields(logrus.Fields{
		"field":         "CreateManual",
		"record_id":     rec.ID,
		"employee_id":   rec.EmployeeId,
		"business_date": rec.BusinessDate,
		"actor":         in.Actor,
	}).Info("manual payroll entry created")
	return rec, nil
}
