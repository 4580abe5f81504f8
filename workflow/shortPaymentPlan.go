package workflow

import (
	"context"
	"strings"

	"github.com/mmdatafocus/payroll_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const shortPlanRole = models.RoleSupervisor

type ShortPlanInput struct {
	OriginRecordId int `validate:"required,gt=0"`
	// Terms defaults to the origin record's installment count.
	Terms     int    `validate:"gte=0,max=52"`
	StartDate string `validate:"omitempty"`
	Note      string `validate:"max=500"`
	Actor     string `validate:"required,max=64"`
}

type InstallmentInput struct {
	PlanId int `validate:"required,gt=0"`
	// Amount defaults to the scheduled installment.
	Amount          decimal.Decimal `validate:"-"`
	PayrollRecordId *int            `validate:"omitempty,gt=0"`
	Actor           string          `validate:"required,max=64"`
}

// ShortDeduction is what an employee's active plans still expect per week.
type ShortDeduction struct {
	EmployeeId      string                     `json:"employee_id"`
	HasActivePlans  bool                       `json:"has_active_plans"`
	WeeklyDeduction decimal.Decimal            `json:"weekly_deduction"`
	Remaining       decimal.Decimal            `json:"remaining"`
	Plans           []*models.ShortPaymentPlan `json:"plans"`
}

// CreateShortPlan opens a repayment plan for a record's short. A record gets
// at most one plan; a second one is a UniqueConstraintConflict.
func (e *Engine) CreateShortPlan(ctx context.Context, in ShortPlanInput) (plan *models.ShortPaymentPlan, err error) {
	ctx, span := startSpan(ctx, "payroll.shortplan.create", attribute.Int("payroll.record_id", in.OriginRecordId))
	defer func() { endSpan(span, err) }()

	in.Note = strings.TrimSpace(in.Note)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.StartDate != "" {
		if in.StartDate, err = models.ParseBusinessDate(in.StartDate); err != nil {
			return nil, err
		}
	}
	if err := e.authorize(ctx, in.Actor, shortPlanRole); err != nil {
		return nil, err
	}
	plan, err = e.store.CreateShortPlan(ctx, in.OriginRecordId, in.Terms, in.StartDate, in.Note, in.Actor)
	if err != nil {
		return nil, err
	}
	e.logShortPlan(plan, in.Actor, "payroll short payment plan created")
	return plan, nil
}

// RecordShortInstallment books one installment against an active plan.
func (e *Engine) RecordShortInstallment(ctx context.Context, in InstallmentInput) (plan *models.ShortPaymentPlan, err error) {
	ctx, span := startSpan(ctx, "payroll.shortplan.installment", attribute.Int("payroll.short_plan_id", in.PlanId))
	defer func() { endSpan(span, err) }()

	if err := validateInput(in); err != nil {
		return nil, err
	}
	if in.Amount.IsNegative() {
		return nil, models.NewValidationError("amount", "must not be negative")
	}
	if err := models.ValidateAmount("amount", in.Amount); err != nil {
		return nil, err
	}
	if err := e.authorize(ctx, in.Actor, shortPlanRole); err != nil {
		return nil, err
	}
	plan, err = e.store.RecordShortInstallment(ctx, in.PlanId, in.Amount, in.PayrollRecordId, in.Actor, e.now())
	if err != nil {
		return nil, err
	}
	e.logShortPlan(plan, in.Actor, "payroll short installment recorded")
	return plan, nil
}

func (e *Engine) CancelShortPlan(ctx context.Context, planId int, reason, actor string) (plan *models.ShortPaymentPlan, err error) {
	ctx, span := startSpan(ctx, "payroll.shortplan.cancel", attribute.Int("payroll.short_plan_id", planId))
	defer func() { endSpan(span, err) }()

	reason = strings.TrimSpace(reason)
	if len(reason) > 500 {
		return nil, models.NewValidationError("reason", "must be at most 500 characters")
	}
	if err := e.authorize(ctx, actor, shortPlanRole); err != nil {
		return nil, err
	}
	plan, err = e.store.CancelShortPlan(ctx, planId, actor, reason)
	if err != nil {
		return nil, err
	}
	e.logShortPlan(plan, actor, "payroll short payment plan cancelled")
	return plan, nil
}

func (e *Engine) logShortPlan(plan *models.ShortPaymentPlan, actor, msg string) {
	e.logger.WithFields(logrus.Fields{
		"field":       "ShortPlan",
		"plan_id":     plan.ID,
		"record_id":   plan.OriginRecordId,
		"employee_id": plan.EmployeeId,
		"status":      plan.Status,
		"paid":        plan.PaidAmount.String(),
		"remaining":   plan.Remaining().String(),
		"actor":       actor,
	}).Info(msg)
}

func (e *Engine) GetShortPlan(ctx context.Context, id int) (*models.ShortPaymentPlan, error) {
	return e.store.FindShortPlan(ctx, id)
}

func (e *Engine) ListShortPlans(ctx context.Context, employeeId string, status models.ShortPlanStatus) ([]*models.ShortPaymentPlan, error) {
	if status != "" && !status.IsValid() {
		return nil, models.NewValidationError("status", "unknown short plan status "+string(status))
	}
	return e.store.ListShortPlans(ctx, employeeId, status)
}

// ShortDeductionDue sums the weekly installment of every active plan of
// employeeId, each capped at what the plan still owes.
func (e *Engine) ShortDeductionDue(ctx context.Context, employeeId string) (*ShortDeduction, error) {
	if employeeId == "" {
		return nil, models.NewValidationError("employee_id", "employee id is required")
	}
	plans, err := e.store.ListShortPlans(ctx, employeeId, models.ShortPlanStatusActive)
	if err != nil {
		return nil, err
	}
	out := &ShortDeduction{
		EmployeeId:      employeeId,
		HasActivePlans:  len(plans) > 0,
		WeeklyDeduction: decimal.Zero,
		Remaining:       decimal.Zero,
		Plans:           plans,
	}
	for _, p := range plans {
		left := p.Remaining()
		out.WeeklyDeduction = out.WeeklyDeduction.Add(decimal.Min(p.InstallmentAmount, left))
		out.Remaining = out.Remaining.Add(left)
	}
	return out, nil
}
