package workflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mmdatafocus/payroll_backend/models"
	"github.com/mmdatafocus/payroll_backend/workflow"
)

func TestShortPlan_InstallmentsComplete(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	rec := env.draftRecord(t, tellerID, "2024-05-01")
	payday := env.draftRecord(t, tellerID, "2024-05-08")

	plan, err := env.engine.CreateShortPlan(ctx, workflow.ShortPlanInput{OriginRecordId: rec.ID, Terms: 3, Note: " uniform ", Actor: supervisorID})
	if err != nil {
		t.Fatalf("CreateShortPlan: %v", err)
	}
	if plan.Status != models.ShortPlanStatusActive || !plan.TotalAmount.Equal(dec("150")) || !plan.InstallmentAmount.Equal(dec("50")) {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if plan.StartDate != "2024-05-01" || plan.Note != "uniform" || plan.EmployeeId != tellerID {
		t.Fatalf("unexpected plan defaults %+v", plan)
	}
	if n := env.countEvents(t, rec.ID, models.PayrollEventShortPlanCreated); n != 1 {
		t.Fatalf("expected one plan created event, got %d", n)
	}

	plan, err = env.engine.RecordShortInstallment(ctx, workflow.InstallmentInput{PlanId: plan.ID, PayrollRecordId: &payday.ID, Actor: supervisorID})
	if err != nil {
		t.Fatalf("first installment: %v", err)
	}
	if plan.TermsPaid != 1 || !plan.PaidAmount.Equal(dec("50")) || !plan.Remaining().Equal(dec("100")) {
		t.Fatalf("unexpected plan after one installment %+v", plan)
	}
	if len(plan.Installments) != 1 || plan.Installments[0].Number != 1 || *plan.Installments[0].PayrollRecordId != payday.ID {
		t.Fatalf("unexpected installments %+v", plan.Installments)
	}

	due, err := env.engine.ShortDeductionDue(ctx, tellerID)
	if err != nil {
		t.Fatalf("ShortDeductionDue: %v", err)
	}
	if !due.HasActivePlans || !due.WeeklyDeduction.Equal(dec("50")) || !due.Remaining.Equal(dec("100")) {
		t.Fatalf("unexpected deduction %+v", due)
	}

	// A larger payment settles the rest early.
	plan, err = env.engine.RecordShortInstallment(ctx, workflow.InstallmentInput{PlanId: plan.ID, Amount: dec("100"), Actor: supervisorID})
	if err != nil {
		t.Fatalf("second installment: %v", err)
	}
	if plan.Status != models.ShortPlanStatusCompleted || !plan.Remaining().IsZero() {
		t.Fatalf("expected completed plan, got %+v", plan)
	}
	if _, err := env.engine.RecordShortInstallment(ctx, workflow.InstallmentInput{PlanId: plan.ID, Actor: supervisorID}); !errors.Is(err, models.ErrShortPlanClosed) {
		t.Fatalf("installment on completed plan: expected ErrShortPlanClosed, got %v", err)
	}
	if n := env.countEvents(t, rec.ID, models.PayrollEventShortInstallment); n != 2 {
		t.Fatalf("expected two installment events, got %d", n)
	}

	due, err = env.engine.ShortDeductionDue(ctx, tellerID)
	if err != nil {
		t.Fatalf("ShortDeductionDue: %v", err)
	}
	if due.HasActivePlans || !due.WeeklyDeduction.IsZero() || len(due.Plans) != 0 {
		t.Fatalf("expected nothing due, got %+v", due)
	}
	// Plans track repayment only.
	if got := env.mustFind(t, rec.ID); !got.TotalSalary.Equal(dec("300")) {
		t.Fatalf("plan changed total to %s", got.TotalSalary)
	}
}

func TestShortPlan_CompletesAfterLastTerm(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	rec := env.draftRecord(t, tellerID, "2024-05-01")

	plan, err := env.engine.CreateShortPlan(ctx, workflow.ShortPlanInput{OriginRecordId: rec.ID, Terms: 2, StartDate: "2024-05-06", Actor: supervisorID})
	if err != nil {
		t.Fatalf("CreateShortPlan: %v", err)
	}
	for i := 0; i < 2; i++ {
		plan, err = env.engine.RecordShortInstallment(ctx, workflow.InstallmentInput{PlanId: plan.ID, Amount: dec("10"), Actor: supervisorID})
		if err != nil {
			t.Fatalf("installment %d: %v", i+1, err)
		}
	}
	if plan.Status != models.ShortPlanStatusCompleted || plan.TermsPaid != 2 || !plan.Remaining().Equal(dec("130")) {
		t.Fatalf("expected completed after the last term, got %+v", plan)
	}
}

func TestShortPlan_Cancel(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	rec := env.draftRecord(t, tellerID, "2024-05-01")
	env.lockRecord(t, rec)

	// A locked record can still be repaid.
	plan, err := env.engine.CreateShortPlan(ctx, workflow.ShortPlanInput{OriginRecordId: rec.ID, Actor: supervisorID})
	if err != nil {
		t.Fatalf("CreateShortPlan on locked record: %v", err)
	}
	if plan.Terms != 1 || !plan.InstallmentAmount.Equal(dec("150")) {
		t.Fatalf("expected the record's terms, got %+v", plan)
	}
	if _, err := env.engine.CreateShortPlan(ctx, workflow.ShortPlanInput{OriginRecordId: rec.ID, Actor: supervisorID}); !errors.Is(err, models.ErrUniqueConstraintConflict) {
		t.Fatalf("second plan: expected unique conflict, got %v", err)
	}

	plan, err = env.engine.CancelShortPlan(ctx, plan.ID, "left the company", supervisorID)
	if err != nil {
		t.Fatalf("CancelShortPlan: %v", err)
	}
	if plan.Status != models.ShortPlanStatusCancelled {
		t.Fatalf("expected cancelled, got %s", plan.Status)
	}
	if _, err := env.engine.CancelShortPlan(ctx, plan.ID, "", supervisorID); models.KindOf(err) != models.ErrorKindInvalidTransition {
		t.Fatalf("cancel twice: expected invalid_transition, got %v", err)
	}
	if n := env.countEvents(t, rec.ID, models.PayrollEventShortPlanCancelled); n != 1 {
		t.Fatalf("expected one cancelled event, got %d", n)
	}
	cancelled, err := env.engine.ListShortPlans(ctx, tellerID, models.ShortPlanStatusCancelled)
	if err != nil || len(cancelled) != 1 {
		t.Fatalf("ListShortPlans: %d plans, err=%v", len(cancelled), err)
	}
}

func TestShortPlan_Rejects(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	rec := env.draftRecord(t, tellerID, "2024-05-01")
	other := env.draftRecord(t, tellerTwoID, "2024-05-01")
	clean, _, err := env.store.UpsertByEmployeeDate(ctx, tellerID, "2024-05-02", models.SourceFields{
		Role:       models.RoleTeller,
		BaseSalary: dec("450"),
		Over:       dec("0"),
		Short:      dec("0"),
	})
	if err != nil {
		t.Fatalf("UpsertByEmployeeDate: %v", err)
	}

	createCases := []struct {
		name string
		in   workflow.ShortPlanInput
		kind models.ErrorKind
	}{
		{"no short", workflow.ShortPlanInput{OriginRecordId: clean.ID, Actor: supervisorID}, models.ErrorKindValidation},
		{"bad start date", workflow.ShortPlanInput{OriginRecordId: rec.ID, StartDate: "05/01/2024", Actor: supervisorID}, models.ErrorKindValidation},
		{"too many terms", workflow.ShortPlanInput{OriginRecordId: rec.ID, Terms: 53, Actor: supervisorID}, models.ErrorKindValidation},
		{"unknown record", workflow.ShortPlanInput{OriginRecordId: 9999, Actor: supervisorID}, models.ErrorKindNotFound},
		{"teller", workflow.ShortPlanInput{OriginRecordId: rec.ID, Actor: tellerID}, models.ErrorKindNotAuthorized},
	}
	for _, tc := range createCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.engine.CreateShortPlan(ctx, tc.in)
			if got := models.KindOf(err); got != tc.kind {
				t.Fatalf("expected %s, got %s (%v)", tc.kind, got, err)
			}
		})
	}

	plan, err := env.engine.CreateShortPlan(ctx, workflow.ShortPlanInput{OriginRecordId: rec.ID, Terms: 3, Actor: supervisorID})
	if err != nil {
		t.Fatalf("CreateShortPlan: %v", err)
	}
	installCases := []struct {
		name string
		in   workflow.InstallmentInput
		kind models.ErrorKind
	}{
		{"above remaining", workflow.InstallmentInput{PlanId: plan.ID, Amount: dec("150.01"), Actor: supervisorID}, models.ErrorKindValidation},
		{"negative", workflow.InstallmentInput{PlanId: plan.ID, Amount: dec("-1"), Actor: supervisorID}, models.ErrorKindValidation},
		{"record of another employee", workflow.InstallmentInput{PlanId: plan.ID, PayrollRecordId: &other.ID, Actor: supervisorID}, models.ErrorKindValidation},
		{"unknown plan", workflow.InstallmentInput{PlanId: 9999, Actor: supervisorID}, models.ErrorKindNotFound},
		{"teller", workflow.InstallmentInput{PlanId: plan.ID, Actor: tellerID}, models.ErrorKindNotAuthorized},
	}
	for _, tc := range installCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.engine.RecordShortInstallment(ctx, tc.in)
			if got := models.KindOf(err); got != tc.kind {
				t.Fatalf("expected %s, got %s (%v)", tc.kind, got, err)
			}
		})
	}

	stored, err := env.engine.GetShortPlan(ctx, plan.ID)
	if err != nil {
		t.Fatalf("GetShortPlan: %v", err)
	}
	if stored.TermsPaid != 0 || len(stored.Installments) != 0 {
		t.Fatalf("rejected installments were stored: %+v", stored)
	}
	if _, err := env.engine.ShortDeductionDue(ctx, ""); models.KindOf(err) != models.ErrorKindValidation {
		t.Fatalf("empty employee: expected validation, got %v", err)
	}
}
