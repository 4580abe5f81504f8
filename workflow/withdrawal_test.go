package workflow_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mmdatafocus/payroll_backend/models"
	"github.com/mmdatafocus/payroll_backend/workflow"
)

func (env *testEnv) lockRecord(t *testing.T, rec *models.PayrollRecord) {
	t.Helper()
	ctx := context.Background()
	if _, err := env.engine.Approve(ctx, rec, supervisorID); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if _, err := env.engine.Lock(ctx, rec, adminID); err != nil {
		t.Fatalf("Lock: %v", err)
	}
}

func TestWithdrawal_RequestAndApprove(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	first := env.draftRecord(t, tellerID, "2024-05-01")
	second := env.draftRecord(t, tellerID, "2024-05-02")
	env.draftRecord(t, tellerID, "2024-05-03")

	w, err := env.engine.RequestWithdrawal(ctx, workflow.WithdrawalInput{
		EmployeeId: tellerID,
		RecordIDs:  []int{first.ID, second.ID},
		WeekRange:  "2024-W18",
		Actor:      tellerID,
	})
	if err != nil {
		t.Fatalf("RequestWithdrawal: %v", err)
	}
	if w.Status != models.WithdrawalStatusPending || len(w.Items) != 2 || !w.Amount.Equal(dec("600")) {
		t.Fatalf("unexpected withdrawal %+v", w)
	}
	// Only the third record is still unheld.
	if !w.Remaining.Equal(dec("300")) {
		t.Fatalf("expected remaining 300, got %s", w.Remaining)
	}
	if n := env.countEvents(t, first.ID, models.PayrollEventWithdrawalRequested); n != 1 {
		t.Fatalf("expected one requested event, got %d", n)
	}
	if got := env.mustFind(t, first.ID); !got.Withdrawal.IsZero() {
		t.Fatalf("request must not pay out, withdrawal=%s", got.Withdrawal)
	}

	w, err = env.engine.ApproveWithdrawal(ctx, w.ID, adminID)
	if err != nil {
		t.Fatalf("ApproveWithdrawal: %v", err)
	}
	if w.Status != models.WithdrawalStatusApproved || w.DecidedBy == nil || *w.DecidedBy != adminID || w.DecidedAt == nil {
		t.Fatalf("approval not stamped: %+v", w)
	}
	for _, id := range []int{first.ID, second.ID} {
		rec := env.mustFind(t, id)
		if !rec.Withdrawal.Equal(dec("300")) {
			t.Fatalf("record %d: expected withdrawal 300, got %s", id, rec.Withdrawal)
		}
		// Withdrawal is paid out of the total, not subtracted from it.
		if !rec.TotalSalary.Equal(dec("300")) {
			t.Fatalf("record %d: total changed to %s", id, rec.TotalSalary)
		}
		if n := env.countEvents(t, id, models.PayrollEventWithdrawalApproved); n != 1 {
			t.Fatalf("record %d: expected one approved event, got %d", id, n)
		}
	}
	var audits int64
	if err := env.db.Model(&models.PayrollAuditLog{}).Where("action_type = ?", models.AuditActionWithdrawal).Count(&audits).Error; err != nil {
		t.Fatalf("count audit rows: %v", err)
	}
	if audits != 2 {
		t.Fatalf("expected 2 withdrawal audit rows, got %d", audits)
	}

	if _, err := env.engine.ApproveWithdrawal(ctx, w.ID, adminID); !errors.Is(err, models.ErrWithdrawalDecided) {
		t.Fatalf("second approval: expected ErrWithdrawalDecided, got %v", err)
	}
	if _, err := env.engine.RejectWithdrawal(ctx, w.ID, "", adminID); models.KindOf(err) != models.ErrorKindInvalidTransition {
		t.Fatalf("rejecting an approved withdrawal: expected invalid_transition, got %v", err)
	}
}

func TestWithdrawal_PartialAmountAndHold(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	rec := env.draftRecord(t, tellerID, "2024-05-01")

	w, err := env.engine.RequestWithdrawal(ctx, workflow.WithdrawalInput{
		EmployeeId: tellerID,
		RecordIDs:  []int{rec.ID},
		Amount:     dec("120.5"),
		Actor:      supervisorID,
	})
	if err != nil {
		t.Fatalf("RequestWithdrawal: %v", err)
	}
	if !w.Items[0].Amount.Equal(dec("120.5")) || !w.Remaining.Equal(dec("179.5")) {
		t.Fatalf("unexpected partial withdrawal %+v item=%+v", w, w.Items[0])
	}

	_, err = env.engine.RequestWithdrawal(ctx, workflow.WithdrawalInput{EmployeeId: tellerID, RecordIDs: []int{rec.ID}, Actor: tellerID})
	if !errors.Is(err, models.ErrUniqueConstraintConflict) {
		t.Fatalf("held record: expected unique conflict, got %v", err)
	}

	if _, err := env.engine.ApproveWithdrawal(ctx, w.ID, adminID); err != nil {
		t.Fatalf("ApproveWithdrawal: %v", err)
	}
	got := env.mustFind(t, rec.ID)
	if !got.Withdrawal.Equal(dec("120.5")) || !got.Withdrawable().Equal(dec("179.5")) {
		t.Fatalf("unexpected record withdrawal=%s withdrawable=%s", got.Withdrawal, got.Withdrawable())
	}
}

func TestWithdrawal_RejectReleasesRecords(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	rec := env.draftRecord(t, tellerID, "2024-05-01")
	in := workflow.WithdrawalInput{EmployeeId: tellerID, RecordIDs: []int{rec.ID}, Actor: tellerID}

	w, err := env.engine.RequestWithdrawal(ctx, in)
	if err != nil {
		t.Fatalf("RequestWithdrawal: %v", err)
	}
	w, err = env.engine.RejectWithdrawal(ctx, w.ID, "  ", adminID)
	if err != nil {
		t.Fatalf("RejectWithdrawal: %v", err)
	}
	if w.Status != models.WithdrawalStatusRejected || w.RejectionReason != "No reason provided" {
		t.Fatalf("unexpected rejected withdrawal %+v", w)
	}
	if got := env.mustFind(t, rec.ID); !got.Withdrawal.IsZero() {
		t.Fatalf("rejection paid out %s", got.Withdrawal)
	}
	if n := env.countEvents(t, rec.ID, models.PayrollEventWithdrawalRejected); n != 1 {
		t.Fatalf("expected one rejected event, got %d", n)
	}

	again, err := env.engine.RequestWithdrawal(ctx, in)
	if err != nil {
		t.Fatalf("request after rejection: %v", err)
	}
	if again.ID == w.ID {
		t.Fatalf("expected a new withdrawal")
	}
	pending, err := env.engine.ListWithdrawals(ctx, tellerID, models.WithdrawalStatusPending)
	if err != nil {
		t.Fatalf("ListWithdrawals: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != again.ID {
		t.Fatalf("expected only the new withdrawal pending, got %d", len(pending))
	}
}

func TestWithdrawal_LockedRecords(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	locked := env.draftRecord(t, tellerID, "2024-05-01")
	env.lockRecord(t, locked)

	_, err := env.engine.RequestWithdrawal(ctx, workflow.WithdrawalInput{EmployeeId: tellerID, RecordIDs: []int{locked.ID}, Actor: tellerID})
	if !models.IsLockedRecord(err) {
		t.Fatalf("locked record: expected LockedRecordError, got %v", err)
	}

	// A record locked after the request fails the approval as a whole.
	open := env.draftRecord(t, tellerID, "2024-05-02")
	later := env.draftRecord(t, tellerID, "2024-05-03")
	w, err := env.engine.RequestWithdrawal(ctx, workflow.WithdrawalInput{EmployeeId: tellerID, RecordIDs: []int{open.ID, later.ID}, Actor: tellerID})
	if err != nil {
		t.Fatalf("RequestWithdrawal: %v", err)
	}
	env.lockRecord(t, later)
	if _, err := env.engine.ApproveWithdrawal(ctx, w.ID, adminID); !models.IsLockedRecord(err) {
		t.Fatalf("approval over a locked record: expected LockedRecordError, got %v", err)
	}
	if got := env.mustFind(t, open.ID); !got.Withdrawal.IsZero() {
		t.Fatalf("failed approval left withdrawal %s on record %d", got.Withdrawal, open.ID)
	}
	stored, err := env.engine.GetWithdrawal(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetWithdrawal: %v", err)
	}
	if stored.Status != models.WithdrawalStatusPending {
		t.Fatalf("failed approval changed status to %s", stored.Status)
	}
	if _, err := env.engine.RejectWithdrawal(ctx, w.ID, "record locked", adminID); err != nil {
		t.Fatalf("rejecting over a locked record: %v", err)
	}
}

func TestWithdrawal_Rejects(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	rec := env.draftRecord(t, tellerID, "2024-05-01")
	other := env.draftRecord(t, tellerTwoID, "2024-05-01")

	cases := []struct {
		name string
		in   workflow.WithdrawalInput
		kind models.ErrorKind
	}{
		{"no records", workflow.WithdrawalInput{EmployeeId: tellerID, Actor: tellerID}, models.ErrorKindValidation},
		{"listed twice", workflow.WithdrawalInput{EmployeeId: tellerID, RecordIDs: []int{rec.ID, rec.ID}, Actor: tellerID}, models.ErrorKindValidation},
		{"amount over several records", workflow.WithdrawalInput{EmployeeId: tellerID, RecordIDs: []int{rec.ID, other.ID}, Amount: dec("10"), Actor: supervisorID}, models.ErrorKindValidation},
		{"negative amount", workflow.WithdrawalInput{EmployeeId: tellerID, RecordIDs: []int{rec.ID}, Amount: dec("-5"), Actor: tellerID}, models.ErrorKindValidation},
		{"amount above total", workflow.WithdrawalInput{EmployeeId: tellerID, RecordIDs: []int{rec.ID}, Amount: dec("300.01"), Actor: tellerID}, models.ErrorKindValidation},
		{"record of another employee", workflow.WithdrawalInput{EmployeeId: tellerID, RecordIDs: []int{other.ID}, Actor: supervisorID}, models.ErrorKindValidation},
		{"unknown record", workflow.WithdrawalInput{EmployeeId: tellerID, RecordIDs: []int{9999}, Actor: tellerID}, models.ErrorKindNotFound},
		{"teller for someone else", workflow.WithdrawalInput{EmployeeId: tellerID, RecordIDs: []int{rec.ID}, Actor: tellerTwoID}, models.ErrorKindNotAuthorized},
		{"inactive employee for self", workflow.WithdrawalInput{EmployeeId: inactiveID, RecordIDs: []int{rec.ID}, Actor: inactiveID}, models.ErrorKindNotAuthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.engine.RequestWithdrawal(ctx, tc.in)
			if got := models.KindOf(err); got != tc.kind {
				t.Fatalf("expected %s, got %s (%v)", tc.kind, got, err)
			}
		})
	}

	var n int64
	if err := env.db.Model(&models.Withdrawal{}).Count(&n).Error; err != nil {
		t.Fatalf("count withdrawals: %v", err)
	}
	if n != 0 {
		t.Fatalf("rejected requests stored %d withdrawals", n)
	}

	w, err := env.engine.RequestWithdrawal(ctx, workflow.WithdrawalInput{EmployeeId: tellerID, RecordIDs: []int{rec.ID}, Actor: tellerID})
	if err != nil {
		t.Fatalf("RequestWithdrawal: %v", err)
	}
	if _, err := env.engine.ApproveWithdrawal(ctx, w.ID, supervisorID); !errors.Is(err, models.ErrNotAuthorized) {
		t.Fatalf("supervisor approval: expected ErrNotAuthorized, got %v", err)
	}
	if _, err := env.engine.ApproveWithdrawal(ctx, 9999, adminID); !errors.Is(err, models.ErrRecordNotFound) {
		t.Fatalf("unknown withdrawal: expected ErrRecordNotFound, got %v", err)
	}
	if _, err := env.engine.ListWithdrawals(ctx, "", "paid"); models.KindOf(err) != models.ErrorKindValidation {
		t.Fatalf("unknown status filter: expected validation, got %v", err)
	}
}
