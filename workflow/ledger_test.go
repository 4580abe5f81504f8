package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mmdatafocus/payroll_backend/models"
)

func TestAppendAdjustment_AppendsAndRecomputesTotal(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	rec := env.draftRecord(t, tellerID, "2024-05-01")

	adj, err := env.engine.AppendAdjustment(ctx, rec, dec("50"), "  missed bonus ", supervisorID)
	if err != nil {
		t.Fatalf("AppendAdjustment: %v", err)
	}
	if adj.ID == 0 || adj.Reason != "missed bonus" || adj.Actor != supervisorID {
		t.Fatalf("unexpected adjustment %+v", adj)
	}
	if !rec.TotalSalary.Equal(dec("350")) {
		t.Fatalf("expected total 350, got %s", rec.TotalSalary)
	}
	if _, err := env.engine.AppendAdjustment(ctx, rec, dec("-20.5"), "uniform", adminID); err != nil {
		t.Fatalf("second AppendAdjustment: %v", err)
	}

	stored := env.mustFind(t, rec.ID)
	if !stored.TotalSalary.Equal(dec("329.5")) {
		t.Fatalf("expected stored total 329.5, got %s", stored.TotalSalary)
	}
	if len(stored.Adjustments) != 2 || !stored.Adjustments[0].Delta.Equal(dec("50")) || !stored.Adjustments[1].Delta.Equal(dec("-20.5")) {
		t.Fatalf("ledger not in append order: %+v", stored.Adjustments)
	}
	if !stored.Adjustments[0].CreatedAt.Equal(env.fixedNow) {
		t.Fatalf("adjustment timestamp %s, want %s", stored.Adjustments[0].CreatedAt, env.fixedNow)
	}
	if n := env.countEvents(t, rec.ID, models.PayrollEventAdjusted); n != 2 {
		t.Fatalf("expected 2 adjusted events, got %d", n)
	}
}

func TestAppendAdjustment_Rejects(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	rec := env.draftRecord(t, tellerID, "2024-05-01")

	cases := []struct {
		name   string
		delta  string
		reason string
		actor  string
		kind   models.ErrorKind
	}{
		{"zero delta", "0", "noop", supervisorID, models.ErrorKindValidation},
		{"rounds to zero", "0.00001", "noop", supervisorID, models.ErrorKindValidation},
		{"blank reason", "10", "   ", supervisorID, models.ErrorKindValidation},
		{"no actor", "10", "bonus", "", models.ErrorKindValidation},
		{"teller", "10", "bonus", tellerID, models.ErrorKindNotAuthorized},
		{"inactive", "10", "bonus", inactiveID, models.ErrorKindNotAuthorized},
		{"unknown actor", "10", "bonus", "NOBODY", models.ErrorKindNotAuthorized},
		{"beyond column range", "123456789012345678901.1234", "huge", supervisorID, models.ErrorKindValidation},
		{"total beyond column range", "99999999999999", "huge", supervisorID, models.ErrorKindValidation},
	}
	for _, tc := range cases {
		_, _, err := env.engine.AppendAdjustmentByID(ctx, rec.ID, dec(tc.delta), tc.reason, tc.actor)
		if models.KindOf(err) != tc.kind {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.kind, err)
		}
	}
	if stored := env.mustFind(t, rec.ID); len(stored.Adjustments) != 0 || !stored.TotalSalary.Equal(dec("300")) {
		t.Fatalf("rejected appends changed the record: %+v", stored)
	}
}

func TestAppendAdjustment_LockedRecord(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	rec := env.draftRecord(t, tellerID, "2024-05-01")
	if _, err := env.engine.Approve(ctx, rec, supervisorID); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if _, err := env.engine.Lock(ctx, rec, adminID); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	_, err := env.engine.AppendAdjustment(ctx, rec, dec("10"), "late bonus", adminID)
	if !models.IsLockedRecord(err) {
		t.Fatalf("expected LockedRecordError, got %v", err)
	}
	stored := env.mustFind(t, rec.ID)
	if len(stored.Adjustments) != 0 || !stored.TotalSalary.Equal(dec("300")) {
		t.Fatalf("locked record changed: %+v", stored)
	}
}

func TestAppendAdjustment_ConcurrentAppendsAllLand(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	rec := env.draftRecord(t, tellerID, "2024-05-01")

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := env.engine.AppendAdjustmentByID(ctx, rec.ID, dec("1.25"), "shift cover", supervisorID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent append: %v", err)
		}
	}

	stored := env.mustFind(t, rec.ID)
	if len(stored.Adjustments) != n || !stored.TotalSalary.Equal(dec("310")) {
		t.Fatalf("expected %d adjustments and total 310, got %d and %s", n, len(stored.Adjustments), stored.TotalSalary)
	}
}

func TestAppendAdjustment_MissingRecord(t *testing.T) {
	env := newTestEnv(t, nil)
	_, _, err := env.engine.AppendAdjustmentByID(context.Background(), 404, dec("5"), "bonus", supervisorID)
	if !errors.Is(err, models.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}
