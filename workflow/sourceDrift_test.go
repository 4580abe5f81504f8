package workflow_test

import (
	"context"
	"testing"

	"github.com/mmdatafocus/payroll_backend/models"
	"github.com/mmdatafocus/payroll_backend/workflow"
)

func TestCheckSourceDrift(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	// In sync.
	env.addReport(t, tellerID, "2024-05-01", "-150")
	env.draftRecord(t, tellerID, "2024-05-01")
	// Stored short differs from the report.
	env.addReport(t, tellerID, "2024-05-02", "-100")
	mismatch := env.draftRecord(t, tellerID, "2024-05-02")
	// Record without any report.
	orphan := env.draftRecord(t, tellerTwoID, "2024-05-02")
	// Report without a record.
	env.addReport(t, tellerTwoID, "2024-05-03", "20")
	// Two reports under the flag policy.
	env.addReport(t, tellerID, "2024-05-03", "1")
	env.addReport(t, tellerID, "2024-05-03", "2")

	report, err := env.engine.CheckSourceDrift(ctx, "2024-05-01", "2024-05-07")
	if err != nil {
		t.Fatalf("CheckSourceDrift: %v", err)
	}
	if report.Checked != 3 {
		t.Fatalf("expected 3 records checked, got %d", report.Checked)
	}
	byKind := map[workflow.SourceDriftKind][]workflow.SourceDrift{}
	for _, d := range report.Drifts {
		byKind[d.Kind] = append(byKind[d.Kind], d)
	}
	if got := byKind[workflow.SourceDriftMismatch]; len(got) != 1 || got[0].RecordID != mismatch.ID || !got[0].ReportShort.Equal(dec("100")) {
		t.Fatalf("unexpected mismatches %+v", got)
	}
	if got := byKind[workflow.SourceDriftOrphanRecord]; len(got) != 1 || got[0].RecordID != orphan.ID {
		t.Fatalf("unexpected orphans %+v", got)
	}
	if got := byKind[workflow.SourceDriftMissingRecord]; len(got) != 1 || got[0].EmployeeId != tellerTwoID || !got[0].ReportOver.Equal(dec("20")) {
		t.Fatalf("unexpected missing records %+v", got)
	}
	if got := byKind[workflow.SourceDriftAmbiguous]; len(got) != 1 || got[0].ReportCount != 2 {
		t.Fatalf("unexpected ambiguous days %+v", got)
	}

	// The check is read-only.
	if got := env.mustFind(t, mismatch.ID); !got.Short.Equal(dec("150")) {
		t.Fatalf("drift check wrote to the record: %+v", got)
	}
	if _, err := env.engine.CheckSourceDrift(ctx, "2024-05-07", "2024-05-01"); models.KindOf(err) != models.ErrorKindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
