package models_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mmdatafocus/payroll_backend/models"
)

const canonicalLegacyDoc = `{
	"_id": {"$oid": "65f1c0ffee"},
	"user": {"$oid": "EMP-7"},
	"role": "Teller",
	"baseSalary": {"$numberDecimal": "450"},
	"over": 20,
	"short": "-150",
	"shortPaymentTerms": {"$numberInt": "0"},
	"deduction": null,
	"totalSalary": {"$numberDouble": "320.0"},
	"locked": true,
	"lockedAt": {"$date": {"$numberLong": "1714600000000"}},
	"createdAt": {"$date": "2024-05-01T23:30:00+08:00"},
	"adjustments": [
		{"delta": 50, "reason": "", "adminId": {"$oid": "ADM-1"}},
		{"delta": "0", "reason": "noop"}
	]
}`

func TestConvertLegacyPayroll_Canonical(t *testing.T) {
	var doc models.LegacyPayrollDoc
	if err := json.Unmarshal([]byte(canonicalLegacyDoc), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	rec, notes, err := models.ConvertLegacyPayroll(&doc)
	if err != nil {
		t.Fatalf("ConvertLegacyPayroll: %v", err)
	}
	if rec.EmployeeId != "EMP-7" || rec.Role != models.RoleTeller {
		t.Fatalf("unexpected identity %s/%s", rec.EmployeeId, rec.Role)
	}
	// 23:30 in +08:00 is 15:30 UTC on the same day.
	if rec.BusinessDate != "2024-05-01" {
		t.Fatalf("expected business date 2024-05-01, got %s", rec.BusinessDate)
	}
	if rec.SchemaVersion != models.PayrollRecordSchemaVersion {
		t.Fatalf("expected schema version %d, got %d", models.PayrollRecordSchemaVersion, rec.SchemaVersion)
	}
	if rec.ShortPaymentTerms != 1 {
		t.Fatalf("terms not clamped: %d", rec.ShortPaymentTerms)
	}
	if !rec.Short.Equal(dec("150")) || !rec.Deduction.IsZero() {
		t.Fatalf("unexpected short=%s deduction=%s", rec.Short, rec.Deduction)
	}
	if !rec.TotalSalary.Equal(dec("320")) {
		t.Fatalf("stored total must be kept as found, got %s", rec.TotalSalary)
	}
	if !rec.Locked || !rec.Approved || rec.LockedAt == nil {
		t.Fatalf("locked state not carried over: %+v", rec)
	}
	if len(rec.Adjustments) != 1 || rec.Adjustments[0].Actor != "ADM-1" || rec.Adjustments[0].Reason == "" {
		t.Fatalf("unexpected adjustments %+v", rec.Adjustments)
	}
	for _, want := range []string{"createdAt", "clamped", "magnitude", "marked approved", "zero delta"} {
		found := false
		for _, n := range notes {
			if strings.Contains(n, want) {
				found = true
			}
		}
		if !found {
			t.Fatalf("missing note containing %q in %v", want, notes)
		}
	}
}

func TestConvertLegacyPayroll_SupervisorFallback(t *testing.T) {
	var doc models.LegacyPayrollDoc
	raw := `{"_id":"x1","supervisorId":"SUP-3","date":"2024-05-02","baseSalary":"600"}`
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	rec, _, err := models.ConvertLegacyPayroll(&doc)
	if err != nil {
		t.Fatalf("ConvertLegacyPayroll: %v", err)
	}
	if rec.EmployeeId != "SUP-3" || rec.Role != models.RoleSupervisor || rec.BusinessDate != "2024-05-02" {
		t.Fatalf("unexpected %s/%s/%s", rec.EmployeeId, rec.Role, rec.BusinessDate)
	}
}

func TestConvertLegacyPayroll_Rejects(t *testing.T) {
	for _, raw := range []string{
		`{"_id":"x1","date":"2024-05-02"}`,
		`{"_id":"x2","user":"EMP-1"}`,
		`{"_id":"x3","user":"EMP-1","date":"05/02/2024"}`,
	} {
		var doc models.LegacyPayrollDoc
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		if _, _, err := models.ConvertLegacyPayroll(&doc); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
}

func TestMigrateLegacyPayrolls(t *testing.T) {
	db := openTestDB(t)
	store := models.NewPayrollStore(db)
	ctx := context.Background()

	input := strings.Join([]string{
		`{"_id":"a","user":"EMP-1","role":"teller","date":"2024-05-01","baseSalary":450,"totalSalary":450}`,
		``,
		`{"_id":"b","user":"EMP-1","role":"teller","date":"2024-05-01","baseSalary":460,"totalSalary":460}`,
		`{"_id":"c","user":`,
		`{"_id":"d","user":"EMP-2","role":"supervisor","date":"2024-05-01","baseSalary":600,"totalSalary":610,"adjustments":[{"delta":10,"reason":"bonus"}]}`,
	}, "\n")

	dry, err := models.MigrateLegacyPayrolls(ctx, store, strings.NewReader(input), "ops-1", true)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if dry.Imported != 3 {
		t.Fatalf("dry run expected 3 convertible docs, got %d", dry.Imported)
	}
	var n int64
	db.Model(&models.PayrollRecord{}).Count(&n)
	if n != 0 {
		t.Fatalf("dry run wrote %d rows", n)
	}

	report, err := models.MigrateLegacyPayrolls(ctx, store, strings.NewReader(input), "ops-1", false)
	if err != nil {
		t.Fatalf("MigrateLegacyPayrolls: %v", err)
	}
	if report.Imported != 2 || len(report.Duplicates) != 1 || len(report.Failed) != 1 {
		t.Fatalf("unexpected report: imported=%d duplicates=%d failed=%d", report.Imported, len(report.Duplicates), len(report.Failed))
	}
	if report.Duplicates[0].LegacyId != "b" || report.Failed[0].Line != 4 {
		t.Fatalf("issues point at the wrong lines: %+v %+v", report.Duplicates, report.Failed)
	}

	rec, err := store.FindByEmployeeDate(ctx, "EMP-2", "2024-05-01")
	if err != nil {
		t.Fatalf("FindByEmployeeDate: %v", err)
	}
	if len(rec.Adjustments) != 1 || !models.WithinTolerance(models.Drift(rec)) {
		t.Fatalf("imported record inconsistent: adjustments=%d drift=%s", len(rec.Adjustments), models.Drift(rec))
	}
	var audits int64
	db.Model(&models.PayrollAuditLog{}).Where("action_type = ?", models.AuditActionLegacyImport).Count(&audits)
	if audits != 2 {
		t.Fatalf("expected 2 import audit rows, got %d", audits)
	}
}
