package workflow_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmdatafocus/payroll_backend/appctx"
	"github.com/mmdatafocus/payroll_backend/config"
	"github.com/mmdatafocus/payroll_backend/models"
	"github.com/mmdatafocus/payroll_backend/workflow"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	adminID      = "ADM-1"
	supervisorID = "SUP-1"
	tellerID     = "TEL-1"
	tellerTwoID  = "TEL-2"
	inactiveID   = "TEL-9"
)

type testEnv struct {
	db       *gorm.DB
	store    *models.PayrollStore
	reports  *models.ShiftReportStore
	engine   *workflow.Engine
	deps     workflow.Dependencies
	opts     workflow.Options
	fixedNow time.Time
}

// newTestEnv opens a private SQLite database with employees and role
// defaults seeded and builds an engine over it. tweak may swap collaborators.
func newTestEnv(t *testing.T, tweak func(deps *workflow.Dependencies, opts *workflow.Options)) *testEnv {
	t.Helper()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_SQLITE_PATH", filepath.Join(t.TempDir(), "payroll.db"))
	db, err := config.OpenDatabase()
	if err != nil {
		t.Fatalf("OpenDatabase: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := models.MigrateTable(db); err != nil {
		t.Fatalf("MigrateTable: %v", err)
	}

	ctx := context.Background()
	employees := models.NewEmployeeStore(db)
	for _, emp := range []*models.Employee{
		{ID: adminID, Name: "Admin", Role: models.RoleAdmin, Active: true},
		{ID: supervisorID, Name: "Supervisor", Role: models.RoleSupervisor, Active: true},
		{ID: tellerID, Name: "Teller One", Role: models.RoleTeller, Active: true},
		{ID: tellerTwoID, Name: "Teller Two", Role: models.RoleTeller, Active: true},
		{ID: inactiveID, Name: "Former Teller", Role: models.RoleTeller, Active: false},
	} {
		if err := employees.Upsert(ctx, emp); err != nil {
			t.Fatalf("seed employee %s: %v", emp.ID, err)
		}
	}
	for role, amount := range models.DefaultRoleSalaries() {
		if err := db.Create(&models.RoleSalarySetting{Role: role, BaseSalary: amount, UpdatedBy: "seed"}).Error; err != nil {
			t.Fatalf("seed role salary %s: %v", role, err)
		}
	}

	env := &testEnv{
		db:       db,
		store:    models.NewPayrollStore(db),
		reports:  models.NewShiftReportStore(db),
		fixedNow: time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC),
	}
	env.deps = workflow.Dependencies{
		Store:     env.store,
		Reports:   env.reports,
		Settings:  models.NewSettingsStore(db),
		Employees: employees,
		Auth:      models.NewEmployeeAuthorizer(employees),
	}
	env.opts = workflow.Options{
		SameDayPolicy:    models.SameDayPolicyFlag,
		ExternalTimeout:  2 * time.Second,
		SyncWorkers:      4,
		ReconcileWorkers: 4,
		MaxSyncDays:      31,
		Now:              func() time.Time { return env.fixedNow },
	}
	if tweak != nil {
		tweak(&env.deps, &env.opts)
	}
	engine, err := workflow.NewEngine(env.deps, env.opts)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	env.engine = engine
	return env
}

// addReport stores a shift report whose cash differs from the system
// balance by diff (positive over, negative short).
func (env *testEnv) addReport(t *testing.T, employeeId, date, diff string) *models.ShiftReport {
	t.Helper()
	system := decimal.NewFromInt(1000)
	r := models.NewShiftReport(employeeId, date, system, system.Add(dec(diff)))
	if err := env.reports.Create(context.Background(), r); err != nil {
		t.Fatalf("create shift report: %v", err)
	}
	return r
}

// draftRecord inserts a consistent record for employeeId on date.
func (env *testEnv) draftRecord(t *testing.T, employeeId, date string) *models.PayrollRecord {
	t.Helper()
	rec, _, err := env.store.UpsertByEmployeeDate(context.Background(), employeeId, date, models.SourceFields{
		Role:       models.RoleTeller,
		BaseSalary: dec("450"),
		Over:       dec("0"),
		Short:      dec("150"),
	})
	if err != nil {
		t.Fatalf("UpsertByEmployeeDate: %v", err)
	}
	return rec
}

// corruptTotal overwrites the stored total behind the engine's back.
func (env *testEnv) corruptTotal(t *testing.T, id int, total string) {
	t.Helper()
	ctx := appctx.Set(context.Background(), appctx.ContextKeyBypassLockGuard, true)
	if err := env.db.WithContext(ctx).Model(&models.PayrollRecord{}).Where("id = ?", id).
		Update("total_salary", dec(total)).Error; err != nil {
		t.Fatalf("corrupt total: %v", err)
	}
}

func (env *testEnv) mustFind(t *testing.T, id int) *models.PayrollRecord {
	t.Helper()
	rec, err := env.store.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID(%d): %v", id, err)
	}
	return rec
}

func (env *testEnv) countEvents(t *testing.T, recordID int, eventType models.PayrollEventType) int64 {
	t.Helper()
	var n int64
	q := env.db.Model(&models.PayrollEvent{}).Where("payroll_record_id = ?", recordID)
	if eventType != "" {
		q = q.Where("event_type = ?", eventType)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	return n
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
