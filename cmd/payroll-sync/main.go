// payroll-sync derives payroll rows from shift reports for a date range.
//
// Usage:
//
//	go run ./cmd/payroll-sync --start 2024-05-01 --end 2024-05-07 [--employee EMP-1] [--policy sum]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/payroll_backend/config"
	"github.com/mmdatafocus/payroll_backend/models"
	"github.com/mmdatafocus/payroll_backend/workflow"
)

func main() {
	start := flag.String("start", "", "Required: first business date (YYYY-MM-DD)")
	end := flag.String("end", "", "Required: last business date (YYYY-MM-DD)")
	employee := flag.String("employee", "", "Optional: sync one employee only")
	policy := flag.String("policy", "", "Optional: same-day policy override (flag|sum|latest)")
	flag.Parse()

	if strings.TrimSpace(*start) == "" || strings.TrimSpace(*end) == "" {
		fmt.Fprintln(os.Stderr, "--start and --end are required")
		os.Exit(1)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisOptional(ctx)
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()

	opts := workflow.DefaultOptions()
	if strings.TrimSpace(*policy) != "" {
		p, err := models.ParseSameDayPolicy(*policy)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --policy: %v\n", err)
			os.Exit(1)
		}
		opts.SameDayPolicy = p
	}
	employees := models.NewEmployeeStore(db)
	engine, err := workflow.NewEngine(workflow.Dependencies{
		Store:     models.NewPayrollStore(db),
		Reports:   models.NewShiftReportStore(db),
		Settings:  models.NewSettingsStore(db),
		Employees: employees,
		Auth:      models.NewEmployeeAuthorizer(employees),
		Locker:    config.GetRedisLock(),
		Logger:    logger,
	}, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}

	var report *workflow.SyncReport
	if e := strings.TrimSpace(*employee); e != "" {
		report, err = engine.SyncEmployee(ctx, e, *start, *end)
	} else {
		report, err = engine.Sync(ctx, *start, *end)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "sync failed (%s): %v\n", models.KindOf(err), err)
		os.Exit(1)
	}
	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))
	if len(report.Failed) > 0 {
		os.Exit(2)
	}
}
