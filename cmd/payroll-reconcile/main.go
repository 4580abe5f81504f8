// payroll-reconcile recomputes stored totals for a date range, corrects
// drift on unlocked rows and flags it on locked ones.
//
// Usage:
//
//	go run ./cmd/payroll-reconcile --start 2024-05-01 --end 2024-05-07
//	go run ./cmd/payroll-reconcile --id 42
//	go run ./cmd/payroll-reconcile --flagged-since 2024-05-01
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/payroll_backend/config"
	"github.com/mmdatafocus/payroll_backend/models"
	"github.com/mmdatafocus/payroll_backend/workflow"
)

func main() {
	start := flag.String("start", "", "First business date (YYYY-MM-DD)")
	end := flag.String("end", "", "Last business date (YYYY-MM-DD)")
	recordID := flag.Int("id", 0, "Reconcile a single record by id")
	flaggedSince := flag.String("flagged-since", "", "List flagged drift recorded since this date (YYYY-MM-DD) and exit")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisOptional(ctx)
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()

	if s := strings.TrimSpace(*flaggedSince); s != "" {
		since, err := time.Parse(models.BusinessDateLayout, s)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --flagged-since: %v\n", err)
			os.Exit(1)
		}
		flags, err := models.NewPayrollStore(db).FlaggedSince(ctx, since)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load flagged drift: %v\n", err)
			os.Exit(1)
		}
		printJSON(flags)
		return
	}

	engine, err := workflow.NewDefaultEngine(db, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}

	if *recordID > 0 {
		res, err := engine.ReconcileByID(ctx, *recordID)
		printJSON(res)
		if err != nil {
			os.Exit(1)
		}
		return
	}

	if strings.TrimSpace(*start) == "" || strings.TrimSpace(*end) == "" {
		fmt.Fprintln(os.Stderr, "--start and --end are required (or --id / --flagged-since)")
		os.Exit(1)
	}
	report, err := engine.ReconcileRange(ctx, *start, *end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconcile failed (%s): %v\n", models.KindOf(err), err)
		os.Exit(1)
	}
	printJSON(report)
	if report.Errors > 0 {
		os.Exit(2)
	}
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}
