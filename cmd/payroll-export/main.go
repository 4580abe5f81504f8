// payroll-export writes payroll records in a date range to an xlsx workbook.
//
// Usage:
//
//	go run ./cmd/payroll-export --start 2024-05-01 --end 2024-05-31 --out payroll-may.xlsx
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/payroll_backend/config"
	"github.com/mmdatafocus/payroll_backend/models"
	"github.com/mmdatafocus/payroll_backend/models/reports"
)

func main() {
	start := flag.String("start", "", "Required: first business date (YYYY-MM-DD)")
	end := flag.String("end", "", "Required: last business date (YYYY-MM-DD)")
	out := flag.String("out", "payroll.xlsx", "Output file")
	flag.Parse()

	if strings.TrimSpace(*start) == "" || strings.TrimSpace(*end) == "" {
		fmt.Fprintln(os.Stderr, "--start and --end are required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", *out, err)
		os.Exit(1)
	}
	n, err := reports.ExportPayroll(context.Background(), models.NewPayrollStore(db), *start, *end, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(*out)
		fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Exported %d payroll records to %s\n", n, *out)
}
