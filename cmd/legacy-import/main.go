// legacy-import converts exported legacy payroll documents (one JSON
// document per line) into payroll records.
//
// Usage:
//
//	go run ./cmd/legacy-import --file payrolls.jsonl [--dry-run] [--actor ops-1]
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
	"github.com/sirupsen/logrus"
)

func main() {
	file := flag.String("file", "", "Required: path to the JSON-lines export")
	actor := flag.String("actor", "", "Optional: actor recorded on audit rows (default legacy-import)")
	dryRun := flag.Bool("dry-run", false, "Convert and report without writing")
	flag.Parse()

	if strings.TrimSpace(*file) == "" {
		fmt.Fprintln(os.Stderr, "--file is required")
		os.Exit(1)
	}
	f, err := os.Open(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *file, err)
		os.Exit(1)
	}
	defer f.Close()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()
	if !config.SkipMigrations() {
		if err := models.MigrateTable(db); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
	}

	report, err := models.MigrateLegacyPayrolls(ctx, models.NewPayrollStore(db), f, strings.TrimSpace(*actor), *dryRun)
	if report != nil {
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
	}
	if err != nil {
		config.LogError(logger, "legacy-import", "main", "MigrateLegacyPayrolls", *file, err)
		os.Exit(1)
	}
	logger.WithFields(logrus.Fields{
		"field":      "LegacyImport",
		"imported":   report.Imported,
		"duplicates": len(report.Duplicates),
		"failed":     len(report.Failed),
		"dry_run":    *dryRun,
	}).Info("legacy payroll import finished")
	if len(report.Failed) > 0 {
		os.Exit(2)
	}
}
