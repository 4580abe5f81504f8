// seed-settings writes the default base salary per role.
//
// Usage:
//
//	go run ./cmd/seed-settings [--set teller=450,supervisor_teller=500,supervisor=600,admin=800] [--actor ops-1]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/payroll_backend/config"
	"github.com/mmdatafocus/payroll_backend/models"
)

func main() {
	set := flag.String("set", "", "Comma-separated role=amount pairs (default: built-in role defaults)")
	actor := flag.String("actor", "seed-settings", "Actor recorded on the audit rows")
	reason := flag.String("reason", "seed role defaults", "Reason recorded on the audit rows")
	flag.Parse()

	pairs, err := parseRoleAmounts(*set)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
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
	if !config.SkipMigrations() {
		if err := models.MigrateTable(db); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
	}

	settings := models.NewSettingsStore(db)
	for _, p := range pairs {
		if err := settings.SetDefaultBaseSalary(ctx, p.role, p.amount, *actor, *reason); err != nil {
			fmt.Fprintf(os.Stderr, "set %s: %v\n", p.role, err)
			os.Exit(1)
		}
		fmt.Printf("Set default base salary: role=%s amount=%s\n", p.role, p.amount.StringFixed(2))
	}
}
