package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// PayrollSameDayPolicy decides how several shift reports for one employee on
// one business date are folded into a payroll row.
//
// Set via env:
// - PAYROLL_SAME_DAY_POLICY=flag|sum|latest (default flag)
func PayrollSameDayPolicy() string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("PAYROLL_SAME_DAY_POLICY")))
	switch v {
	case "sum", "latest", "flag":
		return v
	}
	return "flag"
}

// PayrollExternalTimeout bounds every call to the report/settings sources.
func PayrollExternalTimeout() time.Duration {
	return time.Duration(intFromEnv("PAYROLL_EXTERNAL_TIMEOUT_SECONDS", 10)) * time.Second
}

func PayrollSyncWorkers() int {
	return intFromEnv("PAYROLL_SYNC_WORKERS", 4)
}

func PayrollReconcileWorkers() int {
	return intFromEnv("PAYROLL_RECONCILE_WORKERS", 4)
}

// PayrollMaxSyncDays caps the width of a single sync window.
func PayrollMaxSyncDays() int {
	return intFromEnv("PAYROLL_MAX_SYNC_DAYS", 62)
}

func PayrollEventsTopic() string {
	v := strings.TrimSpace(os.Getenv("PAYROLL_EVENTS_TOPIC"))
	if v == "" {
		return "payroll-events"
	}
	return v
}

// SkipMigrations lets AutoMigrate run as a separate job instead of on startup.
func SkipMigrations() bool {
	return EnvBoolDefault("SKIP_MIGRATIONS", false)
}

func EnvBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
