package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/payroll_backend/models"
	"github.com/mmdatafocus/payroll_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

type SyncFailure struct {
	EmployeeId   string           `json:"employee_id"`
	BusinessDate string           `json:"business_date,omitempty"`
	ErrorKind    models.ErrorKind `json:"error_kind"`
	Error        string           `json:"error"`
}

// SyncConflict is a row sync refused to touch because it is locked.
type SyncConflict struct {
	EmployeeId   string `json:"employee_id"`
	BusinessDate string `json:"business_date"`
	RecordID     int    `json:"record_id"`
	Reason       string `json:"reason"`
}

// AmbiguousDay is an employee-day with several reports that the configured
// policy refused to fold. Nothing is written for it.
type AmbiguousDay struct {
	EmployeeId   string `json:"employee_id"`
	BusinessDate string `json:"business_date"`
	ReportCount  int    `json:"report_count"`
}

type SyncReport struct {
	CorrelationID string         `json:"correlation_id"`
	Start         string         `json:"start"`
	End           string         `json:"end"`
	Policy        string         `json:"policy"`
	Employees     int            `json:"employees"`
	Created       int            `json:"created"`
	Updated       int            `json:"updated"`
	Unchanged     int            `json:"unchanged"`
	SkippedLocked int            `json:"skipped_locked"`
	Conflicts     []SyncConflict `json:"conflicts"`
	Ambiguous     []AmbiguousDay `json:"ambiguous"`
	Failed        []SyncFailure  `json:"failed"`
}

type employeeSync struct {
	created, updated, unchanged, skippedLocked int
	conflicts                                  []SyncConflict
	ambiguous                                  []AmbiguousDay
	failed                                     []SyncFailure
}

// Sync derives one payroll row per (employee, date) with reports in
// [start, end]. Each employee is independent: a failing source call lands
// in Failed and the rest continue. Only an invalid range, an unreachable
// store or an unreadable employee list fail the call.
func (e *Engine) Sync(ctx context.Context, start, end string) (*SyncReport, error) {
	start, end, err := models.ValidateDateRange(start, end, e.opts.MaxSyncDays)
	if err != nil {
		return nil, err
	}
	ctx, cid := utils.EnsureCorrelationId(ctx)

	var employees []string
	err = e.callExternal(ctx, "shift_reports", "", func(ctx context.Context) error {
		ids, err := e.reports.DistinctEmployees(ctx, start, end)
		if err != nil {
			return err
		}
		employees = ids
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list employees with reports: %w", err)
	}
	return e.syncEmployees(ctx, cid, start, end, employees)
}

// SyncEmployee is Sync restricted to one employee.
func (e *Engine) SyncEmployee(ctx context.Context, employeeId, start, end string) (*SyncReport, error) {
	if employeeId == "" {
		return nil, models.NewValidationError("employee_id", "employee id is required")
	}
	start, end, err := models.ValidateDateRange(start, end, e.opts.MaxSyncDays)
	if err != nil {
		return nil, err
	}
	ctx, cid := utils.EnsureCorrelationId(ctx)
	return e.syncEmployees(ctx, cid, start, end, []string{employeeId})
}

func (e *Engine) syncEmployees(ctx context.Context, cid, start, end string, employees []string) (report *SyncReport, err error) {
	ctx, span := startSpan(ctx, "payroll.sync",
		attribute.String("payroll.start", start),
		attribute.String("payroll.end", end),
		attribute.Int("payroll.employees", len(employees)),
	)
	defer func() { endSpan(span, err) }()

	if err := e.store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("payroll store unavailable: %w", err)
	}

	results := make([]employeeSync, len(employees))
	g := new(errgroup.Group)
	g.SetLimit(e.opts.SyncWorkers)
	for i, employeeId := range employees {
		i, employeeId := i, employeeId
		g.Go(func() error {
			results[i] = e.syncEmployee(ctx, employeeId, start, end)
			return nil
		})
	}
	_ = g.Wait()

	report = &SyncReport{
		CorrelationID: cid,
		Start:         start,
		End:           end,
		Policy:        string(e.opts.SameDayPolicy),
		Employees:     len(employees),
		Conflicts:     []SyncConflict{},
		Ambiguous:     []AmbiguousDay{},
		Failed:        []SyncFailure{},
	}
	for _, r := range results {
		report.Created += r.created
		report.Updated += r.updated
		report.Unchanged += r.unchanged
		report.SkippedLocked += r.skippedLocked
		report.Conflicts = append(report.Conflicts, r.conflicts...)
		report.Ambiguous = append(report.Ambiguous, r.ambiguous...)
		report.Failed = append(report.Failed, r.failed...)
	}

	e.logger.WithFields(logrus.Fields{
		"field":          "Sync",
		"correlation_id": cid,
		"start":          start,
		"end":            end,
		"employees":      report.Employees,
		"created":        report.Created,
		"updated":        report.Updated,
		"unchanged":      report.Unchanged,
		"skipped_locked": report.SkippedLocked,
		"ambiguous":      len(report.Ambiguous),
		"failed":         len(report.Failed),
	}).Info("payroll sync finished")
	return report, nil
}

func (e *Engine) syncEmployee(ctx context.Context, employeeId, start, end string) employeeSync {
	var out employeeSync
	fail := func(date string, err error) {
		out.failed = append(out.failed, SyncFailure{
			EmployeeId:   employeeId,
			BusinessDate: date,
			ErrorKind:    models.KindOf(err),
			Error:        err.Error(),
		})
	}

	var (
		emp     *models.Employee
		base    decimal.Decimal
		reports []*models.ShiftReport
	)
	err := e.callExternal(ctx, "employees", employeeId, func(ctx context.Context) error {
		found, err := e.employees.FindEmployee(ctx, employeeId)
		if err == nil {
			emp = found
		}
		return err
	})
	if err != nil {
		SyncEmployeeFailures.Inc()
		fail("", err)
		return out
	}
	if !emp.Active {
		SyncEmployeeFailures.Inc()
		fail("", models.NewValidationError("employee_id", "employee "+employeeId+" is inactive"))
		return out
	}
	err = e.callExternal(ctx, "settings", employeeId, func(ctx context.Context) error {
		amount, err := e.settings.DefaultBaseSalary(ctx, emp.Role)
		if err == nil {
			base = amount
		}
		return err
	})
	if err != nil {
		SyncEmployeeFailures.Inc()
		fail("", err)
		return out
	}
	err = e.callExternal(ctx, "shift_reports", employeeId, func(ctx context.Context) error {
		found, err := e.reports.FindByEmployee(ctx, employeeId, start, end)
		if err == nil {
			reports = found
		}
		return err
	})
	if err != nil {
		SyncEmployeeFailures.Inc()
		fail("", err)
		return out
	}

	dates, byDate := models.GroupReportsByDate(reports)
	for _, date := range dates {
		agg := models.AggregateDay(employeeId, date, byDate[date], e.opts.SameDayPolicy)
		if agg.Ambiguous {
			out.ambiguous = append(out.ambiguous, AmbiguousDay{EmployeeId: employeeId, BusinessDate: date, ReportCount: agg.ReportCount})
			SyncOutcomes.WithLabelValues("ambiguous").Inc()
			continue
		}
		rec, outcome, err := e.store.UpsertByEmployeeDate(ctx, employeeId, date, models.SourceFields{
			Role:       emp.Role,
			BaseSalary: base,
			Over:       agg.Over,
			Short:      agg.Short,
		})
		if err != nil {
			SyncOutcomes.WithLabelValues("failed").Inc()
			fail(date, err)
			continue
		}
		SyncOutcomes.WithLabelValues(string(outcome)).Inc()
		switch outcome {
		case models.UpsertCreated:
			out.created++
		case models.UpsertUpdated:
			out.updated++
		case models.UpsertUnchanged:
			out.unchanged++
		case models.UpsertSkippedLocked:
			out.skippedLocked++
			out.conflicts = append(out.conflicts, SyncConflict{
				EmployeeId:   employeeId,
				BusinessDate: date,
				RecordID:     rec.ID,
				Reason:       "payroll record is locked",
			})
		}
	}
	return out
}
