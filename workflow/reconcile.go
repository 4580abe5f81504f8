package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmdatafocus/payroll_backend/config"
	"github.com/mmdatafocus/payroll_backend/models"
	"github.com/mmdatafocus/payroll_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

type ReconcileOutcome string

const (
	OutcomeConsistent ReconcileOutcome = "consistent"
	OutcomeCorrected  ReconcileOutcome = "corrected"
	OutcomeFlagged    ReconcileOutcome = "flagged"
	OutcomeError      ReconcileOutcome = "error"
)

// reconcileAttempts bounds reload-and-retry after a concurrent write.
const reconcileAttempts = 3

type ReconcileResult struct {
	RecordID     int              `json:"record_id"`
	EmployeeId   string           `json:"employee_id"`
	BusinessDate string           `json:"business_date"`
	Outcome      ReconcileOutcome `json:"outcome"`
	Before       decimal.Decimal  `json:"before"`
	After        decimal.Decimal  `json:"after"`
	Expected     decimal.Decimal  `json:"expected"`
	Drift        decimal.Decimal  `json:"drift"`
	ErrorKind    models.ErrorKind `json:"error_kind,omitempty"`
	Error        string           `json:"error,omitempty"`
}

type BatchReport struct {
	CorrelationID string            `json:"correlation_id"`
	Consistent    int               `json:"consistent"`
	Corrected     int               `json:"corrected"`
	Flagged       int               `json:"flagged"`
	Errors        int               `json:"errors"`
	Details       []ReconcileResult `json:"details"`
}

// Reconcile compares rec's stored total with the total derived from its
// components and ledger. Drift within tolerance is consistent. Drift on a
// locked record is flagged and left untouched. Otherwise the stored total
// is corrected. rec reflects the persisted state afterwards.
func (e *Engine) Reconcile(ctx context.Context, rec *models.PayrollRecord) (result ReconcileResult, err error) {
	if rec == nil {
		err = models.NewValidationError("record", "record is required")
		return ReconcileResult{Outcome: OutcomeError, ErrorKind: models.KindOf(err), Error: err.Error()}, err
	}
	ctx, span := startSpan(ctx, "payroll.reconcile", attribute.Int("payroll.record_id", rec.ID))
	defer func() {
		span.SetAttributes(attribute.String("payroll.outcome", string(result.Outcome)))
		endSpan(span, err)
		ReconcileOutcomes.WithLabelValues(string(result.Outcome)).Inc()
	}()

	for attempt := 0; attempt < reconcileAttempts; attempt++ {
		result, err = e.reconcileOnce(ctx, rec)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, models.ErrStaleRecord) && !models.IsLockedRecord(err) {
			break
		}
		// Lost a race with another writer: reload and decide again.
		fresh, findErr := e.store.FindByID(ctx, rec.ID)
		if findErr != nil {
			err = findErr
			break
		}
		*rec = *fresh
	}
	return errorResult(rec, err), err
}

func (e *Engine) reconcileOnce(ctx context.Context, rec *models.PayrollRecord) (ReconcileResult, error) {
	expected := models.RoundMoney(models.ExpectedTotal(rec))
	drift := rec.TotalSalary.Sub(expected)
	result := ReconcileResult{
		RecordID:     rec.ID,
		EmployeeId:   rec.EmployeeId,
		BusinessDate: rec.BusinessDate,
		Before:       rec.TotalSalary,
		After:        rec.TotalSalary,
		Expected:     expected,
		Drift:        drift,
	}

	if models.WithinTolerance(drift) {
		result.Outcome = OutcomeConsistent
		return result, nil
	}

	if rec.Locked {
		result.Outcome = OutcomeFlagged
		e.recordFlag(ctx, rec, expected, drift)
		return result, nil
	}

	before := rec.TotalSalary
	rec.TotalSalary = expected
	if err := rec.RecordEvent(models.PayrollEventTotalCorrected, map[string]any{
		"before": before,
		"after":  expected,
		"drift":  drift,
	}); err != nil {
		rec.TotalSalary = before
		return result, err
	}
	if err := e.store.Save(ctx, rec); err != nil {
		rec.TotalSalary = before
		rec.DiscardPending()
		return result, err
	}
	result.Outcome = OutcomeCorrected
	result.After = rec.TotalSalary
	return result, nil
}

// recordFlag persists a locked drift for manual review. A failure to write
// the flag is logged; the flagged outcome stands either way.
func (e *Engine) recordFlag(ctx context.Context, rec *models.PayrollRecord, expected, drift decimal.Decimal) {
	err := e.store.RecordFlag(ctx, &models.ReconciliationReport{
		CheckType:     models.CheckTypePayrollTotal,
		EntityType:    models.EntityTypePayroll,
		EntityId:      rec.ID,
		EmployeeId:    rec.EmployeeId,
		BusinessDate:  rec.BusinessDate,
		StoredTotal:   rec.TotalSalary,
		ExpectedTotal: expected,
		Drift:         drift,
		Details:       fmt.Sprintf("locked payroll record drifts by %s", drift.StringFixed(2)),
	})
	if err != nil {
		config.LogError(e.logger, "reconcile.go", "recordFlag", "persisting reconciliation flag", rec.ID, err)
		return
	}
	e.logger.WithFields(logrus.Fields{
		"field":         "Reconcile",
		"record_id":     rec.ID,
		"employee_id":   rec.EmployeeId,
		"business_date": rec.BusinessDate,
		"drift":         drift.String(),
	}).Warn("locked payroll record drift flagged for review")
}

func errorResult(rec *models.PayrollRecord, err error) ReconcileResult {
	r := ReconcileResult{
		Outcome:   OutcomeError,
		ErrorKind: models.KindOf(err),
		Error:     err.Error(),
	}
	if rec != nil {
		r.RecordID = rec.ID
		r.EmployeeId = rec.EmployeeId
		r.BusinessDate = rec.BusinessDate
		r.Before = rec.TotalSalary
		r.After = rec.TotalSalary
	}
	return r
}

// ReconcileByID loads and reconciles one record.
func (e *Engine) ReconcileByID(ctx context.Context, id int) (ReconcileResult, error) {
	rec, err := e.store.FindByID(ctx, id)
	if err != nil {
		return ReconcileResult{RecordID: id, Outcome: OutcomeError, ErrorKind: models.KindOf(err), Error: err.Error()}, err
	}
	return e.Reconcile(ctx, rec)
}

// ReconcileBatch reconciles every record independently. A failing record
// is counted under Errors and never stops the others; only an unreachable
// store fails the whole call. Details keep the input order. A record that
// appears more than once (same pointer or same id) is reconciled once and
// its result repeated at every position.
func (e *Engine) ReconcileBatch(ctx context.Context, recs []*models.PayrollRecord) (report *BatchReport, err error) {
	ctx, cid := utils.EnsureCorrelationId(ctx)
	ctx, span := startSpan(ctx, "payroll.reconcile.batch", attribute.Int("payroll.records", len(recs)))
	defer func() { endSpan(span, err) }()

	if err := e.store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("payroll store unavailable: %w", err)
	}

	details := make([]ReconcileResult, len(recs))
	firstIndex := make([]int, len(recs))
	seen := make(map[any]int, len(recs))
	g := new(errgroup.Group)
	g.SetLimit(e.opts.ReconcileWorkers)
	for i, rec := range recs {
		firstIndex[i] = i
		var key any = rec
		if rec != nil && rec.ID != 0 {
			key = rec.ID
		}
		if first, dup := seen[key]; dup {
			firstIndex[i] = first
			continue
		}
		seen[key] = i
		i, rec := i, rec
		g.Go(func() error {
			if ctx.Err() != nil {
				details[i] = errorResult(rec, ctx.Err())
				return nil
			}
			details[i], _ = e.Reconcile(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()
	for i, first := range firstIndex {
		if first != i {
			details[i] = details[first]
		}
	}

	report = &BatchReport{CorrelationID: cid, Details: details}
	for _, d := range details {
		switch d.Outcome {
		case OutcomeConsistent:
			report.Consistent++
		case OutcomeCorrected:
			report.Corrected++
		case OutcomeFlagged:
			report.Flagged++
		default:
			report.Errors++
		}
	}
	e.logger.WithFields(logrus.Fields{
		"field":          "ReconcileBatch",
		"correlation_id": cid,
		"consistent":     report.Consistent,
		"corrected":      report.Corrected,
		"flagged":        report.Flagged,
		"errors":         report.Errors,
	}).Info("payroll reconcile batch finished")
	return report, nil
}

// ReconcileRange reconciles every record with a business date in [start, end].
func (e *Engine) ReconcileRange(ctx context.Context, start, end string) (*BatchReport, error) {
	start, end, err := models.ValidateDateRange(start, end, 0)
	if err != nil {
		return nil, err
	}
	recs, err := e.store.FindByDateRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load payroll records: %w", err)
	}
	return e.ReconcileBatch(ctx, recs)
}
