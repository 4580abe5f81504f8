package workflow

import (
	"context"
	"fmt"
	"sort"

	"github.com/mmdatafocus/payroll_backend/models"
	"github.com/shopspring/decimal"
)

type SourceDriftKind string

const (
	SourceDriftMismatch      SourceDriftKind = "over_short_mismatch"
	SourceDriftMissingRecord SourceDriftKind = "missing_record"
	SourceDriftOrphanRecord  SourceDriftKind = "orphan_record"
	SourceDriftAmbiguous     SourceDriftKind = "ambiguous"
)

type SourceDrift struct {
	Kind         SourceDriftKind `json:"kind"`
	EmployeeId   string          `json:"employee_id"`
	BusinessDate string          `json:"business_date"`
	RecordID     int             `json:"record_id,omitempty"`
	Locked       bool            `json:"locked"`
	StoredOver   decimal.Decimal `json:"stored_over"`
	StoredShort  decimal.Decimal `json:"stored_short"`
	ReportOver   decimal.Decimal `json:"report_over"`
	ReportShort  decimal.Decimal `json:"report_short"`
	ReportCount  int             `json:"report_count"`
}

type SourceDriftReport struct {
	Start   string        `json:"start"`
	End     string        `json:"end"`
	Checked int           `json:"checked"`
	Drifts  []SourceDrift `json:"drifts"`
}

type employeeDay struct {
	employeeId string
	date       string
}

// CheckSourceDrift compares stored over/short with the shift reports they
// were derived from. It never writes; resolving a drift is a sync or a
// ledger entry.
func (e *Engine) CheckSourceDrift(ctx context.Context, start, end string) (*SourceDriftReport, error) {
	start, end, err := models.ValidateDateRange(start, end, e.opts.MaxSyncDays)
	if err != nil {
		return nil, err
	}

	var reports []*models.ShiftReport
	err = e.callExternal(ctx, "shift_reports", "", func(ctx context.Context) error {
		found, err := e.reports.FindByDateRange(ctx, start, end)
		if err == nil {
			reports = found
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	recs, err := e.store.FindByDateRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load payroll records: %w", err)
	}

	byDay := make(map[employeeDay][]*models.ShiftReport)
	for _, r := range reports {
		k := employeeDay{r.EmployeeId, r.BusinessDate}
		byDay[k] = append(byDay[k], r)
	}

	out := &SourceDriftReport{Start: start, End: end, Checked: len(recs), Drifts: []SourceDrift{}}
	seen := make(map[employeeDay]bool, len(recs))
	for _, rec := range recs {
		k := employeeDay{rec.EmployeeId, rec.BusinessDate}
		seen[k] = true
		d := SourceDrift{
			EmployeeId:   rec.EmployeeId,
			BusinessDate: rec.BusinessDate,
			RecordID:     rec.ID,
			Locked:       rec.Locked,
			StoredOver:   rec.Over,
			StoredShort:  rec.Short,
			ReportOver:   decimal.Zero,
			ReportShort:  decimal.Zero,
		}
		dayReports, ok := byDay[k]
		if !ok {
			d.Kind = SourceDriftOrphanRecord
			out.Drifts = append(out.Drifts, d)
			continue
		}
		agg := models.AggregateDay(rec.EmployeeId, rec.BusinessDate, dayReports, e.opts.SameDayPolicy)
		d.ReportCount = agg.ReportCount
		if agg.Ambiguous {
			d.Kind = SourceDriftAmbiguous
			out.Drifts = append(out.Drifts, d)
			continue
		}
		d.ReportOver = models.RoundMoney(agg.Over)
		d.ReportShort = models.RoundMoney(agg.Short)
		if !d.ReportOver.Equal(rec.Over) || !d.ReportShort.Equal(rec.Short) {
			d.Kind = SourceDriftMismatch
			out.Drifts = append(out.Drifts, d)
		}
	}

	var missing []employeeDay
	for k := range byDay {
		if !seen[k] {
			missing = append(missing, k)
		}
	}
	sort.Slice(missing, func(i, j int) bool {
		if missing[i].employeeId != missing[j].employeeId {
			return missing[i].employeeId < missing[j].employeeId
		}
		return missing[i].date < missing[j].date
	})
	for _, k := range missing {
		agg := models.AggregateDay(k.employeeId, k.date, byDay[k], e.opts.SameDayPolicy)
		d := SourceDrift{
			Kind:         SourceDriftMissingRecord,
			EmployeeId:   k.employeeId,
			BusinessDate: k.date,
			StoredOver:   decimal.Zero,
			StoredShort:  decimal.Zero,
			ReportOver:   models.RoundMoney(agg.Over),
			ReportShort:  models.RoundMoney(agg.Short),
			ReportCount:  agg.ReportCount,
		}
		if agg.Ambiguous {
			d.Kind = SourceDriftAmbiguous
		}
		out.Drifts = append(out.Drifts, d)
	}
	return out, nil
}
