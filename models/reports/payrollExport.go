package reports

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/mmdatafocus/payroll_backend/models"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

const (
	payrollSheet     = "Payroll"
	adjustmentsSheet = "Adjustments"
)

// ExcelExporter is one spreadsheet row.
type ExcelExporter interface {
	GetCellValues() []interface{}
}

// PayrollRecordSource loads the records to export.
type PayrollRecordSource interface {
	FindByDateRange(ctx context.Context, start, end string) ([]*models.PayrollRecord, error)
}

var payrollHeadings = []string{
	"RecordId", "EmployeeId", "BusinessDate", "Role", "BaseSalary", "BaseSalaryOverridden",
	"Over", "Short", "ShortPaymentTerms", "Deduction", "Withdrawal", "Adjustments",
	"TotalSalary", "Status", "ApprovedBy", "LockedBy",
}

var adjustmentHeadings = []string{"RecordId", "EmployeeId", "BusinessDate", "Delta", "Reason", "Actor", "CreatedAt"}

type payrollRow struct{ rec *models.PayrollRecord }

func (r payrollRow) GetCellValues() []interface{} {
	rec := r.rec
	return []interface{}{
		rec.ID,
		rec.EmployeeId,
		rec.BusinessDate,
		string(rec.Role),
		rec.BaseSalary.InexactFloat64(),
		rec.BaseSalaryOverridden,
		rec.Over.InexactFloat64(),
		rec.Short.InexactFloat64(),
		rec.ShortPaymentTerms,
		rec.Deduction.InexactFloat64(),
		rec.Withdrawal.InexactFloat64(),
		models.LedgerTotal(rec).InexactFloat64(),
		rec.TotalSalary.InexactFloat64(),
		string(rec.State()),
		derefString(rec.ApprovedBy),
		derefString(rec.LockedBy),
	}
}

type adjustmentRow struct {
	rec *models.PayrollRecord
	adj *models.Adjustment
}

func (r adjustmentRow) GetCellValues() []interface{} {
	return []interface{}{
		r.rec.ID,
		r.rec.EmployeeId,
		r.rec.BusinessDate,
		r.adj.Delta.InexactFloat64(),
		r.adj.Reason,
		r.adj.Actor,
		r.adj.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
	}
}

// BuildPayrollWorkbook lays out one row per record and one row per
// adjustment on a second sheet.
func BuildPayrollWorkbook(recs []*models.PayrollRecord) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", payrollSheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(adjustmentsSheet); err != nil {
		return nil, err
	}

	rows := make([]ExcelExporter, 0, len(recs))
	var adjRows []ExcelExporter
	for _, rec := range recs {
		rows = append(rows, payrollRow{rec})
		for _, adj := range rec.Adjustments {
			adjRows = append(adjRows, adjustmentRow{rec, adj})
		}
	}
	if err := writeSheet(f, payrollSheet, payrollHeadings, rows); err != nil {
		return nil, err
	}
	if err := writeSheet(f, adjustmentsSheet, adjustmentHeadings, adjRows); err != nil {
		return nil, err
	}
	return f, nil
}

// ExportPayroll writes the records with a business date in [start, end] to w.
func ExportPayroll(ctx context.Context, src PayrollRecordSource, start, end string, w io.Writer) (n int, err error) {
	start, end, err = models.ValidateDateRange(start, end, 0)
	if err != nil {
		return 0, err
	}
	defer logSlowReport(ctx, "payroll_export", time.Now(), logrus.Fields{"start": start, "end": end})
	recs, err := src.FindByDateRange(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("load payroll records: %w", err)
	}
	f, err := BuildPayrollWorkbook(recs)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return 0, err
	}
	return len(recs), nil
}

func writeSheet(f *excelize.File, sheetName string, headings []string, data []ExcelExporter) error {
	for i, h := range headings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
	}
	for r, d := range data {
		for c, value := range d.GetCellValues() {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
