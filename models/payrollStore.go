package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/payroll_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// upsertAttempts bounds how often a key collision is retried as an update.
const upsertAttempts = 2

var errUpsertRace = errors.New("payroll row vanished between insert and update")

// PayrollStore persists payroll records, their ledger, audit rows and outbox
// events. Every write that touches a record also writes its queued events in
// the same transaction.
type PayrollStore struct {
	db *gorm.DB
}

func NewPayrollStore(db *gorm.DB) *PayrollStore {
	return &PayrollStore{db: db}
}

func (s *PayrollStore) DB() *gorm.DB {
	return s.db
}

func (s *PayrollStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// UpsertByEmployeeDate creates the (employee, date) record or refreshes its
// source fields. The insert relies on the unique index, so two concurrent
// callers for the same key end with exactly one row. Locked rows are left
// untouched and reported as UpsertSkippedLocked.
func (s *PayrollStore) UpsertByEmployeeDate(ctx context.Context, employeeId, businessDate string, fields SourceFields) (*PayrollRecord, UpsertOutcome, error) {
	var lastErr error
	for attempt := 0; attempt < upsertAttempts; attempt++ {
		rec, outcome, err := s.upsertOnce(ctx, employeeId, businessDate, fields)
		if err == nil {
			return rec, outcome, nil
		}
		if !errors.Is(err, errUpsertRace) && !errors.Is(err, ErrStaleRecord) && !isDuplicateKeyErr(err) {
			return nil, "", err
		}
		lastErr = err
	}
	return nil, "", fmt.Errorf("%w: employee %s on %s: %v", ErrUniqueConstraintConflict, employeeId, businessDate, lastErr)
}

func (s *PayrollStore) upsertOnce(ctx context.Context, employeeId, businessDate string, fields SourceFields) (*PayrollRecord, UpsertOutcome, error) {
	var (
		out     *PayrollRecord
		outcome UpsertOutcome
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		candidate := NewPayrollRecordFromSource(employeeId, businessDate, fields)
		res := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "employee_id"}, {Name: "business_date"}},
				DoNothing: true,
			}).
			Create(candidate)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			if err := candidate.RecordEvent(PayrollEventCreated, candidate); err != nil {
				return err
			}
			if err := flushPending(ctx, tx, candidate); err != nil {
				return err
			}
			out, outcome = candidate, UpsertCreated
			return nil
		}

		existing, err := loadForUpdate(tx, "employee_id = ? AND business_date = ?", employeeId, businessDate)
		if errors.Is(err, ErrRecordNotFound) {
			return errUpsertRace
		}
		if err != nil {
			return err
		}
		if existing.Locked {
			out, outcome = existing, UpsertSkippedLocked
			return nil
		}
		before := existing.TotalSalary
		if !existing.ApplySourceFields(fields) {
			out, outcome = existing, UpsertUnchanged
			return nil
		}
		if err := existing.RecordEvent(PayrollEventSourceUpdated, map[string]any{
			"total_before": before,
			"total_after":  existing.TotalSalary,
			"over":         existing.Over,
			"short":        existing.Short,
			"base_salary":  existing.BaseSalary,
		}); err != nil {
			return err
		}
		if err := saveTx(ctx, tx, existing); err != nil {
			return err
		}
		out, outcome = existing, UpsertUpdated
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	out.DiscardPending()
	return out, outcome, nil
}

// CreateManual inserts a fully specified record together with any ledger
// entries it already carries. A key collision is ErrUniqueConstraintConflict.
func (s *PayrollStore) CreateManual(ctx context.Context, rec *PayrollRecord) error {
	adjustments := rec.Adjustments
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(rec).Error; err != nil {
			if isDuplicateKeyErr(err) {
				return fmt.Errorf("%w: employee %s on %s", ErrUniqueConstraintConflict, rec.EmployeeId, rec.BusinessDate)
			}
			return err
		}
		for _, a := range adjustments {
			a.ID = 0
			a.PayrollRecordId = rec.ID
			if a.CreatedAt.IsZero() {
				a.CreatedAt = time.Now().UTC()
			}
			if err := tx.Create(a).Error; err != nil {
				return err
			}
		}
		return flushPending(ctx, tx, rec)
	})
	if err != nil {
		rec.ID = 0
		for _, a := range adjustments {
			a.ID = 0
		}
		return err
	}
	rec.DiscardPending()
	return nil
}

func (s *PayrollStore) FindByID(ctx context.Context, id int) (*PayrollRecord, error) {
	var rec PayrollRecord
	err := s.db.WithContext(ctx).
		Preload("Adjustments", orderAdjustments).
		Where("id = ?", id).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PayrollStore) FindByEmployeeDate(ctx context.Context, employeeId, businessDate string) (*PayrollRecord, error) {
	var rec PayrollRecord
	err := s.db.WithContext(ctx).
		Preload("Adjustments", orderAdjustments).
		Where("employee_id = ? AND business_date = ?", employeeId, businessDate).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindByEmployee returns an employee's records ordered by business date.
func (s *PayrollStore) FindByEmployee(ctx context.Context, employeeId string) ([]*PayrollRecord, error) {
	var recs []*PayrollRecord
	err := s.db.WithContext(ctx).
		Preload("Adjustments", orderAdjustments).
		Where("employee_id = ?", employeeId).
		Order("business_date ASC").
		Find(&recs).Error
	return recs, err
}

// FindByDateRange returns records with start <= business_date <= end.
func (s *PayrollStore) FindByDateRange(ctx context.Context, start, end string) ([]*PayrollRecord, error) {
	var recs []*PayrollRecord
	err := s.db.WithContext(ctx).
		Preload("Adjustments", orderAdjustments).
		Where("business_date BETWEEN ? AND ?", start, end).
		Order("employee_id ASC, business_date ASC").
		Find(&recs).Error
	return recs, err
}

// Mutate loads the record under a row lock and hands it to fn. When fn
// reports a change the record is saved in the same transaction. An error
// from fn rolls everything back and is returned unchanged.
func (s *PayrollStore) Mutate(ctx context.Context, id int, fn func(rec *PayrollRecord) (bool, error)) (*PayrollRecord, error) {
	var out *PayrollRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := loadForUpdate(tx, "id = ?", id)
		if err != nil {
			return err
		}
		changed, err := fn(rec)
		if err != nil {
			return err
		}
		if changed {
			if err := saveTx(ctx, tx, rec); err != nil {
				return err
			}
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.DiscardPending()
	return out, nil
}

// Save writes rec if its stored version still matches and it is not locked.
// Otherwise it returns LockedRecordError, ErrStaleRecord or ErrRecordNotFound
// and rec keeps its in-memory version.
func (s *PayrollStore) Save(ctx context.Context, rec *PayrollRecord) error {
	version := rec.Version
	unsaved := rec.UnsavedAdjustments()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return saveTx(ctx, tx, rec)
	})
	if err != nil {
		rec.Version = version
		for _, a := range unsaved {
			a.ID = 0
		}
		return err
	}
	rec.DiscardPending()
	return nil
}

// RecordFlag stores a drift that could not be corrected automatically.
func (s *PayrollStore) RecordFlag(ctx context.Context, report *ReconciliationReport) error {
	if report.CorrelationId == "" {
		report.CorrelationId = correlationIdOf(ctx)
	}
	if report.CheckType == "" {
		report.CheckType = CheckTypePayrollTotal
	}
	if report.EntityType == "" {
		report.EntityType = EntityTypePayroll
	}
	return s.db.WithContext(ctx).Create(report).Error
}

func (s *PayrollStore) WriteAuditLog(ctx context.Context, entry *PayrollAuditLog) error {
	if entry.CorrelationId == "" {
		entry.CorrelationId = correlationIdOf(ctx)
	}
	return s.db.WithContext(ctx).Create(entry).Error
}

// FlaggedSince lists reconciliation flags created at or after since, newest first.
func (s *PayrollStore) FlaggedSince(ctx context.Context, since time.Time) ([]*ReconciliationReport, error) {
	var out []*ReconciliationReport
	err := s.db.WithContext(ctx).
		Where("check_type = ? AND created_at >= ?", CheckTypePayrollTotal, since).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

func orderAdjustments(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}

// loadForUpdate must run inside a transaction. The sqlite dialect ignores
// the locking clause; its single writer serializes instead.
func loadForUpdate(tx *gorm.DB, query string, args ...any) (*PayrollRecord, error) {
	var rec PayrollRecord
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where(query, args...).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Where("payroll_record_id = ?", rec.ID).Order("id ASC").Find(&rec.Adjustments).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func saveTx(ctx context.Context, tx *gorm.DB, rec *PayrollRecord) error {
	now := time.Now().UTC()
	res := tx.Model(&PayrollRecord{}).
		Where("id = ? AND version = ? AND locked = ?", rec.ID, rec.Version, false).
		Updates(map[string]any{
			"role":                   rec.Role,
			"base_salary":            rec.BaseSalary,
			"base_salary_overridden": rec.BaseSalaryOverridden,
			"over_amount":            rec.Over,
			"short_amount":           rec.Short,
			"deduction":              rec.Deduction,
			"withdrawal":             rec.Withdrawal,
			"short_payment_terms":    rec.ShortPaymentTerms,
			"total_salary":           rec.TotalSalary,
			"approved":               rec.Approved,
			"approved_by":            rec.ApprovedBy,
			"approved_at":            rec.ApprovedAt,
			"locked":                 rec.Locked,
			"locked_by":              rec.LockedBy,
			"locked_at":              rec.LockedAt,
			"version":                rec.Version + 1,
			"updated_at":             now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return classifyMissedWrite(tx, rec.ID)
	}
	rec.Version++
	rec.UpdatedAt = now

	for _, a := range rec.UnsavedAdjustments() {
		a.PayrollRecordId = rec.ID
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if err := tx.Create(a).Error; err != nil {
			return err
		}
	}
	return flushPending(ctx, tx, rec)
}

func classifyMissedWrite(tx *gorm.DB, id int) error {
	var current struct {
		Locked  bool
		Version int
	}
	err := tx.Model(&PayrollRecord{}).Select("locked", "version").Where("id = ?", id).Take(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	if err != nil {
		return err
	}
	if current.Locked {
		return &LockedRecordError{RecordId: id}
	}
	return ErrStaleRecord
}

func flushPending(ctx context.Context, tx *gorm.DB, rec *PayrollRecord) error {
	cid := correlationIdOf(ctx)
	for _, ev := range rec.pendingEvents {
		ev.PayrollRecordId = rec.ID
		ev.EmployeeId = rec.EmployeeId
		ev.BusinessDate = rec.BusinessDate
		if ev.CorrelationId == "" {
			ev.CorrelationId = cid
		}
		if ev.PublishStatus == "" {
			ev.PublishStatus = OutboxPublishStatusPending
		}
		if err := tx.Create(ev).Error; err != nil {
			return err
		}
	}
	for _, entry := range rec.pendingAudit {
		id := rec.ID
		entry.PayrollRecordId = &id
		if entry.EmployeeId == "" {
			entry.EmployeeId = rec.EmployeeId
		}
		if entry.CorrelationId == "" {
			entry.CorrelationId = cid
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
	}
	return nil
}

func correlationIdOf(ctx context.Context) string {
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	return cid
}
