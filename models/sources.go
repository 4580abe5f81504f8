package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/payroll_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ShiftReportStore reads teller shift reports.
type ShiftReportStore struct {
	db *gorm.DB
}

func NewShiftReportStore(db *gorm.DB) *ShiftReportStore {
	return &ShiftReportStore{db: db}
}

func (s *ShiftReportStore) FindByDateRange(ctx context.Context, start, end string) ([]*ShiftReport, error) {
	var out []*ShiftReport
	err := s.db.WithContext(ctx).
		Where("business_date BETWEEN ? AND ?", start, end).
		Order("employee_id ASC, business_date ASC, created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

func (s *ShiftReportStore) FindByEmployee(ctx context.Context, employeeId, start, end string) ([]*ShiftReport, error) {
	var out []*ShiftReport
	err := s.db.WithContext(ctx).
		Where("employee_id = ? AND business_date BETWEEN ? AND ?", employeeId, start, end).
		Order("business_date ASC, created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// DistinctEmployees lists employees with at least one report in the range, sorted.
func (s *ShiftReportStore) DistinctEmployees(ctx context.Context, start, end string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&ShiftReport{}).
		Where("business_date BETWEEN ? AND ?", start, end).
		Distinct("employee_id").
		Order("employee_id ASC").
		Pluck("employee_id", &ids).Error
	return ids, err
}

func (s *ShiftReportStore) Create(ctx context.Context, report *ShiftReport) error {
	return s.db.WithContext(ctx).Create(report).Error
}

const roleSalaryCacheTTL = 10 * time.Minute

func roleSalaryCacheKey(role Role) string {
	return "payroll:role_salary:" + string(role)
}

// SettingsStore serves per-role default base salaries, cached in Redis when available.
type SettingsStore struct {
	db *gorm.DB
}

func NewSettingsStore(db *gorm.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) DefaultBaseSalary(ctx context.Context, role Role) (decimal.Decimal, error) {
	var cached decimal.Decimal
	if ok, err := config.GetRedisObject(ctx, roleSalaryCacheKey(role), &cached); err == nil && ok {
		return cached, nil
	}

	var setting RoleSalarySetting
	err := s.db.WithContext(ctx).Where("role = ?", role).Take(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, fmt.Errorf("no default base salary for role %q: %w", role, ErrRecordNotFound)
	}
	if err != nil {
		return decimal.Zero, err
	}
	if err := config.SetRedisObject(ctx, roleSalaryCacheKey(role), setting.BaseSalary, roleSalaryCacheTTL); err != nil {
		config.LogError(config.GetLogger(), "SettingsStore", "DefaultBaseSalary", "cache role salary", role, err)
	}
	return setting.BaseSalary, nil
}

// SetDefaultBaseSalary upserts a role default and writes a BATCH_UPDATE audit row.
// Existing payroll records are not touched; sync picks the value up for
// records whose base salary was never overridden.
func (s *SettingsStore) SetDefaultBaseSalary(ctx context.Context, role Role, amount decimal.Decimal, actor string, reason string) error {
	if !role.IsValid() {
		return NewValidationError("role", "unknown role "+string(role))
	}
	if amount.IsNegative() {
		return NewValidationError("base_salary", "must not be negative")
	}
	amount = RoundMoney(amount)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		before := decimal.Zero
		var current RoleSalarySetting
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("role = ?", role).Take(&current).Error
		switch {
		case err == nil:
			before = current.BaseSalary
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		setting := RoleSalarySetting{Role: role, BaseSalary: amount, UpdatedBy: actor}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "role"}},
			DoUpdates: clause.AssignmentColumns([]string{"base_salary", "updated_by", "updated_at"}),
		}).Create(&setting).Error; err != nil {
			return err
		}
		return tx.Create(&PayrollAuditLog{
			ActionType:    AuditActionBatchUpdate,
			PerformedBy:   actor,
			Role:          role,
			ValueBefore:   before,
			ValueAfter:    amount,
			Reason:        reason,
			CorrelationId: correlationIdOf(ctx),
		}).Error
	})
	if err != nil {
		return err
	}
	if err := config.RemoveRedisKey(ctx, roleSalaryCacheKey(role)); err != nil {
		config.LogError(config.GetLogger(), "SettingsStore", "SetDefaultBaseSalary", "evict role salary", role, err)
	}
	return nil
}

// EmployeeStore resolves employees and their roles.
type EmployeeStore struct {
	db *gorm.DB
}

func NewEmployeeStore(db *gorm.DB) *EmployeeStore {
	return &EmployeeStore{db: db}
}

func (s *EmployeeStore) FindEmployee(ctx context.Context, id string) (*Employee, error) {
	var emp Employee
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&emp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("employee %s: %w", id, ErrRecordNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

func (s *EmployeeStore) Upsert(ctx context.Context, emp *Employee) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "role", "active", "updated_at"}),
	}).Create(emp).Error
}

// EmployeeAuthorizer grants a role requirement to active employees whose
// role ranks at or above it.
type EmployeeAuthorizer struct {
	employees *EmployeeStore
}

func NewEmployeeAuthorizer(employees *EmployeeStore) *EmployeeAuthorizer {
	return &EmployeeAuthorizer{employees: employees}
}

func (a *EmployeeAuthorizer) HasRole(ctx context.Context, actor string, required Role) (bool, error) {
	emp, err := a.employees.FindEmployee(ctx, actor)
	if errors.Is(err, ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return emp.Active && emp.Role.Satisfies(required), nil
}
