package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/payroll_backend/config"
	"github.com/mmdatafocus/payroll_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ShiftReportSource is the read-only view of teller shift reports.
type ShiftReportSource interface {
	FindByDateRange(ctx context.Context, start, end string) ([]*models.ShiftReport, error)
	FindByEmployee(ctx context.Context, employeeId, start, end string) ([]*models.ShiftReport, error)
	DistinctEmployees(ctx context.Context, start, end string) ([]string, error)
}

type SettingsSource interface {
	DefaultBaseSalary(ctx context.Context, role models.Role) (decimal.Decimal, error)
}

type EmployeeDirectory interface {
	FindEmployee(ctx context.Context, id string) (*models.Employee, error)
}

type AuthorizationCheck interface {
	HasRole(ctx context.Context, actor string, required models.Role) (bool, error)
}

// PayrollStore is the persistence contract of the engine. Upserts are atomic
// on (employee, date) and Save/Mutate write the total, the ledger and the
// outbox rows in one transaction.
type PayrollStore interface {
	Ping(ctx context.Context) error
	UpsertByEmployeeDate(ctx context.Context, employeeId, businessDate string, fields models.SourceFields) (*models.PayrollRecord, models.UpsertOutcome, error)
	CreateManual(ctx context.Context, rec *models.PayrollRecord) error
	FindByID(ctx context.Context, id int) (*models.PayrollRecord, error)
	FindByEmployee(ctx context.Context, employeeId string) ([]*models.PayrollRecord, error)
	FindByDateRange(ctx context.Context, start, end string) ([]*models.PayrollRecord, error)
	Mutate(ctx context.Context, id int, fn func(rec *models.PayrollRecord) (bool, error)) (*models.PayrollRecord, error)
	Save(ctx context.Context, rec *models.PayrollRecord) error
	RecordFlag(ctx context.Context, report *models.ReconciliationReport) error
	OutboxStatus(ctx context.Context, recordID int) (*models.PayrollOutboxStatus, error)
	RequeueEvents(ctx context.Context, recordID int) (int, error)

	CreateWithdrawal(ctx context.Context, employeeId, requestedBy, weekRange string, lines []models.WithdrawalLine) (*models.Withdrawal, error)
	ApproveWithdrawal(ctx context.Context, id int, actor string, at time.Time) (*models.Withdrawal, error)
	RejectWithdrawal(ctx context.Context, id int, actor, reason string, at time.Time) (*models.Withdrawal, error)
	FindWithdrawal(ctx context.Context, id int) (*models.Withdrawal, error)
	ListWithdrawals(ctx context.Context, employeeId string, status models.WithdrawalStatus) ([]*models.Withdrawal, error)

	CreateShortPlan(ctx context.Context, originId, terms int, startDate, note, actor string) (*models.ShortPaymentPlan, error)
	RecordShortInstallment(ctx context.Context, planId int, amount decimal.Decimal, payrollRecordId *int, actor string, at time.Time) (*models.ShortPaymentPlan, error)
	CancelShortPlan(ctx context.Context, planId int, actor, reason string) (*models.ShortPaymentPlan, error)
	FindShortPlan(ctx context.Context, id int) (*models.ShortPaymentPlan, error)
	ListShortPlans(ctx context.Context, employeeId string, status models.ShortPlanStatus) ([]*models.ShortPaymentPlan, error)
}

type Dependencies struct {
	Store     PayrollStore
	Reports   ShiftReportSource
	Settings  SettingsSource
	Employees EmployeeDirectory
	Auth      AuthorizationCheck
	// Locker is optional; without it appends serialize on the row lock alone.
	Locker *redislock.Client
	Logger *logrus.Logger
}

type Options struct {
	SameDayPolicy    models.SameDayPolicy
	ExternalTimeout  time.Duration
	SyncWorkers      int
	ReconcileWorkers int
	MaxSyncDays      int
	Now              func() time.Time
}

func DefaultOptions() Options {
	policy, err := models.ParseSameDayPolicy(config.PayrollSameDayPolicy())
	if err != nil {
		policy = models.SameDayPolicyFlag
	}
	return Options{
		SameDayPolicy:    policy,
		ExternalTimeout:  config.PayrollExternalTimeout(),
		SyncWorkers:      config.PayrollSyncWorkers(),
		ReconcileWorkers: config.PayrollReconcileWorkers(),
		MaxSyncDays:      config.PayrollMaxSyncDays(),
		Now:              time.Now,
	}
}

// Engine runs reconciliation, ledger appends, the lock gate and sync
// against injected collaborators. It holds no state across records.
type Engine struct {
	store     PayrollStore
	reports   ShiftReportSource
	settings  SettingsSource
	employees EmployeeDirectory
	auth      AuthorizationCheck
	locker    *redislock.Client
	logger    *logrus.Logger
	opts      Options
}

func NewEngine(deps Dependencies, opts Options) (*Engine, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("workflow: payroll store is required")
	case deps.Reports == nil:
		return nil, errors.New("workflow: shift report source is required")
	case deps.Settings == nil:
		return nil, errors.New("workflow: settings source is required")
	case deps.Employees == nil:
		return nil, errors.New("workflow: employee directory is required")
	case deps.Auth == nil:
		return nil, errors.New("workflow: authorization check is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = config.GetLogger()
	}
	if opts.SameDayPolicy == "" {
		opts.SameDayPolicy = models.SameDayPolicyFlag
	}
	if opts.ExternalTimeout <= 0 {
		opts.ExternalTimeout = 10 * time.Second
	}
	if opts.SyncWorkers <= 0 {
		opts.SyncWorkers = 4
	}
	if opts.ReconcileWorkers <= 0 {
		opts.ReconcileWorkers = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		store:     deps.Store,
		reports:   deps.Reports,
		settings:  deps.Settings,
		employees: deps.Employees,
		auth:      deps.Auth,
		locker:    deps.Locker,
		logger:    logger,
		opts:      opts,
	}, nil
}

// NewDefaultEngine wires the gorm-backed collaborators and env options.
func NewDefaultEngine(db *gorm.DB, logger *logrus.Logger) (*Engine, error) {
	employees := models.NewEmployeeStore(db)
	return NewEngine(Dependencies{
		Store:     models.NewPayrollStore(db),
		Reports:   models.NewShiftReportStore(db),
		Settings:  models.NewSettingsStore(db),
		Employees: employees,
		Auth:      models.NewEmployeeAuthorizer(employees),
		Locker:    config.GetRedisLock(),
		Logger:    logger,
	}, DefaultOptions())
}

func (e *Engine) Store() PayrollStore {
	return e.store
}

func (e *Engine) Options() Options {
	return e.opts
}

func (e *Engine) now() time.Time {
	return e.opts.Now().UTC()
}

// authorize fails with ErrNotAuthorized unless actor holds required.
func (e *Engine) authorize(ctx context.Context, actor string, required models.Role) error {
	if actor == "" {
		return models.NewValidationError("actor", "actor is required")
	}
	var granted bool
	err := e.callExternal(ctx, "authorization", "", func(ctx context.Context) error {
		var err error
		granted, err = e.auth.HasRole(ctx, actor, required)
		return err
	})
	if err != nil {
		return err
	}
	if !granted {
		return fmt.Errorf("%w: %s does not hold role %s", models.ErrNotAuthorized, actor, required)
	}
	return nil
}

// callExternal bounds fn by the external timeout and wraps a failure as
// ExternalFetchError. A source that ignores its context is abandoned when
// the deadline passes; fn must not publish results the caller reads after
// a timeout.
func (e *Engine) callExternal(ctx context.Context, source, employeeId string, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.ExternalTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(callCtx) }()

	var err error
	select {
	case err = <-done:
	case <-callCtx.Done():
		err = callCtx.Err()
	}
	if err != nil {
		return &models.ExternalFetchError{Source: source, EmployeeId: employeeId, Err: err}
	}
	return nil
}

// GetRecord loads one record with its adjustments.
func (e *Engine) GetRecord(ctx context.Context, id int) (*models.PayrollRecord, error) {
	return e.store.FindByID(ctx, id)
}

// EmployeeHistory lists an employee's records by business date.
func (e *Engine) EmployeeHistory(ctx context.Context, employeeId string) ([]*models.PayrollRecord, error) {
	if employeeId == "" {
		return nil, models.NewValidationError("employee_id", "employee id is required")
	}
	return e.store.FindByEmployee(ctx, employeeId)
}
