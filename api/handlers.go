package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/payroll_backend/models"
	"github.com/mmdatafocus/payroll_backend/utils"
	"github.com/mmdatafocus/payroll_backend/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PayrollService is the engine surface the admin API drives.
// *workflow.Engine implements it.
type PayrollService interface {
	Sync(ctx context.Context, start, end string) (*workflow.SyncReport, error)
	SyncEmployee(ctx context.Context, employeeId, start, end string) (*workflow.SyncReport, error)
	ReconcileRange(ctx context.Context, start, end string) (*workflow.BatchReport, error)
	ReconcileByID(ctx context.Context, id int) (workflow.ReconcileResult, error)
	AppendAdjustmentByID(ctx context.Context, recordID int, delta decimal.Decimal, reason, actor string) (*models.Adjustment, *models.PayrollRecord, error)
	ApproveByID(ctx context.Context, recordID int, actor string) (workflow.TransitionResult, *models.PayrollRecord, error)
	LockByID(ctx context.Context, recordID int, actor string) (workflow.TransitionResult, *models.PayrollRecord, error)
	SetBaseSalary(ctx context.Context, recordID int, amount decimal.Decimal, reason, actor string) (*models.PayrollRecord, error)
	CreateManual(ctx context.Context, in workflow.ManualEntryInput) (*models.PayrollRecord, error)
	GetRecord(ctx context.Context, id int) (*models.PayrollRecord, error)
	EmployeeHistory(ctx context.Context, employeeId string) ([]*models.PayrollRecord, error)
	CheckSourceDrift(ctx context.Context, start, end string) (*workflow.SourceDriftReport, error)
	OutboxStatus(ctx context.Context, recordID int) (*models.PayrollOutboxStatus, error)
	RequeueEvents(ctx context.Context, recordID int, actor string) (int, error)

	RequestWithdrawal(ctx context.Context, in workflow.WithdrawalInput) (*models.Withdrawal, error)
	ApproveWithdrawal(ctx context.Context, id int, actor string) (*models.Withdrawal, error)
	RejectWithdrawal(ctx context.Context, id int, reason, actor string) (*models.Withdrawal, error)
	GetWithdrawal(ctx context.Context, id int) (*models.Withdrawal, error)
	ListWithdrawals(ctx context.Context, employeeId string, status models.WithdrawalStatus) ([]*models.Withdrawal, error)

	CreateShortPlan(ctx context.Context, in workflow.ShortPlanInput) (*models.ShortPaymentPlan, error)
	RecordShortInstallment(ctx context.Context, in workflow.InstallmentInput) (*models.ShortPaymentPlan, error)
	CancelShortPlan(ctx context.Context, planId int, reason, actor string) (*models.ShortPaymentPlan, error)
	ListShortPlans(ctx context.Context, employeeId string, status models.ShortPlanStatus) ([]*models.ShortPaymentPlan, error)
	ShortDeductionDue(ctx context.Context, employeeId string) (*workflow.ShortDeduction, error)
}

type Handler struct {
	svc    PayrollService
	logger *logrus.Logger
}

func NewHandler(svc PayrollService, logger *logrus.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type dateRangeRequest struct {
	Start      string `json:"start"`
	End        string `json:"end"`
	EmployeeId string `json:"employee_id"`
}

type adjustmentRequest struct {
	Delta  any    `json:"delta"`
	Reason string `json:"reason"`
}

type baseSalaryRequest struct {
	Amount any    `json:"amount"`
	Reason string `json:"reason"`
}

type manualEntryRequest struct {
	EmployeeId        string      `json:"employee_id"`
	BusinessDate      string      `json:"business_date"`
	Reason            string      `json:"reason"`
	Role              models.Role `json:"role"`
	BaseSalary        any         `json:"base_salary"`
	Over              any         `json:"over"`
	Short             any         `json:"short"`
	Deduction         any         `json:"deduction"`
	Withdrawal        any         `json:"withdrawal"`
	ShortPaymentTerms int         `json:"short_payment_terms"`
}

func (h *Handler) Sync(c *gin.Context) {
	var req dateRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abortWithError(c, "Sync", models.NewValidationError("body", "invalid request"))
		return
	}
	var (
		report *workflow.SyncReport
		err    error
	)
	if strings.TrimSpace(req.EmployeeId) != "" {
		report, err = h.svc.SyncEmployee(c.Request.Context(), strings.TrimSpace(req.EmployeeId), req.Start, req.End)
	} else {
		report, err = h.svc.Sync(c.Request.Context(), req.Start, req.End)
	}
	if err != nil {
		h.abortWithError(c, "Sync", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) ReconcileRange(c *gin.Context) {
	var req dateRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abortWithError(c, "ReconcileRange", models.NewValidationError("body", "invalid request"))
		return
	}
	report, err := h.svc.ReconcileRange(c.Request.Context(), req.Start, req.End)
	if err != nil {
		h.abortWithError(c, "ReconcileRange", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) ReconcileOne(c *gin.Context) {
	id, ok := h.recordID(c, "ReconcileOne")
	if !ok {
		return
	}
	res, err := h.svc.ReconcileByID(c.Request.Context(), id)
	if err != nil {
		h.abortWithError(c, "ReconcileOne", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) AppendAdjustment(c *gin.Context) {
	id, ok := h.recordID(c, "AppendAdjustment")
	if !ok {
		return
	}
	var req adjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abortWithError(c, "AppendAdjustment", models.NewValidationError("body", "invalid request"))
		return
	}
	delta, err := amountFrom("delta", req.Delta)
	if err != nil {
		h.abortWithError(c, "AppendAdjustment", err)
		return
	}
	adj, rec, err := h.svc.AppendAdjustmentByID(c.Request.Context(), id, delta, req.Reason, actorOf(c))
	if err != nil {
		h.abortWithError(c, "AppendAdjustment", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"adjustment": adj, "record": rec})
}

func (h *Handler) Approve(c *gin.Context) {
	id, ok := h.recordID(c, "Approve")
	if !ok {
		return
	}
	res, rec, err := h.svc.ApproveByID(c.Request.Context(), id, actorOf(c))
	if err != nil {
		h.abortWithError(c, "Approve", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transition": res, "record": rec})
}

func (h *Handler) Lock(c *gin.Context) {
	id, ok := h.recordID(c, "Lock")
	if !ok {
		return
	}
	res, rec, err := h.svc.LockByID(c.Request.Context(), id, actorOf(c))
	if err != nil {
		h.abortWithError(c, "Lock", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transition": res, "record": rec})
}

func (h *Handler) SetBaseSalary(c *gin.Context) {
	id, ok := h.recordID(c, "SetBaseSalary")
	if !ok {
		return
	}
	var req baseSalaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abortWithError(c, "SetBaseSalary", models.NewValidationError("body", "invalid request"))
		return
	}
	amount, err := amountFrom("amount", req.Amount)
	if err != nil {
		h.abortWithError(c, "SetBaseSalary", err)
		return
	}
	rec, err := h.svc.SetBaseSalary(c.Request.Context(), id, amount, req.Reason, actorOf(c))
	if err != nil {
		h.abortWithError(c, "SetBaseSalary", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) CreateManual(c *gin.Context) {
	var req manualEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abortWithError(c, "CreateManual", models.NewValidationError("body", "invalid request"))
		return
	}
	fields := models.ManualFields{Role: req.Role, ShortPaymentTerms: req.ShortPaymentTerms}
	for _, a := range []struct {
		name string
		raw  any
		dst  *decimal.Decimal
	}{
		{"base_salary", req.BaseSalary, &fields.BaseSalary},
		{"over", req.Over, &fields.Over},
		{"short", req.Short, &fields.Short},
		{"deduction", req.Deduction, &fields.Deduction},
		{"withdrawal", req.Withdrawal, &fields.Withdrawal},
	} {
		if a.raw == nil {
			continue
		}
		v, err := amountFrom(a.name, a.raw)
		if err != nil {
			h.abortWithError(c, "CreateManual", err)
			return
		}
		*a.dst = v
	}
	rec, err := h.svc.CreateManual(c.Request.Context(), workflow.ManualEntryInput{
		EmployeeId:   strings.TrimSpace(req.EmployeeId),
		BusinessDate: req.BusinessDate,
		Actor:        actorOf(c),
		Reason:       req.Reason,
		Fields:       fields,
	})
	if err != nil {
		h.abortWithError(c, "CreateManual", err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) GetRecord(c *gin.Context) {
	id, ok := h.recordID(c, "GetRecord")
	if !ok {
		return
	}
	rec, err := h.svc.GetRecord(c.Request.Context(), id)
	if err != nil {
		h.abortWithError(c, "GetRecord", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) EmployeeHistory(c *gin.Context) {
	recs, err := h.svc.EmployeeHistory(c.Request.Context(), strings.TrimSpace(c.Param("employeeId")))
	if err != nil {
		h.abortWithError(c, "EmployeeHistory", err)
		return
	}
	if recs == nil {
		recs = []*models.PayrollRecord{}
	}
	c.JSON(http.StatusOK, recs)
}

func (h *Handler) SourceDrift(c *gin.Context) {
	report, err := h.svc.CheckSourceDrift(c.Request.Context(), c.Query("start"), c.Query("end"))
	if err != nil {
		h.abortWithError(c, "SourceDrift", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) OutboxStatus(c *gin.Context) {
	id, ok := h.recordID(c, "OutboxStatus")
	if !ok {
		return
	}
	status, err := h.svc.OutboxStatus(c.Request.Context(), id)
	if err != nil {
		h.abortWithError(c, "OutboxStatus", err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) RequeueEvents(c *gin.Context) {
	id, ok := h.recordID(c, "RequeueEvents")
	if !ok {
		return
	}
	n, err := h.svc.RequeueEvents(c.Request.Context(), id, actorOf(c))
	if err != nil {
		h.abortWithError(c, "RequeueEvents", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record_id": id, "requeued": n})
}

func (h *Handler) recordID(c *gin.Context, funcName string) (int, bool) {
	return h.pathID(c, funcName, "id", "record")
}

func (h *Handler) pathID(c *gin.Context, funcName, param, what string) (int, bool) {
	id, err := strconv.Atoi(c.Param(param))
	if err != nil || id <= 0 {
		h.abortWithError(c, funcName, models.NewValidationError(param, what+" id must be a positive integer"))
		return 0, false
	}
	return id, true
}

func actorOf(c *gin.Context) string {
	actor, _ := utils.GetActorIdFromContext(c.Request.Context())
	return actor
}

// amountFrom accepts a JSON number or a formatted string such as "1,250.50".
func amountFrom(field string, raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case float64:
		return models.AmountFromFloat(field, v)
	case string:
		return models.ParseAmount(field, v)
	case nil:
		return decimal.Zero, models.NewValidationError(field, "amount is required")
	}
	return decimal.Zero, models.NewValidationError(field, "amount must be a number or a string")
}
