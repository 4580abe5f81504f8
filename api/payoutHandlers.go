package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/payroll_backend/models"
	"github.com/mmdatafocus/payroll_backend/workflow"
	"github.com/shopspring/decimal"
)

type withdrawalRequest struct {
	EmployeeId string `json:"employee_id"`
	RecordIDs  []int  `json:"record_ids"`
	// Amount is optional and only valid with a single record.
	Amount    any    `json:"amount"`
	WeekRange string `json:"week_range"`
}

type decisionRequest struct {
	Reason string `json:"reason"`
}

type shortPlanRequest struct {
	OriginRecordId int    `json:"origin_record_id"`
	Terms          int    `json:"terms"`
	StartDate      string `json:"start_date"`
	Note           string `json:"note"`
}

type installmentRequest struct {
	Amount          any  `json:"amount"`
	PayrollRecordId *int `json:"payroll_record_id"`
}

func (h *Handler) RequestWithdrawal(c *gin.Context) {
	var req withdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abortWithError(c, "RequestWithdrawal", models.NewValidationError("body", "invalid request"))
		return
	}
	amount, err := optionalAmount("amount", req.Amount)
	if err != nil {
		h.abortWithError(c, "RequestWithdrawal", err)
		return
	}
	w, err := h.svc.RequestWithdrawal(c.Request.Context(), workflow.WithdrawalInput{
		EmployeeId: strings.TrimSpace(req.EmployeeId),
		RecordIDs:  req.RecordIDs,
		Amount:     amount,
		WeekRange:  req.WeekRange,
		Actor:      actorOf(c),
	})
	if err != nil {
		h.abortWithError(c, "RequestWithdrawal", err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (h *Handler) ListWithdrawals(c *gin.Context) {
	out, err := h.svc.ListWithdrawals(c.Request.Context(),
		strings.TrimSpace(c.Query("employee_id")),
		models.WithdrawalStatus(strings.TrimSpace(c.Query("status"))))
	if err != nil {
		h.abortWithError(c, "ListWithdrawals", err)
		return
	}
	if out == nil {
		out = []*models.Withdrawal{}
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetWithdrawal(c *gin.Context) {
	id, ok := h.pathID(c, "GetWithdrawal", "wid", "withdrawal")
	if !ok {
		return
	}
	w, err := h.svc.GetWithdrawal(c.Request.Context(), id)
	if err != nil {
		h.abortWithError(c, "GetWithdrawal", err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *Handler) ApproveWithdrawal(c *gin.Context) {
	id, ok := h.pathID(c, "ApproveWithdrawal", "wid", "withdrawal")
	if !ok {
		return
	}
	w, err := h.svc.ApproveWithdrawal(c.Request.Context(), id, actorOf(c))
	if err != nil {
		h.abortWithError(c, "ApproveWithdrawal", err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *Handler) RejectWithdrawal(c *gin.Context) {
	id, ok := h.pathID(c, "RejectWithdrawal", "wid", "withdrawal")
	if !ok {
		return
	}
	var req decisionRequest
	// The reason is optional, so an empty body is fine.
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.abortWithError(c, "RejectWithdrawal", models.NewValidationError("body", "invalid request"))
			return
		}
	}
	w, err := h.svc.RejectWithdrawal(c.Request.Context(), id, req.Reason, actorOf(c))
	if err != nil {
		h.abortWithError(c, "RejectWithdrawal", err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *Handler) CreateShortPlan(c *gin.Context) {
	var req shortPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abortWithError(c, "CreateShortPlan", models.NewValidationError("body", "invalid request"))
		return
	}
	plan, err := h.svc.CreateShortPlan(c.Request.Context(), workflow.ShortPlanInput{
		OriginRecordId: req.OriginRecordId,
		Terms:          req.Terms,
		StartDate:      req.StartDate,
		Note:           req.Note,
		Actor:          actorOf(c),
	})
	if err != nil {
		h.abortWithError(c, "CreateShortPlan", err)
		return
	}
	c.JSON(http.StatusCreated, plan)
}

func (h *Handler) ListShortPlans(c *gin.Context) {
	out, err := h.svc.ListShortPlans(c.Request.Context(),
		strings.TrimSpace(c.Query("employee_id")),
		models.ShortPlanStatus(strings.TrimSpace(c.Query("status"))))
	if err != nil {
		h.abortWithError(c, "ListShortPlans", err)
		return
	}
	if out == nil {
		out = []*models.ShortPaymentPlan{}
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) RecordShortInstallment(c *gin.Context) {
	id, ok := h.pathID(c, "RecordShortInstallment", "pid", "plan")
	if !ok {
		return
	}
	var req installmentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.abortWithError(c, "RecordShortInstallment", models.NewValidationError("body", "invalid request"))
			return
		}
	}
	amount, err := optionalAmount("amount", req.Amount)
	if err != nil {
		h.abortWithError(c, "RecordShortInstallment", err)
		return
	}
	plan, err := h.svc.RecordShortInstallment(c.Request.Context(), workflow.InstallmentInput{
		PlanId:          id,
		Amount:          amount,
		PayrollRecordId: req.PayrollRecordId,
		Actor:           actorOf(c),
	})
	if err != nil {
		h.abortWithError(c, "RecordShortInstallment", err)
		return
	}
	c.JSON(http.StatusCreated, plan)
}

func (h *Handler) CancelShortPlan(c *gin.Context) {
	id, ok := h.pathID(c, "CancelShortPlan", "pid", "plan")
	if !ok {
		return
	}
	var req decisionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.abortWithError(c, "CancelShortPlan", models.NewValidationError("body", "invalid request"))
			return
		}
	}
	plan, err := h.svc.CancelShortPlan(c.Request.Context(), id, req.Reason, actorOf(c))
	if err != nil {
		h.abortWithError(c, "CancelShortPlan", err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *Handler) ShortDeductionDue(c *gin.Context) {
	due, err := h.svc.ShortDeductionDue(c.Request.Context(), strings.TrimSpace(c.Param("employeeId")))
	if err != nil {
		h.abortWithError(c, "ShortDeductionDue", err)
		return
	}
	c.JSON(http.StatusOK, due)
}

func optionalAmount(field string, raw any) (decimal.Decimal, error) {
	if raw == nil {
		return decimal.Zero, nil
	}
	return amountFrom(field, raw)
}
