package workflow

import (
	"context"

	"github.com/mmdatafocus/payroll_backend/models"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	approveRole = models.RoleSupervisor
	lockRole    = models.RoleAdmin
)

type TransitionOutcome string

const (
	TransitionApplied   TransitionOutcome = "applied"
	TransitionUnchanged TransitionOutcome = "unchanged"
)

type TransitionResult struct {
	RecordID int               `json:"record_id"`
	From     models.LockState  `json:"from"`
	To       models.LockState  `json:"to"`
	Outcome  TransitionOutcome `json:"outcome"`
}

// Approve moves a draft record to approved. Approving an approved record is
// a no-op; approving a locked one is a LockedRecordError.
func (e *Engine) Approve(ctx context.Context, rec *models.PayrollRecord, actor string) (TransitionResult, error) {
	if rec == nil {
		return TransitionResult{}, models.NewValidationError("record", "record is required")
	}
	res, updated, err := e.ApproveByID(ctx, rec.ID, actor)
	if err != nil {
		return res, err
	}
	*rec = *updated
	return res, nil
}

func (e *Engine) ApproveByID(ctx context.Context, recordID int, actor string) (TransitionResult, *models.PayrollRecord, error) {
	return e.transition(ctx, recordID, actor, approveRole, models.LockStateApproved, func(r *models.PayrollRecord) (bool, error) {
		switch r.State() {
		case models.LockStateLocked:
			return false, &models.LockedRecordError{RecordId: r.ID}
		case models.LockStateApproved:
			return false, nil
		}
		now := e.now()
		r.Approved = true
		r.ApprovedBy = &actor
		r.ApprovedAt = &now
		return true, r.RecordEvent(models.PayrollEventApproved, map[string]any{"actor": actor, "total": r.TotalSalary})
	})
}

// Lock freezes an approved record. Locking a locked record is a no-op;
// locking a draft is an InvalidTransitionError.
func (e *Engine) Lock(ctx context.Context, rec *models.PayrollRecord, actor string) (TransitionResult, error) {
	if rec == nil {
		return TransitionResult{}, models.NewValidationError("record", "record is required")
	}
	res, updated, err := e.LockByID(ctx, rec.ID, actor)
	if err != nil {
		return res, err
	}
	*rec = *updated
	return res, nil
}

func (e *Engine) LockByID(ctx context.Context, recordID int, actor string) (TransitionResult, *models.PayrollRecord, error) {
	return e.transition(ctx, recordID, actor, lockRole, models.LockStateLocked, func(r *models.PayrollRecord) (bool, error) {
		switch r.State() {
		case models.LockStateLocked:
			return false, nil
		case models.LockStateDraft:
			return false, &models.InvalidTransitionError{RecordId: r.ID, From: models.LockStateDraft, To: models.LockStateLocked}
		}
		now := e.now()
		r.Locked = true
		r.LockedBy = &actor
		r.LockedAt = &now
		return true, r.RecordEvent(models.PayrollEventLocked, map[string]any{"actor": actor, "total": r.TotalSalary})
	})
}

func (e *Engine) transition(ctx context.Context, recordID int, actor string, required models.Role, to models.LockState, apply func(r *models.PayrollRecord) (bool, error)) (res TransitionResult, rec *models.PayrollRecord, err error) {
	ctx, span := startSpan(ctx, "payroll.lockgate."+string(to), attribute.Int("payroll.record_id", recordID))
	defer func() { endSpan(span, err) }()

	res = TransitionResult{RecordID: recordID, To: to}
	if err := e.authorize(ctx, actor, required); err != nil {
		return res, nil, err
	}
	rec, err = e.store.Mutate(ctx, recordID, func(r *models.PayrollRecord) (bool, error) {
		res.From = r.State()
		return apply(r)
	})
	if err != nil {
		return res, nil, err
	}
	res.Outcome = TransitionUnchanged
	if res.From != rec.State() {
		res.Outcome = TransitionApplied
	}
	e.logger.WithFields(logrus.Fields{
		"field":     "LockGate",
		"record_id": recordID,
		"from":      res.From,
		"to":        to,
		"outcome":   res.Outcome,
		"actor":     actor,
	}).Info("payroll lock gate transition")
	return res, rec, nil
}
