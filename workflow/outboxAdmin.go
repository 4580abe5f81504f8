package workflow

import (
	"context"

	"github.com/mmdatafocus/payroll_backend/models"
	"github.com/sirupsen/logrus"
)

// requeueRole may hand dead events back to the dispatcher.
const requeueRole = models.RoleAdmin

// OutboxStatus reports the publish state of a record's events.
func (e *Engine) OutboxStatus(ctx context.Context, recordID int) (*models.PayrollOutboxStatus, error) {
	return e.store.OutboxStatus(ctx, recordID)
}

// RequeueEvents makes a record's FAILED and DEAD events eligible for
// publishing again and returns how many were requeued.
func (e *Engine) RequeueEvents(ctx context.Context, recordID int, actor string) (int, error) {
	if err := e.authorize(ctx, actor, requeueRole); err != nil {
		return 0, err
	}
	n, err := e.store.RequeueEvents(ctx, recordID)
	if err != nil {
		return 0, err
	}
	e.logger.WithFields(logrus.Fields{
		"field":     "RequeueEvents",
		"record_id": recordID,
		"requeued":  n,
		"actor":     actor,
	}).Info("payroll events requeued")
	return n, nil
}
