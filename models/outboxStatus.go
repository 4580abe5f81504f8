package models

import (
	"context"
	"time"
)

// PayrollEventStatus is the operator view of one outbox row.
type PayrollEventStatus struct {
	EventId          int              `json:"event_id"`
	EventType        PayrollEventType `json:"event_type"`
	PublishStatus    string           `json:"publish_status"`
	PublishAttempts  int              `json:"publish_attempts"`
	NextAttemptAt    *time.Time       `json:"next_attempt_at"`
	LastPublishError *string          `json:"last_publish_error"`
	CreatedAt        time.Time        `json:"created_at"`
	PublishedAt      *time.Time       `json:"published_at"`
}

// PayrollOutboxStatus counts a record's outbox rows by publish status and
// lists them oldest first.
type PayrollOutboxStatus struct {
	PayrollRecordId int                  `json:"payroll_record_id"`
	Counts          map[string]int       `json:"counts"`
	Events          []PayrollEventStatus `json:"events"`
}

func (s *PayrollStore) OutboxStatus(ctx context.Context, recordID int) (*PayrollOutboxStatus, error) {
	if err := s.requireRecord(ctx, recordID); err != nil {
		return nil, err
	}
	var rows []PayrollEvent
	if err := s.db.WithContext(ctx).
		Where("payroll_record_id = ?", recordID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := &PayrollOutboxStatus{
		PayrollRecordId: recordID,
		Counts: map[string]int{
			OutboxPublishStatusPending:    0,
			OutboxPublishStatusProcessing: 0,
			OutboxPublishStatusSent:       0,
			OutboxPublishStatusFailed:     0,
			OutboxPublishStatusDead:       0,
		},
		Events: make([]PayrollEventStatus, 0, len(rows)),
	}
	for _, ev := range rows {
		out.Counts[ev.PublishStatus]++
		out.Events = append(out.Events, PayrollEventStatus{
			EventId:          ev.ID,
			EventType:        ev.EventType,
			PublishStatus:    ev.PublishStatus,
			PublishAttempts:  ev.PublishAttempts,
			NextAttemptAt:    ev.NextAttemptAt,
			LastPublishError: ev.LastPublishError,
			CreatedAt:        ev.CreatedAt,
			PublishedAt:      ev.PublishedAt,
		})
	}
	return out, nil
}

// RequeueEvents puts a record's FAILED and DEAD events back to PENDING with
// a fresh attempt budget. SENT and in-flight rows are left alone.
func (s *PayrollStore) RequeueEvents(ctx context.Context, recordID int) (int, error) {
	if err := s.requireRecord(ctx, recordID); err != nil {
		return 0, err
	}
	res := s.db.WithContext(ctx).
		Model(&PayrollEvent{}).
		Where("payroll_record_id = ? AND publish_status IN ?", recordID, []string{OutboxPublishStatusFailed, OutboxPublishStatusDead}).
		Updates(map[string]interface{}{
			"publish_status":     OutboxPublishStatusPending,
			"publish_attempts":   0,
			"next_attempt_at":    nil,
			"locked_at":          nil,
			"locked_by":          nil,
			"last_publish_error": nil,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (s *PayrollStore) requireRecord(ctx context.Context, recordID int) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&PayrollRecord{}).Where("id = ?", recordID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}
