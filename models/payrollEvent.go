package models

import (
	"time"

	"github.com/mmdatafocus/payroll_backend/config"
)

// PayrollEvent is a transactional outbox row: written in the same transaction
// as the payroll change and published after commit by the outbox dispatcher.
type PayrollEvent struct {
	ID               int              `gorm:"primary_key;index:idx_payroll_outbox_dispatch,priority:3" json:"id"`
	EventType        PayrollEventType `gorm:"size:50;not null;index" json:"event_type"`
	PayrollRecordId  int              `gorm:"not null;index" json:"payroll_record_id"`
	EmployeeId       string           `gorm:"size:64;not null;index" json:"employee_id"`
	BusinessDate     string           `gorm:"size:10;not null" json:"business_date"`
	Payload          []byte           `gorm:"type:blob" json:"payload"`
	CorrelationId    string           `gorm:"size:64;index" json:"correlation_id"`
	PublishStatus    string           `gorm:"size:20;index;not null;default:'PENDING';index:idx_payroll_outbox_dispatch,priority:1" json:"publish_status"`
	PublishedAt      *time.Time       `gorm:"index" json:"published_at"`
	PubSubMessageId  *string          `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int              `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time       `gorm:"index;index:idx_payroll_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time       `gorm:"index" json:"locked_at"`
	LockedBy         *string          `gorm:"size:100" json:"locked_by"`
	LastPublishError *string          `gorm:"type:text" json:"last_publish_error"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// Outbox publish statuses for PayrollEvent.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

func ConvertToPayrollEventMessage(event PayrollEvent) config.PayrollEventMessage {
	return config.PayrollEventMessage{
		ID:              event.ID,
		EventType:       string(event.EventType),
		PayrollRecordId: event.PayrollRecordId,
		EmployeeId:      event.EmployeeId,
		BusinessDate:    event.BusinessDate,
		Payload:         event.Payload,
		CorrelationId:   event.CorrelationId,
		OccurredAt:      event.CreatedAt,
	}
}
