package entities

import (
	"time"

	"github.com/google/uuid"
)

// BatchEventType represents the type of batch lifecycle event
type BatchEventType string

const (
	BatchEventQueued    BatchEventType = "queued"
	BatchEventStarted   BatchEventType = "started"
	BatchEventPaused    BatchEventType = "paused"
	BatchEventResumed   BatchEventType = "resumed"
	BatchEventCompleted BatchEventType = "completed"
	BatchEventFailed    BatchEventType = "failed"
	BatchEventCancelled BatchEventType = "cancelled"
	BatchEventRetrying  BatchEventType = "retrying"

	// Operator commands published on the control channel. BatchID 0 on a
	// pause or resume command targets the global flag instead of a batch.
	BatchEventSubmitRequested BatchEventType = "submit_requested"
	BatchEventPauseRequested  BatchEventType = "pause_requested"
	BatchEventResumeRequested BatchEventType = "resume_requested"
	BatchEventCancelRequested BatchEventType = "cancel_requested"
	BatchEventRetryRequested  BatchEventType = "retry_requested"
)

// BatchEvent is a real-time batch lifecycle update published on the event
// bus for operator dashboards.
type BatchEvent struct {
	ID        string                 `json:"id"`
	BatchID   int64                  `json:"batch_id"`
	EventType BatchEventType         `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// NewBatchEvent creates a new batch event
func NewBatchEvent(batchID int64, eventType BatchEventType, details map[string]interface{}) *BatchEvent {
	return &BatchEvent{
		ID:        uuid.New().String(),
		BatchID:   batchID,
		EventType: eventType,
		Timestamp: time.Now(),
		Details:   details,
	}
}
