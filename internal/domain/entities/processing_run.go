package entities

import "time"

// RunStatus tracks a single attempt at a single assignment item.
type RunStatus string

const (
	RunProcessing RunStatus = "processing"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// PauseFailureReason marks a run that was interrupted by the global pause
// flag. Such runs do not count toward retry exhaustion.
const PauseFailureReason = "paused by control flag"

// ProcessingRun is the append-only record of one attempt at one
// assignment item. A run is never updated after reaching a terminal
// status; every retry creates a fresh row.
type ProcessingRun struct {
	ID               int64      `json:"id" db:"id"`
	AssignmentItemID int64      `json:"assignment_item_id" db:"assignment_item_id"`
	ProviderID       int64      `json:"provider_id" db:"provider_id"`
	Status           RunStatus  `json:"status" db:"status"`
	Attempt          int        `json:"attempt" db:"attempt"`
	MaxRetries       int        `json:"max_retries" db:"max_retries"`
	LastError        string     `json:"last_error" db:"last_error"`
	StartedAt        *time.Time `json:"started_at" db:"started_at"`
	CompletedAt      *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}
