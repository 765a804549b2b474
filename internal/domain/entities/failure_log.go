package entities

import "time"

// FailureLog is the append-only record of one provider failure, used both
// for operator diagnostics and as the targeting set for selective retry:
// only assignments with unresolved failure rows get re-run.
type FailureLog struct {
	ID               int64      `json:"id" db:"id"`
	ProviderID       int64      `json:"provider_id" db:"provider_id"`
	AssignmentItemID int64      `json:"assignment_item_id" db:"assignment_item_id"`
	ErrorType        string     `json:"error_type" db:"error_type"`
	ErrorMessage     string     `json:"error_message" db:"error_message"`
	HTTPStatus       *int       `json:"http_status" db:"http_status"`
	IsResolved       bool       `json:"is_resolved" db:"is_resolved"`
	ResolvedAt       *time.Time `json:"resolved_at" db:"resolved_at"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// Failure classifications recorded in ErrorType.
const (
	FailureTypeAuth      = "authentication"
	FailureTypeTransient = "transient"
	FailureTypeConfig    = "configuration"
)
