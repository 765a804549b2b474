package entities

import (
	"fmt"
	"time"

	apperrors "github.com/styleatlas/catalog-annotation/pkg/errors"
)

// ProcessingStatus tracks where a product sits in the annotation pipeline.
type ProcessingStatus string

const (
	ProcessingPending         ProcessingStatus = "pending"
	ProcessingPendingAI       ProcessingStatus = "pending_ai"
	ProcessingAIInProgress    ProcessingStatus = "ai_in_progress"
	ProcessingAIFailed        ProcessingStatus = "ai_failed"
	ProcessingAIDone          ProcessingStatus = "ai_done"
	ProcessingPendingHuman    ProcessingStatus = "pending_human"
	ProcessingHumanInProgress ProcessingStatus = "human_in_progress"
	ProcessingHumanDone       ProcessingStatus = "human_done"
)

// PreFailureStatuses are the statuses a product may be in when a provider
// failure cascades down to it. A product already ai_done or in the human
// pipeline is never clobbered by an AI failure.
var PreFailureStatuses = []ProcessingStatus{
	ProcessingPending,
	ProcessingPendingAI,
	ProcessingAIInProgress,
}

var productTransitions = map[ProcessingStatus][]ProcessingStatus{
	ProcessingPending:         {ProcessingPendingAI, ProcessingAIInProgress, ProcessingAIFailed},
	ProcessingPendingAI:       {ProcessingAIInProgress, ProcessingAIFailed, ProcessingAIDone},
	ProcessingAIInProgress:    {ProcessingAIFailed, ProcessingAIDone, ProcessingPendingAI},
	ProcessingAIFailed:        {ProcessingAIDone, ProcessingAIInProgress, ProcessingPendingAI},
	ProcessingAIDone:          {ProcessingPendingHuman},
	ProcessingPendingHuman:    {ProcessingHumanInProgress},
	ProcessingHumanInProgress: {ProcessingHumanDone, ProcessingPendingHuman},
	ProcessingHumanDone:       {},
}

// Valid reports whether s is a known processing status.
func (s ProcessingStatus) Valid() bool {
	_, ok := productTransitions[s]
	return ok
}

// CanTransition reports whether moving from s to next is a legal step.
// ai_done never regresses into the AI pipeline; only the human handoff
// follows it.
func (s ProcessingStatus) CanTransition(next ProcessingStatus) bool {
	for _, allowed := range productTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition moves the product to next, rejecting steps the pipeline does
// not allow. Setting the current status again is a no-op.
func (p *Product) Transition(next ProcessingStatus) error {
	if next == p.ProcessingStatus {
		return nil
	}
	if !p.ProcessingStatus.CanTransition(next) {
		return apperrors.NewValidationError(fmt.Sprintf(
			"product %d cannot move from %s to %s", p.ID, p.ProcessingStatus, next))
	}
	p.ProcessingStatus = next
	return nil
}

// IsPreFailure reports whether a provider failure may cascade onto s.
func (s ProcessingStatus) IsPreFailure() bool {
	for _, st := range PreFailureStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// Product is one catalog style record. The orchestrator only ever touches
// its processing_status; all other fields are read-only catalog data.
type Product struct {
	ID               int64            `json:"id" db:"id"`
	StyleID          string           `json:"style_id" db:"style_id"`
	StyleDesc        string           `json:"style_desc" db:"style_desc"`
	StyleDescription string           `json:"style_description" db:"style_description"`
	DeptName         string           `json:"dept_name" db:"dept_name"`
	SubdeptName      string           `json:"subdept_name" db:"subdept_name"`
	ClassName        string           `json:"class_name" db:"class_name"`
	SubclassName     string           `json:"subclass_name" db:"subclass_name"`
	SubclassID       *int64           `json:"subclass_id" db:"subclass_id"`
	PrimaryImageURL  string           `json:"primary_image_url" db:"primary_image_url"`
	ProcessingStatus ProcessingStatus `json:"processing_status" db:"processing_status"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
}

// Name returns the display name sent to providers: the style description
// when present, else the raw style id.
func (p *Product) Name() string {
	if p.StyleDesc != "" {
		return p.StyleDesc
	}
	return p.StyleID
}
