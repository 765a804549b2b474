package entities

import (
	"fmt"
	"time"

	apperrors "github.com/styleatlas/catalog-annotation/pkg/errors"
)

// AssignmentType mirrors BatchType at the assignment level.
type AssignmentType string

const (
	AssignmentTypeAI    AssignmentType = "ai"
	AssignmentTypeHuman AssignmentType = "human"
)

// AssignmentStatus tracks one provider's allocation of work within a batch.
type AssignmentStatus string

const (
	AssignmentPending    AssignmentStatus = "pending"
	AssignmentInProgress AssignmentStatus = "in_progress"
	AssignmentCompleted  AssignmentStatus = "completed"
	AssignmentFailed     AssignmentStatus = "failed"
	AssignmentCancelled  AssignmentStatus = "cancelled"
)

var assignmentTransitions = map[AssignmentStatus][]AssignmentStatus{
	AssignmentPending:    {AssignmentInProgress, AssignmentFailed, AssignmentCancelled},
	AssignmentInProgress: {AssignmentPending, AssignmentCompleted, AssignmentFailed, AssignmentCancelled},
	// failed may go back to pending through an operator retry
	AssignmentFailed:    {AssignmentPending, AssignmentCancelled},
	AssignmentCompleted: {AssignmentCancelled},
	AssignmentCancelled: {AssignmentPending},
}

// Valid reports whether s is a known assignment status.
func (s AssignmentStatus) Valid() bool {
	_, ok := assignmentTransitions[s]
	return ok
}

// CanTransition reports whether moving from s to next is a legal step.
func (s AssignmentStatus) CanTransition(next AssignmentStatus) bool {
	for _, allowed := range assignmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition moves the assignment to next, rejecting steps the lifecycle
// does not allow. Setting the current status again is a no-op.
func (a *Assignment) Transition(next AssignmentStatus) error {
	if next == a.Status {
		return nil
	}
	if !a.Status.CanTransition(next) {
		return apperrors.NewValidationError(fmt.Sprintf(
			"assignment %d cannot move from %s to %s", a.ID, a.Status, next))
	}
	a.Status = next
	return nil
}

// Assignment is one provider's allocation of work within a batch.
// ProviderID references an AI provider for ai assignments and a human
// annotator for human ones; only the AI path runs through the orchestrator.
type Assignment struct {
	ID         int64            `json:"id" db:"id"`
	BatchID    int64            `json:"batch_id" db:"batch_id"`
	Type       AssignmentType   `json:"assignment_type" db:"assignment_type"`
	ProviderID int64            `json:"assignment_id" db:"assignment_id"`
	Status     AssignmentStatus `json:"status" db:"status"`
	Progress   float64          `json:"progress" db:"progress"`
	CreatedAt  time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at" db:"updated_at"`
}
