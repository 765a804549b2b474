package entities

import (
	"fmt"
	"time"

	apperrors "github.com/styleatlas/catalog-annotation/pkg/errors"
)

// ItemStatus tracks one product's unit of work within one assignment.
type ItemStatus string

const (
	ItemPendingAI       ItemStatus = "pending_ai"
	ItemAIInProgress    ItemStatus = "ai_in_progress"
	ItemAIFailed        ItemStatus = "ai_failed"
	ItemAIDone          ItemStatus = "ai_done"
	ItemPendingHuman    ItemStatus = "pending_human"
	ItemHumanInProgress ItemStatus = "human_in_progress"
	ItemHumanDone       ItemStatus = "human_done"
)

var itemTransitions = map[ItemStatus][]ItemStatus{
	ItemPendingAI:    {ItemAIInProgress, ItemAIFailed},
	ItemAIInProgress: {ItemAIDone, ItemAIFailed, ItemPendingAI},
	// ai_failed resets to pending_ai through an operator retry, or re-enters
	// processing directly when its batch is resubmitted
	ItemAIFailed: {ItemPendingAI, ItemAIInProgress},
	// ai_done never regresses
	ItemAIDone:          {},
	ItemPendingHuman:    {ItemHumanInProgress},
	ItemHumanInProgress: {ItemHumanDone, ItemPendingHuman},
	ItemHumanDone:       {},
}

// Valid reports whether s is a known item status.
func (s ItemStatus) Valid() bool {
	_, ok := itemTransitions[s]
	return ok
}

// CanTransition reports whether moving from s to next is a legal step.
func (s ItemStatus) CanTransition(next ItemStatus) bool {
	for _, allowed := range itemTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s is a terminal AI status.
func (s ItemStatus) Terminal() bool {
	return s == ItemAIDone || s == ItemAIFailed
}

// Transition moves the item to next, rejecting steps the lifecycle does
// not allow. Setting the current status again is a no-op so re-entrant
// workers stay idempotent.
func (i *AssignmentItem) Transition(next ItemStatus) error {
	if next == i.Status {
		return nil
	}
	if !i.Status.CanTransition(next) {
		return apperrors.NewValidationError(fmt.Sprintf(
			"assignment item %d cannot move from %s to %s", i.ID, i.Status, next))
	}
	i.Status = next
	return nil
}

// AssignmentItem is one product's unit of work within one assignment:
// the unit of retry. ProductID and BatchItemID are denormalized onto the
// item by the store adapter so workers never re-join mid-flight.
type AssignmentItem struct {
	ID           int64      `json:"id" db:"id"`
	AssignmentID int64      `json:"assignment_id" db:"assignment_id"`
	BatchItemID  int64      `json:"batch_item_id" db:"batch_item_id"`
	ProductID    int64      `json:"product_id" db:"product_id"`
	Status       ItemStatus `json:"status" db:"status"`
	StartedAt    *time.Time `json:"started_at" db:"started_at"`
	CompletedAt  *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}
