package repositories

import (
	"context"

	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
)

// ItemStatusCounts summarizes one assignment's item statuses for progress
// aggregation.
type ItemStatusCounts struct {
	Total     int
	Completed int
	Failed    int
}

// AssignmentItemRepository defines the interface for assignment item storage.
// Status writes are single-row atomic updates so concurrent item workers
// touching distinct items never race on the same row.
type AssignmentItemRepository interface {
	// ListPendingByAssignment returns the assignment's items that still need
	// AI work, i.e. everything not already ai_done. Product and batch-item
	// ids come denormalized on each row.
	ListPendingByAssignment(ctx context.Context, assignmentID int64) ([]*entities.AssignmentItem, error)

	// ListByBatch returns every AI assignment item in the batch across all
	// providers.
	ListByBatch(ctx context.Context, batchID int64) ([]*entities.AssignmentItem, error)

	// MarkInProgress sets the item ai_in_progress and stamps started_at if
	// it has never been stamped (idempotent across retries).
	MarkInProgress(ctx context.Context, id int64) error

	// MarkDone sets the item ai_done and stamps completed_at.
	MarkDone(ctx context.Context, id int64) error

	SetStatus(ctx context.Context, id int64, status entities.ItemStatus) error

	// CountByAssignment returns progress counts for one assignment.
	CountByAssignment(ctx context.Context, assignmentID int64) (ItemStatusCounts, error)

	// FailNonDoneByAssignment bulk-fails every item of the assignment that
	// is not ai_done and returns the distinct product ids touched
	// (configuration-error fail-fast).
	FailNonDoneByAssignment(ctx context.Context, assignmentID int64) ([]int64, error)

	// ResetFailedByAssignments flips ai_failed items of the given
	// assignments back to pending_ai with cleared timestamps and returns
	// the distinct product ids touched (selective retry).
	ResetFailedByAssignments(ctx context.Context, assignmentIDs []int64) ([]int64, error)

	// ResetNonTerminalByBatch flips the batch's items that are neither
	// ai_done nor ai_failed back to pending_ai (single-batch pause).
	ResetNonTerminalByBatch(ctx context.Context, batchID int64) ([]int64, error)

	// ResetAllByBatch flips every item of the batch back to pending_ai with
	// cleared timestamps and returns the distinct product ids touched
	// (batch cancel).
	ResetAllByBatch(ctx context.Context, batchID int64) ([]int64, error)
}
