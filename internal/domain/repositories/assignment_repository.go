package repositories

import (
	"context"

	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
)

// AssignmentRepository defines the interface for batch assignment storage.
type AssignmentRepository interface {
	GetByID(ctx context.Context, id int64) (*entities.Assignment, error)
	ListByBatch(ctx context.Context, batchID int64, assignmentType entities.AssignmentType) ([]*entities.Assignment, error)

	// MarkPendingInProgress bulk-flips the batch's pending AI assignments to
	// in_progress; assignments already in flight are left alone.
	MarkPendingInProgress(ctx context.Context, batchID int64) (int64, error)

	UpdateStatus(ctx context.Context, id int64, status entities.AssignmentStatus) error
	UpdateProgress(ctx context.Context, id int64, progress float64, status entities.AssignmentStatus) error

	// ResetForRetry flips the given assignments back to pending with zero
	// progress ahead of a selective re-run.
	ResetForRetry(ctx context.Context, ids []int64) (int64, error)

	// CancelByBatch marks every assignment of the batch cancelled.
	CancelByBatch(ctx context.Context, batchID int64) (int64, error)

	// ResetNonTerminalByBatch flips the batch's AI assignments back to
	// pending with zero progress (single-batch pause/resume).
	ResetNonTerminalByBatch(ctx context.Context, batchID int64) (int64, error)
}
