package repositories

import (
	"context"

	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
)

// ProcessingRunRepository defines the interface for attempt record storage.
// Runs are append-only: terminal rows are never mutated again.
type ProcessingRunRepository interface {
	// Create inserts a new run and fills in its generated id.
	Create(ctx context.Context, run *entities.ProcessingRun) error

	MarkCompleted(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, lastError string) error

	ListByItem(ctx context.Context, assignmentItemID int64) ([]*entities.ProcessingRun, error)
}
