package repositories

import (
	"context"

	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
)

// FailureLogRepository defines the interface for provider failure records.
type FailureLogRepository interface {
	Create(ctx context.Context, log *entities.FailureLog) error

	// ListUnresolvedAssignmentIDs returns the distinct assignments of the
	// batch that have unresolved failure rows (selective-retry targeting).
	ListUnresolvedAssignmentIDs(ctx context.Context, batchID int64) ([]int64, error)

	// ResolveByAssignments marks the assignments' unresolved failures
	// resolved and returns the number of rows touched.
	ResolveByAssignments(ctx context.Context, assignmentIDs []int64) (int64, error)
}
