package repositories

import (
	"context"

	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
)

// ProductRepository defines the orchestrator's access to product records.
// Terminal statuses are guarded at the store: bulk transitions filter on
// the current status so ai_done rows are never clobbered by a late writer.
type ProductRepository interface {
	GetByID(ctx context.Context, id int64) (*entities.Product, error)

	// UpdateStatus sets one product's processing status.
	UpdateStatus(ctx context.Context, id int64, status entities.ProcessingStatus) error

	// MarkFailedIfProcessing cascades a provider failure: only products
	// still in a pre-failure status flip to ai_failed.
	MarkFailedIfProcessing(ctx context.Context, ids []int64) (int64, error)

	// BulkSetStatusExcluding sets the products' status except for rows
	// currently in one of the excluded statuses.
	BulkSetStatusExcluding(ctx context.Context, ids []int64, excluded []entities.ProcessingStatus, to entities.ProcessingStatus) (int64, error)

	// BulkSetStatus sets the products' status unconditionally (batch cancel).
	BulkSetStatus(ctx context.Context, ids []int64, to entities.ProcessingStatus) (int64, error)
}
