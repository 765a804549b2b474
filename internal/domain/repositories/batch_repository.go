package repositories

import (
	"context"

	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
)

// BatchRepository defines read access to annotation batches.
type BatchRepository interface {
	GetByID(ctx context.Context, id int64) (*entities.Batch, error)
}
