package repositories

import (
	"context"

	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
)

// AnnotationRepository defines the interface for product annotation storage.
type AnnotationRepository interface {
	// Upsert inserts or overwrites the annotation keyed by
	// (product, attribute, source_type, source_id).
	Upsert(ctx context.Context, annotation *entities.Annotation) error
}
