package database

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
	"github.com/styleatlas/catalog-annotation/internal/domain/repositories"
	"github.com/styleatlas/catalog-annotation/internal/infrastructure/clients/postgres"
	apperrors "github.com/styleatlas/catalog-annotation/pkg/errors"
)

// AnnotationAdapter implements AnnotationRepository.
type AnnotationAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewAnnotationAdapter creates a new annotation adapter.
func NewAnnotationAdapter(client *postgres.Client) repositories.AnnotationRepository {
	return &AnnotationAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Upsert inserts or overwrites the annotation keyed by
// (product, attribute, source_type, source_id). Re-processing replaces
// the prior value instead of duplicating the row.
func (a *AnnotationAdapter) Upsert(ctx context.Context, annotation *entities.Annotation) error {
	query := `
	INSERT INTO tbl_product_annotations
		(product_id, attribute_id, value, source_type, source_id, confidence_score, batch_item_id, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	ON CONFLICT (product_id, attribute_id, source_type, source_id)
	DO UPDATE SET
		value = EXCLUDED.value,
		confidence_score = EXCLUDED.confidence_score,
		batch_item_id = EXCLUDED.batch_item_id,
		updated_at = NOW()
	RETURNING id`

	err := a.client.DB().QueryRowContext(ctx, query,
		annotation.ProductID,
		annotation.AttributeID,
		annotation.Value,
		annotation.SourceType,
		annotation.SourceID,
		annotation.ConfidenceScore,
		annotation.BatchItemID,
	).Scan(&annotation.ID)
	if err != nil {
		return apperrors.NewInternalError("failed to upsert annotation", err)
	}
	return nil
}
