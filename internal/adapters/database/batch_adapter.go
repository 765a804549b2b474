package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
	"github.com/styleatlas/catalog-annotation/internal/domain/repositories"
	"github.com/styleatlas/catalog-annotation/internal/infrastructure/clients/postgres"
	apperrors "github.com/styleatlas/catalog-annotation/pkg/errors"
)

// BatchAdapter implements BatchRepository.
type BatchAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewBatchAdapter creates a new batch adapter.
func NewBatchAdapter(client *postgres.Client) repositories.BatchRepository {
	return &BatchAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// GetByID retrieves a batch by ID.
func (a *BatchAdapter) GetByID(ctx context.Context, id int64) (*entities.Batch, error) {
	query, args, err := a.db.Select(
		"id", "name", "description", "batch_size", "batch_type", "created_at", "updated_at",
	).
		From("tbl_annotation_batch").
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build batch query", err)
	}

	var description sql.NullString
	batch := &entities.Batch{}
	err = a.client.DB().QueryRowContext(ctx, query, args...).Scan(
		&batch.ID,
		&batch.Name,
		&description,
		&batch.BatchSize,
		&batch.BatchType,
		&batch.CreatedAt,
		&batch.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("batch %d not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get batch", err)
	}

	batch.Description = description.String
	return batch, nil
}
