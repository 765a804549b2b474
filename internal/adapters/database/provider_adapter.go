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

// ProviderAdapter implements ProviderRepository.
type ProviderAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewProviderAdapter creates a new provider adapter.
func NewProviderAdapter(client *postgres.Client) repositories.ProviderRepository {
	return &ProviderAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// GetActiveByID returns the provider if it exists and is active. Missing
// and inactive providers both read as not found.
func (a *ProviderAdapter) GetActiveByID(ctx context.Context, id int64) (*entities.Provider, error) {
	query, args, err := a.db.Select(
		"id", "name", "service_name", "model_name", "is_active", "config", "created_at",
	).
		From("tbl_ai_provider").
		Where(goqu.Ex{"id": id, "is_active": true}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build provider query", err)
	}

	provider := &entities.Provider{}
	var modelName sql.NullString
	var config []byte
	err = a.client.DB().QueryRowContext(ctx, query, args...).Scan(
		&provider.ID,
		&provider.Name,
		&provider.ServiceName,
		&modelName,
		&provider.IsActive,
		&config,
		&provider.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("active AI provider %d not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get provider", err)
	}

	provider.ModelName = modelName.String
	provider.Config = config
	return provider, nil
}
