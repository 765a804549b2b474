package repositories

import (
	"context"

	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
)

// ProviderRepository defines read access to AI provider records.
type ProviderRepository interface {
	// GetActiveByID returns the provider if it exists and is active, and a
	// not-found error otherwise (missing and inactive look the same to the
	// orchestrator: a configuration error).
	GetActiveByID(ctx context.Context, id int64) (*entities.Provider, error)
}
