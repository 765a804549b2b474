package repositories

import (
	"context"

	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
)

// AttributeRepository defines read access to the attribute catalog.
type AttributeRepository interface {
	// ListForSubclass returns the active attributes mapped to the product
	// subclass, deduplicated by attribute id, each carrying its allowed
	// values when restricted. A nil subclass yields no attributes.
	ListForSubclass(ctx context.Context, subclassID *int64) ([]*entities.Attribute, error)
}
