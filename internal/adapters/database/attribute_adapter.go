package database

import (
	"context"
	"database/sql"

	"github.com/doug-martin/goqu/v9"
	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
	"github.com/styleatlas/catalog-annotation/internal/domain/repositories"
	"github.com/styleatlas/catalog-annotation/internal/infrastructure/clients/postgres"
	apperrors "github.com/styleatlas/catalog-annotation/pkg/errors"
)

// AttributeAdapter implements AttributeRepository.
type AttributeAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewAttributeAdapter creates a new attribute adapter.
func NewAttributeAdapter(client *postgres.Client) repositories.AttributeRepository {
	return &AttributeAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// ListForSubclass returns the active attributes mapped to the subclass,
// each with its allowed values. The subclass map can reference the same
// attribute more than once; rows are deduplicated by attribute id.
func (a *AttributeAdapter) ListForSubclass(ctx context.Context, subclassID *int64) ([]*entities.Attribute, error) {
	if subclassID == nil {
		return nil, nil
	}

	query := `
	SELECT DISTINCT am.id, am.attribute_name, am.description, am.is_active
	FROM tbl_attribute_master am
	JOIN tbl_attribute_subclass_map sm ON sm.attribute_id = am.id
	WHERE sm.subclass_id = $1 AND am.is_active = TRUE
	ORDER BY am.id`

	rows, err := a.client.DB().QueryContext(ctx, query, *subclassID)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list attributes", err)
	}
	defer rows.Close()

	var attributes []*entities.Attribute
	byID := make(map[int64]*entities.Attribute)
	for rows.Next() {
		attr := &entities.Attribute{}
		var description sql.NullString
		if err := rows.Scan(&attr.ID, &attr.Name, &description, &attr.IsActive); err != nil {
			return nil, apperrors.NewInternalError("failed to scan attribute", err)
		}
		attr.Description = description.String
		attributes = append(attributes, attr)
		byID[attr.ID] = attr
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate attributes", err)
	}
	if len(attributes) == 0 {
		return nil, nil
	}

	if err := a.loadOptions(ctx, byID); err != nil {
		return nil, err
	}
	return attributes, nil
}

// loadOptions fills in allowed values for the given attributes in one query.
func (a *AttributeAdapter) loadOptions(ctx context.Context, byID map[int64]*entities.Attribute) error {
	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	query, args, err := a.db.Select("attribute_id", "option_value").
		From("tbl_attribute_option").
		Where(goqu.Ex{"attribute_id": ids, "is_active": true}).
		Order(goqu.C("attribute_id").Asc(), goqu.C("id").Asc()).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build attribute option query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to list attribute options", err)
	}
	defer rows.Close()

	for rows.Next() {
		var attributeID int64
		var value string
		if err := rows.Scan(&attributeID, &value); err != nil {
			return apperrors.NewInternalError("failed to scan attribute option", err)
		}
		if attr, ok := byID[attributeID]; ok {
			attr.AllowedValues = append(attr.AllowedValues, value)
		}
	}
	if err := rows.Err(); err != nil {
		return apperrors.NewInternalError("failed to iterate attribute options", err)
	}
	return nil
}
