package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
	"github.com/styleatlas/catalog-annotation/internal/domain/repositories"
	"github.com/styleatlas/catalog-annotation/internal/infrastructure/clients/postgres"
	apperrors "github.com/styleatlas/catalog-annotation/pkg/errors"
)

// ProductAdapter implements ProductRepository.
type ProductAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewProductAdapter creates a new product adapter.
func NewProductAdapter(client *postgres.Client) repositories.ProductRepository {
	return &ProductAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// GetByID retrieves a product with its primary image: the first image of
// the product's first color variant, when one exists.
func (a *ProductAdapter) GetByID(ctx context.Context, id int64) (*entities.Product, error) {
	query := `
	SELECT p.id, p.style_id, p.style_desc, p.style_description,
	       p.dept_name, p.subdept_name, p.class_name, p.subclass_name,
	       p.subclass_id, p.processing_status, p.created_at, p.updated_at,
	       (SELECT pi.image_url
	        FROM tbl_product_color pc
	        JOIN tbl_product_image pi ON pi.color_id = pc.id
	        WHERE pc.product_id = p.id
	        ORDER BY pc.id, pi.id
	        LIMIT 1) AS primary_image_url
	FROM tbl_base_product p
	WHERE p.id = $1`

	product := &entities.Product{}
	var styleDesc, styleDescription, deptName, subdeptName, className, subclassName sql.NullString
	var subclassID sql.NullInt64
	var imageURL sql.NullString
	err := a.client.DB().QueryRowContext(ctx, query, id).Scan(
		&product.ID,
		&product.StyleID,
		&styleDesc,
		&styleDescription,
		&deptName,
		&subdeptName,
		&className,
		&subclassName,
		&subclassID,
		&product.ProcessingStatus,
		&product.CreatedAt,
		&product.UpdatedAt,
		&imageURL,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("product %d not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get product", err)
	}

	product.StyleDesc = styleDesc.String
	product.StyleDescription = styleDescription.String
	product.DeptName = deptName.String
	product.SubdeptName = subdeptName.String
	product.ClassName = className.String
	product.SubclassName = subclassName.String
	if subclassID.Valid {
		product.SubclassID = &subclassID.Int64
	}
	product.PrimaryImageURL = imageURL.String
	return product, nil
}

// UpdateStatus sets one product's processing status.
func (a *ProductAdapter) UpdateStatus(ctx context.Context, id int64, status entities.ProcessingStatus) error {
	if !status.Valid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown processing status %s", status))
	}
	query, args, err := a.db.Update("tbl_base_product").
		Set(goqu.Record{
			"processing_status": status,
			"updated_at":        time.Now(),
		}).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build product status query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to update product status", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("product %d not found", id))
	}
	return nil
}

// MarkFailedIfProcessing cascades a provider failure onto products still in
// a pre-failure status. Products already ai_done or in the human pipeline
// keep their status.
func (a *ProductAdapter) MarkFailedIfProcessing(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := a.db.Update("tbl_base_product").
		Set(goqu.Record{
			"processing_status": entities.ProcessingAIFailed,
			"updated_at":        time.Now(),
		}).
		Where(goqu.Ex{
			"id":                ids,
			"processing_status": entities.PreFailureStatuses,
		}).
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build product failure query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to mark products failed", err)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

// BulkSetStatusExcluding sets the products' status except for rows
// currently in one of the excluded statuses.
func (a *ProductAdapter) BulkSetStatusExcluding(ctx context.Context, ids []int64, excluded []entities.ProcessingStatus, to entities.ProcessingStatus) (int64, error) {
	if !to.Valid() {
		return 0, apperrors.NewValidationError(fmt.Sprintf("unknown processing status %s", to))
	}
	if len(ids) == 0 {
		return 0, nil
	}

	conditions := []goqu.Expression{goqu.Ex{"id": ids}}
	if len(excluded) > 0 {
		conditions = append(conditions, goqu.C("processing_status").NotIn(excluded))
	}

	query, args, err := a.db.Update("tbl_base_product").
		Set(goqu.Record{
			"processing_status": to,
			"updated_at":        time.Now(),
		}).
		Where(conditions...).
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build bulk status query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to bulk update product status", err)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

// BulkSetStatus sets the products' status unconditionally.
func (a *ProductAdapter) BulkSetStatus(ctx context.Context, ids []int64, to entities.ProcessingStatus) (int64, error) {
	return a.BulkSetStatusExcluding(ctx, ids, nil, to)
}
