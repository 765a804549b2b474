package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/lib/pq"
	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
	"github.com/styleatlas/catalog-annotation/internal/domain/repositories"
	"github.com/styleatlas/catalog-annotation/internal/infrastructure/clients/postgres"
	apperrors "github.com/styleatlas/catalog-annotation/pkg/errors"
)

// AssignmentItemAdapter implements AssignmentItemRepository. Product ids
// are materialized onto rows by joining tbl_batch_item on read, so items
// carry everything a worker needs without further lookups.
type AssignmentItemAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewAssignmentItemAdapter creates a new assignment item adapter.
func NewAssignmentItemAdapter(client *postgres.Client) repositories.AssignmentItemRepository {
	return &AssignmentItemAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

const assignmentItemSelect = `
	SELECT i.id, i.assignment_id, i.batch_item_id, bi.product_id,
	       i.status, i.started_at, i.completed_at, i.created_at, i.updated_at
	FROM tbl_batch_assignment_item i
	JOIN tbl_batch_item bi ON bi.id = i.batch_item_id`

func (a *AssignmentItemAdapter) queryItems(ctx context.Context, query string, args ...interface{}) ([]*entities.AssignmentItem, error) {
	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list assignment items", err)
	}
	defer rows.Close()

	var items []*entities.AssignmentItem
	for rows.Next() {
		item := &entities.AssignmentItem{}
		var startedAt, completedAt sql.NullTime
		err := rows.Scan(
			&item.ID,
			&item.AssignmentID,
			&item.BatchItemID,
			&item.ProductID,
			&item.Status,
			&startedAt,
			&completedAt,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan assignment item", err)
		}
		if startedAt.Valid {
			item.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			item.CompletedAt = &completedAt.Time
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate assignment items", err)
	}
	return items, nil
}

// ListPendingByAssignment returns the assignment's items that still need AI
// work, i.e. everything not already ai_done.
func (a *AssignmentItemAdapter) ListPendingByAssignment(ctx context.Context, assignmentID int64) ([]*entities.AssignmentItem, error) {
	query := assignmentItemSelect + `
	WHERE i.assignment_id = $1 AND i.status <> $2
	ORDER BY i.id`
	return a.queryItems(ctx, query, assignmentID, entities.ItemAIDone)
}

// ListByBatch returns every AI assignment item in the batch across all
// providers.
func (a *AssignmentItemAdapter) ListByBatch(ctx context.Context, batchID int64) ([]*entities.AssignmentItem, error) {
	query := assignmentItemSelect + `
	JOIN tbl_batch_assignment ba ON ba.id = i.assignment_id
	WHERE ba.batch_id = $1 AND ba.assignment_type = $2
	ORDER BY i.id`
	return a.queryItems(ctx, query, batchID, entities.AssignmentTypeAI)
}

// MarkInProgress sets the item ai_in_progress. started_at is stamped only
// the first time so retries keep the original start.
func (a *AssignmentItemAdapter) MarkInProgress(ctx context.Context, id int64) error {
	query := `
	UPDATE tbl_batch_assignment_item
	SET status = $1, started_at = COALESCE(started_at, NOW()), updated_at = NOW()
	WHERE id = $2`

	result, err := a.client.DB().ExecContext(ctx, query, entities.ItemAIInProgress, id)
	if err != nil {
		return apperrors.NewInternalError("failed to mark item in progress", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("assignment item %d not found", id))
	}
	return nil
}

// MarkDone sets the item ai_done and stamps completed_at.
func (a *AssignmentItemAdapter) MarkDone(ctx context.Context, id int64) error {
	query, args, err := a.db.Update("tbl_batch_assignment_item").
		Set(goqu.Record{
			"status":       entities.ItemAIDone,
			"completed_at": time.Now(),
			"updated_at":   time.Now(),
		}).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build item done query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to mark item done", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("assignment item %d not found", id))
	}
	return nil
}

// SetStatus sets an item's status.
func (a *AssignmentItemAdapter) SetStatus(ctx context.Context, id int64, status entities.ItemStatus) error {
	if !status.Valid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown item status %s", status))
	}
	query, args, err := a.db.Update("tbl_batch_assignment_item").
		Set(goqu.Record{
			"status":     status,
			"updated_at": time.Now(),
		}).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build item status query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to update item status", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("assignment item %d not found", id))
	}
	return nil
}

// CountByAssignment returns progress counts for one assignment.
func (a *AssignmentItemAdapter) CountByAssignment(ctx context.Context, assignmentID int64) (repositories.ItemStatusCounts, error) {
	query := `
	SELECT COUNT(*),
	       COUNT(*) FILTER (WHERE status = $1),
	       COUNT(*) FILTER (WHERE status = $2)
	FROM tbl_batch_assignment_item
	WHERE assignment_id = $3`

	var counts repositories.ItemStatusCounts
	err := a.client.DB().QueryRowContext(ctx, query,
		entities.ItemAIDone, entities.ItemAIFailed, assignmentID,
	).Scan(&counts.Total, &counts.Completed, &counts.Failed)
	if err != nil {
		return repositories.ItemStatusCounts{}, apperrors.NewInternalError("failed to count assignment items", err)
	}
	return counts, nil
}

// updateReturningProducts runs a bulk item update that returns the product
// id of each touched row, deduplicated.
func (a *AssignmentItemAdapter) updateReturningProducts(ctx context.Context, query string, args ...interface{}) ([]int64, error) {
	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to bulk update assignment items", err)
	}
	defer rows.Close()

	seen := make(map[int64]struct{})
	var productIDs []int64
	for rows.Next() {
		var productID int64
		if err := rows.Scan(&productID); err != nil {
			return nil, apperrors.NewInternalError("failed to scan product id", err)
		}
		if _, ok := seen[productID]; ok {
			continue
		}
		seen[productID] = struct{}{}
		productIDs = append(productIDs, productID)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate product ids", err)
	}
	return productIDs, nil
}

// FailNonDoneByAssignment bulk-fails every item of the assignment that is
// not ai_done.
func (a *AssignmentItemAdapter) FailNonDoneByAssignment(ctx context.Context, assignmentID int64) ([]int64, error) {
	query := `
	UPDATE tbl_batch_assignment_item i
	SET status = $1, updated_at = NOW()
	FROM tbl_batch_item bi
	WHERE bi.id = i.batch_item_id AND i.assignment_id = $2 AND i.status <> $3
	RETURNING bi.product_id`
	return a.updateReturningProducts(ctx, query, entities.ItemAIFailed, assignmentID, entities.ItemAIDone)
}

// ResetFailedByAssignments flips ai_failed items of the given assignments
// back to pending_ai with cleared timestamps.
func (a *AssignmentItemAdapter) ResetFailedByAssignments(ctx context.Context, assignmentIDs []int64) ([]int64, error) {
	if len(assignmentIDs) == 0 {
		return nil, nil
	}
	query := `
	UPDATE tbl_batch_assignment_item i
	SET status = $1, started_at = NULL, completed_at = NULL, updated_at = NOW()
	FROM tbl_batch_item bi
	WHERE bi.id = i.batch_item_id AND i.assignment_id = ANY($2) AND i.status = $3
	RETURNING bi.product_id`
	return a.updateReturningProducts(ctx, query, entities.ItemPendingAI, pq.Array(assignmentIDs), entities.ItemAIFailed)
}

// ResetNonTerminalByBatch flips the batch's items that are neither ai_done
// nor ai_failed back to pending_ai.
func (a *AssignmentItemAdapter) ResetNonTerminalByBatch(ctx context.Context, batchID int64) ([]int64, error) {
	query := `
	UPDATE tbl_batch_assignment_item i
	SET status = $1, updated_at = NOW()
	FROM tbl_batch_item bi, tbl_batch_assignment ba
	WHERE bi.id = i.batch_item_id
	  AND ba.id = i.assignment_id
	  AND ba.batch_id = $2
	  AND ba.assignment_type = $3
	  AND i.status NOT IN ($4, $5)
	RETURNING bi.product_id`
	return a.updateReturningProducts(ctx, query,
		entities.ItemPendingAI, batchID, entities.AssignmentTypeAI,
		entities.ItemAIDone, entities.ItemAIFailed,
	)
}

// ResetAllByBatch flips every AI item of the batch back to pending_ai with
// cleared timestamps.
func (a *AssignmentItemAdapter) ResetAllByBatch(ctx context.Context, batchID int64) ([]int64, error) {
	query := `
	UPDATE tbl_batch_assignment_item i
	SET status = $1, started_at = NULL, completed_at = NULL, updated_at = NOW()
	FROM tbl_batch_item bi, tbl_batch_assignment ba
	WHERE bi.id = i.batch_item_id
	  AND ba.id = i.assignment_id
	  AND ba.batch_id = $2
	  AND ba.assignment_type = $3
	RETURNING bi.product_id`
	return a.updateReturningProducts(ctx, query, entities.ItemPendingAI, batchID, entities.AssignmentTypeAI)
}
