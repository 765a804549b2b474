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

// AssignmentAdapter implements AssignmentRepository.
type AssignmentAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewAssignmentAdapter creates a new assignment adapter.
func NewAssignmentAdapter(client *postgres.Client) repositories.AssignmentRepository {
	return &AssignmentAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

const assignmentColumns = "id, batch_id, assignment_type, assignment_id, status, progress, created_at, updated_at"

func scanAssignment(row interface{ Scan(...interface{}) error }) (*entities.Assignment, error) {
	a := &entities.Assignment{}
	err := row.Scan(
		&a.ID,
		&a.BatchID,
		&a.Type,
		&a.ProviderID,
		&a.Status,
		&a.Progress,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByID retrieves an assignment by ID.
func (a *AssignmentAdapter) GetByID(ctx context.Context, id int64) (*entities.Assignment, error) {
	query := fmt.Sprintf("SELECT %s FROM tbl_batch_assignment WHERE id = $1", assignmentColumns)

	assignment, err := scanAssignment(a.client.DB().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("assignment %d not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get assignment", err)
	}
	return assignment, nil
}

// ListByBatch retrieves the batch's assignments of the given type.
func (a *AssignmentAdapter) ListByBatch(ctx context.Context, batchID int64, assignmentType entities.AssignmentType) ([]*entities.Assignment, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM tbl_batch_assignment WHERE batch_id = $1 AND assignment_type = $2 ORDER BY id",
		assignmentColumns,
	)

	rows, err := a.client.DB().QueryContext(ctx, query, batchID, assignmentType)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list assignments", err)
	}
	defer rows.Close()

	var assignments []*entities.Assignment
	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan assignment", err)
		}
		assignments = append(assignments, assignment)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate assignments", err)
	}
	return assignments, nil
}

// MarkPendingInProgress bulk-flips the batch's pending AI assignments to
// in_progress.
func (a *AssignmentAdapter) MarkPendingInProgress(ctx context.Context, batchID int64) (int64, error) {
	query, args, err := a.db.Update("tbl_batch_assignment").
		Set(goqu.Record{
			"status":     entities.AssignmentInProgress,
			"updated_at": time.Now(),
		}).
		Where(goqu.Ex{
			"batch_id":        batchID,
			"assignment_type": entities.AssignmentTypeAI,
			"status":          entities.AssignmentPending,
		}).
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build assignment update query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to mark assignments in progress", err)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

// UpdateStatus sets an assignment's status.
func (a *AssignmentAdapter) UpdateStatus(ctx context.Context, id int64, status entities.AssignmentStatus) error {
	if !status.Valid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown assignment status %s", status))
	}
	query, args, err := a.db.Update("tbl_batch_assignment").
		Set(goqu.Record{
			"status":     status,
			"updated_at": time.Now(),
		}).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build assignment status query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to update assignment status", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("assignment %d not found", id))
	}
	return nil
}

// UpdateProgress writes an assignment's progress and status in one step.
func (a *AssignmentAdapter) UpdateProgress(ctx context.Context, id int64, progress float64, status entities.AssignmentStatus) error {
	query, args, err := a.db.Update("tbl_batch_assignment").
		Set(goqu.Record{
			"progress":   progress,
			"status":     status,
			"updated_at": time.Now(),
		}).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build assignment progress query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to update assignment progress", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("assignment %d not found", id))
	}
	return nil
}

// ResetForRetry flips the given assignments back to pending with zero
// progress.
func (a *AssignmentAdapter) ResetForRetry(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := a.db.Update("tbl_batch_assignment").
		Set(goqu.Record{
			"status":     entities.AssignmentPending,
			"progress":   0,
			"updated_at": time.Now(),
		}).
		Where(goqu.Ex{"id": ids}).
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build assignment reset query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to reset assignments", err)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

// CancelByBatch marks every assignment of the batch cancelled.
func (a *AssignmentAdapter) CancelByBatch(ctx context.Context, batchID int64) (int64, error) {
	query, args, err := a.db.Update("tbl_batch_assignment").
		Set(goqu.Record{
			"status":     entities.AssignmentCancelled,
			"updated_at": time.Now(),
		}).
		Where(goqu.Ex{"batch_id": batchID}).
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build assignment cancel query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to cancel assignments", err)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

// ResetNonTerminalByBatch flips the batch's AI assignments back to pending
// with zero progress.
func (a *AssignmentAdapter) ResetNonTerminalByBatch(ctx context.Context, batchID int64) (int64, error) {
	query, args, err := a.db.Update("tbl_batch_assignment").
		Set(goqu.Record{
			"status":     entities.AssignmentPending,
			"progress":   0,
			"updated_at": time.Now(),
		}).
		Where(goqu.Ex{
			"batch_id":        batchID,
			"assignment_type": entities.AssignmentTypeAI,
			"status":          []entities.AssignmentStatus{entities.AssignmentPending, entities.AssignmentInProgress},
		}).
		ToSQL()
	if err != nil {
		return 0, apperrors.NewInternalError("failed to build assignment reset query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.NewInternalError("failed to reset assignments", err)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}
