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

// ProcessingRunAdapter implements ProcessingRunRepository.
type ProcessingRunAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewProcessingRunAdapter creates a new processing run adapter.
func NewProcessingRunAdapter(client *postgres.Client) repositories.ProcessingRunRepository {
	return &ProcessingRunAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Create inserts a new run and fills in its generated id.
func (a *ProcessingRunAdapter) Create(ctx context.Context, run *entities.ProcessingRun) error {
	query := `
	INSERT INTO tbl_ai_processing_run
		(assignment_item_id, provider_id, status, attempt, max_retries, last_error, started_at, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW(), NOW())
	RETURNING id`

	err := a.client.DB().QueryRowContext(ctx, query,
		run.AssignmentItemID,
		run.ProviderID,
		entities.RunProcessing,
		run.Attempt,
		run.MaxRetries,
		run.LastError,
	).Scan(&run.ID)
	if err != nil {
		return apperrors.NewInternalError("failed to create processing run", err)
	}
	run.Status = entities.RunProcessing
	return nil
}

// MarkCompleted closes the run as completed.
func (a *ProcessingRunAdapter) MarkCompleted(ctx context.Context, id int64) error {
	return a.close(ctx, id, entities.RunCompleted, "")
}

// MarkFailed closes the run as failed with the final error text.
func (a *ProcessingRunAdapter) MarkFailed(ctx context.Context, id int64, lastError string) error {
	return a.close(ctx, id, entities.RunFailed, lastError)
}

func (a *ProcessingRunAdapter) close(ctx context.Context, id int64, status entities.RunStatus, lastError string) error {
	record := goqu.Record{
		"status":       status,
		"completed_at": time.Now(),
		"updated_at":   time.Now(),
	}
	if lastError != "" {
		record["last_error"] = lastError
	}

	query, args, err := a.db.Update("tbl_ai_processing_run").
		Set(record).
		Where(goqu.Ex{"id": id, "status": entities.RunProcessing}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build run close query", err)
	}

	result, err := a.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewInternalError("failed to close processing run", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return apperrors.NewNotFoundError(fmt.Sprintf("open processing run %d not found", id))
	}
	return nil
}

// ListByItem returns the item's runs, newest first.
func (a *ProcessingRunAdapter) ListByItem(ctx context.Context, assignmentItemID int64) ([]*entities.ProcessingRun, error) {
	query := `
	SELECT id, assignment_item_id, provider_id, status, attempt, max_retries,
	       last_error, started_at, completed_at, created_at, updated_at
	FROM tbl_ai_processing_run
	WHERE assignment_item_id = $1
	ORDER BY id DESC`

	rows, err := a.client.DB().QueryContext(ctx, query, assignmentItemID)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list processing runs", err)
	}
	defer rows.Close()

	var runs []*entities.ProcessingRun
	for rows.Next() {
		run := &entities.ProcessingRun{}
		var lastError sql.NullString
		var startedAt, completedAt sql.NullTime
		err := rows.Scan(
			&run.ID,
			&run.AssignmentItemID,
			&run.ProviderID,
			&run.Status,
			&run.Attempt,
			&run.MaxRetries,
			&lastError,
			&startedAt,
			&completedAt,
			&run.CreatedAt,
			&run.UpdatedAt,
		)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan processing run", err)
		}
		run.LastError = lastError.String
		if startedAt.Valid {
			run.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			run.CompletedAt = &completedAt.Time
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate processing runs", err)
	}
	return runs, nil
}
