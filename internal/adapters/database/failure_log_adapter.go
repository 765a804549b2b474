package database

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/lib/pq"
	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
	"github.com/styleatlas/catalog-annotation/internal/domain/repositories"
	"github.com/styleatlas/catalog-annotation/internal/infrastructure/clients/postgres"
	apperrors "github.com/styleatlas/catalog-annotation/pkg/errors"
)

// FailureLogAdapter implements FailureLogRepository.
type FailureLogAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewFailureLogAdapter creates a new failure log adapter.
func NewFailureLogAdapter(client *postgres.Client) repositories.FailureLogRepository {
	return &FailureLogAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Create inserts a new failure record and fills in its generated id.
func (a *FailureLogAdapter) Create(ctx context.Context, log *entities.FailureLog) error {
	query := `
	INSERT INTO tbl_ai_provider_failure_log
		(provider_id, assignment_item_id, error_type, error_message, http_status, is_resolved, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, FALSE, NOW(), NOW())
	RETURNING id`

	err := a.client.DB().QueryRowContext(ctx, query,
		log.ProviderID,
		log.AssignmentItemID,
		log.ErrorType,
		log.ErrorMessage,
		log.HTTPStatus,
	).Scan(&log.ID)
	if err != nil {
		return apperrors.NewInternalError("failed to create failure log", err)
	}
	return nil
}

// ListUnresolvedAssignmentIDs returns the distinct assignments of the batch
// that have unresolved failure rows.
func (a *FailureLogAdapter) ListUnresolvedAssignmentIDs(ctx context.Context, batchID int64) ([]int64, error) {
	query := `
	SELECT DISTINCT i.assignment_id
	FROM tbl_ai_provider_failure_log fl
	JOIN tbl_batch_assignment_item i ON i.id = fl.assignment_item_id
	JOIN tbl_batch_assignment ba ON ba.id = i.assignment_id
	WHERE ba.batch_id = $1 AND fl.is_resolved = FALSE
	ORDER BY i.assignment_id`

	rows, err := a.client.DB().QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list unresolved failures", err)
	}
	defer rows.Close()

	var assignmentIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.NewInternalError("failed to scan assignment id", err)
		}
		assignmentIDs = append(assignmentIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate assignment ids", err)
	}
	return assignmentIDs, nil
}

// ResolveByAssignments marks the assignments' unresolved failures resolved.
func (a *FailureLogAdapter) ResolveByAssignments(ctx context.Context, assignmentIDs []int64) (int64, error) {
	if len(assignmentIDs) == 0 {
		return 0, nil
	}

	query := `
	UPDATE tbl_ai_provider_failure_log fl
	SET is_resolved = TRUE, resolved_at = NOW(), updated_at = NOW()
	FROM tbl_batch_assignment_item i
	WHERE i.id = fl.assignment_item_id
	  AND i.assignment_id = ANY($1)
	  AND fl.is_resolved = FALSE`

	result, err := a.client.DB().ExecContext(ctx, query, pq.Array(assignmentIDs))
	if err != nil {
		return 0, apperrors.NewInternalError("failed to resolve failure logs", err)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}
