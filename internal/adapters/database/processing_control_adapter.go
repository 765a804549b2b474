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

// controlRowID is the fixed id of the singleton control row.
const controlRowID = 1

// ProcessingControlAdapter implements ProcessingControlRepository over a
// single-row table. Reads always hit the store so a pause toggled by one
// process is seen by every worker on its next check.
type ProcessingControlAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewProcessingControlAdapter creates a new processing control adapter.
func NewProcessingControlAdapter(client *postgres.Client) repositories.ProcessingControlRepository {
	return &ProcessingControlAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// Get reads the control row, creating it unpaused on first use.
func (a *ProcessingControlAdapter) Get(ctx context.Context) (*entities.ProcessingControl, error) {
	query := `
	INSERT INTO tbl_ai_processing_control (id, is_paused, paused_by, last_updated)
	VALUES ($1, FALSE, '', NOW())
	ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
	RETURNING id, is_paused, paused_at, paused_by, last_updated`

	control := &entities.ProcessingControl{}
	var pausedAt sql.NullTime
	var pausedBy sql.NullString
	err := a.client.DB().QueryRowContext(ctx, query, controlRowID).Scan(
		&control.ID,
		&control.IsPaused,
		&pausedAt,
		&pausedBy,
		&control.LastUpdated,
	)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get processing control", err)
	}

	if pausedAt.Valid {
		control.PausedAt = &pausedAt.Time
	}
	control.PausedBy = pausedBy.String
	return control, nil
}

// SetPaused flips the global pause flag. Pausing stamps who and when;
// resuming clears both.
func (a *ProcessingControlAdapter) SetPaused(ctx context.Context, paused bool, by string) error {
	if _, err := a.Get(ctx); err != nil {
		return err
	}

	record := goqu.Record{
		"is_paused":    paused,
		"last_updated": goqu.L("NOW()"),
	}
	if paused {
		record["paused_at"] = goqu.L("NOW()")
		record["paused_by"] = by
	} else {
		record["paused_at"] = nil
		record["paused_by"] = ""
	}

	query, args, err := a.db.Update("tbl_ai_processing_control").
		Set(record).
		Where(goqu.Ex{"id": controlRowID}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build control update query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to update processing control", err)
	}
	return nil
}
