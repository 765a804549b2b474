package repositories

import (
	"context"

	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
)

// ProcessingControlRepository defines access to the singleton pause flag.
// Get always reads through to the store so every worker sees the freshest
// value; the adapter creates the singleton row on first read.
type ProcessingControlRepository interface {
	Get(ctx context.Context) (*entities.ProcessingControl, error)
	SetPaused(ctx context.Context, paused bool, by string) error
}
