package entities

import "time"

// BatchType distinguishes AI batches from human annotation batches.
type BatchType string

const (
	BatchTypeAI    BatchType = "ai"
	BatchTypeHuman BatchType = "human"
)

// Batch is a unit of scheduled annotation work spanning one or more
// provider assignments over a fixed product set. Created by the admin
// layer; the orchestrator reads it but never mutates it.
type Batch struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	BatchSize   int       `json:"batch_size" db:"batch_size"`
	BatchType   BatchType `json:"batch_type" db:"batch_type"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// BatchItem ties one product into a batch.
type BatchItem struct {
	ID        int64     `json:"id" db:"id"`
	BatchID   int64     `json:"batch_id" db:"batch_id"`
	ProductID int64     `json:"product_id" db:"product_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
