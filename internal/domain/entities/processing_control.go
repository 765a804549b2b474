package entities

import "time"

// ProcessingControl is the singleton pause flag read before every unit of
// work. Row id is always 1; the store adapter creates it on first read.
type ProcessingControl struct {
	ID          int64      `json:"id" db:"id"`
	IsPaused    bool       `json:"is_paused" db:"is_paused"`
	PausedAt    *time.Time `json:"paused_at" db:"paused_at"`
	PausedBy    string     `json:"paused_by" db:"paused_by"`
	LastUpdated time.Time  `json:"last_updated" db:"last_updated"`
}
