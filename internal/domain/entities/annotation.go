package entities

import (
	"strings"
	"time"
)

// AnnotationSource identifies who produced an annotation value.
type AnnotationSource string

const (
	SourceAI    AnnotationSource = "ai"
	SourceHuman AnnotationSource = "human"
)

// UnknownValue is the canonical value a provider returns when it cannot
// determine an attribute.
const UnknownValue = "Unknown"

// Annotation is one attribute value for one product from one source.
// At most one row exists per (product, attribute, source_type, source_id);
// re-processing upserts over the prior value rather than duplicating.
type Annotation struct {
	ID              int64            `json:"id" db:"id"`
	ProductID       int64            `json:"product_id" db:"product_id"`
	AttributeID     int64            `json:"attribute_id" db:"attribute_id"`
	Value           string           `json:"value" db:"value"`
	SourceType      AnnotationSource `json:"source_type" db:"source_type"`
	SourceID        int64            `json:"source_id" db:"source_id"`
	ConfidenceScore *float64         `json:"confidence_score" db:"confidence_score"`
	BatchItemID     *int64           `json:"batch_item_id" db:"batch_item_id"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`
}

// ConfidenceFor scores a provider value: 0.0 when the provider signalled
// it could not determine the attribute, 1.0 otherwise.
func ConfidenceFor(value string) float64 {
	if strings.EqualFold(strings.TrimSpace(value), UnknownValue) {
		return 0.0
	}
	return 1.0
}
