package providers

import (
	"context"
	"errors"

	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
)

// ErrAnnotationUnauthorized marks a provider call rejected for bad
// credentials. Non-retryable: the item processor short-circuits remaining
// attempts when it sees this.
var ErrAnnotationUnauthorized = errors.New("annotation provider rejected credentials")

// ProductPayload is the style-level product description sent to providers.
// Variant color/size fields are deliberately excluded to keep prompts
// style-generic.
type ProductPayload struct {
	StyleID       string
	Name          string
	Description   string
	Category      string
	Subcategory   string
	Department    string
	Subdepartment string
	SubclassID    *int64
	ImageURL      string
}

// AttributeSpec is one attribute requested from a provider. An empty
// AllowedValues list means free-form.
type AttributeSpec struct {
	ID            int64
	Name          string
	Description   string
	AllowedValues []string
}

// Annotator annotates one product with a set of attributes in a single
// provider call. The returned map always contains a value for every
// requested attribute; unresolvable ones come back as "Unknown".
// Annotator never retries internally - retry is the item processor's job.
type Annotator interface {
	Annotate(ctx context.Context, payload ProductPayload, attributes []AttributeSpec) (map[string]string, error)
}

// AnnotatorFactory builds an Annotator for a provider record, selecting
// the vendor strategy from the provider's kind tag at construction time.
type AnnotatorFactory interface {
	ForProvider(provider *entities.Provider) (Annotator, error)
}
