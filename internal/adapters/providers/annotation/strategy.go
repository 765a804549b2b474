package annotation

import (
	"strings"

	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
)

// vendorRequest is a fully prepared provider call: where to POST, which
// headers to set, and the JSON body to send.
type vendorRequest struct {
	URL     string
	Headers map[string]string
	Body    map[string]interface{}
}

// strategy builds vendor-shaped requests and extracts the raw text from
// vendor-shaped responses. One implementation exists per ProviderKind;
// the gateway owns everything else (HTTP, prompts, normalization).
type strategy interface {
	BuildRequest(prompt string, imageURL string) (*vendorRequest, error)
	ParseText(body []byte) (string, error)
}

// visionModels lists, per vendor, the model families able to take image
// input. A model matches on case-insensitive substring.
var visionModels = map[entities.ProviderKind][]string{
	entities.KindOpenAI:    {"gpt-4o", "gpt-4o-mini", "gpt-4-vision-preview", "gpt-4-turbo"},
	entities.KindAnthropic: {"claude-3-opus", "claude-3-sonnet", "claude-3-haiku", "claude-3-5-sonnet"},
	entities.KindGoogle:    {"gemini-pro-vision", "gemini-1.5-pro", "gemini-1.5-flash"},
	entities.KindAzure:     {"gpt-4o", "gpt-4o-mini", "gpt-4-vision"},
}

// modelSupportsVision reports whether the provider's model can take image
// input. Custom providers declare support in their config; known vendors
// match against their model family list.
func modelSupportsVision(kind entities.ProviderKind, model string, settings entities.ProviderSettings) bool {
	if kind == entities.KindCustom {
		if !settings.SupportsVision {
			return false
		}
		if len(settings.VisionModels) == 0 {
			return true
		}
		return modelInList(model, settings.VisionModels)
	}

	families, ok := visionModels[kind]
	if !ok {
		return false
	}
	return modelInList(model, families)
}

func modelInList(model string, families []string) bool {
	modelLower := strings.ToLower(model)
	for _, family := range families {
		if strings.Contains(modelLower, strings.ToLower(family)) {
			return true
		}
	}
	return false
}

// renderHeaders expands the {api_key} placeholder in a header template.
func renderHeaders(template map[string]string, apiKey string) map[string]string {
	headers := make(map[string]string, len(template))
	for key, value := range template {
		headers[key] = strings.ReplaceAll(value, "{api_key}", apiKey)
	}
	return headers
}
