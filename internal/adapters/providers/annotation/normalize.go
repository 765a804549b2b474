package annotation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
	"github.com/styleatlas/catalog-annotation/internal/domain/providers"
)

// unknownMarkers are provider spellings of "I could not determine this",
// matched case-insensitively after trimming.
var unknownMarkers = map[string]struct{}{
	"unknown":          {},
	"n/a":              {},
	"not available":    {},
	"cannot determine": {},
	"":                 {},
}

// stripFences removes a Markdown code fence wrapping the payload, with or
// without a json language tag.
func stripFences(text string) string {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		text = text[idx+len("```json"):]
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	} else if idx := strings.Index(text, "```"); idx >= 0 {
		text = text[idx+len("```"):]
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	}
	return strings.TrimSpace(text)
}

// normalizeAnnotations parses the provider's JSON text and produces one
// value per requested attribute. Unrequested keys are dropped, unknown
// markers collapse to the canonical "Unknown", restricted values snap to
// their allowed spelling case-insensitively, and attributes the provider
// skipped are backfilled as "Unknown".
func normalizeAnnotations(text string, attributes []providers.AttributeSpec) (map[string]string, error) {
	cleaned := stripFences(text)

	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse annotation JSON: %w", err)
	}

	specs := make(map[string]providers.AttributeSpec, len(attributes))
	for _, attr := range attributes {
		specs[attr.Name] = attr
	}

	normalized := make(map[string]string, len(attributes))
	for name, rawValue := range raw {
		spec, requested := specs[name]
		if !requested {
			continue
		}
		normalized[name] = normalizeValue(fmt.Sprintf("%v", rawValue), spec)
	}

	for _, attr := range attributes {
		if _, ok := normalized[attr.Name]; !ok {
			normalized[attr.Name] = entities.UnknownValue
		}
	}
	return normalized, nil
}

func normalizeValue(value string, spec providers.AttributeSpec) string {
	trimmed := strings.TrimSpace(value)
	lower := strings.ToLower(trimmed)

	if _, isUnknown := unknownMarkers[lower]; isUnknown {
		return entities.UnknownValue
	}

	// Restricted attributes snap to the canonical allowed spelling; an
	// off-list value passes through as the provider's own inference.
	for _, allowed := range spec.AllowedValues {
		if strings.ToLower(allowed) == lower {
			return allowed
		}
	}
	return trimmed
}
