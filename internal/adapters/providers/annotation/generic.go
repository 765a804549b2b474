package annotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
)

// genericStrategy shapes requests for custom HTTP providers. The request
// body and response path come from the provider's stored config; without
// them a minimal prompt/model body and a set of conventional response keys
// are used.
type genericStrategy struct {
	model    string
	settings entities.ProviderSettings
}

func newGenericStrategy(model string, settings entities.ProviderSettings) (*genericStrategy, error) {
	if settings.CustomEndpoint == "" {
		return nil, errors.New("custom provider requires custom_endpoint in config")
	}
	return &genericStrategy{model: model, settings: settings}, nil
}

func (s *genericStrategy) BuildRequest(prompt string, imageURL string) (*vendorRequest, error) {
	headers := map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer {api_key}",
	}
	if len(s.settings.HeadersTemplate) > 0 {
		headers = s.settings.HeadersTemplate
	}

	body, err := s.buildBody(prompt, imageURL)
	if err != nil {
		return nil, err
	}

	return &vendorRequest{
		URL:     s.settings.CustomEndpoint,
		Headers: renderHeaders(headers, s.settings.APIKey),
		Body:    body,
	}, nil
}

// buildBody renders the configured request_format, substituting the
// {prompt}, {model}, {max_tokens}, {temperature} and {image_url}
// placeholders anywhere in the JSON template.
func (s *genericStrategy) buildBody(prompt string, imageURL string) (map[string]interface{}, error) {
	if len(s.settings.RequestFormat) == 0 {
		body := map[string]interface{}{
			"model":       s.model,
			"prompt":      prompt,
			"max_tokens":  s.settings.MaxTokens,
			"temperature": s.settings.Temperature,
		}
		if imageURL != "" {
			body["image_url"] = imageURL
		}
		return body, nil
	}

	raw, err := json.Marshal(s.settings.RequestFormat)
	if err != nil {
		return nil, fmt.Errorf("invalid request_format in provider config: %w", err)
	}

	rendered := string(raw)
	replacements := map[string]string{
		"{prompt}":      jsonEscape(prompt),
		"{model}":       jsonEscape(s.model),
		"{max_tokens}":  strconv.Itoa(s.settings.MaxTokens),
		"{temperature}": strconv.FormatFloat(s.settings.Temperature, 'f', -1, 64),
	}
	if imageURL != "" {
		replacements["{image_url}"] = jsonEscape(imageURL)
	}
	for placeholder, value := range replacements {
		rendered = strings.ReplaceAll(rendered, placeholder, value)
	}

	var body map[string]interface{}
	if err := json.Unmarshal([]byte(rendered), &body); err != nil {
		return nil, fmt.Errorf("request_format did not render to valid JSON: %w", err)
	}
	return body, nil
}

// jsonEscape encodes a substitution value so it stays valid inside a JSON
// string literal.
func jsonEscape(value string) string {
	encoded, _ := json.Marshal(value)
	return strings.Trim(string(encoded), `"`)
}

func (s *genericStrategy) ParseText(body []byte) (string, error) {
	var envelope map[string]interface{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("failed to parse provider response: %w", err)
	}

	if s.settings.ResponsePath != "" {
		return walkResponsePath(envelope, s.settings.ResponsePath)
	}

	for _, key := range []string{"text", "result", "output"} {
		if value, ok := envelope[key].(string); ok && value != "" {
			return value, nil
		}
	}
	return "", errors.New("could not parse provider response: configure response_path in provider config")
}

// walkResponsePath follows a dotted path through nested objects. Numeric
// segments index into arrays.
func walkResponsePath(data interface{}, path string) (string, error) {
	current := data
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]interface{}:
			next, ok := node[segment]
			if !ok {
				return "", fmt.Errorf("response_path segment %q not found", segment)
			}
			current = next
		case []interface{}:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return "", fmt.Errorf("response_path segment %q is not a valid array index", segment)
			}
			current = node[index]
		default:
			return "", fmt.Errorf("response_path segment %q cannot descend into a scalar", segment)
		}
	}

	text, ok := current.(string)
	if !ok {
		return "", errors.New("response_path did not resolve to a string")
	}
	return text, nil
}
