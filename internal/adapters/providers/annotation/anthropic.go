package annotation

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
)

const anthropicEndpoint = "https://api.anthropic.com/v1/messages"
const anthropicVersion = "2023-06-01"

// anthropicStrategy shapes Messages API requests.
type anthropicStrategy struct {
	model    string
	settings entities.ProviderSettings
}

func newAnthropicStrategy(model string, settings entities.ProviderSettings) *anthropicStrategy {
	return &anthropicStrategy{model: model, settings: settings}
}

func (s *anthropicStrategy) BuildRequest(prompt string, imageURL string) (*vendorRequest, error) {
	var content interface{} = prompt
	if imageURL != "" && modelSupportsVision(entities.KindAnthropic, s.model, s.settings) {
		content = []map[string]interface{}{
			{"type": "image", "source": map[string]interface{}{
				"type": "url",
				"url":  imageURL,
			}},
			{"type": "text", "text": prompt},
		}
	}

	return &vendorRequest{
		URL: anthropicEndpoint,
		Headers: map[string]string{
			"Content-Type":      "application/json",
			"x-api-key":         s.settings.APIKey,
			"anthropic-version": anthropicVersion,
		},
		Body: map[string]interface{}{
			"model":       s.model,
			"max_tokens":  s.settings.MaxTokens,
			"temperature": s.settings.Temperature,
			"messages": []map[string]interface{}{
				{"role": "user", "content": content},
			},
		},
	}, nil
}

func (s *anthropicStrategy) ParseText(body []byte) (string, error) {
	var envelope struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("failed to parse anthropic response: %w", err)
	}
	if len(envelope.Content) == 0 || envelope.Content[0].Text == "" {
		return "", errors.New("anthropic response missing content text")
	}
	return envelope.Content[0].Text, nil
}
