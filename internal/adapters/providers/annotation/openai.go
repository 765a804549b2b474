package annotation

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
)

const openAIEndpoint = "https://api.openai.com/v1/chat/completions"

const annotationSystemPrompt = "You are a product attribute annotation assistant. " +
	"Analyze product images and descriptions to extract accurate attributes. " +
	"Always respond with valid JSON only."

// openAIStrategy shapes chat-completions requests. Azure OpenAI reuses the
// same wire format with a different endpoint and auth header, so both kinds
// share this strategy.
type openAIStrategy struct {
	kind     entities.ProviderKind
	model    string
	settings entities.ProviderSettings
}

func newOpenAIStrategy(model string, settings entities.ProviderSettings) *openAIStrategy {
	return &openAIStrategy{kind: entities.KindOpenAI, model: model, settings: settings}
}

func newAzureStrategy(model string, settings entities.ProviderSettings) (*openAIStrategy, error) {
	if settings.CustomEndpoint == "" {
		return nil, errors.New("azure provider requires custom_endpoint in config")
	}
	return &openAIStrategy{kind: entities.KindAzure, model: model, settings: settings}, nil
}

func (s *openAIStrategy) BuildRequest(prompt string, imageURL string) (*vendorRequest, error) {
	var userContent interface{} = prompt
	if imageURL != "" && modelSupportsVision(s.kind, s.model, s.settings) {
		userContent = []map[string]interface{}{
			{"type": "text", "text": prompt},
			{"type": "image_url", "image_url": map[string]interface{}{
				"url":    imageURL,
				"detail": "high",
			}},
		}
	}

	body := map[string]interface{}{
		"model": s.model,
		"messages": []map[string]interface{}{
			{"role": "system", "content": annotationSystemPrompt},
			{"role": "user", "content": userContent},
		},
		"temperature":     s.settings.Temperature,
		"max_tokens":      s.settings.MaxTokens,
		"response_format": map[string]string{"type": "json_object"},
	}

	if s.kind == entities.KindAzure {
		return &vendorRequest{
			URL: fmt.Sprintf(
				"%s/openai/deployments/%s/chat/completions?api-version=2024-02-15-preview",
				s.settings.CustomEndpoint, s.model,
			),
			Headers: map[string]string{
				"Content-Type": "application/json",
				"api-key":      s.settings.APIKey,
			},
			Body: body,
		}, nil
	}

	return &vendorRequest{
		URL: openAIEndpoint,
		Headers: map[string]string{
			"Content-Type":  "application/json",
			"Authorization": "Bearer " + s.settings.APIKey,
		},
		Body: body,
	}, nil
}

func (s *openAIStrategy) ParseText(body []byte) (string, error) {
	var envelope struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("failed to parse openai response: %w", err)
	}
	if len(envelope.Choices) == 0 || envelope.Choices[0].Message.Content == "" {
		return "", errors.New("openai response missing message content")
	}
	return envelope.Choices[0].Message.Content, nil
}
