package annotation

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
)

const googleEndpointFormat = "https://generativelanguage.googleapis.com/v1/models/%s:generateContent?key=%s"

// googleStrategy shapes Gemini generateContent requests. The key rides on
// the query string rather than a header.
type googleStrategy struct {
	model    string
	settings entities.ProviderSettings
}

func newGoogleStrategy(model string, settings entities.ProviderSettings) *googleStrategy {
	return &googleStrategy{model: model, settings: settings}
}

func (s *googleStrategy) BuildRequest(prompt string, imageURL string) (*vendorRequest, error) {
	var parts []map[string]interface{}
	if imageURL != "" && modelSupportsVision(entities.KindGoogle, s.model, s.settings) {
		parts = append(parts, map[string]interface{}{
			"fileData": map[string]interface{}{
				"mimeType": "image/jpeg",
				"fileUri":  imageURL,
			},
		})
	}
	parts = append(parts, map[string]interface{}{"text": prompt})

	return &vendorRequest{
		URL: fmt.Sprintf(googleEndpointFormat, s.model, s.settings.APIKey),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: map[string]interface{}{
			"contents": []map[string]interface{}{
				{"parts": parts},
			},
			"generationConfig": map[string]interface{}{
				"temperature":     s.settings.Temperature,
				"maxOutputTokens": s.settings.MaxTokens,
			},
		},
	}, nil
}

func (s *googleStrategy) ParseText(body []byte) (string, error) {
	var envelope struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("failed to parse google response: %w", err)
	}
	if len(envelope.Candidates) == 0 || len(envelope.Candidates[0].Content.Parts) == 0 ||
		envelope.Candidates[0].Content.Parts[0].Text == "" {
		return "", errors.New("google response missing candidate text")
	}
	return envelope.Candidates[0].Content.Parts[0].Text, nil
}
