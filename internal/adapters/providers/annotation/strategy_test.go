package annotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
)

func testSettings() entities.ProviderSettings {
	return entities.ProviderSettings{
		APIKey:      "sk-test",
		MaxTokens:   500,
		Temperature: 0.1,
	}
}

func TestOpenAIRequestShape(t *testing.T) {
	strat := newOpenAIStrategy("gpt-4o-mini", testSettings())

	req, err := strat.BuildRequest("prompt text", "")

	assert.NoError(t, err)
	assert.Equal(t, openAIEndpoint, req.URL)
	assert.Equal(t, "Bearer sk-test", req.Headers["Authorization"])
	assert.Equal(t, "gpt-4o-mini", req.Body["model"])
	assert.Equal(t, map[string]string{"type": "json_object"}, req.Body["response_format"])

	messages := req.Body["messages"].([]map[string]interface{})
	assert.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0]["role"])
	assert.Equal(t, "prompt text", messages[1]["content"])
}

func TestOpenAIRequestAttachesImageForVisionModel(t *testing.T) {
	strat := newOpenAIStrategy("gpt-4o", testSettings())

	req, err := strat.BuildRequest("prompt text", "https://img.example.com/a.jpg")

	assert.NoError(t, err)
	messages := req.Body["messages"].([]map[string]interface{})
	content := messages[1]["content"].([]map[string]interface{})
	assert.Len(t, content, 2)
	assert.Equal(t, "image_url", content[1]["type"])
}

func TestOpenAIRequestSkipsImageForNonVisionModel(t *testing.T) {
	strat := newOpenAIStrategy("gpt-3.5-turbo", testSettings())

	req, err := strat.BuildRequest("prompt text", "https://img.example.com/a.jpg")

	assert.NoError(t, err)
	messages := req.Body["messages"].([]map[string]interface{})
	assert.Equal(t, "prompt text", messages[1]["content"])
}

func TestOpenAIParseText(t *testing.T) {
	body := []byte(`{"choices":[{"message":{"content":"{\"Color\":\"Red\"}"}}]}`)

	text, err := newOpenAIStrategy("gpt-4o", testSettings()).ParseText(body)

	assert.NoError(t, err)
	assert.Equal(t, `{"Color":"Red"}`, text)
}

func TestAzureRequestShape(t *testing.T) {
	settings := testSettings()
	settings.CustomEndpoint = "https://myorg.openai.azure.com"
	strat, err := newAzureStrategy("gpt-4o", settings)
	assert.NoError(t, err)

	req, err := strat.BuildRequest("prompt text", "")

	assert.NoError(t, err)
	assert.Equal(t,
		"https://myorg.openai.azure.com/openai/deployments/gpt-4o/chat/completions?api-version=2024-02-15-preview",
		req.URL)
	assert.Equal(t, "sk-test", req.Headers["api-key"])
	assert.NotContains(t, req.Headers, "Authorization")
}

func TestAzureRequiresEndpoint(t *testing.T) {
	_, err := newAzureStrategy("gpt-4o", testSettings())
	assert.Error(t, err)
}

func TestAnthropicRequestShape(t *testing.T) {
	strat := newAnthropicStrategy("claude-3-5-sonnet-20241022", testSettings())

	req, err := strat.BuildRequest("prompt text", "")

	assert.NoError(t, err)
	assert.Equal(t, anthropicEndpoint, req.URL)
	assert.Equal(t, "sk-test", req.Headers["x-api-key"])
	assert.Equal(t, anthropicVersion, req.Headers["anthropic-version"])
	assert.Equal(t, 500, req.Body["max_tokens"])
}

func TestAnthropicParseText(t *testing.T) {
	body := []byte(`{"content":[{"type":"text","text":"{\"Color\":\"Red\"}"}]}`)

	text, err := newAnthropicStrategy("claude-3-haiku", testSettings()).ParseText(body)

	assert.NoError(t, err)
	assert.Equal(t, `{"Color":"Red"}`, text)
}

func TestGoogleRequestShape(t *testing.T) {
	strat := newGoogleStrategy("gemini-1.5-flash", testSettings())

	req, err := strat.BuildRequest("prompt text", "https://img.example.com/a.jpg")

	assert.NoError(t, err)
	assert.Equal(t,
		"https://generativelanguage.googleapis.com/v1/models/gemini-1.5-flash:generateContent?key=sk-test",
		req.URL)

	contents := req.Body["contents"].([]map[string]interface{})
	parts := contents[0]["parts"].([]map[string]interface{})
	assert.Len(t, parts, 2)
	assert.Contains(t, parts[0], "fileData")
	assert.Equal(t, "prompt text", parts[1]["text"])
}

func TestGoogleParseText(t *testing.T) {
	body := []byte(`{"candidates":[{"content":{"parts":[{"text":"{\"Color\":\"Red\"}"}]}}]}`)

	text, err := newGoogleStrategy("gemini-1.5-pro", testSettings()).ParseText(body)

	assert.NoError(t, err)
	assert.Equal(t, `{"Color":"Red"}`, text)
}

func TestGenericRequestWithCustomFormat(t *testing.T) {
	settings := testSettings()
	settings.CustomEndpoint = "https://llm.internal/v1/annotate"
	settings.HeadersTemplate = map[string]string{
		"Content-Type": "application/json",
		"X-Api-Key":    "{api_key}",
	}
	settings.RequestFormat = map[string]any{
		"input":       "{prompt}",
		"engine":      "{model}",
		"temperature": "{temperature}",
	}
	strat, err := newGenericStrategy("custom-llm-1", settings)
	assert.NoError(t, err)

	req, err := strat.BuildRequest("annotate this", "")

	assert.NoError(t, err)
	assert.Equal(t, "https://llm.internal/v1/annotate", req.URL)
	assert.Equal(t, "sk-test", req.Headers["X-Api-Key"])
	assert.Equal(t, "annotate this", req.Body["input"])
	assert.Equal(t, "custom-llm-1", req.Body["engine"])
}

func TestGenericRequestDefaultFormat(t *testing.T) {
	settings := testSettings()
	settings.CustomEndpoint = "https://llm.internal/v1/annotate"
	strat, err := newGenericStrategy("custom-llm-1", settings)
	assert.NoError(t, err)

	req, err := strat.BuildRequest("annotate this", "")

	assert.NoError(t, err)
	assert.Equal(t, "annotate this", req.Body["prompt"])
	assert.Equal(t, "Bearer sk-test", req.Headers["Authorization"])
}

func TestGenericParseTextWithResponsePath(t *testing.T) {
	settings := testSettings()
	settings.CustomEndpoint = "https://llm.internal/v1/annotate"
	settings.ResponsePath = "data.choices.0.text"
	strat, err := newGenericStrategy("custom-llm-1", settings)
	assert.NoError(t, err)

	text, err := strat.ParseText([]byte(`{"data":{"choices":[{"text":"{\"Color\":\"Red\"}"}]}}`))

	assert.NoError(t, err)
	assert.Equal(t, `{"Color":"Red"}`, text)
}

func TestGenericParseTextConventionalKeys(t *testing.T) {
	settings := testSettings()
	settings.CustomEndpoint = "https://llm.internal/v1/annotate"
	strat, err := newGenericStrategy("custom-llm-1", settings)
	assert.NoError(t, err)

	text, err := strat.ParseText([]byte(`{"result":"{\"Color\":\"Red\"}"}`))

	assert.NoError(t, err)
	assert.Equal(t, `{"Color":"Red"}`, text)

	_, err = strat.ParseText([]byte(`{"something_else":"value"}`))
	assert.Error(t, err)
}

func TestModelSupportsVision(t *testing.T) {
	assert.True(t, modelSupportsVision(entities.KindOpenAI, "gpt-4o-2024-05-13", entities.ProviderSettings{}))
	assert.False(t, modelSupportsVision(entities.KindOpenAI, "gpt-3.5-turbo", entities.ProviderSettings{}))
	assert.True(t, modelSupportsVision(entities.KindAnthropic, "claude-3-5-sonnet-20241022", entities.ProviderSettings{}))
	assert.True(t, modelSupportsVision(entities.KindCustom, "anything", entities.ProviderSettings{SupportsVision: true}))
	assert.False(t, modelSupportsVision(entities.KindCustom, "anything", entities.ProviderSettings{}))
}
