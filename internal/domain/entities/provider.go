package entities

import (
	"encoding/json"
	"strings"
	"time"

	apperrors "github.com/styleatlas/catalog-annotation/pkg/errors"
)

// ProviderKind tags which request/response strategy a provider uses.
// Resolved once when the gateway is constructed, never by string dispatch
// at call time.
type ProviderKind string

const (
	KindOpenAI    ProviderKind = "openai"
	KindAnthropic ProviderKind = "anthropic"
	KindGoogle    ProviderKind = "google"
	KindAzure     ProviderKind = "azure"
	KindCustom    ProviderKind = "custom"
)

// Provider is an external AI annotation service reachable over HTTP,
// configured with credentials, model, and request/response shape.
type Provider struct {
	ID          int64           `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	ServiceName string          `json:"service_name" db:"service_name"`
	ModelName   string          `json:"model_name" db:"model_name"`
	IsActive    bool            `json:"is_active" db:"is_active"`
	Config      json.RawMessage `json:"config" db:"config"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// ProviderSettings is the provider's stored JSON config parsed into named,
// typed, defaulted fields. Parsed and validated once per assignment run.
type ProviderSettings struct {
	APIKey            string            `json:"api_key"`
	MaxTokens         int               `json:"max_tokens"`
	Temperature       float64           `json:"temperature"`
	MaxThreads        int               `json:"max_threads"`
	MaxRetries        int               `json:"max_retries"`
	RequestsPerSecond float64           `json:"requests_per_second"`
	CooldownMs        float64           `json:"cooldown_ms"`
	PromptTemplate    string            `json:"prompt_template"`
	CustomEndpoint    string            `json:"custom_endpoint"`
	HeadersTemplate   map[string]string `json:"headers_template"`
	RequestFormat     map[string]any    `json:"request_format"`
	ResponsePath      string            `json:"response_path"`
	SupportsVision    bool              `json:"supports_vision"`
	VisionModels      []string          `json:"vision_models"`
}

const (
	defaultMaxTokens   = 2000
	defaultTemperature = 0.1
	defaultMaxThreads  = 50
	defaultMaxRetries  = 3
)

// SettingsDefaults carries operator-configured fallbacks applied when a
// provider's stored config leaves max_threads or max_retries unset. Zero
// fields fall back to the builtin defaults.
type SettingsDefaults struct {
	MaxThreads int
	MaxRetries int
}

// Kind resolves the provider's strategy tag from its service name, falling
// back to the custom path when a custom endpoint is configured.
func (p *Provider) Kind() (ProviderKind, error) {
	switch strings.ToLower(p.ServiceName) {
	case "openai":
		return KindOpenAI, nil
	case "anthropic":
		return KindAnthropic, nil
	case "google":
		return KindGoogle, nil
	case "azure":
		return KindAzure, nil
	}

	settings, err := p.Settings()
	if err != nil {
		return "", err
	}
	if settings.CustomEndpoint != "" {
		return KindCustom, nil
	}
	return "", apperrors.NewValidationError(
		"unsupported provider service " + p.ServiceName + ": configure custom_endpoint")
}

// Settings parses the stored config with the builtin defaults.
func (p *Provider) Settings() (ProviderSettings, error) {
	return p.SettingsWithDefaults(SettingsDefaults{})
}

// SettingsWithDefaults parses the stored config into a validated, defaulted
// settings record. Fields missing from the config take the operator
// defaults, then the builtin ones; thread and retry counts are clamped to
// at least 1.
func (p *Provider) SettingsWithDefaults(defaults SettingsDefaults) (ProviderSettings, error) {
	if defaults.MaxThreads < 1 {
		defaults.MaxThreads = defaultMaxThreads
	}
	if defaults.MaxRetries < 1 {
		defaults.MaxRetries = defaultMaxRetries
	}

	settings := ProviderSettings{
		MaxTokens:   defaultMaxTokens,
		Temperature: defaultTemperature,
		MaxThreads:  defaults.MaxThreads,
		MaxRetries:  defaults.MaxRetries,
	}

	if len(p.Config) > 0 {
		if err := json.Unmarshal(p.Config, &settings); err != nil {
			return ProviderSettings{}, apperrors.NewValidationError(
				"invalid provider config for " + p.Name + ": " + err.Error())
		}
	}

	if settings.MaxThreads < 1 {
		settings.MaxThreads = 1
	}
	if settings.MaxRetries < 1 {
		settings.MaxRetries = 1
	}
	if settings.MaxTokens < 1 {
		settings.MaxTokens = defaultMaxTokens
	}
	if settings.RequestsPerSecond < 0 {
		settings.RequestsPerSecond = 0
	}
	if settings.CooldownMs < 0 {
		settings.CooldownMs = 0
	}

	if settings.APIKey == "" {
		return ProviderSettings{}, apperrors.NewValidationError(
			"api key not found in provider config for " + p.Name)
	}

	return settings, nil
}

// RequestDelay derives the inter-request delay from the configured
// requests-per-second or per-thread cooldown, whichever is larger.
func (s ProviderSettings) RequestDelay() time.Duration {
	var fromRPS float64
	if s.RequestsPerSecond > 0 {
		fromRPS = 1.0 / s.RequestsPerSecond
	}

	var fromCooldown float64
	if s.CooldownMs > 0 && s.MaxThreads > 0 {
		fromCooldown = (s.CooldownMs / 1000.0) / float64(s.MaxThreads)
	}

	delay := fromRPS
	if fromCooldown > delay {
		delay = fromCooldown
	}
	return time.Duration(delay * float64(time.Second))
}
