package annotation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
	"github.com/styleatlas/catalog-annotation/internal/domain/providers"
)

const defaultRequestTimeout = 60 * time.Second

// Gateway implements the Annotator port for one configured provider. The
// vendor strategy is resolved once at construction; Annotate itself is a
// single HTTP call with no internal retry - retry policy belongs to the
// item processor.
type Gateway struct {
	provider   *entities.Provider
	settings   entities.ProviderSettings
	kind       entities.ProviderKind
	strategy   strategy
	httpClient *http.Client
}

// Factory builds Gateways from provider records.
type Factory struct {
	httpClient *http.Client
}

// NewFactory creates an annotator factory. All gateways built by the
// factory share one HTTP client with the given request timeout.
func NewFactory(timeout time.Duration) *Factory {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Factory{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ForProvider resolves the provider's kind and settings and builds a
// gateway with the matching vendor strategy.
func (f *Factory) ForProvider(provider *entities.Provider) (providers.Annotator, error) {
	kind, err := provider.Kind()
	if err != nil {
		return nil, err
	}
	settings, err := provider.Settings()
	if err != nil {
		return nil, err
	}

	var strat strategy
	switch kind {
	case entities.KindOpenAI:
		strat = newOpenAIStrategy(provider.ModelName, settings)
	case entities.KindAnthropic:
		strat = newAnthropicStrategy(provider.ModelName, settings)
	case entities.KindGoogle:
		strat = newGoogleStrategy(provider.ModelName, settings)
	case entities.KindAzure:
		strat, err = newAzureStrategy(provider.ModelName, settings)
	case entities.KindCustom:
		strat, err = newGenericStrategy(provider.ModelName, settings)
	default:
		return nil, fmt.Errorf("unsupported provider kind %q", kind)
	}
	if err != nil {
		return nil, err
	}

	return &Gateway{
		provider:   provider,
		settings:   settings,
		kind:       kind,
		strategy:   strat,
		httpClient: f.httpClient,
	}, nil
}

// Annotate sends one product with its attribute specs to the provider and
// returns one value per requested attribute. Credential rejections come
// back wrapped in ErrAnnotationUnauthorized.
func (g *Gateway) Annotate(ctx context.Context, payload providers.ProductPayload, attributes []providers.AttributeSpec) (map[string]string, error) {
	hasVision := modelSupportsVision(g.kind, g.provider.ModelName, g.settings)
	prompt := buildPrompt(g.settings.PromptTemplate, payload, attributes, hasVision)

	request, err := g.strategy.BuildRequest(prompt, payload.ImageURL)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(request.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal provider request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, request.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for key, value := range request.Headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		recordAnnotationMetric(ctx, g.provider.ServiceName, g.provider.ModelName, 0, time.Since(start), err)
		return nil, fmt.Errorf("%s request failed: %w", g.provider.ServiceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		recordAnnotationMetric(ctx, g.provider.ServiceName, g.provider.ModelName,
			resp.StatusCode, time.Since(start), fmt.Errorf("status %d", resp.StatusCode))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, fmt.Errorf("%w: %s request failed with status %d",
				providers.ErrAnnotationUnauthorized, g.provider.ServiceName, resp.StatusCode)
		}
		return nil, fmt.Errorf("%s request failed with status %d", g.provider.ServiceName, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		recordAnnotationMetric(ctx, g.provider.ServiceName, g.provider.ModelName,
			resp.StatusCode, time.Since(start), err)
		return nil, fmt.Errorf("failed to read %s response: %w", g.provider.ServiceName, err)
	}

	text, err := g.strategy.ParseText(raw)
	if err != nil {
		recordAnnotationMetric(ctx, g.provider.ServiceName, g.provider.ModelName,
			resp.StatusCode, time.Since(start), err)
		return nil, err
	}

	annotations, err := normalizeAnnotations(text, attributes)
	if err != nil {
		recordAnnotationMetric(ctx, g.provider.ServiceName, g.provider.ModelName,
			resp.StatusCode, time.Since(start), err)
		return nil, err
	}

	recordAnnotationMetric(ctx, g.provider.ServiceName, g.provider.ModelName,
		resp.StatusCode, time.Since(start), nil)
	return annotations, nil
}

// Settings exposes the gateway's parsed provider settings so the item
// processor can derive pacing and retry policy from the same record.
func (g *Gateway) Settings() entities.ProviderSettings {
	return g.settings
}
