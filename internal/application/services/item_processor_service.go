package services

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
	"github.com/styleatlas/catalog-annotation/internal/domain/providers"
	"github.com/styleatlas/catalog-annotation/internal/domain/repositories"
	"github.com/styleatlas/catalog-annotation/internal/infrastructure/observability"
)

// ItemOutcome is the terminal result of one item's retry loop. Every
// processed item lands on exactly one of these.
type ItemOutcome string

const (
	ItemOutcomeDone       ItemOutcome = "done"
	ItemOutcomeFailed     ItemOutcome = "failed"
	ItemOutcomeAuthFailed ItemOutcome = "auth_failed"
	ItemOutcomePaused     ItemOutcome = "paused"
)

// authSignatures are the error-text fragments that mark a failure as a
// credential problem, matched case-insensitively. Auth failures never
// consume remaining retry attempts.
var authSignatures = []string{"status 401", "status 403", "api key", "authentication"}

var httpStatusPattern = regexp.MustCompile(`status (\d{3})`)

// ItemProcessor runs the retry state machine for one assignment item:
// one ProcessingRun row per attempt, exponential backoff between transient
// failures, immediate failure on credential rejection, and a pause check
// inside the loop so a raised flag takes effect within one item.
type ItemProcessor struct {
	items       repositories.AssignmentItemRepository
	runs        repositories.ProcessingRunRepository
	failures    repositories.FailureLogRepository
	annotations repositories.AnnotationRepository
	products    repositories.ProductRepository
	attributes  repositories.AttributeRepository
	control     repositories.ProcessingControlRepository

	// backoffUnit scales the 2^attempt backoff; sleep is injectable so
	// tests run without real waits.
	backoffUnit time.Duration
	sleep       func(ctx context.Context, d time.Duration)
	metrics     *observability.Metrics
}

// NewItemProcessor creates a new item processor.
func NewItemProcessor(
	items repositories.AssignmentItemRepository,
	runs repositories.ProcessingRunRepository,
	failures repositories.FailureLogRepository,
	annotations repositories.AnnotationRepository,
	products repositories.ProductRepository,
	attributes repositories.AttributeRepository,
	control repositories.ProcessingControlRepository,
) *ItemProcessor {
	return &ItemProcessor{
		items:       items,
		runs:        runs,
		failures:    failures,
		annotations: annotations,
		products:    products,
		attributes:  attributes,
		control:     control,
		backoffUnit: time.Second,
		sleep:       sleepWithContext,
	}
}

// WithClock overrides the backoff unit and sleep function.
func (p *ItemProcessor) WithClock(unit time.Duration, sleep func(ctx context.Context, d time.Duration)) *ItemProcessor {
	p.backoffUnit = unit
	p.sleep = sleep
	return p
}

// WithMetrics enables per-item outcome metrics.
func (p *ItemProcessor) WithMetrics(metrics *observability.Metrics) *ItemProcessor {
	p.metrics = metrics
	return p
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// ProcessItem annotates one item with up to settings.MaxRetries attempts.
// requestDelay is applied before every provider call.
func (p *ItemProcessor) ProcessItem(
	ctx context.Context,
	item *entities.AssignmentItem,
	provider *entities.Provider,
	settings entities.ProviderSettings,
	annotator providers.Annotator,
	requestDelay time.Duration,
) ItemOutcome {
	var attempts int
	outcome := p.annotateItem(ctx, item, provider, settings, annotator, requestDelay, &attempts)
	observability.RecordItemMetric(ctx, p.metrics, provider.Name, string(outcome), attempts)
	return outcome
}

func (p *ItemProcessor) annotateItem(
	ctx context.Context,
	item *entities.AssignmentItem,
	provider *entities.Provider,
	settings entities.ProviderSettings,
	annotator providers.Annotator,
	requestDelay time.Duration,
	attempts *int,
) ItemOutcome {
	// A done item never re-enters processing; refuse before touching the
	// store so a stray dispatch cannot regress terminal state.
	if err := item.Transition(entities.ItemAIInProgress); err != nil {
		log.Error().Err(err).Int64("item_id", item.ID).Msg("item cannot enter processing")
		return ItemOutcomeFailed
	}
	if err := p.items.MarkInProgress(ctx, item.ID); err != nil {
		log.Error().Err(err).Int64("item_id", item.ID).Msg("failed to mark item in progress")
		return ItemOutcomeFailed
	}

	product, err := p.products.GetByID(ctx, item.ProductID)
	if err != nil {
		return p.failItem(ctx, item, nil, provider, entities.FailureTypeConfig, err)
	}

	// A product already handed to the human pipeline keeps its status even
	// while a sibling item reprocesses.
	if err := product.Transition(entities.ProcessingAIInProgress); err != nil {
		log.Warn().Err(err).Int64("product_id", product.ID).Msg("product status left untouched")
	} else if err := p.products.UpdateStatus(ctx, product.ID, entities.ProcessingAIInProgress); err != nil {
		log.Warn().Err(err).Int64("product_id", product.ID).Msg("failed to mark product in progress")
	}

	attributes, err := p.attributes.ListForSubclass(ctx, product.SubclassID)
	if err != nil {
		return p.failItem(ctx, item, product, provider, entities.FailureTypeConfig, err)
	}
	if len(attributes) == 0 {
		// Nothing to annotate for this subclass; the item is trivially done.
		log.Warn().Int64("product_id", product.ID).Msg("no attributes mapped to product subclass")
		return p.markDone(ctx, item)
	}

	payload := buildProductPayload(product)
	specs := buildAttributeSpecs(attributes)

	for attempt := 1; attempt <= settings.MaxRetries; attempt++ {
		*attempts = attempt
		run := &entities.ProcessingRun{
			AssignmentItemID: item.ID,
			ProviderID:       provider.ID,
			Attempt:          attempt,
			MaxRetries:       settings.MaxRetries,
		}
		if err := p.runs.Create(ctx, run); err != nil {
			log.Error().Err(err).Int64("item_id", item.ID).Msg("failed to create processing run")
			return p.failItem(ctx, item, product, provider, entities.FailureTypeTransient, err)
		}

		// Pause is checked inside the loop so a raised flag stops work
		// within one item, not one batch. A pause abort is not a failure.
		if p.isPaused(ctx) {
			if err := p.runs.MarkFailed(ctx, run.ID, entities.PauseFailureReason); err != nil {
				log.Warn().Err(err).Int64("run_id", run.ID).Msg("failed to close paused run")
			}
			if err := item.Transition(entities.ItemPendingAI); err != nil {
				log.Warn().Err(err).Int64("item_id", item.ID).Msg("paused item kept its status")
			} else if err := p.items.SetStatus(ctx, item.ID, entities.ItemPendingAI); err != nil {
				log.Warn().Err(err).Int64("item_id", item.ID).Msg("failed to reset paused item")
			}
			return ItemOutcomePaused
		}

		p.sleep(ctx, requestDelay)

		annotations, annotateErr := annotator.Annotate(ctx, payload, specs)
		if annotateErr == nil {
			if err := p.persistAnnotations(ctx, item, provider, attributes, annotations); err != nil {
				annotateErr = err
			}
		}

		if annotateErr == nil {
			if err := p.runs.MarkCompleted(ctx, run.ID); err != nil {
				log.Warn().Err(err).Int64("run_id", run.ID).Msg("failed to close completed run")
			}
			return p.markDone(ctx, item)
		}

		if err := p.runs.MarkFailed(ctx, run.ID, annotateErr.Error()); err != nil {
			log.Warn().Err(err).Int64("run_id", run.ID).Msg("failed to close failed run")
		}

		errorType := classifyFailure(annotateErr)
		p.logFailure(ctx, item, provider, errorType, annotateErr)

		if errorType == entities.FailureTypeAuth {
			log.Error().Err(annotateErr).
				Int64("item_id", item.ID).
				Int64("provider_id", provider.ID).
				Msg("authentication failure, not retrying")
			return p.markFailed(ctx, item, product, ItemOutcomeAuthFailed)
		}

		if attempt == settings.MaxRetries {
			log.Error().Err(annotateErr).
				Int64("item_id", item.ID).
				Int("attempts", attempt).
				Msg("retries exhausted")
			return p.markFailed(ctx, item, product, ItemOutcomeFailed)
		}

		backoff := time.Duration(1<<uint(attempt)) * p.backoffUnit
		log.Warn().Err(annotateErr).
			Int64("item_id", item.ID).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("transient failure, retrying")
		p.sleep(ctx, backoff)
	}

	return p.markFailed(ctx, item, product, ItemOutcomeFailed)
}

func (p *ItemProcessor) isPaused(ctx context.Context) bool {
	control, err := p.control.Get(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read processing control")
		return false
	}
	return control.IsPaused
}

// persistAnnotations upserts one annotation row per attribute, scoring
// "Unknown" values with zero confidence.
func (p *ItemProcessor) persistAnnotations(
	ctx context.Context,
	item *entities.AssignmentItem,
	provider *entities.Provider,
	attributes []*entities.Attribute,
	values map[string]string,
) error {
	for _, attr := range attributes {
		value, ok := values[attr.Name]
		if !ok {
			value = entities.UnknownValue
		}
		confidence := entities.ConfidenceFor(value)
		batchItemID := item.BatchItemID
		annotation := &entities.Annotation{
			ProductID:       item.ProductID,
			AttributeID:     attr.ID,
			Value:           value,
			SourceType:      entities.SourceAI,
			SourceID:        provider.ID,
			ConfidenceScore: &confidence,
			BatchItemID:     &batchItemID,
		}
		if err := p.annotations.Upsert(ctx, annotation); err != nil {
			return err
		}
	}
	return nil
}

func (p *ItemProcessor) logFailure(ctx context.Context, item *entities.AssignmentItem, provider *entities.Provider, errorType string, failure error) {
	record := &entities.FailureLog{
		ProviderID:       provider.ID,
		AssignmentItemID: item.ID,
		ErrorType:        errorType,
		ErrorMessage:     failure.Error(),
		HTTPStatus:       parseHTTPStatus(failure.Error()),
	}
	if err := p.failures.Create(ctx, record); err != nil {
		log.Warn().Err(err).Int64("item_id", item.ID).Msg("failed to create failure log")
	}
}

// markDone flips the item terminal-done.
func (p *ItemProcessor) markDone(ctx context.Context, item *entities.AssignmentItem) ItemOutcome {
	if err := item.Transition(entities.ItemAIDone); err != nil {
		log.Error().Err(err).Int64("item_id", item.ID).Msg("item cannot complete")
		return ItemOutcomeFailed
	}
	if err := p.items.MarkDone(ctx, item.ID); err != nil {
		log.Error().Err(err).Int64("item_id", item.ID).Msg("failed to mark item done")
		return ItemOutcomeFailed
	}
	return ItemOutcomeDone
}

// markFailed flips the item terminal and cascades onto the product when it
// is still in a pre-failure status. product may be nil when it was never
// loaded; the store then applies the pre-failure filter itself.
func (p *ItemProcessor) markFailed(ctx context.Context, item *entities.AssignmentItem, product *entities.Product, outcome ItemOutcome) ItemOutcome {
	if err := item.Transition(entities.ItemAIFailed); err != nil {
		log.Error().Err(err).Int64("item_id", item.ID).Msg("item cannot fail")
		return outcome
	}
	if err := p.items.SetStatus(ctx, item.ID, entities.ItemAIFailed); err != nil {
		log.Error().Err(err).Int64("item_id", item.ID).Msg("failed to mark item failed")
	}
	if product == nil || product.ProcessingStatus.IsPreFailure() {
		if _, err := p.products.MarkFailedIfProcessing(ctx, []int64{item.ProductID}); err != nil {
			log.Warn().Err(err).Int64("product_id", item.ProductID).Msg("failed to cascade product failure")
		}
	}
	return outcome
}

func (p *ItemProcessor) failItem(ctx context.Context, item *entities.AssignmentItem, product *entities.Product, provider *entities.Provider, errorType string, cause error) ItemOutcome {
	p.logFailure(ctx, item, provider, errorType, cause)
	return p.markFailed(ctx, item, product, ItemOutcomeFailed)
}

// classifyFailure buckets a provider error: credential rejections are
// fatal, everything else is transient.
func classifyFailure(err error) string {
	if errors.Is(err, providers.ErrAnnotationUnauthorized) {
		return entities.FailureTypeAuth
	}
	text := strings.ToLower(err.Error())
	for _, signature := range authSignatures {
		if strings.Contains(text, signature) {
			return entities.FailureTypeAuth
		}
	}
	return entities.FailureTypeTransient
}

func parseHTTPStatus(errText string) *int {
	match := httpStatusPattern.FindStringSubmatch(strings.ToLower(errText))
	if match == nil {
		return nil
	}
	status, err := strconv.Atoi(match[1])
	if err != nil {
		return nil
	}
	return &status
}

func buildProductPayload(product *entities.Product) providers.ProductPayload {
	return providers.ProductPayload{
		StyleID:       product.StyleID,
		Name:          product.Name(),
		Description:   product.StyleDescription,
		Category:      product.ClassName,
		Subcategory:   product.SubclassName,
		Department:    product.DeptName,
		Subdepartment: product.SubdeptName,
		SubclassID:    product.SubclassID,
		ImageURL:      product.PrimaryImageURL,
	}
}

func buildAttributeSpecs(attributes []*entities.Attribute) []providers.AttributeSpec {
	specs := make([]providers.AttributeSpec, 0, len(attributes))
	for _, attr := range attributes {
		specs = append(specs, providers.AttributeSpec{
			ID:            attr.ID,
			Name:          attr.Name,
			Description:   attr.Description,
			AllowedValues: attr.AllowedValues,
		})
	}
	return specs
}
